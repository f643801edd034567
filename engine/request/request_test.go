package request

import (
	"errors"
	"testing"

	"github.com/compozy/relay/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataHolder(t *testing.T) {
	t.Run("Should read and write nested parameters", func(t *testing.T) {
		d := NewDataHolder()
		d.SetParameter("user[address][zip]", "12345")
		d.SetParameter("name", "ada")

		v, ok := d.Parameter("user[address][zip]")
		require.True(t, ok)
		assert.Equal(t, "12345", v)
		addr, ok := d.Parameter("user[address]")
		require.True(t, ok)
		assert.Equal(t, map[string]any{"zip": "12345"}, addr)
		assert.Equal(t, []string{"name", "user"}, d.Names(SourceParameters))

		_, ok = d.Parameter("name[first]")
		assert.False(t, ok)
	})

	t.Run("Should remove values", func(t *testing.T) {
		d := FromParameters(map[string]any{"a": map[string]any{"b": 1, "c": 2}})
		v, ok := d.Remove(SourceParameters, "a[b]")
		require.True(t, ok)
		assert.Equal(t, 1, v)
		assert.False(t, d.Has(SourceParameters, "a[b]"))
		assert.True(t, d.Has(SourceParameters, "a[c]"))
		_, ok = d.Remove(SourceParameters, "missing[x]")
		assert.False(t, ok)
	})

	t.Run("Should keep sources apart", func(t *testing.T) {
		d := NewDataHolder()
		d.Set(SourceCookies, "sid", "abc")
		d.Set(SourceHeaders, "Accept", "text/html")
		d.Set(SourceFiles, "avatar", &UploadedFile{Name: "a.png", Size: 3})
		_, ok := d.Parameter("sid")
		assert.False(t, ok)
		c, _ := d.Cookie("sid")
		assert.Equal(t, "abc", c)
		h, _ := d.Header("Accept")
		assert.Equal(t, "text/html", h)
		f, ok := d.File("avatar")
		require.True(t, ok)
		assert.Equal(t, "a.png", f.Name)
	})

	t.Run("Should clone without sharing state", func(t *testing.T) {
		d := FromParameters(map[string]any{"tags": map[string]any{"x": "1"}})
		c := d.Clone()
		c.SetParameter("tags[x]", "2")
		c.SetParameter("extra", true)
		v, _ := d.Parameter("tags[x]")
		assert.Equal(t, "1", v)
		assert.False(t, d.Has(SourceParameters, "extra"))
	})

	t.Run("Should merge nested maps", func(t *testing.T) {
		d := FromParameters(map[string]any{"user": map[string]any{"name": "ada", "age": "36"}})
		d.Merge(FromParameters(map[string]any{"user": map[string]any{"age": "37"}, "page": "2"}))
		assert.Equal(t, map[string]any{
			"user": map[string]any{"name": "ada", "age": "37"},
			"page": "2",
		}, d.All(SourceParameters))
		d.Merge(nil)
	})

	t.Run("Should round trip through Export and Import", func(t *testing.T) {
		d := FromParameters(map[string]any{"q": "shoes"})
		d.Set(SourceCookies, "theme", "dark")
		out := d.Export()
		assert.Len(t, out, 2)
		restored := Import(out)
		assert.Equal(t, d.All(SourceParameters), restored.All(SourceParameters))
		c, _ := restored.Cookie("theme")
		assert.Equal(t, "dark", c)
		restored.Set(SourceHeaders, "Accept", "text/html")
		assert.False(t, d.Has(SourceHeaders, "Accept"))
	})
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"a"}, splitPath("a"))
	assert.Equal(t, []string{"a", "b", "c"}, splitPath("a[b][c]"))
	assert.Equal(t, []string{"a[b"}, splitPath("a[b"))
	assert.Nil(t, splitPath(""))
}

func TestAttributeHolder(t *testing.T) {
	t.Run("Should scope attributes by namespace", func(t *testing.T) {
		a := NewAttributeHolder()
		a.SetAttribute("x", "", 1)
		a.SetAttributes("ns.forward", map[string]any{"requested_module": "Shop"})
		v, ok := a.Attribute("x", DefaultNamespace)
		require.True(t, ok)
		assert.Equal(t, 1, v)
		_, ok = a.Attribute("x", "ns.forward")
		assert.False(t, ok)
		assert.Equal(t, []string{"ns.forward", DefaultNamespace}, a.Namespaces())

		b := NewAttributeHolder()
		b.CopyFrom(a)
		assert.Equal(t, map[string]any{"requested_module": "Shop"}, b.Attributes("ns.forward"))
		b.RemoveAttribute("requested_module", "ns.forward")
		assert.Empty(t, b.Attributes("ns.forward"))
	})
}

func TestRequest_Lock(t *testing.T) {
	t.Run("Should deny data access while locked", func(t *testing.T) {
		r := New("read", nil)
		key, err := r.Lock()
		require.NoError(t, err)
		_, err = r.RequestData()
		assert.ErrorIs(t, err, core.ErrRequestLocked)
		_, err = r.Lock()
		assert.ErrorIs(t, err, core.ErrRequestLocked)
		assert.ErrorIs(t, r.Unlock("wrong"), core.ErrInvalidLockKey)
		require.NoError(t, r.Unlock(key))
		assert.ErrorIs(t, r.Unlock(key), core.ErrInvalidLockKey)
		_, err = r.RequestData()
		assert.NoError(t, err)
	})

	t.Run("Should run nested guards under the lock already held", func(t *testing.T) {
		r := New("read", FromParameters(map[string]any{"q": "tea"}))
		require.NoError(t, r.Guard(func() error {
			return r.Guard(func() error {
				assert.True(t, r.Locked())
				_, err := r.RequestData()
				assert.ErrorIs(t, err, core.ErrRequestLocked)
				v, ok := r.Data().Parameter("q")
				assert.True(t, ok)
				assert.Equal(t, "tea", v)
				return nil
			})
		}))
		assert.False(t, r.Locked())
		locks, releases := r.LockStats()
		assert.Equal(t, 1, locks)
		assert.Equal(t, 1, releases)

		boom := errors.New("boom")
		err := r.Guard(func() error {
			return r.Guard(func() error { return boom })
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, r.Locked())
	})

	t.Run("Should refuse a guard while the request is locked directly", func(t *testing.T) {
		r := New("read", nil)
		key, err := r.Lock()
		require.NoError(t, err)
		called := false
		err = r.Guard(func() error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, core.ErrRequestLocked)
		assert.False(t, called)
		require.NoError(t, r.Unlock(key))
	})

	t.Run("Should release the guard on success, error and panic", func(t *testing.T) {
		r := New("write", nil)
		require.NoError(t, r.Guard(func() error {
			assert.True(t, r.Locked())
			return nil
		}))
		boom := errors.New("boom")
		assert.ErrorIs(t, r.Guard(func() error { return boom }), boom)
		assert.Panics(t, func() {
			_ = r.Guard(func() error { panic("handler") })
		})
		assert.False(t, r.Locked())
		locks, releases := r.LockStats()
		assert.Equal(t, 3, locks)
		assert.Equal(t, 3, releases)
	})

	t.Run("Should travel through the context", func(t *testing.T) {
		r := New("read", nil)
		got, ok := FromContext(ContextWithRequest(t.Context(), r))
		require.True(t, ok)
		assert.Same(t, r, got)
		assert.NotEmpty(t, got.ID())
		_, ok = FromContext(t.Context())
		assert.False(t, ok)
	})
}
