package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/compozy/relay/engine/controller"
	"github.com/compozy/relay/engine/dispatcher"
	"github.com/compozy/relay/engine/infra/monitoring"
	"github.com/compozy/relay/engine/infra/server/ratelimit"
	"github.com/compozy/relay/engine/request"
	"github.com/compozy/relay/engine/response"
	"github.com/compozy/relay/engine/storage"
	"github.com/compozy/relay/engine/user"
	"github.com/compozy/relay/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRenderer struct{}

func (echoRenderer) Render(_ context.Context, template string, attrs map[string]any) ([]byte, error) {
	if msg, ok := attrs["message"]; ok {
		return fmt.Appendf(nil, "%s:%v", template, msg), nil
	}
	return []byte(template), nil
}

type page struct {
	controller.Base
	secure  bool
	methods *controller.Methods
}

func (p *page) Methods() *controller.Methods { return p.methods }
func (p *page) IsSecure() bool { return p.secure }
func (p *page) Credentials() []string { return []string{"member"} }

type templateView struct {
	controller.ViewBase
	template string
}

func (v *templateView) Renderers() map[string]controller.RenderFunc {
	return map[string]controller.RenderFunc{
		controller.Generic: func(ctx context.Context, c controller.Container) error {
			return controller.RenderTemplate(ctx, c, v.template)
		},
	}
}

func view(template string) controller.ViewFactory {
	return func() controller.View { return &templateView{template: template} }
}

func success(context.Context, controller.Container, *request.DataHolder) (controller.ViewName, error) {
	return controller.Named(controller.ViewSuccess), nil
}

func newPage(secure bool, fn controller.ExecuteFunc) controller.Factory {
	return func() controller.Controller {
		return &page{secure: secure, methods: controller.NewMethods().Execute(controller.Generic, fn)}
	}
}

const addValidators = `
method: write
validators:
  - class: number
    name: amount
    arguments: [amount]
    params:
      min: 1
      export: amount_int
`

type testServer struct {
	cfg    *config.Config
	store  storage.Storage
	server *Server
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config), opts ...Option) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	system := controller.NewModule("Default").
		Controller("Index", newPage(false, success)).
		View("IndexSuccess", view("index"))
	for _, name := range []string{"Error404", "ModuleDisabled", "Secure", "Login", "Unavailable"} {
		system.Controller(name, newPage(false, success)).View(name+"Success", view(name))
	}
	account := controller.NewModule("Account").
		Controller("Index", newPage(false, success)).
		Controller("SignIn", newPage(false,
			func(_ context.Context, c controller.Container, _ *request.DataHolder) (controller.ViewName, error) {
				c.User().SetAuthenticated(true)
				c.User().AddCredential("member")
				return controller.Named(controller.ViewSuccess), nil
			})).
		Controller("Profile", newPage(true, success)).
		Controller("Leave", newPage(false,
			func(_ context.Context, c controller.Container, _ *request.DataHolder) (controller.ViewName, error) {
				return controller.NoView, c.Response().SetRedirect("/Default/Index", http.StatusSeeOther)
			})).
		View("IndexSuccess", view("account")).
		View("SignInSuccess", view("signed_in")).
		View("ProfileSuccess", view("profile"))
	shop := controller.NewModule("Shop").
		Controller("Products.Add", newPage(false,
			func(_ context.Context, c controller.Container, rd *request.DataHolder) (controller.ViewName, error) {
				if v, ok := rd.Parameter("amount_int"); ok {
					c.SetAttribute("message", v)
				}
				return controller.Named(controller.ViewSuccess), nil
			})).
		Controller("Upload", newPage(false,
			func(_ context.Context, c controller.Container, rd *request.DataHolder) (controller.ViewName, error) {
				f, ok := rd.File("doc")
				if ok {
					c.SetAttribute("message", f.Name+"="+string(f.Content))
				}
				return controller.Named(controller.ViewSuccess), nil
			})).
		View("Products/AddSuccess", view("added")).
		View("Products/AddError", view("rejected")).
		View("UploadSuccess", view("uploaded"))

	modules := controller.NewRegistry()
	require.NoError(t, modules.Register(system, account, shop))
	html := &response.OutputType{Name: "html", ContentType: "text/html; charset=utf-8", Renderer: echoRenderer{}}
	fsys := fstest.MapFS{"modules/Shop/validate/Products/Add.yaml": {Data: []byte(addValidators)}}
	d, err := dispatcher.New(t.Name(), cfg, modules, dispatcher.WithOutputTypes(html), dispatcher.WithValidatorFS(fsys))
	require.NoError(t, err)
	store := storage.NewMemory()
	users := user.NewStore(store, cfg.Session.TTL)
	return &testServer{cfg: cfg, store: store, server: NewServer(t.Context(), d, users, opts...)}
}

func (ts *testServer) do(method, target string, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	require.FailNow(t, "session cookie not set")
	return nil
}

func TestServer_Dispatch(t *testing.T) {
	t.Run("Should serve the default controller on the root path", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodGet, "/", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "index", w.Body.String())
		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	})

	t.Run("Should serve the module index for a bare module path", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodGet, "/Account", "")
		assert.Equal(t, "account", w.Body.String())
	})

	t.Run("Should map nested controller paths", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodPost, "/Shop/Products/Add", url.Values{"amount": {"3"}}.Encode())
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "added:3", w.Body.String())
	})

	t.Run("Should validate only for the mapped request method", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodPost, "/Shop/Products/Add", url.Values{"amount": {"0"}}.Encode())
		assert.Equal(t, "rejected", w.Body.String())
		w = ts.do(http.MethodGet, "/Shop/Products/Add?amount=0", "")
		assert.Equal(t, "added", w.Body.String())
	})

	t.Run("Should forward unknown controllers to the 404 page", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodGet, "/Shop/Missing", "")
		assert.Equal(t, "Error404", w.Body.String())
	})

	t.Run("Should answer invalid names with a problem document", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodGet, "/Shop/9bad", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "invalid_name", body["code"])
	})

	t.Run("Should write redirects", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodGet, "/Account/Leave", "")
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/Default/Index", w.Header().Get("Location"))
	})

	t.Run("Should serve every request from the unavailable page", func(t *testing.T) {
		ts := newTestServer(t, func(cfg *config.Config) { cfg.Core.Available = false })
		assert.Equal(t, "Unavailable", ts.do(http.MethodGet, "/Shop/Products/Add", "").Body.String())
	})

	t.Run("Should expose uploaded files", func(t *testing.T) {
		ts := newTestServer(t, nil)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("doc", "notes.txt")
		require.NoError(t, err)
		_, err = fw.Write([]byte("hello"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/Shop/Upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		ts.server.Handler().ServeHTTP(w, req)
		assert.Equal(t, "uploaded:notes.txt=hello", w.Body.String())
	})
}

func TestServer_Session(t *testing.T) {
	t.Run("Should not store anonymous sessions", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodGet, "/", "")
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("Should keep the user signed in across requests", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodGet, "/Account/Profile", "")
		assert.Equal(t, "Login", w.Body.String())

		w = ts.do(http.MethodPost, "/Account/SignIn", "x=1")
		require.Equal(t, "signed_in", w.Body.String())
		ck := sessionCookie(t, w, ts.cfg.Session.CookieName)
		assert.True(t, ck.HttpOnly)

		w = ts.do(http.MethodGet, "/Account/Profile", "", ck)
		assert.Equal(t, "profile", w.Body.String())

		_, ok, err := ts.store.Read(t.Context(), ck.Value)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestServer_Endpoints(t *testing.T) {
	t.Run("Should report health", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"ok"`)
	})

	t.Run("Should serve prometheus metrics", func(t *testing.T) {
		mon, err := monitoring.NewMonitoringService(t.Context(), &monitoring.Config{Enabled: true, Path: "/metrics"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = mon.Shutdown(context.Background()) })
		ts := newTestServer(t, nil, WithMonitoring(mon))
		ts.do(http.MethodGet, "/", "")
		w := ts.do(http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Should throttle dispatched requests", func(t *testing.T) {
		cfg := ratelimit.DefaultConfig()
		cfg.GlobalRate = ratelimit.RateConfig{Limit: 1, Period: time.Minute}
		limiter, err := ratelimit.NewManager(cfg, nil)
		require.NoError(t, err)
		ts := newTestServer(t, nil, WithRateLimiter(limiter))
		require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/Account", "").Code)
		assert.Equal(t, http.StatusTooManyRequests, ts.do(http.MethodGet, "/Account", "").Code)
		assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "").Code)
	})

	t.Run("Should answer CORS preflight for allowed origins", func(t *testing.T) {
		ts := newTestServer(t, func(cfg *config.Config) {
			cfg.Server.CORSEnabled = true
			cfg.Server.AllowedOrigins = []string{"https://app.example.com"}
		})
		req := httptest.NewRequest(http.MethodOptions, "/Account", http.NoBody)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		ts.server.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestBuildRequestData(t *testing.T) {
	t.Run("Should collect parameters, cookies and headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?user[name]=Jane&tags[]=a&tags[]=b&q=1&q=2", http.NoBody)
		req.Header.Set("X-Trace", "abc")
		req.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})
		data, err := buildRequestData(req)
		require.NoError(t, err)
		v, ok := data.Parameter("user[name]")
		require.True(t, ok)
		assert.Equal(t, "Jane", v)
		tags, _ := data.Parameter("tags")
		assert.Equal(t, []any{"a", "b"}, tags)
		q, _ := data.Parameter("q")
		assert.Equal(t, "2", q)
		theme, _ := data.Cookie("theme")
		assert.Equal(t, "dark", theme)
		trace, _ := data.Header("X-Trace")
		assert.Equal(t, "abc", trace)
	})
}
