package core

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/mohae/deepcopy"
)

// DeepCopy returns a deep copy of v.
func DeepCopy[T any](v T) (T, error) {
	var zero T
	copied := deepcopy.Copy(v)
	if copied == nil {
		return zero, nil
	}
	result, ok := copied.(T)
	if !ok {
		return zero, fmt.Errorf("failed to cast copied value to type %T", zero)
	}
	return result, nil
}

// CloneMap deep copies m, returning an empty map for nil input.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return make(map[string]any)
	}
	copied, ok := deepcopy.Copy(m).(map[string]any)
	if !ok {
		return make(map[string]any)
	}
	return copied
}

// FromMapDefault decodes loosely typed data into T, converting strings to
// numbers and booleans where needed.
func FromMapDefault[T any](data any) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
		TagName:          "param",
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return out, err
	}
	return out, decoder.Decode(data)
}
