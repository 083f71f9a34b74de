package docstore

import (
	"fmt"
	"strings"
)

// Field readers used when decoding documents into domain types. The *Opt
// variants accept a missing or null field; a present field of the wrong type is
// always an error.

func String(d Data, key string) (string, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return "", fmt.Errorf("field %q missing", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q: want string got %T", key, v)
	}
	return s, nil
}

func StringOpt(d Data, key string) (string, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q: want string got %T", key, v)
	}
	return s, nil
}

func BoolOpt(d Data, key string, def bool) (bool, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return def, fmt.Errorf("field %q: want bool got %T", key, v)
	}
	return b, nil
}

func FloatOpt(d Data, key string) (*float64, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("field %q: want number got %T", key, v)
	}
	return &f, nil
}

func IntOpt(d Data, key string) (*int, error) {
	f, err := FloatOpt(d, key)
	if err != nil || f == nil {
		return nil, err
	}
	i := int(*f)
	return &i, nil
}

// Int64 reads a counter, treating missing as zero.
func Int64(d Data, key string) int64 {
	f, ok := toFloat(d[key])
	if !ok {
		return 0
	}
	return int64(f)
}

// StringList reads an array of strings, skipping blank entries.
func StringList(v any) ([]string, error) {
	switch arr := v.(type) {
	case nil:
		return nil, nil
	case []string:
		out := make([]string, 0, len(arr))
		for _, s := range arr {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list item: want string got %T", item)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("want list got %T", v)
	}
}
