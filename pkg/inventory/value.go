package inventory

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// InheritToken is how the Inherit sentinel is spelled in stored files and on
// the command line.
const InheritToken = "<<inherit>>"

type inheritSentinel struct{}

func (inheritSentinel) String() string { return InheritToken }

// Inherit marks a property as "use the resolved value of the parent". It is
// never equal to any concrete value, including empty ones.
var Inherit interface{} = inheritSentinel{}

// IsInherit reports whether v is the Inherit sentinel.
func IsInherit(v interface{}) bool {
	_, ok := v.(inheritSentinel)
	return ok
}

// coerce converts raw input into the canonical Go type for kind:
// string, int, bool, []string or map[string]interface{}.
func coerce(kind ValueKind, raw interface{}) (interface{}, error) {
	if IsInherit(raw) {
		return Inherit, nil
	}
	if s, ok := raw.(string); ok && s == InheritToken {
		return Inherit, nil
	}
	switch kind {
	case String:
		return toString(raw)
	case Int:
		return toInt(raw)
	case Bool:
		return toBool(raw)
	case List:
		return toList(raw)
	case Map:
		return toMap(raw)
	}
	return nil, fmt.Errorf("unknown value kind %d", kind)
}

func toString(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case int, int64, float64, bool:
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("expected string, got %T", raw)
}

func toInt(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return nil, fmt.Errorf("expected integer, got %v", v)
		}
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("expected integer, got %T", raw)
}

func toBool(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "on", "1":
			return true, nil
		case "false", "no", "n", "off", "0", "":
			return false, nil
		}
		return nil, fmt.Errorf("expected boolean, got %q", v)
	}
	return nil, fmt.Errorf("expected boolean, got %T", raw)
}

// toList accepts a slice or a string of comma/space separated words.
func toList(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return []string{}, nil
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, err := toString(e)
			if err != nil {
				return nil, fmt.Errorf("list element: %w", err)
			}
			out = append(out, s.(string))
		}
		return out, nil
	case string:
		fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' })
		if fields == nil {
			fields = []string{}
		}
		return fields, nil
	}
	return nil, fmt.Errorf("expected list, got %T", raw)
}

// toMap accepts a map or a string of space separated key=value words. A
// word without '=' becomes a key with an empty value.
func toMap(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return deepCopyMap(v), nil
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = deepCopyValue(val)
		}
		return out, nil
	case string:
		out := map[string]interface{}{}
		for _, word := range strings.Fields(v) {
			key, val, _ := strings.Cut(word, "=")
			if key == "" {
				return nil, fmt.Errorf("empty key in %q", word)
			}
			out[key] = val
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected map, got %T", raw)
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case map[interface{}]interface{}:
		m, _ := toMap(t)
		return m
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

// ZeroValue is the empty concrete value of kind.
func ZeroValue(kind ValueKind) interface{} {
	v, _ := coerce(kind, nil)
	return v
}

// Coerce converts raw input to the canonical type of kind.
func Coerce(kind ValueKind, raw interface{}) (interface{}, error) {
	return coerce(kind, raw)
}

// CopyValue returns a deep copy of a property value.
func CopyValue(v interface{}) interface{} {
	return deepCopyValue(v)
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode turns a stored property value into its serialized form, mapping the
// sentinel onto InheritToken.
func Encode(v interface{}) interface{} {
	if IsInherit(v) {
		return InheritToken
	}
	return deepCopyValue(v)
}
