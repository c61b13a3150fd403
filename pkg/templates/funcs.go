// pkg/templates/funcs.go

package templates

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

var funcMap = template.FuncMap{
	"default": func(def, val interface{}) interface{} {
		if val == nil || fmt.Sprint(val) == "" {
			return def
		}
		return val
	},
	"join": func(sep string, v interface{}) string {
		switch l := v.(type) {
		case []string:
			return strings.Join(l, sep)
		case []interface{}:
			parts := make([]string, len(l))
			for i, e := range l {
				parts[i] = fmt.Sprint(e)
			}
			return strings.Join(parts, sep)
		}
		return ""
	},
	"keys": func(v interface{}) []string {
		m, _ := v.(map[string]interface{})
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	},
	"lower":   strings.ToLower,
	"upper":   strings.ToUpper,
	"replace": strings.ReplaceAll,
	"trimSuffix": func(suffix, s string) string {
		return strings.TrimSuffix(s, suffix)
	},
}
