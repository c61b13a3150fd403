package blender

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/inventory"
)

// View is the fully resolved, read-only attribute set of one item. Every
// accessor returns copies; a View is safe to share between goroutines.
type View struct {
	Ref        inventory.Ref
	UID        string
	Generation uint64
	data       map[string]interface{}
}

// Data returns a deep copy of every resolved key, suitable as template
// metadata or for a descriptor file.
func (v *View) Data() map[string]interface{} {
	out := make(map[string]interface{}, len(v.data))
	for k, val := range v.data {
		out[k] = inventory.CopyValue(val)
	}
	return out
}

func (v *View) Get(key string) interface{} {
	return inventory.CopyValue(v.data[key])
}

func (v *View) Has(key string) bool {
	_, ok := v.data[key]
	return ok
}

func (v *View) String(key string) string {
	switch s := v.data[key].(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func (v *View) Bool(key string) bool {
	b, _ := v.data[key].(bool)
	return b
}

func (v *View) List(key string) []string {
	l, _ := v.data[key].([]string)
	out := make([]string, len(l))
	copy(out, l)
	return out
}

func (v *View) Map(key string) map[string]interface{} {
	m, _ := v.data[key].(map[string]interface{})
	if m == nil {
		return map[string]interface{}{}
	}
	return inventory.CopyValue(m).(map[string]interface{})
}

// Interfaces returns the resolved interface maps of a system, in stored
// order.
func (v *View) Interfaces() []map[string]interface{} {
	l, _ := v.data["interfaces"].([]interface{})
	out := make([]map[string]interface{}, 0, len(l))
	for _, e := range l {
		if m, ok := inventory.CopyValue(e).(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// KernelOptionsString renders a kernel option map as a command line:
// keys sorted, valueless keys bare, list values repeated per element.
func KernelOptionsString(opts map[string]interface{}) string {
	var parts []string
	for _, k := range inventory.SortedKeys(opts) {
		switch val := opts[k].(type) {
		case nil:
			parts = append(parts, k)
		case string:
			if val == "" {
				parts = append(parts, k)
			} else {
				parts = append(parts, k+"="+val)
			}
		case []string:
			for _, e := range val {
				parts = append(parts, k+"="+e)
			}
		case []interface{}:
			for _, e := range val {
				parts = append(parts, fmt.Sprintf("%s=%v", k, e))
			}
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, val))
		}
	}
	return strings.Join(parts, " ")
}

func sortedRepoData(repos []map[string]interface{}) {
	sort.SliceStable(repos, func(i, j int) bool {
		pi, _ := repos[i]["priority"].(int)
		pj, _ := repos[j]["priority"].(int)
		if pi != pj {
			return pi > pj
		}
		return repos[i]["name"].(string) < repos[j]["name"].(string)
	})
}
