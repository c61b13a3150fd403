package inventory

import (
	"fmt"
	"strings"
)

// Kind names an item type and its collection.
type Kind string

const (
	KindDistro  Kind = "distro"
	KindProfile Kind = "profile"
	KindSystem  Kind = "system"
	KindRepo    Kind = "repo"
	KindImage   Kind = "image"
)

// Kinds lists every kind in load order: a kind only references kinds that
// appear before it.
var Kinds = []Kind{KindDistro, KindRepo, KindImage, KindProfile, KindSystem}

// ParseKind accepts a kind name in singular or plural form.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSuffix(strings.ToLower(s), "s"))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown item kind %q", s)
}

// Plural is the collection name, used for directory and key prefixes.
func (k Kind) Plural() string { return string(k) + "s" }

// Ref is a weak reference to an item by kind and name. It never keeps the
// item alive and is resolved through the Graph on every use.
type Ref struct {
	Kind Kind   `yaml:"kind" json:"kind"`
	Name string `yaml:"name" json:"name"`
}

func (r Ref) IsZero() bool { return r.Name == "" }

func (r Ref) String() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Kind) + "/" + r.Name
}

// parentKinds lists the kinds an item of the given kind may name as parent.
func parentKinds(k Kind) []Kind {
	switch k {
	case KindProfile:
		return []Kind{KindDistro, KindProfile}
	case KindSystem:
		return []Kind{KindProfile, KindImage}
	}
	return nil
}
