// Package inventory models the provisioning inventory: distros, profiles,
// systems, repos and images, and the collections that own them.
//
// Items refer to their parent by name only. Every stored item is owned by
// exactly one Collection; callers get deep copies from Find and ToList and
// change stored state only through Collection methods.
package inventory

import (
	"regexp"
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	"github.com/google/uuid"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.:+-]+$`)

// Item is one inventory entity.
type Item interface {
	Kind() Kind
	Name() string
	UID() string
	Parent() Ref
	Ref() Ref
	Schema() Schema
	// Get returns a copy of the stored value of prop, which may be Inherit.
	// Unknown properties return nil.
	Get(prop string) interface{}
	// Set validates and stores v. v may be Inherit for inheritable properties.
	Set(prop string, v interface{}) error
	SetParent(parent Ref) error
	Validate() error
	Clone() Item
	Created() time.Time
	Modified() time.Time

	core() *base
}

type base struct {
	kind   Kind
	name   string
	uid    string
	parent Ref
	props  map[string]interface{}
	ctime  time.Time
	mtime  time.Time
}

func newBase(kind Kind, name string) base {
	now := time.Now().UTC()
	b := base{
		kind:  kind,
		name:  name,
		uid:   uuid.NewString(),
		props: make(map[string]interface{}),
		ctime: now,
		mtime: now,
	}
	for _, p := range SchemaFor(kind) {
		if p.Inheritable {
			b.props[p.Name] = Inherit
		} else if p.Default != nil {
			b.props[p.Name] = deepCopyValue(p.Default)
		} else {
			b.props[p.Name], _ = coerce(p.Kind, nil)
		}
	}
	return b
}

func (b *base) core() *base        { return b }
func (b *base) Kind() Kind          { return b.kind }
func (b *base) Name() string        { return b.name }
func (b *base) UID() string         { return b.uid }
func (b *base) Parent() Ref         { return b.parent }
func (b *base) Ref() Ref            { return Ref{Kind: b.kind, Name: b.name} }
func (b *base) Schema() Schema      { return SchemaFor(b.kind) }
func (b *base) Created() time.Time  { return b.ctime }
func (b *base) Modified() time.Time { return b.mtime }

func (b *base) Get(prop string) interface{} {
	v, ok := b.props[prop]
	if !ok {
		return nil
	}
	return deepCopyValue(v)
}

func (b *base) Set(prop string, v interface{}) error {
	return b.set(prop, v, true)
}

func (b *base) set(prop string, v interface{}, check bool) error {
	p, ok := SchemaFor(b.kind).Lookup(prop)
	if !ok {
		return prov_err.NewValidationError(string(b.kind), b.name, prop, "unknown property")
	}
	val, err := coerce(p.Kind, v)
	if err != nil {
		return prov_err.NewValidationError(string(b.kind), b.name, prop, err.Error())
	}
	if err := p.validate(val); err != nil {
		return prov_err.NewValidationError(string(b.kind), b.name, prop, err.Error())
	}
	if check && p.Check != nil && !IsInherit(val) {
		if err := p.Check(val); err != nil {
			return prov_err.NewValidationError(string(b.kind), b.name, prop, err.Error())
		}
	}
	b.props[prop] = val
	b.mtime = time.Now().UTC()
	return nil
}

func (b *base) SetParent(parent Ref) error {
	if parent.IsZero() {
		b.parent = Ref{}
		return nil
	}
	allowed := parentKinds(b.kind)
	if !kindIn(allowed, parent.Kind) {
		return prov_err.NewValidationError(string(b.kind), b.name, "parent", "a %s cannot have a %s parent", b.kind, parent.Kind)
	}
	b.parent = parent
	return nil
}

func kindIn(list []Kind, k Kind) bool {
	for _, e := range list {
		if e == k {
			return true
		}
	}
	return false
}

// validateCommon covers the checks every kind shares.
func (b *base) validateCommon() error {
	if b.name == "" {
		return prov_err.NewValidationError(string(b.kind), b.name, "name", "name is required")
	}
	if !namePattern.MatchString(b.name) {
		return prov_err.NewValidationError(string(b.kind), b.name, "name", "name may only contain letters, digits and _ . : + -")
	}
	if b.uid == "" {
		return prov_err.NewValidationError(string(b.kind), b.name, "uid", "uid is required")
	}
	for _, p := range SchemaFor(b.kind) {
		v, ok := b.props[p.Name]
		if !ok {
			continue
		}
		if err := p.validate(v); err != nil {
			return prov_err.NewValidationError(string(b.kind), b.name, p.Name, err.Error())
		}
	}
	if kinds := parentKinds(b.kind); kinds == nil && !b.parent.IsZero() {
		return prov_err.NewValidationError(string(b.kind), b.name, "parent", "a %s has no parent", b.kind)
	}
	return nil
}

func (b *base) requireString(prop string) error {
	if s, _ := b.props[prop].(string); s == "" {
		return prov_err.NewValidationError(string(b.kind), b.name, prop, "%s is required", prop)
	}
	return nil
}

func (b *base) requireParent() error {
	if b.parent.IsZero() {
		return prov_err.NewValidationError(string(b.kind), b.name, "parent", "a %s needs a parent", b.kind)
	}
	return nil
}

func (b base) clone() base {
	out := b
	out.props = deepCopyMap(b.props)
	return out
}

func (b *base) str(prop string) string {
	s, _ := b.props[prop].(string)
	return s
}

func (b *base) list(prop string) []string {
	l, _ := b.props[prop].([]string)
	out := make([]string, len(l))
	copy(out, l)
	return out
}

// New constructs an empty item of kind with a fresh UID.
func New(kind Kind, name string) (Item, error) {
	switch kind {
	case KindDistro:
		return NewDistro(name), nil
	case KindProfile:
		return NewProfile(name), nil
	case KindSystem:
		return NewSystem(name), nil
	case KindRepo:
		return NewRepo(name), nil
	case KindImage:
		return NewImage(name), nil
	}
	return nil, prov_err.NewValidationError(string(kind), name, "kind", "unknown item kind")
}
