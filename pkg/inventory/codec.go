package inventory

import (
	"time"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
)

// Record is the storage form of an item. Properties hold InheritToken in
// place of the sentinel so the record can go through any text codec.
type Record struct {
	Kind       Kind                   `yaml:"kind" json:"kind"`
	Name       string                 `yaml:"name" json:"name"`
	UID        string                 `yaml:"uid" json:"uid"`
	Parent     *Ref                   `yaml:"parent,omitempty" json:"parent,omitempty"`
	Created    time.Time              `yaml:"ctime" json:"ctime"`
	Modified   time.Time              `yaml:"mtime" json:"mtime"`
	Properties map[string]interface{} `yaml:"properties" json:"properties"`
	Interfaces []NetworkInterface     `yaml:"interfaces,omitempty" json:"interfaces,omitempty"`
}

// ToRecord encodes item for storage.
func ToRecord(item Item) Record {
	b := item.core()
	rec := Record{
		Kind:       b.kind,
		Name:       b.name,
		UID:        b.uid,
		Created:    b.ctime,
		Modified:   b.mtime,
		Properties: make(map[string]interface{}, len(b.props)),
	}
	if !b.parent.IsZero() {
		p := b.parent
		rec.Parent = &p
	}
	for k, v := range b.props {
		rec.Properties[k] = Encode(v)
	}
	if s, ok := item.(*System); ok {
		rec.Interfaces = s.Interfaces()
	}
	return rec
}

// FromRecord rebuilds an item from storage. Property checks that look at
// the host, such as kernel path existence, are skipped: stored items were
// checked when they were first set. Unknown properties are dropped so that
// records written by newer versions still load.
func FromRecord(rec Record) (Item, error) {
	item, err := New(rec.Kind, rec.Name)
	if err != nil {
		return nil, err
	}
	b := item.core()
	if rec.UID != "" {
		b.uid = rec.UID
	}
	if rec.Parent != nil && !rec.Parent.IsZero() {
		if err := item.SetParent(*rec.Parent); err != nil {
			return nil, err
		}
	}
	schema := SchemaFor(rec.Kind)
	for k, v := range rec.Properties {
		if _, ok := schema.Lookup(k); !ok {
			continue
		}
		if err := b.set(k, v, false); err != nil {
			return nil, err
		}
	}
	if s, ok := item.(*System); ok {
		for _, ni := range rec.Interfaces {
			if err := s.SetInterface(ni); err != nil {
				return nil, err
			}
		}
	}
	if !rec.Created.IsZero() {
		b.ctime = rec.Created
	}
	b.mtime = rec.Modified
	if b.mtime.IsZero() {
		b.mtime = b.ctime
	}
	if b.name == "" {
		return nil, prov_err.NewValidationError(string(rec.Kind), "", "name", "record has no name")
	}
	return item, nil
}

// Properties returns the encoded stored properties of item, with Inherit
// spelled as InheritToken.
func Properties(item Item) map[string]interface{} {
	return ToRecord(item).Properties
}
