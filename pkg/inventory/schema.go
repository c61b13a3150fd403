package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ValueKind is the shape of a property value.
type ValueKind int

const (
	String ValueKind = iota
	Int
	Bool
	List
	Map
)

func (k ValueKind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Map:
		return "map"
	}
	return "unknown"
}

// Property describes one settable field of an item kind.
//
// Inheritable properties may hold Inherit and are blended down the parent
// chain. Default is the value a freshly constructed item starts with for
// non-inheritable properties; inheritable ones always start at Inherit.
// Check, when set, is run by Set on concrete values but not when an item is
// decoded from storage.
type Property struct {
	Name        string
	Kind        ValueKind
	Inheritable bool
	Default     interface{}
	Enum        []string
	Check       func(v interface{}) error
}

// Schema is the ordered property list of one item kind.
type Schema []Property

// Lookup returns the property named name.
func (s Schema) Lookup(name string) (Property, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Inheritable returns the inheritable subset in declaration order.
func (s Schema) Inheritable() Schema {
	var out Schema
	for _, p := range s {
		if p.Inheritable {
			out = append(out, p)
		}
	}
	return out
}

func (p Property) validate(v interface{}) error {
	if IsInherit(v) {
		if !p.Inheritable {
			return fmt.Errorf("%s is not inheritable", p.Name)
		}
		return nil
	}
	if len(p.Enum) > 0 {
		switch val := v.(type) {
		case string:
			if !contains(p.Enum, val) {
				return fmt.Errorf("%s must be one of %v, got %q", p.Name, p.Enum, val)
			}
		case []string:
			for _, e := range val {
				if !contains(p.Enum, e) {
					return fmt.Errorf("%s entries must be one of %v, got %q", p.Name, p.Enum, e)
				}
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

var (
	kernelPattern = regexp.MustCompile(`^(vmlinu[xz].*|kernel.*|linux.*|bzImage.*|.*\.kernel)$`)
	initrdPattern = regexp.MustCompile(`^(initrd.*|initramfs.*|.*\.img|.*\.gz|.*\.xz)$`)
)

func bootFileCheck(what string, pattern *regexp.Regexp) func(v interface{}) error {
	return func(v interface{}) error {
		path, _ := v.(string)
		if path == "" {
			return nil
		}
		if !pattern.MatchString(filepath.Base(path)) {
			return fmt.Errorf("%s %s does not look like a %s", what, path, what)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%s %s: %w", what, path, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%s %s is a directory", what, path)
		}
		return nil
	}
}

var (
	archEnum       = []string{"i386", "x86_64", "ia64", "ppc", "ppc64", "ppc64le", "s390x", "arm", "aarch64"}
	bootLoaderEnum = []string{"pxe", "ipxe", "grub"}
)

// bootable is shared by every kind that ends up on a boot-loader menu.
func bootable() Schema {
	return Schema{
		{Name: "comment", Kind: String, Inheritable: true},
		{Name: "owners", Kind: List, Inheritable: true},
		{Name: "kernel_options", Kind: Map, Inheritable: true},
		{Name: "kernel_options_post", Kind: Map, Inheritable: true},
		{Name: "autoinstall_meta", Kind: Map, Inheritable: true},
		{Name: "boot_loaders", Kind: List, Inheritable: true, Enum: bootLoaderEnum},
		{Name: "mgmt_classes", Kind: List, Inheritable: true},
		{Name: "template_files", Kind: Map, Inheritable: true},
	}
}

var (
	distroSchema = append(bootable(),
		Property{Name: "kernel", Kind: String, Check: bootFileCheck("kernel", kernelPattern)},
		Property{Name: "initrd", Kind: String, Check: bootFileCheck("initrd", initrdPattern)},
		Property{Name: "arch", Kind: String, Default: "x86_64", Enum: archEnum},
		Property{Name: "breed", Kind: String, Default: "redhat"},
		Property{Name: "os_version", Kind: String},
		Property{Name: "source_repos", Kind: List, Default: []string{}},
	)

	profileSchema = append(bootable(),
		Property{Name: "autoinstall", Kind: String, Inheritable: true},
		Property{Name: "repos", Kind: List, Default: []string{}},
		Property{Name: "virt_type", Kind: String, Default: "kvm", Enum: []string{"kvm", "qemu", "xenpv", "xenfv", "vmware", "openvz", "auto"}},
		Property{Name: "virt_ram", Kind: Int, Default: 512},
		Property{Name: "enable_menu", Kind: Bool, Default: true},
		Property{Name: "name_servers", Kind: List, Default: []string{}},
		Property{Name: "proxy", Kind: String},
	)

	systemSchema = append(bootable(),
		Property{Name: "autoinstall", Kind: String, Inheritable: true},
		Property{Name: "hostname", Kind: String},
		Property{Name: "gateway", Kind: String},
		Property{Name: "name_servers", Kind: List, Default: []string{}},
		Property{Name: "status", Kind: String, Default: "production", Enum: []string{"development", "testing", "acceptance", "production"}},
	)

	repoSchema = Schema{
		{Name: "comment", Kind: String, Inheritable: true},
		{Name: "owners", Kind: List, Inheritable: true},
		{Name: "mirror", Kind: String},
		{Name: "breed", Kind: String, Default: "yum", Enum: []string{"rsync", "rhn", "yum", "apt", "wget"}},
		{Name: "arch", Kind: String},
		{Name: "priority", Kind: Int, Default: 99, Check: func(v interface{}) error {
			if n, _ := v.(int); n < 1 || n > 99 {
				return fmt.Errorf("priority must be between 1 and 99, got %v", v)
			}
			return nil
		}},
		{Name: "mirror_locally", Kind: Bool, Default: true},
		{Name: "yumopts", Kind: Map, Default: map[string]interface{}{}},
		{Name: "rpm_list", Kind: List, Default: []string{}},
		{Name: "environment", Kind: Map, Default: map[string]interface{}{}},
	}

	imageSchema = append(bootable(),
		Property{Name: "file", Kind: String},
		Property{Name: "image_type", Kind: String, Default: "iso", Enum: []string{"iso", "direct", "memdisk", "virt-clone"}},
		Property{Name: "arch", Kind: String, Default: "x86_64", Enum: archEnum},
		Property{Name: "breed", Kind: String},
		Property{Name: "os_version", Kind: String},
	)
)

// SchemaFor returns the property schema of kind.
func SchemaFor(kind Kind) Schema {
	switch kind {
	case KindDistro:
		return distroSchema
	case KindProfile:
		return profileSchema
	case KindSystem:
		return systemSchema
	case KindRepo:
		return repoSchema
	case KindImage:
		return imageSchema
	}
	return nil
}
