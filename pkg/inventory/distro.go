package inventory

// Distro is a kernel/initrd pair. It is always the root of a profile chain.
type Distro struct{ base }

func NewDistro(name string) *Distro {
	return &Distro{base: newBase(KindDistro, name)}
}

func (d *Distro) Kernel() string { return d.str("kernel") }
func (d *Distro) Initrd() string { return d.str("initrd") }
func (d *Distro) Arch() string   { return d.str("arch") }
func (d *Distro) Breed() string  { return d.str("breed") }

func (d *Distro) Validate() error {
	if err := d.validateCommon(); err != nil {
		return err
	}
	if err := d.requireString("kernel"); err != nil {
		return err
	}
	return d.requireString("initrd")
}

func (d *Distro) Clone() Item {
	return &Distro{base: d.base.clone()}
}
