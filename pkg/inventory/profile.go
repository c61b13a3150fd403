package inventory

// Profile binds a distro, or another profile, to an answer-file template
// and install settings.
type Profile struct{ base }

func NewProfile(name string) *Profile {
	return &Profile{base: newBase(KindProfile, name)}
}

// Repos returns the names of the repos the profile installs from.
func (p *Profile) Repos() []string { return p.list("repos") }

// EnableMenu reports whether the profile is listed on the default boot menu.
func (p *Profile) EnableMenu() bool {
	b, _ := p.props["enable_menu"].(bool)
	return b
}

// IsSubProfile reports whether the parent is another profile.
func (p *Profile) IsSubProfile() bool { return p.parent.Kind == KindProfile }

func (p *Profile) Validate() error {
	if err := p.validateCommon(); err != nil {
		return err
	}
	return p.requireParent()
}

func (p *Profile) Clone() Item {
	return &Profile{base: p.base.clone()}
}
