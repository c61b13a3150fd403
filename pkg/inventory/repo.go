package inventory

// Repo is a package repository profiles may install from.
type Repo struct{ base }

func NewRepo(name string) *Repo {
	return &Repo{base: newBase(KindRepo, name)}
}

func (r *Repo) Mirror() string { return r.str("mirror") }

func (r *Repo) Priority() int {
	n, _ := r.props["priority"].(int)
	return n
}

func (r *Repo) Validate() error {
	if err := r.validateCommon(); err != nil {
		return err
	}
	return r.requireString("mirror")
}

func (r *Repo) Clone() Item {
	return &Repo{base: r.base.clone()}
}
