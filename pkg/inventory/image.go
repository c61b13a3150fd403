package inventory

// Image is a prebuilt installable image. Systems may boot one directly
// instead of going through a profile.
type Image struct{ base }

func NewImage(name string) *Image {
	return &Image{base: newBase(KindImage, name)}
}

func (i *Image) File() string      { return i.str("file") }
func (i *Image) ImageType() string { return i.str("image_type") }

func (i *Image) Validate() error {
	if err := i.validateCommon(); err != nil {
		return err
	}
	return i.requireString("file")
}

func (i *Image) Clone() Item {
	return &Image{base: i.base.clone()}
}
