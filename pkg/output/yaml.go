package output

import (
	"io"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_io"
	cerr "github.com/cockroachdb/errors"
)

// YAMLTo writes data as a YAML document to w.
func YAMLTo(w io.Writer, data interface{}) error {
	b, err := prov_io.MarshalYAML(data)
	if err != nil {
		return cerr.Wrap(err, "encode output")
	}
	_, err = w.Write(b)
	return err
}
