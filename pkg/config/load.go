package config

import (
	"errors"
	"os"
	"strings"

	"github.com/CodeMonkeyCybersecurity/prov/pkg/prov_err"
	cerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PROV_SERVER.
const EnvPrefix = "PROV"

// DefaultPath is read when no --config flag is given.
const DefaultPath = "/etc/prov/settings.yaml"

var validate = validator.New()

// Default returns the built-in settings, ignoring files and environment.
func Default() *Settings {
	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		// the defaults table decodes by construction
		panic(err)
	}
	return s
}

// Load reads settings from path (skipped when it does not exist), then the
// environment, then any flags in fs whose names match a setting.
func Load(path string, fs *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) || path != DefaultPath {
				return nil, prov_err.NewFatalError("cannot read settings "+path, err,
					"pass --config with a readable YAML file")
			}
		}
	}

	if fs != nil {
		known := Defaults()
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, ok := known[key]; !ok {
				return
			}
			if err := v.BindPFlag(key, f); err != nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, cerr.Wrap(bindErr, "bind flags")
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, prov_err.WrapValidationError(cerr.Wrap(err, "decode settings"))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks field constraints and returns a ValidationError naming the
// first offending setting.
func (s *Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return prov_err.WrapValidationError(
			prov_err.NewValidationError("settings", "", fe.Field(), "failed %q constraint (value %v)", fe.Tag(), fe.Value()))
	}
	return prov_err.WrapValidationError(err)
}
