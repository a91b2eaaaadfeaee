package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

var envRef = regexp.MustCompile(`\$\{(.*?)\}`)

// LookupFunc resolves the value of a variable.
type LookupFunc func(string) (string, bool)

// Interpolate replaces ${NAME} references in val with values from lookup.
// ${NAME:-default} falls back to default when NAME is unset or empty, and
// ${!NAME} makes the value required. Unresolved references without a
// default are left untouched.
func Interpolate(val string, lookup LookupFunc) (string, error) {
	if val == "" {
		return val, nil
	}
	var err error
	val = envRef.ReplaceAllStringFunc(val, func(s string) string {
		key := envRef.FindStringSubmatch(s)[1]
		def := s
		var required bool
		if strings.HasPrefix(key, "!") {
			key = key[1:]
			required = true
		}
		if idx := strings.Index(key, ":-"); idx != -1 {
			def = key[idx+2:]
			key = key[:idx]
		}
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		if required {
			err = errors.CombineErrors(err, errors.Newf("required value not found for key '%s'", key))
		}
		return def
	})
	if err != nil {
		return "", err
	}
	return val, nil
}

// InterpolateEnv is Interpolate against the process environment.
func InterpolateEnv(val string) (string, error) {
	return Interpolate(val, os.LookupEnv)
}
