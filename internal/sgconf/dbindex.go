// Package sgconf resolves which of the up to five independent registries a
// command targets, per spec.md §6/§9: a flag takes precedence over the
// TM_DB_NUM environment variable, which takes precedence over the default,
// unsuffixed database.
package sgconf

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

// EnvVar is the environment variable spec.md §6 names as the fallback
// source for the database index.
const EnvVar = "TM_DB_NUM"

// Resolve returns the database index to use: flagValue if set (non-zero),
// else the value of envValue (the content of TM_DB_NUM) if it parses,
// else 0 (the default, unsuffixed database). It returns an error if a
// supplied index (from either source) is outside [1,5].
func Resolve(flagValue int, envValue string) (int, error) {
	if flagValue != 0 {
		return validate(flagValue)
	}
	if envValue == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(envValue)
	if err != nil {
		return 0, errors.Wrapf(err, "%s must be an integer, got %q", EnvVar, envValue)
	}
	return validate(n)
}

func validate(n int) (int, error) {
	if n < 1 || n > 5 {
		return 0, errors.Newf("database index must be between 1 and 5, got %d", n)
	}
	return n, nil
}
