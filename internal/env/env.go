// Package env names the environment variables cxxlink reads.
package env

import (
	"fmt"
	"os"
	"strconv"
)

const (
	ConanProfile = "CONAN_PROFILE"   // build profile
	OutDir       = "CXXLINK_OUT_DIR" // artifact output root
	Debug        = "CXXLINK_DEBUG"   // debug build, parsed by strconv.ParseBool
)

// Watched lists the variables whose change must trigger a rebuild.
func Watched() []string {
	return []string{ConanProfile, OutDir, Debug}
}

// Lookup returns the value of key when it is set to a non-empty string.
func Lookup(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

// Bool returns the boolean value of key. set is false when key is unset or
// empty.
func Bool(key string) (value, set bool, err error) {
	v, ok := Lookup(key)
	if !ok {
		return false, false, nil
	}
	value, err = strconv.ParseBool(v)
	if err != nil {
		return false, true, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return value, true, nil
}
