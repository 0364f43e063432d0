package linkage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/cxxlink/pkgs/buildsys/conan"
)

// ErrMalformedName is returned for a library file whose link name cannot be
// derived, such as "lib.a".
var ErrMalformedName = errors.New("malformed library file name")

// Link modes used in LinkLib values.
const (
	Static = "static"
	Dylib  = "dylib"
)

// Library is a linkable artifact found in a library directory.
type Library struct {
	Name string // link name, "foo" for libfoo.a
	Mode string // Static or Dylib
	File string
}

// LibValue formats the LinkLib value for a library.
func LibValue(mode, name string) string {
	return mode + "=" + name
}

// ParseLibValue splits a LinkLib value. A value without a mode, as Conan
// prescribes them, yields an empty mode.
func ParseLibValue(v string) (mode, name string) {
	if m, n, ok := strings.Cut(v, "="); ok {
		return m, n
	}
	return "", v
}

// EmitLibs scans root/sub and emits one search path and one link-lib
// directive per linkable library. When a name exists both as a static and a
// shared library the static one is used.
func EmitLibs(sink Sink, root, sub string) error {
	dir := filepath.Join(root, sub)
	libs, err := ScanLibs(dir)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	sink.Emit(Directive{LinkSearch, "native=" + abs})
	for _, lib := range libs {
		sink.Emit(Directive{LinkLib, LibValue(lib.Mode, lib.Name)})
	}
	return nil
}

// ScanLibs lists the linkable libraries directly inside dir, sorted by name.
func ScanLibs(dir string) ([]Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var libs []Library
	index := make(map[string]int)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, mode, ok, err := libName(e.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		lib := Library{Name: name, Mode: mode, File: filepath.Join(dir, e.Name())}
		if i, dup := index[name]; dup {
			if mode == Static {
				libs[i] = lib
			}
			continue
		}
		index[name] = len(libs)
		libs = append(libs, lib)
	}
	return libs, nil
}

// libName derives the link name of a library file. ok is false for files
// that are not link inputs.
func libName(file string) (name, mode string, ok bool, err error) {
	switch {
	case strings.HasSuffix(file, ".a"):
		name, mode = strings.TrimSuffix(file, ".a"), Static
	case strings.HasSuffix(file, ".dylib"):
		name, mode = strings.TrimSuffix(file, ".dylib"), Dylib
	case strings.HasSuffix(file, ".so"):
		name, mode = strings.TrimSuffix(file, ".so"), Dylib
	case strings.Contains(file, ".so."):
		name, mode = file[:strings.Index(file, ".so.")], Dylib
	case strings.HasSuffix(file, ".lib"):
		name = strings.TrimSuffix(file, ".lib")
		if name == "" {
			return "", "", false, fmt.Errorf("%w: %s", ErrMalformedName, file)
		}
		return name, Static, true, nil
	default:
		return "", "", false, nil
	}
	if !strings.HasPrefix(name, "lib") || len(name) == len("lib") {
		return "", "", false, fmt.Errorf("%w: %s", ErrMalformedName, file)
	}
	return strings.TrimPrefix(name, "lib"), mode, true, nil
}

// EmitBuildInfo propagates the link directives Conan prescribes for the
// resolved dependencies, verbatim and in dependency order.
func EmitBuildInfo(sink Sink, info *conan.BuildInfo) {
	for _, dep := range info.Dependencies {
		for _, dir := range dep.LibPaths {
			sink.Emit(Directive{LinkSearch, "native=" + dir})
		}
		for _, lib := range dep.Libs {
			sink.Emit(Directive{LinkLib, lib})
		}
		for _, lib := range dep.SystemLibs {
			sink.Emit(Directive{LinkLib, lib})
		}
		if dep.RootPath != "" {
			sink.Emit(Directive{Metadata, dep.Name + "_root=" + dep.RootPath})
		}
	}
}
