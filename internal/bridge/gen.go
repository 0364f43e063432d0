package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goplus/cxxlink/internal/linkage"
	"github.com/goplus/cxxlink/pkgs/buildsys"
	"github.com/goplus/cxxlink/pkgs/buildsys/cmake"
	"github.com/qiniu/x/log"
)

// Files written by the generator.
const (
	ShimFile  = "bridge.cc"
	ListsFile = "CMakeLists.txt"
	GoFile    = "cxxlink_bridge.go"
)

// Generator produces and compiles a bridge.
type Generator struct {
	Runner buildsys.Runner
	// OutDir receives the installed library (lib/).
	OutDir string
	// WorkDir holds the shim sources (src/) and the CMake build tree
	// (build/). Defaults to OutDir.
	WorkDir string
	// GoOut receives the Go bindings. Empty skips them.
	GoOut string
	// PackageRoot is the packaged dependency the shim links against.
	PackageRoot string
	// CMakeGenerator and Toolchain are passed through to cmake when set.
	CMakeGenerator string
	Toolchain      string
}

// Function is one bridged function.
type Function struct {
	Decl   *Decl
	Symbol string // C symbol exported by the shim
	GoName string // exported Go wrapper
}

// Module is a generated and compiled bridge.
type Module struct {
	Library    string
	Package    string
	Dir        string // install prefix
	LibDir     string
	Archive    string
	Source     string
	GoFile     string
	Functions  []Function
	Std        string
	SystemLibs []string
}

// Generate scans the headers named by spec, writes the shim and its
// bindings for the whitelisted functions and compiles the shim into a
// static library. includePaths are searched in order; the first match
// wins.
func (g *Generator) Generate(ctx context.Context, spec *Spec, includePaths []string) (*Module, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	headers, err := Scan(spec.Include, includePaths)
	if err != nil {
		return nil, err
	}
	funcs, err := Select(spec, headers)
	if err != nil {
		return nil, err
	}

	srcDir := filepath.Join(g.workDir(), "src")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return nil, err
	}
	m := &Module{
		Library:    spec.Library,
		Package:    spec.Package,
		Dir:        g.OutDir,
		LibDir:     filepath.Join(g.OutDir, "lib"),
		Source:     filepath.Join(srcDir, ShimFile),
		Functions:  funcs,
		Std:        spec.Std,
		SystemLibs: spec.SystemLibs,
	}
	if len(m.SystemLibs) == 0 {
		m.SystemLibs = cxxRuntime()
	}
	m.Archive = filepath.Join(m.LibDir, archiveName(spec.Library))

	shim, err := renderShim(spec, funcs)
	if err != nil {
		return nil, err
	}
	if err := writeIfChanged(m.Source, shim); err != nil {
		return nil, err
	}
	lists, err := renderLists(spec)
	if err != nil {
		return nil, err
	}
	if err := writeIfChanged(filepath.Join(srcDir, ListsFile), lists); err != nil {
		return nil, err
	}
	if g.GoOut != "" {
		src, err := renderGo(spec, funcs)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(g.GoOut, 0o755); err != nil {
			return nil, err
		}
		m.GoFile = filepath.Join(g.GoOut, GoFile)
		if err := writeIfChanged(m.GoFile, src); err != nil {
			return nil, err
		}
	}

	absPaths := make([]string, len(includePaths))
	for i, dir := range includePaths {
		if absPaths[i], err = filepath.Abs(dir); err != nil {
			return nil, err
		}
	}
	if err := g.compile(ctx, srcDir, absPaths); err != nil {
		return nil, err
	}
	if _, err := os.Stat(m.Archive); err != nil {
		return nil, fmt.Errorf("bridge library %s not produced: %w", spec.Library, err)
	}
	log.Debugf("bridge %s: %d functions in %s", spec.Library, len(funcs), m.Archive)
	return m, nil
}

func (g *Generator) compile(ctx context.Context, srcDir string, includePaths []string) error {
	c := cmake.New(g.Runner, srcDir, filepath.Join(g.workDir(), "build"))
	c.InstallDir(g.OutDir)
	c.BuildType("Release").Generator(g.CMakeGenerator).Toolchain(g.Toolchain)
	c.DefineList("CXXLINK_INCLUDE_DIRS", includePaths)
	c.DefineBool("CMAKE_POSITION_INDEPENDENT_CODE", true)
	if g.PackageRoot != "" {
		c.Use(g.PackageRoot)
	}
	if err := c.Configure(ctx); err != nil {
		return fmt.Errorf("configure bridge: %w", err)
	}
	if err := c.Build(ctx); err != nil {
		return fmt.Errorf("compile bridge: %w", err)
	}
	if err := c.Install(ctx); err != nil {
		return fmt.Errorf("install bridge: %w", err)
	}
	return nil
}

func (g *Generator) workDir() string {
	if g.WorkDir != "" {
		return g.WorkDir
	}
	return g.OutDir
}

// Emit sends the directives linking the bridge to sink.
func (m *Module) Emit(sink linkage.Sink) {
	sink.Emit(linkage.Directive{Kind: linkage.LinkSearch, Value: "native=" + m.LibDir})
	sink.Emit(linkage.Directive{Kind: linkage.LinkLib, Value: linkage.LibValue(linkage.Static, m.Library)})
	sink.Emit(linkage.Directive{Kind: linkage.CxxStd, Value: "-std=" + m.Std})
	for _, lib := range m.SystemLibs {
		sink.Emit(linkage.Directive{Kind: linkage.LinkLib, Value: linkage.LibValue(linkage.Dylib, lib)})
	}
}

// Scan parses the named headers and every header they include that
// resolves inside includePaths. Includes that do not resolve, such as
// system headers, are ignored.
func Scan(names, includePaths []string) ([]*Header, error) {
	var headers []*Header
	seen := make(map[string]bool)
	var visit func(path string) error
	visit = func(path string) error {
		if seen[path] {
			return nil
		}
		seen[path] = true
		h, err := ParseHeader(path)
		if err != nil {
			return err
		}
		headers = append(headers, h)
		for _, inc := range h.Includes {
			dirs := append([]string{filepath.Dir(path)}, includePaths...)
			if found, ok := resolve(inc, dirs); ok {
				if err := visit(found); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, name := range names {
		path, ok := resolve(name, includePaths)
		if !ok {
			return nil, fmt.Errorf("%w: %s (searched %s)", ErrHeaderNotFound, name, strings.Join(includePaths, ", "))
		}
		if err := visit(path); err != nil {
			return nil, err
		}
	}
	return headers, nil
}

func resolve(name string, dirs []string) (string, bool) {
	if filepath.IsAbs(name) {
		_, err := os.Stat(name)
		return name, err == nil
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, name)
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			return path, true
		}
	}
	return "", false
}

// Select picks the whitelisted functions out of the scanned headers.
// A name in generate must resolve to exactly one supported declaration.
// A namespace in generate_ns contributes every supported, non-overloaded
// function declared in it or below it.
func Select(spec *Spec, headers []*Header) ([]Function, error) {
	byName := make(map[string][]*Decl)
	var order []string
	for _, h := range headers {
	next:
		for _, d := range h.Decls {
			name := d.QualifiedName()
			for _, prev := range byName[name] {
				if prev.signature() == d.signature() {
					continue next
				}
			}
			if byName[name] == nil {
				order = append(order, name)
			}
			byName[name] = append(byName[name], d)
		}
	}

	var decls []*Decl
	picked := make(map[string]bool)
	pick := func(d *Decl) {
		if !picked[d.QualifiedName()] {
			picked[d.QualifiedName()] = true
			decls = append(decls, d)
		}
	}
	for _, name := range spec.Generate {
		name = strings.TrimPrefix(name, "::")
		found := byName[name]
		switch {
		case len(found) == 0:
			return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
		case len(found) > 1:
			return nil, fmt.Errorf("%w: %s is overloaded", ErrInvalidSpec, name)
		case found[0].Err != nil:
			return nil, found[0].Err
		}
		pick(found[0])
	}
	for _, ns := range spec.GenerateNS {
		ns = strings.TrimPrefix(ns, "::")
		n := 0
		for _, name := range order {
			found := byName[name]
			d := found[0]
			if d.Namespace != ns && !strings.HasPrefix(d.Namespace, ns+"::") {
				continue
			}
			switch {
			case len(found) > 1:
				log.Debugf("bridge: skip overloaded %s", name)
				continue
			case d.Err != nil:
				log.Debugf("bridge: skip %v", d.Err)
				continue
			}
			pick(d)
			n++
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: no bridgeable function in namespace %s", ErrSymbolNotFound, ns)
		}
	}
	return nameFunctions(decls)
}

func nameFunctions(decls []*Decl) ([]Function, error) {
	count := make(map[string]int)
	for _, d := range decls {
		count[camel(d.Name)]++
	}
	funcs := make([]Function, len(decls))
	owner := make(map[string]*Decl)
	for i, d := range decls {
		goName := camel(d.Name)
		if count[goName] > 1 {
			goName = camel(strings.ReplaceAll(d.Namespace, "::", "_")) + goName
		}
		if prev, ok := owner[goName]; ok {
			return nil, fmt.Errorf("%w: %s and %s both map to Go name %s",
				ErrInvalidSpec, prev.QualifiedName(), d.QualifiedName(), goName)
		}
		owner[goName] = d
		sym := symbol(d)
		if prev, ok := owner[sym]; ok {
			return nil, fmt.Errorf("%w: %s and %s both map to C symbol %s",
				ErrInvalidSpec, prev.QualifiedName(), d.QualifiedName(), sym)
		}
		owner[sym] = d
		funcs[i] = Function{
			Decl:   d,
			Symbol: sym,
			GoName: goName,
		}
	}
	return funcs, nil
}

func symbol(d *Decl) string {
	parts := []string{"cxxlink"}
	if d.Namespace != "" {
		parts = append(parts, strings.ReplaceAll(d.Namespace, "::", "_"))
	}
	return strings.Join(append(parts, d.Name), "_")
}

// camel turns a C++ identifier into an exported Go identifier:
// "get_answer" becomes "GetAnswer".
func camel(name string) string {
	var b strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	if b.Len() == 0 {
		return "X"
	}
	return b.String()
}

func archiveName(library string) string {
	if runtime.GOOS == "windows" {
		return library + ".lib"
	}
	return "lib" + library + ".a"
}

// cxxRuntime names the C++ runtime libraries the static shim depends on.
func cxxRuntime() []string {
	switch runtime.GOOS {
	case "darwin", "ios", "freebsd", "openbsd":
		return []string{"c++"}
	case "windows":
		return nil
	default:
		return []string{"stdc++"}
	}
}

func writeIfChanged(path string, data []byte) error {
	if old, err := os.ReadFile(path); err == nil && string(old) == string(data) {
		return nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
