// Package build runs the cxxlink pipeline:
//
//	Install → Build → Package → Link → Bridge → Copy → Finish
//
// Each step returns a value whose only method is the next step, so the
// steps cannot be reordered or skipped.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goplus/cxxlink/internal/artifact"
	"github.com/goplus/cxxlink/internal/bridge"
	"github.com/goplus/cxxlink/internal/env"
	"github.com/goplus/cxxlink/internal/linkage"
	"github.com/goplus/cxxlink/pkgs/buildsys"
	"github.com/goplus/cxxlink/pkgs/buildsys/conan"
	"github.com/qiniu/x/log"
)

// Options configures one run.
type Options struct {
	Recipe   string   // conanfile.py
	BuildDir string   // conan install and build folder
	OutDir   string   // conan package folder, the artifact root
	Profile  string   // empty means conan.DefaultProfile
	Options  []string // key=value build options
	Bridge   string   // bridge spec (HCL)
	GoOut    string   // Go package receiving bindings, artifacts and cgo flags
	Debug    bool     // add a runtime search path for the pre-copy lib dir
	Force    bool     // ignore the run cache
	Watched  []string // further inputs whose change invalidates the cache

	CMakeGenerator string // cmake -G for the bridge build
	CMakeToolchain string // CMAKE_TOOLCHAIN_FILE for the bridge build
}

// Result describes a finished run.
type Result struct {
	Layout     artifact.Layout
	Bridge     *bridge.Module // nil when replayed from the cache
	CgoFile    string
	Directives []linkage.Directive
	Cached     bool
}

// Pipeline drives one run. Directives are printed to the writer given to
// New as they are produced.
type Pipeline struct {
	runner buildsys.Runner
	conan  *conan.Conan
	opts   Options
	set    linkage.Set
	sink   linkage.Sink

	info   *conan.BuildInfo
	layout artifact.Layout
	module *bridge.Module
	spec   *bridge.Spec
}

// New returns a pipeline running external tools through runner.
func New(runner buildsys.Runner, out io.Writer, opts Options) *Pipeline {
	if opts.Profile == "" {
		opts.Profile = conan.DefaultProfile
	}
	p := &Pipeline{
		runner: runner,
		conan:  conan.New(runner),
		opts:   opts,
	}
	p.sink = linkage.Tee{&p.set, linkage.Printer{W: out}}
	return p
}

// Run executes every step under the build-directory lock. An unchanged
// run whose outputs are intact is replayed from the run cache unless
// Options.Force is set.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := os.MkdirAll(p.opts.BuildDir, 0o755); err != nil {
		return nil, fail(PhaseEnvironment, err)
	}
	unlock, err := lockFile(filepath.Join(p.opts.BuildDir, lockName))
	if err != nil {
		return nil, fail(PhaseEnvironment, fmt.Errorf("lock build dir: %w", err))
	}
	defer unlock()

	key, err := runKey(&p.opts)
	if err != nil {
		return nil, fail(PhaseEnvironment, err)
	}
	cachePath := filepath.Join(p.opts.BuildDir, cacheFile)
	if !p.opts.Force {
		if res, ok := p.replay(cachePath, key); ok {
			return res, nil
		}
	}

	installed, err := p.Install(ctx)
	if err != nil {
		return nil, err
	}
	built, err := installed.Build(ctx)
	if err != nil {
		return nil, err
	}
	packaged, err := built.Package(ctx)
	if err != nil {
		return nil, err
	}
	linked, err := packaged.Link(ctx)
	if err != nil {
		return nil, err
	}
	bridged, err := linked.Bridge(ctx)
	if err != nil {
		return nil, err
	}
	copied, err := bridged.Copy(ctx)
	if err != nil {
		return nil, err
	}
	res, err := copied.Finish(ctx)
	if err != nil {
		return nil, err
	}

	outputs := []string{res.CgoFile, p.module.Archive}
	if p.module.GoFile != "" {
		outputs = append(outputs, p.module.GoFile)
	}
	copiedFiles, err := treeFiles(artifact.Locate(p.opts.GoOut))
	if err == nil {
		err = saveRunCache(cachePath, newRunCache(key, res.Directives, append(outputs, copiedFiles...)))
	}
	if err != nil {
		log.Warnf("cannot save run cache: %v", err)
	}
	return res, nil
}

func (p *Pipeline) replay(cachePath, key string) (*Result, bool) {
	cache, err := loadRunCache(cachePath)
	if err != nil || cache.Key != key || !cache.intact() {
		return nil, false
	}
	layout := artifact.Locate(p.opts.OutDir)
	if layout.Check() != nil || artifact.Locate(p.opts.GoOut).Check() != nil {
		return nil, false
	}
	log.Infof("%s is up to date", p.opts.Recipe)
	for _, d := range cache.Directives {
		p.sink.Emit(d)
	}
	return &Result{
		Layout:     layout,
		CgoFile:    filepath.Join(p.opts.GoOut, linkage.CgoFile),
		Directives: p.set.All(),
		Cached:     true,
	}, true
}

// Installed is the result of the install step.
type Installed struct{ p *Pipeline }

// Built is the result of the build step.
type Built struct{ p *Pipeline }

// Packaged is the result of the package step.
type Packaged struct{ p *Pipeline }

// Linked is the result of the pre-copy linkage step.
type Linked struct{ p *Pipeline }

// Bridged is the result of the bridge step.
type Bridged struct{ p *Pipeline }

// Copied is the result of the copy step.
type Copied struct{ p *Pipeline }

// Install announces the artifact locations, resolves the dependency graph
// and propagates the link directives Conan prescribes for it.
func (p *Pipeline) Install(ctx context.Context) (*Installed, error) {
	out := artifact.Locate(p.opts.OutDir)
	p.sink.Emit(linkage.Directive{Kind: linkage.Metadata, Value: "libs=" + out.LibDir})
	p.sink.Emit(linkage.Directive{Kind: linkage.Metadata, Value: "includes=" + out.IncludeDir})

	log.Infof("installing dependencies of %s (profile %s)", p.opts.Recipe, p.opts.Profile)
	info, err := p.conan.Install(ctx, conan.InstallOptions{
		Recipe:     p.opts.Recipe,
		InstallDir: p.opts.BuildDir,
		Profile:    p.opts.Profile,
		Policy:     conan.BuildMissing,
		Options:    p.opts.Options,
		Update:     true,
	})
	if err != nil {
		return nil, fail(PhaseInstall, err)
	}
	p.info = info
	linkage.EmitBuildInfo(p.sink, info)
	return &Installed{p}, nil
}

// Build compiles the recipe.
func (i *Installed) Build(ctx context.Context) (*Built, error) {
	p := i.p
	log.Infof("building %s", p.opts.Recipe)
	if err := p.conan.Build(ctx, p.opts.Recipe, p.opts.BuildDir); err != nil {
		return nil, fail(PhaseBuild, err)
	}
	return &Built{p}, nil
}

// Package collects the build outputs into the artifact root. A failing
// package command is reported but does not stop the run; whatever it left
// behind is checked by the following steps.
func (b *Built) Package(ctx context.Context) (*Packaged, error) {
	p := b.p
	log.Infof("packaging into %s", p.opts.OutDir)
	err := p.conan.Package(ctx, p.opts.Recipe, p.opts.BuildDir, p.opts.OutDir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fail(PhasePackage, ctx.Err())
		}
		var ee *buildsys.ExitError
		if !errors.As(err, &ee) {
			return nil, fail(PhasePackage, err)
		}
		if ee.Exited() {
			log.Warnf("conan package exited with status %d: %s", ee.Code, ee.Tail)
		} else {
			log.Debugf("conan package ended without a status (%s)", ee.Why)
		}
	}
	p.layout = artifact.Locate(p.opts.OutDir)
	return &Packaged{p}, nil
}

// Link emits the directives of the packaged libraries and checks that the
// artifact tree is complete.
func (pk *Packaged) Link(ctx context.Context) (*Linked, error) {
	p := pk.p
	if err := p.layout.Check(); err != nil {
		return nil, fail(PhaseLinkage, err)
	}
	if err := linkage.EmitLibs(p.sink, p.layout.Root, "lib"); err != nil {
		return nil, fail(PhaseLinkage, err)
	}
	return &Linked{p}, nil
}

// Bridge generates and compiles the bridge. Headers are searched in the
// packaged include dir first, then in every dependency's include dirs in
// dependency order.
func (l *Linked) Bridge(ctx context.Context) (*Bridged, error) {
	p := l.p
	spec, err := bridge.LoadSpec(p.opts.Bridge)
	if err != nil {
		return nil, fail(PhaseBridge, err)
	}
	includePaths := uniquePaths(append([]string{p.layout.IncludeDir}, p.info.IncludeDirs()...))
	g := &bridge.Generator{
		Runner:      p.runner,
		OutDir:      filepath.Join(p.opts.OutDir, "bridge"),
		WorkDir:     filepath.Join(p.opts.BuildDir, "bridge"),
		GoOut:       p.opts.GoOut,
		PackageRoot: p.layout.Root,

		CMakeGenerator: p.opts.CMakeGenerator,
		Toolchain:      p.opts.CMakeToolchain,
	}
	log.Infof("generating bridge %s (%d functions whitelisted)", spec.Library, len(spec.Generate)+len(spec.GenerateNS))
	m, err := g.Generate(ctx, spec, includePaths)
	if err != nil {
		return nil, fail(PhaseBridge, err)
	}
	p.spec, p.module = spec, m
	m.Emit(p.sink)
	return &Bridged{p}, nil
}

// Copy places the lib and include trees next to the Go package and links
// against the copies.
func (b *Bridged) Copy(ctx context.Context) (*Copied, error) {
	p := b.p
	dst := artifact.Locate(p.opts.GoOut)
	for _, pair := range [][2]string{
		{p.layout.LibDir, dst.LibDir},
		{p.layout.IncludeDir, dst.IncludeDir},
	} {
		if err := artifact.CopyTree(pair[0], pair[1]); err != nil {
			return nil, fail(PhaseCopy, fmt.Errorf("copy %s: %w", pair[0], err))
		}
	}
	if err := linkage.EmitLibs(p.sink, dst.Root, "lib"); err != nil {
		return nil, fail(PhaseLinkage, err)
	}
	p.sink.Emit(linkage.Directive{Kind: linkage.Include, Value: dst.IncludeDir})
	return &Copied{p}, nil
}

// Finish emits the debug runtime search path and the watched inputs and
// writes the cgo flags file.
func (c *Copied) Finish(ctx context.Context) (*Result, error) {
	p := c.p
	if p.opts.Debug {
		p.sink.Emit(linkage.Directive{Kind: linkage.LinkArg, Value: "-Wl,-rpath," + p.layout.LibDir})
	}
	for _, f := range p.watched() {
		p.sink.Emit(linkage.Directive{Kind: linkage.RerunIfChanged, Value: f})
	}
	for _, key := range env.Watched() {
		p.sink.Emit(linkage.Directive{Kind: linkage.RerunIfEnvChanged, Value: key})
	}

	cgo := &linkage.Cgo{
		Package: p.spec.Package,
		Set:     &p.set,
		First:   []string{p.module.Library},
	}
	path := filepath.Join(p.opts.GoOut, linkage.CgoFile)
	if err := cgo.WriteFile(path); err != nil {
		return nil, fail(PhaseFinish, err)
	}
	return &Result{
		Layout:     p.layout,
		Bridge:     p.module,
		CgoFile:    path,
		Directives: p.set.All(),
	}, nil
}

// uniquePaths drops repeated directories, keeping the first occurrence.
func uniquePaths(dirs []string) []string {
	seen := make(map[string]bool, len(dirs))
	var out []string
	for _, dir := range dirs {
		key := filepath.Clean(dir)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, dir)
	}
	return out
}

func (p *Pipeline) watched() []string {
	return append(append([]string(nil), p.opts.Watched...), p.opts.Recipe, p.opts.Bridge)
}
