// Package bridge generates a whitelisted, safety-audited C ABI shim over a
// C++ API together with the cgo bindings that call it.
//
// A bridge is declared in an HCL file:
//
//	library  = "kms"
//	package  = "deepthought"
//	safety   = "unsafe_ffi"
//	std      = "c++14"
//	include  = ["deep_thought/answer.hpp"]
//	generate = ["deep_thought::answer"]
//
// Expressions may refer to the host platform through the os and arch
// variables (Go's GOOS and GOARCH spellings), e.g.
//
//	system_libs = os == "darwin" ? ["c++"] : ["stdc++"]
//
// Only the functions named by generate (or living in a namespace named by
// generate_ns) are bridged. safety = "unsafe_ffi" is the author's assertion
// that the whitelisted surface is safe to call from Go; the generator cannot
// prove it and refuses to run without it.
package bridge

import (
	"errors"
	"fmt"
	"go/token"
	"regexp"
	"runtime"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// SafetyUnsafeFFI is the only accepted safety mode.
const SafetyUnsafeFFI = "unsafe_ffi"

// DefaultStd is the language standard used when a bridge names none.
const DefaultStd = "c++14"

var (
	ErrUnsafeMode     = errors.New("bridge: safety must be \"" + SafetyUnsafeFFI + "\"")
	ErrInvalidSpec    = errors.New("bridge: invalid spec")
	ErrSymbolNotFound = errors.New("bridge: symbol not found")
	ErrHeaderNotFound = errors.New("bridge: header not found")
	ErrUnsupported    = errors.New("bridge: unsupported signature")
)

// Spec is a bridge declaration.
type Spec struct {
	Library    string   `hcl:"library"`
	Package    string   `hcl:"package"`
	Safety     string   `hcl:"safety"`
	Std        string   `hcl:"std,optional"`
	Include    []string `hcl:"include"`
	Generate   []string `hcl:"generate,optional"`
	GenerateNS []string `hcl:"generate_ns,optional"`
	// SystemLibs are linked after the bridge; empty means the platform's
	// C++ runtime.
	SystemLibs []string `hcl:"system_libs,optional"`
}

var (
	libraryName   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)
	systemLibName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_+.\-]*$`)
	stdName       = regexp.MustCompile(`^(c|gnu)\+\+[0-9a-z]+$`)
)

// LoadSpec reads and validates a bridge declaration.
func LoadSpec(path string) (*Spec, error) {
	return loadSpec(path, evalContext(runtime.GOOS, runtime.GOARCH))
}

func loadSpec(path string, ctx *hcl.EvalContext) (*Spec, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse bridge spec %s: %w", path, diags)
	}
	var spec Spec
	if diags := gohcl.DecodeBody(file.Body, ctx, &spec); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode bridge spec %s: %w", path, diags)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func evalContext(goos, goarch string) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"os":   cty.StringVal(goos),
			"arch": cty.StringVal(goarch),
		},
	}
}

// Validate checks the declaration and fills in defaults.
func (s *Spec) Validate() error {
	if s.Safety != SafetyUnsafeFFI {
		return fmt.Errorf("%w, got %q", ErrUnsafeMode, s.Safety)
	}
	if !libraryName.MatchString(s.Library) {
		return fmt.Errorf("%w: library %q", ErrInvalidSpec, s.Library)
	}
	if !token.IsIdentifier(s.Package) {
		return fmt.Errorf("%w: package %q is not a Go identifier", ErrInvalidSpec, s.Package)
	}
	for _, lib := range s.SystemLibs {
		if !systemLibName.MatchString(lib) {
			return fmt.Errorf("%w: system library %q", ErrInvalidSpec, lib)
		}
	}
	if len(s.Include) == 0 {
		return fmt.Errorf("%w: no include", ErrInvalidSpec)
	}
	if len(s.Generate) == 0 && len(s.GenerateNS) == 0 {
		return fmt.Errorf("%w: nothing to generate", ErrInvalidSpec)
	}
	if s.Std == "" {
		s.Std = DefaultStd
	}
	if !stdName.MatchString(s.Std) {
		return fmt.Errorf("%w: std %q", ErrInvalidSpec, s.Std)
	}
	return nil
}

// StdFlag returns the compiler flag selecting the language standard.
func (s *Spec) StdFlag() string {
	return "-std=" + s.Std
}
