// Package linkage turns packaged artifacts into build directives for the
// host toolchain.
package linkage

import (
	"fmt"
	"io"
)

// Kind classifies a directive.
type Kind string

const (
	LinkSearch        Kind = "link-search"          // native=<dir>
	LinkLib           Kind = "link-lib"             // static=<name> or dylib=<name>
	Include           Kind = "include"              // header search dir
	CxxStd            Kind = "cxx-std"              // language standard flag, e.g. -std=c++14
	LinkArg           Kind = "link-arg"             // raw linker argument
	RerunIfChanged    Kind = "rerun-if-changed"     // watched input file
	RerunIfEnvChanged Kind = "rerun-if-env-changed" // watched environment variable
	Metadata          Kind = "metadata"             // key=value for downstream consumers
)

// Directive is one instruction to the host build system.
type Directive struct {
	Kind  Kind
	Value string
}

func (d Directive) String() string {
	return "cxxlink:" + string(d.Kind) + "=" + d.Value
}

// Sink receives directives.
type Sink interface {
	Emit(d Directive)
}

// Set is a Sink that keeps directives in first-emission order and drops
// repeats, so emitting the same linkage twice is harmless.
type Set struct {
	list []Directive
	seen map[Directive]bool
}

func (s *Set) Emit(d Directive) {
	if s.seen == nil {
		s.seen = make(map[Directive]bool)
	}
	if s.seen[d] {
		return
	}
	s.seen[d] = true
	s.list = append(s.list, d)
}

// All returns the directives in emission order.
func (s *Set) All() []Directive {
	return append([]Directive(nil), s.list...)
}

// Of returns the values of every directive of kind k.
func (s *Set) Of(k Kind) []string {
	var vals []string
	for _, d := range s.list {
		if d.Kind == k {
			vals = append(vals, d.Value)
		}
	}
	return vals
}

// Has reports whether d was emitted.
func (s *Set) Has(d Directive) bool {
	return s.seen[d]
}

// Printer is a Sink writing one "cxxlink:<kind>=<value>" line per directive.
type Printer struct {
	W io.Writer
}

func (p Printer) Emit(d Directive) {
	fmt.Fprintln(p.W, d.String())
}

// Tee fans directives out to several sinks.
type Tee []Sink

func (t Tee) Emit(d Directive) {
	for _, s := range t {
		s.Emit(d)
	}
}
