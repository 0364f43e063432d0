package linkage

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"strings"
	"text/template"
)

// CgoFile is the name of the generated file carrying the package's #cgo
// flags.
const CgoFile = "zz_cxxlink_cgo.go"

// Cgo renders a directive set as #cgo flags of one Go package.
type Cgo struct {
	Package string
	Set     *Set
	// First lists link names that must precede every other library on the
	// link line (the bridge library refers to symbols of the others).
	First []string
}

type cgoFlags struct {
	Package  string
	CPPFLAGS string
	CXXFLAGS string
	LDFLAGS  string
}

var cgoTmpl = template.Must(template.New("cgo").Parse(`// Code generated by cxxlink. DO NOT EDIT.

package {{.Package}}

/*
{{- if .CPPFLAGS}}
#cgo CPPFLAGS: {{.CPPFLAGS}}
{{- end}}
{{- if .CXXFLAGS}}
#cgo CXXFLAGS: {{.CXXFLAGS}}
{{- end}}
{{- if .LDFLAGS}}
#cgo LDFLAGS: {{.LDFLAGS}}
{{- end}}
*/
import "C"
`))

// Flags returns the CPPFLAGS, CXXFLAGS and LDFLAGS of the set.
func (c *Cgo) Flags() (cppflags, cxxflags, ldflags []string) {
	for _, v := range c.Set.Of(Include) {
		cppflags = append(cppflags, "-I"+v)
	}
	cxxflags = append(cxxflags, c.Set.Of(CxxStd)...)

	for _, v := range c.Set.Of(LinkSearch) {
		_, dir := ParseLibValue(v)
		ldflags = append(ldflags, "-L"+dir)
	}
	first := make(map[string]bool, len(c.First))
	for _, name := range c.First {
		first[name] = true
		ldflags = append(ldflags, "-l"+name)
	}
	seen := make(map[string]bool)
	for _, v := range c.Set.Of(LinkLib) {
		_, name := ParseLibValue(v)
		if first[name] || seen[name] {
			continue
		}
		seen[name] = true
		ldflags = append(ldflags, "-l"+name)
	}
	ldflags = append(ldflags, c.Set.Of(LinkArg)...)
	return
}

// Render returns the formatted Go source.
func (c *Cgo) Render() ([]byte, error) {
	cpp, cxx, ld := c.Flags()
	var buf bytes.Buffer
	err := cgoTmpl.Execute(&buf, cgoFlags{
		Package:  c.Package,
		CPPFLAGS: joinQuoted(cpp),
		CXXFLAGS: joinQuoted(cxx),
		LDFLAGS:  joinQuoted(ld),
	})
	if err != nil {
		return nil, err
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format cgo file: %w", err)
	}
	return src, nil
}

// WriteFile renders the set to path. The file is left untouched when its
// content would not change, which keeps the Go build cache warm.
func (c *Cgo) WriteFile(path string) error {
	src, err := c.Render()
	if err != nil {
		return err
	}
	if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, src) {
		return nil
	}
	return os.WriteFile(path, src, 0o644)
}

func joinQuoted(flags []string) string {
	out := make([]string, len(flags))
	for i, f := range flags {
		if strings.ContainsAny(f, " \t'") {
			f = `"` + strings.ReplaceAll(f, `"`, `\"`) + `"`
		}
		out[i] = f
	}
	return strings.Join(out, " ")
}
