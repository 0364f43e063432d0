package bridge

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"strings"
	"text/template"
)

const generatedHeader = "Code generated by cxxlink. DO NOT EDIT."

type fnData struct {
	Function
	CRet    string // C return type
	CParams string // C parameter list
	CArgs   string // shim call arguments, cast to the declared C++ types
	GoSig   string // Go parameter list
	GoRet   string
	GoArgs  string // cgo call arguments
	Void    bool
}

type renderData struct {
	*Spec
	Header    string
	Funcs     []fnData
	StdFlag   string
	StdResult string
}

var shimTmpl = template.Must(template.New("shim").Parse(`// {{.Header}}
// safety: {{.Safety}}

#include <stdint.h>
{{range .Include}}#include "{{.}}"
{{end}}
extern "C" {
{{range .Funcs}}
{{.CRet}} {{.Symbol}}({{.CParams}}) {
	{{if not .Void}}return static_cast<{{.CRet}}>({{end}}::{{.Decl.QualifiedName}}({{.CArgs}}){{if not .Void}}){{end}};
}
{{end}}
} // extern "C"
`))

var listsTmpl = template.Must(template.New("lists").Parse(`# {{.Header}}
cmake_minimum_required(VERSION 3.13)
project(cxxlink_{{.Library}} CXX)

include(CheckCXXCompilerFlag)
check_cxx_compiler_flag({{.StdFlag}} {{.StdResult}})

add_library({{.Library}} STATIC bridge.cc)
target_include_directories({{.Library}} PRIVATE ${CXXLINK_INCLUDE_DIRS})
if({{.StdResult}})
  target_compile_options({{.Library}} PRIVATE {{.StdFlag}})
endif()

install(TARGETS {{.Library}} ARCHIVE DESTINATION lib)
`))

var goTmpl = template.Must(template.New("go").Parse(`// {{.Header}}

package {{.Package}}

/*
#include <stdbool.h>
#include <stdint.h>
{{range .Funcs}}
{{.CRet}} {{.Symbol}}({{.CParams}});
{{- end}}
*/
import "C"
{{range .Funcs}}
// {{.GoName}} calls {{.Decl.QualifiedName}}.
func {{.GoName}}({{.GoSig}}) {{.GoRet}} {
	{{if .Void}}C.{{.Symbol}}({{.GoArgs}}){{else}}return {{.GoRet}}(C.{{.Symbol}}({{.GoArgs}})){{end}}
}
{{end}}`))

func newRenderData(spec *Spec, funcs []Function) *renderData {
	d := &renderData{
		Spec:      spec,
		Header:    generatedHeader,
		StdFlag:   spec.StdFlag(),
		StdResult: "CXXLINK_HAS_STD_" + strings.ToUpper(strings.NewReplacer("+", "X", "-", "_", ".", "_").Replace(spec.Std)),
	}
	for _, fn := range funcs {
		d.Funcs = append(d.Funcs, newFnData(fn))
	}
	return d
}

func newFnData(fn Function) fnData {
	d := fnData{Function: fn, CRet: fn.Decl.Ret.C, GoRet: fn.Decl.Ret.Go, Void: fn.Decl.Ret.IsVoid()}
	if len(fn.Decl.Params) == 0 {
		d.CParams = "void"
		return d
	}
	names := paramNames(fn.Decl.Params, fn.Decl.Ret)
	var cParams, cArgs, goSig, goArgs []string
	for i, p := range fn.Decl.Params {
		arg := fmt.Sprintf("a%d", i)
		cParams = append(cParams, p.Type.C+" "+arg)
		cArgs = append(cArgs, fmt.Sprintf("static_cast<%s>(%s)", p.Type.CXX, arg))
		goSig = append(goSig, names[i]+" "+p.Type.Go)
		goArgs = append(goArgs, fmt.Sprintf("C.%s(%s)", p.Type.C, names[i]))
	}
	d.CParams = strings.Join(cParams, ", ")
	d.CArgs = strings.Join(cArgs, ", ")
	d.GoSig = strings.Join(goSig, ", ")
	d.GoArgs = strings.Join(goArgs, ", ")
	return d
}

// paramNames keeps the declared names that are usable Go identifiers and
// numbers the rest. Names must not repeat and must not shadow the cgo
// pseudo-package or a type spelled in the signature.
func paramNames(params []Param, ret Type) []string {
	reserved := map[string]bool{"C": true, ret.Go: true}
	for _, p := range params {
		reserved[p.Type.Go] = true
	}
	names := make([]string, len(params))
	used := make(map[string]bool)
	for i, p := range params {
		name := p.Name
		if !token.IsIdentifier(name) || used[name] || reserved[name] {
			for n := i; ; n++ {
				name = fmt.Sprintf("a%d", n)
				if !used[name] && !reserved[name] {
					break
				}
			}
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func renderShim(spec *Spec, funcs []Function) ([]byte, error) {
	var buf bytes.Buffer
	if err := shimTmpl.Execute(&buf, newRenderData(spec, funcs)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderLists(spec *Spec) ([]byte, error) {
	var buf bytes.Buffer
	if err := listsTmpl.Execute(&buf, newRenderData(spec, nil)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderGo(spec *Spec, funcs []Function) ([]byte, error) {
	var buf bytes.Buffer
	if err := goTmpl.Execute(&buf, newRenderData(spec, funcs)); err != nil {
		return nil, err
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format bindings: %w", err)
	}
	return src, nil
}
