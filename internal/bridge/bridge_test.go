package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/goplus/cxxlink/internal/linkage"
	"github.com/goplus/cxxlink/pkgs/buildsys"
	"github.com/goplus/cxxlink/pkgs/buildsys/buildsystest"
)

var includeDir = filepath.Join("testdata", "include")

func TestLoadSpec(t *testing.T) {
	spec, err := LoadSpec(filepath.Join("testdata", "bridge.hcl"))
	if err != nil {
		t.Fatalf("LoadSpec: %v", err)
	}
	want := &Spec{
		Library:  "kms",
		Package:  "deepthought",
		Safety:   SafetyUnsafeFFI,
		Std:      DefaultStd,
		Include:  []string{"deep_thought/answer.hpp"},
		Generate: []string{"deep_thought::answer"},
	}
	if diff := cmp.Diff(want, spec); diff != "" {
		t.Fatalf("spec mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSpecPlatformExpressions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.hcl")
	src := `library     = "kms"
package     = "deepthought"
safety      = "unsafe_ffi"
include     = ["deep_thought/answer.hpp"]
generate    = ["deep_thought::answer"]
system_libs = os == "darwin" ? ["c++"] : ["stdc++"]
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		goos string
		want []string
	}{
		{"darwin", []string{"c++"}},
		{"linux", []string{"stdc++"}},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			spec, err := loadSpec(path, evalContext(tt.goos, "arm64"))
			if err != nil {
				t.Fatalf("loadSpec: %v", err)
			}
			if diff := cmp.Diff(tt.want, spec.SystemLibs); diff != "" {
				t.Fatalf("SystemLibs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadSpecErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{
			name:    "safe mode",
			src:     "library = \"kms\"\npackage = \"p\"\nsafety = \"safe\"\ninclude = [\"a.hpp\"]\ngenerate = [\"f\"]\n",
			wantErr: ErrUnsafeMode,
		},
		{
			name:    "bad package",
			src:     "library = \"kms\"\npackage = \"deep-thought\"\nsafety = \"unsafe_ffi\"\ninclude = [\"a.hpp\"]\ngenerate = [\"f\"]\n",
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "nothing to generate",
			src:     "library = \"kms\"\npackage = \"p\"\nsafety = \"unsafe_ffi\"\ninclude = [\"a.hpp\"]\n",
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "bad std",
			src:     "library = \"kms\"\npackage = \"p\"\nsafety = \"unsafe_ffi\"\nstd = \"c++17 -O0\"\ninclude = [\"a.hpp\"]\ngenerate = [\"f\"]\n",
			wantErr: ErrInvalidSpec,
		},
		{
			name:    "bad system library",
			src:     "library = \"kms\"\npackage = \"p\"\nsafety = \"unsafe_ffi\"\ninclude = [\"a.hpp\"]\ngenerate = [\"f\"]\nsystem_libs = [\"-lm\"]\n",
			wantErr: ErrInvalidSpec,
		},
		{
			name: "unknown variable",
			src:  "library = \"kms\"\npackage = \"p\"\nsafety = \"unsafe_ffi\"\ninclude = [\"a.hpp\"]\ngenerate = [\"f\"]\nsystem_libs = [compiler]\n",
		},
		{
			name: "missing safety",
			src:  "library = \"kms\"\npackage = \"p\"\ninclude = [\"a.hpp\"]\ngenerate = [\"f\"]\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bridge.hcl")
			if err := os.WriteFile(path, []byte(tt.src), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadSpec(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		src     string
		want    string // C type
		wantErr bool
	}{
		{"int", "int32_t", false},
		{"const int", "int32_t", false},
		{"std :: int32_t", "int32_t", false},
		{"unsigned", "uint32_t", false},
		{"unsigned long long", "uint64_t", false},
		{"long long int", "int64_t", false},
		{"double", "double", false},
		{"bool", "bool", false},
		{"void", "void", false},
		{"long", "", true},
		{"int *", "", true},
		{"const int &", "", true},
		{"std :: string", "", true},
	}
	for _, tt := range tests {
		got, err := typeOf(strings.Fields(tt.src))
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupported) {
				t.Errorf("typeOf(%q) err = %v, want ErrUnsupported", tt.src, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("typeOf(%q): %v", tt.src, err)
			continue
		}
		if got.C != tt.want {
			t.Errorf("typeOf(%q) = %q, want %q", tt.src, got.C, tt.want)
		}
	}
}

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader(filepath.Join(includeDir, "deep_thought", "answer.hpp"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"cstdint", "detail.hpp"}, h.Includes); diff != "" {
		t.Errorf("includes mismatch (-want +got):\n%s", diff)
	}

	type decl struct{ Name, Sig string }
	var got []decl
	for _, d := range h.Decls {
		sig := d.signature()
		if d.Err != nil {
			sig = "unsupported"
		}
		got = append(got, decl{d.QualifiedName(), sig})
	}
	want := []decl{
		{"deep_thought::answer", "int32_t()"},
		{"deep_thought::scaled", "int32_t(int32_t,double)"},
		{"deep_thought::ready", "bool()"},
		{"deep_thought::seconds", "int64_t()"},
		{"deep_thought::reset", "void()"},
		{"deep_thought::name", "unsupported"},
		{"deep_thought::after_template", "int32_t()"},
		{"deep_thought::v2::version", "uint32_t()"},
		{"a::b::nested", "float(float)"},
		{"c_api", "int32_t(int32_t)"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decls mismatch (-want +got):\n%s", diff)
	}

	scaled := h.Decls[1]
	if diff := cmp.Diff([]string{"factor", "weight"}, []string{scaled.Params[0].Name, scaled.Params[1].Name}); diff != "" {
		t.Errorf("param names mismatch (-want +got):\n%s", diff)
	}
}

func TestParseHeaderDefinitions(t *testing.T) {
	src := `
namespace ns {
int f(int a);
int f(int a);
}
int ns::f(int a) { return a; }
struct Point { int x, y; } origin = {0, 0};
int g();
`
	h := parseHeader(src)
	var names []string
	for _, d := range h.Decls {
		names = append(names, d.QualifiedName())
	}
	if diff := cmp.Diff([]string{"ns::f", "g"}, names); diff != "" {
		t.Fatalf("decls mismatch (-want +got):\n%s", diff)
	}
}

func TestScanFollowsIncludes(t *testing.T) {
	headers, err := Scan([]string{"deep_thought/answer.hpp"}, []string{includeDir})
	if err != nil {
		t.Fatal(err)
	}
	var bases []string
	for _, h := range headers {
		bases = append(bases, filepath.Base(h.Path))
	}
	if diff := cmp.Diff([]string{"answer.hpp", "detail.hpp"}, bases); diff != "" {
		t.Fatalf("scanned headers mismatch (-want +got):\n%s", diff)
	}
}

func TestScanHeaderNotFound(t *testing.T) {
	_, err := Scan([]string{"nope.hpp"}, []string{includeDir})
	if !errors.Is(err, ErrHeaderNotFound) {
		t.Fatalf("err = %v, want ErrHeaderNotFound", err)
	}
}

func TestSelect(t *testing.T) {
	headers, err := Scan([]string{"deep_thought/answer.hpp"}, []string{includeDir})
	if err != nil {
		t.Fatal(err)
	}
	goNames := func(funcs []Function) []string {
		var names []string
		for _, fn := range funcs {
			names = append(names, fn.GoName)
		}
		return names
	}

	t.Run("generate", func(t *testing.T) {
		funcs, err := Select(&Spec{Generate: []string{"deep_thought::answer", "::c_api"}}, headers)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]string{"Answer", "CApi"}, goNames(funcs)); diff != "" {
			t.Fatalf("functions mismatch (-want +got):\n%s", diff)
		}
		if funcs[0].Symbol != "cxxlink_deep_thought_answer" || funcs[1].Symbol != "cxxlink_c_api" {
			t.Fatalf("symbols = %s, %s", funcs[0].Symbol, funcs[1].Symbol)
		}
	})

	t.Run("generate_ns", func(t *testing.T) {
		funcs, err := Select(&Spec{GenerateNS: []string{"deep_thought"}}, headers)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"Answer", "Scaled", "Ready", "Seconds", "Reset", "AfterTemplate", "Version", "Checksum"}
		if diff := cmp.Diff(want, goNames(funcs)); diff != "" {
			t.Fatalf("functions mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Select(&Spec{Generate: []string{"deep_thought::question"}}, headers)
		if !errors.Is(err, ErrSymbolNotFound) {
			t.Fatalf("err = %v, want ErrSymbolNotFound", err)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := Select(&Spec{Generate: []string{"deep_thought::name"}}, headers)
		if !errors.Is(err, ErrUnsupported) {
			t.Fatalf("err = %v, want ErrUnsupported", err)
		}
	})

	t.Run("anonymous namespace", func(t *testing.T) {
		_, err := Select(&Spec{Generate: []string{"deep_thought::hidden"}}, headers)
		if !errors.Is(err, ErrSymbolNotFound) {
			t.Fatalf("err = %v, want ErrSymbolNotFound", err)
		}
	})
}

func TestSelectNameCollision(t *testing.T) {
	h := parseHeader("namespace a { int run(); }\nnamespace b { int run(); }\n")
	funcs, err := Select(&Spec{GenerateNS: []string{"a", "b"}}, []*Header{h})
	if err != nil {
		t.Fatal(err)
	}
	if funcs[0].GoName != "ARun" || funcs[1].GoName != "BRun" {
		t.Fatalf("Go names = %s, %s", funcs[0].GoName, funcs[1].GoName)
	}
}

func TestSelectGoNameClash(t *testing.T) {
	h := parseHeader("namespace dt { int get_answer(); int getAnswer(); }\n")
	_, err := Select(&Spec{GenerateNS: []string{"dt"}}, []*Header{h})
	if !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("err = %v, want ErrInvalidSpec", err)
	}
	for _, name := range []string{"dt::get_answer", "dt::getAnswer"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error does not name %s: %v", name, err)
		}
	}
}

func TestSelectSymbolClash(t *testing.T) {
	h := parseHeader("namespace a_b { int c(); }\nnamespace a { int b_c(); }\n")
	_, err := Select(&Spec{Generate: []string{"a_b::c", "a::b_c"}}, []*Header{h})
	if !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("err = %v, want ErrInvalidSpec", err)
	}
}

func TestSelectOverloaded(t *testing.T) {
	h := parseHeader("namespace m { int f(int); double f(double); int g(); }\n")
	if _, err := Select(&Spec{Generate: []string{"m::f"}}, []*Header{h}); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("err = %v, want ErrInvalidSpec", err)
	}
	funcs, err := Select(&Spec{GenerateNS: []string{"m"}}, []*Header{h})
	if err != nil {
		t.Fatal(err)
	}
	if len(funcs) != 1 || funcs[0].GoName != "G" {
		t.Fatalf("functions = %+v, want only G", funcs)
	}
}

func fakeCMake(lib string) *buildsystest.Runner {
	return buildsystest.New().Handle("cmake --install", func(_ context.Context, cmd *buildsys.Command) error {
		var prefix string
		for i, a := range cmd.Args {
			if a == "--prefix" && i+1 < len(cmd.Args) {
				prefix = cmd.Args[i+1]
			}
		}
		dir := filepath.Join(prefix, "lib")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, archiveName(lib)), []byte("!<arch>\n"), 0o644)
	})
}

func TestGenerate(t *testing.T) {
	spec, err := LoadSpec(filepath.Join("testdata", "bridge.hcl"))
	if err != nil {
		t.Fatal(err)
	}
	tmp := t.TempDir()
	r := fakeCMake("kms")
	g := &Generator{
		Runner: r,
		OutDir: filepath.Join(tmp, "bridge"),
		GoOut:  filepath.Join(tmp, "go"),
	}
	m, err := g.Generate(context.Background(), spec, []string{includeDir})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if m.Archive != filepath.Join(tmp, "bridge", "lib", archiveName("kms")) {
		t.Errorf("Archive = %s", m.Archive)
	}

	shim, err := os.ReadFile(m.Source)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"// safety: unsafe_ffi",
		`#include "deep_thought/answer.hpp"`,
		"int32_t cxxlink_deep_thought_answer(void) {",
		"return static_cast<int32_t>(::deep_thought::answer());",
	} {
		if !strings.Contains(string(shim), want) {
			t.Errorf("shim lacks %q:\n%s", want, shim)
		}
	}

	lists, err := os.ReadFile(filepath.Join(tmp, "bridge", "src", ListsFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"check_cxx_compiler_flag(-std=c++14 CXXLINK_HAS_STD_CXX14)",
		"add_library(kms STATIC bridge.cc)",
		"install(TARGETS kms ARCHIVE DESTINATION lib)",
	} {
		if !strings.Contains(string(lists), want) {
			t.Errorf("CMakeLists.txt lacks %q:\n%s", want, lists)
		}
	}

	bindings, err := os.ReadFile(m.GoFile)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"package deepthought",
		"int32_t cxxlink_deep_thought_answer(void);",
		"func Answer() int32 {",
		"return int32(C.cxxlink_deep_thought_answer())",
	} {
		if !strings.Contains(string(bindings), want) {
			t.Errorf("bindings lack %q:\n%s", want, bindings)
		}
	}

	calls := r.Calls()
	if len(calls) != 3 ||
		!strings.HasPrefix(calls[0], "cmake -S ") ||
		!strings.HasPrefix(calls[1], "cmake --build ") ||
		!strings.HasPrefix(calls[2], "cmake --install ") {
		t.Fatalf("unexpected cmake calls: %v", calls)
	}
	absInclude, err := filepath.Abs(includeDir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(calls[0], "-DCXXLINK_INCLUDE_DIRS:STRING="+absInclude) {
		t.Errorf("include dirs not passed to configure: %s", calls[0])
	}
}

func TestGenerateCMakeOptions(t *testing.T) {
	spec, err := LoadSpec(filepath.Join("testdata", "bridge.hcl"))
	if err != nil {
		t.Fatal(err)
	}
	tmp := t.TempDir()
	r := fakeCMake("kms")
	g := &Generator{
		Runner:         r,
		OutDir:         filepath.Join(tmp, "bridge"),
		CMakeGenerator: "Ninja",
		Toolchain:      "/opt/cross.cmake",
	}
	if _, err := g.Generate(context.Background(), spec, []string{includeDir}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	configure := r.Calls()[0]
	for _, want := range []string{
		" -G Ninja ",
		"-DCMAKE_TOOLCHAIN_FILE:STRING=/opt/cross.cmake",
		"-DCMAKE_POSITION_INDEPENDENT_CODE:BOOL=ON",
	} {
		if !strings.Contains(configure, want) {
			t.Errorf("configure lacks %q: %s", want, configure)
		}
	}
}

func TestGenerateRendersParameters(t *testing.T) {
	h := parseHeader("namespace m { double mix(int type, float w, bool on); void tick(); }\n")
	funcs, err := Select(&Spec{GenerateNS: []string{"m"}}, []*Header{h})
	if err != nil {
		t.Fatal(err)
	}
	spec := &Spec{Library: "m", Package: "m", Safety: SafetyUnsafeFFI, Std: "c++17", Include: []string{"m.hpp"}}
	src, err := renderGo(spec, funcs)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"double cxxlink_m_mix(int32_t a0, float a1, bool a2);",
		"void cxxlink_m_tick(void);",
		"func Mix(a0 int32, w float32, on bool) float64 {",
		"return float64(C.cxxlink_m_mix(C.int32_t(a0), C.float(w), C.bool(on)))",
		"func Tick() {",
		"C.cxxlink_m_tick()",
	} {
		if !strings.Contains(string(src), want) {
			t.Errorf("bindings lack %q:\n%s", want, src)
		}
	}
	shim, err := renderShim(spec, funcs)
	if err != nil {
		t.Fatal(err)
	}
	if want := "::m::mix(static_cast<int>(a0), static_cast<float>(a1), static_cast<bool>(a2))"; !strings.Contains(string(shim), want) {
		t.Errorf("shim lacks %q:\n%s", want, shim)
	}
}

func TestRenderParameterNames(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "numbered name already taken",
			src:  "namespace dt { int add(int a1, int); }\n",
			want: []string{
				"func Add(a1 int32, a2 int32) int32 {",
				"return int32(C.cxxlink_dt_add(C.int32_t(a1), C.int32_t(a2)))",
			},
		},
		{
			name: "repeated name",
			src:  "namespace dt { int add(int x, int x); }\n",
			want: []string{"func Add(x int32, a1 int32) int32 {"},
		},
		{
			name: "shadows a Go type",
			src:  "namespace dt { int scale(int int32, double); }\n",
			want: []string{
				"func Scale(a0 int32, a1 float64) int32 {",
				"return int32(C.cxxlink_dt_scale(C.int32_t(a0), C.double(a1)))",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			funcs, err := Select(&Spec{GenerateNS: []string{"dt"}}, []*Header{parseHeader(tt.src)})
			if err != nil {
				t.Fatal(err)
			}
			spec := &Spec{Library: "dt", Package: "dt", Safety: SafetyUnsafeFFI, Std: "c++17", Include: []string{"dt.hpp"}}
			src, err := renderGo(spec, funcs)
			if err != nil {
				t.Fatal(err)
			}
			for _, want := range tt.want {
				if !strings.Contains(string(src), want) {
					t.Errorf("bindings lack %q:\n%s", want, src)
				}
			}
		})
	}
}

func TestGenerateUnsafeModeRefused(t *testing.T) {
	r := fakeCMake("kms")
	g := &Generator{Runner: r, OutDir: t.TempDir()}
	spec := &Spec{Library: "kms", Package: "p", Safety: "safe", Include: []string{"deep_thought/answer.hpp"}, Generate: []string{"deep_thought::answer"}}
	if _, err := g.Generate(context.Background(), spec, []string{includeDir}); !errors.Is(err, ErrUnsafeMode) {
		t.Fatalf("err = %v, want ErrUnsafeMode", err)
	}
	if len(r.Calls()) != 0 {
		t.Fatalf("cmake invoked in refused mode: %v", r.Calls())
	}
}

func TestGenerateCompileFailure(t *testing.T) {
	spec, err := LoadSpec(filepath.Join("testdata", "bridge.hcl"))
	if err != nil {
		t.Fatal(err)
	}
	r := fakeCMake("kms").Fail("cmake --build", 2)
	g := &Generator{Runner: r, OutDir: t.TempDir()}
	_, err = g.Generate(context.Background(), spec, []string{includeDir})
	if code, ok := buildsys.ExitCode(err); !ok || code != 2 {
		t.Fatalf("ExitCode = %d, %v; want 2, true (err = %v)", code, ok, err)
	}
}

func TestModuleEmit(t *testing.T) {
	m := &Module{Library: "kms", LibDir: "/out/bridge/lib", Std: "c++14", SystemLibs: []string{"stdc++"}}
	var set linkage.Set
	m.Emit(&set)
	m.Emit(&set)
	want := []linkage.Directive{
		{Kind: linkage.LinkSearch, Value: "native=/out/bridge/lib"},
		{Kind: linkage.LinkLib, Value: "static=kms"},
		{Kind: linkage.CxxStd, Value: "-std=c++14"},
		{Kind: linkage.LinkLib, Value: "dylib=stdc++"},
	}
	if diff := cmp.Diff(want, set.All()); diff != "" {
		t.Fatalf("directives mismatch (-want +got):\n%s", diff)
	}
}
