package bridge

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"
)

// Param is a function parameter.
type Param struct {
	Name string // may be empty in a declaration
	Type Type
}

// Decl is a free function declared at namespace scope.
type Decl struct {
	Namespace string // "a::b", empty for the global namespace
	Name      string
	Ret       Type
	Params    []Param
	Line      int
	Err       error // set when the signature cannot cross the bridge
}

// QualifiedName returns the fully-qualified C++ name of d.
func (d *Decl) QualifiedName() string {
	if d.Namespace == "" {
		return d.Name
	}
	return d.Namespace + "::" + d.Name
}

// Header is the result of scanning one header file.
type Header struct {
	Path     string
	Includes []string
	Decls    []*Decl
}

// ParseHeader scans the header at path.
func ParseHeader(path string) (*Header, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	h := parseHeader(string(src))
	h.Path = path
	return h, nil
}

func parseHeader(src string) *Header {
	toks, includes := tokenize(src)
	p := &parser{toks: toks}
	p.parse()
	return &Header{Includes: includes, Decls: p.decls}
}

type cxxToken struct {
	text string
	line int
}

var includeLine = regexp.MustCompile(`^#\s*include\s*(?:"([^"]+)"|<([^>]+)>)`)

// tokenize splits C++ source into tokens, dropping comments and
// preprocessor lines. The targets of #include lines are returned
// separately.
func tokenize(src string) (toks []cxxToken, includes []string) {
	line := 1
	bol := true
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\n':
			line++
			bol = true
			i++
			continue
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			i++
			continue
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			continue
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				end = len(src) - i - 2
			}
			line += strings.Count(src[i:i+2+end], "\n")
			i += end + 4
			continue
		case c == '#' && bol:
			start := i
			for i < len(src) && src[i] != '\n' {
				if src[i] == '\\' && i+1 < len(src) && src[i+1] == '\n' {
					line++
					i++
				}
				i++
			}
			if m := includeLine.FindStringSubmatch(src[start:i]); m != nil {
				includes = append(includes, m[1]+m[2])
			}
			continue
		}
		bol = false
		start := i
		switch {
		case isIdentByte(c):
			for i < len(src) && isIdentByte(src[i]) {
				i++
			}
		case c == '"' || c == '\'':
			i++
			for i < len(src) && src[i] != c && src[i] != '\n' {
				if src[i] == '\\' {
					i++
				}
				i++
			}
			i++
		case strings.HasPrefix(src[i:], "::"), strings.HasPrefix(src[i:], "->"),
			strings.HasPrefix(src[i:], "&&"):
			i += 2
		case strings.HasPrefix(src[i:], "..."):
			i += 3
		default:
			i++
		}
		if i > len(src) {
			i = len(src)
		}
		toks = append(toks, cxxToken{src[start:i], line})
	}
	return
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isIdent(s string) bool {
	return s != "" && isIdentByte(s[0]) && (s[0] < '0' || s[0] > '9')
}

type scopeKind int

const (
	scopeNamespace scopeKind = iota
	scopeAnonymous
	scopeLinkage // extern "C" { ... }
)

type scope struct {
	kind scopeKind
	name string
}

type parser struct {
	toks   []cxxToken
	pos    int
	scopes []scope
	decls  []*Decl
}

func (p *parser) namespace() (string, bool) {
	var parts []string
	for _, s := range p.scopes {
		switch s.kind {
		case scopeAnonymous:
			return "", false
		case scopeNamespace:
			parts = append(parts, s.name)
		}
	}
	return strings.Join(parts, "::"), true
}

func (p *parser) parse() {
	var stmt []cxxToken
	discard := false
	for p.pos < len(p.toks) {
		tok := p.toks[p.pos]
		p.pos++
		switch tok.text {
		case ";":
			if !discard {
				p.statement(stmt)
			}
			stmt, discard = stmt[:0], false
		case "{":
			if sc, ok := scopeOf(stmt); ok {
				p.scopes = append(p.scopes, sc)
				stmt = stmt[:0]
				continue
			}
			if !discard {
				p.statement(stmt)
			}
			p.skipBlock()
			discard = discard || continuesAfterBody(texts(stmt))
			stmt = stmt[:0]
		case "}":
			if len(p.scopes) > 0 {
				p.scopes = p.scopes[:len(p.scopes)-1]
			}
			stmt, discard = stmt[:0], false
		default:
			stmt = append(stmt, tok)
		}
	}
}

// continuesAfterBody reports whether the declaration in words goes on
// after its "{...}" up to a ";", as class bodies and brace initializers do.
// A function body ends its declaration.
func continuesAfterBody(words []string) bool {
	if len(words) > 1 && words[0] == "template" && words[1] == "<" {
		if end := matching(words, 1); end >= 0 {
			words = words[end+1:]
		}
	}
	words = stripPrefix(words)
	open := indexDepth0(words, "(")
	if open < 0 {
		return true
	}
	for _, w := range words[:open] {
		switch w {
		case "class", "struct", "union", "enum", "=":
			return true
		}
	}
	return false
}

// skipBlock advances past the block whose "{" was just consumed.
func (p *parser) skipBlock() {
	depth := 1
	for p.pos < len(p.toks) && depth > 0 {
		switch p.toks[p.pos].text {
		case "{":
			depth++
		case "}":
			depth--
		}
		p.pos++
	}
}

// scopeOf reports whether stmt opens a namespace or a linkage block.
// "namespace a::b {" opens a single scope named "a::b".
func scopeOf(stmt []cxxToken) (scope, bool) {
	words := texts(stmt)
	if len(words) == 2 && words[0] == "extern" && strings.HasPrefix(words[1], `"`) {
		return scope{kind: scopeLinkage}, true
	}
	if len(words) > 0 && words[0] == "inline" {
		words = words[1:]
	}
	if len(words) == 0 || words[0] != "namespace" {
		return scope{}, false
	}
	words = skipAttributes(words[1:])
	if len(words) == 0 {
		return scope{kind: scopeAnonymous}, true
	}
	var parts []string
	for _, w := range words {
		switch {
		case w == "::" || w == "inline":
		case isIdent(w):
			parts = append(parts, w)
		default:
			return scope{}, false
		}
	}
	return scope{kind: scopeNamespace, name: strings.Join(parts, "::")}, true
}

var specifiers = map[string]bool{
	"inline": true, "static": true, "extern": true, "constexpr": true,
	"consteval": true, "noexcept": true, "__cdecl": true, "__stdcall": true,
}

var skippedKeywords = map[string]bool{
	"template": true, "using": true, "typedef": true, "class": true,
	"struct": true, "union": true, "enum": true, "friend": true,
	"static_assert": true, "namespace": true, "operator": true,
}

var typeWords = map[string]bool{
	"void": true, "bool": true, "char": true, "short": true, "int": true,
	"long": true, "signed": true, "unsigned": true, "float": true,
	"double": true, "auto": true, "const": true, "volatile": true,
}

// statement examines a complete declaration and records it when it
// declares a free function.
func (p *parser) statement(stmt []cxxToken) {
	if len(stmt) == 0 {
		return
	}
	line := stmt[0].line
	words := texts(stmt)
	for _, w := range words {
		if skippedKeywords[w] {
			return
		}
	}
	words = stripPrefix(words)

	open := indexDepth0(words, "(")
	if open < 1 || indexDepth0(words[:open], "=") >= 0 {
		return
	}
	close := matching(words, open)
	if close < 0 {
		return
	}
	name := words[open-1]
	if !isIdent(name) || typeWords[name] {
		return
	}
	head := words[:open-1]
	var qual []string
	for len(head) >= 2 && head[len(head)-1] == "::" && isIdent(head[len(head)-2]) {
		qual = append([]string{head[len(head)-2]}, qual...)
		head = head[:len(head)-2]
	}
	if len(head) > 0 && head[len(head)-1] == "::" {
		head = head[:len(head)-1]
	}

	tail := words[close+1:]
	ret := head
	deleted := false
	for i := 0; i < len(tail); i++ {
		switch tail[i] {
		case "->":
			ret = tail[i+1:]
			if j := indexDepth0(ret, "="); j >= 0 {
				deleted = strings.Join(ret[j:], " ") == "= delete"
				ret = ret[:j]
			}
			i = len(tail)
		case "=":
			deleted = i+1 < len(tail) && tail[i+1] == "delete"
			i = len(tail)
		}
	}
	if deleted {
		return
	}

	ns, ok := p.namespace()
	if !ok {
		return
	}
	if len(qual) > 0 {
		if ns != "" {
			ns += "::"
		}
		ns += strings.Join(qual, "::")
	}
	d := &Decl{Namespace: ns, Name: name, Line: line}
	if len(ret) == 0 {
		d.Err = fmt.Errorf("%w: missing return type", ErrUnsupported)
	} else {
		d.Ret, d.Err = typeOf(stripTrailing(ret))
	}
	if d.Err == nil {
		d.Params, d.Err = params(words[open+1 : close])
	}
	if d.Err != nil {
		d.Err = fmt.Errorf("%s (line %d): %w", d.QualifiedName(), d.Line, d.Err)
	}
	// a redeclaration or the definition of a declared function
	for _, prev := range p.decls {
		if prev.QualifiedName() == d.QualifiedName() && prev.signature() == d.signature() {
			return
		}
	}
	p.decls = append(p.decls, d)
}

// signature identifies the overload d declares.
func (d *Decl) signature() string {
	if d.Err != nil {
		return d.Err.Error()
	}
	var b strings.Builder
	b.WriteString(d.Ret.C)
	b.WriteByte('(')
	for i, p := range d.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.Type.C)
	}
	b.WriteByte(')')
	return b.String()
}

func params(words []string) ([]Param, error) {
	if len(words) == 0 || len(words) == 1 && words[0] == "void" {
		return nil, nil
	}
	var ps []Param
	for _, part := range splitDepth0(words, ",") {
		if j := indexDepth0(part, "="); j >= 0 {
			part = part[:j]
		}
		part = skipAttributes(part)
		if len(part) == 1 && part[0] == "..." {
			return nil, fmt.Errorf("%w: variadic", ErrUnsupported)
		}
		var name string
		if n := len(part); n > 1 && isIdent(part[n-1]) && !typeWords[part[n-1]] && !strings.HasSuffix(part[n-1], "_t") {
			name, part = part[n-1], part[:n-1]
		}
		t, err := typeOf(part)
		if err != nil {
			return nil, err
		}
		if t.IsVoid() {
			return nil, fmt.Errorf("%w: void parameter", ErrUnsupported)
		}
		ps = append(ps, Param{Name: name, Type: t})
	}
	return ps, nil
}

// stripPrefix drops attributes, storage and linkage specifiers and export
// macros preceding a declaration.
func stripPrefix(words []string) []string {
	for len(words) > 0 {
		w := words[0]
		switch {
		case w == "[" || w == "__attribute__" || w == "__declspec" || w == "alignas":
			words = skipAttributes(words)
		case specifiers[w]:
			words = words[1:]
		case strings.HasPrefix(w, `"`):
			// extern "C" int f();
			words = words[1:]
		case isMacro(w) && len(words) > 1 && isIdent(words[1]):
			words = words[1:]
		default:
			return words
		}
	}
	return words
}

func stripTrailing(words []string) []string {
	words = skipAttributes(words)
	for len(words) > 0 && specifiers[words[0]] {
		words = words[1:]
	}
	return words
}

// skipAttributes drops one or more leading [[...]], __attribute__((...)),
// __declspec(...) or alignas(...) groups.
func skipAttributes(words []string) []string {
	for len(words) > 0 {
		switch words[0] {
		case "[":
			if len(words) < 2 || words[1] != "[" {
				return words
			}
			end := matching(words, 0)
			if end < 0 {
				return nil
			}
			words = words[end+1:]
		case "__attribute__", "__declspec", "alignas":
			if len(words) < 2 || words[1] != "(" {
				return words[1:]
			}
			end := matching(words, 1)
			if end < 0 {
				return nil
			}
			words = words[end+1:]
		default:
			return words
		}
	}
	return words
}

func isMacro(w string) bool {
	if len(w) < 2 || !isIdent(w) {
		return false
	}
	upper := false
	for _, r := range w {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			upper = true
		}
	}
	return upper
}

var pairs = map[string]string{"(": ")", "[": "]", "{": "}", "<": ">"}

// matching returns the index of the bracket closing words[open].
func matching(words []string, open int) int {
	want := pairs[words[open]]
	depth := 0
	for i := open; i < len(words); i++ {
		switch words[i] {
		case words[open]:
			depth++
		case want:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func indexDepth0(words []string, target string) int {
	depth := 0
	for i, w := range words {
		if depth == 0 && w == target {
			return i
		}
		switch w {
		case "(", "[", "{", "<":
			depth++
		case ")", "]", "}", ">":
			depth--
		}
	}
	return -1
}

func splitDepth0(words []string, sep string) [][]string {
	var parts [][]string
	for {
		i := indexDepth0(words, sep)
		if i < 0 {
			return append(parts, words)
		}
		parts = append(parts, words[:i])
		words = words[i+1:]
	}
}

func texts(toks []cxxToken) []string {
	words := make([]string, len(toks))
	for i, t := range toks {
		words[i] = t.text
	}
	return words
}
