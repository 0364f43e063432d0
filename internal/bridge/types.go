package bridge

import (
	"fmt"
	"strings"
)

// Type is a scalar type that can cross the bridge by value.
type Type struct {
	CXX string // spelling in the declaration, normalized
	C   string // fixed-width C type used by the shim
	Go  string // Go type of the binding, empty for void
}

// IsVoid reports whether t is void.
func (t Type) IsVoid() bool { return t.C == "void" }

var scalarTypes = map[string]Type{}

func init() {
	add := func(c, goType string, spellings ...string) {
		for _, s := range spellings {
			scalarTypes[s] = Type{CXX: s, C: c, Go: goType}
		}
	}
	add("void", "", "void")
	add("bool", "bool", "bool")
	add("int8_t", "int8", "int8_t", "signed char")
	add("uint8_t", "uint8", "uint8_t", "unsigned char")
	add("int16_t", "int16", "int16_t", "short", "short int", "signed short", "signed short int")
	add("uint16_t", "uint16", "uint16_t", "unsigned short", "unsigned short int")
	add("int32_t", "int32", "int32_t", "int", "signed", "signed int")
	add("uint32_t", "uint32", "uint32_t", "unsigned", "unsigned int")
	add("int64_t", "int64", "int64_t", "long long", "long long int", "signed long long", "signed long long int")
	add("uint64_t", "uint64", "uint64_t", "unsigned long long", "unsigned long long int")
	add("float", "float32", "float")
	add("double", "float64", "double")
}

// typeOf resolves the tokens of a by-value type. Top-level cv-qualifiers
// are dropped; pointers, references and class types are rejected.
func typeOf(toks []string) (Type, error) {
	var words []string
	for i := 0; i < len(toks); i++ {
		switch tok := toks[i]; tok {
		case "const", "volatile":
		case "std":
			if i+1 < len(toks) && toks[i+1] == "::" {
				i++
			} else {
				words = append(words, tok)
			}
		case "*", "&", "&&":
			return Type{}, fmt.Errorf("%w: %q is a pointer or reference", ErrUnsupported, strings.Join(toks, " "))
		default:
			words = append(words, tok)
		}
	}
	spelling := strings.Join(words, " ")
	t, ok := scalarTypes[spelling]
	if !ok {
		return Type{}, fmt.Errorf("%w: type %q", ErrUnsupported, strings.Join(toks, " "))
	}
	return t, nil
}
