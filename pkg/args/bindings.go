// Package args holds the caller-supplied argument bindings of a traced
// function: parameter names mapped to literal text, scalar or array.
package args

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/amitmag/flowtrace/pkg/trace"
)

// ErrInvalidBinding is returned for a malformed name=value pair, a value
// that is not a literal, or an unreadable argument file.
var ErrInvalidBinding = errors.New("invalid argument binding")

// Value is the literal text of one argument. Array values keep each
// element's text separately.
type Value struct {
	Text  string   `json:"text,omitempty" yaml:"text,omitempty"`
	Elems []string `json:"elems,omitempty" yaml:"elems,omitempty"`
	Array bool     `json:"array,omitempty" yaml:"array,omitempty"`
}

// Scalar returns a value holding one literal.
func Scalar(text string) Value { return Value{Text: text} }

// ArrayOf returns an array value of the given element literals.
func ArrayOf(elems ...string) Value {
	return Value{Elems: elems, Array: true}
}

// ParseValue applies the input-field rule: text starting with '[' is an
// array whose elements are the comma-separated pieces between the
// brackets, with all spaces removed. Anything else is a scalar literal.
func ParseValue(input string) Value {
	if !strings.HasPrefix(input, "[") {
		return Scalar(input)
	}
	inner := strings.TrimPrefix(input, "[")
	inner = strings.TrimSuffix(inner, "]")
	inner = strings.ReplaceAll(inner, " ", "")
	if inner == "" {
		return ArrayOf()
	}
	return ArrayOf(strings.Split(inner, ",")...)
}

// Literal renders v as source text.
func (v Value) Literal() string {
	if v.Array {
		return "[" + strings.Join(v.Elems, ",") + "]"
	}
	return v.Text
}

func (v Value) String() string { return v.Literal() }

// Resolve reads the literal text into a runtime value.
func (v Value) Resolve() (trace.Value, error) {
	if !v.Array {
		return trace.ParseLiteral(v.Text)
	}
	elems := make([]trace.Value, len(v.Elems))
	for i, text := range v.Elems {
		el, err := trace.ParseLiteral(text)
		if err != nil {
			return trace.Undefined, fmt.Errorf("element %d: %w", i, err)
		}
		elems[i] = el
	}
	return trace.NewArray(elems...), nil
}

// Bindings maps parameter names to values, remembering insertion order.
// A nil *Bindings is an empty, read-only set.
type Bindings struct {
	names  []string
	values map[string]Value
}

func New() *Bindings {
	return &Bindings{values: make(map[string]Value)}
}

// Set binds name to v. Rebinding keeps the original position.
func (b *Bindings) Set(name string, v Value) {
	if b.values == nil {
		b.values = make(map[string]Value)
	}
	if _, ok := b.values[name]; !ok {
		b.names = append(b.names, name)
	}
	b.values[name] = v
}

func (b *Bindings) Get(name string) (Value, bool) {
	if b == nil {
		return Value{}, false
	}
	v, ok := b.values[name]
	return v, ok
}

// Names returns the bound names in insertion order.
func (b *Bindings) Names() []string {
	if b == nil {
		return nil
	}
	return slices.Clone(b.names)
}

func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	return len(b.names)
}

// Merge copies every binding of other into b, overriding existing names.
func (b *Bindings) Merge(other *Bindings) {
	for _, name := range other.Names() {
		v, _ := other.Get(name)
		b.Set(name, v)
	}
}

// Missing returns the names in params that have no binding, in order.
func (b *Bindings) Missing(params []string) []string {
	var missing []string
	for _, p := range params {
		if _, ok := b.Get(p); !ok {
			missing = append(missing, p)
		}
	}
	return missing
}

// Resolve reads every binding into a parameter declaration, in insertion
// order. It fails on the first value that is not a valid literal.
func (b *Bindings) Resolve() ([]trace.Param, error) {
	params := make([]trace.Param, 0, b.Len())
	for _, name := range b.Names() {
		raw, _ := b.Get(name)
		v, err := raw.Resolve()
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%s: %w", ErrInvalidBinding, name, raw.Literal(), err)
		}
		params = append(params, trace.Param{Name: name, Value: v})
	}
	return params, nil
}

// ParsePairs reads "name=value" pairs as given on a command line. Values
// follow ParseValue; later pairs override earlier ones.
func ParsePairs(pairs []string) (*Bindings, error) {
	b := New()
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not name=value", ErrInvalidBinding, pair)
		}
		if !IsIdentifier(name) {
			return nil, fmt.Errorf("%w: %q is not an identifier", ErrInvalidBinding, name)
		}
		b.Set(name, ParseValue(strings.TrimSpace(value)))
	}
	return b, nil
}

// IsIdentifier reports whether s can name a parameter.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
