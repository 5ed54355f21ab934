package trace

import (
	"math"
	"strconv"
	"strings"
)

// ValueKind is the runtime type of a Value.
type ValueKind int

const (
	KindUndefined ValueKind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
)

func (k ValueKind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is a runtime value of the traced language. Arrays are shared by
// reference, as in JavaScript.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
	arr  *Array
}

// Array is the backing store of an array value.
type Array struct {
	Elems []Value
}

var (
	Undefined = Value{kind: KindUndefined}
	Null      = Value{kind: KindNull}
)

func Bool(b bool) Value        { return Value{kind: KindBool, b: b} }
func Number(n float64) Value   { return Value{kind: KindNumber, n: n} }
func String(s string) Value    { return Value{kind: KindString, s: s} }
func NewArray(elems ...Value) Value {
	return Value{kind: KindArray, arr: &Array{Elems: elems}}
}

// Clone returns v with every array, nested ones included, copied.
func (v Value) Clone() Value {
	if v.kind != KindArray {
		return v
	}
	elems := make([]Value, len(v.arr.Elems))
	for i, el := range v.arr.Elems {
		elems[i] = el.Clone()
	}
	return NewArray(elems...)
}

// Kind returns the runtime type of v.
func (v Value) Kind() ValueKind { return v.kind }

// Elems returns the elements of an array value, nil otherwise.
func (v Value) Elems() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr.Elems
}

// Truthy applies the JavaScript boolean conversion.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0 && !math.IsNaN(v.n)
	case KindString:
		return v.s != ""
	case KindArray:
		return true
	default:
		return false
	}
}

// ToNumber applies the JavaScript numeric conversion.
func (v Value) ToNumber() float64 {
	switch v.kind {
	case KindNull:
		return 0
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindNumber:
		return v.n
	case KindString:
		return stringToNumber(v.s)
	case KindArray:
		return stringToNumber(v.String())
	default:
		return math.NaN()
	}
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, ok := parseNumber(s); ok {
		return n
	}
	return math.NaN()
}

// String applies the JavaScript string conversion.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return v.s
	case KindArray:
		parts := make([]string, len(v.arr.Elems))
		for i, el := range v.arr.Elems {
			if el.kind == KindUndefined || el.kind == KindNull {
				continue
			}
			parts[i] = el.String()
		}
		return strings.Join(parts, ",")
	default:
		return "undefined"
	}
}

// Literal renders v as source text that ParseLiteral reads back.
func (v Value) Literal() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.s)
	case KindArray:
		parts := make([]string, len(v.arr.Elems))
		for i, el := range v.arr.Elems {
			parts[i] = el.Literal()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return v.String()
	}
}

func formatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == math.Trunc(n) && math.Abs(n) < 1e21:
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
}

// toPrimitive reduces arrays to their string form; other values are
// already primitive.
func (v Value) toPrimitive() Value {
	if v.kind == KindArray {
		return String(v.String())
	}
	return v
}

// StrictEquals implements ===.
func StrictEquals(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindArray:
		return a.arr == b.arr
	}
	return false
}

// LooseEquals implements ==.
func LooseEquals(a, b Value) bool {
	if a.kind == b.kind {
		return StrictEquals(a, b)
	}
	nullish := func(v Value) bool { return v.kind == KindUndefined || v.kind == KindNull }
	switch {
	case nullish(a) || nullish(b):
		return nullish(a) && nullish(b)
	case a.kind == KindBool:
		return LooseEquals(Number(a.ToNumber()), b)
	case b.kind == KindBool:
		return LooseEquals(a, Number(b.ToNumber()))
	case a.kind == KindArray:
		return LooseEquals(a.toPrimitive(), b)
	case b.kind == KindArray:
		return LooseEquals(a, b.toPrimitive())
	default:
		return a.ToNumber() == b.ToNumber()
	}
}
