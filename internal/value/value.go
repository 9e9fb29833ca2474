// Package value defines the dynamically-typed value that crosses the
// boundary between the embedded script VM and the rest of the engine.
package value

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the concrete shape carried by a Value.
type Kind int

const (
	KNil Kind = iota
	KBool
	KInt
	KFloat
	KString
	KSequence
	KMapping
)

// Value is the sum type {nil, bool, integer, float, string, sequence,
// mapping} described in spec.md §9 ("Dynamic typing inside scripts does
// not require the host to be dynamic").
type Value struct {
	Kind Kind
	B    bool
	I    int64
	F    float64
	S    string
	Seq  []Value
	Map  map[string]Value
}

func Nil() Value                 { return Value{Kind: KNil} }
func Bool(b bool) Value          { return Value{Kind: KBool, B: b} }
func Int(i int64) Value          { return Value{Kind: KInt, I: i} }
func Float(f float64) Value      { return Value{Kind: KFloat, F: f} }
func Str(s string) Value         { return Value{Kind: KString, S: s} }
func Seq(vs []Value) Value       { return Value{Kind: KSequence, Seq: vs} }
func Map(m map[string]Value) Value {
	return Value{Kind: KMapping, Map: m}
}

// Truthy implements the VM's truthiness rule used by `filter`: everything
// is truthy except nil, boolean false, numeric zero, and the empty string.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KNil:
		return false
	case KBool:
		return v.B
	case KInt:
		return v.I != 0
	case KFloat:
		return v.F != 0
	case KString:
		return v.S != ""
	default:
		return true
	}
}

// AsString renders v the way a cell written to CSV output would look.
func (v Value) AsString() string {
	switch v.Kind {
	case KNil:
		return ""
	case KBool:
		if v.B {
			return "true"
		}
		return "false"
	case KInt:
		return strconv.FormatInt(v.I, 10)
	case KFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case KString:
		return v.S
	case KSequence:
		parts := make([]string, len(v.Seq))
		for i, e := range v.Seq {
			parts[i] = e.AsString()
		}
		return strings.Join(parts, ",")
	case KMapping:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, v.Map[k].AsString()))
		}
		return strings.Join(parts, ",")
	}
	return ""
}

// AsFloat coerces v the way a host-function numeric argument is coerced:
// numbers pass through, numeric strings parse, booleans become 1 or 0,
// and everything else is 0 and not-ok (spec.md §4.8: "non-numeric v
// contributes 0").
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KInt:
		return float64(v.I), true
	case KFloat:
		return v.F, true
	case KString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.S), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case KBool:
		if v.B {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// FromString wraps a raw CSV cell as a Value, the shape SVB binds column
// globals with.
func FromString(s string) Value { return Str(s) }
