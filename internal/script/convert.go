package script

import (
	lua "github.com/yuin/gopher-lua"

	rfvalue "rowforge/internal/value"
)

// Value is the host-boundary type this package works with; it is an
// alias so callers outside script/ never need to import gopher-lua
// directly to construct arguments or read return values.
type Value = rfvalue.Value

// toLua converts a host Value into the VM's native representation.
func toLua(L *lua.LState, v Value) lua.LValue {
	switch v.Kind {
	case rfvalue.KNil:
		return lua.LNil
	case rfvalue.KBool:
		return lua.LBool(v.B)
	case rfvalue.KInt:
		return lua.LNumber(v.I)
	case rfvalue.KFloat:
		return lua.LNumber(v.F)
	case rfvalue.KString:
		return lua.LString(v.S)
	case rfvalue.KSequence:
		t := L.NewTable()
		for i, e := range v.Seq {
			t.RawSetInt(i+1, toLua(L, e))
		}
		return t
	case rfvalue.KMapping:
		t := L.NewTable()
		for k, e := range v.Map {
			t.RawSetString(k, toLua(L, e))
		}
		return t
	default:
		return lua.LNil
	}
}

// fromLua converts a VM value back into the host Value sum type. Tables
// with only contiguous positive-integer keys starting at 1 become a
// KSequence; any other table becomes a KMapping (spec.md §9 Open Question
// (a): a non-sequence table is surfaced as a mapping rather than guessed
// at as a scalar, since callers that expect a scalar already call
// AsString()/AsFloat() which degrade gracefully).
func fromLua(lv lua.LValue) Value {
	switch lv.Type() {
	case lua.LTNil:
		return rfvalue.Nil()
	case lua.LTBool:
		return rfvalue.Bool(bool(lv.(lua.LBool)))
	case lua.LTNumber:
		n := float64(lv.(lua.LNumber))
		if n == float64(int64(n)) {
			return rfvalue.Int(int64(n))
		}
		return rfvalue.Float(n)
	case lua.LTString:
		return rfvalue.Str(string(lv.(lua.LString)))
	case lua.LTTable:
		return fromLuaTable(lv.(*lua.LTable))
	default:
		return rfvalue.Str(lv.String())
	}
}

func fromLuaTable(t *lua.LTable) Value {
	n := t.Len()
	isSeq := n > 0
	count := 0
	t.ForEach(func(k, _ lua.LValue) {
		count++
	})
	if count != n {
		isSeq = false
	}
	if isSeq {
		seq := make([]Value, n)
		for i := 1; i <= n; i++ {
			seq[i-1] = fromLua(t.RawGetInt(i))
		}
		return rfvalue.Seq(seq)
	}

	m := make(map[string]Value)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = fromLua(v)
	})
	return rfvalue.Map(m)
}

// ToLua exposes the conversion for packages that register host functions
// directly against the VM (internal/hostlib).
func ToLua(L *lua.LState, v Value) lua.LValue { return toLua(L, v) }

// FromLua exposes the reverse conversion.
func FromLua(lv lua.LValue) Value { return fromLua(lv) }

// CheckArg fetches positional argument i (1-based) from a host function
// call, defaulting to nil when the script passed fewer arguments.
func CheckArg(L *lua.LState, i int) Value {
	if i > L.GetTop() {
		return rfvalue.Nil()
	}
	return fromLua(L.Get(i))
}
