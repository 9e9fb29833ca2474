// Package svb is the Special Variable Binder (spec.md §4.3): it writes
// the control variables and per-column bindings into the Globals Frame
// before each record, and reads _INDEX back out after each exec.
package svb

import (
	lua "github.com/yuin/gopher-lua"

	"rowforge/internal/script"
	"rowforge/internal/value"
)

// Options controls which globals get bound, per the map/filter CLI flags
// (spec.md §6: --no-headers, --colindex, --no-globals). col[] itself is
// always bound (spec.md §4.3 lists it among the variables written
// unconditionally before the main fragment executes); --colindex is an
// explicit request for it and has no further effect of its own.
type Options struct {
	NoGlobals bool // suppresses column-name globals; only col[] remains
	ColIndex  bool // explicit request for col[] (already bound unconditionally)
}

// Col is the ordered mapping keyed by both 1-based position and header
// name (spec.md §4.3: "col → an ordered mapping keyed by both...").
func buildCol(headers, fields []string) value.Value {
	m := make(map[string]value.Value, len(fields)*2)
	seq := make([]value.Value, len(fields))
	for i, f := range fields {
		v := value.FromString(f)
		seq[i] = v
		if i < len(headers) {
			m[headers[i]] = v
		}
	}
	// col[] supports both col[1] (positional) and col["header"] (name)
	// access. A value.Map only carries string keys, so the positions are
	// stored here as "1", "2", ...; Bind adds the integer keys once the
	// table is in the VM.
	for i, v := range seq {
		m[itoa(i+1)] = v
	}
	return value.Map(m)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// State tracks the control variables that persist across the whole
// stream: _IDX always increments; _ROWCOUNT tracks how many rows have
// actually been processed; _LASTROW is set once autoindex runs.
type State struct {
	RowCount int64
	LastRow  int64 // -1 until known
}

// Bind writes all special variables and column globals for one record
// into r's Globals Frame, ahead of executing the main fragment on it.
func Bind(r *script.Runtime, headers, fields []string, idx int64, index int64, st *State, opts Options) {
	r.SetGlobal("_IDX", value.Int(idx))
	r.SetGlobal("_INDEX", value.Int(index))
	r.SetGlobal("_ROWCOUNT", value.Int(st.RowCount))
	if st.LastRow >= 0 {
		r.SetGlobal("_LASTROW", value.Int(st.LastRow))
	}

	if !opts.NoGlobals {
		for i, h := range headers {
			if i < len(fields) {
				r.SetGlobal(h, value.FromString(fields[i]))
			} else {
				r.SetGlobal(h, value.Str(""))
			}
		}
	}
	r.SetGlobal("col", buildCol(headers, fields))
	if t, ok := r.L.GetGlobal("col").(*lua.LTable); ok {
		for i, f := range fields {
			t.RawSetInt(i+1, lua.LString(f))
		}
	}
}

// ReadIndex reads _INDEX back out after exec, the cursor the Stream
// Driver uses for the next iteration (spec.md §4.3).
func ReadIndex(r *script.Runtime) (int64, bool) {
	v := r.GetGlobal("_INDEX")
	f, ok := v.AsFloat()
	if !ok {
		return 0, false
	}
	return int64(f), true
}
