package svb

import (
	"testing"

	"rowforge/internal/script"
	"rowforge/internal/value"
)

func TestBindColAlwaysAvailable(t *testing.T) {
	rt := script.New()
	defer rt.Close()

	headers := []string{"the number column", "letter"}
	fields := []string{"13", "a"}
	st := &State{LastRow: -1}

	// grounded on original_source/tests/test_luau.rs's
	// luau_map_exec_long_column_names, which uses col['the number column']
	// with no --colindex/--no-globals/--no-headers flags at all.
	Bind(rt, headers, fields, 1, 0, st, Options{})

	handle, err := rt.Compile(`return col["the number column"]`)
	if err != nil {
		t.Fatal(err)
	}
	vals, err := rt.Exec(handle)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 || vals[0].AsString() != "13" {
		t.Errorf("col[header] = %+v, want 13", vals)
	}
}

func TestBindColPositionalNoHeaders(t *testing.T) {
	rt := script.New()
	defer rt.Close()

	// grounded on luau_map_no_headers: col[2] + 1, --no-headers only.
	fields := []string{"41", "1"}
	st := &State{LastRow: -1}
	Bind(rt, nil, fields, 1, 0, st, Options{})

	handle, err := rt.Compile(`return tonumber(col[2]) + 1`)
	if err != nil {
		t.Fatal(err)
	}
	vals, err := rt.Exec(handle)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 {
		t.Fatalf("vals = %+v", vals)
	}
	if f, ok := vals[0].AsFloat(); !ok || f != 2 {
		t.Errorf("col[2]+1 = %+v, want 2", vals[0])
	}
}

func TestBindNoGlobalsSuppressesHeaderNames(t *testing.T) {
	rt := script.New()
	defer rt.Close()

	headers := []string{"letter"}
	fields := []string{"a"}
	st := &State{LastRow: -1}
	Bind(rt, headers, fields, 1, 0, st, Options{NoGlobals: true})

	if got := rt.GetGlobal("letter"); got.Kind != value.KNil {
		t.Errorf("letter global = %+v, want nil under --no-globals", got)
	}
	if got := rt.GetGlobal("col"); got.Kind != value.KMapping {
		t.Errorf("col global = %+v, want still bound under --no-globals", got)
	}
}

func TestBindControlVariables(t *testing.T) {
	rt := script.New()
	defer rt.Close()

	st := &State{RowCount: 3, LastRow: 9}
	Bind(rt, []string{"a"}, []string{"1"}, 5, 4, st, Options{})

	if v := rt.GetGlobal("_IDX"); v.I != 5 {
		t.Errorf("_IDX = %+v, want 5", v)
	}
	if v := rt.GetGlobal("_INDEX"); v.I != 4 {
		t.Errorf("_INDEX = %+v, want 4", v)
	}
	if v := rt.GetGlobal("_ROWCOUNT"); v.I != 3 {
		t.Errorf("_ROWCOUNT = %+v, want 3", v)
	}
	if v := rt.GetGlobal("_LASTROW"); v.I != 9 {
		t.Errorf("_LASTROW = %+v, want 9", v)
	}
}
