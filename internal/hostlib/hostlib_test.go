package hostlib

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"rowforge/internal/lookup"
	"rowforge/internal/script"
	"rowforge/internal/subprocess"
	"rowforge/internal/value"
)

func newTestHost(t *testing.T) (*script.Runtime, *Host) {
	t.Helper()
	dir := t.TempDir()
	loader := lookup.NewLoader(lookup.NewCache(dir, 0, nil), "", "", 1)
	runner := subprocess.New(os.Args[0])
	h := New(context.Background(), loader, runner, nil, filepath.Join(dir, "in.csv"), true, ',')
	rt := script.New()
	h.RegisterAll(rt)
	return rt, h
}

func run(t *testing.T, rt *script.Runtime, src string) script.Value {
	t.Helper()
	handle, err := rt.Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	vals, err := rt.Exec(handle)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(vals) == 0 {
		return script.Value{}
	}
	return vals[0]
}

func TestCoalesce(t *testing.T) {
	rt, _ := newTestHost(t)
	defer rt.Close()
	got := run(t, rt, `return coalesce("", "", "third")`)
	if got.AsString() != "third" {
		t.Errorf("coalesce = %q, want third", got.AsString())
	}
}

func TestCumsumAccumulatesAcrossExec(t *testing.T) {
	rt, _ := newTestHost(t)
	defer rt.Close()
	handle, err := rt.Compile(`return cumsum(10)`)
	if err != nil {
		t.Fatal(err)
	}
	v1, err := rt.Exec(handle)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := rt.Exec(handle)
	if err != nil {
		t.Fatal(err)
	}
	if v1[0].AsString() != "10" {
		t.Errorf("first cumsum = %q, want 10", v1[0].AsString())
	}
	if v2[0].AsString() != "20" {
		t.Errorf("second cumsum = %q, want 20", v2[0].AsString())
	}
}

func TestLagEmitsDefaultUntilFull(t *testing.T) {
	rt, _ := newTestHost(t)
	defer rt.Close()
	handle, err := rt.Compile(`return lag(_IDX, 2, "none")`)
	if err != nil {
		t.Fatal(err)
	}
	for i := int64(1); i <= 2; i++ {
		rt.SetGlobal("_IDX", value.Int(i))
		vals, err := rt.Exec(handle)
		if err != nil {
			t.Fatal(err)
		}
		if vals[0].AsString() != "none" {
			t.Errorf("row %d lag = %q, want none", i, vals[0].AsString())
		}
	}
	rt.SetGlobal("_IDX", value.Int(3))
	vals, err := rt.Exec(handle)
	if err != nil {
		t.Fatal(err)
	}
	if vals[0].AsString() != "1" {
		t.Errorf("row 3 lag = %q, want 1", vals[0].AsString())
	}
}

func TestBreakAndSkipSignals(t *testing.T) {
	rt, h := newTestHost(t)
	defer rt.Close()

	handle, err := rt.Compile(`skip()`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Exec(handle); err != nil {
		t.Fatal(err)
	}
	if !h.SkipRequested {
		t.Error("skip() did not set SkipRequested")
	}
	h.Reset()
	if h.SkipRequested {
		t.Error("Reset() did not clear SkipRequested")
	}

	handle2, err := rt.Compile(`break("done")`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Exec(handle2); err != nil {
		t.Fatal(err)
	}
	if !h.BreakRequested || h.BreakMessage != "done" {
		t.Errorf("break() = requested=%v message=%q", h.BreakRequested, h.BreakMessage)
	}
}

func TestShellcmdRejectsNonWhitelisted(t *testing.T) {
	rt, _ := newTestHost(t)
	defer rt.Close()
	handle, err := rt.Compile(`return shellcmd("rm", "-rf /")`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Exec(handle); err == nil {
		t.Error("shellcmd(rm) succeeded, want whitelist rejection")
	}
}

func TestWritefileSentinelCreatesFile(t *testing.T) {
	rt, _ := newTestHost(t)
	defer rt.Close()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	handle, err := rt.Compile(`writefile("` + path + `", "_NEWFILE!")`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Exec(handle); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("writefile did not create file: %v", err)
	}
}
