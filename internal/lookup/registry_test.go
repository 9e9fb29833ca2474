package lookup

import (
	"os"
	"path/filepath"
	"testing"

	"rowforge/internal/value"
)

func TestBuildTableAndLookup(t *testing.T) {
	headers := []string{"code", "name"}
	rows := [][]string{
		{"US", "United States"},
		{"FR", "France"},
	}
	reg := NewRegistry()
	reg.PutTable("countries", BuildTable(headers, rows, 0))

	row, ok := reg.Lookup("countries", "FR")
	if !ok {
		t.Fatal("Lookup(FR) not found")
	}
	if row.Kind != value.KMapping || row.Map["name"].S != "France" {
		t.Errorf("Lookup(FR) = %+v, want name=France", row)
	}

	if _, ok := reg.Lookup("countries", "ZZ"); ok {
		t.Error("Lookup(ZZ) found, want not-found")
	}
	if _, ok := reg.Lookup("missing-table", "FR"); ok {
		t.Error("Lookup on missing table found, want not-found")
	}
}

func TestRegistryJSON(t *testing.T) {
	reg := NewRegistry()
	v := value.Map(map[string]value.Value{"a": value.Int(1)})
	reg.PutJSON("cfg", v)

	got, ok := reg.JSON("cfg")
	if !ok || got.Map["a"].I != 1 {
		t.Errorf("JSON(cfg) = %+v, %v", got, ok)
	}
	if _, ok := reg.JSON("absent"); ok {
		t.Error("JSON(absent) found, want not-found")
	}
}

func TestWriteFileSentinelTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	if err := WriteFile(path, "first\n"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := WriteFile(path, "second\n"); err != nil {
		t.Fatalf("WriteFile append: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(b) != "first\nsecond\n" {
		t.Errorf("content = %q, want appended", string(b))
	}

	if err := WriteFile(path, NewFileSentinel); err != nil {
		t.Fatalf("WriteFile sentinel: %v", err)
	}
	b, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(b) != 0 {
		t.Errorf("content after sentinel = %q, want empty", string(b))
	}
}

func TestLoadAndWriteJSON(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.json")
	if err := os.WriteFile(src, []byte(`{"nested":{"x":1,"y":[1,2,3]}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	reg := NewRegistry()
	if err := LoadJSON(reg, "cfg", src); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	v, ok := reg.JSON("cfg")
	if !ok {
		t.Fatal("JSON(cfg) not found")
	}
	nested := v.Map["nested"]
	if nested.Map["x"].I != 1 {
		t.Errorf("nested.x = %v, want 1", nested.Map["x"])
	}
	if len(nested.Map["y"].Seq) != 3 {
		t.Errorf("len(nested.y) = %d, want 3", len(nested.Map["y"].Seq))
	}

	dst := filepath.Join(dir, "out.json")
	if err := WriteJSON(v, dst, true); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) == 0 {
		t.Error("WriteJSON produced empty file")
	}
}
