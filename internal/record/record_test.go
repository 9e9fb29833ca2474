package record

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNoHeadersSynthesizesEagerly(t *testing.T) {
	path := writeTemp(t, "41,1\n7,2\n")
	s, err := Open(path, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Headers() must reflect the synthesized names before any Read() call,
	// since callers build the output header row from this immediately
	// after Open returns.
	want := []string{"col1", "col2"}
	got := s.Headers()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Headers() = %v, want %v", got, want)
	}

	rec, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Fields[0] != "41" || rec.Fields[1] != "1" || rec.IDX != 1 {
		t.Errorf("first record = %+v, want [41 1] idx 1", rec)
	}

	rec2, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if rec2.Fields[0] != "7" || rec2.IDX != 2 {
		t.Errorf("second record = %+v, want [7 2] idx 2", rec2)
	}

	if _, err := s.Read(); err != io.EOF {
		t.Errorf("third Read() err = %v, want io.EOF", err)
	}
}

func TestNoHeadersEmptyFile(t *testing.T) {
	path := writeTemp(t, "")
	s, err := Open(path, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Headers() != nil {
		t.Errorf("Headers() = %v, want nil for empty file", s.Headers())
	}
}

func TestWithHeaders(t *testing.T) {
	path := writeTemp(t, "letter,number\na,13\nb,24\n")
	s, err := Open(path, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if got := s.Headers(); len(got) != 2 || got[0] != "letter" || got[1] != "number" {
		t.Fatalf("Headers() = %v", got)
	}
	rec, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Fields[0] != "a" || rec.IDX != 1 {
		t.Errorf("first record = %+v", rec)
	}
}
