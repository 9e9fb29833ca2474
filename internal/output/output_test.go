package output

import (
	"bytes"
	"strings"
	"testing"

	"rowforge/internal/value"
)

func TestParseColumnSpecEscaping(t *testing.T) {
	got := ParseColumnSpec(`a,b\,c,d`)
	want := []string{"a", "b,c", "d"}
	if len(got) != len(want) {
		t.Fatalf("ParseColumnSpec = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEmitMapAppend(t *testing.T) {
	var buf bytes.Buffer
	ow := New(&buf, ModeMap, []string{"a", "b"}, "c,d", false)
	if err := ow.WriteHeader([]string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	result := value.Seq([]value.Value{value.Str("x"), value.Str("y")})
	if err := ow.EmitMap([]string{"1", "2"}, result, false); err != nil {
		t.Fatal(err)
	}
	if err := ow.Flush(); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "a,b,c,d\n1,2,x,y\n") {
		t.Errorf("output = %q", out)
	}
}

func TestEmitMapRemapDropsInputColumns(t *testing.T) {
	var buf bytes.Buffer
	ow := New(&buf, ModeMap, []string{"a", "b"}, "only", true)
	if err := ow.WriteHeader([]string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if err := ow.EmitMap([]string{"1", "2"}, value.Str("z"), false); err != nil {
		t.Fatal(err)
	}
	_ = ow.Flush()
	if got := buf.String(); got != "only\nz\n" {
		t.Errorf("got %q", got)
	}
}

func TestEmitMapShortSequencePadsLongTruncates(t *testing.T) {
	var buf bytes.Buffer
	ow := New(&buf, ModeMap, nil, "c,d,e", false)
	_ = ow.WriteHeader(nil)
	short := value.Seq([]value.Value{value.Str("only")})
	if err := ow.EmitMap(nil, short, false); err != nil {
		t.Fatal(err)
	}
	long := value.Seq([]value.Value{value.Str("1"), value.Str("2"), value.Str("3"), value.Str("4")})
	if err := ow.EmitMap(nil, long, false); err != nil {
		t.Fatal(err)
	}
	_ = ow.Flush()
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if lines[1] != "only,," {
		t.Errorf("short pad = %q", lines[1])
	}
	if lines[2] != "1,2,3" {
		t.Errorf("long truncate = %q", lines[2])
	}
}

func TestEmitFilterFailOpenRetainsRow(t *testing.T) {
	var buf bytes.Buffer
	ow := New(&buf, ModeFilter, []string{"a"}, "", false)
	_ = ow.WriteHeader([]string{"a"})
	if err := ow.EmitFilter([]string{"1"}, true); err != nil {
		t.Fatal(err)
	}
	if err := ow.EmitFilter([]string{"2"}, false); err != nil {
		t.Fatal(err)
	}
	_ = ow.Flush()
	if got := buf.String(); got != "a\n1\n" {
		t.Errorf("got %q", got)
	}
}

func TestInsertQueueDrainOrderAndPadding(t *testing.T) {
	var buf bytes.Buffer
	ow := New(&buf, ModeFilter, []string{"a", "b", "c"}, "", false)
	_ = ow.WriteHeader([]string{"a", "b", "c"})

	ow.QueueInsert(0, []string{"x"})
	ow.QueueInsert(0, []string{"y1", "y2", "y3", "y4"})
	ow.QueueInsert(1, []string{"z"})

	if err := ow.EmitFilter([]string{"1", "2", "3"}, true); err != nil {
		t.Fatal(err)
	}
	if err := ow.DrainInsertsFor(0, false); err != nil {
		t.Fatal(err)
	}
	if err := ow.EmitFilter([]string{"4", "5", "6"}, true); err != nil {
		t.Fatal(err)
	}
	if err := ow.DrainInsertsFor(1, false); err != nil {
		t.Fatal(err)
	}
	_ = ow.Flush()

	want := "a,b,c\n1,2,3\nx,,\ny1,y2,y3\n4,5,6\nz,,\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
