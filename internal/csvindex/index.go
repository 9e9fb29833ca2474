// Package csvindex builds and persists the byte-offset sidecar index that
// random-access mode (spec.md §4.4) needs to seek directly to row N. No
// third-party library in the example pack offers this niche binary
// sidecar format, so it is built directly on bufio/encoding/binary — the
// same "hand-roll the small thing, import the library for the big thing"
// balance the teacher strikes with its own TableWriter in
// internal/server/cli.go.
package csvindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

const magic = "RFIX1\n"

// Index is the in-memory byte-offset table: Offsets[i] is where data row i
// (0-based) begins in the source file.
type Index struct {
	Offsets []int64
}

// Len returns the row count N; spec.md §4.4 defines _LASTROW = N-1.
func (idx *Index) Len() int64 { return int64(len(idx.Offsets)) }

// SidecarPath returns the index file path next to a CSV input.
func SidecarPath(csvPath string) string { return csvPath + ".ridx" }

// Build scans path and records the byte offset of every data row,
// skipping the header line when hasHeader is true. Offsets are computed
// by tracking quote state byte-by-byte; a double-quote inside a quoted
// field toggles the "in quotes" state twice in a row, which cancels out,
// so this needs no special-case for the `""` escape.
func Build(path string, hasHeader bool, comma byte) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s for indexing: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1<<20)
	var offset int64

	if hasHeader {
		for {
			b, err := br.ReadByte()
			if err != nil {
				return &Index{}, nil // empty file
			}
			offset++
			if b == '\n' {
				break
			}
		}
	}

	var offsets []int64
	recordStart := offset
	inQuotes := false
	sawAnyByte := false

	for {
		b, err := br.ReadByte()
		if err != nil {
			break
		}
		sawAnyByte = true
		offset++
		switch {
		case b == '"':
			inQuotes = !inQuotes
		case b == '\n' && !inQuotes:
			offsets = append(offsets, recordStart)
			recordStart = offset
		}
	}
	if sawAnyByte && recordStart < offset {
		offsets = append(offsets, recordStart)
	}

	return &Index{Offsets: offsets}, nil
}

// Save persists idx as the sidecar next to csvPath.
func Save(csvPath string, idx *Index) error {
	f, err := os.Create(SidecarPath(csvPath))
	if err != nil {
		return fmt.Errorf("creating index sidecar: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int64(len(idx.Offsets))); err != nil {
		return err
	}
	for _, off := range idx.Offsets {
		if err := binary.Write(w, binary.LittleEndian, off); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Load reads a previously-saved sidecar, or returns (nil, false) if it
// doesn't exist or doesn't look like one of ours.
func Load(csvPath string) (*Index, bool) {
	f, err := os.Open(SidecarPath(csvPath))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	br := bufio.NewReader(f)
	hdr := make([]byte, len(magic))
	if _, err := br.Read(hdr); err != nil || string(hdr) != magic {
		return nil, false
	}
	var n int64
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return nil, false
	}
	offsets := make([]int64, n)
	for i := range offsets {
		if err := binary.Read(br, binary.LittleEndian, &offsets[i]); err != nil {
			return nil, false
		}
	}
	return &Index{Offsets: offsets}, true
}

// Ensure implements autoindex(): returns a usable index, building and
// saving one from scratch if the sidecar is missing or unreadable. An
// existing sidecar is reused as-is; it is not checked against changes to
// the CSV made after it was written.
func Ensure(path string, hasHeader bool, comma byte) (*Index, error) {
	if idx, ok := Load(path); ok {
		return idx, nil
	}
	idx, err := Build(path, hasHeader, comma)
	if err != nil {
		return nil, err
	}
	if err := Save(path, idx); err != nil {
		return nil, err
	}
	return idx, nil
}
