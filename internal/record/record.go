// Package record wraps encoding/csv — the CSV tokeniser spec.md §1 treats
// as an external collaborator — into the sequential/positional record
// reader the Stream Driver needs.
package record

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// Record is one CSV data row plus its 1-based natural-order index (_IDX).
type Record struct {
	Fields []string
	IDX    int64
}

// Source reads CSV records sequentially from a file, optionally treating
// the first line as a header row.
type Source struct {
	path      string
	comma     rune
	noHeaders bool

	f       *os.File
	r       *csv.Reader
	headers []string
	pending *Record // first record, peeked during Open to synthesize headers
	next    int64   // next _IDX to hand out
}

// Open starts a forward read of path. When noHeaders is true, headers are
// synthesized as col1..colN from the first record's width. This happens
// eagerly here, by peeking the first record, rather than lazily on the
// first Read() call — callers such as internal/engine and internal/stream
// build the Output Writer's header row and padding width from Headers()
// immediately after Open returns, before any row is read (spec.md §3
// invariants).
func Open(path string, noHeaders bool, comma rune) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	s := &Source{path: path, comma: comma, noHeaders: noHeaders, f: f, next: 1}
	s.resetReaderAt(f)

	if !noHeaders {
		headers, err := s.r.Read()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("reading header row of %s: %w", path, err)
		}
		s.headers = headers
		return s, nil
	}

	first, err := s.r.Read()
	if err == io.EOF {
		return s, nil
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading first record of %s: %w", path, err)
	}
	s.headers = synthHeaders(len(first))
	s.pending = &Record{Fields: first, IDX: s.next}
	s.next++
	return s, nil
}

func (s *Source) resetReaderAt(r io.Reader) {
	cr := csv.NewReader(bufio.NewReaderSize(r, 64*1024))
	cr.FieldsPerRecord = -1
	if s.comma != 0 {
		cr.Comma = s.comma
	}
	s.r = cr
}

// Headers returns the input's column names, or synthesized col1..colN
// positional names under --no-headers.
func (s *Source) Headers() []string { return s.headers }

// Read returns the next record in file order, or io.EOF at end of stream.
func (s *Source) Read() (*Record, error) {
	if s.pending != nil {
		rec := s.pending
		s.pending = nil
		return rec, nil
	}
	fields, err := s.r.Read()
	if err != nil {
		return nil, err
	}
	rec := &Record{Fields: fields, IDX: s.next}
	s.next++
	return rec, nil
}

// Close releases the underlying file handle.
func (s *Source) Close() error { return s.f.Close() }

func synthHeaders(n int) []string {
	h := make([]string, n)
	for i := range h {
		h[i] = fmt.Sprintf("col%d", i+1)
	}
	return h
}

// ReadAt reads exactly one record starting at the given byte offset into
// the file, used by the Stream Driver's random-access mode via the
// byte-offset index (internal/csvindex). It does not disturb the forward
// cursor of s.
func (s *Source) ReadAt(offset int64) ([]string, error) {
	sr := io.NewSectionReader(s.f, offset, 1<<40)
	cr := csv.NewReader(bufio.NewReaderSize(sr, 4096))
	cr.FieldsPerRecord = -1
	if s.comma != 0 {
		cr.Comma = s.comma
	}
	return cr.Read()
}

// Path returns the file path backing this source.
func (s *Source) Path() string { return s.path }
