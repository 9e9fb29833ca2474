package lookup

import (
	"sync"

	"rowforge/internal/value"
)

// Table is a Lookup Table (spec.md §3): headers plus rows keyed by the
// configured key column's value, each row a header→cell mapping.
type Table struct {
	Headers []string
	Rows    map[string]map[string]string
}

// Registry holds every lookup table and loaded JSON value registered
// during one Invocation (spec.md §3: "lives for the Invocation"),
// satisfying the spec's supplemented requirement (SPEC_FULL.md §6.1) that
// several lookup tables coexist and can be joined against inside `main`.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
	json   map[string]value.Value
}

func NewRegistry() *Registry {
	return &Registry{tables: map[string]*Table{}, json: map[string]value.Value{}}
}

func (r *Registry) PutTable(name string, t *Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[name] = t
}

func (r *Registry) Table(name string) (*Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	return t, ok
}

func (r *Registry) PutJSON(name string, v value.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.json[name] = v
}

func (r *Registry) JSON(name string) (value.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.json[name]
	return v, ok
}

// Lookup returns the entry for key in table name, as a Value mapping
// (header → cell). Scripts reach the same data through the global that
// TableValue builds, not through this method.
func (r *Registry) Lookup(name, key string) (value.Value, bool) {
	t, ok := r.Table(name)
	if !ok {
		return value.Nil(), false
	}
	row, ok := t.Rows[key]
	if !ok {
		return value.Nil(), false
	}
	m := make(map[string]value.Value, len(row))
	for k, v := range row {
		m[k] = value.Str(v)
	}
	return value.Map(m), true
}

// TableValue builds the full name → (header → cell) nested mapping spec.md
// §4.6 says register_lookup/loadcsv binds under the lookup's own name in
// Globals, so a script can index it directly (`countries["FR"].name`)
// instead of going through a dedicated host function for every row.
func (r *Registry) TableValue(name string) (value.Value, bool) {
	t, ok := r.Table(name)
	if !ok {
		return value.Nil(), false
	}
	m := make(map[string]value.Value, len(t.Rows))
	for key, row := range t.Rows {
		entry := make(map[string]value.Value, len(row))
		for k, v := range row {
			entry[k] = value.Str(v)
		}
		m[key] = value.Map(entry)
	}
	return value.Map(m), true
}

// BuildTable indexes parsed CSV rows by keyCol (0-based column index)
// into a Table.
func BuildTable(headers []string, rows [][]string, keyCol int) *Table {
	t := &Table{Headers: headers, Rows: map[string]map[string]string{}}
	for _, row := range rows {
		if keyCol >= len(row) {
			continue
		}
		key := row[keyCol]
		entry := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				entry[h] = row[i]
			} else {
				entry[h] = ""
			}
		}
		t.Rows[key] = entry
	}
	return t
}
