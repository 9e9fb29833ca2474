// Package analytic implements the stateful analytic host functions
// (spec.md §4.8): cumsum/cumprod/cummax/cummin/cumany/cumall/lag/diff/
// accumulate, each keyed by an optional series name and persisted for the
// lifetime of one Invocation. Numeric coercion goes through
// shopspring/decimal so running totals don't drift the way repeated
// float64 addition would over a long stream — the same reason the
// teacher reaches for decimal instead of float64 for money.
package analytic

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"rowforge/internal/value"
)

// Series holds all per-invocation analytic state, namespaced by helper
// name and then by the caller's series name (default "" for the single
// anonymous series).
type Series struct {
	sums   map[string]decimal.Decimal
	prods  map[string]decimal.Decimal
	maxes  map[string]decimal.Decimal
	mins   map[string]decimal.Decimal
	anys   map[string]bool
	alls   map[string]bool
	lags   map[string]*ring
	diffs  map[string]*ring
	accums map[string]*accumState
}

func New() *Series {
	return &Series{
		sums:   map[string]decimal.Decimal{},
		prods:  map[string]decimal.Decimal{},
		maxes:  map[string]decimal.Decimal{},
		mins:   map[string]decimal.Decimal{},
		anys:   map[string]bool{},
		alls:   map[string]bool{},
		lags:   map[string]*ring{},
		diffs:  map[string]*ring{},
		accums: map[string]*accumState{},
	}
}

func coerce(v value.Value) decimal.Decimal {
	f, ok := v.AsFloat()
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func checkFinite(d decimal.Decimal, fnName string) error {
	f, _ := d.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("%s: overflow to non-finite value", fnName)
	}
	return nil
}

// Cumsum is the running sum of v's numeric coercion (spec.md §4.8).
func (s *Series) Cumsum(v value.Value, name string) (value.Value, error) {
	cur := s.sums[name]
	next := cur.Add(coerce(v))
	if err := checkFinite(next, "cumsum"); err != nil {
		return value.Nil(), err
	}
	s.sums[name] = next
	f, _ := next.Float64()
	return value.Float(f), nil
}

// Cumprod is the running product.
func (s *Series) Cumprod(v value.Value, name string) (value.Value, error) {
	cur, ok := s.prods[name]
	if !ok {
		cur = decimal.NewFromInt(1)
	}
	next := cur.Mul(coerce(v))
	if err := checkFinite(next, "cumprod"); err != nil {
		return value.Nil(), err
	}
	s.prods[name] = next
	f, _ := next.Float64()
	return value.Float(f), nil
}

// Cummax is the running maximum.
func (s *Series) Cummax(v value.Value, name string) (value.Value, error) {
	d := coerce(v)
	cur, seen := s.maxes[name]
	if !seen || d.GreaterThan(cur) {
		cur = d
	}
	s.maxes[name] = cur
	f, _ := cur.Float64()
	return value.Float(f), nil
}

// Cummin is the running minimum.
func (s *Series) Cummin(v value.Value, name string) (value.Value, error) {
	d := coerce(v)
	cur, seen := s.mins[name]
	if !seen || d.LessThan(cur) {
		cur = d
	}
	s.mins[name] = cur
	f, _ := cur.Float64()
	return value.Float(f), nil
}

// Cumany is true once any row's argument has been truthy (sticky true).
func (s *Series) Cumany(v value.Value, name string) value.Value {
	s.anys[name] = s.anys[name] || v.Truthy()
	return value.Bool(s.anys[name])
}

// Cumall is true until the first falsy row, then sticky false. The first
// call for a series seeds it true.
func (s *Series) Cumall(v value.Value, name string) value.Value {
	cur, seen := s.alls[name]
	if !seen {
		cur = true
	}
	cur = cur && v.Truthy()
	s.alls[name] = cur
	return value.Bool(cur)
}

// ring is a fixed-capacity history buffer backing lag/diff.
type ring struct {
	buf  []value.Value
	k    int
	fill int
}

func newRing(k int) *ring {
	if k < 1 {
		k = 1
	}
	return &ring{buf: make([]value.Value, k), k: k}
}

// push records v and returns the value k steps back, or (zero, false)
// while the ring hasn't filled yet.
func (r *ring) push(v value.Value) (value.Value, bool) {
	var out value.Value
	ok := r.fill >= r.k
	if ok {
		out = r.buf[0]
		copy(r.buf, r.buf[1:])
		r.buf[r.k-1] = v
	} else {
		r.buf[r.fill] = v
		r.fill++
	}
	return out, ok
}

// Lag emits a default value for the first k rows of a series, then the
// value seen k rows ago (spec.md §4.8, and the testable property in §8).
func (s *Series) Lag(v value.Value, k int, def value.Value, name string) value.Value {
	key := lagKey(name, k)
	r, ok := s.lags[key]
	if !ok {
		r = newRing(k)
		s.lags[key] = r
	}
	out, full := r.push(v)
	if !full {
		return def
	}
	return out
}

func lagKey(name string, k int) string { return fmt.Sprintf("%s\x00%d", name, k) }

// Diff is v_i - v_{i-k}, 0 while the lag isn't available yet.
func (s *Series) Diff(v value.Value, k int, name string) (value.Value, error) {
	key := lagKey(name, k)
	r, ok := s.diffs[key]
	if !ok {
		r = newRing(k)
		s.diffs[key] = r
	}
	prev, full := r.push(v)
	if !full {
		return value.Float(0), nil
	}
	cur := coerce(v)
	prevD := coerce(prev)
	d := cur.Sub(prevD)
	if err := checkFinite(d, "diff"); err != nil {
		return value.Nil(), err
	}
	f, _ := d.Float64()
	return value.Float(f), nil
}

type accumState struct {
	acc   value.Value
	ready bool
}

// Accumulate applies fn(acc, v) each row; the initial accumulator is init
// if supplied, else the first value seen — so the first emitted cell is
// fn(v1, v1) per spec.md §4.8.
func (s *Series) Accumulate(name string, v value.Value, init *value.Value, fn func(acc, v value.Value) (value.Value, error)) (value.Value, error) {
	st, ok := s.accums[name]
	if !ok {
		st = &accumState{}
		s.accums[name] = st
	}
	if !st.ready {
		if init != nil {
			st.acc = *init
		} else {
			st.acc = v
		}
		st.ready = true
	}
	next, err := fn(st.acc, v)
	if err != nil {
		return value.Nil(), err
	}
	st.acc = next
	return next, nil
}
