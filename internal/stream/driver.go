// Package stream implements the Stream Driver (SD, spec.md §4.4): the
// Init -> Forward|Random -> Done state machine that reads records, binds
// special variables, executes the main fragment, and feeds results to the
// Output Writer, including insert-queue draining and host-side break/skip.
package stream

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rowforge/internal/hostlib"
	"rowforge/internal/output"
	"rowforge/internal/preprocess"
	"rowforge/internal/record"
	"rowforge/internal/script"
	"rowforge/internal/svb"
	"rowforge/internal/value"
)

// Driver runs one Invocation's record stream to completion.
type Driver struct {
	RT     *script.Runtime
	Host   *hostlib.Host
	Source *record.Source
	OW     *output.Writer
	Opts   svb.Options
	Mode   output.Mode

	Stderr io.Writer // END's return value and break() message go here

	// tracer spans each row's main-fragment execution, the direct sibling
	// of the teacher's internal/app/agent/executor.go wrapping each tool
	// call with e.tracer.Start(ctx, fc.Name, ...).
	tracer trace.Tracer

	begin, main, end *script.Handle

	state      svb.State
	errorCount int
	idxCounter int64
	lastResult value.Value
}

// New compiles the three script fragments and builds a Driver.
func New(rt *script.Runtime, host *hostlib.Host, src *record.Source, ow *output.Writer, opts svb.Options, mode output.Mode, frags preprocess.Fragments, stderr io.Writer) (*Driver, error) {
	begin, err := rt.Compile(frags.Begin)
	if err != nil {
		return nil, fmt.Errorf("compiling begin fragment: %w", err)
	}
	main, err := rt.Compile(frags.Main)
	if err != nil {
		return nil, fmt.Errorf("compiling main fragment: %w", err)
	}
	end, err := rt.Compile(frags.End)
	if err != nil {
		return nil, fmt.Errorf("compiling end fragment: %w", err)
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Driver{
		RT: rt, Host: host, Source: src, OW: ow, Opts: opts, Mode: mode,
		Stderr: stderr, begin: begin, main: main, end: end,
		tracer: otel.Tracer("rowforge/stream"),
		state:  svb.State{LastRow: -1},
	}, nil
}

// Run drives the full state machine to completion and returns the number
// of runtime errors the begin, main and end fragments raised (spec.md
// §4.2: "Luau errors encountered: <N>"). Compile errors are reported by
// New instead.
func (d *Driver) Run() (int, error) {
	if d.Host.Index != nil {
		d.state.LastRow = d.Host.Index.Len() - 1
	}

	if err := d.OW.WriteHeader(d.Source.Headers()); err != nil {
		return d.errorCount, fmt.Errorf("writing output header: %w", err)
	}

	done, err := d.runInit()
	if err != nil {
		return d.errorCount, err
	}
	if d.Host.Index != nil {
		// begin may have called autoindex() itself, so LastRow can only
		// be known for certain once Init has finished running.
		d.state.LastRow = d.Host.Index.Len() - 1
	}
	if !done {
		// BEGIN sets _INDEX to enter Random; if _INDEX also requires an
		// index that doesn't exist, that's an invocation-level failure
		// (spec.md §4.4: "Calling random-mode operations without an
		// index fails the invocation").
		if idxVal := d.RT.GetGlobal("_INDEX"); idxVal.Kind != value.KNil {
			if d.Host.Index == nil {
				return d.errorCount, fmt.Errorf("random-access mode requires a byte-offset index; call autoindex() in begin first")
			}
			if err := d.runRandom(idxVal); err != nil {
				return d.errorCount, err
			}
		} else {
			if err := d.runForward(); err != nil {
				return d.errorCount, err
			}
		}
	}

	if err := d.runEnd(); err != nil {
		return d.errorCount, err
	}
	if err := d.OW.Flush(); err != nil {
		return d.errorCount, err
	}
	return d.errorCount, nil
}

// runInit executes the begin fragment once (Init state). The returned
// bool is true when the invocation is already Done (begin called break()).
func (d *Driver) runInit() (bool, error) {
	d.state.RowCount = 0
	d.RT.SetGlobal("_ROWCOUNT", value.Int(0))
	if d.state.LastRow >= 0 {
		d.RT.SetGlobal("_LASTROW", value.Int(d.state.LastRow))
	}

	if _, err := d.RT.Exec(d.begin); err != nil {
		d.errorCount++
		fmt.Fprintln(d.Stderr, err.Error())
	}
	if d.Host.BreakRequested {
		d.reportBreak()
		return true, nil
	}
	return false, nil
}

func (d *Driver) reportBreak() {
	if d.Host.BreakMessage != "" {
		fmt.Fprintln(d.Stderr, d.Host.BreakMessage)
	}
}

// runForward implements the Forward state: sequential read, one record at
// a time, in file order.
func (d *Driver) runForward() error {
	headers := d.Source.Headers()
	for {
		rec, err := d.Source.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading record: %w", err)
		}
		d.idxCounter = rec.IDX
		index := rec.IDX - 1

		mainErr, skipped := d.execMain(headers, rec.Fields, rec.IDX, index)
		if err := d.consumeOutput(rec.Fields, mainErr, skipped); err != nil {
			return err
		}
		if err := d.OW.DrainInsertsFor(rec.IDX, false); err != nil {
			return err
		}
		if d.Host.BreakRequested {
			d.reportBreak()
			return nil
		}
	}
}

// runRandom implements the Random state, starting from the cursor BEGIN
// left in _INDEX.
func (d *Driver) runRandom(initial value.Value) error {
	f, ok := initial.AsFloat()
	if !ok {
		return nil
	}
	index := int64(f)
	headers := d.Source.Headers()

	for index >= 0 && index <= d.state.LastRow {
		offset := d.Host.Index.Offsets[index]
		fields, err := d.Source.ReadAt(offset)
		if err != nil {
			return fmt.Errorf("reading record at offset %d: %w", offset, err)
		}
		d.idxCounter++
		idx := d.idxCounter

		mainErr, skipped := d.execMain(headers, fields, idx, index)
		if err := d.consumeOutput(fields, mainErr, skipped); err != nil {
			return err
		}
		if err := d.OW.DrainInsertsFor(idx, false); err != nil {
			return err
		}
		if d.Host.BreakRequested {
			d.reportBreak()
			return nil
		}

		next, ok := svb.ReadIndex(d.RT)
		if !ok {
			return nil
		}
		index = next
	}
	return nil
}

// execMain binds special variables, runs main, and reports whether the
// row errored or was skipped.
func (d *Driver) execMain(headers, fields []string, idx, index int64) (mainErr error, skipped bool) {
	d.Host.Reset()
	d.Host.CurrentIDX = idx
	d.state.RowCount++
	svb.Bind(d.RT, headers, fields, idx, index, &d.state, d.Opts)

	ctx := d.Host.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := d.tracer.Start(ctx, "exec-row", trace.WithAttributes(attribute.Int64("rowforge.idx", idx)))
	defer span.End()

	vals, err := d.RT.Exec(d.main)
	if err != nil {
		span.RecordError(err)
		d.errorCount++
		fmt.Fprintln(d.Stderr, err.Error())
		return err, false
	}
	d.lastResult = firstOrNil(vals)
	return nil, d.Host.SkipRequested
}

func firstOrNil(vals []value.Value) value.Value {
	if len(vals) == 0 {
		return value.Nil()
	}
	if len(vals) == 1 {
		return vals[0]
	}
	return value.Seq(vals)
}

// consumeOutput hands the record's result to the Output Writer according
// to mode, applying fail-open/fail-unchanged/skip semantics.
func (d *Driver) consumeOutput(fields []string, mainErr error, skipped bool) error {
	switch d.Mode {
	case output.ModeMap:
		if skipped && mainErr == nil {
			// spec.md §4.4: skip() means "no appended row" at all, distinct
			// from the error case which still emits the row unchanged.
			return nil
		}
		return d.OW.EmitMap(fields, d.lastResult, mainErr != nil)
	case output.ModeFilter:
		keep := mainErr != nil || (!skipped && d.lastResult.Truthy())
		return d.OW.EmitFilter(fields, keep)
	default:
		return nil
	}
}

// runEnd executes the end fragment once (Done state), writes its return
// value to stderr, and drains any remaining insert-queue entries.
func (d *Driver) runEnd() error {
	d.RT.SetGlobal("_ROWCOUNT", value.Int(d.state.RowCount))
	vals, err := d.RT.Exec(d.end)
	if err != nil {
		d.errorCount++
		fmt.Fprintln(d.Stderr, err.Error())
	} else if len(vals) > 0 {
		fmt.Fprintln(d.Stderr, vals[0].AsString())
	}
	return d.OW.DrainInsertsFor(-1, true)
}
