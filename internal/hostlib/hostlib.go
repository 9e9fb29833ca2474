// Package hostlib wires internal/analytic, internal/lookup,
// internal/subprocess, internal/csvindex and the misc helpers of spec.md
// §4.9 into a single host-function table, registered against one
// internal/script.Runtime per Invocation. Grounded on the dispatch-table
// pattern the teacher uses for its AI-agent tool calls (internal/app/agent/
// tools.go, executor.go): one map from name to handler, installed in a
// loop rather than as one long hand-written switch.
package hostlib

import (
	"context"
	"os"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"rowforge/internal/analytic"
	"rowforge/internal/csvindex"
	"rowforge/internal/logging"
	"rowforge/internal/lookup"
	"rowforge/internal/output"
	"rowforge/internal/script"
	"rowforge/internal/subprocess"
	"rowforge/internal/value"
)

// Host holds every piece of state the host-function table closes over for
// one Invocation.
type Host struct {
	Series   *analytic.Series
	Registry *lookup.Registry
	Loader   *lookup.Loader
	Runner   *subprocess.Runner
	Logger   *zap.Logger
	Ctx      context.Context

	CSVPath   string
	HasHeader bool
	Comma     byte
	Index     *csvindex.Index // set by autoindex(), consulted by the Stream Driver

	OW         *output.Writer // set by the engine; insertrecord() stages into it
	CurrentIDX int64          // updated by the Stream Driver before each exec

	// DefaultMaxAge is used by register_lookup when its third argument is
	// omitted (config.Config.DefaultMaxAgeSeconds).
	DefaultMaxAge int64

	// Catalog, when configured (config.Config.PostgresDSN), durably
	// records every lookup this Invocation registers.
	Catalog *lookup.PGCatalog

	rt *script.Runtime // set by RegisterAll, used to publish _LASTROW once autoindex runs

	// BreakRequested/BreakMessage and SkipRequested are control-flow
	// signals break()/skip() raise from inside a running fragment; the
	// Stream Driver checks them after each Exec, and Reset clears
	// SkipRequested before each record (spec.md §4.4).
	BreakRequested bool
	BreakMessage   string
	SkipRequested  bool
}

// New creates a Host for one Invocation.
func New(ctx context.Context, loader *lookup.Loader, runner *subprocess.Runner, logger *zap.Logger, csvPath string, hasHeader bool, comma byte) *Host {
	return &Host{
		Series:    analytic.New(),
		Registry:  lookup.NewRegistry(),
		Loader:    loader,
		Runner:    runner,
		Logger:    logger,
		Ctx:       ctx,
		CSVPath:   csvPath,
		HasHeader: hasHeader,
		Comma:     comma,
	}
}

// RegisterAll installs every host function from spec.md §4.6-4.9 into rt.
func (h *Host) RegisterAll(rt *script.Runtime) {
	h.rt = rt
	fns := map[string]lua.LGFunction{
		"break":           h.breakFn,
		"skip":            h.skipFn,
		"coalesce":        h.coalesceFn,
		"setenv":          h.setenvFn,
		"getenv":          h.getenvFn,
		"log":             h.logFn,
		"autoindex":       h.autoindexFn,
		"cmd":             h.cmdFn,
		"shellcmd":        h.shellcmdFn,
		"cumsum":          h.cumFn(h.Series.Cumsum),
		"cumprod":         h.cumFn(h.Series.Cumprod),
		"cummax":          h.cumFn(h.Series.Cummax),
		"cummin":          h.cumFn(h.Series.Cummin),
		"cumany":          h.cumBoolFn(h.Series.Cumany),
		"cumall":          h.cumBoolFn(h.Series.Cumall),
		"lag":             h.lagFn,
		"diff":            h.diffFn,
		"accumulate":      h.accumulateFn,
		"register_lookup": h.registerLookupFn,
		"loadcsv":         h.loadcsvFn,
		"loadjson":        h.loadjsonFn,
		"writejson":       h.writejsonFn,
		"writefile":       h.writefileFn,
		"insertrecord":    h.insertrecordFn,
	}
	for name, fn := range fns {
		rt.RegisterFunc(name, fn)
	}
}

// --- spec.md §4.4 host-side early exits ---

func (h *Host) breakFn(L *lua.LState) int {
	h.BreakRequested = true
	h.BreakMessage = script.CheckArg(L, 1).AsString()
	return 0
}

func (h *Host) skipFn(L *lua.LState) int {
	h.SkipRequested = true
	return 0
}

// Reset clears the per-record control-flow signals; called by the Stream
// Driver before executing the next record's main fragment.
func (h *Host) Reset() {
	h.SkipRequested = false
}

// --- spec.md §4.9 misc helpers ---

func (h *Host) coalesceFn(L *lua.LState) int {
	n := L.GetTop()
	for i := 1; i <= n; i++ {
		v := script.CheckArg(L, i)
		if v.Kind == value.KString && v.S != "" {
			L.Push(script.ToLua(L, v))
			return 1
		}
	}
	L.Push(lua.LString(""))
	return 1
}

func (h *Host) setenvFn(L *lua.LState) int {
	k := script.CheckArg(L, 1).AsString()
	v := script.CheckArg(L, 2).AsString()
	_ = os.Setenv(k, v)
	return 0
}

func (h *Host) getenvFn(L *lua.LState) int {
	k := script.CheckArg(L, 1).AsString()
	L.Push(lua.LString(os.Getenv(k)))
	return 1
}

// logFn concatenates its arguments' string forms and writes them to the
// configured zap sink at the requested level (spec.md §4.9: "an external
// collaborator").
func (h *Host) logFn(L *lua.LState) int {
	level := script.CheckArg(L, 1).AsString()
	var msg string
	for i := 2; i <= L.GetTop(); i++ {
		msg += script.CheckArg(L, i).AsString()
	}
	if h.Logger == nil {
		return 0
	}
	logging.Log(h.Logger, logging.Level(level), msg)
	return 0
}

func (h *Host) autoindexFn(L *lua.LState) int {
	idx, err := csvindex.Ensure(h.CSVPath, h.HasHeader, h.Comma)
	if err != nil {
		L.Push(lua.LBool(false))
		return 1
	}
	h.Index = idx
	if h.rt != nil {
		h.rt.SetGlobal("_LASTROW", value.Int(idx.Len()-1))
	}
	L.Push(lua.LBool(true))
	return 1
}

// --- spec.md §4.7 whitelisted subprocess ---

func (h *Host) cmdFn(L *lua.LState) int {
	invocation := script.CheckArg(L, 1).AsString()
	res, err := h.Runner.Cmd(invocation)
	return h.pushSubprocessResult(L, res, err)
}

func (h *Host) shellcmdFn(L *lua.LState) int {
	program := script.CheckArg(L, 1).AsString()
	argsStr := script.CheckArg(L, 2).AsString()
	res, err := h.Runner.Shellcmd(program, argsStr)
	return h.pushSubprocessResult(L, res, err)
}

func (h *Host) pushSubprocessResult(L *lua.LState, res subprocess.Result, err error) int {
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	t := L.NewTable()
	t.RawSetString("stdout", lua.LString(res.Stdout))
	t.RawSetString("stderr", lua.LString(res.Stderr))
	t.RawSetString("exitcode", lua.LNumber(res.ExitCode))
	L.Push(t)
	return 1
}

// --- spec.md §4.8 analytic helpers ---

// cumFn adapts a (value, name) -> (value, error) analytic method into a
// host function taking an optional trailing series-name argument.
func (h *Host) cumFn(fn func(value.Value, string) (value.Value, error)) lua.LGFunction {
	return func(L *lua.LState) int {
		v := script.CheckArg(L, 1)
		name := optionalSeriesName(L, 2)
		out, err := fn(v, name)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(script.ToLua(L, out))
		return 1
	}
}

func (h *Host) cumBoolFn(fn func(value.Value, string) value.Value) lua.LGFunction {
	return func(L *lua.LState) int {
		v := script.CheckArg(L, 1)
		name := optionalSeriesName(L, 2)
		L.Push(script.ToLua(L, fn(v, name)))
		return 1
	}
}

func optionalSeriesName(L *lua.LState, idx int) string {
	if idx > L.GetTop() {
		return ""
	}
	v := script.CheckArg(L, idx)
	if v.Kind == value.KNil {
		return ""
	}
	return v.AsString()
}

func (h *Host) lagFn(L *lua.LState) int {
	v := script.CheckArg(L, 1)
	k := 1
	if L.GetTop() >= 2 {
		if f, ok := script.CheckArg(L, 2).AsFloat(); ok {
			k = int(f)
		}
	}
	def := value.Str("")
	if L.GetTop() >= 3 {
		def = script.CheckArg(L, 3)
	}
	name := optionalSeriesName(L, 4)
	out := h.Series.Lag(v, k, def, name)
	L.Push(script.ToLua(L, out))
	return 1
}

func (h *Host) diffFn(L *lua.LState) int {
	v := script.CheckArg(L, 1)
	k := 1
	if L.GetTop() >= 2 {
		if f, ok := script.CheckArg(L, 2).AsFloat(); ok {
			k = int(f)
		}
	}
	name := optionalSeriesName(L, 3)
	out, err := h.Series.Diff(v, k, name)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(script.ToLua(L, out))
	return 1
}

// accumulateFn implements accumulate(v, fn, [init]): fn is a Lua function
// value, called back into the VM for each row (spec.md §4.8).
func (h *Host) accumulateFn(L *lua.LState) int {
	v := script.CheckArg(L, 1)
	fnVal := L.Get(2)
	luaFn, ok := fnVal.(*lua.LFunction)
	if !ok {
		L.RaiseError("accumulate: second argument must be a function")
		return 0
	}
	var init *value.Value
	if L.GetTop() >= 3 {
		iv := script.CheckArg(L, 3)
		if iv.Kind != value.KNil {
			init = &iv
		}
	}
	callback := func(acc, cur value.Value) (value.Value, error) {
		if err := L.CallByParam(lua.P{Fn: luaFn, NRet: 1, Protect: true}, script.ToLua(L, acc), script.ToLua(L, cur)); err != nil {
			return value.Nil(), err
		}
		ret := L.Get(-1)
		L.Pop(1)
		return script.FromLua(ret), nil
	}
	out, err := h.Series.Accumulate("", v, init, callback)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(script.ToLua(L, out))
	return 1
}

// --- spec.md §4.6 lookup / resource loader ---

func (h *Host) registerLookupFn(L *lua.LState) int {
	name := script.CheckArg(L, 1).AsString()
	source := script.CheckArg(L, 2).AsString()
	maxAge := h.DefaultMaxAge
	if L.GetTop() >= 3 {
		if f, ok := script.CheckArg(L, 3).AsFloat(); ok {
			maxAge = int64(f)
		}
	}
	headers, err := h.Loader.RegisterLookup(h.Ctx, h.Registry, name, source, maxAge)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("register_lookup failed", zap.String("name", name), zap.Error(err))
		}
		L.Push(lua.LNil)
		return 1
	}
	if tv, ok := h.Registry.TableValue(name); ok {
		L.SetGlobal(name, script.ToLua(L, tv))
	}
	h.recordCatalog(name, source)
	seq := make([]value.Value, len(headers))
	for i, hd := range headers {
		seq[i] = value.Str(hd)
	}
	L.Push(script.ToLua(L, value.Seq(seq)))
	return 1
}

// recordCatalog durably notes a registered lookup's source when a
// PGCatalog is configured; Catalog is nil-receiver-safe so this is a
// no-op otherwise.
func (h *Host) recordCatalog(name, source string) {
	if h.Catalog == nil {
		return
	}
	if err := h.Catalog.Record(h.Ctx, name, source); err != nil && h.Logger != nil {
		h.Logger.Warn("recording lookup in postgres catalogue failed", zap.String("name", name), zap.Error(err))
	}
}

func (h *Host) loadcsvFn(L *lua.LState) int {
	name := script.CheckArg(L, 1).AsString()
	path := script.CheckArg(L, 2).AsString()
	keyCol := 0
	if L.GetTop() >= 3 {
		if f, ok := script.CheckArg(L, 3).AsFloat(); ok {
			keyCol = int(f)
		}
	}
	headers, err := h.Loader.LoadCSV(h.Registry, name, path, keyCol)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("loadcsv failed", zap.String("name", name), zap.Error(err))
		}
		L.Push(lua.LNil)
		return 1
	}
	if tv, ok := h.Registry.TableValue(name); ok {
		L.SetGlobal(name, script.ToLua(L, tv))
	}
	h.recordCatalog(name, path)
	seq := make([]value.Value, len(headers))
	for i, hd := range headers {
		seq[i] = value.Str(hd)
	}
	L.Push(script.ToLua(L, value.Seq(seq)))
	return 1
}

func (h *Host) loadjsonFn(L *lua.LState) int {
	name := script.CheckArg(L, 1).AsString()
	path := script.CheckArg(L, 2).AsString()
	if err := lookup.LoadJSON(h.Registry, name, path); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("loadjson failed", zap.String("name", name), zap.Error(err))
		}
		L.Push(lua.LNil)
		return 1
	}
	v, _ := h.Registry.JSON(name)
	L.SetGlobal(name, script.ToLua(L, v))
	L.Push(lua.LBool(true))
	return 1
}

func (h *Host) writejsonFn(L *lua.LState) int {
	v := script.CheckArg(L, 1)
	path := script.CheckArg(L, 2).AsString()
	pretty := false
	if L.GetTop() >= 3 {
		pretty = script.CheckArg(L, 3).Truthy()
	}
	if err := lookup.WriteJSON(v, path, pretty); err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	return 0
}

// insertrecordFn implements insertrecord(...): stages a row into the
// Output Writer's insert queue, to be drained immediately after the
// currently-processing row is emitted (spec.md §4.5).
func (h *Host) insertrecordFn(L *lua.LState) int {
	n := L.GetTop()
	fields := make([]string, n)
	for i := 1; i <= n; i++ {
		fields[i-1] = script.CheckArg(L, i).AsString()
	}
	if h.OW != nil {
		h.OW.QueueInsert(h.CurrentIDX, fields)
	}
	return 0
}

func (h *Host) writefileFn(L *lua.LState) int {
	path := script.CheckArg(L, 1).AsString()
	contents := script.CheckArg(L, 2).AsString()
	if err := lookup.WriteFile(path, contents); err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	return 0
}
