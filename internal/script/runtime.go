// Package script owns the Script Runtime (SR, spec.md §4.2): one VM
// instance per invocation, its globals, and the registered host-function
// table. The VM itself is github.com/yuin/gopher-lua, the closest
// ecosystem equivalent to an embeddable sandboxed scripting VM available
// without cgo — grounded on the state-pooled Lua engine in other_examples'
// ygalsk-keystone-gateway internal/lua and the script/VM split in
// mrdon-twist's internal/proxy/scripting.
package script

import (
	lua "github.com/yuin/gopher-lua"
)

// Runtime wraps one VM and its shared Globals Frame.
type Runtime struct {
	L *lua.LState
}

// New creates a VM with only the base/string/table/math libraries loaded
// — no os/io/package libraries, so scripts never see a native filesystem
// or process API beyond what the host explicitly registers (spec.md §1
// Non-goals).
func New() *Runtime {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, pair := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.StringLibName, lua.OpenString},
		{lua.TableLibName, lua.OpenTable},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(pair.fn))
		L.Push(lua.LString(pair.name))
		L.Call(1, 0)
	}
	// The base library still carries file loaders; remove them.
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	return &Runtime{L: L}
}

// Close releases the VM.
func (r *Runtime) Close() { r.L.Close() }

// RegisterFunc installs a host function under name in the Globals Frame.
func (r *Runtime) RegisterFunc(name string, fn lua.LGFunction) {
	r.L.SetGlobal(name, r.L.NewFunction(fn))
}

// SetGlobal writes a host Value into the Globals Frame.
func (r *Runtime) SetGlobal(name string, v Value) {
	r.L.SetGlobal(name, toLua(r.L, v))
}

// GetGlobal reads a Value back out of the Globals Frame.
func (r *Runtime) GetGlobal(name string) Value {
	return fromLua(r.L.GetGlobal(name))
}

// Handle is a compiled script fragment, ready to be executed repeatedly
// against the shared Globals Frame (spec.md §4.2: "compiles once; the
// same compiled handle may be executed per-row").
type Handle struct {
	fn *lua.LFunction
}

// Compile parses and compiles fragment without running it. An empty
// fragment compiles to a no-op handle.
func (r *Runtime) Compile(fragment string) (*Handle, error) {
	if fragment == "" {
		return &Handle{}, nil
	}
	fn, err := r.L.LoadString(fragment)
	if err != nil {
		return nil, err
	}
	return &Handle{fn: fn}, nil
}

// Exec runs h in the shared Globals Frame and returns its return values
// in order (a single scalar, or the several values of a multi-value
// `return a, b, c`).
func (r *Runtime) Exec(h *Handle) ([]Value, error) {
	if h == nil || h.fn == nil {
		return nil, nil
	}
	top0 := r.L.GetTop()
	r.L.Push(h.fn)
	if err := r.L.PCall(0, lua.MultRet, nil); err != nil {
		r.L.SetTop(top0)
		return nil, err
	}
	n := r.L.GetTop() - top0
	vals := make([]Value, n)
	for i := 0; i < n; i++ {
		vals[i] = fromLua(r.L.Get(top0 + 1 + i))
	}
	r.L.SetTop(top0)
	return vals, nil
}
