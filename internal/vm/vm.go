// Package vm implements Fer's call-frame stack, value stack, globals and
// string intern pool, the decode/dispatch loop, and the mark-and-sweep
// garbage collector that backs them.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/xirelogy/go-fer/internal/chunk"
	"github.com/xirelogy/go-fer/internal/table"
	"github.com/xirelogy/go-fer/internal/value"
)

const (
	// MaxFrames bounds simultaneous call-frame depth; the 65th nested call
	// is a runtime "Stack overflow".
	MaxFrames = 64
	// StackPerFrame sizes the value stack's per-frame allowance.
	StackPerFrame = 256
	// StackSize is the VM's total, address-stable value stack size. It is a
	// fixed-size array (never a slice that might reallocate) so that open
	// upvalues, which alias into live stack slots by index, stay valid.
	StackSize = MaxFrames * StackPerFrame
)

// CallFrame is one ongoing function invocation.
type CallFrame struct {
	Closure *value.ClosureObj
	IP      int
	Base    int // index into VM.stack where this frame's slot 0 lives
}

// TraceInfo describes a single instruction dispatch, for an injected trace
// hook.
type TraceInfo struct {
	Op       chunk.OpCode
	Function string
	Line     int
	IP       int
}

// TraceHook observes instruction dispatch for debugging.
type TraceHook func(TraceInfo)

// Result is the tri-state outcome of Interpret.
type Result int

const (
	ResultOK Result = iota
	ResultCompileError
	ResultRuntimeError
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultCompileError:
		return "compile_error"
	case ResultRuntimeError:
		return "runtime_error"
	default:
		return "unknown"
	}
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithStressGC forces a collection on every allocation, for GC testing.
func WithStressGC() Option { return func(v *VM) { v.stressGC = true } }

// WithTraceHook installs a per-instruction trace hook.
func WithTraceHook(h TraceHook) Option { return func(v *VM) { v.traceHook = h } }

// WithInstructionLimit caps the number of dispatched instructions, aborting
// with a runtime error once exceeded. Zero (the default) means unlimited.
func WithInstructionLimit(n int) Option { return func(v *VM) { v.instructionLimit = n } }

// WithStdout redirects PRINT output; defaults to os.Stdout.
func WithStdout(w io.Writer) Option { return func(v *VM) { v.Stdout = w } }

// VM is Fer's virtual machine: value stack, call frames, globals,
// intern pool, open-upvalue list, and GC bookkeeping.
type VM struct {
	stack    [StackSize]value.Value
	stackTop int

	frames     [MaxFrames]CallFrame
	frameCount int

	globals     *table.Table
	permGlobals *table.Table
	strings     *table.Interner
	initString  *value.StringObj

	openUpvalues *value.UpvalueObj

	objects        value.Object // head of the intrusive allocation list
	bytesAllocated int
	nextGC         int
	stressGC       bool
	gcEnabled      bool
	gray           []value.Object

	traceHook        TraceHook
	instructionLimit int
	instructionCount int

	Stdout io.Writer
}

// New constructs a VM ready to run Interpret.
func New(opts ...Option) *VM {
	v := &VM{
		globals:     table.New(),
		permGlobals: table.New(),
		strings:     table.NewInterner(),
		nextGC:      1 << 20,
		gcEnabled:   true,
		Stdout:      os.Stdout,
	}
	v.initString = v.NewString("init")
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ResetStack drops every frame and value, used after a runtime error and
// before a fresh top-level Interpret call.
func (v *VM) ResetStack() {
	v.stackTop = 0
	v.frameCount = 0
	v.openUpvalues = nil
}

func (v *VM) push(val value.Value) {
	v.stack[v.stackTop] = val
	v.stackTop++
}

func (v *VM) pop() value.Value {
	v.stackTop--
	return v.stack[v.stackTop]
}

func (v *VM) peek(distance int) value.Value {
	return v.stack[v.stackTop-1-distance]
}

// DefineNative publishes a host callable into the globals table under name.
func (v *VM) DefineNative(name string, fn value.NativeFn, arity int) {
	nameObj := v.NewString(name)
	native := v.newNative(name, arity, fn)
	v.globals.Set(nameObj, value.FromObject(native))
}

// Globals exposes the globals table for host introspection.
func (v *VM) Globals() *table.Table { return v.globals }

// NewString returns the interned StringObj for s, allocating a new one only
// on first sight of this content.
func (v *VM) NewString(s string) *value.StringObj {
	return v.strings.Intern(s, func(chars string, hash uint32) *value.StringObj {
		obj := &value.StringObj{Chars: chars, Hash: hash}
		v.link(obj)
		return obj
	})
}

func (v *VM) link(o value.Object) {
	h := o.Header()
	h.Next = v.objects
	v.objects = o
	v.bytesAllocated += approxSize(o)
	if v.gcEnabled && (v.stressGC || v.bytesAllocated > v.nextGC) {
		v.collectGarbage()
	}
}

// approxSize gives a rough per-object byte weight used only for GC pacing.
// Fer's mark-sweep is a simulated ownership/testability layer over Go's own
// real allocator (see DESIGN.md); exact byte counts are not load-bearing.
func approxSize(o value.Object) int {
	switch obj := o.(type) {
	case *value.StringObj:
		return 32 + len(obj.Chars)
	case *value.ListObj:
		return 32 + 16*len(obj.Elements)
	default:
		return 48
	}
}

func (v *VM) newList(elements []value.Value) *value.ListObj {
	l := &value.ListObj{Elements: elements}
	v.link(l)
	return l
}

func (v *VM) newDict() *value.DictObj {
	d := &value.DictObj{Table: table.New()}
	v.link(d)
	return d
}

// NewListValue allocates a list object from elements, for host code
// marshaling a Go slice into a Fer value.
func (v *VM) NewListValue(elements []value.Value) *value.ListObj { return v.newList(elements) }

// NewDictValue allocates an empty dict object, for host code marshaling a
// Go map into a Fer value.
func (v *VM) NewDictValue() *value.DictObj { return v.newDict() }

// NewFunction allocates an empty function object; the compiler fills in its
// fields as compilation of its body proceeds.
func (v *VM) NewFunction() *value.FunctionObj {
	f := &value.FunctionObj{Chunk: chunk.New()}
	v.link(f)
	return f
}

func (v *VM) newNative(name string, arity int, fn value.NativeFn) *value.NativeObj {
	n := &value.NativeObj{Name: name, Arity: arity, Fn: fn}
	v.link(n)
	return n
}

func (v *VM) newClosure(fn *value.FunctionObj) *value.ClosureObj {
	c := &value.ClosureObj{Function: fn, Upvalues: make([]*value.UpvalueObj, fn.UpvalueCount)}
	v.link(c)
	return c
}

func (v *VM) newClass(name *value.StringObj) *value.ClassObj {
	c := &value.ClassObj{Name: name, Methods: table.New()}
	v.link(c)
	return c
}

func (v *VM) newInstance(class *value.ClassObj) *value.InstanceObj {
	i := &value.InstanceObj{Class: class, Fields: table.New()}
	v.link(i)
	return i
}

func (v *VM) newBoundMethod(receiver value.Value, method *value.ClosureObj) *value.BoundMethodObj {
	b := &value.BoundMethodObj{Receiver: receiver, Method: method}
	v.link(b)
	return b
}

// RuntimeError describes a dispatch-time failure, with a top-down frame
// backtrace.
type RuntimeError struct {
	Message string
	Stack   []FrameInfo
	Cause   error
}

// FrameInfo names one frame in a runtime-error backtrace.
type FrameInfo struct {
	Function string
	Line     int
}

func (e *RuntimeError) Error() string {
	s := e.Message
	for _, f := range e.Stack {
		s += fmt.Sprintf("\n[line %d] in %s", f.Line, f.Function)
	}
	return s
}

func (e *RuntimeError) Unwrap() error { return e.Cause }
