// Package fer is the host embedding facade: a thin, reflection-based bridge
// between ordinary Go values and Fer's internal value.Value representation,
// plus a VM configurator wrapping internal/vm.VM with file/source loading,
// host-function binding, and a synchronous and asynchronous call surface.
package fer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/xirelogy/go-fer/internal/value"
	"github.com/xirelogy/go-fer/internal/vm"
)

// VmValue is a marshaled value compatible with Fer scripts. It wraps the
// internal value.Value representation and (for heap values) the VM that
// owns them, so reads back out can intern/allocate correctly.
type VmValue struct {
	v     value.Value
	owner *VM
}

// ArgError is a typed argument-validation error for host functions.
type ArgError struct {
	Name string
	Want string
	Got  string
}

func (e ArgError) Error() string {
	switch {
	case e.Name != "" && e.Want != "" && e.Got != "":
		return fmt.Sprintf("argument %q: want %s, got %s", e.Name, e.Want, e.Got)
	case e.Name != "" && e.Want != "":
		return fmt.Sprintf("argument %q: want %s", e.Name, e.Want)
	default:
		return "argument error"
	}
}

// ValueKind mirrors Fer's runtime type names for convenient inspection.
type ValueKind int

const (
	ValueNil ValueKind = iota
	ValueBool
	ValueNumber
	ValueString
	ValueList
	ValueDict
	ValueFunction
	ValueClass
	ValueInstance
)

func (k ValueKind) String() string {
	switch k {
	case ValueNil:
		return "nil"
	case ValueBool:
		return "bool"
	case ValueNumber:
		return "number"
	case ValueString:
		return "string"
	case ValueList:
		return "list"
	case ValueDict:
		return "dict"
	case ValueFunction:
		return "function"
	case ValueClass:
		return "class"
	case ValueInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// FrameTrace describes a single frame in a runtime-error backtrace.
type FrameTrace struct {
	Function string
	Line     int
}

// RuntimeError is a source-aware execution error surfaced from the VM.
type RuntimeError struct {
	Message string
	Stack   []FrameTrace
	Cause   error
}

func (e *RuntimeError) Error() string {
	s := e.Message
	for _, f := range e.Stack {
		s += fmt.Sprintf("\n[line %d] in %s", f.Line, f.Function)
	}
	return s
}

// Unwrap exposes the underlying cause (if any) for errors.Is/As.
func (e *RuntimeError) Unwrap() error { return e.Cause }

func convertRuntimeError(err error) error {
	if err == nil {
		return nil
	}
	rte, ok := err.(*vm.RuntimeError)
	if !ok {
		return err
	}
	out := &RuntimeError{Message: rte.Message, Cause: rte.Cause}
	for _, f := range rte.Stack {
		out.Stack = append(out.Stack, FrameTrace{Function: f.Function, Line: f.Line})
	}
	return out
}

// TraceInfo mirrors one dispatched instruction, for a debug hook.
type TraceInfo struct {
	Function string
	Line     int
	IP       int
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

// HostArgs gives host functions typed accessors over their argument window.
type HostArgs struct {
	vals  []value.Value
	owner *VM
}

func (a HostArgs) arg(name string, i int) (VmValue, error) {
	if i >= len(a.vals) {
		return VmValue{}, ArgError{Name: name, Want: "present"}
	}
	return VmValue{v: a.vals[i], owner: a.owner}, nil
}

// At returns the raw VmValue for argument index i.
func (a HostArgs) At(i int) (VmValue, error) {
	return a.arg(fmt.Sprintf("#%d", i), i)
}

// Number returns argument i as a number.
func (a HostArgs) Number(i int) (float64, error) {
	v, err := a.At(i)
	if err != nil {
		return 0, err
	}
	if n, ok := v.Number(); ok {
		return n, nil
	}
	return 0, ArgError{Name: fmt.Sprintf("#%d", i), Want: "number", Got: v.Kind().String()}
}

// String returns argument i as a string.
func (a HostArgs) String(i int) (string, error) {
	v, err := a.At(i)
	if err != nil {
		return "", err
	}
	if s, ok := v.String(); ok {
		return s, nil
	}
	return "", ArgError{Name: fmt.Sprintf("#%d", i), Want: "string", Got: v.Kind().String()}
}

// Bool returns argument i as a boolean.
func (a HostArgs) Bool(i int) (bool, error) {
	v, err := a.At(i)
	if err != nil {
		return false, err
	}
	if b, ok := v.Bool(); ok {
		return b, nil
	}
	return false, ArgError{Name: fmt.Sprintf("#%d", i), Want: "bool", Got: v.Kind().String()}
}

// Len reports the argument count.
func (a HostArgs) Len() int { return len(a.vals) }

// HostFunc is the signature a Go function must have to be bound into a
// script as a callable native: given its argument window, return a value
// or an error.
type HostFunc func(args HostArgs) (VmValue, error)

// Kind reports v's runtime type.
func (v VmValue) Kind() ValueKind {
	switch v.v.Kind {
	case value.KindNil:
		return ValueNil
	case value.KindBool:
		return ValueBool
	case value.KindNumber:
		return ValueNumber
	case value.KindObj:
		switch v.v.Obj.(type) {
		case *value.StringObj:
			return ValueString
		case *value.ListObj:
			return ValueList
		case *value.DictObj:
			return ValueDict
		case *value.FunctionObj, *value.ClosureObj, *value.NativeObj, *value.BoundMethodObj:
			return ValueFunction
		case *value.ClassObj:
			return ValueClass
		case *value.InstanceObj:
			return ValueInstance
		}
	}
	return ValueNil
}

// IsNil reports whether v is Fer's nil.
func (v VmValue) IsNil() bool { return v.v.IsNil() }

// Bool returns v's boolean payload and whether v is in fact a bool.
func (v VmValue) Bool() (bool, bool) {
	if !v.v.IsBool() {
		return false, false
	}
	return v.v.Bool, true
}

// Number returns v's numeric payload and whether v is in fact a number.
func (v VmValue) Number() (float64, bool) {
	if !v.v.IsNumber() {
		return 0, false
	}
	return v.v.Num, true
}

// String returns v's string payload and whether v is in fact a string.
func (v VmValue) String() (string, bool) {
	s, ok := v.v.Obj.(*value.StringObj)
	if !ok {
		return "", false
	}
	return s.Chars, true
}

// List returns v's elements, marshaled, and whether v is in fact a list.
func (v VmValue) List() ([]VmValue, bool) {
	l, ok := v.v.Obj.(*value.ListObj)
	if !ok {
		return nil, false
	}
	out := make([]VmValue, len(l.Elements))
	for i, e := range l.Elements {
		out[i] = VmValue{v: e, owner: v.owner}
	}
	return out, true
}

// Dict returns v's entries, marshaled, and whether v is in fact a dict.
func (v VmValue) Dict() (map[string]VmValue, bool) {
	d, ok := v.v.Obj.(*value.DictObj)
	if !ok {
		return nil, false
	}
	out := make(map[string]VmValue, len(d.Table.Keys()))
	for _, k := range d.Table.Keys() {
		val, _ := d.Table.Get(k)
		out[k.Chars] = VmValue{v: val, owner: v.owner}
	}
	return out, true
}

// Raw recursively unmarshals v into plain Go values (bool, float64, string,
// []any, map[string]any, nil). Functions, classes, and instances have no
// plain-Go representation and report an error.
func (v VmValue) Raw() (any, error) { return unmarshalToGo(v.v) }

func unmarshalToGo(v value.Value) (any, error) {
	switch v.Kind {
	case value.KindNil:
		return nil, nil
	case value.KindBool:
		return v.Bool, nil
	case value.KindNumber:
		return v.Num, nil
	case value.KindObj:
		switch obj := v.Obj.(type) {
		case *value.StringObj:
			return obj.Chars, nil
		case *value.ListObj:
			out := make([]any, len(obj.Elements))
			for i, e := range obj.Elements {
				rv, err := unmarshalToGo(e)
				if err != nil {
					return nil, err
				}
				out[i] = rv
			}
			return out, nil
		case *value.DictObj:
			out := make(map[string]any, len(obj.Table.Keys()))
			for _, k := range obj.Table.Keys() {
				el, _ := obj.Table.Get(k)
				rv, err := unmarshalToGo(el)
				if err != nil {
					return nil, err
				}
				out[k.Chars] = rv
			}
			return out, nil
		default:
			return nil, fmt.Errorf("Raw: %s values have no plain-Go representation", value.TypeName(v))
		}
	default:
		return nil, fmt.Errorf("Raw: unsupported value kind")
	}
}

// VM configures and runs a Fer program. It wraps an internal/vm.VM with
// source/file loading, host-function binding, and a call surface; a mutex
// and busy flag guard against overlapping Call/CallAsync invocations, since
// the underlying VM's dispatch loop is not reentrant from two goroutines at
// once.
type VM struct {
	core *vm.VM
	mu   sync.Mutex
	busy bool
}

// NewVM constructs a ready-to-use VM, applying opts to the underlying core
// (vm.WithStressGC, vm.WithTraceHook, vm.WithInstructionLimit, vm.WithStdout).
func NewVM(opts ...vm.Option) *VM {
	return &VM{core: vm.New(opts...)}
}

// SetGlobalFunction binds a host Go function into the VM's globals under
// name, callable from script source as name(...).
func (vmc *VM) SetGlobalFunction(name string, arity int, fn HostFunc) error {
	if vmc == nil || vmc.core == nil {
		return errors.New("nil VM")
	}
	if fn == nil {
		return errors.New("nil function")
	}
	vmc.core.DefineNative(name, func(args []value.Value) (value.Value, error) {
		out, err := fn(HostArgs{vals: args, owner: vmc})
		if err != nil {
			return value.Nil, err
		}
		return out.v, nil
	}, arity)
	return nil
}

// HasFunction reports whether a callable global exists under name.
func (vmc *VM) HasFunction(name string) bool {
	if vmc == nil || vmc.core == nil {
		return false
	}
	nameObj := vmc.core.NewString(name)
	val, ok := vmc.core.Globals().Get(nameObj)
	if !ok {
		return false
	}
	switch val.Obj.(type) {
	case *value.ClosureObj, *value.NativeObj, *value.BoundMethodObj, *value.ClassObj:
		return true
	default:
		return false
	}
}

// LoadFile loads and compiles a script from a filesystem path.
func (vmc *VM) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return vmc.LoadSource(path, string(data))
}

// LoadSource compiles and runs src as a fresh top-level script. name is used
// in diagnostics (e.g. a filename or "inline").
func (vmc *VM) LoadSource(name string, src string) error {
	if vmc == nil || vmc.core == nil {
		return errors.New("nil VM")
	}
	_, err := vmc.core.Interpret(src, name)
	return convertRuntimeError(err)
}

// Call resolves name in the VM's globals, marshals args, and executes it
// synchronously, returning its result.
func (vmc *VM) Call(name string, args []VmValue) (VmValue, error) {
	if vmc == nil || vmc.core == nil {
		return VmValue{}, errors.New("nil VM")
	}
	vmc.mu.Lock()
	if vmc.busy {
		vmc.mu.Unlock()
		return VmValue{}, errors.New("VM is busy; concurrent Call not allowed")
	}
	vmc.busy = true
	vmc.mu.Unlock()
	defer func() {
		vmc.mu.Lock()
		vmc.busy = false
		vmc.mu.Unlock()
	}()

	nameObj := vmc.core.NewString(name)
	callee, ok := vmc.core.Globals().Get(nameObj)
	if !ok {
		return VmValue{}, fmt.Errorf("undefined function %q", name)
	}
	argVals := make([]value.Value, len(args))
	for i, a := range args {
		argVals[i] = a.v
	}
	res, err := vmc.core.CallValue(callee, argVals)
	if err != nil {
		return VmValue{}, convertRuntimeError(err)
	}
	return VmValue{v: res, owner: vmc}, nil
}

// VmCallFuture represents an in-flight VM call.
type VmCallFuture struct {
	ch <-chan VmCallResult
}

// VmCallResult is the outcome of a VM call.
type VmCallResult struct {
	Value VmValue
	Err   error
}

// Await waits for completion or context cancellation, whichever comes
// first.
func (f VmCallFuture) Await(ctx context.Context) (VmValue, error) {
	select {
	case <-ctx.Done():
		return VmValue{}, ctx.Err()
	case res := <-f.ch:
		return res.Value, res.Err
	}
}

// CallAsync resolves name and runs it on the VM from a background
// goroutine, returning a future immediately. Only one call may be in
// flight per VM at a time; a concurrent CallAsync resolves its future with
// an error rather than blocking on vmc's own busy guard inside Call.
func (vmc *VM) CallAsync(ctx context.Context, name string, args []VmValue) VmCallFuture {
	ch := make(chan VmCallResult, 1)
	go func() {
		defer close(ch)
		select {
		case <-ctx.Done():
			ch <- VmCallResult{Err: ctx.Err()}
			return
		default:
		}
		res, err := vmc.Call(name, args)
		ch <- VmCallResult{Value: res, Err: err}
	}()
	return VmCallFuture{ch: ch}
}

// NewValue marshals an ordinary Go value into a VmValue bound to vmc, ready
// to pass as an argument to Call/CallAsync or return from a HostFunc.
// Supports nil, bool, every numeric kind, string, slices/arrays, and
// string-keyed maps; anything else is reflected structurally where
// possible and otherwise reported as an error.
func (vmc *VM) NewValue(val any) (VmValue, error) {
	v, err := marshalGoValue(vmc, val)
	if err != nil {
		return VmValue{}, err
	}
	return VmValue{v: v, owner: vmc}, nil
}

// MustValue is NewValue, panicking on a marshal error.
func (vmc *VM) MustValue(val any) VmValue {
	v, err := vmc.NewValue(val)
	if err != nil {
		panic(err)
	}
	return v
}

func marshalGoValue(vmc *VM, val any) (value.Value, error) {
	switch v := val.(type) {
	case nil:
		return value.Nil, nil
	case VmValue:
		return v.v, nil
	case bool:
		return value.Bool(v), nil
	case string:
		return value.FromObject(vmc.core.NewString(v)), nil
	case int:
		return value.Number(float64(v)), nil
	case int32:
		return value.Number(float64(v)), nil
	case int64:
		return value.Number(float64(v)), nil
	case float32:
		return value.Number(float64(v)), nil
	case float64:
		return value.Number(v), nil
	case []any:
		out := make([]value.Value, len(v))
		for i, el := range v {
			mv, err := marshalGoValue(vmc, el)
			if err != nil {
				return value.Value{}, err
			}
			out[i] = mv
		}
		return value.FromObject(vmc.core.NewListValue(out)), nil
	case map[string]any:
		d := vmc.core.NewDictValue()
		for k, el := range v {
			mv, err := marshalGoValue(vmc, el)
			if err != nil {
				return value.Value{}, err
			}
			d.Table.Set(vmc.core.NewString(k), mv)
		}
		return value.FromObject(d), nil
	default:
		rv := reflect.ValueOf(val)
		if !rv.IsValid() {
			return value.Nil, nil
		}
		switch rv.Kind() {
		case reflect.Bool:
			return value.Bool(rv.Bool()), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return value.Number(float64(rv.Int())), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return value.Number(float64(rv.Uint())), nil
		case reflect.Float32, reflect.Float64:
			return value.Number(rv.Float()), nil
		case reflect.String:
			return value.FromObject(vmc.core.NewString(rv.String())), nil
		case reflect.Slice, reflect.Array:
			out := make([]value.Value, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				mv, err := marshalGoValue(vmc, rv.Index(i).Interface())
				if err != nil {
					return value.Value{}, err
				}
				out[i] = mv
			}
			return value.FromObject(vmc.core.NewListValue(out)), nil
		case reflect.Map:
			d := vmc.core.NewDictValue()
			iter := rv.MapRange()
			for iter.Next() {
				mv, err := marshalGoValue(vmc, iter.Value().Interface())
				if err != nil {
					return value.Value{}, err
				}
				d.Table.Set(vmc.core.NewString(fmt.Sprint(iter.Key().Interface())), mv)
			}
			return value.FromObject(d), nil
		case reflect.Struct:
			d := vmc.core.NewDictValue()
			rt := rv.Type()
			for i := 0; i < rv.NumField(); i++ {
				field := rt.Field(i)
				if field.PkgPath != "" { // unexported
					continue
				}
				mv, err := marshalGoValue(vmc, rv.Field(i).Interface())
				if err != nil {
					return value.Value{}, err
				}
				d.Table.Set(vmc.core.NewString(field.Name), mv)
			}
			return value.FromObject(d), nil
		}
		return value.Value{}, fmt.Errorf("unsupported value type %T", val)
	}
}

// Unmarshal assigns a Fer VmValue into a Go target using reflection.
// Supports primitives, slices, and string-keyed maps.
func Unmarshal(val VmValue, target any) error {
	if target == nil {
		return errors.New("nil target")
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("target must be a non-nil pointer")
	}
	return assignValue(val.v, rv.Elem())
}

func assignValue(src value.Value, dst reflect.Value) error {
	if dst.Kind() == reflect.Interface {
		raw, err := unmarshalToGo(src)
		if err != nil {
			return err
		}
		if raw == nil {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		dst.Set(reflect.ValueOf(raw))
		return nil
	}
	switch src.Kind {
	case value.KindNil:
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	case value.KindBool:
		if dst.Kind() != reflect.Bool {
			return fmt.Errorf("cannot assign bool into %s", dst.Type())
		}
		dst.SetBool(src.Bool)
		return nil
	case value.KindNumber:
		switch dst.Kind() {
		case reflect.Float32, reflect.Float64:
			dst.SetFloat(src.Num)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			dst.SetInt(int64(src.Num))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			dst.SetUint(uint64(src.Num))
		default:
			return fmt.Errorf("cannot assign number into %s", dst.Type())
		}
		return nil
	case value.KindObj:
		switch obj := src.Obj.(type) {
		case *value.StringObj:
			if dst.Kind() != reflect.String {
				return fmt.Errorf("cannot assign string into %s", dst.Type())
			}
			dst.SetString(obj.Chars)
			return nil
		case *value.ListObj:
			if dst.Kind() != reflect.Slice {
				return fmt.Errorf("cannot assign list into %s", dst.Type())
			}
			out := reflect.MakeSlice(dst.Type(), len(obj.Elements), len(obj.Elements))
			for i, e := range obj.Elements {
				if err := assignValue(e, out.Index(i)); err != nil {
					return err
				}
			}
			dst.Set(out)
			return nil
		case *value.DictObj:
			if dst.Kind() != reflect.Map {
				return fmt.Errorf("cannot assign dict into %s", dst.Type())
			}
			out := reflect.MakeMapWithSize(dst.Type(), len(obj.Table.Keys()))
			for _, k := range obj.Table.Keys() {
				el, _ := obj.Table.Get(k)
				elem := reflect.New(dst.Type().Elem()).Elem()
				if err := assignValue(el, elem); err != nil {
					return err
				}
				out.SetMapIndex(reflect.ValueOf(k.Chars), elem)
			}
			dst.Set(out)
			return nil
		default:
			return fmt.Errorf("cannot assign %s into %s", value.TypeName(src), dst.Type())
		}
	default:
		return fmt.Errorf("unsupported value kind")
	}
}
