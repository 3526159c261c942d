package vm

import (
	"fmt"

	"github.com/xirelogy/go-fer/internal/chunk"
	"github.com/xirelogy/go-fer/internal/compiler"
	"github.com/xirelogy/go-fer/internal/value"
)

// Compile compiles source into a top-level script function without running
// it, for callers (the --disasm driver flag) that need the compiled chunk
// before or instead of execution.
func (v *VM) Compile(source, name string) (*value.FunctionObj, error) {
	v.gcEnabled = false
	fn, err := compiler.Compile(v, source, name)
	v.gcEnabled = true
	return fn, err
}

// Interpret compiles source and runs it to completion as a fresh top-level
// script, resetting any prior stack/frame state first.
func (v *VM) Interpret(source, name string) (Result, error) {
	fn, err := v.Compile(source, name)
	if err != nil {
		return ResultCompileError, err
	}
	return v.Run(fn)
}

// Run executes an already-compiled top-level script function to completion,
// resetting any prior stack/frame state first.
func (v *VM) Run(fn *value.FunctionObj) (Result, error) {
	v.ResetStack()
	closure := v.newClosure(fn)
	v.push(value.FromObject(closure))
	if err := v.call(closure, 0); err != nil {
		return ResultRuntimeError, err
	}
	if err := v.runUntil(0); err != nil {
		return ResultRuntimeError, err
	}
	v.pop() // discard the script's own implicit return value
	return ResultOK, nil
}

// CallValue invokes any callable value (closure, native, class, or bound
// method) with args and runs it to completion, returning its result. This
// is the entry point host code (native functions, the embedding facade, a
// REPL's "call this function" affordance) uses to re-enter the VM without
// going through Interpret.
func (v *VM) CallValue(callee value.Value, args []value.Value) (value.Value, error) {
	base := v.frameCount
	savedTop := v.stackTop
	v.push(callee)
	for _, a := range args {
		v.push(a)
	}
	if err := v.callValue(callee, len(args)); err != nil {
		v.stackTop = savedTop
		return value.Nil, err
	}
	if err := v.runUntil(base); err != nil {
		v.stackTop = savedTop
		return value.Nil, err
	}
	result := v.pop()
	v.stackTop = savedTop
	return result, nil
}

// runUntil dispatches instructions until the call-frame depth returns to
// target (or a runtime error aborts execution first).
func (v *VM) runUntil(target int) error {
	for v.frameCount > target {
		if err := v.step(); err != nil {
			return err
		}
	}
	return nil
}

func (v *VM) frame() *CallFrame { return &v.frames[v.frameCount-1] }

func frameName(f *CallFrame) string {
	if f.Closure.Function.Name == nil {
		return "script"
	}
	return f.Closure.Function.Name.Chars
}

func (v *VM) readByte() byte {
	f := v.frame()
	b := f.Closure.Function.Chunk.Code[f.IP]
	f.IP++
	return b
}

func (v *VM) readU16() uint16 {
	hi := v.readByte()
	lo := v.readByte()
	return uint16(hi)<<8 | uint16(lo)
}

func (v *VM) readConstant() value.Value {
	f := v.frame()
	c := f.Closure.Function.Chunk.Constants[v.readByte()]
	return c.(value.Value)
}

func (v *VM) readString() *value.StringObj {
	return v.readConstant().Obj.(*value.StringObj)
}

func (v *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	var stack []FrameInfo
	for i := v.frameCount - 1; i >= 0; i-- {
		f := v.frames[i]
		fn := f.Closure.Function
		line := 0
		if f.IP-1 >= 0 && f.IP-1 < len(fn.Chunk.Lines) {
			line = fn.Chunk.Lines[f.IP-1]
		}
		stack = append(stack, FrameInfo{Function: frameName(&f), Line: line})
	}
	v.ResetStack()
	return &RuntimeError{Message: msg, Stack: stack}
}

func isString(v value.Value) bool {
	_, ok := v.Obj.(*value.StringObj)
	return ok
}

// step decodes and dispatches exactly one instruction out of the current
// call frame. runUntil drives repeated calls to it, stopping once frame
// depth falls back to its target; that lets the same loop serve a
// top-level script run and a nested host re-entry alike.
func (v *VM) step() error {
	f := v.frame()

	if v.instructionLimit > 0 {
		v.instructionCount++
		if v.instructionCount > v.instructionLimit {
			return v.runtimeError("Instruction limit exceeded.")
		}
	}

	if v.traceHook != nil {
		v.traceHook(TraceInfo{
			Op:       chunk.OpCode(f.Closure.Function.Chunk.Code[f.IP]),
			Function: frameName(f),
			Line:     f.Closure.Function.Chunk.Lines[f.IP],
			IP:       f.IP,
		})
	}

	op := chunk.OpCode(v.readByte())
	switch op {
	case chunk.OpConstant:
		v.push(v.readConstant())

	case chunk.OpNil:
		v.push(value.Nil)
	case chunk.OpTrue:
		v.push(value.Bool(true))
	case chunk.OpFalse:
		v.push(value.Bool(false))
	case chunk.OpPop:
		v.pop()

	case chunk.OpGetLocal:
		slot := int(v.readByte())
		v.push(v.stack[f.Base+slot])
	case chunk.OpSetLocal:
		slot := int(v.readByte())
		v.stack[f.Base+slot] = v.peek(0)

	case chunk.OpGetGlobal:
		name := v.readString()
		val, ok := v.globals.Get(name)
		if !ok {
			return v.runtimeError("Undefined variable '%s'.", name.Chars)
		}
		v.push(val)
	case chunk.OpDefineGlobal:
		name := v.readString()
		v.globals.Set(name, v.pop())
	case chunk.OpDefineGlobalPerm:
		name := v.readString()
		v.globals.Set(name, v.pop())
		v.permGlobals.Set(name, value.Bool(true))
	case chunk.OpSetGlobal:
		name := v.readString()
		if _, isPerm := v.permGlobals.Get(name); isPerm {
			return v.runtimeError("Cannot reassign permanent variable.")
		}
		if v.globals.Set(name, v.peek(0)) {
			v.globals.Delete(name)
			return v.runtimeError("Undefined variable '%s'.", name.Chars)
		}

	case chunk.OpGetUpvalue:
		idx := v.readByte()
		v.push(v.upvalueValue(f.Closure.Upvalues[idx]))
	case chunk.OpSetUpvalue:
		idx := v.readByte()
		v.setUpvalueValue(f.Closure.Upvalues[idx], v.peek(0))

	case chunk.OpGetProperty:
		if err := v.getProperty(); err != nil {
			return err
		}
	case chunk.OpSetProperty:
		if err := v.setProperty(); err != nil {
			return err
		}
	case chunk.OpGetSuper:
		if err := v.getSuper(); err != nil {
			return err
		}
	case chunk.OpGetItem:
		if err := v.getItem(); err != nil {
			return err
		}
	case chunk.OpSetItem:
		if err := v.setItem(); err != nil {
			return err
		}

	case chunk.OpEqual:
		b := v.pop()
		a := v.pop()
		v.push(value.Bool(value.Equal(a, b)))
	case chunk.OpGreater, chunk.OpLess, chunk.OpSubtract, chunk.OpMultiply, chunk.OpDivide:
		if err := v.numericBinary(op); err != nil {
			return err
		}
	case chunk.OpAdd:
		if err := v.add(); err != nil {
			return err
		}
	case chunk.OpNot:
		v.push(value.Bool(!v.pop().Truthy()))
	case chunk.OpNegate:
		if !v.peek(0).IsNumber() {
			return v.runtimeError("Operand must be a number.")
		}
		v.push(value.Number(-v.pop().Num))

	case chunk.OpPrint:
		fmt.Fprintln(v.Stdout, value.Print(v.pop()))

	case chunk.OpJump:
		offset := v.readU16()
		f.IP += int(offset)
	case chunk.OpJumpIfFalse:
		offset := v.readU16()
		if !v.peek(0).Truthy() {
			f.IP += int(offset)
		}
	case chunk.OpLoop:
		offset := v.readU16()
		f.IP -= int(offset)

	case chunk.OpCall:
		argc := int(v.readByte())
		if err := v.callValue(v.peek(argc), argc); err != nil {
			return err
		}
	case chunk.OpInvoke:
		name := v.readString()
		argc := int(v.readByte())
		if err := v.invoke(name, argc); err != nil {
			return err
		}
	case chunk.OpSuperInvoke:
		name := v.readString()
		argc := int(v.readByte())
		superclass, ok := v.pop().Obj.(*value.ClassObj)
		if !ok {
			return v.runtimeError("Superclass must be a class.")
		}
		if err := v.invokeFromClass(superclass, name, argc); err != nil {
			return err
		}
	case chunk.OpClosure:
		fn := v.readConstant().Obj.(*value.FunctionObj)
		closure := v.newClosure(fn)
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := v.readByte()
			index := v.readByte()
			if isLocal == 1 {
				closure.Upvalues[i] = v.captureUpvalue(f.Base + int(index))
			} else {
				closure.Upvalues[i] = f.Closure.Upvalues[index]
			}
		}
		v.push(value.FromObject(closure))
	case chunk.OpCloseUpvalue:
		v.closeUpvalues(v.stackTop - 1)
		v.pop()
	case chunk.OpReturn:
		result := v.pop()
		v.closeUpvalues(f.Base)
		v.frameCount--
		v.stackTop = f.Base
		v.push(result)

	case chunk.OpList:
		count := int(v.readByte())
		elements := make([]value.Value, count)
		for i := count - 1; i >= 0; i-- {
			elements[i] = v.pop()
		}
		v.push(value.FromObject(v.newList(elements)))
	case chunk.OpDictionary:
		count := int(v.readByte())
		d := v.newDict()
		for i := 0; i < count; i++ {
			val := v.pop()
			key := v.pop().Obj.(*value.StringObj)
			d.Table.Set(key, val)
		}
		v.push(value.FromObject(d))

	case chunk.OpClass:
		name := v.readString()
		v.push(value.FromObject(v.newClass(name)))
	case chunk.OpInherit:
		if err := v.inherit(); err != nil {
			return err
		}
	case chunk.OpMethod:
		name := v.readString()
		method := v.peek(0).Obj.(*value.ClosureObj)
		class := v.peek(1).Obj.(*value.ClassObj)
		class.Methods.Set(name, value.FromObject(method))
		v.pop()

	default:
		return v.runtimeError("Unknown opcode %d.", byte(op))
	}
	return nil
}

func (v *VM) numericBinary(op chunk.OpCode) error {
	if !v.peek(0).IsNumber() || !v.peek(1).IsNumber() {
		return v.runtimeError("Operands must be numbers.")
	}
	b := v.pop().Num
	a := v.pop().Num
	switch op {
	case chunk.OpSubtract:
		v.push(value.Number(a - b))
	case chunk.OpMultiply:
		v.push(value.Number(a * b))
	case chunk.OpDivide:
		v.push(value.Number(a / b))
	case chunk.OpGreater:
		v.push(value.Bool(a > b))
	case chunk.OpLess:
		v.push(value.Bool(a < b))
	}
	return nil
}

func (v *VM) add() error {
	b := v.peek(0)
	a := v.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		v.pop()
		v.pop()
		v.push(value.Number(a.Num + b.Num))
	case isString(a) && isString(b):
		v.pop()
		v.pop()
		sa := a.Obj.(*value.StringObj)
		sb := b.Obj.(*value.StringObj)
		v.push(value.FromObject(v.NewString(sa.Chars + sb.Chars)))
	default:
		return v.runtimeError("Operands must be two numbers or two strings.")
	}
	return nil
}

func (v *VM) getProperty() error {
	name := v.readString()
	receiver := v.peek(0)
	inst, ok := receiver.Obj.(*value.InstanceObj)
	if !ok {
		return v.runtimeError("Only instances have properties.")
	}
	if val, found := inst.Fields.Get(name); found {
		v.pop()
		v.push(val)
		return nil
	}
	methodVal, found := inst.Class.Methods.Get(name)
	if !found {
		return v.runtimeError("Undefined property '%s'.", name.Chars)
	}
	method := methodVal.Obj.(*value.ClosureObj)
	bound := v.newBoundMethod(receiver, method)
	v.pop()
	v.push(value.FromObject(bound))
	return nil
}

func (v *VM) setProperty() error {
	name := v.readString()
	val := v.peek(0)
	inst, ok := v.peek(1).Obj.(*value.InstanceObj)
	if !ok {
		return v.runtimeError("Only instances have fields.")
	}
	inst.Fields.Set(name, val)
	v.pop()
	v.pop()
	v.push(val)
	return nil
}

func (v *VM) getSuper() error {
	name := v.readString()
	superclass, ok := v.pop().Obj.(*value.ClassObj)
	if !ok {
		return v.runtimeError("Superclass must be a class.")
	}
	receiver := v.peek(0)
	methodVal, found := superclass.Methods.Get(name)
	if !found {
		return v.runtimeError("Undefined property '%s'.", name.Chars)
	}
	method := methodVal.Obj.(*value.ClosureObj)
	bound := v.newBoundMethod(receiver, method)
	v.pop()
	v.push(value.FromObject(bound))
	return nil
}

func (v *VM) getItem() error {
	idx := v.pop()
	container := v.pop()
	switch c := container.Obj.(type) {
	case *value.ListObj:
		if !idx.IsNumber() {
			return v.runtimeError("List index must be a number.")
		}
		i := int(idx.Num)
		if i < 0 || i >= len(c.Elements) {
			return v.runtimeError("List index out of range.")
		}
		v.push(c.Elements[i])
	case *value.DictObj:
		key, ok := idx.Obj.(*value.StringObj)
		if !ok {
			return v.runtimeError("Dictionary key must be a string.")
		}
		val, found := c.Table.Get(key)
		if !found {
			return v.runtimeError("Undefined dictionary key '%s'.", key.Chars)
		}
		v.push(val)
	default:
		return v.runtimeError("Only lists and dictionaries support indexing.")
	}
	return nil
}

func (v *VM) setItem() error {
	val := v.pop()
	idx := v.pop()
	container := v.pop()
	switch c := container.Obj.(type) {
	case *value.ListObj:
		if !idx.IsNumber() {
			return v.runtimeError("List index must be a number.")
		}
		i := int(idx.Num)
		if i < 0 || i >= len(c.Elements) {
			return v.runtimeError("List index out of range.")
		}
		c.Elements[i] = val
	case *value.DictObj:
		key, ok := idx.Obj.(*value.StringObj)
		if !ok {
			return v.runtimeError("Dictionary key must be a string.")
		}
		c.Table.Set(key, val)
	default:
		return v.runtimeError("Only lists and dictionaries support indexing.")
	}
	v.push(val)
	return nil
}

func (v *VM) inherit() error {
	superVal := v.peek(1)
	superclass, ok := superVal.Obj.(*value.ClassObj)
	if !ok {
		return v.runtimeError("Superclass must be a class.")
	}
	subclass := v.peek(0).Obj.(*value.ClassObj)
	for _, k := range superclass.Methods.Keys() {
		if m, found := superclass.Methods.Get(k); found {
			subclass.Methods.Set(k, m)
		}
	}
	v.pop() // the subclass; the superclass stays as the 'super' local
	return nil
}

// callValue dispatches OP_CALL to the right callee kind: a closure pushes a
// new frame, a native runs immediately, a class instantiates, and a bound
// method rewrites its own receiver slot before delegating to call.
func (v *VM) callValue(callee value.Value, argc int) error {
	if callee.IsObj() {
		switch obj := callee.Obj.(type) {
		case *value.ClosureObj:
			return v.call(obj, argc)
		case *value.NativeObj:
			return v.callNative(obj, argc)
		case *value.ClassObj:
			return v.instantiate(obj, argc)
		case *value.BoundMethodObj:
			v.stack[v.stackTop-argc-1] = obj.Receiver
			return v.call(obj.Method, argc)
		}
	}
	return v.runtimeError("Can only call functions and classes.")
}

func (v *VM) call(closure *value.ClosureObj, argc int) error {
	if argc != closure.Function.Arity {
		return v.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argc)
	}
	if v.frameCount == MaxFrames {
		return v.runtimeError("Stack overflow.")
	}
	nf := &v.frames[v.frameCount]
	nf.Closure = closure
	nf.IP = 0
	nf.Base = v.stackTop - argc - 1
	v.frameCount++
	return nil
}

func (v *VM) callNative(n *value.NativeObj, argc int) error {
	if n.Arity >= 0 && argc != n.Arity {
		return v.runtimeError("Expected %d arguments but got %d.", n.Arity, argc)
	}
	args := make([]value.Value, argc)
	copy(args, v.stack[v.stackTop-argc:v.stackTop])
	result, err := n.Fn(args)
	if err != nil {
		return v.runtimeError("%s", err.Error())
	}
	v.stackTop -= argc + 1
	v.push(result)
	return nil
}

func (v *VM) instantiate(class *value.ClassObj, argc int) error {
	inst := v.newInstance(class)
	v.stack[v.stackTop-argc-1] = value.FromObject(inst)
	if initVal, ok := class.Methods.Get(v.initString); ok {
		init := initVal.Obj.(*value.ClosureObj)
		return v.call(init, argc)
	}
	if argc != 0 {
		return v.runtimeError("Expected 0 arguments but got %d.", argc)
	}
	return nil
}

func (v *VM) invoke(name *value.StringObj, argc int) error {
	receiver := v.peek(argc)
	inst, ok := receiver.Obj.(*value.InstanceObj)
	if !ok {
		return v.runtimeError("Only instances have methods.")
	}
	if val, found := inst.Fields.Get(name); found {
		v.stack[v.stackTop-argc-1] = val
		return v.callValue(val, argc)
	}
	return v.invokeFromClass(inst.Class, name, argc)
}

func (v *VM) invokeFromClass(class *value.ClassObj, name *value.StringObj, argc int) error {
	methodVal, found := class.Methods.Get(name)
	if !found {
		return v.runtimeError("Undefined property '%s'.", name.Chars)
	}
	method := methodVal.Obj.(*value.ClosureObj)
	return v.call(method, argc)
}

func (v *VM) captureUpvalue(stackIndex int) *value.UpvalueObj {
	var prev *value.UpvalueObj
	up := v.openUpvalues
	for up != nil && up.StackIndex > stackIndex {
		prev = up
		up = up.Next
	}
	if up != nil && up.StackIndex == stackIndex {
		return up
	}
	created := &value.UpvalueObj{StackIndex: stackIndex}
	v.link(created)
	created.Next = up
	if prev == nil {
		v.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue referencing a stack slot at or
// above fromStackIndex, copying its current value out before the frame that
// owns those slots is discarded.
func (v *VM) closeUpvalues(fromStackIndex int) {
	for v.openUpvalues != nil && v.openUpvalues.StackIndex >= fromStackIndex {
		up := v.openUpvalues
		up.Value = v.stack[up.StackIndex]
		up.Closed = true
		v.openUpvalues = up.Next
		up.Next = nil
	}
}

func (v *VM) upvalueValue(up *value.UpvalueObj) value.Value {
	if up.Closed {
		return up.Value
	}
	return v.stack[up.StackIndex]
}

func (v *VM) setUpvalueValue(up *value.UpvalueObj, val value.Value) {
	if up.Closed {
		up.Value = val
	} else {
		v.stack[up.StackIndex] = val
	}
}
