package value

import "github.com/xirelogy/go-fer/internal/chunk"

// ObjType tags a heap Object's concrete variant. It exists purely for quick
// checks and diagnostics; all real dispatch is done with Go type switches
// over the concrete pointer types (see DESIGN.md's sum-type note), never by
// branching on this tag.
type ObjType uint8

const (
	ObjString ObjType = iota
	ObjList
	ObjDict
	ObjFunction
	ObjNative
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjBoundMethod
)

// ObjHeader is the state every heap object shares: a type tag for
// diagnostics, a GC mark bit, and the intrusive next-pointer threading every
// live object onto the VM's single allocation list.
type ObjHeader struct {
	Type   ObjType
	Marked bool
	Next   Object
}

// Object is implemented by every heap-allocated Fer value. Header returns the
// embedded ObjHeader so generic GC code (marking, sweeping, allocation-list
// traversal) never needs to know the concrete variant.
type Object interface {
	Header() *ObjHeader
}

// StringObj is an immutable byte sequence plus a precomputed FNV-1a hash.
// Fer interns strings: at most one StringObj exists per distinct byte
// sequence at a time (see internal/table's intern pool).
type StringObj struct {
	ObjHeader
	Chars string
	Hash  uint32
}

func (s *StringObj) Header() *ObjHeader { return &s.ObjHeader }

// ListObj is a dynamic array of values.
type ListObj struct {
	ObjHeader
	Elements []Value
}

func (l *ListObj) Header() *ObjHeader { return &l.ObjHeader }

// DictObj is a hash table keyed by interned strings.
type DictObj struct {
	ObjHeader
	Table StringTable
}

func (d *DictObj) Header() *ObjHeader { return &d.ObjHeader }

// StringTable is the minimal interface internal/value needs from
// internal/table's Table, broken out to avoid an import cycle (internal/table
// needs *StringObj as its key type).
type StringTable interface {
	Get(key *StringObj) (Value, bool)
	Set(key *StringObj, val Value) bool
	Delete(key *StringObj) bool
	Keys() []*StringObj
}

// FunctionObj is a compiled function: arity, upvalue count, an optional name
// (nil for the implicit top-level script), and its owned Chunk.
type FunctionObj struct {
	ObjHeader
	Arity        int
	UpvalueCount int
	Name         *StringObj
	Source       string
	Chunk        *chunk.Chunk
}

func (f *FunctionObj) Header() *ObjHeader { return &f.ObjHeader }

// NativeFn is a host-provided callable: given the VM-agnostic argument
// window, it returns a value or an error.
type NativeFn func(args []Value) (Value, error)

// NativeObj wraps a host callable so it can be stored in a Value and called
// like any other function.
type NativeObj struct {
	ObjHeader
	Name  string
	Arity int
	Fn    NativeFn
}

func (n *NativeObj) Header() *ObjHeader { return &n.ObjHeader }

// UpvalueObj is either open (StackIndex names a live VM stack slot) or
// closed (Closed is true and it owns Value, a copy of the slot made when the
// slot was discarded).
type UpvalueObj struct {
	ObjHeader
	// StackIndex is the absolute index into the VM's stable value stack
	// while open; ignored once Closed is true.
	StackIndex int
	Closed     bool
	Value      Value
	Next       *UpvalueObj // next in the VM's open-upvalue list
}

func (u *UpvalueObj) Header() *ObjHeader { return &u.ObjHeader }

// ClosureObj pairs a function with the upvalues it captured at creation.
type ClosureObj struct {
	ObjHeader
	Function *FunctionObj
	Upvalues []*UpvalueObj
}

func (c *ClosureObj) Header() *ObjHeader { return &c.ObjHeader }

// ClassObj is a name plus a method table. Inheritance is implemented by
// copying a superclass's method table into the subclass at class-declaration
// time; there is no runtime superclass chain except for the synthetic
// binding used by `super` lookups.
type ClassObj struct {
	ObjHeader
	Name    *StringObj
	Methods StringTable
}

func (c *ClassObj) Header() *ObjHeader { return &c.ObjHeader }

// InstanceObj is a class reference plus its own field table.
type InstanceObj struct {
	ObjHeader
	Class  *ClassObj
	Fields StringTable
}

func (i *InstanceObj) Header() *ObjHeader { return &i.ObjHeader }

// BoundMethodObj pairs a receiver with a method closure, produced when a
// method is read off an instance as a value (rather than called directly
// through the OP_INVOKE fast path).
type BoundMethodObj struct {
	ObjHeader
	Receiver Value
	Method   *ClosureObj
}

func (b *BoundMethodObj) Header() *ObjHeader { return &b.ObjHeader }
