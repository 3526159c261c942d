// Package value implements Fer's tagged value representation and heap
// object model: a common header shared by every heap type, and the
// discriminated variants (string, list, dictionary, function, native,
// closure, upvalue, class, instance, bound method) that hang off it.
package value

import (
	"fmt"
	"math"
	"strconv"
)

// Kind discriminates the four shapes a Value can take.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Value is Fer's tagged union: nil, bool, 64-bit float, or a pointer to a
// heap Object. Small values are stored inline; everything else is a
// reference into the GC-owned heap.
type Value struct {
	Kind Kind
	Num  float64
	Bool bool
	Obj  Object
}

var Nil = Value{Kind: KindNil}

func Bool(b bool) Value   { return Value{Kind: KindBool, Bool: b} }
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func FromObject(o Object) Value { return Value{Kind: KindObj, Obj: o} }

func (v Value) IsNil() bool    { return v.Kind == KindNil }
func (v Value) IsBool() bool   { return v.Kind == KindBool }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsObj() bool    { return v.Kind == KindObj }

// Truthy implements Fer's truthiness rule: nil and false are falsey, every
// other value (including 0 and "") is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNil:
		return false
	case KindBool:
		return v.Bool
	default:
		return true
	}
}

// Equal implements Value equality: nil equals only nil, booleans and numbers
// structurally/by IEEE-754 ==, and heap objects (including interned strings)
// by pointer identity.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return a.Num == b.Num
	case KindObj:
		return a.Obj == b.Obj
	default:
		return false
	}
}

// TypeName reports the Fer-level type string used by e.g. a typeof native.
func TypeName(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindObj:
		switch v.Obj.(type) {
		case *StringObj:
			return "string"
		case *ListObj:
			return "list"
		case *DictObj:
			return "dict"
		case *FunctionObj, *ClosureObj, *NativeObj, *BoundMethodObj:
			return "function"
		case *ClassObj:
			return "class"
		case *InstanceObj:
			return "instance"
		default:
			return "object"
		}
	default:
		return "unknown"
	}
}

// Print formats v the way the VM's PRINT opcode does: %g-style shortest
// round-trip for numbers, raw contents for strings, and bracketed literals
// for containers.
func Print(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.Num)
	case KindObj:
		return printObject(v.Obj)
	default:
		return "?"
	}
}

func formatNumber(n float64) string {
	if math.IsNaN(n) {
		return "nan"
	}
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func printObject(o Object) string {
	switch obj := o.(type) {
	case *StringObj:
		return obj.Chars
	case *ListObj:
		s := "["
		for i, e := range obj.Elements {
			if i > 0 {
				s += ", "
			}
			s += Print(e)
		}
		return s + "]"
	case *DictObj:
		s := "{"
		first := true
		for _, k := range obj.Table.Keys() {
			if !first {
				s += ", "
			}
			first = false
			v, _ := obj.Table.Get(k)
			s += fmt.Sprintf("%s: %s", k.Chars, Print(v))
		}
		return s + "}"
	case *FunctionObj:
		if obj.Name == nil {
			return "<script>"
		}
		return "<fn " + obj.Name.Chars + ">"
	case *ClosureObj:
		return printObject(obj.Function)
	case *NativeObj:
		return "<native fn>"
	case *ClassObj:
		return obj.Name.Chars
	case *InstanceObj:
		return obj.Class.Name.Chars + " instance"
	case *BoundMethodObj:
		return printObject(obj.Method.Function)
	default:
		return "<object>"
	}
}
