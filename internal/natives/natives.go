// Package natives supplies a handful of illustrative host functions
// (clock, str, len) and the single entry point that registers them into a
// VM's globals. Per the specification this package is an outer
// collaborator: the core only needs VM.DefineNative to exist, not any
// particular native to be present, so this package is deliberately small.
package natives

import (
	"fmt"
	"time"

	"github.com/xirelogy/go-fer/internal/value"
	"github.com/xirelogy/go-fer/internal/vm"
)

// Register installs clock/str/len into v's globals.
func Register(v *vm.VM) {
	v.DefineNative("clock", clockNative, 0)
	v.DefineNative("str", strNative(v), 1)
	v.DefineNative("len", lenNative, 1)
}

func clockNative(args []value.Value) (value.Value, error) {
	return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
}

// strNative closes over the VM so it can intern the string it produces.
func strNative(v *vm.VM) value.NativeFn {
	return func(args []value.Value) (value.Value, error) {
		arg := args[0]
		if _, ok := arg.Obj.(*value.StringObj); ok {
			return arg, nil
		}
		return value.FromObject(v.NewString(value.Print(arg))), nil
	}
}

func lenNative(args []value.Value) (value.Value, error) {
	switch obj := args[0].Obj.(type) {
	case *value.ListObj:
		return value.Number(float64(len(obj.Elements))), nil
	case *value.StringObj:
		return value.Number(float64(len(obj.Chars))), nil
	case *value.DictObj:
		return value.Number(float64(len(obj.Table.Keys()))), nil
	default:
		return value.Nil, fmt.Errorf("len: argument must be a list, string, or dictionary")
	}
}
