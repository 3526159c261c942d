package fer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAPIScriptCall(t *testing.T) {
	v := NewVM()
	require.NoError(t, v.LoadSource("inline", `fun add(a, b) { return a + b; }`))

	a1, err := v.NewValue(2)
	require.NoError(t, err)
	a2, err := v.NewValue(3)
	require.NoError(t, err)

	res, err := v.CallAsync(context.Background(), "add", []VmValue{a1, a2}).Await(context.Background())
	require.NoError(t, err)

	raw, err := res.Raw()
	require.NoError(t, err)
	require.Equal(t, float64(5), raw)
}

func TestAPIHostFunctionBinding(t *testing.T) {
	v := NewVM()
	err := v.SetGlobalFunction("inc", 1, func(args HostArgs) (VmValue, error) {
		n, err := args.Number(0)
		if err != nil {
			return VmValue{}, err
		}
		return v.NewValue(n + 1)
	})
	require.NoError(t, err)

	require.NoError(t, v.LoadSource("inline", `fun run(x) { return inc(x); }`))

	arg, err := v.NewValue(4)
	require.NoError(t, err)

	res, err := v.Call("run", []VmValue{arg})
	require.NoError(t, err)

	raw, err := res.Raw()
	require.NoError(t, err)
	require.Equal(t, float64(5), raw)
}

func TestAPIHasFunction(t *testing.T) {
	v := NewVM()
	require.False(t, v.HasFunction("missing"))

	require.NoError(t, v.LoadSource("inline", `fun add(a, b) { return a + b; }`))
	require.True(t, v.HasFunction("add"))
	require.False(t, v.HasFunction("missing"))
}

func TestAPIMarshalList(t *testing.T) {
	v := NewVM()
	err := v.SetGlobalFunction("sumList", 1, func(args HostArgs) (VmValue, error) {
		arg, aerr := args.At(0)
		if aerr != nil {
			return VmValue{}, aerr
		}
		list, ok := arg.List()
		if !ok {
			return VmValue{}, ArgError{Name: "#0", Want: "list"}
		}
		total := 0.0
		for _, el := range list {
			n, _ := el.Number()
			total += n
		}
		return v.NewValue(total)
	})
	require.NoError(t, err)

	require.NoError(t, v.LoadSource("inline", `fun run(l) { return sumList(l); }`))

	listArg, err := v.NewValue([]any{1.0, 2.0, 3.0})
	require.NoError(t, err)

	res, err := v.Call("run", []VmValue{listArg})
	require.NoError(t, err)

	raw, err := res.Raw()
	require.NoError(t, err)
	require.Equal(t, float64(6), raw)
}

func TestAPIMarshalDict(t *testing.T) {
	v := NewVM()
	dictArg, err := v.NewValue(map[string]any{"greeting": "hi"})
	require.NoError(t, err)

	require.Equal(t, ValueDict, dictArg.Kind())
	entries, ok := dictArg.Dict()
	require.True(t, ok)
	s, ok := entries["greeting"].String()
	require.True(t, ok)
	require.Equal(t, "hi", s)
}

func TestAPIRuntimeErrorTrace(t *testing.T) {
	v := NewVM()
	err := v.LoadSource("inline", `fun boom() { return 1 + nil; } boom();`)
	require.Error(t, err)

	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.NotEmpty(t, rerr.Stack)
}
