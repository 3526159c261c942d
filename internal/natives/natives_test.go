package natives

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xirelogy/go-fer/internal/vm"
)

func TestRegisterClock(t *testing.T) {
	var out bytes.Buffer
	v := vm.New(vm.WithStdout(&out))
	Register(v)

	_, err := v.Interpret(`print clock() >= 0;`, "test")
	require.NoError(t, err)
	require.Equal(t, "true\n", out.String())
}

func TestRegisterStrOnNumber(t *testing.T) {
	var out bytes.Buffer
	v := vm.New(vm.WithStdout(&out))
	Register(v)

	_, err := v.Interpret(`print str(42);`, "test")
	require.NoError(t, err)
	require.Equal(t, "42\n", out.String())
}

func TestRegisterStrOnStringIsIdentity(t *testing.T) {
	var out bytes.Buffer
	v := vm.New(vm.WithStdout(&out))
	Register(v)

	_, err := v.Interpret(`print str("already");`, "test")
	require.NoError(t, err)
	require.Equal(t, "already\n", out.String())
}

func TestRegisterLenOnList(t *testing.T) {
	var out bytes.Buffer
	v := vm.New(vm.WithStdout(&out))
	Register(v)

	_, err := v.Interpret(`print len([1, 2, 3]);`, "test")
	require.NoError(t, err)
	require.Equal(t, "3\n", out.String())
}

func TestRegisterLenOnString(t *testing.T) {
	var out bytes.Buffer
	v := vm.New(vm.WithStdout(&out))
	Register(v)

	_, err := v.Interpret(`print len("hello");`, "test")
	require.NoError(t, err)
	require.Equal(t, "5\n", out.String())
}

func TestRegisterLenOnDict(t *testing.T) {
	var out bytes.Buffer
	v := vm.New(vm.WithStdout(&out))
	Register(v)

	_, err := v.Interpret(`print len({"a": 1, "b": 2});`, "test")
	require.NoError(t, err)
	require.Equal(t, "2\n", out.String())
}

func TestRegisterLenOnInvalidTypeErrors(t *testing.T) {
	var out bytes.Buffer
	v := vm.New(vm.WithStdout(&out))
	Register(v)

	_, err := v.Interpret(`print len(1);`, "test")
	require.Error(t, err)
	require.Contains(t, err.Error(), "len: argument must be")
}
