package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xirelogy/go-fer/internal/chunk"
	"github.com/xirelogy/go-fer/internal/value"
)

// fakeAlloc is a minimal Allocator for compiler tests: it doesn't intern
// strings or link objects onto any heap, since the compiler never inspects
// object identity beyond what it itself creates.
type fakeAlloc struct{}

func (fakeAlloc) NewString(s string) *value.StringObj {
	return &value.StringObj{Chars: s}
}

func (fakeAlloc) NewFunction() *value.FunctionObj {
	return &value.FunctionObj{Chunk: chunk.New()}
}

func compile(t *testing.T, src string) (*value.FunctionObj, error) {
	t.Helper()
	return Compile(fakeAlloc{}, src, "test")
}

func TestCompileSimpleScript(t *testing.T) {
	fn, err := compile(t, `var x = 1 + 2; print x;`)
	require.NoError(t, err)
	require.NotNil(t, fn)
	require.NotEmpty(t, fn.Chunk.Code)
}

func TestCompileErrorReportsMessage(t *testing.T) {
	_, err := compile(t, `var;`)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	require.NotEmpty(t, ce.Messages)
}

func TestCompileReadLocalInOwnInitializerErrors(t *testing.T) {
	_, err := compile(t, `fun f() { var x = x; }`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "own initializer")
}

func TestCompileTooManyLocalsErrors(t *testing.T) {
	var b strings.Builder
	b.WriteString("fun f() {\n")
	for i := 0; i < 256; i++ {
		fmt.Fprintf(&b, "var v%d = 0;\n", i)
	}
	b.WriteString("}\n")
	_, err := compile(t, b.String())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Too many local variables")
}

func TestCompileManyLocalsJustUnderLimitOK(t *testing.T) {
	var b strings.Builder
	b.WriteString("fun f() {\n")
	for i := 0; i < 255; i++ {
		fmt.Fprintf(&b, "var v%d = 0;\n", i)
	}
	b.WriteString("}\n")
	_, err := compile(t, b.String())
	require.NoError(t, err)
}

func TestAddUpvalueDedupesExisting(t *testing.T) {
	c := &Compiler{}
	f := &frame{}
	idx1 := c.addUpvalue(f, 3, true)
	idx2 := c.addUpvalue(f, 3, true)
	require.Equal(t, idx1, idx2)
	require.Len(t, f.upvalues, 1)
}

func TestAddUpvalueTooManyErrors(t *testing.T) {
	c := &Compiler{}
	f := &frame{}
	for i := 0; i < 256; i++ {
		c.addUpvalue(f, byte(i), true)
	}
	require.False(t, c.hadError)
	require.Len(t, f.upvalues, 256)

	// distinct from every existing entry (same index, opposite isLocal), so
	// this would be a genuine 257th upvalue rather than a dedup hit.
	c.addUpvalue(f, 255, false)
	require.True(t, c.hadError)
	require.Contains(t, strings.Join(c.errors, "\n"), "Too many closure variables in function.")
	require.Len(t, f.upvalues, 256, "the 257th upvalue must not be appended")
}

func TestCompileTooManyArgumentsErrors(t *testing.T) {
	var args []string
	for i := 0; i < 256; i++ {
		args = append(args, "0")
	}
	src := fmt.Sprintf("fun f() {}\nf(%s);\n", strings.Join(args, ", "))
	_, err := compile(t, src)
	require.Error(t, err)
	require.Contains(t, err.Error(), "more than 255 arguments")
}

func TestCompileTooManyListElementsErrors(t *testing.T) {
	var elems []string
	for i := 0; i < 256; i++ {
		elems = append(elems, "0")
	}
	src := fmt.Sprintf("var l = [%s];\n", strings.Join(elems, ", "))
	_, err := compile(t, src)
	require.Error(t, err)
	require.Contains(t, err.Error(), "more than 255 elements in one list")
}

func TestCompileBreakOutsideLoopErrors(t *testing.T) {
	_, err := compile(t, `break;`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "outside of a loop")
}

func TestCompileContinueOutsideLoopErrors(t *testing.T) {
	_, err := compile(t, `continue;`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "outside of a loop")
}

func TestCompileReturnOutsideFunctionErrors(t *testing.T) {
	_, err := compile(t, `return 1;`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "top-level code")
}

func TestCompileReturnValueFromInitializerErrors(t *testing.T) {
	_, err := compile(t, `class C { init() { return 1; } }`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "return a value from an initializer")
}

func TestCompileSelfInheritanceErrors(t *testing.T) {
	_, err := compile(t, `class C < C {}`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "can't inherit from itself")
}

func TestCompileThisOutsideClassErrors(t *testing.T) {
	_, err := compile(t, `fun f() { return this; }`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "outside of a class")
}

func TestCompileSuperWithoutSuperclassErrors(t *testing.T) {
	_, err := compile(t, `class C { m() { super.m(); } }`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no superclass")
}

func TestCompilePermanentVariableMustInitializeErrors(t *testing.T) {
	_, err := compile(t, `perm x;`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be initialized")
}

func TestCompileReassignPermanentLocalErrors(t *testing.T) {
	_, err := compile(t, `fun f() { perm x = 1; x = 2; }`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "reassign to permanent variable")
}

func TestCompileInvalidAssignmentTargetErrors(t *testing.T) {
	_, err := compile(t, `1 = 2;`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid assignment target")
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	fn, err := compile(t, `
fun outer() {
  var x = 1;
  fun inner() { return x; }
  return inner;
}`)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileJumpOffsetOverflowErrors(t *testing.T) {
	var b strings.Builder
	b.WriteString("if (true) {\n")
	for i := 0; i < 40000; i++ {
		b.WriteString("print 1;\n")
	}
	b.WriteString("}\n")
	_, err := compile(t, b.String())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Too much code to jump over")
}
