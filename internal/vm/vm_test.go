package vm

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xirelogy/go-fer/internal/value"
)

func run(t *testing.T, src string, opts ...Option) (string, error) {
	t.Helper()
	var out bytes.Buffer
	opts = append(opts, WithStdout(&out))
	v := New(opts...)
	_, err := v.Interpret(src, "test")
	return out.String(), err
}

func TestVMArithmeticAndPrint(t *testing.T) {
	out, err := run(t, `print 1 + 2 * 3;`)
	require.NoError(t, err)
	require.Equal(t, "7\n", out)
}

func TestVMStringConcatenation(t *testing.T) {
	out, err := run(t, `print "hello" + " " + "world";`)
	require.NoError(t, err)
	require.Equal(t, "hello world\n", out)
}

func TestVMVariablesAndScopes(t *testing.T) {
	out, err := run(t, `
var x = 10;
{
  var x = 20;
  print x;
}
print x;
`)
	require.NoError(t, err)
	require.Equal(t, "20\n10\n", out)
}

func TestVMControlFlow(t *testing.T) {
	out, err := run(t, `
var i = 0;
var sum = 0;
while (i < 5) {
  sum = sum + i;
  i = i + 1;
}
print sum;
`)
	require.NoError(t, err)
	require.Equal(t, "10\n", out)
}

func TestVMForLoopBreakContinue(t *testing.T) {
	out, err := run(t, `
var total = 0;
for (var i = 0; i < 10; i = i + 1) {
  if (i == 5) break;
  if (i == 2) continue;
  total = total + i;
}
print total;
`)
	require.NoError(t, err)
	// 0+1+3+4 = 8 (2 skipped by continue, loop stops before adding 5)
	require.Equal(t, "8\n", out)
}

func TestVMFunctionsAndClosures(t *testing.T) {
	out, err := run(t, `
fun makeCounter() {
  var count = 0;
  fun counter() {
    count = count + 1;
    return count;
  }
  return counter;
}
var c = makeCounter();
print c();
print c();
print c();
`)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestVMClassesAndMethods(t *testing.T) {
	out, err := run(t, `
class Counter {
  init(start) {
    this.value = start;
  }
  inc() {
    this.value = this.value + 1;
    return this.value;
  }
}
var c = Counter(10);
print c.inc();
print c.inc();
`)
	require.NoError(t, err)
	require.Equal(t, "11\n12\n", out)
}

func TestVMInheritanceAndSuper(t *testing.T) {
	out, err := run(t, `
class Animal {
  speak() {
    return "...";
  }
}
class Dog < Animal {
  speak() {
    return super.speak() + " Woof";
  }
}
print Dog().speak();
`)
	require.NoError(t, err)
	require.Equal(t, "... Woof\n", out)
}

func TestVMListsAndDicts(t *testing.T) {
	out, err := run(t, `
var l = [1, 2, 3];
l[1] = 99;
print l[1];

var d = {"a": 1, "b": 2};
d["a"] = 100;
print d["a"];
`)
	require.NoError(t, err)
	require.Equal(t, "99\n100\n", out)
}

func TestVMRuntimeErrorUndefinedVariable(t *testing.T) {
	_, err := run(t, `print undefined;`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Undefined variable")
}

func TestVMRuntimeErrorTypeMismatch(t *testing.T) {
	_, err := run(t, `print 1 + nil;`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Operands must be")
}

func TestVMRuntimeErrorIncludesFrameTrace(t *testing.T) {
	_, err := run(t, `
fun boom() {
  return 1 + nil;
}
boom();
`)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.NotEmpty(t, rerr.Stack)
	require.Equal(t, "boom", rerr.Stack[0].Function)
}

func TestVMPermanentVariableReassignErrors(t *testing.T) {
	_, err := run(t, `
perm x = 1;
x = 2;
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "permanent variable")
}

func TestVMStackOverflowOnDeepRecursion(t *testing.T) {
	_, err := run(t, `
fun recurse(n) {
  return recurse(n + 1);
}
recurse(0);
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Stack overflow")
}

func TestVMCallValueReentry(t *testing.T) {
	v := New(WithStdout(&bytes.Buffer{}))
	_, err := v.Interpret(`fun add(a, b) { return a + b; }`, "test")
	require.NoError(t, err)

	fnVal, ok := v.Globals().Get(v.NewString("add"))
	require.True(t, ok)

	result, err := v.CallValue(fnVal, []value.Value{value.Number(3), value.Number(4)})
	require.NoError(t, err)
	require.Equal(t, value.Number(7), result)
}

func TestVMCallValueNestedHostCallFromNative(t *testing.T) {
	v := New(WithStdout(&bytes.Buffer{}))
	v.DefineNative("apply", func(args []value.Value) (value.Value, error) {
		return v.CallValue(args[0], args[1:])
	}, -1)

	_, err := v.Interpret(`
fun double(x) { return x * 2; }
print apply(double, 21);
`, "test")
	require.NoError(t, err)
}

func TestVMDefineNativeArityMismatch(t *testing.T) {
	v := New(WithStdout(&bytes.Buffer{}))
	v.DefineNative("needsOne", func(args []value.Value) (value.Value, error) {
		return value.Nil, nil
	}, 1)

	_, err := v.Interpret(`needsOne();`, "test")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Expected 1 arguments")
}

func TestVMStressGCDoesNotCorruptState(t *testing.T) {
	out, err := run(t, `
var acc = 0;
for (var i = 0; i < 50; i = i + 1) {
  var s = "x" + "y";
  var l = [i, s];
  acc = acc + l[0];
}
print acc;
`, WithStressGC())
	require.NoError(t, err)

	sum := 0
	for i := 0; i < 50; i++ {
		sum += i
	}
	require.Equal(t, fmt.Sprintf("%d\n", sum), out)
}

func TestVMCompileThenRunSeparately(t *testing.T) {
	var out bytes.Buffer
	v := New(WithStdout(&out))
	fn, err := v.Compile(`print "split";`, "test")
	require.NoError(t, err)
	require.NotNil(t, fn)

	result, err := v.Run(fn)
	require.NoError(t, err)
	require.Equal(t, ResultOK, result)
	require.Equal(t, "split\n", out.String())
}

func TestVMTraceHookObservesDispatch(t *testing.T) {
	var ops []string
	v := New(WithStdout(&bytes.Buffer{}), WithTraceHook(func(ti TraceInfo) {
		ops = append(ops, ti.Op.String())
	}))
	_, err := v.Interpret(`print 1;`, "test")
	require.NoError(t, err)
	require.NotEmpty(t, ops)
}

func TestVMInstructionLimitAborts(t *testing.T) {
	v := New(WithStdout(&bytes.Buffer{}), WithInstructionLimit(5))
	_, err := v.Interpret(`
var i = 0;
while (i < 1000) {
  i = i + 1;
}
`, "test")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Instruction limit")
}

func TestVMResultStringer(t *testing.T) {
	require.Equal(t, "ok", ResultOK.String())
	require.Equal(t, "compile_error", ResultCompileError.String())
	require.Equal(t, "runtime_error", ResultRuntimeError.String())
	require.Equal(t, "unknown", Result(99).String())
}

func TestVMCompileErrorPropagates(t *testing.T) {
	_, err := run(t, `var;`)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "Error"))
}
