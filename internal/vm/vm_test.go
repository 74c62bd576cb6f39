package vm

import (
	"bytes"
	"strings"
	"testing"
)

func compile(t *testing.T, input string) *Chunk {
	t.Helper()
	chunk, err := CompileSource(input, "", "", nil)
	if err != nil {
		t.Fatalf("compilation error: %s", err)
	}
	return chunk
}

func runVM(t *testing.T, input string) Value {
	t.Helper()
	chunk := compile(t, input)
	machine := New(WithOutput(&bytes.Buffer{}))
	result, err := machine.Run(chunk)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	return result
}

func runVMError(t *testing.T, input string) error {
	t.Helper()
	chunk := compile(t, input)
	machine := New(WithOutput(&bytes.Buffer{}))
	if _, err := machine.Run(chunk); err != nil {
		return err
	}
	t.Fatalf("expected a runtime error for %q", input)
	return nil
}

func testIntegerValue(t *testing.T, v Value, expected int64) {
	t.Helper()
	if v.Type != ValInt {
		t.Fatalf("value is not Int. got=%s (%s)", v.Type, v)
	}
	if v.AsInt() != expected {
		t.Errorf("value has wrong value. got=%d, want=%d", v.AsInt(), expected)
	}
}

func testNumberValue(t *testing.T, v Value, expected float64) {
	t.Helper()
	if v.Type != ValNumber {
		t.Fatalf("value is not Number. got=%s (%s)", v.Type, v)
	}
	if v.AsNumber() != expected {
		t.Errorf("value has wrong value. got=%g, want=%g", v.AsNumber(), expected)
	}
}

func testBooleanValue(t *testing.T, v Value, expected bool) {
	t.Helper()
	if v.Type != ValBool {
		t.Fatalf("value is not Bool. got=%s (%s)", v.Type, v)
	}
	if v.AsBool() != expected {
		t.Errorf("value has wrong value. got=%t, want=%t", v.AsBool(), expected)
	}
}

func runtimeKind(t *testing.T, err error) RuntimeErrorKind {
	t.Helper()
	rerr, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("expected *RuntimeError, got %T (%v)", err, err)
	}
	return rerr.Kind
}

func TestIntegerArithmetic(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1", 1},
		{"1 + 2", 3},
		{"1 - 2", -1},
		{"2 * 3", 6},
		{"4 / 2", 2},
		{"7 % 3", 1},
		{"-7 % 3", -1},
		{"50 / 2 * 2 + 10 - 5", 55},
		{"5 * (2 + 10)", 60},
		{"-5", -5},
		{"-50 + 100 + -50", 0},
		{"let x = 5 * 2 + 5 - 5; return x;", 10},
	}
	for _, tt := range tests {
		testIntegerValue(t, runVM(t, tt.input), tt.expected)
	}
}

func TestNumberArithmetic(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"return 5 / 2;", 2.5},
		{"1.5 + 2.5", 4.0},
		{"2 * 1.5", 3.0},
		{"1.5 * 2", 3.0},
		{"7.5 % 2", 1.5},
		{"10 / 4", 2.5},
		{"-2.5", -2.5},
	}
	for _, tt := range tests {
		testNumberValue(t, runVM(t, tt.input), tt.expected)
	}
}

func TestDivisionEscalation(t *testing.T) {
	// Exact integer quotients stay Int; inexact ones become Number.
	testIntegerValue(t, runVM(t, "6 / 3"), 2)
	testNumberValue(t, runVM(t, "5 / 2"), 2.5)
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"1 < 2", true},
		{"2 < 1", false},
		{"2 <= 2", true},
		{"3 > 2", true},
		{"3 >= 4", false},
		{"1.5 < 2", true},
		{"2 > 1.5", true},
		{"1 == 1", true},
		{"1 != 1", false},
		{"1 == 1.0", false},
		{"1.0 == 1.0", true},
		{"\"ab\" == \"a\" + \"b\"", true},
		{"nil == nil", true},
		{"nil == false", false},
		{"(1, 2) == (1, 2)", true},
		{"(1, 2) == (1, 3)", false},
		{"{} == {}", false},
		{"!true", false},
		{"!false", true},
	}
	for _, tt := range tests {
		testBooleanValue(t, runVM(t, tt.input), tt.expected)
	}
}

func TestTableIdentityEquality(t *testing.T) {
	testBooleanValue(t, runVM(t, "let t = {}; let u = t; t == u"), true)
}

func TestStringConcat(t *testing.T) {
	result := runVM(t, "\"foo\" + \"bar\"")
	if result.Type != ValStr || result.AsStr() != "foobar" {
		t.Fatalf("expected \"foobar\", got %s", result)
	}
}

func TestSimpleFunctionCall(t *testing.T) {
	source := `let foo = fn(x) return x * x; end; return foo(5);`
	testIntegerValue(t, runVM(t, source), 25)
}

func TestRecursion(t *testing.T) {
	source := `let fib = fn(n) return if n <= 1 then n else fib(n-1)+fib(n-2) end end; fib(6)`
	testIntegerValue(t, runVM(t, source), 8)
}

func TestClosureChain(t *testing.T) {
	source := `
	let foo = fn(x)
		return fn(y)
			return fn()
				return x + y;
			end;
		end;
	end;
	let bar = foo(10);
	let barr = bar(5);
	return barr();`
	testIntegerValue(t, runVM(t, source), 15)
}

func TestClosureCounter(t *testing.T) {
	source := `let g = fn() let i = 0; fn() i = i + 1; i end end; let it = g(); it(); it(); it()`
	testIntegerValue(t, runVM(t, source), 3)
}

func TestClosureInstancesAreIndependent(t *testing.T) {
	source := `
	let g = fn() let i = 0; fn() i = i + 1; i end end;
	let a = g();
	let b = g();
	a(); a();
	return b();`
	testIntegerValue(t, runVM(t, source), 1)
}

func TestNewWithInit(t *testing.T) {
	source := `let c = {"init" = fn(self, x) self.foo = x; end}; let o = new(c, 3); return o.foo;`
	testIntegerValue(t, runVM(t, source), 3)
}

func TestMethodCalls(t *testing.T) {
	source := `
	let obj = {"setX" = fn(self, x) self.x = x; end, "getX" = fn(self) return self.x; end};
	obj:setX(17);
	obj:getX()`
	testIntegerValue(t, runVM(t, source), 17)
}

func TestPrototypeChain(t *testing.T) {
	source := `
	let base = {"kind" = fn(self) return 42; end};
	let o = new(base);
	return o:kind();`
	testIntegerValue(t, runVM(t, source), 42)
}

func TestMissingKeyIsNil(t *testing.T) {
	source := `let t = {}; return t.missing == nil;`
	testBooleanValue(t, runVM(t, source), true)
}

func TestTableLiterals(t *testing.T) {
	testIntegerValue(t, runVM(t, `let t = {10, 20, 30}; return t[1];`), 20)
	testIntegerValue(t, runVM(t, `let t = {"a" = 1, "b" = 2}; return t.b;`), 2)
	testIntegerValue(t, runVM(t, `let t = {3 = 6}; return t[3];`), 6)
}

func TestTupleValues(t *testing.T) {
	result := runVM(t, `(1, "two", true)`)
	if result.Type != ValTuple {
		t.Fatalf("expected tuple, got %s", result.Type)
	}
	elems := result.AsTuple()
	if len(elems) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(elems))
	}
	testIntegerValue(t, elems[0], 1)
}

func TestWhileLoop(t *testing.T) {
	source := `let i = 0; while i < 10 then i = i + 1; end return i;`
	testIntegerValue(t, runVM(t, source), 10)
}

func TestBlockExpression(t *testing.T) {
	source := `let x = do let y = 21; y * 2 end; return x;`
	testIntegerValue(t, runVM(t, source), 42)
}

func TestBlockExpressionInArgumentPosition(t *testing.T) {
	// A block with locals evaluated above already-pushed call arguments.
	source := `
	let add = fn(a, b) return a + b; end;
	return add(1, do let y = 2; y end);`
	testIntegerValue(t, runVM(t, source), 3)
}

func TestIfStatement(t *testing.T) {
	source := `
	let t = {"v" = 0};
	if true then
		t.v = 1;
	else
		t.v = 2;
	end
	return t.v;`
	testIntegerValue(t, runVM(t, source), 1)

	source = `
	let t = {"v" = 0};
	if false then
		t.v = 1;
	else if false then
		t.v = 2;
	else
		t.v = 3;
	end
	return t.v;`
	testIntegerValue(t, runVM(t, source), 3)
}

func TestGlobals(t *testing.T) {
	source := `var counter = 10; counter = counter + 5; return counter;`
	testIntegerValue(t, runVM(t, source), 15)
}

func TestDivideByZero(t *testing.T) {
	for _, input := range []string{"5 / 0", "5.0 / 0", "5 % 0", "5 / (1 - 1)"} {
		if kind := runtimeKind(t, runVMError(t, input)); kind != DivideByZero {
			t.Errorf("%q: expected DivideByZero, got kind %d", input, kind)
		}
	}
}

func TestAssertionFailed(t *testing.T) {
	err := runVMError(t, "assert(false);")
	rerr := err.(*RuntimeError)
	if rerr.Kind != AssertionFailed {
		t.Fatalf("expected AssertionFailed, got %v", err)
	}
	if rerr.Value.Type != ValBool || rerr.Value.AsBool() {
		t.Fatalf("expected the failing value Bool(false), got %s", rerr.Value)
	}
}

func TestWrongNumberOfArgs(t *testing.T) {
	source := `let dummy = fn(a, b, c) end; dummy()`
	err := runVMError(t, source)
	rerr := err.(*RuntimeError)
	if rerr.Kind != WrongNumberOfArgs || rerr.Expected != 3 || rerr.Found != 0 {
		t.Fatalf("expected WrongNumberOfArgs{3, 0}, got %v", err)
	}
}

func TestUndefinedVariable(t *testing.T) {
	// The analyzer catches undeclared names in source, so reaching the
	// runtime check takes a hand-built chunk: GetGlobal on a name nothing
	// defined.
	chunk := NewChunk()
	idx, err := chunk.AddConstant(StrVal("ghost"))
	if err != nil {
		t.Fatalf("AddConstant: %s", err)
	}
	chunk.Instructions = []Instruction{
		{Op: OP_GET_GLOBAL, A: idx},
		{Op: OP_RETURN, Flag: true},
	}
	machine := New(WithOutput(&bytes.Buffer{}))
	_, rerr := machine.Run(chunk)
	re, ok := rerr.(*RuntimeError)
	if !ok || re.Kind != UndefinedVariable || re.Name != "ghost" {
		t.Fatalf("expected UndefinedVariable{ghost}, got %v", rerr)
	}
}

func TestCallingNonFunction(t *testing.T) {
	if kind := runtimeKind(t, runVMError(t, "let x = 5; x()")); kind != TypeError {
		t.Errorf("expected TypeError, got kind %d", kind)
	}
}

func TestUnsupportedOperations(t *testing.T) {
	if kind := runtimeKind(t, runVMError(t, "true + 1")); kind != UnsupportedBinary {
		t.Errorf("expected UnsupportedBinary, got kind %d", kind)
	}
	if kind := runtimeKind(t, runVMError(t, "\"a\" - \"b\"")); kind != TypeError {
		t.Errorf("expected TypeError, got kind %d", kind)
	}
	if kind := runtimeKind(t, runVMError(t, "!5")); kind != TypeError {
		t.Errorf("expected TypeError, got kind %d", kind)
	}
	if kind := runtimeKind(t, runVMError(t, "-true")); kind != TypeError {
		t.Errorf("expected TypeError, got kind %d", kind)
	}
}

func TestMethodMustBeUserFunction(t *testing.T) {
	if kind := runtimeKind(t, runVMError(t, "let t = {}; t:missing()")); kind != TypeError {
		t.Errorf("expected TypeError, got kind %d", kind)
	}
}

func TestReturnWithoutValue(t *testing.T) {
	result := runVM(t, `let f = fn() return; end; return f();`)
	if result.Type != ValUnit {
		t.Fatalf("expected unit, got %s", result)
	}
}

func TestStackBalanceAfterCalls(t *testing.T) {
	// Each call nets exactly one value; a loop of calls must not leak.
	source := `
	let f = fn() return 1; end;
	let i = 0;
	let acc = 0;
	while i < 100 then
		acc = acc + f();
		i = i + 1;
	end
	return acc;`
	testIntegerValue(t, runVM(t, source), 100)
}

func TestPrintInstruction(t *testing.T) {
	chunk := compile(t, "let x = 40 + 2; x")
	// Rewrite the final Return into Print so program output is observable.
	n := len(chunk.Instructions)
	chunk.Instructions[n-1] = Instruction{Op: OP_PRINT}
	chunk.Instructions = append(chunk.Instructions, Instruction{Op: OP_RETURN})

	var out bytes.Buffer
	machine := New(WithOutput(&out))
	if _, err := machine.Run(chunk); err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	if out.String() != "42\n" {
		t.Fatalf("expected %q, got %q", "42\n", out.String())
	}
}

func TestTraceOutput(t *testing.T) {
	var trace bytes.Buffer
	chunk := compile(t, "1 + 2")
	machine := New(WithOutput(&bytes.Buffer{}), WithTrace(&trace))
	if _, err := machine.Run(chunk); err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	if !strings.Contains(trace.String(), machine.ID()) {
		t.Fatalf("trace output should carry the VM id")
	}
	if !strings.Contains(trace.String(), "ADD") {
		t.Fatalf("trace output should name executed instructions")
	}
}
