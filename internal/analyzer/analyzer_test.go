package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onsah/flux/internal/ast"
	"github.com/onsah/flux/internal/config"
	"github.com/onsah/flux/internal/parser"
)

func analyze(t *testing.T, source string) *ast.Program {
	t.Helper()
	program, err := parser.ParseSource(source, "")
	require.NoError(t, err)
	program, err = Analyze(program)
	require.NoError(t, err)
	return program
}

func analyzeErr(t *testing.T, source string) *parser.Error {
	t.Helper()
	program, err := parser.ParseSource(source, "")
	require.NoError(t, err)
	_, err = Analyze(program)
	require.Error(t, err)
	perr, ok := err.(*parser.Error)
	require.True(t, ok, "expected *parser.Error, got %T", err)
	return perr
}

func TestClosedFunctionGetsNoEnv(t *testing.T) {
	program := analyze(t, "let foo = fn(x) return x * x; end;")
	let := program.Block.Statements[0].(*ast.LetStatement)
	fn := let.Value.(*ast.FunctionExpression)
	assert.Nil(t, fn.Env)
	assert.Equal(t, []string{"x"}, fn.Args)
}

func TestFreeVariableIsRewrittenToEnvAccess(t *testing.T) {
	program := analyze(t, `
		fn(x)
			fn(y)
				x + y
			end
		end
	`)
	outer := program.Block.Result.(*ast.FunctionExpression)
	assert.Nil(t, outer.Env)

	inner := outer.Body.Result.(*ast.FunctionExpression)
	require.NotNil(t, inner.Env)
	assert.Equal(t, []string{"y", config.EnvName}, inner.Args)
	require.Len(t, inner.Env.Keys, 1)
	key := inner.Env.Keys[0].(*ast.StringLiteral)
	assert.Equal(t, "x", key.Value)
	// The captured value is read as a plain local in the enclosing scope.
	_, ok := inner.Env.Values[0].(*ast.Identifier)
	assert.True(t, ok)

	// Inside the body, x reads through the env table and y stays local.
	sum := inner.Body.Result.(*ast.BinaryExpression)
	access, ok := sum.Left.(*ast.AccessExpression)
	require.True(t, ok)
	envIdent := access.Table.(*ast.Identifier)
	assert.Equal(t, config.EnvName, envIdent.Name)
	field := access.Field.(*ast.StringLiteral)
	assert.Equal(t, "x", field.Value)
	_, ok = sum.Right.(*ast.Identifier)
	assert.True(t, ok)
}

func TestDeepCaptureThreadsThroughEveryFunction(t *testing.T) {
	program := analyze(t, `
		let foo = fn(x)
			return fn(y)
				return fn()
					return x + y;
				end;
			end;
		end;
	`)
	let := program.Block.Statements[0].(*ast.LetStatement)
	outer := let.Value.(*ast.FunctionExpression)
	assert.Nil(t, outer.Env)

	middleRet := outer.Body.Statements[0].(*ast.ReturnStatement)
	middle := middleRet.Value.(*ast.FunctionExpression)
	require.NotNil(t, middle.Env)
	// The middle function captures x only to pass it along.
	require.Len(t, middle.Env.Keys, 1)
	assert.Equal(t, "x", middle.Env.Keys[0].(*ast.StringLiteral).Value)

	innerRet := middle.Body.Statements[0].(*ast.ReturnStatement)
	inner := innerRet.Value.(*ast.FunctionExpression)
	require.NotNil(t, inner.Env)
	require.Len(t, inner.Env.Keys, 2)
	// The middle function's own capture is read through its env.
	_, ok := inner.Env.Values[0].(*ast.AccessExpression)
	assert.True(t, ok)
}

func TestRecursiveReferenceBecomesRec(t *testing.T) {
	program := analyze(t, "let fib = fn(n) return fib(n - 1); end;")
	let := program.Block.Statements[0].(*ast.LetStatement)
	fn := let.Value.(*ast.FunctionExpression)
	assert.Nil(t, fn.Env)
	ret := fn.Body.Statements[0].(*ast.ReturnStatement)
	call := ret.Value.(*ast.CallExpression)
	_, ok := call.Func.(*ast.RecExpression)
	assert.True(t, ok)
}

func TestMutationOfCapturedVariable(t *testing.T) {
	program := analyze(t, "let g = fn() let i = 0; fn() i = i + 1; i end end;")
	let := program.Block.Statements[0].(*ast.LetStatement)
	outer := let.Value.(*ast.FunctionExpression)
	assert.Nil(t, outer.Env)
	inner := outer.Body.Result.(*ast.FunctionExpression)
	require.NotNil(t, inner.Env)
	set := inner.Body.Statements[0].(*ast.SetStatement)
	_, ok := set.Target.(*ast.AccessExpression)
	assert.True(t, ok, "captured assignment target becomes an env access")
}

func TestNativeNamesResolve(t *testing.T) {
	program := analyze(t, "print(1); let f = fn() return int(\"2\"); end;")
	// A function using a native captures it like any outer binding.
	let := program.Block.Statements[1].(*ast.LetStatement)
	fn := let.Value.(*ast.FunctionExpression)
	require.NotNil(t, fn.Env)
	assert.Equal(t, "int", fn.Env.Keys[0].(*ast.StringLiteral).Value)
}

func TestUndeclaredIdentifier(t *testing.T) {
	perr := analyzeErr(t, "foo = 5;")
	assert.Equal(t, parser.Undeclared, perr.Kind)
	assert.Equal(t, "foo", perr.Name)

	perr = analyzeErr(t, "return missing;")
	assert.Equal(t, parser.Undeclared, perr.Kind)
}

func TestRedeclarationInSameScope(t *testing.T) {
	perr := analyzeErr(t, "let a = 1; let a = 2;")
	assert.Equal(t, parser.Redeclaration, perr.Kind)
	assert.Equal(t, "a", perr.Name)
}

func TestShadowingInNestedScopeIsAllowed(t *testing.T) {
	analyze(t, "let a = 1; let b = do let a = 2; a end;")
}

func TestInnerVarDeclarationFails(t *testing.T) {
	perr := analyzeErr(t, "fn() var a = nil; end")
	assert.Equal(t, parser.InnerVarDeclaration, perr.Kind)
	assert.Equal(t, "a", perr.Name)
}

func TestGlobalsResolveWithoutCapture(t *testing.T) {
	program := analyze(t, "var g = 1; let f = fn() return g; end;")
	let := program.Block.Statements[1].(*ast.LetStatement)
	fn := let.Value.(*ast.FunctionExpression)
	assert.Nil(t, fn.Env, "globals are not captured into env tables")
}

func TestAnalyzeWithKnownGlobals(t *testing.T) {
	program, err := parser.ParseSource("session + 1", "")
	require.NoError(t, err)
	_, err = AnalyzeWith(program, []string{"session"})
	assert.NoError(t, err)
}

func TestImportBindsName(t *testing.T) {
	analyze(t, "import std.math; math;")
}
