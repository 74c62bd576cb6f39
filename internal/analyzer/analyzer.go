// Package analyzer resolves identifier references before compilation.
//
// It classifies every name as a local, a global, or a captured variable, and
// removes the need for a runtime upvalue mechanism: a function that refers to
// variables of an enclosing function gets a hidden "env" argument holding the
// captured values in a table, and every captured reference inside the body is
// rewritten to a field access on that table. A reference to the function
// being defined through its own let-binding becomes a Rec expression.
package analyzer

import (
	"github.com/onsah/flux/internal/ast"
	"github.com/onsah/flux/internal/config"
	"github.com/onsah/flux/internal/parser"
)

// scope is one entry of the scope stack. Block scopes track locals only;
// function scopes additionally accumulate the free variables referenced
// through them.
type scope struct {
	name        string // function name for recursion detection, "" otherwise
	locals      map[string]struct{}
	environment []string // nil for block scopes, ordered for determinism
	isFunction  bool
}

func blockScope() *scope {
	return &scope{locals: make(map[string]struct{})}
}

func functionScope(name string) *scope {
	return &scope{name: name, locals: make(map[string]struct{}), environment: []string{}, isFunction: true}
}

func globalScope() *scope {
	s := blockScope()
	for _, name := range config.NativeNames {
		s.locals[name] = struct{}{}
	}
	return s
}

type Analyzer struct {
	scopes  []*scope
	globals map[string]struct{}
}

// Analyze rewrites the program in place and returns it.
func Analyze(program *ast.Program) (*ast.Program, error) {
	return AnalyzeWith(program, nil)
}

// AnalyzeWith additionally treats the given names as already-defined
// globals. The REPL passes the VM's current global map so a var from an
// earlier line resolves on later ones.
func AnalyzeWith(program *ast.Program, globalNames []string) (*ast.Program, error) {
	a := &Analyzer{
		scopes:  []*scope{globalScope()},
		globals: make(map[string]struct{}),
	}
	for _, name := range globalNames {
		a.globals[name] = struct{}{}
	}
	if err := a.visitBlockExpr(program.Block); err != nil {
		return nil, err
	}
	return program, nil
}

func (a *Analyzer) visitBlockExpr(block *ast.BlockExpression) error {
	for _, stmt := range block.Statements {
		if err := a.visitStmt(stmt); err != nil {
			return err
		}
	}
	result, err := a.visitExpr(block.Result, "")
	if err != nil {
		return err
	}
	block.Result = result
	return nil
}

func (a *Analyzer) visitStmt(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.LetStatement:
		// A let-bound function sees its own name for recursion, so the
		// name is declared before the body is visited.
		if _, isFn := s.Value.(*ast.FunctionExpression); isFn {
			if err := a.declareLocal(s.Name, s.Token.Line); err != nil {
				return err
			}
			value, err := a.visitExpr(s.Value, s.Name)
			if err != nil {
				return err
			}
			s.Value = value
			return nil
		}
		value, err := a.visitExpr(s.Value, "")
		if err != nil {
			return err
		}
		s.Value = value
		return a.declareLocal(s.Name, s.Token.Line)

	case *ast.VarStatement:
		if !a.isTopLevel() {
			return &parser.Error{Kind: parser.InnerVarDeclaration, Name: s.Name, Line: s.Token.Line}
		}
		value, err := a.visitExpr(s.Value, "")
		if err != nil {
			return err
		}
		s.Value = value
		a.globals[s.Name] = struct{}{}
		return nil

	case *ast.SetStatement:
		target, err := a.visitExpr(s.Target, "")
		if err != nil {
			return err
		}
		s.Target = target
		value, err := a.visitExpr(s.Value, "")
		if err != nil {
			return err
		}
		s.Value = value
		return nil

	case *ast.BlockStatement:
		a.enterScope()
		defer a.exitScope()
		for _, inner := range s.Statements {
			if err := a.visitStmt(inner); err != nil {
				return err
			}
		}
		return nil

	case *ast.IfStatement:
		condition, err := a.visitExpr(s.Condition, "")
		if err != nil {
			return err
		}
		s.Condition = condition
		then, err := a.visitExpr(s.Then, "")
		if err != nil {
			return err
		}
		s.Then = then
		if s.Else != nil {
			elseExpr, err := a.visitExpr(s.Else, "")
			if err != nil {
				return err
			}
			s.Else = elseExpr
		}
		return nil

	case *ast.WhileStatement:
		condition, err := a.visitExpr(s.Condition, "")
		if err != nil {
			return err
		}
		s.Condition = condition
		return a.visitStmt(s.Body)

	case *ast.ReturnStatement:
		value, err := a.visitExpr(s.Value, "")
		if err != nil {
			return err
		}
		s.Value = value
		return nil

	case *ast.ImportStatement:
		// The VM binds an import in its globals.
		a.globals[s.Name] = struct{}{}
		return nil

	case *ast.ExpressionStatement:
		expr, err := a.visitExpr(s.Expression, "")
		if err != nil {
			return err
		}
		s.Expression = expr
		return nil
	}
	return nil
}

// visitExpr resolves an expression and returns its (possibly rewritten)
// replacement. funcName carries the binding name when the expression is the
// value of `let name = fn ...`.
func (a *Analyzer) visitExpr(expr ast.Expression, funcName string) (ast.Expression, error) {
	switch e := expr.(type) {
	case *ast.Identifier:
		return a.visitIdentifier(e)

	case *ast.UnaryExpression:
		operand, err := a.visitExpr(e.Operand, "")
		if err != nil {
			return nil, err
		}
		e.Operand = operand
		return e, nil

	case *ast.BinaryExpression:
		left, err := a.visitExpr(e.Left, "")
		if err != nil {
			return nil, err
		}
		e.Left = left
		right, err := a.visitExpr(e.Right, "")
		if err != nil {
			return nil, err
		}
		e.Right = right
		return e, nil

	case *ast.GroupingExpression:
		inner, err := a.visitExpr(e.Inner, "")
		if err != nil {
			return nil, err
		}
		e.Inner = inner
		return e, nil

	case *ast.TupleExpression:
		for i, elem := range e.Elems {
			visited, err := a.visitExpr(elem, "")
			if err != nil {
				return nil, err
			}
			e.Elems[i] = visited
		}
		return e, nil

	case *ast.AccessExpression:
		table, err := a.visitExpr(e.Table, "")
		if err != nil {
			return nil, err
		}
		e.Table = table
		field, err := a.visitExpr(e.Field, "")
		if err != nil {
			return nil, err
		}
		e.Field = field
		return e, nil

	case *ast.SelfAccessExpression:
		table, err := a.visitExpr(e.Table, "")
		if err != nil {
			return nil, err
		}
		e.Table = table
		for i, arg := range e.Args {
			visited, err := a.visitExpr(arg, "")
			if err != nil {
				return nil, err
			}
			e.Args[i] = visited
		}
		return e, nil

	case *ast.TableExpression:
		for i, key := range e.Keys {
			visited, err := a.visitExpr(key, "")
			if err != nil {
				return nil, err
			}
			e.Keys[i] = visited
		}
		for i, value := range e.Values {
			visited, err := a.visitExpr(value, "")
			if err != nil {
				return nil, err
			}
			e.Values[i] = visited
		}
		return e, nil

	case *ast.FunctionExpression:
		return a.visitFunction(e, funcName)

	case *ast.CallExpression:
		fn, err := a.visitExpr(e.Func, "")
		if err != nil {
			return nil, err
		}
		e.Func = fn
		for i, arg := range e.Args {
			visited, err := a.visitExpr(arg, "")
			if err != nil {
				return nil, err
			}
			e.Args[i] = visited
		}
		return e, nil

	case *ast.BlockExpression:
		a.enterScope()
		defer a.exitScope()
		if err := a.visitBlockExpr(e); err != nil {
			return nil, err
		}
		return e, nil

	case *ast.IfExpression:
		condition, err := a.visitExpr(e.Condition, "")
		if err != nil {
			return nil, err
		}
		e.Condition = condition
		then, err := a.visitExpr(e.Then, "")
		if err != nil {
			return nil, err
		}
		e.Then = then
		elseExpr, err := a.visitExpr(e.Else, "")
		if err != nil {
			return nil, err
		}
		e.Else = elseExpr
		return e, nil

	default:
		// Literals and Rec resolve to themselves.
		return expr, nil
	}
}

// visitIdentifier implements the §4.1 resolution walk: recursion check first,
// then scopes inward-out, accumulating the name into every function scope
// crossed before the declaring one.
func (a *Analyzer) visitIdentifier(ident *ast.Identifier) (ast.Expression, error) {
	if a.isRecursiveRef(ident.Name) {
		return &ast.RecExpression{Token: ident.Token}, nil
	}

	isLocalSomewhere := false
	var crossed []*scope
	for i := len(a.scopes) - 1; i >= 0; i-- {
		s := a.scopes[i]
		if _, ok := s.locals[ident.Name]; ok {
			isLocalSomewhere = true
			break
		}
		if s.isFunction {
			crossed = append(crossed, s)
		}
	}

	if !isLocalSomewhere {
		if _, ok := a.globals[ident.Name]; !ok {
			return nil, &parser.Error{Kind: parser.Undeclared, Name: ident.Name, Line: ident.Token.Line}
		}
		return ident, nil
	}

	for _, s := range crossed {
		s.appendEnv(ident.Name)
	}
	if !a.hasLocal(ident.Name) {
		// Declared in an enclosing function: read it from the env table.
		return &ast.AccessExpression{
			Token: ident.Token,
			Table: &ast.Identifier{Token: ident.Token, Name: config.EnvName},
			Field: &ast.StringLiteral{Token: ident.Token, Value: ident.Name},
		}, nil
	}
	return ident, nil
}

func (a *Analyzer) visitFunction(fn *ast.FunctionExpression, funcName string) (ast.Expression, error) {
	a.enterFunction(funcName)
	for _, arg := range fn.Args {
		if err := a.declareLocal(arg, fn.Token.Line); err != nil {
			a.exitFunction()
			return nil, err
		}
	}
	if err := a.visitBlockExpr(fn.Body); err != nil {
		a.exitFunction()
		return nil, err
	}
	captured := a.exitFunction()

	if len(captured) > 0 {
		keys := make([]ast.Expression, len(captured))
		values := make([]ast.Expression, len(captured))
		for i, name := range captured {
			keys[i] = &ast.StringLiteral{Token: fn.Token, Value: name}
			// The capture reads the variable in the enclosing scope, which
			// may itself resolve to an env access one level up.
			value, err := a.visitExpr(&ast.Identifier{Token: fn.Token, Name: name}, "")
			if err != nil {
				return nil, err
			}
			values[i] = value
		}
		fn.Env = &ast.EnvCapture{Keys: keys, Values: values}
		fn.Args = append(fn.Args, config.EnvName)
	}
	return fn, nil
}

// isRecursiveRef reports whether name is the binding of the innermost
// function currently being analyzed.
func (a *Analyzer) isRecursiveRef(name string) bool {
	for i := len(a.scopes) - 1; i >= 0; i-- {
		if a.scopes[i].isFunction {
			return a.scopes[i].name == name
		}
	}
	return false
}

func (s *scope) appendEnv(name string) {
	for _, existing := range s.environment {
		if existing == name {
			return
		}
	}
	s.environment = append(s.environment, name)
}

func (a *Analyzer) declareLocal(name string, line int) error {
	s := a.scopes[len(a.scopes)-1]
	if _, ok := s.locals[name]; ok {
		return &parser.Error{Kind: parser.Redeclaration, Name: name, Line: line}
	}
	s.locals[name] = struct{}{}
	return nil
}

// hasLocal reports whether name is declared between here and the innermost
// function boundary (inclusive).
func (a *Analyzer) hasLocal(name string) bool {
	for i := len(a.scopes) - 1; i >= 0; i-- {
		s := a.scopes[i]
		if _, ok := s.locals[name]; ok {
			return true
		}
		if s.isFunction {
			break
		}
	}
	return false
}

func (a *Analyzer) enterScope() {
	a.scopes = append(a.scopes, blockScope())
}

func (a *Analyzer) exitScope() {
	a.scopes = a.scopes[:len(a.scopes)-1]
}

func (a *Analyzer) enterFunction(name string) {
	a.scopes = append(a.scopes, functionScope(name))
}

func (a *Analyzer) exitFunction() []string {
	s := a.scopes[len(a.scopes)-1]
	a.scopes = a.scopes[:len(a.scopes)-1]
	return s.environment
}

func (a *Analyzer) isTopLevel() bool {
	return len(a.scopes) == 1
}
