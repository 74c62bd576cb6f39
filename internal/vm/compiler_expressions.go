package vm

import (
	"math"

	"github.com/onsah/flux/internal/ast"
)

var binaryOpcodes = map[ast.BinaryOp]Opcode{
	ast.OpAdd:          OP_ADD,
	ast.OpSub:          OP_SUB,
	ast.OpMul:          OP_MUL,
	ast.OpDiv:          OP_DIV,
	ast.OpRem:          OP_REM,
	ast.OpGreater:      OP_GT,
	ast.OpLess:         OP_LT,
	ast.OpGreaterEqual: OP_GE,
	ast.OpLessEqual:    OP_LE,
	ast.OpEqual:        OP_EQ,
	ast.OpNotEqual:     OP_NE,
}

func (c *Compiler) compileExpr(expr ast.Expression) error {
	c.line = expr.GetToken().Line
	switch e := expr.(type) {
	case *ast.NilLiteral:
		c.emit(Instruction{Op: OP_NIL})
		c.adjust(1)
		return nil

	case *ast.UnitLiteral:
		c.emit(Instruction{Op: OP_UNIT})
		c.adjust(1)
		return nil

	case *ast.BoolLiteral:
		if e.Value {
			c.emit(Instruction{Op: OP_TRUE})
		} else {
			c.emit(Instruction{Op: OP_FALSE})
		}
		c.adjust(1)
		return nil

	case *ast.IntLiteral:
		// Small integers are immediate; the rest go through the pool.
		if e.Value >= math.MinInt32 && e.Value <= math.MaxInt32 {
			c.emit(Instruction{Op: OP_INT, A: int(e.Value)})
			c.adjust(1)
			return nil
		}
		idx, err := c.constant(IntVal(e.Value))
		if err != nil {
			return err
		}
		c.emit(Instruction{Op: OP_CONST, A: idx})
		c.adjust(1)
		return nil

	case *ast.NumberLiteral:
		idx, err := c.constant(NumberVal(e.Value))
		if err != nil {
			return err
		}
		c.emit(Instruction{Op: OP_CONST, A: idx})
		c.adjust(1)
		return nil

	case *ast.StringLiteral:
		idx, err := c.constant(StrVal(e.Value))
		if err != nil {
			return err
		}
		c.emit(Instruction{Op: OP_CONST, A: idx})
		c.adjust(1)
		return nil

	case *ast.Identifier:
		if slot, frame, ok := c.resolveLocal(e.Name); ok {
			c.emit(Instruction{Op: OP_GET_LOCAL, A: slot, B: frame})
			c.adjust(1)
			return nil
		}
		idx, err := c.constant(StrVal(e.Name))
		if err != nil {
			return err
		}
		c.emit(Instruction{Op: OP_GET_GLOBAL, A: idx})
		c.adjust(1)
		return nil

	case *ast.UnaryExpression:
		if err := c.compileExpr(e.Operand); err != nil {
			return err
		}
		if e.Op == ast.OpNegate {
			c.emit(Instruction{Op: OP_NEG})
		} else {
			c.emit(Instruction{Op: OP_NOT})
		}
		return nil

	case *ast.BinaryExpression:
		if err := c.compileExpr(e.Left); err != nil {
			return err
		}
		if err := c.compileExpr(e.Right); err != nil {
			return err
		}
		c.emit(Instruction{Op: binaryOpcodes[e.Op]})
		c.adjust(-1)
		return nil

	case *ast.GroupingExpression:
		return c.compileExpr(e.Inner)

	case *ast.TupleExpression:
		for _, elem := range e.Elems {
			if err := c.compileExpr(elem); err != nil {
				return err
			}
		}
		c.emit(Instruction{Op: OP_TUPLE, A: len(e.Elems)})
		c.adjust(1 - len(e.Elems))
		return nil

	case *ast.AccessExpression:
		return c.compileAccess(e)

	case *ast.SelfAccessExpression:
		return c.compileSelfAccess(e)

	case *ast.TableExpression:
		return c.compileTableInit(e.Keys, e.Values)

	case *ast.FunctionExpression:
		return c.compileFunction(e)

	case *ast.CallExpression:
		for _, arg := range e.Args {
			if err := c.compileExpr(arg); err != nil {
				return err
			}
		}
		if err := c.compileExpr(e.Func); err != nil {
			return err
		}
		c.emit(Instruction{Op: OP_CALL, A: len(e.Args)})
		c.adjust(-len(e.Args))
		return nil

	case *ast.BlockExpression:
		return c.compileBlockExpr(e)

	case *ast.IfExpression:
		return c.compileIfExpr(e)

	case *ast.RecExpression:
		c.emit(Instruction{Op: OP_REC})
		c.adjust(1)
		return nil

	default:
		return &CompileError{Kind: UnimplementedExpr, Line: c.line, Detail: "expression"}
	}
}

// compileAccess uses the immediate form when the field is a string literal.
func (c *Compiler) compileAccess(e *ast.AccessExpression) error {
	if err := c.compileExpr(e.Table); err != nil {
		return err
	}
	if field, ok := e.Field.(*ast.StringLiteral); ok {
		idx, err := c.constant(StrVal(field.Value))
		if err != nil {
			return err
		}
		c.emit(Instruction{Op: OP_GET_FIELD_IMM, A: idx})
		return nil
	}
	if err := c.compileExpr(e.Field); err != nil {
		return err
	}
	c.emit(Instruction{Op: OP_GET_FIELD})
	c.adjust(-1)
	return nil
}

// compileSelfAccess pushes the table, then the arguments, then reads the
// method off the table without popping it: the table stays in place as the
// implicit first argument.
func (c *Compiler) compileSelfAccess(e *ast.SelfAccessExpression) error {
	if err := c.compileExpr(e.Table); err != nil {
		return err
	}
	for _, arg := range e.Args {
		if err := c.compileExpr(arg); err != nil {
			return err
		}
	}
	idx, err := c.constant(StrVal(e.Method))
	if err != nil {
		return err
	}
	c.emit(Instruction{Op: OP_GET_METHOD_IMM, A: idx, B: len(e.Args)})
	c.adjust(1)
	c.emit(Instruction{Op: OP_CALL, A: len(e.Args) + 1})
	c.adjust(-(len(e.Args) + 1))
	return nil
}

// compileTableInit emits keyed entries as (key, value) pairs; positional
// values are pushed in reverse so the VM assigns integer keys 0..n-1 in
// source order.
func (c *Compiler) compileTableInit(keys, values []ast.Expression) error {
	if keys != nil {
		for i := range keys {
			if err := c.compileExpr(keys[i]); err != nil {
				return err
			}
			if err := c.compileExpr(values[i]); err != nil {
				return err
			}
		}
		c.emit(Instruction{Op: OP_INIT_TABLE, A: len(values), Flag: true})
		c.adjust(1 - 2*len(values))
		return nil
	}
	for i := len(values) - 1; i >= 0; i-- {
		if err := c.compileExpr(values[i]); err != nil {
			return err
		}
	}
	c.emit(Instruction{Op: OP_INIT_TABLE, A: len(values), Flag: false})
	c.adjust(1 - len(values))
	return nil
}

// compileFunction emits the capture table (when the analyzer attached one),
// then compiles the body into a fresh prototype.
func (c *Compiler) compileFunction(e *ast.FunctionExpression) error {
	hasEnv := e.Env != nil
	if hasEnv {
		// The capture table is built in the enclosing scope.
		if err := c.compileTableInit(e.Env.Keys, e.Env.Values); err != nil {
			return err
		}
	}

	argsLen := len(e.Args)
	if hasEnv {
		argsLen-- // the trailing "env" is hidden from callers
	}

	c.beginClosure()
	for _, arg := range e.Args {
		// The caller pushes arguments (and the env table) before the frame
		// starts, so they are already on the simulated stack.
		c.adjust(1)
		c.declareLocal(arg)
	}
	if err := c.compileBlockBody(e.Body); err != nil {
		return err
	}
	c.emit(Instruction{Op: OP_RETURN, Flag: true})
	instrs := c.endClosure()

	protoIndex := c.chunk.AddProto(&FuncProto{
		ArgsLen:      argsLen,
		HasEnv:       hasEnv,
		Instructions: instrs,
	})
	c.emit(Instruction{Op: OP_FUNC_DEF, A: protoIndex, Flag: hasEnv})
	if !hasEnv {
		c.adjust(1)
	}
	return nil
}

// compileBlockExpr keeps the trailing value while ExitBlock drops the block's
// locals at runtime.
func (c *Compiler) compileBlockExpr(e *ast.BlockExpression) error {
	c.beginScope()
	for _, stmt := range e.Statements {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	if err := c.compileExpr(e.Result); err != nil {
		return err
	}
	popped := c.endScopeCount()
	c.emit(Instruction{Op: OP_EXIT_BLOCK, A: popped, Flag: true})
	c.adjust(-popped)
	return nil
}

// compileIfExpr is the statement form without the discards: both branches
// leave their value on the stack.
func (c *Compiler) compileIfExpr(e *ast.IfExpression) error {
	if err := c.compileExpr(e.Condition); err != nil {
		return err
	}
	toElse := c.emitPlaceholder()
	c.adjust(-1) // JumpIf pops the condition
	if err := c.compileExpr(e.Then); err != nil {
		return err
	}
	toEnd := c.emitPlaceholder()
	if err := c.patch(toElse, JumpWhenFalse); err != nil {
		return err
	}
	// Only one branch runs; the else result replaces the then result in the
	// simulation.
	c.adjust(-1)
	if err := c.compileExpr(e.Else); err != nil {
		return err
	}
	return c.patch(toEnd, JumpAlways)
}
