package vm

import (
	"github.com/onsah/flux/internal/ast"
)

func (c *Compiler) compileStmt(stmt ast.Statement) error {
	c.line = stmt.GetToken().Line
	switch s := stmt.(type) {
	case *ast.ExpressionStatement:
		if err := c.compileExpr(s.Expression); err != nil {
			return err
		}
		c.emit(Instruction{Op: OP_POP})
		c.adjust(-1)
		return nil

	case *ast.LetStatement:
		// The value stays on the stack; its slot is the local.
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		c.declareLocal(s.Name)
		return nil

	case *ast.VarStatement:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		idx, err := c.constant(StrVal(s.Name))
		if err != nil {
			return err
		}
		c.emit(Instruction{Op: OP_SET_GLOBAL, A: idx})
		c.adjust(-1)
		return nil

	case *ast.SetStatement:
		return c.compileSet(s)

	case *ast.BlockStatement:
		c.beginScope()
		for _, inner := range s.Statements {
			if err := c.compileStmt(inner); err != nil {
				return err
			}
		}
		c.endScope()
		return nil

	case *ast.IfStatement:
		return c.compileIfStmt(s)

	case *ast.WhileStatement:
		return c.compileWhile(s)

	case *ast.ReturnStatement:
		return c.compileReturn(s)

	case *ast.ImportStatement:
		return c.compileImport(s)

	default:
		return &CompileError{Kind: UnimplementedExpr, Line: c.line, Detail: "statement"}
	}
}

func (c *Compiler) compileBlockBody(block *ast.BlockExpression) error {
	for _, stmt := range block.Statements {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	return c.compileExpr(block.Result)
}

// compileSet handles `target = value;`. An identifier target writes the
// local slot or the global; a field target writes the table. Anything else
// cannot be assigned.
func (c *Compiler) compileSet(s *ast.SetStatement) error {
	switch target := s.Target.(type) {
	case *ast.Identifier:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		if slot, frame, ok := c.resolveLocal(target.Name); ok {
			c.emit(Instruction{Op: OP_SET_LOCAL, A: slot, B: frame})
			c.adjust(-1)
			return nil
		}
		idx, err := c.constant(StrVal(target.Name))
		if err != nil {
			return err
		}
		c.emit(Instruction{Op: OP_SET_GLOBAL, A: idx})
		c.adjust(-1)
		return nil

	case *ast.AccessExpression:
		if err := c.compileExpr(s.Value); err != nil {
			return err
		}
		if field, ok := target.Field.(*ast.StringLiteral); ok {
			if err := c.compileExpr(target.Table); err != nil {
				return err
			}
			idx, err := c.constant(StrVal(field.Value))
			if err != nil {
				return err
			}
			c.emit(Instruction{Op: OP_SET_FIELD_IMM, A: idx})
			c.adjust(-2)
			return nil
		}
		if err := c.compileExpr(target.Field); err != nil {
			return err
		}
		if err := c.compileExpr(target.Table); err != nil {
			return err
		}
		c.emit(Instruction{Op: OP_SET_FIELD})
		c.adjust(-3)
		return nil

	default:
		return &CompileError{Kind: InvalidAssignmentTarget, Line: c.line}
	}
}

// compileIfStmt discards the branch values so both paths leave the stack
// unchanged.
func (c *Compiler) compileIfStmt(s *ast.IfStatement) error {
	if err := c.compileExpr(s.Condition); err != nil {
		return err
	}
	toElse := c.emitPlaceholder()
	c.adjust(-1) // JumpIf pops the condition
	if err := c.compileExpr(s.Then); err != nil {
		return err
	}
	c.emit(Instruction{Op: OP_POP})
	c.adjust(-1)

	if s.Else == nil {
		return c.patch(toElse, JumpWhenFalse)
	}

	toEnd := c.emitPlaceholder()
	// The false branch enters just past the unconditional jump.
	if err := c.patch(toElse, JumpWhenFalse); err != nil {
		return err
	}
	if err := c.compileExpr(s.Else); err != nil {
		return err
	}
	c.emit(Instruction{Op: OP_POP})
	c.adjust(-1)
	return c.patch(toEnd, JumpAlways)
}

func (c *Compiler) compileWhile(s *ast.WhileStatement) error {
	start := c.next()
	if err := c.compileExpr(s.Condition); err != nil {
		return err
	}
	exit := c.emitPlaceholder()
	c.adjust(-1) // JumpIf pops the condition

	c.beginScope()
	for _, inner := range s.Body.Statements {
		if err := c.compileStmt(inner); err != nil {
			return err
		}
	}
	c.endScope()

	// Reserve the back edge, then patch it, so the same range check guards
	// backward jumps.
	back := c.emitPlaceholder()
	if err := c.patchTo(back, start, JumpAlways); err != nil {
		return err
	}
	return c.patch(exit, JumpWhenFalse)
}

// compileReturn emits Return. A bare `return;` (unit value) uses the
// no-value form and lets the VM push unit itself.
func (c *Compiler) compileReturn(s *ast.ReturnStatement) error {
	if _, isUnit := s.Value.(*ast.UnitLiteral); isUnit {
		c.emit(Instruction{Op: OP_RETURN, Flag: false})
		return nil
	}
	if err := c.compileExpr(s.Value); err != nil {
		return err
	}
	c.emit(Instruction{Op: OP_RETURN, Flag: true})
	c.adjust(-1)
	return nil
}

// compileImport builds the imported module at compile time and stores its
// chunk; the Import instruction runs it when control reaches the statement.
func (c *Compiler) compileImport(s *ast.ImportStatement) error {
	if _, exists := c.chunk.Imports[s.Name]; exists {
		return &CompileError{Kind: ModuleError, Line: c.line, Module: s.Name,
			Inner: typeErrorf("module %q is already imported", s.Name)}
	}
	src, err := c.loader.Resolve(s.Path, c.baseDir)
	if err != nil {
		return &CompileError{Kind: CompileIOError, Line: c.line, Inner: err}
	}
	sub, err := CompileSource(src.Text, src.Path, src.Dir, c.loader)
	if err != nil {
		return &CompileError{Kind: ModuleError, Line: c.line, Module: s.Name, Inner: err}
	}
	idx, err := c.constant(StrVal(s.Name))
	if err != nil {
		return err
	}
	c.chunk.Imports[s.Name] = sub
	c.emit(Instruction{Op: OP_IMPORT, A: idx})
	return nil
}
