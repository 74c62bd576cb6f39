// Package prettyprinter renders an AST back into parseable source. Printing
// an analyzed AST is not supported: the env rewrite introduces nodes with no
// source syntax.
package prettyprinter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/onsah/flux/internal/ast"
)

type CodePrinter struct {
	buf    bytes.Buffer
	indent int
}

func NewCodePrinter() *CodePrinter {
	return &CodePrinter{}
}

// Print renders a whole program.
func Print(program *ast.Program) string {
	p := NewCodePrinter()
	p.printBlockBody(program.Block)
	return p.buf.String()
}

func (p *CodePrinter) writeIndent() {
	p.buf.WriteString(strings.Repeat("    ", p.indent))
}

func (p *CodePrinter) line(format string, args ...any) {
	p.writeIndent()
	fmt.Fprintf(&p.buf, format, args...)
	p.buf.WriteByte('\n')
}

// printBlockBody prints statements followed by the trailing result, omitting
// a synthesized trailing unit.
func (p *CodePrinter) printBlockBody(block *ast.BlockExpression) {
	for _, stmt := range block.Statements {
		p.printStmt(stmt)
	}
	if _, isUnit := block.Result.(*ast.UnitLiteral); !isUnit {
		p.line("%s", p.expr(block.Result))
	}
}

func (p *CodePrinter) printStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.LetStatement:
		p.line("let %s = %s;", s.Name, p.expr(s.Value))
	case *ast.VarStatement:
		p.line("var %s = %s;", s.Name, p.expr(s.Value))
	case *ast.SetStatement:
		p.line("%s = %s;", p.expr(s.Target), p.expr(s.Value))
	case *ast.ExpressionStatement:
		p.line("%s;", p.expr(s.Expression))
	case *ast.BlockStatement:
		p.line("do")
		p.indent++
		for _, inner := range s.Statements {
			p.printStmt(inner)
		}
		p.indent--
		p.line("end")
	case *ast.IfStatement:
		p.line("if %s then", p.expr(s.Condition))
		p.printIndentedExpr(s.Then)
		p.printElseChain(s.Else)
		p.line("end")
	case *ast.WhileStatement:
		p.line("while %s then", p.expr(s.Condition))
		p.indent++
		for _, inner := range s.Body.Statements {
			p.printStmt(inner)
		}
		p.indent--
		p.line("end")
	case *ast.ReturnStatement:
		if _, isUnit := s.Value.(*ast.UnitLiteral); isUnit {
			p.line("return;")
		} else {
			p.line("return %s;", p.expr(s.Value))
		}
	case *ast.ImportStatement:
		path := strings.Join(s.Path, ".")
		if s.Name != s.Path[len(s.Path)-1] {
			p.line("import %s as %s;", path, s.Name)
		} else {
			p.line("import %s;", path)
		}
	}
}

// printElseChain prints an else branch. A branch that is itself an if prints
// as `else if`, sharing the chain's single end; the parser reads any else
// starting with `if` that way, so the printer must not wrap it in a block.
func (p *CodePrinter) printElseChain(elseExpr ast.Expression) {
	if elseExpr == nil {
		return
	}
	if chain, ok := elseExpr.(*ast.IfExpression); ok {
		p.line("else if %s then", p.expr(chain.Condition))
		p.printIndentedExpr(chain.Then)
		p.printElseChain(chain.Else)
		return
	}
	if wrapper, ok := elseExpr.(*ast.BlockExpression); ok && len(wrapper.Statements) == 1 {
		if chain, ok := wrapper.Statements[0].(*ast.IfStatement); ok {
			p.line("else if %s then", p.expr(chain.Condition))
			p.printIndentedExpr(chain.Then)
			p.printElseChain(chain.Else)
			return
		}
	}
	p.line("else")
	p.printIndentedExpr(elseExpr)
}

// printIndentedExpr prints a block-position expression (the arm of an if)
// one level deeper.
func (p *CodePrinter) printIndentedExpr(expr ast.Expression) {
	p.indent++
	if block, ok := expr.(*ast.BlockExpression); ok {
		p.printBlockBody(block)
	} else {
		p.line("%s", p.expr(expr))
	}
	p.indent--
}

func (p *CodePrinter) expr(expr ast.Expression) string {
	switch e := expr.(type) {
	case *ast.NilLiteral:
		return "nil"
	case *ast.UnitLiteral:
		return "do end"
	case *ast.BoolLiteral:
		return strconv.FormatBool(e.Value)
	case *ast.IntLiteral:
		return strconv.FormatInt(e.Value, 10)
	case *ast.NumberLiteral:
		s := strconv.FormatFloat(e.Value, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case *ast.StringLiteral:
		return "\"" + e.Value + "\""
	case *ast.Identifier:
		return e.Name
	case *ast.UnaryExpression:
		return e.Op.String() + p.expr(e.Operand)
	case *ast.BinaryExpression:
		return fmt.Sprintf("%s %s %s", p.expr(e.Left), e.Op, p.expr(e.Right))
	case *ast.GroupingExpression:
		return "(" + p.expr(e.Inner) + ")"
	case *ast.TupleExpression:
		return "(" + p.exprList(e.Elems) + ")"
	case *ast.AccessExpression:
		if field, ok := e.Field.(*ast.StringLiteral); ok && isIdent(field.Value) {
			return p.expr(e.Table) + "." + field.Value
		}
		return p.expr(e.Table) + "[" + p.expr(e.Field) + "]"
	case *ast.SelfAccessExpression:
		return fmt.Sprintf("%s:%s(%s)", p.expr(e.Table), e.Method, p.exprList(e.Args))
	case *ast.TableExpression:
		if e.Keys == nil {
			return "{" + p.exprList(e.Values) + "}"
		}
		parts := make([]string, len(e.Keys))
		for i := range e.Keys {
			parts[i] = p.expr(e.Keys[i]) + " = " + p.expr(e.Values[i])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *ast.FunctionExpression:
		return p.function(e)
	case *ast.CallExpression:
		return p.expr(e.Func) + "(" + p.exprList(e.Args) + ")"
	case *ast.BlockExpression:
		return p.block(e)
	case *ast.IfExpression:
		if chain, ok := e.Else.(*ast.IfExpression); ok {
			// else-if shares the chain's single end.
			return fmt.Sprintf("if %s then %s else %s",
				p.expr(e.Condition), p.inlineBlock(e.Then), p.expr(chain))
		}
		return fmt.Sprintf("if %s then %s else %s end",
			p.expr(e.Condition), p.inlineBlock(e.Then), p.inlineBlock(e.Else))
	default:
		return "<?>"
	}
}

func (p *CodePrinter) exprList(exprs []ast.Expression) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = p.expr(e)
	}
	return strings.Join(parts, ", ")
}

func (p *CodePrinter) function(fn *ast.FunctionExpression) string {
	var sb strings.Builder
	sb.WriteString("fn(")
	sb.WriteString(strings.Join(fn.Args, ", "))
	sb.WriteString(") ")
	sb.WriteString(p.blockBodyInline(fn.Body))
	sb.WriteString(" end")
	return sb.String()
}

func (p *CodePrinter) block(block *ast.BlockExpression) string {
	return "do " + p.blockBodyInline(block) + " end"
}

// inlineBlock renders the arm of an if-expression without the surrounding
// do/end, which the if's own then/else/end delimiters replace.
func (p *CodePrinter) inlineBlock(expr ast.Expression) string {
	if block, ok := expr.(*ast.BlockExpression); ok {
		return p.blockBodyInline(block)
	}
	return p.expr(expr)
}

func (p *CodePrinter) blockBodyInline(block *ast.BlockExpression) string {
	inner := &CodePrinter{}
	inner.printBlockBody(block)
	parts := strings.Split(strings.TrimRight(inner.buf.String(), "\n"), "\n")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return strings.Join(parts, " ")
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') {
			continue
		}
		if i > 0 && '0' <= r && r <= '9' {
			continue
		}
		return false
	}
	return true
}
