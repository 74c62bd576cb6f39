// Package ast defines the syntax tree produced by the parser and rewritten
// by the analyzer.
package ast

import (
	"github.com/onsah/flux/internal/token"
)

// Node is the base interface for all AST nodes. The primary token is kept for
// error reporting.
type Node interface {
	GetToken() token.Token
}

// Statement is a Node that represents a statement.
type Statement interface {
	Node
	statementNode()
}

// Expression is a Node that represents an expression.
type Expression interface {
	Node
	expressionNode()
}

// Program is the root node: a block expression covering the whole source unit.
type Program struct {
	File  string // source file path, empty for REPL input
	Block *BlockExpression
}

func (p *Program) GetToken() token.Token {
	if p.Block != nil {
		return p.Block.GetToken()
	}
	return token.Token{}
}

// LetStatement declares a local in the current scope.
// let name = value;
type LetStatement struct {
	Token token.Token // the 'let' token
	Name  string
	Value Expression
}

func (ls *LetStatement) statementNode()        {}
func (ls *LetStatement) GetToken() token.Token { return ls.Token }

// VarStatement declares a global. Only legal at the top level.
// var name = value;
type VarStatement struct {
	Token token.Token // the 'var' token
	Name  string
	Value Expression
}

func (vs *VarStatement) statementNode()        {}
func (vs *VarStatement) GetToken() token.Token { return vs.Token }

// SetStatement assigns to an identifier or a table field.
// target = value;
type SetStatement struct {
	Token  token.Token // the '=' token
	Target Expression
	Value  Expression
}

func (ss *SetStatement) statementNode()        {}
func (ss *SetStatement) GetToken() token.Token { return ss.Token }

// ExpressionStatement is an expression evaluated for its side effects.
type ExpressionStatement struct {
	Token      token.Token // the first token of the expression
	Expression Expression
}

func (es *ExpressionStatement) statementNode()        {}
func (es *ExpressionStatement) GetToken() token.Token { return es.Token }

// BlockStatement is a statement-position do ... end block.
type BlockStatement struct {
	Token      token.Token // the 'do' token
	Statements []Statement
}

func (bs *BlockStatement) statementNode()        {}
func (bs *BlockStatement) GetToken() token.Token { return bs.Token }

// IfStatement is an if in statement position. Else is optional and holds
// either a block expression or a nested if (else-if chains).
type IfStatement struct {
	Token     token.Token // the 'if' token
	Condition Expression
	Then      Expression
	Else      Expression
}

func (is *IfStatement) statementNode()        {}
func (is *IfStatement) GetToken() token.Token { return is.Token }

// WhileStatement loops while the condition is truthy.
// while cond then ... end
type WhileStatement struct {
	Token     token.Token // the 'while' token
	Condition Expression
	Body      *BlockStatement
}

func (ws *WhileStatement) statementNode()        {}
func (ws *WhileStatement) GetToken() token.Token { return ws.Token }

// ReturnStatement returns from the enclosing function (or finishes the
// top-level chunk). A missing value returns unit.
type ReturnStatement struct {
	Token token.Token // the 'return' token
	Value Expression
}

func (rs *ReturnStatement) statementNode()        {}
func (rs *ReturnStatement) GetToken() token.Token { return rs.Token }

// ImportStatement loads another source unit and binds its globals as a table.
// import a.b.c [as name]
type ImportStatement struct {
	Token token.Token // the 'import' token
	Path  []string
	Name  string // last path segment, or the alias
}

func (is *ImportStatement) statementNode()        {}
func (is *ImportStatement) GetToken() token.Token { return is.Token }
