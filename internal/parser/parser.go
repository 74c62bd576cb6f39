// Package parser builds an AST from tokens by recursive descent.
package parser

import (
	"github.com/onsah/flux/internal/ast"
	"github.com/onsah/flux/internal/lexer"
	"github.com/onsah/flux/internal/token"
)

type Parser struct {
	tokens []token.Token
	pos    int
}

// New wraps an already-scanned token stream. The stream must end with EOF.
func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

// ParseSource scans and parses a whole source unit.
func ParseSource(source, file string) (*ast.Program, error) {
	tokens, err := lexer.Scan(source)
	if err != nil {
		return nil, err
	}
	return New(tokens).Parse(file)
}

// Parse consumes the whole token stream as one block expression.
func (p *Parser) Parse(file string) (*ast.Program, error) {
	block, err := p.blockExpr(token.EOF)
	if err != nil {
		return nil, err
	}
	return &ast.Program{File: file, Block: block}, nil
}

func (p *Parser) current() token.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
}

// match consumes and returns the current token iff it has the given type.
func (p *Parser) match(typ token.Type) (token.Token, bool) {
	tok := p.current()
	if tok.Type != typ {
		return token.Token{}, false
	}
	p.advance()
	return tok, true
}

// expect is match with a NotMatched error on failure.
func (p *Parser) expect(typ token.Type) (token.Token, error) {
	tok, ok := p.match(typ)
	if !ok {
		return token.Token{}, &Error{Kind: NotMatched, Want: typ, Line: p.current().Line}
	}
	return tok, nil
}

func (p *Parser) unexpected() error {
	tok := p.current()
	return &Error{Kind: UnexpectedToken, Tok: tok, Line: tok.Line}
}

// blockEnding lists the tokens that may legally follow a block's last
// statement without a terminator of their own.
func blockEnding(typ token.Type) bool {
	return typ == token.END || typ == token.ELSE || typ == token.EOF
}

// blockExpr parses statements up to the terminating token and consumes it.
func (p *Parser) blockExpr(terminator token.Type) (*ast.BlockExpression, error) {
	block, err := p.blockExprImpl()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(terminator); err != nil {
		return nil, err
	}
	return block, nil
}

// blockExprImpl parses statements until the block ends. The result expression
// is a trailing expression without ';', or the last statement if it converts
// to an expression, or unit.
func (p *Parser) blockExprImpl() (*ast.BlockExpression, error) {
	first := p.current()
	var stmts []ast.Statement
	var result ast.Expression
	for {
		start := p.pos
		stmt, err := p.statement()
		if err == nil {
			stmts = append(stmts, stmt)
			continue
		}
		if te, ok := err.(*trailingExpr); ok {
			result = te.expr
			break
		}
		// Only swallow the error when the block genuinely ends here: the failed
		// statement consumed nothing and the next token closes the block.
		if p.pos != start || !blockEnding(p.current().Type) {
			return nil, err
		}
		if n := len(stmts); n > 0 {
			if expr, ok := stmtToExpr(stmts[n-1]); ok {
				stmts = stmts[:n-1]
				result = expr
				break
			}
		}
		result = &ast.UnitLiteral{Token: p.current()}
		break
	}
	return &ast.BlockExpression{Token: first, Statements: stmts, Result: result}, nil
}

// stmtToExpr converts statements that have an expression reading: expression
// statements, and if statements with both branches whose else-if chain ends
// in a plain else.
func stmtToExpr(stmt ast.Statement) (ast.Expression, bool) {
	switch s := stmt.(type) {
	case *ast.ExpressionStatement:
		return s.Expression, true
	case *ast.IfStatement:
		if block, ok := s.Else.(*ast.BlockExpression); ok && len(block.Statements) == 1 {
			// An else-if without a final else is wrapped as a statement block.
			if _, nested := block.Statements[0].(*ast.IfStatement); nested {
				break
			}
		}
		if s.Else != nil {
			return &ast.IfExpression{
				Token:     s.Token,
				Condition: s.Condition,
				Then:      s.Then,
				Else:      s.Else,
			}, true
		}
	}
	return nil, false
}
