package parser

import (
	"github.com/onsah/flux/internal/ast"
	"github.com/onsah/flux/internal/token"
)

func (p *Parser) statement() (ast.Statement, error) {
	if tok, ok := p.match(token.LET); ok {
		return p.letStatement(tok)
	}
	if tok, ok := p.match(token.VAR); ok {
		return p.varStatement(tok)
	}
	if tok, ok := p.match(token.IF); ok {
		return p.ifStatement(tok)
	}
	if tok, ok := p.match(token.DO); ok {
		return p.blockStatement(tok)
	}
	if tok, ok := p.match(token.WHILE); ok {
		return p.whileStatement(tok)
	}
	if tok, ok := p.match(token.RETURN); ok {
		return p.returnStatement(tok)
	}
	if tok, ok := p.match(token.FN); ok {
		return p.fnStatement(tok)
	}
	if tok, ok := p.match(token.IMPORT); ok {
		return p.importStatement(tok)
	}

	first := p.current()
	expr, err := p.expression()
	if err != nil {
		return nil, err
	}
	if tok, ok := p.match(token.EQUAL); ok {
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.SEMICOLON); err != nil {
			return nil, err
		}
		return &ast.SetStatement{Token: tok, Target: expr, Value: value}, nil
	}
	if _, ok := p.match(token.SEMICOLON); ok {
		return &ast.ExpressionStatement{Token: first, Expression: expr}, nil
	}
	return nil, &trailingExpr{expr: expr}
}

// let name = value;
func (p *Parser) letStatement(tok token.Token) (ast.Statement, error) {
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.EQUAL); err != nil {
		return nil, err
	}
	value, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMICOLON); err != nil {
		return nil, err
	}
	return &ast.LetStatement{Token: tok, Name: name.Text, Value: value}, nil
}

// var name = value;
func (p *Parser) varStatement(tok token.Token) (ast.Statement, error) {
	name, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.EQUAL); err != nil {
		return nil, err
	}
	value, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SEMICOLON); err != nil {
		return nil, err
	}
	return &ast.VarStatement{Token: tok, Name: name.Text, Value: value}, nil
}

// if cond then ... [else ...] end
func (p *Parser) ifStatement(tok token.Token) (ast.Statement, error) {
	condition, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.THEN); err != nil {
		return nil, err
	}
	thenBlock, err := p.blockExprImpl()
	if err != nil {
		return nil, err
	}
	if _, ok := p.match(token.ELSE); ok {
		var elseExpr ast.Expression
		if nested, ok := p.match(token.IF); ok {
			// else-if chain: the nested if becomes the else expression.
			stmt, err := p.ifStatement(nested)
			if err != nil {
				return nil, err
			}
			if expr, ok := stmtToExpr(stmt); ok {
				elseExpr = expr
			} else {
				elseExpr = &ast.BlockExpression{
					Token:      nested,
					Statements: []ast.Statement{stmt},
					Result:     &ast.UnitLiteral{Token: nested},
				}
			}
		} else {
			block, err := p.blockExpr(token.END)
			if err != nil {
				return nil, err
			}
			elseExpr = block
		}
		return &ast.IfStatement{Token: tok, Condition: condition, Then: thenBlock, Else: elseExpr}, nil
	}
	if _, err := p.expect(token.END); err != nil {
		return nil, err
	}
	return &ast.IfStatement{Token: tok, Condition: condition, Then: thenBlock}, nil
}

// do ... end in statement position
func (p *Parser) blockStatement(tok token.Token) (ast.Statement, error) {
	stmts, err := p.statementList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.END); err != nil {
		return nil, err
	}
	return &ast.BlockStatement{Token: tok, Statements: stmts}, nil
}

// statementList parses statements up to (not including) the block end. A
// trailing expression without ';' is kept as an expression statement: in
// statement position there is nothing for its value to flow into.
func (p *Parser) statementList() ([]ast.Statement, error) {
	var stmts []ast.Statement
	for p.current().Type != token.END && p.current().Type != token.ELSE {
		stmt, err := p.statement()
		if err != nil {
			te, ok := err.(*trailingExpr)
			if !ok {
				return nil, err
			}
			stmts = append(stmts, &ast.ExpressionStatement{
				Token:      te.expr.GetToken(),
				Expression: te.expr,
			})
			return stmts, nil
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// while cond then ... end
func (p *Parser) whileStatement(tok token.Token) (ast.Statement, error) {
	condition, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.THEN); err != nil {
		return nil, err
	}
	stmts, err := p.statementList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.END); err != nil {
		return nil, err
	}
	body := &ast.BlockStatement{Token: tok, Statements: stmts}
	return &ast.WhileStatement{Token: tok, Condition: condition, Body: body}, nil
}

// return [expr][;]
func (p *Parser) returnStatement(tok token.Token) (ast.Statement, error) {
	var value ast.Expression
	if typ := p.current().Type; blockEnding(typ) || typ == token.SEMICOLON {
		value = &ast.UnitLiteral{Token: tok}
	} else {
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		value = expr
	}
	p.match(token.SEMICOLON)
	return &ast.ReturnStatement{Token: tok, Value: value}, nil
}

// fn name(args) ... end desugars to let name = fn(args) ... end;
// an anonymous fn in statement position is an expression statement.
func (p *Parser) fnStatement(tok token.Token) (ast.Statement, error) {
	if name, ok := p.match(token.IDENT); ok {
		value, err := p.function(tok)
		if err != nil {
			return nil, err
		}
		return &ast.LetStatement{Token: tok, Name: name.Text, Value: value}, nil
	}
	value, err := p.function(tok)
	if err != nil {
		return nil, err
	}
	return &ast.ExpressionStatement{Token: tok, Expression: value}, nil
}

// import a.b.c [as name][;]
func (p *Parser) importStatement(tok token.Token) (ast.Statement, error) {
	seg, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	path := []string{seg.Text}
	for {
		if _, ok := p.match(token.DOT); !ok {
			break
		}
		seg, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		path = append(path, seg.Text)
	}
	name := path[len(path)-1]
	if _, ok := p.match(token.AS); ok {
		alias, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		name = alias.Text
	}
	p.match(token.SEMICOLON)
	return &ast.ImportStatement{Token: tok, Path: path, Name: name}, nil
}
