package parser

import (
	"strconv"

	"github.com/onsah/flux/internal/ast"
	"github.com/onsah/flux/internal/token"
)

var binaryOps = map[token.Type]ast.BinaryOp{
	token.PLUS:          ast.OpAdd,
	token.MINUS:         ast.OpSub,
	token.STAR:          ast.OpMul,
	token.SLASH:         ast.OpDiv,
	token.PERCENT:       ast.OpRem,
	token.GREATER:       ast.OpGreater,
	token.LESS:          ast.OpLess,
	token.GREATER_EQUAL: ast.OpGreaterEqual,
	token.LESS_EQUAL:    ast.OpLessEqual,
	token.EQUAL_EQUAL:   ast.OpEqual,
	token.BANG_EQUAL:    ast.OpNotEqual,
}

func (p *Parser) expression() (ast.Expression, error) {
	return p.comparison()
}

var comparisonTokens = []token.Type{
	token.LESS, token.GREATER, token.LESS_EQUAL,
	token.GREATER_EQUAL, token.EQUAL_EQUAL, token.BANG_EQUAL,
}

func (p *Parser) comparison() (ast.Expression, error) {
	left, err := p.addition()
	if err != nil {
		return nil, err
	}
	for {
		var op token.Token
		matched := false
		for _, typ := range comparisonTokens {
			if tok, ok := p.match(typ); ok {
				op, matched = tok, true
				break
			}
		}
		if !matched {
			return left, nil
		}
		right, err := p.addition()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpression{Token: op, Left: left, Op: binaryOps[op.Type], Right: right}
	}
}

func (p *Parser) addition() (ast.Expression, error) {
	left, err := p.multiplication()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.match(token.PLUS)
		if !ok {
			op, ok = p.match(token.MINUS)
		}
		if !ok {
			return left, nil
		}
		right, err := p.multiplication()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpression{Token: op, Left: left, Op: binaryOps[op.Type], Right: right}
	}
}

func (p *Parser) multiplication() (ast.Expression, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.match(token.STAR)
		if !ok {
			op, ok = p.match(token.SLASH)
		}
		if !ok {
			op, ok = p.match(token.PERCENT)
		}
		if !ok {
			return left, nil
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpression{Token: op, Left: left, Op: binaryOps[op.Type], Right: right}
	}
}

func (p *Parser) unary() (ast.Expression, error) {
	if op, ok := p.match(token.MINUS); ok {
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpression{Token: op, Op: ast.OpNegate, Operand: operand}, nil
	}
	if op, ok := p.match(token.BANG); ok {
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpression{Token: op, Op: ast.OpNot, Operand: operand}, nil
	}
	if _, ok := p.match(token.PLUS); ok {
		// Unary plus is accepted and discarded.
		return p.unary()
	}
	return p.access()
}

// access handles the postfix chain: field access, indexing, method calls and
// calls, all left-associative.
func (p *Parser) access() (ast.Expression, error) {
	expr, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		if tok, ok := p.match(token.DOT); ok {
			name, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			expr = &ast.AccessExpression{
				Token: tok,
				Table: expr,
				Field: &ast.StringLiteral{Token: name, Value: name.Text},
			}
			continue
		}
		if tok, ok := p.match(token.COLON); ok {
			name, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			if _, ok := p.match(token.LPAREN); !ok {
				return nil, &Error{Kind: ExpectedMethod, Line: tok.Line}
			}
			args, err := p.callArgs()
			if err != nil {
				return nil, err
			}
			expr = &ast.SelfAccessExpression{Token: tok, Table: expr, Method: name.Text, Args: args}
			continue
		}
		if tok, ok := p.match(token.LBRACKET); ok {
			field, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBRACKET); err != nil {
				return nil, err
			}
			expr = &ast.AccessExpression{Token: tok, Table: expr, Field: field}
			continue
		}
		if tok, ok := p.match(token.LPAREN); ok {
			args, err := p.callArgs()
			if err != nil {
				return nil, err
			}
			expr = &ast.CallExpression{Token: tok, Func: expr, Args: args}
			continue
		}
		return expr, nil
	}
}

// callArgs parses a comma separated argument list; the opening paren is
// already consumed.
func (p *Parser) callArgs() ([]ast.Expression, error) {
	var args []ast.Expression
	if _, ok := p.match(token.RPAREN); ok {
		return args, nil
	}
	arg, err := p.expression()
	if err != nil {
		return nil, err
	}
	args = append(args, arg)
	for {
		if _, ok := p.match(token.COMMA); !ok {
			break
		}
		arg, err := p.expression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) primary() (ast.Expression, error) {
	if tok, ok := p.match(token.STRING); ok {
		return &ast.StringLiteral{Token: tok, Value: tok.Text}, nil
	}
	if tok, ok := p.match(token.NUMBER); ok {
		return numberLiteral(tok)
	}
	if tok, ok := p.match(token.IDENT); ok {
		return &ast.Identifier{Token: tok, Name: tok.Text}, nil
	}
	if tok, ok := p.match(token.TRUE); ok {
		return &ast.BoolLiteral{Token: tok, Value: true}, nil
	}
	if tok, ok := p.match(token.FALSE); ok {
		return &ast.BoolLiteral{Token: tok, Value: false}, nil
	}
	if tok, ok := p.match(token.NIL); ok {
		return &ast.NilLiteral{Token: tok}, nil
	}
	if tok, ok := p.match(token.LPAREN); ok {
		return p.grouping(tok)
	}
	if tok, ok := p.match(token.LCURLY); ok {
		return p.tableInit(tok)
	}
	if tok, ok := p.match(token.FN); ok {
		return p.function(tok)
	}
	if _, ok := p.match(token.DO); ok {
		return p.blockExpr(token.END)
	}
	if tok, ok := p.match(token.IF); ok {
		return p.ifExpr(tok)
	}
	return nil, p.unexpected()
}

func numberLiteral(tok token.Token) (ast.Expression, error) {
	if i, err := strconv.ParseInt(tok.Text, 10, 64); err == nil {
		return &ast.IntLiteral{Token: tok, Value: i}, nil
	}
	f, err := strconv.ParseFloat(tok.Text, 64)
	if err != nil {
		return nil, &Error{Kind: UnexpectedToken, Tok: tok, Line: tok.Line}
	}
	return &ast.NumberLiteral{Token: tok, Value: f}, nil
}

// grouping parses (expr) or a tuple (a, b, ...).
func (p *Parser) grouping(tok token.Token) (ast.Expression, error) {
	expr, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, ok := p.match(token.COMMA); ok {
		return p.tuple(tok, expr)
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.GroupingExpression{Token: tok, Inner: expr}, nil
}

func (p *Parser) tuple(tok token.Token, first ast.Expression) (ast.Expression, error) {
	second, err := p.expression()
	if err != nil {
		return nil, err
	}
	elems := []ast.Expression{first, second}
	for {
		if _, ok := p.match(token.COMMA); !ok {
			break
		}
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		elems = append(elems, expr)
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.TupleExpression{Token: tok, Elems: elems}, nil
}

// tableInit parses {} / {v1, v2} / {k1 = v1, k2 = v2}. Mixing keyed and
// positional entries is an InitError.
func (p *Parser) tableInit(tok token.Token) (ast.Expression, error) {
	if _, ok := p.match(token.RCURLY); ok {
		return &ast.TableExpression{Token: tok}, nil
	}
	var keys []ast.Expression
	var values []ast.Expression
	keyed := false

	first, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, ok := p.match(token.EQUAL); ok {
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		keyed = true
		keys = append(keys, first)
		values = append(values, value)
	} else {
		values = append(values, first)
	}

	for {
		if _, ok := p.match(token.COMMA); !ok {
			break
		}
		if p.current().Type == token.RCURLY {
			break // trailing comma
		}
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		_, isAssign := p.match(token.EQUAL)
		if isAssign != keyed {
			return nil, &Error{Kind: InitError, Line: p.current().Line}
		}
		if keyed {
			value, err := p.expression()
			if err != nil {
				return nil, err
			}
			keys = append(keys, expr)
			values = append(values, value)
		} else {
			values = append(values, expr)
		}
	}
	if _, err := p.expect(token.RCURLY); err != nil {
		return nil, err
	}
	if !keyed {
		keys = nil
	}
	return &ast.TableExpression{Token: tok, Keys: keys, Values: values}, nil
}

// function parses the parameter list and body; the 'fn' token is already
// consumed.
func (p *Parser) function(tok token.Token) (ast.Expression, error) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var args []string
	if name, ok := p.match(token.IDENT); ok {
		args = append(args, name.Text)
		for {
			if _, ok := p.match(token.RPAREN); ok {
				break
			}
			if _, err := p.expect(token.COMMA); err != nil {
				return nil, err
			}
			name, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			args = append(args, name.Text)
		}
	} else if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.blockExpr(token.END)
	if err != nil {
		return nil, err
	}
	return &ast.FunctionExpression{Token: tok, Args: args, Body: body}, nil
}

// ifExpr parses if in expression position: the else branch is mandatory.
func (p *Parser) ifExpr(tok token.Token) (ast.Expression, error) {
	condition, err := p.expression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.THEN); err != nil {
		return nil, err
	}
	thenBlock, err := p.blockExpr(token.ELSE)
	if err != nil {
		return nil, err
	}
	var elseExpr ast.Expression
	if nested, ok := p.match(token.IF); ok {
		elseExpr, err = p.ifExpr(nested)
		if err != nil {
			return nil, err
		}
	} else {
		block, err := p.blockExpr(token.END)
		if err != nil {
			return nil, err
		}
		elseExpr = block
	}
	return &ast.IfExpression{Token: tok, Condition: condition, Then: thenBlock, Else: elseExpr}, nil
}
