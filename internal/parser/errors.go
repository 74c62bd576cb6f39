package parser

import (
	"fmt"

	"github.com/onsah/flux/internal/ast"
	"github.com/onsah/flux/internal/token"
)

type ErrorKind uint8

const (
	// ExpectedToken means the input ended where a token was required.
	ExpectedToken ErrorKind = iota
	// UnexpectedToken is a token that cannot start what the parser wanted.
	UnexpectedToken
	// NotMatched means a specific token type was required but absent.
	NotMatched
	// InitError is mixing keyed and positional entries in a table literal.
	InitError
	// ExpectedMethod means ':' was not followed by a method call.
	ExpectedMethod
	// InnerVarDeclaration is a var declaration outside the top level.
	InnerVarDeclaration
	// Redeclaration is a let of a name already declared in the same scope.
	Redeclaration
	// Undeclared is a reference to a name that is not in scope.
	Undeclared
)

// Error covers both syntax errors and the declaration errors raised by the
// analyzer, which reports through the same type since it works on the same
// source positions.
type Error struct {
	Kind  ErrorKind
	Line  int
	Tok   token.Token // for UnexpectedToken
	Want  token.Type  // for NotMatched
	Name  string      // for InnerVarDeclaration, Redeclaration, Undeclared
}

func (e *Error) Error() string {
	switch e.Kind {
	case ExpectedToken:
		return fmt.Sprintf("[line %d] parse error: expected a token", e.Line)
	case UnexpectedToken:
		return fmt.Sprintf("[line %d] parse error: unexpected token %q", e.Line, e.Tok.Text)
	case NotMatched:
		return fmt.Sprintf("[line %d] parse error: expected %q", e.Line, e.Want.String())
	case InitError:
		return fmt.Sprintf("[line %d] parse error: cannot mix keyed and positional table entries", e.Line)
	case ExpectedMethod:
		return fmt.Sprintf("[line %d] parse error: expected a method call after ':'", e.Line)
	case InnerVarDeclaration:
		return fmt.Sprintf("[line %d] parse error: var %q declared outside the top level", e.Line, e.Name)
	case Redeclaration:
		return fmt.Sprintf("[line %d] parse error: %q is already declared in this scope", e.Line, e.Name)
	case Undeclared:
		return fmt.Sprintf("[line %d] parse error: %q is not declared", e.Line, e.Name)
	default:
		return fmt.Sprintf("[line %d] parse error", e.Line)
	}
}

// trailingExpr is internal control flow: statement() returns it when it
// parsed an expression that is not followed by '=' or ';'. blockExprImpl
// treats that expression as the block's result.
type trailingExpr struct {
	expr ast.Expression
}

func (t *trailingExpr) Error() string { return "trailing expression" }
