package sqlparse

import "fmt"

// ParseError represents a parsing error with position information.
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// LexError represents a lexical analysis error.
type LexError struct {
	Pos     Position
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lexer error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Common error messages
const (
	ErrUnexpectedToken      = "unexpected token %s, expected %s"
	ErrUnterminatedString   = "unterminated string literal"
	ErrUnterminatedIdent    = "unterminated quoted identifier"
	ErrUnterminatedComment  = "unterminated comment"
	ErrUnterminatedDollar   = "unterminated dollar-quoted string"
	ErrDuplicateClause      = "duplicate %s clause"
	ErrMissingClauseContent = "expected expression after %s"
)
