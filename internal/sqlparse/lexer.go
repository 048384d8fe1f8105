package sqlparse

import "strings"

// Lexer tokenizes SQL text according to a dialect's lexical rules.
// Comments are skipped; MySQL executable comments are lexed as code.
type Lexer struct {
	src       string
	d         *Dialect
	pos       int
	line      int
	col       int
	execDepth int
}

// NewLexer creates a lexer over src.
func NewLexer(src string, d *Dialect) *Lexer {
	return &Lexer{src: src, d: d, line: 1, col: 1}
}

// Tokenize lexes the whole input. The last token is always EOF.
func Tokenize(src string, d *Dialect) ([]Token, error) {
	l := NewLexer(src, d)
	var toks []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks, nil
		}
	}
}

// Next returns the next token.
func (l *Lexer) Next() (Token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return Token{}, err
	}

	start, offset := l.position(), l.pos
	if l.pos >= len(l.src) {
		if l.execDepth > 0 {
			return Token{}, &LexError{Pos: start, Message: ErrUnterminatedComment}
		}
		return Token{Kind: EOF, Pos: start, Offset: offset}, nil
	}

	kind, err := l.scan()
	if err != nil {
		return Token{}, err
	}
	return Token{Kind: kind, Text: l.src[offset:l.pos], Pos: start, Offset: offset, execDepth: l.execDepth}, nil
}

// CodeEnd returns the offset just past tok where text can be appended and
// still take effect exactly when tok does. For a token inside MySQL
// executable comments that is after the closing markers of those comments.
// ok is false when more code follows tok before the comments close.
func CodeEnd(src string, d *Dialect, tok Token) (end int, ok bool) {
	l := &Lexer{src: src, d: d, pos: tok.End(), line: tok.Pos.Line, col: tok.Pos.Column, execDepth: tok.execDepth}
	end = l.pos
	for l.execDepth > 0 && l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isSpace(c):
			l.advance(1)
		case c == '*' && l.peek(1) == '/':
			l.advance(2)
			l.execDepth--
			end = l.pos
		case c == '/' && l.peek(1) == '*' && l.peek(2) != '!':
			if err := l.skipBlockComment(); err != nil {
				return tok.End(), false
			}
		default:
			return tok.End(), false
		}
	}
	return end, l.execDepth == 0
}

func (l *Lexer) scan() (Kind, error) {
	start := l.position()
	c := l.src[l.pos]

	switch {
	case c == '\'':
		return String, l.scanQuoted('\'', l.d.BackslashEscapes, start, ErrUnterminatedString)
	case c == '"' && l.d.DoubleQuotedStrings:
		return String, l.scanQuoted('"', l.d.BackslashEscapes, start, ErrUnterminatedString)
	case c == '"':
		return QuotedIdent, l.scanQuoted('"', false, start, ErrUnterminatedIdent)
	case c == '`' && l.d.BacktickIdentifiers:
		return QuotedIdent, l.scanQuoted('`', false, start, ErrUnterminatedIdent)
	case c == '$' && l.d.DollarQuotes:
		return l.scanDollar(start)
	case isDigit(c) || (c == '.' && isDigit(l.peek(1))):
		l.scanNumber()
		return Number, nil
	case isIdentStart(c):
		return l.scanWord(start)
	case c == '?' && l.d.QuestionParams:
		l.advance(1)
		return Param, nil
	case c == '@' && l.d.AtVariables:
		l.scanVariable()
		return Param, nil
	case c == '(':
		l.advance(1)
		return LParen, nil
	case c == ')':
		l.advance(1)
		return RParen, nil
	case c == ',':
		l.advance(1)
		return Comma, nil
	case c == ';':
		l.advance(1)
		return Semicolon, nil
	case c == '.':
		l.advance(1)
		return Dot, nil
	}

	l.scanOperator()
	return Operator, nil
}

func (l *Lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isSpace(c):
			l.advance(1)
		case c == '-' && l.peek(1) == '-' && (!l.d.DashCommentNeedsSpace || isSpaceOrEnd(l.peek(2))):
			l.skipLine()
		case c == '#' && l.d.HashComments:
			l.skipLine()
		case c == '/' && l.peek(1) == '*' && l.d.ExecutableComments && l.peek(2) == '!':
			l.advance(3)
			for i := 0; i < 6 && isDigit(l.peek(0)); i++ {
				l.advance(1)
			}
			l.execDepth++
		case c == '/' && l.peek(1) == '*':
			if err := l.skipBlockComment(); err != nil {
				return err
			}
		case c == '*' && l.peek(1) == '/' && l.execDepth > 0:
			l.advance(2)
			l.execDepth--
		default:
			return nil
		}
	}
	return nil
}

func (l *Lexer) skipLine() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.advance(1)
	}
}

func (l *Lexer) skipBlockComment() error {
	start := l.position()
	l.advance(2)
	depth := 1
	for l.pos < len(l.src) {
		switch {
		case l.d.NestedComments && l.src[l.pos] == '/' && l.peek(1) == '*':
			l.advance(2)
			depth++
		case l.src[l.pos] == '*' && l.peek(1) == '/':
			l.advance(2)
			depth--
			if depth == 0 {
				return nil
			}
		default:
			l.advance(1)
		}
	}
	return &LexError{Pos: start, Message: ErrUnterminatedComment}
}

// scanQuoted consumes a quoted section. A doubled quote is an escaped quote.
func (l *Lexer) scanQuoted(quote byte, backslash bool, start Position, msg string) error {
	l.advance(1)
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case backslash && c == '\\':
			l.advance(2)
		case c == quote && l.peek(1) == quote:
			l.advance(2)
		case c == quote:
			l.advance(1)
			return nil
		default:
			l.advance(1)
		}
	}
	return &LexError{Pos: start, Message: msg}
}

func (l *Lexer) scanDollar(start Position) (Kind, error) {
	if isDigit(l.peek(1)) {
		l.advance(1)
		for isDigit(l.peek(0)) {
			l.advance(1)
		}
		return Param, nil
	}

	end := l.pos + 1
	for end < len(l.src) && isIdentChar(l.src[end]) && l.src[end] != '$' {
		end++
	}
	if end >= len(l.src) || l.src[end] != '$' {
		l.advance(1)
		return Operator, nil
	}

	tag := l.src[l.pos : end+1]
	closing := strings.Index(l.src[end+1:], tag)
	if closing < 0 {
		return 0, &LexError{Pos: start, Message: ErrUnterminatedDollar}
	}
	l.advance(end + 1 - l.pos + closing + len(tag))
	return String, nil
}

func (l *Lexer) scanNumber() {
	if l.src[l.pos] == '0' && (l.peek(1) == 'x' || l.peek(1) == 'X' || l.peek(1) == 'b' || l.peek(1) == 'B') && isHexDigit(l.peek(2)) {
		l.advance(2)
		for isHexDigit(l.peek(0)) {
			l.advance(1)
		}
		return
	}
	for isDigit(l.peek(0)) || l.peek(0) == '_' {
		l.advance(1)
	}
	if l.peek(0) == '.' && l.peek(1) != '.' {
		l.advance(1)
		for isDigit(l.peek(0)) {
			l.advance(1)
		}
	}
	if (l.peek(0) == 'e' || l.peek(0) == 'E') &&
		(isDigit(l.peek(1)) || ((l.peek(1) == '+' || l.peek(1) == '-') && isDigit(l.peek(2)))) {
		l.advance(2)
		for isDigit(l.peek(0)) {
			l.advance(1)
		}
	}
}

// scanWord consumes a bare word. A one-letter prefix or charset
// introducer glued to a quote (E'..', X'..', _utf8mb4'..') makes a string.
func (l *Lexer) scanWord(start Position) (Kind, error) {
	wordStart := l.pos
	for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
		l.advance(1)
	}
	if l.peek(0) != '\'' {
		return Ident, nil
	}

	word := l.src[wordStart:l.pos]
	switch {
	case len(word) == 1 && strings.ContainsAny(word, "eE") && l.d.DollarQuotes:
		return String, l.scanQuoted('\'', true, start, ErrUnterminatedString)
	case len(word) == 1 && strings.ContainsAny(word, "eExXbBnN"):
		return String, l.scanQuoted('\'', l.d.BackslashEscapes, start, ErrUnterminatedString)
	case word[0] == '_' && l.d.BackslashEscapes:
		return String, l.scanQuoted('\'', true, start, ErrUnterminatedString)
	}
	return Ident, nil
}

func (l *Lexer) scanVariable() {
	l.advance(1)
	if l.peek(0) == '@' {
		l.advance(1)
	}
	switch c := l.peek(0); {
	case c == '\'' || c == '"' || c == '`':
		_ = l.scanQuoted(c, c != '`', l.position(), ErrUnterminatedIdent)
	default:
		for l.pos < len(l.src) && (isIdentChar(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.advance(1)
		}
	}
}

var mysqlOperators = []string{"<=>", "->>", "<=", ">=", "<>", "!=", ":=", "||", "&&", "<<", ">>", "->"}

const pgOperatorChars = "+-*/<>=~!@#%^&|`?"

func (l *Lexer) scanOperator() {
	if l.src[l.pos] == ':' {
		if l.peek(1) == ':' {
			l.advance(2)
			return
		}
		l.advance(1)
		return
	}

	if !l.d.DollarQuotes {
		for _, op := range mysqlOperators {
			if strings.HasPrefix(l.src[l.pos:], op) {
				l.advance(len(op))
				return
			}
		}
		l.advance(1)
		return
	}

	if !strings.ContainsRune(pgOperatorChars, rune(l.src[l.pos])) {
		l.advance(1)
		return
	}
	l.advance(1)
	for l.pos < len(l.src) && strings.ContainsRune(pgOperatorChars, rune(l.src[l.pos])) {
		if (l.src[l.pos] == '-' && l.peek(1) == '-') || (l.src[l.pos] == '/' && l.peek(1) == '*') {
			return
		}
		l.advance(1)
	}
}

func (l *Lexer) peek(off int) byte {
	if i := l.pos + off; i < len(l.src) {
		return l.src[i]
	}
	return 0
}

func (l *Lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *Lexer) position() Position {
	return Position{Line: l.line, Column: l.col}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isSpaceOrEnd(c byte) bool {
	return c == 0 || isSpace(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}
