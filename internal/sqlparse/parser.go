package sqlparse

import (
	"fmt"
	"strings"
)

// Parser builds statements from a token stream.
type Parser struct {
	src  string
	d    *Dialect
	toks []Token
	pos  int
}

// Parse lexes and parses sql into its statements. Empty statements between
// semicolons are skipped, so blank input yields no statements and no error.
func Parse(sql string, d *Dialect) ([]Statement, error) {
	toks, err := Tokenize(sql, d)
	if err != nil {
		return nil, err
	}
	p := &Parser{src: sql, d: d, toks: toks}
	return p.parseStatements()
}

func (p *Parser) parseStatements() ([]Statement, error) {
	var stmts []Statement
	for {
		for p.cur().Kind == Semicolon {
			p.next()
		}
		if p.cur().Kind == EOF {
			return stmts, nil
		}

		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)

		if k := p.cur().Kind; k != Semicolon && k != EOF {
			return nil, p.unexpected("end of statement")
		}
	}
}

func (p *Parser) parseStatement() (Statement, error) {
	switch {
	case p.cur().IsWord("WITH"):
		with, err := p.parseWith()
		if err != nil {
			return nil, err
		}
		if p.startsQuery() {
			stmt, err := p.parseSelectStmt()
			if err != nil {
				return nil, err
			}
			stmt.With = with
			return stmt, nil
		}
		if p.cur().Kind == Ident {
			return p.parseOther(with)
		}
		return nil, p.unexpected("SELECT")
	case p.startsQuery():
		return p.parseSelectStmt()
	case p.cur().Kind == Ident:
		return p.parseOther(nil)
	default:
		return nil, p.unexpected("statement")
	}
}

func (p *Parser) parseOther(with *WithClause) (*OtherStmt, error) {
	verb := p.cur()
	body, err := p.parseExpr(never)
	if err != nil {
		return nil, err
	}
	return &OtherStmt{With: with, Verb: verb.Upper(), Pos: verb.Pos, Body: body}, nil
}

func (p *Parser) parseWith() (*WithClause, error) {
	p.next() // WITH
	w := &WithClause{}
	if p.cur().IsWord("RECURSIVE") {
		w.Recursive = p.cur()
		p.next()
	}
	for {
		cte, err := p.parseCTE()
		if err != nil {
			return nil, err
		}
		w.CTEs = append(w.CTEs, cte)
		if p.cur().Kind != Comma {
			return w, nil
		}
		p.next()
	}
}

func (p *Parser) parseCTE() (*CTE, error) {
	name := p.cur()
	if name.Kind != Ident && name.Kind != QuotedIdent {
		return nil, p.unexpected("common table expression name")
	}
	p.next()
	cte := &CTE{Name: name}

	if p.cur().Kind == LParen {
		item, err := p.parseParen()
		if err != nil {
			return nil, err
		}
		group, ok := item.(*Group)
		if !ok {
			return nil, &ParseError{Pos: name.Pos, Message: "expected column list after common table expression name"}
		}
		cte.Columns = group
	}

	if !p.cur().IsWord("AS") {
		return nil, p.unexpected("AS")
	}
	cte.Modifiers = append(cte.Modifiers, p.cur())
	p.next()
	for p.cur().IsWord("NOT") || p.cur().IsWord("MATERIALIZED") {
		cte.Modifiers = append(cte.Modifiers, p.cur())
		p.next()
	}

	if p.cur().Kind != LParen {
		return nil, p.unexpected("(")
	}
	p.next()
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	cte.Body = body
	if err := p.expect(RParen, ")"); err != nil {
		return nil, err
	}
	return cte, nil
}

func (p *Parser) parseSelectStmt() (*SelectStmt, error) {
	stmt := &SelectStmt{}
	if p.cur().IsWord("WITH") {
		with, err := p.parseWith()
		if err != nil {
			return nil, err
		}
		stmt.With = with
	}

	body, err := p.parseQueryExpr()
	if err != nil {
		return nil, err
	}
	stmt.Body = body
	stmt.LimitAt = p.appendPoint()

	for {
		tok := p.cur()
		var target **Expr
		label := tok.Upper()

		switch {
		case tok.IsWord("ORDER") && p.peek(1).IsWord("BY"):
			p.next()
			target, label = &stmt.OrderBy, "ORDER BY"
		case tok.IsWord("LIMIT"):
			target = &stmt.Limit
		case tok.IsWord("OFFSET"):
			target = &stmt.Offset
		case p.isFetchStart():
			target = &stmt.Fetch
		case tok.IsWord("INTO"):
			if stmt.Into != nil {
				return nil, p.duplicate(tok, "INTO")
			}
			clause, err := p.parseClause([]Token{tok})
			if err != nil {
				return nil, err
			}
			stmt.Into = clause
			continue
		case p.isLockingStart():
			clause, err := p.parseClause([]Token{tok})
			if err != nil {
				return nil, err
			}
			stmt.Locking = append(stmt.Locking, clause)
			continue
		default:
			return stmt, nil
		}

		if *target != nil {
			return nil, p.duplicate(tok, label)
		}
		p.next()
		expr, err := p.parseRequired(label)
		if err != nil {
			return nil, err
		}
		*target = expr
		if target == &stmt.OrderBy {
			stmt.LimitAt = p.appendPoint()
		}
	}
}

func (p *Parser) parseQueryExpr() (QueryExpr, error) {
	left, err := p.parseQueryTerm()
	if err != nil {
		return nil, err
	}
	for p.isSetOperator() {
		op := []Token{p.cur()}
		p.next()
		if p.cur().IsWord("ALL") || p.cur().IsWord("DISTINCT") {
			op = append(op, p.cur())
			p.next()
		}
		right, err := p.parseQueryTerm()
		if err != nil {
			return nil, err
		}
		left = &SetOperation{Left: left, Operator: op, Right: right}
	}
	return left, nil
}

func (p *Parser) parseQueryTerm() (QueryExpr, error) {
	switch {
	case p.cur().IsWord("SELECT"), p.cur().IsWord("VALUES"):
		return p.parseSelectCore()
	case p.cur().Kind == LParen:
		p.next()
		inner, err := p.parseSelectStmt()
		if err != nil {
			return nil, err
		}
		if err := p.expect(RParen, ")"); err != nil {
			return nil, err
		}
		return &ParenQuery{Query: inner}, nil
	default:
		return nil, p.unexpected("SELECT")
	}
}

func (p *Parser) parseSelectCore() (*SelectCore, error) {
	core := &SelectCore{}
	first, err := p.parseClause([]Token{p.cur()})
	if err != nil {
		return nil, err
	}
	core.Clauses = append(core.Clauses, first)

	for {
		var keyword []Token
		tok := p.cur()
		switch {
		case tok.IsWord("FROM"), tok.IsWord("WHERE"), tok.IsWord("HAVING"), tok.IsWord("INTO"), tok.IsWord("WINDOW"):
			keyword = []Token{tok}
		case tok.IsWord("GROUP") && p.peek(1).IsWord("BY"):
			keyword = []Token{tok, p.peek(1)}
			p.next()
		default:
			return core, nil
		}
		clause, err := p.parseClause(keyword)
		if err != nil {
			return nil, err
		}
		core.Clauses = append(core.Clauses, clause)
	}
}

// parseClause consumes the current token, the last keyword token, and the
// clause body that follows it.
func (p *Parser) parseClause(keyword []Token) (*Clause, error) {
	p.next()
	words := make([]string, len(keyword))
	for i, k := range keyword {
		words[i] = k.Upper()
	}
	body, err := p.parseRequired(strings.Join(words, " "))
	if err != nil {
		return nil, err
	}
	return &Clause{Keyword: keyword, Body: body}, nil
}

func (p *Parser) parseRequired(label string) (*Expr, error) {
	expr, err := p.parseExpr(p.atClauseBoundary)
	if err != nil {
		return nil, err
	}
	if expr.Empty() {
		tok := p.cur()
		return nil, &ParseError{Pos: tok.Pos, Message: fmt.Sprintf(ErrMissingClauseContent, label)}
	}
	return expr, nil
}

// parseExpr collects items until stop reports true or a token that can
// never continue an expression is reached.
func (p *Parser) parseExpr(stop func() bool) (*Expr, error) {
	expr := &Expr{}
	for {
		switch p.cur().Kind {
		case EOF, Semicolon, RParen:
			return expr, nil
		case LParen:
			item, err := p.parseParen()
			if err != nil {
				return nil, err
			}
			expr.Items = append(expr.Items, item)
			continue
		}
		if stop() {
			return expr, nil
		}
		expr.Items = append(expr.Items, &TokenItem{Token: p.cur()})
		p.next()
	}
}

// parseParen parses a parenthesized section as a subquery when it holds a
// query and as a plain group otherwise.
func (p *Parser) parseParen() (Item, error) {
	open := p.cur()
	p.next()

	switch {
	case p.cur().IsWord("SELECT"), p.cur().IsWord("WITH"):
		query, err := p.parseSelectStmt()
		if err != nil {
			return nil, err
		}
		if err := p.expect(RParen, ")"); err != nil {
			return nil, err
		}
		return &Subquery{Open: open, Query: query}, nil
	case p.cur().Kind == LParen && p.parenStartsQuery(p.pos):
		mark := p.pos
		query, err := p.parseSelectStmt()
		if err == nil && p.cur().Kind == RParen {
			p.next()
			return &Subquery{Open: open, Query: query}, nil
		}
		p.pos = mark
	}

	inner, err := p.parseExpr(never)
	if err != nil {
		return nil, err
	}
	if err := p.expect(RParen, ")"); err != nil {
		return nil, err
	}
	return &Group{Open: open, Inner: *inner}, nil
}

// atClauseBoundary reports whether the current token starts a clause that
// ends the expression being read.
func (p *Parser) atClauseBoundary() bool {
	tok := p.cur()
	if tok.Kind != Ident {
		return false
	}
	switch tok.Upper() {
	case "FROM", "WHERE", "HAVING", "INTO", "WINDOW", "LIMIT", "OFFSET", "UNION", "INTERSECT", "EXCEPT":
		return true
	case "GROUP", "ORDER":
		return p.peek(1).IsWord("BY")
	case "FETCH":
		return p.isFetchStart()
	case "FOR", "LOCK":
		return p.isLockingStart()
	}
	return false
}

func (p *Parser) isSetOperator() bool {
	tok := p.cur()
	return tok.IsWord("UNION") || tok.IsWord("INTERSECT") || tok.IsWord("EXCEPT")
}

func (p *Parser) isFetchStart() bool {
	return p.cur().IsWord("FETCH") && (p.peek(1).IsWord("FIRST") || p.peek(1).IsWord("NEXT"))
}

func (p *Parser) isLockingStart() bool {
	tok, next := p.cur(), p.peek(1)
	switch {
	case tok.IsWord("FOR"):
		return next.IsWord("UPDATE") || next.IsWord("SHARE") || next.IsWord("NO") || next.IsWord("KEY")
	case tok.IsWord("LOCK"):
		return next.IsWord("IN")
	}
	return false
}

func (p *Parser) startsQuery() bool {
	tok := p.cur()
	return tok.IsWord("SELECT") || (tok.Kind == LParen && p.parenStartsQuery(p.pos))
}

// parenStartsQuery reports whether the parentheses opening at i enclose a
// query, looking through any further opening parentheses.
func (p *Parser) parenStartsQuery(i int) bool {
	for i < len(p.toks) && p.toks[i].Kind == LParen {
		i++
	}
	if i >= len(p.toks) {
		return false
	}
	tok := p.toks[i]
	return tok.IsWord("SELECT") || tok.IsWord("WITH") || tok.IsWord("VALUES")
}

// appendPoint returns the source offset where text can follow the last
// consumed token.
func (p *Parser) appendPoint() int {
	if p.pos == 0 {
		return 0
	}
	end, _ := CodeEnd(p.src, p.d, p.toks[p.pos-1])
	return end
}

func (p *Parser) cur() Token {
	return p.toks[p.pos]
}

func (p *Parser) peek(n int) Token {
	if i := p.pos + n; i < len(p.toks) {
		return p.toks[i]
	}
	return p.toks[len(p.toks)-1]
}

func (p *Parser) next() {
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
}

func (p *Parser) expect(kind Kind, label string) error {
	if p.cur().Kind != kind {
		return p.unexpected(label)
	}
	p.next()
	return nil
}

func (p *Parser) unexpected(expected string) error {
	tok := p.cur()
	return &ParseError{Pos: tok.Pos, Message: fmt.Sprintf(ErrUnexpectedToken, tok.describe(), expected)}
}

func (p *Parser) duplicate(tok Token, label string) error {
	return &ParseError{Pos: tok.Pos, Message: fmt.Sprintf(ErrDuplicateClause, label)}
}

func never() bool { return false }
