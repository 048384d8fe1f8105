package sqlparse

// Node is implemented by every syntax tree node.
type Node interface {
	node()
}

// Statement is a single top-level SQL statement.
type Statement interface {
	Node
	statementNode()
}

// QueryExpr is the body of a SELECT statement: a core, a set operation or
// a parenthesized query.
type QueryExpr interface {
	Node
	queryNode()
}

// Item is one element of an Expr.
type Item interface {
	Node
	itemNode()
}

// Expr is a balanced run of tokens. Parenthesized sections nest as Groups,
// or as Subqueries when they hold a query.
type Expr struct {
	Items []Item
}

// Empty reports whether the expression has no items.
func (e *Expr) Empty() bool {
	return e == nil || len(e.Items) == 0
}

// TokenItem is a single token inside an expression.
type TokenItem struct {
	Token Token
}

// Group is a parenthesized expression that is not a query.
type Group struct {
	Open  Token
	Inner Expr
}

// Subquery is a parenthesized query used inside an expression.
type Subquery struct {
	Open  Token
	Query *SelectStmt
}

// Clause is a keyword sequence followed by its body, e.g. GROUP BY a, b.
type Clause struct {
	Keyword []Token
	Body    *Expr
}

// Is reports whether the clause starts with the given keyword.
func (c *Clause) Is(word string) bool {
	return len(c.Keyword) > 0 && c.Keyword[0].IsWord(word)
}

// SelectStmt is a query, optionally with a WITH prefix and the trailing
// clauses that bound or lock its result.
type SelectStmt struct {
	With    *WithClause
	Body    QueryExpr
	OrderBy *Expr
	Limit   *Expr
	Offset  *Expr
	Fetch   *Expr
	Into    *Clause
	Locking []*Clause

	// LimitAt is the byte offset in the source just past the body and
	// ORDER BY, where a LIMIT clause belongs.
	LimitAt int
}

// HasRowBound reports whether the outermost query already caps its row
// count. A statement that is nothing but a parenthesized query is bounded
// by whatever bounds the query inside.
func (s *SelectStmt) HasRowBound() bool {
	if s.Limit != nil || s.Fetch != nil {
		return true
	}
	if paren, ok := s.Body.(*ParenQuery); ok && s.OrderBy == nil && s.Offset == nil {
		return paren.Query.HasRowBound()
	}
	return false
}

// SelectCore is a single SELECT ... FROM ... WHERE ... block, or a VALUES list.
type SelectCore struct {
	Clauses []*Clause
}

// Clause returns the first clause starting with word, or nil.
func (c *SelectCore) Clause(word string) *Clause {
	for _, cl := range c.Clauses {
		if cl.Is(word) {
			return cl
		}
	}
	return nil
}

// SetOperation combines two queries with UNION, INTERSECT or EXCEPT.
type SetOperation struct {
	Left     QueryExpr
	Operator []Token
	Right    QueryExpr
}

// ParenQuery is a parenthesized query used as a set operand or statement body.
type ParenQuery struct {
	Query *SelectStmt
}

// WithClause holds common table expressions.
type WithClause struct {
	Recursive Token
	CTEs      []*CTE
}

// CTE is a single named common table expression.
type CTE struct {
	Name      Token
	Columns   *Group
	Modifiers []Token
	Body      Statement
}

// OtherStmt is any statement that is not a query. Its tokens are kept
// verbatim; Verb is the leading keyword in upper case.
type OtherStmt struct {
	With *WithClause
	Verb string
	Pos  Position
	Body *Expr
}

func (*Expr) node()         {}
func (*TokenItem) node()    {}
func (*Group) node()        {}
func (*Subquery) node()     {}
func (*Clause) node()       {}
func (*SelectStmt) node()   {}
func (*SelectCore) node()   {}
func (*SetOperation) node() {}
func (*ParenQuery) node()   {}
func (*WithClause) node()   {}
func (*CTE) node()          {}
func (*OtherStmt) node()    {}

func (*SelectStmt) statementNode() {}
func (*OtherStmt) statementNode()  {}

func (*SelectCore) queryNode()   {}
func (*SetOperation) queryNode() {}
func (*ParenQuery) queryNode()   {}

func (*TokenItem) itemNode() {}
func (*Group) itemNode()     {}
func (*Subquery) itemNode()  {}
