package sqlparse

// Walk traverses the tree rooted at node depth-first, calling fn for each
// node. Children are skipped when fn returns false.
func Walk(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}

	switch n := node.(type) {
	case *SelectStmt:
		if n.With != nil {
			Walk(n.With, fn)
		}
		Walk(n.Body, fn)
		for _, e := range []*Expr{n.OrderBy, n.Limit, n.Offset, n.Fetch} {
			if e != nil {
				Walk(e, fn)
			}
		}
		if n.Into != nil {
			Walk(n.Into, fn)
		}
		for _, c := range n.Locking {
			Walk(c, fn)
		}
	case *OtherStmt:
		if n.With != nil {
			Walk(n.With, fn)
		}
		Walk(n.Body, fn)
	case *WithClause:
		for _, cte := range n.CTEs {
			Walk(cte, fn)
		}
	case *CTE:
		if n.Columns != nil {
			Walk(n.Columns, fn)
		}
		Walk(n.Body, fn)
	case *SelectCore:
		for _, c := range n.Clauses {
			Walk(c, fn)
		}
	case *SetOperation:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *ParenQuery:
		Walk(n.Query, fn)
	case *Clause:
		Walk(n.Body, fn)
	case *Expr:
		for _, item := range n.Items {
			Walk(item, fn)
		}
	case *Group:
		Walk(&n.Inner, fn)
	case *Subquery:
		Walk(n.Query, fn)
	}
}

// FunctionCall is a name applied to a parenthesized argument list.
type FunctionCall struct {
	Name string
	Pos  Position
}

// FunctionCalls returns every function call in the tree, including those
// inside subqueries and common table expressions. Schema-qualified calls
// report the unqualified name.
func FunctionCalls(node Node) []FunctionCall {
	var calls []FunctionCall
	Walk(node, func(n Node) bool {
		expr, ok := n.(*Expr)
		if !ok {
			return true
		}
		for i := 0; i+1 < len(expr.Items); i++ {
			ti, ok := expr.Items[i].(*TokenItem)
			if !ok || (ti.Token.Kind != Ident && ti.Token.Kind != QuotedIdent) {
				continue
			}
			switch expr.Items[i+1].(type) {
			case *Group, *Subquery:
				calls = append(calls, FunctionCall{Name: ti.Token.Name(), Pos: ti.Token.Pos})
			}
		}
		return true
	})
	return calls
}
