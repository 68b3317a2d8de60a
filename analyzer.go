package collection

import (
	"fmt"

	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/parser"
)

// analyzer builds a CollectionExpression tree from a checked CEL AST,
// classifying each subtree by whether the holder's indexes can answer it.
//
// The analyzer is conservative:  when unsure whether an index gives the same
// result as a scan, the subtree is marked exhaustive.
type analyzer struct {
	// tableRef is the identifier which refers to stored events within the
	// condition, eg. "stock" in `stock.price > trade.price`.
	tableRef string
	holder   IndexedEventHolder
	info     *celast.SourceInfo
}

func newAnalyzer(tableRef string, holder IndexedEventHolder) *analyzer {
	return &analyzer{tableRef: tableRef, holder: holder}
}

// Analyze classifies a parsed or checked AST.
func (a *analyzer) Analyze(ast *celast.AST) (CollectionExpression, error) {
	a.info = ast.SourceInfo()
	root, err := a.visit(celast.NavigateAST(ast))
	if err != nil {
		return nil, err
	}
	// A bare attribute isn't a comparison that an index can answer, eg.
	// `stock.active`.
	return a.condition(root)
}

func (a *analyzer) visit(e celast.NavigableExpr) (CollectionExpression, error) {
	switch e.Kind() {
	case celast.LiteralKind:
		return a.basic(e, ScopeNone)
	case celast.IdentKind, celast.SelectKind:
		if attr, ok := a.attributePath(e); ok {
			if !a.holder.IsAttributeIndexed(attr) {
				return a.basic(e, ScopeExhaustive)
			}
			src, err := a.source(e)
			if err != nil {
				return nil, err
			}
			return &AttributeExpression{
				node:      node{expr: e, source: src, scope: ScopeIndexedAttribute},
				Attribute: attr,
			}, nil
		}
	case celast.CallKind:
		call := e.AsCall()
		args := e.Children()
		if call.IsMemberFunction() {
			break
		}

		switch fn := call.FunctionName(); fn {
		case operators.LogicalAnd, operators.LogicalOr:
			if len(args) == 2 {
				return a.logical(e, fn, args[0], args[1])
			}
		case operators.LogicalNot:
			if len(args) == 1 {
				return a.not(e, args[0])
			}
		case operators.Equals, operators.NotEquals, operators.Less, operators.LessEquals,
			operators.Greater, operators.GreaterEquals:
			if len(args) == 2 {
				return a.compare(e, Operator(fn), args[0], args[1])
			}
		case operators.In:
			if len(args) == 2 {
				return a.in(e, args[0], args[1])
			}
		}
	}

	// Everything else (function calls, lists, maps, comprehensions, and
	// presence tests) is opaque:  it either depends on stored events or it
	// doesn't.
	if a.referencesTable(e) {
		return a.basic(e, ScopeExhaustive)
	}
	return a.basic(e, ScopeNone)
}

func (a *analyzer) logical(e celast.NavigableExpr, fn string, lhs, rhs celast.NavigableExpr) (CollectionExpression, error) {
	left, err := a.visitCondition(lhs)
	if err != nil {
		return nil, err
	}
	right, err := a.visitCondition(rhs)
	if err != nil {
		return nil, err
	}

	if left.Scope() == ScopeNone && right.Scope() == ScopeNone {
		return a.basic(e, ScopeNone)
	}

	src, err := a.source(e)
	if err != nil {
		return nil, err
	}
	n := node{expr: e, source: src, scope: ScopeIndexedResultSet}

	switch fn {
	case operators.LogicalAnd:
		// Only one side needs to use an index:  the other side filters the
		// indexed candidates.
		if indexed(left) || indexed(right) {
			return &AndExpression{node: n, Left: left, Right: right}, nil
		}
	case operators.LogicalOr:
		// Unioning a scan with an index lookup still requires the scan, so
		// both sides must use indexes.
		if indexed(left) && indexed(right) {
			return &OrExpression{node: n, Left: left, Right: right}, nil
		}
	}
	return a.basic(e, ScopeExhaustive)
}

func (a *analyzer) not(e, arg celast.NavigableExpr) (CollectionExpression, error) {
	child, err := a.visitCondition(arg)
	if err != nil {
		return nil, err
	}
	switch child.Scope() {
	case ScopeNone:
		return a.basic(e, ScopeNone)
	case ScopeIndexedResultSet:
		return a.negate(child)
	default:
		return a.basic(e, ScopeExhaustive)
	}
}

// negate returns the negation of an expression.  Negations are pushed into
// comparisons and through logical operators, eg. `!(stock.price > 10)` becomes
// `stock.price <= 10`.  This keeps results identical to a scan:  a stored
// event missing an attribute matches neither a comparison nor its negation.
func (a *analyzer) negate(e CollectionExpression) (CollectionExpression, error) {
	negated := node{expr: e.Expr(), source: "!(" + e.Source() + ")", scope: e.Scope()}

	switch v := e.(type) {
	case *CompareExpression:
		return &CompareExpression{
			node:      negated,
			Attribute: v.Attribute,
			Value:     v.Value,
			Operator:  v.Operator.Negate(),
		}, nil
	case *InExpression:
		attr, _ := attributeName(v.Attribute)
		return &NotExpression{node: negated, Child: v, Attribute: attr}, nil
	case *NotExpression:
		return v.Child, nil
	case *AndExpression, *OrExpression:
		var l, r CollectionExpression
		if and, ok := v.(*AndExpression); ok {
			l, r = and.Left, and.Right
		} else {
			or := v.(*OrExpression)
			l, r = or.Left, or.Right
		}
		left, err := a.negate(l)
		if err != nil {
			return nil, err
		}
		right, err := a.negate(r)
		if err != nil {
			return nil, err
		}
		negated.scope = ScopeIndexedResultSet
		// !(a && b) is !a || !b, and !(a || b) is !a && !b.
		if _, ok := v.(*AndExpression); ok {
			if indexed(left) && indexed(right) {
				return &OrExpression{node: negated, Left: left, Right: right}, nil
			}
		} else if indexed(left) || indexed(right) {
			return &AndExpression{node: negated, Left: left, Right: right}, nil
		}
		negated.scope = ScopeExhaustive
		return &BasicExpression{node: negated}, nil
	default:
		return &BasicExpression{node: negated}, nil
	}
}

func (a *analyzer) compare(e celast.NavigableExpr, op Operator, lhs, rhs celast.NavigableExpr) (CollectionExpression, error) {
	left, err := a.visit(lhs)
	if err != nil {
		return nil, err
	}
	right, err := a.visit(rhs)
	if err != nil {
		return nil, err
	}

	if left.Scope() == ScopeNone && right.Scope() == ScopeNone {
		return a.basic(e, ScopeNone)
	}

	// Normalize so that the attribute is always on the left, ie.
	// `100 > stock.price` becomes `stock.price < 100`.
	attr, value := left, right
	if right.Scope() == ScopeIndexedAttribute && left.Scope() == ScopeNone {
		attr, value, op = right, left, op.Swap()
	}

	name, ok := attributeName(attr)
	if !ok || value.Scope() != ScopeNone || !a.holder.SupportsOperator(name, op) {
		return a.basic(e, ScopeExhaustive)
	}

	src, err := a.source(e)
	if err != nil {
		return nil, err
	}
	return &CompareExpression{
		node:      node{expr: e, source: src, scope: ScopeIndexedResultSet},
		Attribute: attr,
		Value:     value,
		Operator:  op,
	}, nil
}

func (a *analyzer) in(e, lhs, rhs celast.NavigableExpr) (CollectionExpression, error) {
	left, err := a.visit(lhs)
	if err != nil {
		return nil, err
	}
	right, err := a.visit(rhs)
	if err != nil {
		return nil, err
	}

	if left.Scope() == ScopeNone && right.Scope() == ScopeNone {
		return a.basic(e, ScopeNone)
	}

	name, ok := attributeName(left)
	if !ok || right.Scope() != ScopeNone || !a.holder.SupportsOperator(name, OpEquals) {
		return a.basic(e, ScopeExhaustive)
	}

	src, err := a.source(e)
	if err != nil {
		return nil, err
	}
	return &InExpression{
		node:      node{expr: e, source: src, scope: ScopeIndexedResultSet},
		Attribute: left,
		Value:     right,
	}, nil
}

// visitCondition visits an operand of a logical operator.
func (a *analyzer) visitCondition(e celast.NavigableExpr) (CollectionExpression, error) {
	res, err := a.visit(e)
	if err != nil {
		return nil, err
	}
	return a.condition(res)
}

// condition downgrades indexed attributes used as booleans to exhaustive
// expressions:  indexes only answer comparisons.
func (a *analyzer) condition(e CollectionExpression) (CollectionExpression, error) {
	if e.Scope() != ScopeIndexedAttribute {
		return e, nil
	}
	return &BasicExpression{node: node{expr: e.Expr(), source: e.Source(), scope: ScopeExhaustive}}, nil
}

func (a *analyzer) basic(e celast.Expr, scope Scope) (CollectionExpression, error) {
	src, err := a.source(e)
	if err != nil {
		return nil, err
	}
	return &BasicExpression{node: node{expr: e, source: src, scope: scope}}, nil
}

func (a *analyzer) source(e celast.Expr) (string, error) {
	src, err := parser.Unparse(e, a.info)
	if err != nil {
		return "", fmt.Errorf("error unparsing expression %d: %w", e.ID(), err)
	}
	return src, nil
}

// attributePath returns the attribute path for selects rooted at the table
// reference, eg. `stock.data.price` returns "data.price".
func (a *analyzer) attributePath(e celast.Expr) (string, bool) {
	path := ""
	for e.Kind() == celast.SelectKind {
		sel := e.AsSelect()
		if sel.IsTestOnly() {
			// has(stock.price) tests presence, not values.
			return "", false
		}
		if path == "" {
			path = sel.FieldName()
		} else {
			path = sel.FieldName() + "." + path
		}
		e = sel.Operand()
	}
	if e.Kind() != celast.IdentKind || e.AsIdent() != a.tableRef || path == "" {
		return "", false
	}
	return path, true
}

func (a *analyzer) referencesTable(e celast.NavigableExpr) bool {
	stack := []celast.NavigableExpr{e}
	for len(stack) > 0 {
		item := stack[0]
		stack = stack[1:]
		if item.Kind() == celast.IdentKind && item.AsIdent() == a.tableRef {
			return true
		}
		stack = append(stack, item.Children()...)
	}
	return false
}

func indexed(e CollectionExpression) bool {
	return e.Scope() == ScopeIndexedResultSet
}
