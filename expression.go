package collection

import (
	"fmt"
	"strings"

	celast "github.com/google/cel-go/common/ast"
)

// Scope classifies whether an expression can be answered using a holder's
// indexes.
type Scope int

const (
	// ScopeNone expressions reference only the matching event and literals.
	// They evaluate once per matching event, never per stored event.
	ScopeNone Scope = iota
	// ScopeIndexedAttribute is a table attribute backed by an index.
	ScopeIndexedAttribute
	// ScopeIndexedResultSet expressions can be answered entirely by index
	// lookups.
	ScopeIndexedResultSet
	// ScopeExhaustive expressions depend on stored events in a way that no
	// index can answer, requiring a scan of every stored event.
	ScopeExhaustive
)

func (s Scope) String() string {
	switch s {
	case ScopeNone:
		return "none"
	case ScopeIndexedAttribute:
		return "indexed_attribute"
	case ScopeIndexedResultSet:
		return "indexed_result_set"
	case ScopeExhaustive:
		return "exhaustive"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// CollectionExpression annotates a condition subtree with its Scope.  Trees
// are built once when a condition is compiled and are never modified.
//
// This is a sealed interface.  Every variant is defined within this file.
type CollectionExpression interface {
	Scope() Scope
	// Expr returns the CEL expression this node was built from.
	Expr() celast.Expr
	// Source returns the expression as CEL source text.
	Source() string

	collectionExpression()
}

type node struct {
	expr   celast.Expr
	source string
	scope  Scope
}

func (n node) Scope() Scope { return n.scope }

func (n node) Expr() celast.Expr { return n.expr }

func (n node) Source() string { return n.source }

func (node) collectionExpression() {}

// BasicExpression is any expression which isn't broken down further:
// literals, references to the matching event, unindexed attributes, and
// function calls.
type BasicExpression struct {
	node
}

// AttributeExpression refers to an indexed table attribute.
type AttributeExpression struct {
	node
	// Attribute is the attribute path, without the table reference.
	Attribute string
}

// CompareExpression is a comparison.  If the attribute was on the right hand
// side of the condition as written the operator is swapped, so that Operator
// always reads as `Attribute Operator Value`.
type CompareExpression struct {
	node
	Attribute CollectionExpression
	Value     CollectionExpression
	Operator  Operator
}

// InExpression is a membership test of an attribute within a list, eg.
// `table.status in ["a", "b"]`.
type InExpression struct {
	node
	Attribute CollectionExpression
	Value     CollectionExpression
}

type AndExpression struct {
	node
	Left  CollectionExpression
	Right CollectionExpression
}

type OrExpression struct {
	node
	Left  CollectionExpression
	Right CollectionExpression
}

// NotExpression matches stored events holding Attribute which Child doesn't
// match.  The analyzer only produces NotExpressions for membership tests;
// other negations are pushed into their comparisons.
type NotExpression struct {
	node
	Child     CollectionExpression
	Attribute string
}

// attributeName returns the attribute of an indexed attribute expression.
func attributeName(e CollectionExpression) (string, bool) {
	attr, ok := e.(*AttributeExpression)
	if !ok {
		return "", false
	}
	return attr.Attribute, true
}

// Explain renders an expression tree, eg:
//
//	and[indexed_result_set](compare[indexed_result_set](age > trade.min), none(trade.ok))
func Explain(e CollectionExpression) string {
	b := &strings.Builder{}
	explain(b, e)
	return b.String()
}

func explain(b *strings.Builder, e CollectionExpression) {
	switch v := e.(type) {
	case *CompareExpression:
		attr, _ := attributeName(v.Attribute)
		fmt.Fprintf(b, "compare[%s](%s %s %s)", v.Scope(), attr, v.Operator, v.Value.Source())
	case *InExpression:
		attr, _ := attributeName(v.Attribute)
		fmt.Fprintf(b, "in[%s](%s in %s)", v.Scope(), attr, v.Value.Source())
	case *AndExpression:
		fmt.Fprintf(b, "and[%s](", v.Scope())
		explain(b, v.Left)
		b.WriteString(", ")
		explain(b, v.Right)
		b.WriteString(")")
	case *OrExpression:
		fmt.Fprintf(b, "or[%s](", v.Scope())
		explain(b, v.Left)
		b.WriteString(", ")
		explain(b, v.Right)
		b.WriteString(")")
	case *NotExpression:
		fmt.Fprintf(b, "not[%s](", v.Scope())
		explain(b, v.Child)
		b.WriteString(")")
	case *AttributeExpression:
		fmt.Fprintf(b, "attribute(%s)", v.Attribute)
	default:
		fmt.Fprintf(b, "%s(%s)", e.Scope(), e.Source())
	}
}
