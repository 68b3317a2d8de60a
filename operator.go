package collection

import (
	"github.com/google/cel-go/common/operators"
)

// Operator is a binary comparison operator.  Values are the CEL function names
// for each operator, so that operators can be read directly from a parsed AST.
type Operator string

const (
	OpEquals        Operator = operators.Equals
	OpNotEquals     Operator = operators.NotEquals
	OpLess          Operator = operators.Less
	OpLessEquals    Operator = operators.LessEquals
	OpGreater       Operator = operators.Greater
	OpGreaterEquals Operator = operators.GreaterEquals
)

func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpLess, OpLessEquals, OpGreater, OpGreaterEquals:
		return true
	default:
		return false
	}
}

// Negate returns the operator for !(a op b).
func (o Operator) Negate() Operator {
	switch o {
	case OpEquals:
		return OpNotEquals
	case OpNotEquals:
		return OpEquals
	case OpGreater:
		return OpLessEquals
	case OpGreaterEquals:
		return OpLess
	case OpLess:
		return OpGreaterEquals
	case OpLessEquals:
		return OpGreater
	default:
		return o
	}
}

// Swap returns the operator to use when the operands are exchanged, ie.
// `100 > table.age` becomes `table.age < 100`.
func (o Operator) Swap() Operator {
	switch o {
	case OpGreater:
		return OpLess
	case OpGreaterEquals:
		return OpLessEquals
	case OpLess:
		return OpGreater
	case OpLessEquals:
		return OpGreaterEquals
	default:
		return o
	}
}

func (o Operator) String() string {
	switch o {
	case OpEquals:
		return "=="
	case OpNotEquals:
		return "!="
	case OpLess:
		return "<"
	case OpLessEquals:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEquals:
		return ">="
	default:
		return string(o)
	}
}
