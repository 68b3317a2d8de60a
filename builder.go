package collection

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Strategy is how a compiled condition is executed against a holder.
type Strategy int

const (
	// StrategyIndexed walks an executor tree of index lookups.
	StrategyIndexed Strategy = iota
	// StrategyGate evaluates the condition once;  it doesn't depend on
	// stored events.
	StrategyGate
	// StrategyScan evaluates the condition against every stored event.
	StrategyScan
)

func (s Strategy) String() string {
	switch s {
	case StrategyIndexed:
		return "indexed"
	case StrategyGate:
		return "gate"
	case StrategyScan:
		return "scan"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

func strategyFor(e CollectionExpression) Strategy {
	switch e.Scope() {
	case ScopeIndexedResultSet:
		return StrategyIndexed
	case ScopeNone:
		return StrategyGate
	default:
		return StrategyScan
	}
}

// builder creates an executor tree mirroring an expression tree.
type builder struct {
	env      *cel.Env
	tableRef string
}

func (b builder) build(e CollectionExpression) (CollectionExecutor, error) {
	switch v := e.(type) {
	case *CompareExpression:
		attr, ok := attributeName(v.Attribute)
		if !ok {
			return nil, fmt.Errorf("comparison %q has no indexed attribute", v.Source())
		}
		val, err := NewValueEvaluator(b.env, v.Value.Source())
		if err != nil {
			return nil, err
		}
		return NewCompareCollectionExecutor(attr, v.Operator, val), nil

	case *InExpression:
		attr, ok := attributeName(v.Attribute)
		if !ok {
			return nil, fmt.Errorf("membership test %q has no indexed attribute", v.Source())
		}
		val, err := NewValueEvaluator(b.env, v.Value.Source())
		if err != nil {
			return nil, err
		}
		return NewInCollectionExecutor(attr, val), nil

	case *AndExpression:
		left, right, err := b.pair(v.Left, v.Right)
		if err != nil {
			return nil, err
		}
		return NewAndCollectionExecutor(left, right), nil

	case *OrExpression:
		left, right, err := b.pair(v.Left, v.Right)
		if err != nil {
			return nil, err
		}
		return NewOrCollectionExecutor(left, right), nil

	case *NotExpression:
		child, err := b.build(v.Child)
		if err != nil {
			return nil, err
		}
		return NewNotCollectionExecutor(child, v.Attribute), nil
	}

	if e.Scope() == ScopeNone {
		gate, err := NewBoolEvaluator(b.env, e.Source())
		if err != nil {
			return nil, err
		}
		return NewNonCollectionExecutor(gate), nil
	}

	row, err := NewRowEvaluator(b.env, b.tableRef, e.Source())
	if err != nil {
		return nil, err
	}
	return NewExhaustiveCollectionExecutor(row), nil
}

func (b builder) pair(l, r CollectionExpression) (CollectionExecutor, CollectionExecutor, error) {
	left, err := b.build(l)
	if err != nil {
		return nil, nil, err
	}
	right, err := b.build(r)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}
