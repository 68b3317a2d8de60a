package collection

import (
	"context"
)

// CompareCollectionExecutor answers `attribute op value` with a single index
// lookup.  The value is evaluated once per call against the matching event.
// Value types and operator semantics are owned by the holder's index, except
// for values which can't be indexed.
type CompareCollectionExecutor struct {
	attribute string
	operator  Operator
	value     ValueEvaluator
}

func NewCompareCollectionExecutor(attribute string, op Operator, value ValueEvaluator) *CompareCollectionExecutor {
	return &CompareCollectionExecutor{
		attribute: attribute,
		operator:  op,
		value:     value,
	}
}

func (c *CompareCollectionExecutor) collectionExecutor() {}

func (c *CompareCollectionExecutor) Attribute() string {
	return c.attribute
}

func (c *CompareCollectionExecutor) Operator() Operator {
	return c.operator
}

func (c *CompareCollectionExecutor) Find(ctx context.Context, m MatchingEvent, h IndexedEventHolder, cloner EventCloner) (*Event, bool, error) {
	set, err := c.FindEventSet(ctx, m, h)
	return findFirst(set, err, cloner)
}

func (c *CompareCollectionExecutor) FindEventSet(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (*EventSet, error) {
	val, err := c.value.Evaluate(ctx, m)
	if err != nil {
		return nil, err
	}
	if !indexable(val) {
		return c.unindexable(h)
	}
	return h.FindEventSet(c.attribute, c.operator, val)
}

// unindexable answers comparisons against values that no stored key can
// equal or be ordered against, eg. lists or NaN.  Only != matches, and it
// matches every event holding the attribute.
func (c *CompareCollectionExecutor) unindexable(h IndexedEventHolder) (*EventSet, error) {
	if c.operator != OpNotEquals {
		return NewEventSet(), nil
	}
	return attributeDomain(h, c.attribute)
}

func (c *CompareCollectionExecutor) Contains(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (bool, error) {
	set, err := c.FindEventSet(ctx, m, h)
	if err != nil {
		return false, err
	}
	return set.Len() > 0, nil
}

func (c *CompareCollectionExecutor) Delete(ctx context.Context, m MatchingEvent, h IndexedEventHolder) error {
	val, err := c.value.Evaluate(ctx, m)
	if err != nil {
		return err
	}
	if !indexable(val) {
		set, err := c.unindexable(h)
		if err != nil {
			return err
		}
		h.DeleteEventSet(set)
		return nil
	}
	return h.Delete(c.attribute, c.operator, val)
}
