package collection

import (
	"context"
)

// ExhaustiveCollectionExecutor evaluates a condition against every stored
// event.  It's used when no index can answer the condition.
type ExhaustiveCollectionExecutor struct {
	condition RowEvaluator
}

func NewExhaustiveCollectionExecutor(condition RowEvaluator) *ExhaustiveCollectionExecutor {
	return &ExhaustiveCollectionExecutor{condition: condition}
}

func (x *ExhaustiveCollectionExecutor) collectionExecutor() {}

func (x *ExhaustiveCollectionExecutor) Find(ctx context.Context, m MatchingEvent, h IndexedEventHolder, cloner EventCloner) (*Event, bool, error) {
	set, err := x.FindEventSet(ctx, m, h)
	return findFirst(set, err, cloner)
}

func (x *ExhaustiveCollectionExecutor) FindEventSet(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (*EventSet, error) {
	return x.filter(ctx, m, h.AllEventSet())
}

func (x *ExhaustiveCollectionExecutor) Contains(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (bool, error) {
	var (
		found bool
		err   error
	)
	h.AllEventSet().Each(func(e *Event) bool {
		found, err = x.condition.EvaluateRow(ctx, m, e)
		return err == nil && !found
	})
	return found, err
}

func (x *ExhaustiveCollectionExecutor) Delete(ctx context.Context, m MatchingEvent, h IndexedEventHolder) error {
	set, err := x.FindEventSet(ctx, m, h)
	if err != nil {
		return err
	}
	h.DeleteEventSet(set)
	return nil
}

// filter returns the candidates which match the condition.
func (x *ExhaustiveCollectionExecutor) filter(ctx context.Context, m MatchingEvent, candidates *EventSet) (*EventSet, error) {
	var err error
	out := NewEventSet()
	candidates.Each(func(e *Event) bool {
		var ok bool
		ok, err = x.condition.EvaluateRow(ctx, m, e)
		if err != nil {
			return false
		}
		if ok {
			out.Add(e)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
