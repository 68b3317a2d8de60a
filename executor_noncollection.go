package collection

import (
	"context"
)

// NonCollectionExecutor gates the entire holder on a condition which doesn't
// depend on stored events, eg. `trade.volume > 100`.  When the gate passes
// every stored event matches;  otherwise none do.
type NonCollectionExecutor struct {
	gate BoolEvaluator
}

func NewNonCollectionExecutor(gate BoolEvaluator) *NonCollectionExecutor {
	return &NonCollectionExecutor{gate: gate}
}

func (n *NonCollectionExecutor) collectionExecutor() {}

func (n *NonCollectionExecutor) Find(ctx context.Context, m MatchingEvent, h IndexedEventHolder, cloner EventCloner) (*Event, bool, error) {
	ok, err := n.gate.EvaluateBool(ctx, m)
	if err != nil || !ok {
		return nil, false, err
	}
	return findFirst(h.AllEventSet(), nil, cloner)
}

func (n *NonCollectionExecutor) FindEventSet(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (*EventSet, error) {
	ok, err := n.gate.EvaluateBool(ctx, m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewEventSet(), nil
	}
	return h.AllEventSet(), nil
}

// Contains evaluates the gate without materializing the holder's events.  An
// empty holder never contains a match, even when the gate passes.
func (n *NonCollectionExecutor) Contains(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (bool, error) {
	ok, err := n.gate.EvaluateBool(ctx, m)
	if err != nil {
		return false, err
	}
	return ok && h.Len() > 0, nil
}

func (n *NonCollectionExecutor) Delete(ctx context.Context, m MatchingEvent, h IndexedEventHolder) error {
	ok, err := n.gate.EvaluateBool(ctx, m)
	if err != nil || !ok {
		return err
	}
	h.DeleteAll()
	return nil
}
