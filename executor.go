package collection

import (
	"context"
)

// CollectionExecutor matches a condition against the events stored within a
// holder.  Executor trees mirror CollectionExpression trees, and are stateless
// across calls:  the same tree serves every matching event.
//
// This is a sealed interface.  Variants:
//
//   - *CompareCollectionExecutor: a single index lookup.
//   - *InCollectionExecutor: a union of index lookups for each list value.
//   - *NonCollectionExecutor: a gate evaluated once against the matching event.
//   - *ExhaustiveCollectionExecutor: a condition evaluated for every stored event.
//   - *AndCollectionExecutor, *OrCollectionExecutor, *NotCollectionExecutor.
type CollectionExecutor interface {
	// Find returns the first event of the result chain, or false if no
	// events match.  If cloner is non-nil every returned event is a copy,
	// chained via Next.  If cloner is nil the first matching stored event is
	// returned, and callers must not modify it.
	Find(ctx context.Context, m MatchingEvent, h IndexedEventHolder, cloner EventCloner) (*Event, bool, error)
	// FindEventSet returns every matching stored event.  The set is never
	// nil when err is nil.
	FindEventSet(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (*EventSet, error)
	// Contains returns whether any stored event matches.
	Contains(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (bool, error)
	// Delete removes every matching stored event from the holder.
	Delete(ctx context.Context, m MatchingEvent, h IndexedEventHolder) error

	collectionExecutor()
}

// findFirst is the shared implementation of Find for executors that
// compute a complete result set.
func findFirst(set *EventSet, err error, cloner EventCloner) (*Event, bool, error) {
	if err != nil {
		return nil, false, err
	}
	first, ok := chunkFromSet(set, cloner).First()
	return first, ok, nil
}

// attributeDomain returns every stored event holding the attribute.  Every
// stored value is either equal or unequal to null, so the union of both
// lookups is every event holding the attribute.
func attributeDomain(h IndexedEventHolder, attribute string) (*EventSet, error) {
	null, err := h.FindEventSet(attribute, OpEquals, nil)
	if err != nil {
		return nil, err
	}
	rest, err := h.FindEventSet(attribute, OpNotEquals, nil)
	if err != nil {
		return nil, err
	}
	return null.Union(rest), nil
}
