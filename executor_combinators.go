package collection

import (
	"context"
)

// AndCollectionExecutor matches events matched by both children.
//
// Children are handled by kind:  gates are evaluated once before any lookup,
// indexed children are intersected, and exhaustive children only filter the
// indexed candidates rather than scanning the whole holder.
type AndCollectionExecutor struct {
	left  CollectionExecutor
	right CollectionExecutor
}

func NewAndCollectionExecutor(left, right CollectionExecutor) *AndCollectionExecutor {
	return &AndCollectionExecutor{left: left, right: right}
}

func (a *AndCollectionExecutor) collectionExecutor() {}

func (a *AndCollectionExecutor) Find(ctx context.Context, m MatchingEvent, h IndexedEventHolder, cloner EventCloner) (*Event, bool, error) {
	set, err := a.FindEventSet(ctx, m, h)
	return findFirst(set, err, cloner)
}

func (a *AndCollectionExecutor) FindEventSet(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (*EventSet, error) {
	var (
		gates   []*NonCollectionExecutor
		scans   []*ExhaustiveCollectionExecutor
		lookups []CollectionExecutor
	)
	for _, child := range []CollectionExecutor{a.left, a.right} {
		switch c := child.(type) {
		case *NonCollectionExecutor:
			gates = append(gates, c)
		case *ExhaustiveCollectionExecutor:
			scans = append(scans, c)
		default:
			lookups = append(lookups, c)
		}
	}

	for _, g := range gates {
		ok, err := g.gate.EvaluateBool(ctx, m)
		if err != nil {
			return nil, err
		}
		if !ok {
			return NewEventSet(), nil
		}
	}

	var candidates *EventSet
	if len(lookups) == 0 {
		candidates = h.AllEventSet()
	}
	for _, l := range lookups {
		set, err := l.FindEventSet(ctx, m, h)
		if err != nil {
			return nil, err
		}
		if candidates == nil {
			candidates = set
		} else {
			candidates = candidates.Intersect(set)
		}
		if candidates.IsEmpty() {
			return NewEventSet(), nil
		}
	}

	for _, s := range scans {
		set, err := s.filter(ctx, m, candidates)
		if err != nil {
			return nil, err
		}
		candidates = set
	}
	return candidates, nil
}

func (a *AndCollectionExecutor) Contains(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (bool, error) {
	set, err := a.FindEventSet(ctx, m, h)
	if err != nil {
		return false, err
	}
	return !set.IsEmpty(), nil
}

func (a *AndCollectionExecutor) Delete(ctx context.Context, m MatchingEvent, h IndexedEventHolder) error {
	return deleteFound(ctx, a, m, h)
}

// OrCollectionExecutor matches events matched by either child.
type OrCollectionExecutor struct {
	left  CollectionExecutor
	right CollectionExecutor
}

func NewOrCollectionExecutor(left, right CollectionExecutor) *OrCollectionExecutor {
	return &OrCollectionExecutor{left: left, right: right}
}

func (o *OrCollectionExecutor) collectionExecutor() {}

func (o *OrCollectionExecutor) Find(ctx context.Context, m MatchingEvent, h IndexedEventHolder, cloner EventCloner) (*Event, bool, error) {
	set, err := o.FindEventSet(ctx, m, h)
	return findFirst(set, err, cloner)
}

func (o *OrCollectionExecutor) FindEventSet(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (*EventSet, error) {
	left, err := o.left.FindEventSet(ctx, m, h)
	if err != nil {
		return nil, err
	}
	right, err := o.right.FindEventSet(ctx, m, h)
	if err != nil {
		return nil, err
	}
	return left.Union(right), nil
}

func (o *OrCollectionExecutor) Contains(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (bool, error) {
	ok, err := o.left.Contains(ctx, m, h)
	if err != nil || ok {
		return ok, err
	}
	return o.right.Contains(ctx, m, h)
}

func (o *OrCollectionExecutor) Delete(ctx context.Context, m MatchingEvent, h IndexedEventHolder) error {
	return deleteFound(ctx, o, m, h)
}

// NotCollectionExecutor matches stored events which its child doesn't match.
//
// With an attribute, the complement is taken over the events holding that
// attribute.  Without one, it's taken over every stored event.
type NotCollectionExecutor struct {
	child     CollectionExecutor
	attribute string
}

func NewNotCollectionExecutor(child CollectionExecutor, attribute string) *NotCollectionExecutor {
	return &NotCollectionExecutor{child: child, attribute: attribute}
}

func (n *NotCollectionExecutor) collectionExecutor() {}

func (n *NotCollectionExecutor) Find(ctx context.Context, m MatchingEvent, h IndexedEventHolder, cloner EventCloner) (*Event, bool, error) {
	set, err := n.FindEventSet(ctx, m, h)
	return findFirst(set, err, cloner)
}

func (n *NotCollectionExecutor) FindEventSet(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (*EventSet, error) {
	// Take the snapshot first:  events added after the child's lookup must
	// not appear as unmatched.
	domain, err := n.domain(h)
	if err != nil {
		return nil, err
	}
	excluded, err := n.child.FindEventSet(ctx, m, h)
	if err != nil {
		return nil, err
	}
	return domain.Difference(excluded), nil
}

// domain returns the events that the complement is taken over.
func (n *NotCollectionExecutor) domain(h IndexedEventHolder) (*EventSet, error) {
	if n.attribute == "" {
		return h.AllEventSet(), nil
	}
	return attributeDomain(h, n.attribute)
}

func (n *NotCollectionExecutor) Contains(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (bool, error) {
	set, err := n.FindEventSet(ctx, m, h)
	if err != nil {
		return false, err
	}
	return !set.IsEmpty(), nil
}

func (n *NotCollectionExecutor) Delete(ctx context.Context, m MatchingEvent, h IndexedEventHolder) error {
	return deleteFound(ctx, n, m, h)
}

// deleteFound deletes every event that the executor finds as a single
// delegated call to the holder.
func deleteFound(ctx context.Context, x CollectionExecutor, m MatchingEvent, h IndexedEventHolder) error {
	set, err := x.FindEventSet(ctx, m, h)
	if err != nil {
		return err
	}
	h.DeleteEventSet(set)
	return nil
}
