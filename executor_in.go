package collection

import (
	"context"
	"fmt"
)

// InCollectionExecutor answers `attribute in list` as the union of an equality
// lookup for every value within the list.
type InCollectionExecutor struct {
	attribute string
	values    ValueEvaluator
}

func NewInCollectionExecutor(attribute string, values ValueEvaluator) *InCollectionExecutor {
	return &InCollectionExecutor{attribute: attribute, values: values}
}

func (i *InCollectionExecutor) collectionExecutor() {}

func (i *InCollectionExecutor) Find(ctx context.Context, m MatchingEvent, h IndexedEventHolder, cloner EventCloner) (*Event, bool, error) {
	set, err := i.FindEventSet(ctx, m, h)
	return findFirst(set, err, cloner)
}

func (i *InCollectionExecutor) FindEventSet(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (*EventSet, error) {
	val, err := i.values.Evaluate(ctx, m)
	if err != nil {
		return nil, err
	}

	var list []any
	switch v := val.(type) {
	case []any:
		list = v
	case map[string]any:
		// `x in map` tests map keys.
		for k := range v {
			list = append(list, k)
		}
	default:
		return nil, fmt.Errorf("%q must be a list or map, got %T", i.values.Source(), val)
	}

	out := NewEventSet()
	seen := map[indexKey]struct{}{}
	for _, item := range list {
		key, err := newIndexKey(item)
		if err != nil {
			// Every stored key is indexable, so nothing can equal this item.
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		set, err := h.FindEventSet(i.attribute, OpEquals, item)
		if err != nil {
			return nil, err
		}
		out = out.Union(set)
	}
	return out, nil
}

func (i *InCollectionExecutor) Contains(ctx context.Context, m MatchingEvent, h IndexedEventHolder) (bool, error) {
	set, err := i.FindEventSet(ctx, m, h)
	if err != nil {
		return false, err
	}
	return set.Len() > 0, nil
}

func (i *InCollectionExecutor) Delete(ctx context.Context, m MatchingEvent, h IndexedEventHolder) error {
	set, err := i.FindEventSet(ctx, m, h)
	if err != nil {
		return err
	}
	h.DeleteEventSet(set)
	return nil
}
