package collection

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/iter"
	"github.com/tidwall/btree"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownAttribute = errors.New("attribute is not indexed")
	ErrTableFull        = errors.New("table sequence exhausted")
)

// IndexedEventHolder is an in-memory table of events with zero or more
// secondary indexes.  Every operation must reflect the most recent insert or
// delete, and index lookups must return exactly the events that a full scan
// using the same predicate would.
type IndexedEventHolder interface {
	// FindEventSet returns all events where `attribute op value` holds,
	// using the attribute's index.
	FindEventSet(attribute string, op Operator, value any) (*EventSet, error)
	// AllEventSet returns a snapshot of every stored event.
	AllEventSet() *EventSet
	// Delete removes all events where `attribute op value` holds.
	Delete(attribute string, op Operator, value any) error
	DeleteAll()
	DeleteEventSet(set *EventSet)
	IsAttributeIndexed(attribute string) bool
	// SupportsOperator returns whether the attribute's index can answer op.
	SupportsOperator(attribute string, op Operator) bool
	Len() int
}

type TableOption func(t *Table)

func WithTableLogger(l *slog.Logger) TableOption {
	return func(t *Table) {
		if l != nil {
			t.log = l
		}
	}
}

// Table is the in-memory IndexedEventHolder.  It's safe for concurrent use:
// reads share a lock and every mutation is serialized.
type Table struct {
	name string
	log  *slog.Logger

	lock *sync.RWMutex
	// seq is the last assigned sequence number.
	seq     uint32
	events  btree.Map[uint32, *Event]
	indexes map[string]attributeIndex
}

func NewTable(name string, opts ...TableOption) *Table {
	t := &Table{
		name:    name,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		lock:    &sync.RWMutex{},
		indexes: map[string]attributeIndex{},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Name returns the reference used for this table within conditions.
func (t *Table) Name() string {
	return t.name
}

// CreateIndex adds indexes to the table, indexing all stored events.  No
// indexes are added if any IndexSpec is invalid or any stored event holds an
// unindexable value.
func (t *Table) CreateIndex(specs ...IndexSpec) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	built := make([]attributeIndex, len(specs))
	seen := map[string]struct{}{}
	for i, spec := range specs {
		if _, ok := t.indexes[spec.Attribute]; ok {
			return fmt.Errorf("%w: %s", ErrIndexExists, spec.Attribute)
		}
		if _, ok := seen[spec.Attribute]; ok {
			return fmt.Errorf("%w: %s", ErrIndexExists, spec.Attribute)
		}
		seen[spec.Attribute] = struct{}{}

		idx, err := newAttributeIndex(spec)
		if err != nil {
			return err
		}
		built[i] = idx
	}

	// Each index is independent, so they're populated concurrently.
	eg := errgroup.Group{}
	for _, idx := range built {
		idx := idx
		eg.Go(func() error {
			var err error
			t.events.Scan(func(_ uint32, e *Event) bool {
				k, ok, kerr := idx.key(e)
				if kerr != nil {
					err = kerr
					return false
				}
				if ok {
					idx.insert(e, k)
				}
				return true
			})
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, idx := range built {
		t.indexes[idx.Attribute()] = idx
		t.log.Debug("created index",
			"table", t.name,
			"attribute", idx.Attribute(),
			"type", idx.Type().String(),
			"events", t.events.Len(),
		)
	}
	return nil
}

// Add stores events within the table.  The table takes ownership of each
// event;  callers must not modify events after adding them.  If any event
// holds an unindexable value for an indexed attribute no events are added.
func (t *Table) Add(events ...*Event) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	type keyed struct {
		idx attributeIndex
		key indexKey
	}

	// Sequences are never reused, so a table accepts at most 2^32-1 events
	// over its lifetime.
	if uint64(t.seq)+uint64(len(events)) > math.MaxUint32 {
		return fmt.Errorf("%w: cannot add %d events", ErrTableFull, len(events))
	}

	pending := make([][]keyed, len(events))
	seen := make(map[*Event]struct{}, len(events))
	for i, e := range events {
		if e == nil {
			return fmt.Errorf("cannot add nil event")
		}
		if _, ok := seen[e]; ok || e.Stored() {
			return fmt.Errorf("event %s is already stored", e.ID)
		}
		seen[e] = struct{}{}
		for _, idx := range t.indexes {
			k, ok, err := idx.key(e)
			if err != nil {
				return fmt.Errorf("event %s: %w", e.ID, err)
			}
			if ok {
				pending[i] = append(pending[i], keyed{idx: idx, key: k})
			}
		}
	}

	for i, e := range events {
		t.seq++
		e.seq = t.seq
		t.events.Set(e.seq, e)
		for _, k := range pending[i] {
			k.idx.insert(e, k.key)
		}
	}
	return nil
}

func (t *Table) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.events.Len()
}

func (t *Table) IsAttributeIndexed(attribute string) bool {
	t.lock.RLock()
	defer t.lock.RUnlock()
	_, ok := t.indexes[attribute]
	return ok
}

func (t *Table) SupportsOperator(attribute string, op Operator) bool {
	t.lock.RLock()
	defer t.lock.RUnlock()
	idx, ok := t.indexes[attribute]
	if !ok {
		return false
	}
	switch idx.Type() {
	case IndexHash:
		return op == OpEquals || op == OpNotEquals
	default:
		return op.Valid()
	}
}

// IndexedAttributes returns the sorted names of all indexed attributes.
func (t *Table) IndexedAttributes() []string {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.indexedAttributes()
}

func (t *Table) indexedAttributes() []string {
	attrs := make([]string, 0, len(t.indexes))
	for k := range t.indexes {
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)
	return attrs
}

// IndexSignature identifies the table's indexes, eg. "age:ordered,name:hash".
// Conditions compiled against one signature are valid for any table with the
// same signature.
func (t *Table) IndexSignature() string {
	t.lock.RLock()
	defer t.lock.RUnlock()
	attrs := t.indexedAttributes()
	parts := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		parts = append(parts, attr+":"+t.indexes[attr].Type().String())
	}
	return strings.Join(parts, ",")
}

func (t *Table) FindEventSet(attribute string, op Operator, value any) (*EventSet, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.find(attribute, op, value)
}

func (t *Table) find(attribute string, op Operator, value any) (*EventSet, error) {
	idx, ok := t.indexes[attribute]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, attribute)
	}
	return idx.find(op, value)
}

func (t *Table) AllEventSet() *EventSet {
	t.lock.RLock()
	defer t.lock.RUnlock()
	set := NewEventSet()
	t.events.Scan(func(_ uint32, e *Event) bool {
		set.Add(e)
		return true
	})
	return set
}

func (t *Table) Delete(attribute string, op Operator, value any) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	set, err := t.find(attribute, op, value)
	if err != nil {
		return err
	}
	t.remove(set)
	return nil
}

func (t *Table) DeleteAll() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.events = btree.Map[uint32, *Event]{}
	for attr, idx := range t.indexes {
		// Re-creating an index from its own attribute and type can't fail.
		fresh, _ := newAttributeIndex(IndexSpec{Attribute: attr, Type: idx.Type()})
		t.indexes[attr] = fresh
	}
}

func (t *Table) DeleteEventSet(set *EventSet) {
	if set.IsEmpty() {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.remove(set)
}

// remove deletes events from storage and every index.  The caller must hold
// the write lock.
func (t *Table) remove(set *EventSet) {
	var removed []*Event
	set.Each(func(e *Event) bool {
		// The set may be stale;  only remove events we still hold.
		if stored, ok := t.events.Get(e.seq); ok && stored == e {
			removed = append(removed, e)
		}
		return true
	})
	if len(removed) == 0 {
		return
	}

	indexes := make([]attributeIndex, 0, len(t.indexes))
	for _, idx := range t.indexes {
		indexes = append(indexes, idx)
	}
	iter.ForEach(indexes, func(idx *attributeIndex) {
		for _, e := range removed {
			if k, ok, err := (*idx).key(e); err == nil && ok {
				(*idx).remove(e, k)
			}
		}
	})

	for _, e := range removed {
		t.events.Delete(e.seq)
	}

	t.log.Debug("deleted events", "table", t.name, "count", len(removed))
}
