package collection

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/ohler55/ojg/jp"
	"github.com/tidwall/btree"
)

var (
	ErrUnsupportedOperator = errors.New("operator not supported by index")
	ErrUnindexableValue    = errors.New("value cannot be indexed")
	ErrIndexExists         = errors.New("index already exists")
)

type IndexType int

const (
	// IndexOrdered stores keys within a b-tree, supporting equality and
	// range operators.
	IndexOrdered IndexType = iota
	// IndexHash stores hashed keys, supporting == and != only.
	IndexHash
)

func (i IndexType) String() string {
	switch i {
	case IndexOrdered:
		return "ordered"
	case IndexHash:
		return "hash"
	default:
		return "unknown"
	}
}

// IndexSpec declares a secondary index on an attribute path, eg. "user.age".
type IndexSpec struct {
	Attribute string
	Type      IndexType
}

type attributeIndex interface {
	Type() IndexType
	Attribute() string

	// key extracts the index key from an event.  ok is false when the event
	// doesn't hold the attribute;  such events are never indexed.
	key(e *Event) (k indexKey, ok bool, err error)
	insert(e *Event, k indexKey)
	remove(e *Event, k indexKey)
	find(op Operator, value any) (*EventSet, error)
}

func newAttributeIndex(spec IndexSpec) (attributeIndex, error) {
	if spec.Attribute == "" {
		return nil, fmt.Errorf("index attribute must not be empty")
	}
	x, err := jp.ParseString(spec.Attribute)
	if err != nil {
		return nil, fmt.Errorf("invalid index attribute %q: %w", spec.Attribute, err)
	}
	path := attributePath{attribute: spec.Attribute, path: x}

	switch spec.Type {
	case IndexOrdered:
		return &orderedIndex{
			attributePath: path,
			tree:          btree.NewBTreeG(orderedLess),
		}, nil
	case IndexHash:
		return &hashIndex{
			attributePath: path,
			buckets:       map[uint64]map[uint32]hashEntry{},
		}, nil
	default:
		return nil, fmt.Errorf("unknown index type: %d", spec.Type)
	}
}

type attributePath struct {
	attribute string
	path      jp.Expr
}

func (a attributePath) Attribute() string {
	return a.attribute
}

func (a attributePath) key(e *Event) (indexKey, bool, error) {
	val, ok := e.get(a.attribute, a.path)
	if !ok {
		return indexKey{}, false, nil
	}
	k, err := newStoredKey(val)
	if err != nil {
		return indexKey{}, false, fmt.Errorf("attribute %q: %w", a.attribute, err)
	}
	return k, true, nil
}

type keyKind uint8

// Kinds are ordered so that keys of the same kind are contiguous within an
// ordered index.
const (
	kindNull keyKind = iota
	kindBool
	kindNumber
	kindString
)

// indexKey is a normalized attribute value.  All numbers are stored as
// float64, so that ints and floats compare as CEL compares them.
type indexKey struct {
	kind keyKind
	num  float64
	str  string
}

func newIndexKey(v any) (indexKey, error) {
	switch val := v.(type) {
	case nil:
		return indexKey{kind: kindNull}, nil
	case bool:
		if val {
			return indexKey{kind: kindBool, num: 1}, nil
		}
		return indexKey{kind: kindBool}, nil
	case string:
		return indexKey{kind: kindString, str: val}, nil
	case int:
		return numberKey(float64(val)), nil
	case int8:
		return numberKey(float64(val)), nil
	case int16:
		return numberKey(float64(val)), nil
	case int32:
		return numberKey(float64(val)), nil
	case int64:
		return numberKey(float64(val)), nil
	case uint:
		return numberKey(float64(val)), nil
	case uint8:
		return numberKey(float64(val)), nil
	case uint16:
		return numberKey(float64(val)), nil
	case uint32:
		return numberKey(float64(val)), nil
	case uint64:
		return numberKey(float64(val)), nil
	case float32:
		return numberKey(float64(val)), nil
	case float64:
		if math.IsNaN(val) {
			return indexKey{}, fmt.Errorf("%w: NaN", ErrUnindexableValue)
		}
		return numberKey(val), nil
	default:
		return indexKey{}, fmt.Errorf("%w: %T", ErrUnindexableValue, v)
	}
}

// maxExactInt bounds the integers that can be stored.  Stored integers must
// convert to float64 exactly, so that integers compare as CEL compares them.
const maxExactInt = 1 << 53

// newStoredKey returns the key for a stored value.  Integers of magnitude 2^53
// or more are unindexable:  they'd collide with neighbouring integers.  Such values may
// still be looked up, as they never equal a stored integer.
func newStoredKey(v any) (indexKey, error) {
	switch val := v.(type) {
	case int:
		return exactKey(int64(val), v)
	case int64:
		return exactKey(val, v)
	case uint:
		if uint64(val) >= maxExactInt {
			return indexKey{}, fmt.Errorf("%w: %d exceeds 2^53", ErrUnindexableValue, val)
		}
	case uint64:
		if val >= maxExactInt {
			return indexKey{}, fmt.Errorf("%w: %d exceeds 2^53", ErrUnindexableValue, val)
		}
	}
	return newIndexKey(v)
}

func exactKey(i int64, v any) (indexKey, error) {
	if i >= maxExactInt || i <= -maxExactInt {
		return indexKey{}, fmt.Errorf("%w: %d exceeds 2^53", ErrUnindexableValue, i)
	}
	return newIndexKey(v)
}

// indexable returns whether a value can be looked up within an index.
func indexable(v any) bool {
	_, err := newIndexKey(v)
	return err == nil
}

func numberKey(f float64) indexKey {
	return indexKey{kind: kindNumber, num: f}
}

func compareKeys(a, b indexKey) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind, b.kind)
	}
	switch a.kind {
	case kindString:
		return strings.Compare(a.str, b.str)
	case kindBool, kindNumber:
		return cmp.Compare(a.num, b.num)
	default:
		return 0
	}
}

// ordered returns whether range operators apply to the key.  Nulls have no
// ordering.
func (k indexKey) ordered() bool {
	return k.kind != kindNull
}

// canonical is the string form of a key used for hashing.
func (k indexKey) canonical() string {
	switch k.kind {
	case kindString:
		return "s" + k.str
	case kindBool, kindNumber:
		return strconv.Itoa(int(k.kind)) + strconv.FormatFloat(k.num, 'g', -1, 64)
	default:
		return "n"
	}
}

type orderedEntry struct {
	key   indexKey
	seq   uint32
	event *Event
}

func orderedLess(a, b orderedEntry) bool {
	if c := compareKeys(a.key, b.key); c != 0 {
		return c < 0
	}
	return a.seq < b.seq
}

// orderedIndex stores events within a b-tree ordered by key then sequence.
type orderedIndex struct {
	attributePath
	tree *btree.BTreeG[orderedEntry]
}

func (o *orderedIndex) Type() IndexType {
	return IndexOrdered
}

func (o *orderedIndex) insert(e *Event, k indexKey) {
	o.tree.Set(orderedEntry{key: k, seq: e.seq, event: e})
}

func (o *orderedIndex) remove(e *Event, k indexKey) {
	o.tree.Delete(orderedEntry{key: k, seq: e.seq})
}

func (o *orderedIndex) find(op Operator, value any) (*EventSet, error) {
	k, err := newIndexKey(value)
	if err != nil {
		return nil, err
	}

	set := NewEventSet()
	add := func(e orderedEntry) bool {
		set.Add(e.event)
		return true
	}

	// Sequences start at 1, so a zero sequence pivots before every entry
	// with the same key and the max sequence pivots after them.
	lo := orderedEntry{key: k}
	hi := orderedEntry{key: k, seq: math.MaxUint32}

	switch op {
	case OpEquals:
		o.tree.Ascend(lo, func(e orderedEntry) bool {
			if compareKeys(e.key, k) != 0 {
				return false
			}
			return add(e)
		})
	case OpNotEquals:
		o.tree.Scan(func(e orderedEntry) bool {
			if compareKeys(e.key, k) == 0 {
				return true
			}
			return add(e)
		})
	case OpGreater, OpGreaterEquals:
		if !k.ordered() {
			return set, nil
		}
		pivot := hi
		if op == OpGreaterEquals {
			pivot = lo
		}
		o.tree.Ascend(pivot, func(e orderedEntry) bool {
			if e.key.kind != k.kind {
				return false
			}
			return add(e)
		})
	case OpLess, OpLessEquals:
		if !k.ordered() {
			return set, nil
		}
		pivot := lo
		if op == OpLessEquals {
			pivot = hi
		}
		o.tree.Descend(pivot, func(e orderedEntry) bool {
			if e.key.kind != k.kind {
				return false
			}
			return add(e)
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
	return set, nil
}

type hashEntry struct {
	key   indexKey
	event *Event
}

// hashIndex stores events within buckets keyed by the xxhash of each key.
// Buckets may collide, so every lookup compares keys before matching.
type hashIndex struct {
	attributePath
	buckets map[uint64]map[uint32]hashEntry
}

func (h *hashIndex) Type() IndexType {
	return IndexHash
}

func (h *hashIndex) hash(k indexKey) uint64 {
	return xxhash.Sum64String(k.canonical())
}

func (h *hashIndex) insert(e *Event, k indexKey) {
	sum := h.hash(k)
	bucket, ok := h.buckets[sum]
	if !ok {
		bucket = map[uint32]hashEntry{}
		h.buckets[sum] = bucket
	}
	bucket[e.seq] = hashEntry{key: k, event: e}
}

func (h *hashIndex) remove(e *Event, k indexKey) {
	sum := h.hash(k)
	bucket, ok := h.buckets[sum]
	if !ok {
		return
	}
	delete(bucket, e.seq)
	if len(bucket) == 0 {
		delete(h.buckets, sum)
	}
}

func (h *hashIndex) find(op Operator, value any) (*EventSet, error) {
	k, err := newIndexKey(value)
	if err != nil {
		return nil, err
	}

	set := NewEventSet()
	switch op {
	case OpEquals:
		for _, entry := range h.buckets[h.hash(k)] {
			if compareKeys(entry.key, k) == 0 {
				set.Add(entry.event)
			}
		}
	case OpNotEquals:
		for _, bucket := range h.buckets {
			for _, entry := range bucket {
				if compareKeys(entry.key, k) != 0 {
					set.Add(entry.event)
				}
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s on hash index", ErrUnsupportedOperator, op)
	}
	return set, nil
}
