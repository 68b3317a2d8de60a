package collection

import (
	"github.com/RoaringBitmap/roaring"
)

// EventSet is a set of stored events, keyed by each event's holder sequence.
// Iteration is in ascending sequence order, ie. the order in which events were
// added to the holder.
//
// Set operations (Intersect, Union, Difference) return new sets and never
// modify their operands.  A nil *EventSet is treated as empty.
type EventSet struct {
	bits   *roaring.Bitmap
	events map[uint32]*Event
}

func NewEventSet(events ...*Event) *EventSet {
	s := &EventSet{
		bits:   roaring.New(),
		events: make(map[uint32]*Event, len(events)),
	}
	for _, e := range events {
		s.Add(e)
	}
	return s
}

// Add adds a stored event to the set.  Events which have not been stored
// within a holder are ignored.
func (s *EventSet) Add(e *Event) {
	if !e.Stored() {
		return
	}
	s.bits.Add(e.seq)
	s.events[e.seq] = e
}

func (s *EventSet) Remove(e *Event) {
	if s == nil || !e.Stored() {
		return
	}
	s.bits.Remove(e.seq)
	delete(s.events, e.seq)
}

func (s *EventSet) Contains(e *Event) bool {
	if s == nil || !e.Stored() {
		return false
	}
	return s.bits.Contains(e.seq)
}

func (s *EventSet) Len() int {
	if s == nil {
		return 0
	}
	return int(s.bits.GetCardinality())
}

func (s *EventSet) IsEmpty() bool {
	return s == nil || s.bits.IsEmpty()
}

// Each calls f for every event in the set, stopping if f returns false.
func (s *EventSet) Each(f func(e *Event) bool) {
	if s == nil {
		return
	}
	it := s.bits.Iterator()
	for it.HasNext() {
		if !f(s.events[it.Next()]) {
			return
		}
	}
}

func (s *EventSet) Events() []*Event {
	out := make([]*Event, 0, s.Len())
	s.Each(func(e *Event) bool {
		out = append(out, e)
		return true
	})
	return out
}

func (s *EventSet) Clone() *EventSet {
	if s == nil {
		return NewEventSet()
	}
	return s.derive(s.bits.Clone())
}

func (s *EventSet) Intersect(o *EventSet) *EventSet {
	if s.IsEmpty() || o.IsEmpty() {
		return NewEventSet()
	}
	return s.derive(roaring.And(s.bits, o.bits))
}

func (s *EventSet) Union(o *EventSet) *EventSet {
	switch {
	case s.IsEmpty():
		return o.Clone()
	case o.IsEmpty():
		return s.Clone()
	}
	out := s.derive(roaring.Or(s.bits, o.bits))
	// The union may hold events known only to o.
	for seq, e := range o.events {
		out.events[seq] = e
	}
	return out
}

// Difference returns the events within s that are not within o.
func (s *EventSet) Difference(o *EventSet) *EventSet {
	if s.IsEmpty() {
		return NewEventSet()
	}
	if o.IsEmpty() {
		return s.Clone()
	}
	return s.derive(roaring.AndNot(s.bits, o.bits))
}

// derive creates a set from bits, taking events from s.
func (s *EventSet) derive(bits *roaring.Bitmap) *EventSet {
	out := &EventSet{
		bits:   bits,
		events: make(map[uint32]*Event, bits.GetCardinality()),
	}
	it := bits.Iterator()
	for it.HasNext() {
		seq := it.Next()
		if e, ok := s.events[seq]; ok {
			out.events[seq] = e
		}
	}
	return out
}
