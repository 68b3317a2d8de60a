package collection

import (
	"strings"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"
	"github.com/ohler55/ojg/jp"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event is a tuple of attribute values buffered within a table.  Once an event
// is stored within a holder it must be treated as immutable;  callers that need
// to mutate an event must clone it first.
type Event struct {
	ID   uuid.UUID
	Data map[string]any

	// Next links events within a result chain.  It is only populated on
	// clones:  events owned by a holder are never relinked.
	Next *Event

	// seq is the holder-assigned sequence number.  Zero means the event
	// has not been stored.
	seq uint32
}

func NewEvent(data map[string]any) *Event {
	if data == nil {
		data = map[string]any{}
	}
	return &Event{
		ID:   uuid.New(),
		Data: data,
	}
}

// EventFromStruct creates an event from a protobuf struct payload.  Note that
// all numbers within a struct are float64.
func EventFromStruct(s *structpb.Struct) *Event {
	if s == nil {
		return NewEvent(nil)
	}
	return NewEvent(s.AsMap())
}

// Get returns the value stored at the given attribute path, eg. "user.age"
// reads the "age" key of the nested "user" map.
func (e *Event) Get(path string) (any, bool) {
	if e == nil {
		return nil, false
	}
	if !strings.Contains(path, ".") {
		val, ok := e.Data[path]
		return val, ok
	}
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, false
	}
	return lookup(x, e.Data)
}

// get resolves a parsed attribute path.  Dotted paths are always nested, as
// in CEL:  `stock.user.age` never reads a "user.age" key.
func (e *Event) get(path string, x jp.Expr) (any, bool) {
	if !strings.Contains(path, ".") {
		val, ok := e.Data[path]
		return val, ok
	}
	return lookup(x, e.Data)
}

// Stored returns whether the event has been added to a holder.  Events keep
// their sequence once deleted, so they can't be added again.
func (e *Event) Stored() bool {
	return e != nil && e.seq != 0
}

func lookup(x jp.Expr, data map[string]any) (any, bool) {
	res := x.Get(data)
	if len(res) != 1 {
		return nil, false
	}
	return res[0], true
}

// EventCloner copies events before they're handed to consumers, ensuring that
// consumers never share the holder's stored copy.
type EventCloner interface {
	Copy(e *Event) *Event
}

// ClonerFunc adapts a function into an EventCloner.
type ClonerFunc func(e *Event) *Event

func (f ClonerFunc) Copy(e *Event) *Event {
	return f(e)
}

// DeepCloner copies an event and all nested attribute values.
var DeepCloner EventCloner = ClonerFunc(deepCopyEvent)

func deepCopyEvent(e *Event) *Event {
	if e == nil {
		return nil
	}
	data, _ := deepcopy.Copy(e.Data).(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return &Event{
		ID:   e.ID,
		Data: data,
	}
}

// MatchingEvent is the incoming event that a condition is evaluated against.
// This may be a single stream event or a join of many stream events, each
// addressed by the reference used within the condition.
type MatchingEvent struct {
	streams map[string]*Event
	vars    map[string]any
}

func NewMatchingEvent(ref string, e *Event) MatchingEvent {
	return MatchingEvent{}.With(ref, e)
}

// With returns a copy of the matching event which also binds e to ref.
func (m MatchingEvent) With(ref string, e *Event) MatchingEvent {
	streams := make(map[string]*Event, len(m.streams)+1)
	for k, v := range m.streams {
		streams[k] = v
	}
	streams[ref] = e
	return MatchingEvent{streams: streams, vars: m.vars}
}

// Stream returns the event bound to ref.
func (m MatchingEvent) Stream(ref string) (*Event, bool) {
	e, ok := m.streams[ref]
	return e, ok
}

func (m MatchingEvent) withVars(vars map[string]any) MatchingEvent {
	if len(vars) == 0 {
		return m
	}
	return MatchingEvent{streams: m.streams, vars: vars}
}

// activation returns the variables bound when evaluating an expression
// against this matching event.
func (m MatchingEvent) activation() map[string]any {
	act := make(map[string]any, len(m.streams)+2)
	for ref, e := range m.streams {
		if e == nil {
			continue
		}
		act[ref] = e.Data
	}
	if m.vars != nil {
		act[VarRoot] = m.vars
	}
	return act
}

// rowActivation binds a stored event to the table reference on top of the
// matching event's variables.
func (m MatchingEvent) rowActivation(tableRef string, stored *Event) map[string]any {
	act := m.activation()
	act[tableRef] = stored.Data
	return act
}
