package collection

// EventChunk is an ordered chain of events produced by a single find.
type EventChunk struct {
	events []*Event
	// link is true when the chunk holds clones, allowing the chunk to chain
	// events via Next.
	link bool
}

func newEventChunk(link bool) *EventChunk {
	return &EventChunk{link: link}
}

func (c *EventChunk) Add(e *Event) {
	if e == nil {
		return
	}
	if c.link && len(c.events) > 0 {
		c.events[len(c.events)-1].Next = e
	}
	c.events = append(c.events, e)
}

// First returns the head of the chain, or false if the chunk is empty.
func (c *EventChunk) First() (*Event, bool) {
	if c == nil || len(c.events) == 0 {
		return nil, false
	}
	return c.events[0], true
}

func (c *EventChunk) Len() int {
	if c == nil {
		return 0
	}
	return len(c.events)
}

func (c *EventChunk) Events() []*Event {
	if c == nil {
		return nil
	}
	return c.events
}

// chunkFromSet builds a result chain from the given set, cloning each event
// when a cloner is given.
func chunkFromSet(set *EventSet, cloner EventCloner) *EventChunk {
	chunk := newEventChunk(cloner != nil)
	set.Each(func(e *Event) bool {
		if cloner != nil {
			chunk.Add(cloner.Copy(e))
			return true
		}
		chunk.Add(e)
		return true
	})
	return chunk
}
