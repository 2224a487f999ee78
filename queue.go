package r3proxy

// msgQueue is an intrusive FIFO over one of a Message's link slots. Insertion
// order is arrival order; removal is either head-first or a scan-then-remove
// of a contiguous fragment run, so no random-access structure is needed.
type msgQueue struct {
	slot int
	head *Message
	tail *Message
	size int
}

func (q *msgQueue) enqueue(m *Message) {
	l := &m.links[q.slot]
	invariant(l.queue == nil, "message %d already queued in slot %d", m.ID, q.slot)
	l.queue = q
	l.prev = q.tail
	l.next = nil
	if q.tail != nil {
		q.tail.links[q.slot].next = m
	} else {
		q.head = m
	}
	q.tail = m
	q.size++
}

func (q *msgQueue) dequeue(m *Message) {
	l := &m.links[q.slot]
	invariant(l.queue == q, "message %d not in this queue (slot %d)", m.ID, q.slot)
	if l.prev != nil {
		l.prev.links[q.slot].next = l.next
	} else {
		q.head = l.next
	}
	if l.next != nil {
		l.next.links[q.slot].prev = l.prev
	} else {
		q.tail = l.prev
	}
	l.prev, l.next, l.queue = nil, nil, nil
	q.size--
}

// peekHead returns the oldest message without removing it.
func (q *msgQueue) peekHead() *Message { return q.head }

// next returns the message enqueued after m, in insertion order.
func (q *msgQueue) next(m *Message) *Message {
	invariant(m.links[q.slot].queue == q, "next on message %d outside queue (slot %d)", m.ID, q.slot)
	return m.links[q.slot].next
}

func (q *msgQueue) len() int { return q.size }
