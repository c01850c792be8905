package session

import (
	"sync"

	"github.com/danmuck/airlink/internal/protocol/frame"
)

// DefaultQueueMax bounds the slots one connection may hold for frames that
// arrived while nobody was reading them.
const DefaultQueueMax = 666

type queuedFrame struct {
	buf  [frame.MaxMessageSize]byte
	n    int
	next *queuedFrame
}

// FrameQueue is a bounded FIFO of data frames backed by a recycled slot
// pool. Slots are never freed individually; Reset releases all of them.
type FrameQueue struct {
	mu      sync.Mutex
	max     int
	head    *queuedFrame
	tail    *queuedFrame
	free    *queuedFrame
	queued  int
	slots   int
	dropped uint64
}

func NewFrameQueue(max int) *FrameQueue {
	if max <= 0 {
		max = DefaultQueueMax
	}
	return &FrameQueue{max: max}
}

// Enqueue copies payload into a slot. It returns false and counts a drop
// when the pool is exhausted or payload does not fit a slot.
func (q *FrameQueue) Enqueue(payload []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(payload) > frame.MaxMessageSize {
		q.dropped++
		return false
	}
	slot := q.acquire()
	if slot == nil {
		q.dropped++
		return false
	}
	slot.n = copy(slot.buf[:], payload)
	slot.next = nil
	if q.tail == nil {
		q.head = slot
	} else {
		q.tail.next = slot
	}
	q.tail = slot
	q.queued++
	return true
}

func (q *FrameQueue) acquire() *queuedFrame {
	if slot := q.free; slot != nil {
		q.free = slot.next
		return slot
	}
	if q.slots >= q.max {
		return nil
	}
	q.slots++
	return &queuedFrame{}
}

// Dequeue removes the oldest frame and returns a copy of its payload.
func (q *FrameQueue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	slot := q.head
	if slot == nil {
		return nil, false
	}
	q.head = slot.next
	if q.head == nil {
		q.tail = nil
	}
	q.queued--

	out := make([]byte, slot.n)
	copy(out, slot.buf[:slot.n])
	slot.n = 0
	slot.next = q.free
	q.free = slot
	return out, true
}

// Len is the number of frames waiting.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued
}

// Slots is the number of slots allocated, queued or free.
func (q *FrameQueue) Slots() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.slots
}

func (q *FrameQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Reset discards queued frames and releases every slot.
func (q *FrameQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.head, q.tail, q.free = nil, nil, nil
	q.queued = 0
	q.slots = 0
}
