package session

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/danmuck/airlink/internal/protocol/frame"
	"github.com/danmuck/airlink/internal/testutil/testlog"
)

func TestFrameQueuePreservesFIFO(t *testing.T) {
	testlog.Start(t)
	q := NewFrameQueue(16)
	for i := 0; i < 10; i++ {
		if !q.Enqueue([]byte(fmt.Sprintf("frame-%d", i))) {
			t.Fatalf("enqueue %d dropped", i)
		}
	}
	for i := 0; i < 10; i++ {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("dequeue %d: queue empty", i)
		}
		if want := fmt.Sprintf("frame-%d", i); string(got) != want {
			t.Fatalf("dequeue %d got=%q want=%q", i, got, want)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestFrameQueueBoundsPool(t *testing.T) {
	testlog.Start(t)
	const max, extra = 8, 3
	q := NewFrameQueue(max)
	kept := 0
	for i := 0; i < max+extra; i++ {
		if q.Enqueue([]byte{byte(i)}) {
			kept++
		}
	}
	if kept != max || q.Len() != max {
		t.Fatalf("kept=%d len=%d want %d", kept, q.Len(), max)
	}
	if q.Dropped() != extra {
		t.Fatalf("dropped=%d want %d", q.Dropped(), extra)
	}
	if q.Slots() != max {
		t.Fatalf("slots=%d want %d", q.Slots(), max)
	}
	// the survivors are the first max frames
	for i := 0; i < max; i++ {
		got, _ := q.Dequeue()
		if got[0] != byte(i) {
			t.Fatalf("dequeue %d got=%d", i, got[0])
		}
	}
}

func TestFrameQueueRecyclesSlots(t *testing.T) {
	testlog.Start(t)
	q := NewFrameQueue(2)
	for round := 0; round < 50; round++ {
		if !q.Enqueue([]byte{byte(round)}) || !q.Enqueue([]byte{byte(round), 1}) {
			t.Fatalf("round %d dropped", round)
		}
		a, _ := q.Dequeue()
		b, _ := q.Dequeue()
		if !bytes.Equal(a, []byte{byte(round)}) || !bytes.Equal(b, []byte{byte(round), 1}) {
			t.Fatalf("round %d got %v %v", round, a, b)
		}
	}
	if q.Slots() != 2 {
		t.Fatalf("slots=%d want 2", q.Slots())
	}
}

func TestFrameQueueDequeueIsCopy(t *testing.T) {
	testlog.Start(t)
	q := NewFrameQueue(1)
	src := []byte{1, 2, 3}
	q.Enqueue(src)
	src[0] = 9
	got, _ := q.Dequeue()
	if got[0] != 1 {
		t.Fatalf("queued frame aliased caller buffer")
	}
	q.Enqueue([]byte{7, 7, 7})
	if got[0] != 1 {
		t.Fatalf("dequeued frame aliased recycled slot")
	}
}

func TestFrameQueueRejectsOversizedFrame(t *testing.T) {
	testlog.Start(t)
	q := NewFrameQueue(4)
	if q.Enqueue(make([]byte, frame.MaxMessageSize+1)) {
		t.Fatalf("oversized frame accepted")
	}
	if q.Dropped() != 1 || q.Slots() != 0 {
		t.Fatalf("dropped=%d slots=%d", q.Dropped(), q.Slots())
	}
	if !q.Enqueue(make([]byte, frame.MaxMessageSize)) {
		t.Fatalf("max-size frame dropped")
	}
}

func TestFrameQueueReset(t *testing.T) {
	testlog.Start(t)
	q := NewFrameQueue(4)
	q.Enqueue([]byte{1})
	q.Enqueue([]byte{2})
	q.Dequeue()
	q.Reset()
	if q.Len() != 0 || q.Slots() != 0 {
		t.Fatalf("len=%d slots=%d after reset", q.Len(), q.Slots())
	}
}
