// Package stitch pairs request and response frames into emitted records.
package stitch

import "github.com/orbservability/cql-tracer/frame"

// Queue is a ring-buffer deque of *frame.Frame with O(1) push-back and
// pop-front, growing on demand. Constructed with a positive capacity, it
// instead evicts the oldest frame on an over-capacity push, matching the
// bounded-queue backpressure described for the ingest side; the stitcher's
// own queues are built with capacity 0 (unbounded) since core matching never
// applies that eviction itself.
type Queue struct {
	buf      []*frame.Frame
	head     int
	count    int
	capacity int
}

// NewQueue returns an empty Queue. capacity <= 0 means unbounded.
func NewQueue(capacity int) *Queue {
	initial := capacity
	if initial <= 0 || initial > 64 {
		initial = 64
	}
	return &Queue{buf: make([]*frame.Frame, initial), capacity: capacity}
}

// Len reports the number of frames currently queued.
func (q *Queue) Len() int { return q.count }

func (q *Queue) grow() {
	newBuf := make([]*frame.Frame, len(q.buf)*2)
	for i := 0; i < q.count; i++ {
		newBuf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = newBuf
	q.head = 0
}

// PushBack appends f to the tail. If the queue was constructed with a
// positive capacity and is already full, the oldest frame is popped first
// and returned as evicted.
func (q *Queue) PushBack(f *frame.Frame) (evicted *frame.Frame, didEvict bool) {
	if q.capacity > 0 && q.count >= q.capacity {
		evicted, didEvict = q.PopFront()
	}
	if q.count == len(q.buf) {
		q.grow()
	}
	idx := (q.head + q.count) % len(q.buf)
	q.buf[idx] = f
	q.count++
	return evicted, didEvict
}

// PopFront removes and returns the head frame.
func (q *Queue) PopFront() (*frame.Frame, bool) {
	if q.count == 0 {
		return nil, false
	}
	f := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return f, true
}

// Front returns the head frame without removing it.
func (q *Queue) Front() (*frame.Frame, bool) {
	if q.count == 0 {
		return nil, false
	}
	return q.buf[q.head], true
}

// FindFirstUnconsumed scans from the head for the first frame with
// Consumed == false and the given stream id.
func (q *Queue) FindFirstUnconsumed(streamID int16) (*frame.Frame, bool) {
	for i := 0; i < q.count; i++ {
		f := q.buf[(q.head+i)%len(q.buf)]
		if !f.Consumed && f.StreamID == streamID {
			return f, true
		}
	}
	return nil, false
}

// PruneConsumedFront pops tombstoned frames off the head, returning the
// count removed. It stops at the first non-consumed frame.
func (q *Queue) PruneConsumedFront() int {
	n := 0
	for q.count > 0 && q.buf[q.head].Consumed {
		q.PopFront()
		n++
	}
	return n
}

// PruneOlderThan pops frames off the head while their TimestampNs is below
// cutoffNs, returning the frames removed. Used to recover memory from a
// permanently lost response: the request they belonged to never gets
// tombstoned, so age is the only eviction signal.
func (q *Queue) PruneOlderThan(cutoffNs uint64) []*frame.Frame {
	var pruned []*frame.Frame
	for q.count > 0 && q.buf[q.head].TimestampNs < cutoffNs {
		f, _ := q.PopFront()
		pruned = append(pruned, f)
	}
	return pruned
}
