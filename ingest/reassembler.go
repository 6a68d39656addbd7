package ingest

import (
	"github.com/orbservability/cql-tracer/diag"
	"github.com/orbservability/cql-tracer/frame"
	"github.com/orbservability/cql-tracer/stitch"
)

// DefaultQueueCapacity bounds each (connection, direction) frame queue.
const DefaultQueueCapacity = 4096

// Config tunes a Reassembler's backpressure behavior.
type Config struct {
	// QueueCapacity bounds the number of decoded-but-not-yet-drained frames
	// kept per (connection, direction). Zero means DefaultQueueCapacity.
	QueueCapacity int
}

func (c Config) queueCapacity() int {
	if c.QueueCapacity <= 0 {
		return DefaultQueueCapacity
	}
	return c.QueueCapacity
}

type streamKey struct {
	conn string
	dir  frame.Direction
}

// Reassembler turns a sequence of CaptureEvents into decoded frames, one
// byte buffer and one bounded frame queue per (connection, direction). A
// frame becomes available for draining as soon as enough bytes have
// accumulated to decode it; NeedMoreData simply means waiting for the next
// CaptureEvent on that stream.
type Reassembler struct {
	cfg      Config
	recorder diag.Recorder
	buffers  map[streamKey][]byte
	queues   map[streamKey]*stitch.Queue
}

// NewReassembler returns an empty Reassembler.
func NewReassembler(cfg Config, recorder diag.Recorder) *Reassembler {
	if recorder == nil {
		recorder = diag.NopRecorder{}
	}
	return &Reassembler{
		cfg:      cfg,
		recorder: recorder,
		buffers:  make(map[streamKey][]byte),
		queues:   make(map[streamKey]*stitch.Queue),
	}
}

// Feed appends ev's bytes to the appropriate stream buffer and decodes as
// many complete frames as are now available.
func (a *Reassembler) Feed(ev CaptureEvent) {
	dir := ev.EventType.Direction(ev.Role)
	key := streamKey{conn: ev.ConnID.Key(), dir: dir}

	a.buffers[key] = append(a.buffers[key], ev.Msg...)
	a.drain(key, ev.TimestampNs)
}

func (a *Reassembler) drain(key streamKey, timestampNs uint64) {
	for {
		buf := a.buffers[key]
		if len(buf) == 0 {
			return
		}
		f, consumed, err := frame.Decode(buf, key.dir, timestampNs)
		if err != nil {
			if _, needMore := err.(*frame.NeedMoreDataError); needMore {
				return
			}
			// Malformed bytes leave the decode offset unrecoverable: the rest
			// of this buffer cannot be safely resynchronized, so it is
			// dropped and decoding resumes from the next CaptureEvent.
			a.recorder.Record(diag.Diagnostic{
				Kind:   diag.KindMalformedHeader,
				ConnID: key.conn,
				Detail: err.Error(),
			})
			a.buffers[key] = nil
			return
		}

		a.buffers[key] = buf[consumed:]
		q := a.queueFor(key)
		if evicted, didEvict := q.PushBack(f); didEvict {
			a.recorder.Record(diag.Diagnostic{
				Kind:     diag.KindQueueOverflow,
				ConnID:   key.conn,
				StreamID: evicted.StreamID,
				Detail:   "frame queue at capacity, oldest frame evicted",
			})
		}
	}
}

func (a *Reassembler) queueFor(key streamKey) *stitch.Queue {
	q, ok := a.queues[key]
	if !ok {
		q = stitch.NewQueue(a.cfg.queueCapacity())
		a.queues[key] = q
	}
	return q
}

// Drain removes and returns every currently queued frame for connID, split
// by direction, in arrival order.
func (a *Reassembler) Drain(connID ConnID) (reqs, resps []*frame.Frame) {
	reqs = drainAll(a.queues[streamKey{conn: connID.Key(), dir: frame.DirRequest}])
	resps = drainAll(a.queues[streamKey{conn: connID.Key(), dir: frame.DirResponse}])
	return reqs, resps
}

func drainAll(q *stitch.Queue) []*frame.Frame {
	if q == nil {
		return nil
	}
	var out []*frame.Frame
	for {
		f, ok := q.PopFront()
		if !ok {
			return out
		}
		out = append(out, f)
	}
}
