package ingest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/orbservability/cql-tracer/diag"
)

// DefaultPollInterval is how often Run checks for newly ingested events when
// the limiter allows it.
const DefaultPollInterval = time.Millisecond

// SourceConfig tunes the simulated capture source's backlog and cadence.
type SourceConfig struct {
	// QueueCapacity bounds how many CaptureEvents Source buffers before it
	// starts evicting the oldest. Zero means DefaultQueueCapacity.
	QueueCapacity int
	// PollRate is how many batches per second Run drains from the backlog,
	// via a token bucket: a misbehaving or overly chatty producer cannot
	// starve the worker pool's CPU budget. Zero means unlimited.
	PollRate rate.Limit
	// PollBurst is the token bucket's burst size. Zero means 1.
	PollBurst int
	// PollInterval is the ticker cadence Run uses to check the limiter.
	// Zero means DefaultPollInterval.
	PollInterval time.Duration
}

func (c SourceConfig) queueCapacity() int {
	if c.QueueCapacity <= 0 {
		return DefaultQueueCapacity
	}
	return c.QueueCapacity
}

func (c SourceConfig) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return c.PollInterval
}

// Source is a simulated stand-in for the kernel-assisted capture mechanism:
// callers push CaptureEvents via Ingest (as if a BPF ring buffer had just
// delivered one), and Run relays them onto Events() at a rate-limited
// cadence. Ingest never blocks: a full backlog evicts its oldest event with
// a diagnostic rather than applying backpressure to the producer, mirroring
// how a real kernel ring buffer would be a fixed-size, overwrite-on-full
// structure.
type Source struct {
	cfg      SourceConfig
	recorder diag.Recorder
	limiter  *rate.Limiter
	out      chan CaptureEvent

	mu      sync.Mutex
	backlog []CaptureEvent
}

// NewSource returns a Source ready to have events pushed into it.
func NewSource(cfg SourceConfig, recorder diag.Recorder) *Source {
	if recorder == nil {
		recorder = diag.NopRecorder{}
	}
	burst := cfg.PollBurst
	if burst <= 0 {
		burst = 1
	}
	limit := cfg.PollRate
	if limit <= 0 {
		limit = rate.Inf
	}
	return &Source{
		cfg:      cfg,
		recorder: recorder,
		limiter:  rate.NewLimiter(limit, burst),
		out:      make(chan CaptureEvent, 1),
	}
}

// Events returns the channel Run delivers events on.
func (s *Source) Events() <-chan CaptureEvent { return s.out }

// Ingest enqueues ev. If the backlog is at capacity, the oldest pending
// event is dropped and a KindQueueOverflow diagnostic is recorded.
func (s *Source) Ingest(ev CaptureEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.backlog) >= s.cfg.queueCapacity() {
		dropped := s.backlog[0]
		s.backlog = s.backlog[1:]
		s.recorder.Record(diag.Diagnostic{
			Kind:     diag.KindQueueOverflow,
			ConnID:   dropped.ConnID.Key(),
			Detail:   "capture source backlog at capacity, oldest event evicted",
		})
	}
	s.backlog = append(s.backlog, ev)
}

// Run polls the backlog at cfg.PollInterval, relaying one event per tick
// that the rate limiter allows, until ctx is canceled. The limiter governs
// poll cadence only: a delayed poll only delays frame arrival, it never
// reorders events, since the backlog is itself FIFO.
func (s *Source) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.pollInterval())
	defer ticker.Stop()
	defer close(s.out)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.limiter.Allow() {
				continue
			}
			ev, ok := s.pop()
			if !ok {
				continue
			}
			select {
			case s.out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Source) pop() (CaptureEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.backlog) == 0 {
		return CaptureEvent{}, false
	}
	ev := s.backlog[0]
	s.backlog = s.backlog[1:]
	return ev, true
}
