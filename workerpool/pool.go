package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/orbservability/cql-tracer/diag"
	"github.com/orbservability/cql-tracer/ingest"
	"github.com/orbservability/cql-tracer/record"
	"github.com/orbservability/cql-tracer/stitch"
)

// DefaultInboxCapacity bounds how many undelivered CaptureEvents a worker
// will buffer before Submit blocks the caller.
const DefaultInboxCapacity = 1024

// DefaultGaugeInterval is how often a worker reports its stitchers' queue
// depths and oldest-request age to GaugeReporter.
const DefaultGaugeInterval = 2 * time.Second

// Sink receives every record emitted by any connection's stitcher, along
// with the connection it came from.
type Sink func(connID string, rec record.Record)

// GaugeReporter receives a snapshot of one connection's queue depths and
// oldest-unconsumed-request age so it can be exported as a gauge. A
// *telemetry.Metrics satisfies this directly.
type GaugeReporter interface {
	SetQueueDepths(connID string, requestDepth, responseDepth int, oldestAgeMs float64)
}

// Config configures a Pool.
type Config struct {
	NumWorkers     int
	InboxCapacity  int
	IngestConfig   ingest.Config
	StitchConfig   stitch.Config
	Recorder       diag.Recorder
	Sink           Sink
	// Gauges, if set, is polled on GaugeInterval for every live connection's
	// queue depths and oldest-request age. Nil disables gauge reporting.
	Gauges        GaugeReporter
	GaugeInterval time.Duration
}

func (c Config) numWorkers() int {
	if c.NumWorkers <= 0 {
		return 1
	}
	return c.NumWorkers
}

func (c Config) inboxCapacity() int {
	if c.InboxCapacity <= 0 {
		return DefaultInboxCapacity
	}
	return c.InboxCapacity
}

func (c Config) gaugeInterval() time.Duration {
	if c.GaugeInterval <= 0 {
		return DefaultGaugeInterval
	}
	return c.GaugeInterval
}

// worker owns a disjoint subset of connections for its lifetime: one
// Reassembler shared by all of them and one Stitcher per connection, touched
// only from this worker's own goroutine.
type worker struct {
	inbox       chan ingest.CaptureEvent
	reassembler *ingest.Reassembler
	stitchers   map[string]*stitch.Stitcher
	cfg         Config
}

func newWorker(cfg Config) *worker {
	return &worker{
		inbox:       make(chan ingest.CaptureEvent, cfg.inboxCapacity()),
		reassembler: ingest.NewReassembler(cfg.IngestConfig, cfg.Recorder),
		stitchers:   make(map[string]*stitch.Stitcher),
		cfg:         cfg,
	}
}

func (w *worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	var tick <-chan time.Time
	if w.cfg.Gauges != nil {
		ticker := time.NewTicker(w.cfg.gaugeInterval())
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.inbox:
			if !ok {
				return
			}
			w.handle(ev)
		case <-tick:
			w.reportGauges()
		}
	}
}

// reportGauges pushes every live connection's queue depths and
// oldest-unconsumed-request age to the configured GaugeReporter. Only this
// worker's own goroutine ever reads w.stitchers, so no locking is needed.
func (w *worker) reportGauges() {
	for connID, s := range w.stitchers {
		w.cfg.Gauges.SetQueueDepths(
			connID,
			s.RequestQueueLen(),
			s.ResponseQueueLen(),
			float64(s.OldestUnconsumedRequestAge())/float64(time.Millisecond),
		)
	}
}

func (w *worker) handle(ev ingest.CaptureEvent) {
	w.reassembler.Feed(ev)
	reqs, resps := w.reassembler.Drain(ev.ConnID)
	if len(reqs) == 0 && len(resps) == 0 {
		return
	}

	key := ev.ConnID.Key()
	s, ok := w.stitchers[key]
	if !ok {
		s = stitch.New(key, w.cfg.StitchConfig, w.cfg.Recorder, func(r record.Record) {
			if w.cfg.Sink != nil {
				w.cfg.Sink(key, r)
			}
		})
		w.stitchers[key] = s
	}

	for _, f := range reqs {
		s.PushRequest(f)
	}
	for _, f := range resps {
		s.PushResponse(f)
	}
}

// Pool is a fixed-size set of worker goroutines, each owning a disjoint
// subset of connections assigned by a consistent-hash ring: a connection is
// assigned once, at first-seen time, and never rebalanced mid-life.
type Pool struct {
	cfg     Config
	ring    *ShardRing
	workers []*worker
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New constructs a Pool. Call Start to begin processing.
func New(cfg Config) *Pool {
	n := cfg.numWorkers()
	p := &Pool{cfg: cfg, ring: NewShardRing(n)}
	for i := 0; i < n; i++ {
		p.workers = append(p.workers, newWorker(cfg))
	}
	return p
}

// Start launches one goroutine per worker.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run(ctx, &p.wg)
	}
}

// Submit routes ev to the worker owning its connection, blocking if that
// worker's inbox is full.
func (p *Pool) Submit(ev ingest.CaptureEvent) {
	idx := p.ring.WorkerFor(ev.ConnID.Key())
	p.workers[idx].inbox <- ev
}

// Stop cancels all workers and waits for them to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}
