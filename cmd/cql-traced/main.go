// Command cql-traced runs the CQL tracing agent: it wires a simulated
// capture source into the reassembler/worker-pool/stitcher pipeline and
// exports what it observes as logs and Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/orbservability/cql-tracer/coordination"
	"github.com/orbservability/cql-tracer/diag"
	"github.com/orbservability/cql-tracer/ingest"
	"github.com/orbservability/cql-tracer/record"
	"github.com/orbservability/cql-tracer/stitch"
	"github.com/orbservability/cql-tracer/telemetry"
	"github.com/orbservability/cql-tracer/workerpool"
)

func main() {
	var (
		metricsAddr   = flag.String("metrics-addr", ":9090", "address to serve /metrics on")
		numWorkers    = flag.Int("workers", 4, "number of worker goroutines")
		queueCapacity = flag.Int("queue-capacity", ingest.DefaultQueueCapacity, "per-connection frame queue capacity")
		maxRequestAge = flag.Duration("max-request-age", stitch.DefaultMaxRequestAge, "how long an unmatched request is kept before it is discarded")
		pollRate      = flag.Float64("poll-rate", 1000, "capture source poll rate, batches per second")
		recordRate    = flag.Float64("record-rate", 0, "max emitted records per second to the output sink, 0 disables the limit")
		etcdEndpoints = flag.String("etcd-endpoints", "", "comma-separated etcd endpoints for multi-replica shard coordination; empty disables coordination")
		replicaID     = flag.String("replica-id", "", "this replica's identity for shard coordination, defaults to hostname")
		development   = flag.Bool("dev", false, "use a human-readable development logger instead of JSON")
	)
	flag.Parse()

	logger, err := newLogger(*development)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	zapRecorder := telemetry.NewZapRecorder(logger)
	recorder := telemetry.MultiRecorder{Recorders: []diag.Recorder{zapRecorder, metrics}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *etcdEndpoints != "" {
		id := *replicaID
		if id == "" {
			id, _ = os.Hostname()
		}
		if err := startCoordination(ctx, logger, *etcdEndpoints, id); err != nil {
			logger.Error("shard coordination unavailable, continuing without it", zap.Error(err))
		}
	}

	sinkChain := telemetry.Chain(
		telemetry.LoggingSink(logger),
		metrics.RecordSink(),
		rateLimitStage(*recordRate),
	)
	sink := sinkChain(func(connID string, rec record.Record) {})

	pool := workerpool.New(workerpool.Config{
		NumWorkers:   *numWorkers,
		IngestConfig: ingest.Config{QueueCapacity: *queueCapacity},
		StitchConfig: stitch.Config{MaxRequestAge: *maxRequestAge},
		Recorder:     recorder,
		Sink:         workerpool.Sink(sink),
		Gauges:       metrics,
	})
	pool.Start(ctx)
	defer pool.Stop()

	source := ingest.NewSource(ingest.SourceConfig{
		QueueCapacity: *queueCapacity,
		PollRate:      rate.Limit(*pollRate),
	}, recorder)
	go source.Run(ctx)
	go relay(ctx, source, pool)

	http.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: *metricsAddr}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	logger.Info("cql-traced started", zap.String("metrics_addr", *metricsAddr), zap.Int("workers", *numWorkers))

	waitForShutdown(ctx, logger)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func relay(ctx context.Context, source *ingest.Source, pool *workerpool.Pool) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-source.Events():
			if !ok {
				return
			}
			pool.Submit(ev)
		}
	}
}

func waitForShutdown(ctx context.Context, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}
}

func startCoordination(ctx context.Context, logger *zap.Logger, endpoints, replicaID string) error {
	store, err := coordination.NewEtcdStore(splitEndpoints(endpoints))
	if err != nil {
		return fmt.Errorf("dial etcd: %w", err)
	}
	coord := coordination.NewShardCoordinator(store, replicaID, "/cql-tracer/shards/", 10)
	if err := coord.Acquire(ctx, "default"); err != nil {
		return fmt.Errorf("acquire default shard: %w", err)
	}
	logger.Info("acquired shard lease", zap.String("replica_id", replicaID))
	return nil
}

func splitEndpoints(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func rateLimitStage(recordsPerSecond float64) telemetry.Middleware {
	if recordsPerSecond <= 0 {
		return func(next telemetry.Sink) telemetry.Sink { return next }
	}
	return telemetry.RateLimitSink(recordsPerSecond, int(recordsPerSecond))
}
