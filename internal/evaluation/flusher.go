package evaluation

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/mist-signaling/internal/metrics"
)

// ErrNoSinks is returned by NewFlusher when no sink is configured.
var ErrNoSinks = errors.New("evaluation: no sinks configured")

// Sink persists evaluation snapshots.
//
// Full-log sinks write snap.Buckets wholesale. Incremental sinks write only
// the buckets named in snap.Changed.
type Sink interface {
	Name() string
	Write(ctx context.Context, snap Snapshot) error
}

// FlusherStats reports flush outcomes.
type FlusherStats struct {
	Flushes   int64
	Errors    int64
	LastFlush time.Time
}

// Flusher periodically writes the log to its sinks.
type Flusher struct {
	log      *Log
	sinks    []Sink
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	// Guards pending and stats, and serializes flushes.
	mu sync.Mutex
	// Changed bucket keys each sink has not yet persisted.
	pending []map[string]struct{}
	stats   FlusherStats

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFlusher creates a Flusher writing log to sinks every interval.
func NewFlusher(log *Log, interval time.Duration, sinks []Sink, logger *slog.Logger) (*Flusher, error) {
	if len(sinks) == 0 {
		return nil, ErrNoSinks
	}
	if logger == nil {
		logger = slog.Default()
	}

	pending := make([]map[string]struct{}, len(sinks))
	for i := range pending {
		pending[i] = make(map[string]struct{})
	}

	return &Flusher{
		log:      log,
		sinks:    sinks,
		interval: interval,
		timeout:  interval,
		logger:   logger,
		pending:  pending,
	}, nil
}

// Start begins the periodic flush loop.
func (f *Flusher) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go f.flushLoop()

	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	f.logger.Info("evaluation flusher started",
		"interval", f.interval,
		"sinks", names,
	)
	return nil
}

// Stop halts the loop and performs a final flush.
func (f *Flusher) Stop(ctx context.Context) error {
	f.logger.Info("stopping evaluation flusher")

	if f.cancel != nil {
		f.cancel()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		f.logger.Warn("evaluation flusher stop timed out")
	}

	// Final flush
	err := f.Flush(ctx)
	f.logger.Info("evaluation flusher stopped")
	return err
}

// Stats returns current counters.
func (f *Flusher) Stats() FlusherStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *Flusher) flushLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(f.ctx, f.timeout)
			_ = f.Flush(ctx)
			cancel()
		}
	}
}

// Flush writes the current snapshot to every sink. A failing sink keeps its
// changed keys for the next attempt. Returns the joined sink errors.
func (f *Flusher) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := f.log.Snapshot()

	var errs []error
	for i, sink := range f.sinks {
		pending := f.pending[i]
		for _, key := range snap.Changed {
			pending[key] = struct{}{}
		}

		changed := make([]string, 0, len(pending))
		for key := range pending {
			if _, ok := snap.Buckets[key]; ok {
				changed = append(changed, key)
			}
		}
		slices.Sort(changed)

		start := time.Now()
		err := sink.Write(ctx, Snapshot{Buckets: snap.Buckets, Changed: changed})
		metrics.FlushDuration.WithLabelValues(sink.Name()).Observe(time.Since(start).Seconds())

		if err != nil {
			f.stats.Errors++
			metrics.Flushes.WithLabelValues(sink.Name(), metrics.ResultError).Inc()
			f.logger.Error("evaluation flush failed",
				"sink", sink.Name(),
				"pending", len(changed),
				"error", err,
			)
			errs = append(errs, err)
			continue
		}

		clear(pending)
		metrics.Flushes.WithLabelValues(sink.Name(), metrics.ResultOK).Inc()
		f.logger.Debug("evaluation flushed",
			"sink", sink.Name(),
			"buckets", len(snap.Buckets),
			"changed", len(changed),
			"duration", time.Since(start),
		)
	}

	f.stats.Flushes++
	f.stats.LastFlush = time.Now()
	return errors.Join(errs...)
}
