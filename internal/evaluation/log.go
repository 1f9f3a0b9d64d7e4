package evaluation

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rickgao/mist-signaling/internal/metrics"
)

// BucketLayout formats bucket keys. Keys sort lexically in time order.
const BucketLayout = "2006-01-02 15:04:05"

// BucketKey returns the bucket for t, truncated to the second in t's location.
func BucketKey(t time.Time) string {
	return t.Truncate(time.Second).Format(BucketLayout)
}

// Bucket maps client identifier to its most recent location in that second.
type Bucket map[string]json.RawMessage

// Snapshot is a point-in-time copy of the log.
type Snapshot struct {
	Buckets map[string]Bucket
	// Changed lists bucket keys written since the previous snapshot, sorted.
	Changed []string
}

// LogConfig bounds in-memory history. Zero values mean unbounded.
type LogConfig struct {
	MaxBuckets int
	Retention  time.Duration
}

// Log is the in-memory evaluation log. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, Bucket]
	changed map[string]struct{}
}

// NewLog creates an empty log.
func NewLog(cfg LogConfig) *Log {
	onEvict := func(string, Bucket) {
		metrics.EvaluationBucketsEvicted.Inc()
	}
	return &Log{
		buckets: expirable.NewLRU[string, Bucket](cfg.MaxBuckets, onEvict, cfg.Retention),
		changed: make(map[string]struct{}),
	}
}

// Record stores location for id in the bucket of at, replacing any earlier
// report from id in the same second.
func (l *Log) Record(at time.Time, id string, location json.RawMessage) {
	key := BucketKey(at)
	loc := slices.Clone(location)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Peek(key)
	if !ok {
		b = make(Bucket)
		l.buckets.Add(key, b)
	}
	b[id] = loc
	l.changed[key] = struct{}{}

	metrics.EvaluationReports.Inc()
	metrics.EvaluationBuckets.Set(float64(l.buckets.Len()))
}

// Snapshot returns a deep copy of every retained bucket and resets the
// changed set.
func (l *Log) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := l.buckets.Keys()
	snap := Snapshot{
		Buckets: make(map[string]Bucket, len(keys)),
		Changed: make([]string, 0, len(l.changed)),
	}
	for _, key := range keys {
		b, ok := l.buckets.Peek(key)
		if !ok {
			continue
		}
		cp := make(Bucket, len(b))
		for id, loc := range b {
			cp[id] = slices.Clone(loc)
		}
		snap.Buckets[key] = cp
	}
	for key := range l.changed {
		// Evicted before it could be flushed.
		if _, ok := snap.Buckets[key]; !ok {
			continue
		}
		snap.Changed = append(snap.Changed, key)
	}
	slices.Sort(snap.Changed)
	clear(l.changed)

	metrics.EvaluationBuckets.Set(float64(len(snap.Buckets)))
	return snap
}

// Len returns the number of retained buckets.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buckets.Len()
}
