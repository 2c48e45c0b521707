// Package perflog records timestamped combat metrics per personality in a
// bounded ring and answers aggregate queries for overlays.
package perflog

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lawnchairsociety/bossmind/internal/logger"
)

// Metric tags.
const (
	MetricDamageDealt = "damage_dealt"
	MetricDamageTaken = "damage_taken"
	MetricUsage       = "usage"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 1000

// Entry is one recorded metric event.
type Entry struct {
	Personality string    `json:"personality" db:"personality"`
	Metric      string    `json:"metric" db:"metric"`
	Value       float64   `json:"value" db:"value"`
	Timestamp   time.Time `json:"timestamp" db:"recorded_at"`
}

// Stats aggregates the entries retained for one personality.
type Stats struct {
	DamageDealt float64 `json:"damage_dealt"`
	DamageTaken float64 `json:"damage_taken"`
	UsageCount  int     `json:"usage_count"`
}

// Sink receives every entry as it is recorded, e.g. a database archive.
type Sink interface {
	Archive(entry Entry) error
}

// Log is the bounded performance ring. Safe for concurrent use so the stats
// feed can read while the simulation writes.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	head    int // index of the oldest entry
	count   int
	now     func() time.Time
	sinks   []Sink
	cache   *lru.Cache[string, Stats]
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithSink adds an archive sink.
func WithSink(s Sink) Option {
	return func(l *Log) { l.sinks = append(l.sinks, s) }
}

// WithCacheSize sets the per-personality stats cache size.
func WithCacheSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.cache, _ = lru.New[string, Stats](n)
		}
	}
}

// New creates a log holding at most capacity entries.
func New(capacity int, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, _ := lru.New[string, Stats](32)
	l := &Log{
		entries: make([]Entry, capacity),
		now:     time.Now,
		cache:   cache,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends a metric event, evicting the oldest entry when full.
func (l *Log) Record(personality, metric string, value float64) {
	entry := Entry{
		Personality: personality,
		Metric:      metric,
		Value:       value,
		Timestamp:   l.now(),
	}

	l.mu.Lock()
	capacity := len(l.entries)
	if l.count < capacity {
		l.entries[(l.head+l.count)%capacity] = entry
		l.count++
	} else {
		evicted := l.entries[l.head]
		l.entries[l.head] = entry
		l.head = (l.head + 1) % capacity
		l.cache.Remove(evicted.Personality)
	}
	l.cache.Remove(personality)
	sinks := l.sinks
	l.mu.Unlock()

	for _, s := range sinks {
		if err := s.Archive(entry); err != nil {
			logger.Warning("Performance archive failed", "personality", personality, "metric", metric, "error", err)
		}
	}
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Entries returns the retained entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, l.count)
	for i := 0; i < l.count; i++ {
		out = append(out, l.entries[(l.head+i)%len(l.entries)])
	}
	return out
}

// StatsFor aggregates the retained entries of one personality.
func (l *Log) StatsFor(name string) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.cache.Get(name); ok {
		return s
	}
	var s Stats
	for i := 0; i < l.count; i++ {
		e := l.entries[(l.head+i)%len(l.entries)]
		if e.Personality == name {
			accumulate(&s, e)
		}
	}
	l.cache.Add(name, s)
	return s
}

// AllStats aggregates every personality present in the ring.
func (l *Log) AllStats() map[string]Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]Stats)
	for i := 0; i < l.count; i++ {
		e := l.entries[(l.head+i)%len(l.entries)]
		s := out[e.Personality]
		accumulate(&s, e)
		out[e.Personality] = s
	}
	return out
}

// Names returns the personalities present in the ring, sorted.
func (l *Log) Names() []string {
	all := l.AllStats()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func accumulate(s *Stats, e Entry) {
	switch e.Metric {
	case MetricDamageDealt:
		s.DamageDealt += e.Value
	case MetricDamageTaken:
		s.DamageTaken += e.Value
	case MetricUsage:
		s.UsageCount++
	}
}
