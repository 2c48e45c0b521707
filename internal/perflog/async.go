package perflog

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/lawnchairsociety/bossmind/internal/logger"
)

// ErrSinkClosed is returned by Archive after Close.
var ErrSinkClosed = errors.New("performance archive closed")

// DefaultAsyncBuffer is the queue depth used when a non-positive buffer is
// requested.
const DefaultAsyncBuffer = 1024

// AsyncSink hands entries to a wrapped Sink from a background goroutine so
// Record never waits on I/O. Entries arriving while the queue is full are
// dropped and counted.
type AsyncSink struct {
	next    Sink
	queue   chan Entry
	flush   chan chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// NewAsyncSink starts the writer goroutine for next.
func NewAsyncSink(next Sink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	s := &AsyncSink{
		next:  next,
		queue: make(chan Entry, buffer),
		flush: make(chan chan struct{}),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Archive queues entry without blocking.
func (s *AsyncSink) Archive(entry Entry) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}
	select {
	case s.queue <- entry:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.Warning("Performance archive queue full, entry dropped", "dropped", n)
		}
	}
	return nil
}

// Flush blocks until every entry queued before the call has been written.
func (s *AsyncSink) Flush() {
	reply := make(chan struct{})
	select {
	case s.flush <- reply:
		<-reply
	case <-s.done:
	}
}

// Close writes the remaining entries and stops the goroutine.
func (s *AsyncSink) Close() {
	s.once.Do(func() {
		s.Flush()
		close(s.done)
	})
}

// Dropped returns how many entries were lost to a full queue.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *AsyncSink) run() {
	for {
		select {
		case e := <-s.queue:
			s.write(e)
		case reply := <-s.flush:
			s.drain()
			close(reply)
		case <-s.done:
			s.drain()
			return
		}
	}
}

func (s *AsyncSink) drain() {
	for {
		select {
		case e := <-s.queue:
			s.write(e)
		default:
			return
		}
	}
}

func (s *AsyncSink) write(e Entry) {
	if err := s.next.Archive(e); err != nil {
		logger.Warning("Performance archive failed", "personality", e.Personality, "metric", e.Metric, "error", err)
	}
}
