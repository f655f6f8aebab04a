package events

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const queueSize = 256

// Bus is a single-writer, many-reader session log.
//
// Publish may be called from any goroutine. One goroutine drains the queue,
// numbers each event, appends it to the history and fans it out, so the log
// order is the emission order and no two appends interleave.
type Bus struct {
	pubMu  sync.RWMutex
	closed bool
	in     chan Event
	done   chan struct{}

	stateMu  sync.Mutex
	finished bool
	seq      uint64
	history  []Event
	subs     map[*Subscription]struct{}
}

// NewBus creates a bus and starts its queue goroutine.
func NewBus() *Bus {
	b := &Bus{
		in:   make(chan Event, queueSize),
		done: make(chan struct{}),
		subs: make(map[*Subscription]struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	defer close(b.done)

	for e := range b.in {
		if e.flush != nil {
			close(e.flush)
			continue
		}
		b.stateMu.Lock()
		b.seq++
		e.Seq = b.seq
		b.history = append(b.history, e)
		for s := range b.subs {
			s.push(e)
		}
		b.stateMu.Unlock()
	}

	b.stateMu.Lock()
	for s := range b.subs {
		s.end()
	}
	b.subs = make(map[*Subscription]struct{})
	b.finished = true
	b.stateMu.Unlock()
}

func (b *Bus) enqueue(e Event) bool {
	b.pubMu.RLock()
	defer b.pubMu.RUnlock()
	if b.closed {
		return false
	}
	b.in <- e
	return true
}

// Publish appends e to the log. Events published after Close are dropped.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.enqueue(e)
}

// Log appends an informational line from source.
func (b *Bus) Log(source, message string) {
	b.Publish(Event{Kind: KindLog, Level: LevelInfo, Source: source, Message: message})
}

// Logf appends a formatted informational line from source.
func (b *Bus) Logf(source, format string, args ...any) {
	b.Log(source, fmt.Sprintf(format, args...))
}

// Warn appends a warning line from source.
func (b *Bus) Warn(source, message string) {
	b.Publish(Event{Kind: KindLog, Level: LevelWarn, Source: source, Message: message})
}

// Error appends an error event from source.
func (b *Bus) Error(source string, err error) {
	b.Publish(Event{Kind: KindError, Level: LevelError, Source: source, Message: err.Error()})
}

// Writer returns an io.Writer that appends every Write as one log line
// tagged with source.
func (b *Bus) Writer(source string) io.Writer {
	return &busWriter{bus: b, source: source}
}

type busWriter struct {
	bus    *Bus
	source string
}

func (w *busWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.bus.Log(w.source, string(p))
	}
	return len(p), nil
}

// Flush blocks until every event published before the call is in the
// history and queued for subscribers.
func (b *Bus) Flush() {
	ch := make(chan struct{})
	if !b.enqueue(Event{flush: ch}) {
		return
	}
	<-ch
}

// History returns a copy of the log.
func (b *Bus) History() []Event {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return append([]Event(nil), b.history...)
}

// Subscribe returns a subscription that first replays the history, then
// receives every later event in order. Slow readers never block the bus.
func (b *Bus) Subscribe() *Subscription {
	s := newSubscription(b)

	b.stateMu.Lock()
	s.queue = append(s.queue, b.history...)
	if b.finished {
		s.ended = true
	} else {
		b.subs[s] = struct{}{}
	}
	b.stateMu.Unlock()

	go s.pump()
	return s
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.stateMu.Lock()
	delete(b.subs, s)
	b.stateMu.Unlock()
}

// Count returns the current number of subscribers.
func (b *Bus) Count() int {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return len(b.subs)
}

// Close stops accepting events, drains the queue and ends all subscriptions
// once they have delivered what was already queued. It is idempotent.
func (b *Bus) Close() {
	b.pubMu.Lock()
	if b.closed {
		b.pubMu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	close(b.in)
	b.pubMu.Unlock()
	<-b.done
}

// Subscription is one reader of a Bus.
type Subscription struct {
	bus  *Bus
	out  chan Event
	wake chan struct{}
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	queue []Event
	ended bool
}

func newSubscription(b *Bus) *Subscription {
	return &Subscription{
		bus:  b,
		out:  make(chan Event),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// C returns the event channel. It is closed after Close, or after the bus
// closes and every queued event was delivered.
func (s *Subscription) C() <-chan Event {
	return s.out
}

// Close stops delivery and detaches from the bus.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.unsubscribe(s)
		close(s.done)
	})
}

func (s *Subscription) push(e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			ended := s.ended
			s.mu.Unlock()
			if ended {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.done:
			return
		}
	}
}
