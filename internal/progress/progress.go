// Package progress carries fire-and-forget stage and percentage events out
// of the pipeline.
package progress

import (
	"sync"
	"time"
)

// Stage names and the percentage reported when each one finishes.
const (
	StageParse     = "parse"
	StageDedupe    = "dedupe"
	StageClassify  = "classify"
	StageExclude   = "exclude"
	StageAggregate = "aggregate"
	StageFinalize  = "finalize"
)

// Percent maps each stage to its completion percentage.
var Percent = map[string]int{
	StageParse:     20,
	StageDedupe:    30,
	StageClassify:  70,
	StageExclude:   80,
	StageAggregate: 95,
	StageFinalize:  100,
}

// Event is one progress notification.
type Event struct {
	Percent int           `json:"percent"`
	Stage   string        `json:"stage"`
	Elapsed time.Duration `json:"elapsed"`
}

// Reporter receives events. Implementations must not block for long; the
// pipeline does not wait on them.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// Nop discards every event.
var Nop Reporter = ReporterFunc(func(Event) {})

// Guard wraps a Reporter so percentages never decrease, stay within 0..100
// and a panicking reporter cannot take the caller down.
type Guard struct {
	next  Reporter
	mu    sync.Mutex
	last  int
	start time.Time
}

// NewGuard wraps next; a nil next behaves like Nop.
func NewGuard(next Reporter) *Guard {
	if next == nil {
		next = Nop
	}
	return &Guard{next: next, last: -1, start: time.Now()}
}

// Report forwards e with a clamped, monotonic percentage.
func (g *Guard) Report(e Event) {
	g.mu.Lock()
	if e.Percent < 0 {
		e.Percent = 0
	}
	if e.Percent > 100 {
		e.Percent = 100
	}
	if e.Percent < g.last {
		e.Percent = g.last
	}
	g.last = e.Percent
	if e.Elapsed == 0 {
		e.Elapsed = time.Since(g.start)
	}
	g.mu.Unlock()

	defer func() { _ = recover() }()
	g.next.Report(e)
}

// Stage reports the completion of a named stage.
func (g *Guard) Stage(name string) {
	g.Report(Event{Percent: Percent[name], Stage: name})
}

// Channel forwards events to a buffered channel, dropping them when the
// buffer is full. The producer calls Close once it is done reporting.
type Channel struct {
	C       chan Event
	mu      sync.Mutex
	dropped int
	closed  bool
}

// NewChannel returns a Channel with the given buffer size.
func NewChannel(size int) *Channel {
	return &Channel{C: make(chan Event, size)}
}

func (c *Channel) Report(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.dropped++
		return
	}
	select {
	case c.C <- e:
	default:
		c.dropped++
	}
}

// Close closes C so a draining reader stops. Later reports are dropped.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.C)
	}
}

// Dropped reports how many events were discarded.
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
