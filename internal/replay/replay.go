// Package replay implements the demo replay system: a time-gated playback
// wrapper around the dem package's lazy opcode iterator, plus the
// translation table from decoded demo events into entity-store mutations
// and side-effect events.
package replay

import (
	"time"

	"github.com/ernie/quakecore/internal/formats/dem"
)

// Playback wraps a fully materialized event stream with an accumulated
// duration and a due-event cursor. The underlying decoder is a pull
// iterator; this type is the stateful object that buffers next-due events
// for tick consumption, so decoder advancement is never coupled to
// wall-clock time directly.
type Playback struct {
	events   []dem.Event
	cursor   int
	duration time.Duration
}

// NewPlayback drains demo's event iterator into a buffered sequence and
// returns a Playback positioned at the start.
func NewPlayback(demo *dem.Demo) (*Playback, error) {
	it := dem.NewEventIterator(demo)
	var events []dem.Event
	for {
		ev, err := it.Next()
		if err != nil {
			return nil, err
		}
		if ev == nil {
			break
		}
		events = append(events, *ev)
	}
	return &Playback{events: events}, nil
}

// Exhausted reports whether every event has been yielded by Advance.
func (p *Playback) Exhausted() bool {
	return p.cursor >= len(p.events)
}

func (p *Playback) peek() (*dem.Event, bool) {
	if p.cursor >= len(p.events) {
		return nil, false
	}
	return &p.events[p.cursor], true
}

// Advance accumulates dt into the playback's duration, then releases every
// event gated by a Time opcode whose timestamp the updated duration has now
// reached, followed by the run of non-Time events up to (but not including)
// the next unreached Time gate or end-of-stream.
func (p *Playback) Advance(dt time.Duration) []dem.Event {
	p.duration += dt

	for {
		ev, ok := p.peek()
		if !ok || ev.Kind != dem.OpTime {
			break
		}
		if p.duration < time.Duration(ev.Time*float32(time.Second)) {
			return nil
		}
		p.cursor++
	}

	var due []dem.Event
	for {
		ev, ok := p.peek()
		if !ok || ev.Kind == dem.OpTime {
			break
		}
		due = append(due, *ev)
		p.cursor++
	}
	return due
}
