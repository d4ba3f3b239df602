package replay

import (
	"testing"
	"time"

	"github.com/ernie/quakecore/internal/formats/dem"
)

func newPlaybackFromEvents(events []dem.Event) *Playback {
	return &Playback{events: events}
}

func TestAdvanceReleasesEventsUpToAndExcludingNextTimeGate(t *testing.T) {
	events := []dem.Event{
		{Kind: dem.OpNop},
		{Kind: dem.OpTime, Time: 0.1},
		{Kind: dem.OpPrint, Text: "a"},
		{Kind: dem.OpTime, Time: 0.2},
		{Kind: dem.OpPrint, Text: "b"},
	}
	p := newPlaybackFromEvents(events)

	// duration increments first: 0 + 100ms = 100ms, which reaches the first
	// Time gate (0.1s) exactly, releasing the leading OpNop plus everything
	// up to (not including) the next OpTime gate.
	due := p.Advance(100 * time.Millisecond)
	if len(due) != 1 || due[0].Kind != dem.OpNop {
		t.Fatalf("first Advance due = %+v, want [OpNop]", due)
	}

	// duration is now 150ms, which also reaches the first gate (0.1s) that
	// sat at the front of the queue (it only gated the events behind it, not
	// itself), releasing OpPrint "a" up to the still-unreached second gate.
	due = p.Advance(50 * time.Millisecond)
	if len(due) != 1 || due[0].Kind != dem.OpPrint || due[0].Text != "a" {
		t.Fatalf("second Advance due = %+v, want [OpPrint a]", due)
	}

	// duration now 200ms, reaching the second gate and releasing OpPrint "b".
	due = p.Advance(50 * time.Millisecond)
	if len(due) != 1 || due[0].Kind != dem.OpPrint || due[0].Text != "b" {
		t.Fatalf("third Advance due = %+v, want [OpPrint b]", due)
	}
}

func TestAdvanceWithNoTimeGatesReleasesEverythingImmediately(t *testing.T) {
	events := []dem.Event{
		{Kind: dem.OpNop},
		{Kind: dem.OpDisconnect},
	}
	p := newPlaybackFromEvents(events)

	due := p.Advance(0)
	if len(due) != 2 {
		t.Fatalf("Advance due = %+v, want both events (no Time gate blocks them)", due)
	}
	if !p.Exhausted() {
		t.Fatalf("Exhausted() = false after releasing every event")
	}
}

func TestAdvanceAccumulatesDurationAcrossCalls(t *testing.T) {
	events := []dem.Event{
		{Kind: dem.OpTime, Time: 1.0},
		{Kind: dem.OpNop},
	}
	p := newPlaybackFromEvents(events)

	due := p.Advance(400 * time.Millisecond)
	if len(due) != 0 {
		t.Fatalf("Advance(400ms) due = %+v, want none (400ms < 1s gate)", due)
	}
	due = p.Advance(400 * time.Millisecond)
	if len(due) != 0 {
		t.Fatalf("Advance(+400ms=800ms) due = %+v, want none (800ms < 1s gate)", due)
	}
	due = p.Advance(400 * time.Millisecond)
	if len(due) != 1 || due[0].Kind != dem.OpNop {
		t.Fatalf("Advance(+400ms=1200ms) due = %+v, want [OpNop] (gate reached)", due)
	}
}

func TestExhaustedReportsFalseUntilEveryEventReleased(t *testing.T) {
	events := []dem.Event{{Kind: dem.OpNop}, {Kind: dem.OpNop}}
	p := newPlaybackFromEvents(events)

	if p.Exhausted() {
		t.Fatalf("Exhausted() = true before any Advance call")
	}
	p.Advance(0)
	if !p.Exhausted() {
		t.Fatalf("Exhausted() = false after releasing every event")
	}
}

func TestNewPlaybackDrainsEventIterator(t *testing.T) {
	// A single-track, single-block demo with one OpNop payload: NewPlayback
	// should buffer the synthetic SetAngle plus the OpNop.
	buf := append([]byte("1\n"), buildTestBlock([]byte{byte(dem.OpNop)})...)
	demo, err := dem.Decode(buf)
	if err != nil {
		t.Fatalf("dem.Decode: %v", err)
	}

	p, err := NewPlayback(demo)
	if err != nil {
		t.Fatalf("NewPlayback: %v", err)
	}
	if len(p.events) != 2 {
		t.Fatalf("len(p.events) = %d, want 2 (synthetic SetAngle + OpNop)", len(p.events))
	}
}

func buildTestBlock(payload []byte) []byte {
	buf := make([]byte, 4+12+len(payload))
	buf[0] = byte(len(payload))
	copy(buf[16:], payload)
	return buf
}
