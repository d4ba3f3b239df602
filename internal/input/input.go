// Package input implements the binding catalog: a declarative mapping from
// timed input sources to intents, evaluated via single/chord/sequence
// triggers, plus the console commands (bind/unbind/unbindall) that edit it.
package input

import (
	"strings"
	"time"

	"github.com/ernie/quakecore/internal/console"
)

// Source is a canonical input source name (e.g. "key_w", "mouse1").
type Source string

// TriggerKind selects how a Binding's sources must be pressed to fire.
type TriggerKind int

const (
	Single TriggerKind = iota
	Chord
	Sequence
)

// Trigger describes the pressed-source condition for one Binding.
type Trigger struct {
	Kind     TriggerKind
	Sources  []Source
	Duration time.Duration // meaningful only for Sequence
}

// Binding pairs a trigger condition with the intent it produces.
type Binding struct {
	Intent  string
	Trigger Trigger
}

// Binder holds the pressed-source set, the source-alias table, the ordered
// binding catalog, and the pending intents queue consumed once per frame by
// the host.
type Binder struct {
	console *console.Console

	aliases  map[Source]Source
	bindings []Binding

	pressedOrder []Source
	pressedAt    map[Source]time.Time

	pending []string

	lastMotion struct {
		dx, dy float64
		set    bool
	}
	lastScroll struct {
		dx, dy float64
		set    bool
	}
}

// New constructs a Binder and registers bind/unbind/unbindall on c.
func New(c *console.Console) *Binder {
	b := &Binder{
		console:   c,
		aliases:   make(map[Source]Source),
		pressedAt: make(map[Source]time.Time),
	}
	c.RegisterCommand("bind", b.cmdBind)
	c.RegisterCommand("unbind", b.cmdUnbind)
	c.RegisterCommand("unbindall", b.cmdUnbindAll)
	return b
}

// SetAlias folds from onto to (e.g. both shift keys onto "shift").
func (b *Binder) SetAlias(from, to Source) {
	b.aliases[from] = to
}

func (b *Binder) canonical(s Source) Source {
	if alias, ok := b.aliases[s]; ok {
		return alias
	}
	return s
}

// Press records source s as pressed at now and evaluates the binding
// catalog in declaration order; the first matching trigger's intent is
// appended to the pending queue.
func (b *Binder) Press(s Source, now time.Time) {
	s = b.canonical(s)
	if _, already := b.pressedAt[s]; !already {
		b.pressedOrder = append(b.pressedOrder, s)
	}
	b.pressedAt[s] = now

	for _, binding := range b.bindings {
		if b.matches(binding.Trigger, now) {
			b.pending = append(b.pending, binding.Intent)
			return
		}
	}
}

// Release removes source s (after alias folding) from the pressed set.
func (b *Binder) Release(s Source) {
	s = b.canonical(s)
	delete(b.pressedAt, s)
	for i, p := range b.pressedOrder {
		if p == s {
			b.pressedOrder = append(b.pressedOrder[:i], b.pressedOrder[i+1:]...)
			break
		}
	}
}

func (b *Binder) matches(t Trigger, now time.Time) bool {
	switch t.Kind {
	case Single:
		return len(t.Sources) == 1 && len(b.pressedOrder) == 1 && b.pressedOrder[0] == t.Sources[0]
	case Chord:
		for _, src := range t.Sources {
			if _, ok := b.pressedAt[src]; !ok {
				return false
			}
		}
		return true
	case Sequence:
		for _, src := range t.Sources {
			at, ok := b.pressedAt[src]
			if !ok || now.Sub(at) > t.Duration {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// DrainIntents returns and clears the pending intents queue.
func (b *Binder) DrainIntents() []string {
	out := b.pending
	b.pending = nil
	return out
}

// RecordMotion stores the latest relative mouse motion sample. It is
// intentionally not consumed by any trigger in the current design; the
// binding model only reacts to discrete source presses.
func (b *Binder) RecordMotion(dx, dy float64) {
	b.lastMotion.dx, b.lastMotion.dy = dx, dy
	b.lastMotion.set = true
}

// RecordScroll stores the latest scroll delta sample, with the same
// intentionally-unconsumed status as RecordMotion.
func (b *Binder) RecordScroll(dx, dy float64) {
	b.lastScroll.dx, b.lastScroll.dy = dx, dy
	b.lastScroll.set = true
}

// LastMotion returns the most recent RecordMotion sample, if any.
func (b *Binder) LastMotion() (dx, dy float64, ok bool) {
	return b.lastMotion.dx, b.lastMotion.dy, b.lastMotion.set
}

// LastScroll returns the most recent RecordScroll sample, if any.
func (b *Binder) LastScroll() (dx, dy float64, ok bool) {
	return b.lastScroll.dx, b.lastScroll.dy, b.lastScroll.set
}

// SetBindings replaces the binding catalog wholesale, used when loading
// bindings.yaml.
func (b *Binder) SetBindings(bindings []Binding) {
	b.bindings = bindings
}

// Bindings returns the current binding catalog.
func (b *Binder) Bindings() []Binding { return b.bindings }

func (b *Binder) cmdBind(_ *console.Console, args []string) {
	if len(args) < 2 {
		return
	}
	src := Source(args[0])
	expansion := strings.Join(args[1:], " ")
	// bind <source> "<intent>[; <intent>...]" treats a bound expansion as a
	// Single-trigger binding whose intent is the raw expansion text; a
	// richer console-script expansion is handled by the console itself once
	// the intent fires into a command line.
	for i, binding := range b.bindings {
		if binding.Trigger.Kind == Single && len(binding.Trigger.Sources) == 1 && binding.Trigger.Sources[0] == src {
			b.bindings[i].Intent = expansion
			return
		}
	}
	b.bindings = append(b.bindings, Binding{
		Intent:  expansion,
		Trigger: Trigger{Kind: Single, Sources: []Source{src}},
	})
}

func (b *Binder) cmdUnbind(_ *console.Console, args []string) {
	if len(args) == 0 {
		return
	}
	src := Source(args[0])
	filtered := b.bindings[:0]
	for _, binding := range b.bindings {
		if binding.Trigger.Kind == Single && len(binding.Trigger.Sources) == 1 && binding.Trigger.Sources[0] == src {
			continue
		}
		filtered = append(filtered, binding)
	}
	b.bindings = filtered
}

func (b *Binder) cmdUnbindAll(_ *console.Console, _ []string) {
	b.bindings = nil
}
