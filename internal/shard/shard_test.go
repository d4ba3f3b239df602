package shard

import (
	"testing"
	"time"

	"github.com/ernie/quakecore/internal/catalog"
	"github.com/ernie/quakecore/internal/world"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Open(t.TempDir())
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	return cat
}

func TestNewDefaultsNonPositiveShardCountToAtLeastOne(t *testing.T) {
	r := New(0, newTestCatalog(t), nil)
	if r.ShardCount() < 1 {
		t.Fatalf("ShardCount() = %d, want >= 1", r.ShardCount())
	}
}

func TestNewHonorsExplicitShardCount(t *testing.T) {
	r := New(4, newTestCatalog(t), nil)
	if r.ShardCount() != 4 {
		t.Fatalf("ShardCount() = %d, want 4", r.ShardCount())
	}
}

func TestSameWorldIDAlwaysRoutesToSameShard(t *testing.T) {
	r := New(4, newTestCatalog(t), nil)
	id := world.WorldID(7)
	if r.indexFor(id) != r.indexFor(id) {
		t.Fatalf("indexFor(%d) not stable across calls", id)
	}
}

func TestSpawnIfAbsentReturnsExistingWorldWithoutResetting(t *testing.T) {
	r := New(2, newTestCatalog(t), nil)
	id := world.WorldID(1)

	w1 := r.Spawn(id)
	w1.OnJoin("conn-1")
	w1.OnPlay("conn-1")

	w2 := r.SpawnIfAbsent(id)
	if w2 != w1 {
		t.Fatalf("SpawnIfAbsent returned a different *World for an already-spawned id")
	}
	if w2.State() != world.Running {
		t.Fatalf("State() = %v, want Running (SpawnIfAbsent must not reset an existing world)", w2.State())
	}
}

func TestSpawnIfAbsentCreatesWorldWhenNoneExists(t *testing.T) {
	r := New(2, newTestCatalog(t), nil)
	id := world.WorldID(5)

	w := r.SpawnIfAbsent(id)
	if w == nil {
		t.Fatalf("SpawnIfAbsent returned nil for an absent id")
	}
	if w.State() != world.Stopped {
		t.Fatalf("State() = %v, want Stopped for a freshly created world", w.State())
	}
}

func TestDespawnRemovesWorldFromShard(t *testing.T) {
	r := New(2, newTestCatalog(t), nil)
	id := world.WorldID(3)
	w1 := r.Spawn(id)
	w1.OnJoin("conn-1")
	w1.OnPlay("conn-1")

	r.Despawn(id)

	w2 := r.SpawnIfAbsent(id)
	if w2 == w1 {
		t.Fatalf("SpawnIfAbsent after Despawn returned the old *World instance")
	}
	if w2.State() != world.Stopped {
		t.Fatalf("State() = %v after respawn, want Stopped (old world's state must not leak through)", w2.State())
	}
}

// TestRouteDeliversToHandlerOnSameShardWorld exercises the end-to-end
// Spawn -> Route -> Run -> handle -> Outbound path.
func TestRouteDeliversToHandlerOnSameShardWorld(t *testing.T) {
	r := New(1, newTestCatalog(t), nil)
	id := world.WorldID(1)
	r.Spawn(id)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		r.Run(stop, func(w *world.World, msg InboundMessage, out chan<- OutboundMessage) {
			out <- OutboundMessage{ConnectionID: msg.ConnectionID, Payload: "handled:" + msg.Payload.(string)}
		})
		close(done)
	}()

	r.Route(InboundMessage{WorldID: id, ConnectionID: "conn-1", Payload: "ping"})

	select {
	case msg := <-r.Outbound(0):
		if msg.Payload != "handled:ping" {
			t.Fatalf("Outbound payload = %v, want handled:ping", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for outbound message")
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after stop was closed")
	}
}

// TestRouteToUnknownWorldDoesNotBlockOrPanic exercises the "message for
// unknown world" warn-and-continue path: a Route call for a world_id never
// Spawned must not hang the shard or crash the handler goroutine.
func TestRouteToUnknownWorldDoesNotBlockOrPanic(t *testing.T) {
	r := New(1, newTestCatalog(t), nil)

	stop := make(chan struct{})
	done := make(chan struct{})
	called := make(chan struct{}, 1)
	go func() {
		r.Run(stop, func(w *world.World, msg InboundMessage, out chan<- OutboundMessage) {
			called <- struct{}{}
		})
		close(done)
	}()

	r.Route(InboundMessage{WorldID: world.WorldID(99), ConnectionID: "conn-1", Payload: "ping"})

	select {
	case <-called:
		t.Fatalf("handle was called for an unrouted world id")
	case <-time.After(100 * time.Millisecond):
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after stop was closed")
	}
}

func TestPollOutboundDrainsEachShardOnce(t *testing.T) {
	r := New(2, newTestCatalog(t), nil)
	r.shards[0].outbound <- OutboundMessage{ConnectionID: "a", Payload: 1}
	r.shards[0].outbound <- OutboundMessage{ConnectionID: "a", Payload: 2}
	r.shards[1].outbound <- OutboundMessage{ConnectionID: "b", Payload: 3}

	var drained []OutboundMessage
	r.PollOutbound(func(m OutboundMessage) { drained = append(drained, m) })

	if len(drained) != 2 {
		t.Fatalf("PollOutbound drained %d messages, want 2 (one per shard per call)", len(drained))
	}
	if drained[0].ConnectionID != "a" || drained[1].ConnectionID != "b" {
		t.Fatalf("drained = %+v, want shard 0's message before shard 1's", drained)
	}

	// A second call picks up shard 0's remaining queued message.
	drained = nil
	r.PollOutbound(func(m OutboundMessage) { drained = append(drained, m) })
	if len(drained) != 1 || drained[0].Payload != 2 {
		t.Fatalf("second PollOutbound = %+v, want shard 0's remaining message", drained)
	}
}
