// Package shard implements the multi-threaded router that partitions world
// instances across a fixed set of worker goroutines by world id, with a
// fairness guarantee that no one shard's outbound queue can starve another.
package shard

import (
	"log/slog"
	"runtime"
	"sync"

	"github.com/ernie/quakecore/internal/catalog"
	"github.com/ernie/quakecore/internal/world"
)

// InboundMessage is a routed wire message tagged with the connection it
// arrived on.
type InboundMessage struct {
	WorldID      world.WorldID
	ConnectionID world.ConnectionID
	Payload      any
}

// OutboundMessage is a message a shard produced for delivery back to the
// wire.
type OutboundMessage struct {
	ConnectionID world.ConnectionID
	Payload      any
}

type shardState struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
	worlds   map[world.WorldID]*world.World
}

// Router owns N worker goroutines, each running a disjoint partition of
// worlds selected by world_id mod N.
type Router struct {
	shards  []*shardState
	catalog *catalog.Catalog
	log     *slog.Logger

	wg sync.WaitGroup
}

// New constructs a Router with n shards (n <= 0 defaults to host
// parallelism, minimum 1), sharing cat by reference across every worker.
func New(n int, cat *catalog.Catalog, log *slog.Logger) *Router {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n < 1 {
		n = 1
	}
	r := &Router{catalog: cat, log: log}
	for i := 0; i < n; i++ {
		r.shards = append(r.shards, &shardState{
			inbound:  make(chan InboundMessage, 256),
			outbound: make(chan OutboundMessage, 256),
			worlds:   make(map[world.WorldID]*world.World),
		})
	}
	return r
}

func (r *Router) indexFor(id world.WorldID) int {
	return int(uint64(id) % uint64(len(r.shards)))
}

// Spawn registers a new world under its shard and returns it.
func (r *Router) Spawn(id world.WorldID) *world.World {
	s := r.shards[r.indexFor(id)]
	w := world.New(id, r.catalog)
	s.worlds[id] = w
	return w
}

// Despawn removes a world from its shard.
func (r *Router) Despawn(id world.WorldID) {
	s := r.shards[r.indexFor(id)]
	delete(s.worlds, id)
}

// SpawnIfAbsent registers a new world under id only if none exists yet,
// returning the (possibly pre-existing) world either way. Callers that
// route a message for a world_id they haven't explicitly Spawned (e.g. a
// transport accepting a Join for a fresh world_id) use this to avoid
// silently resetting an already-running world.
func (r *Router) SpawnIfAbsent(id world.WorldID) *world.World {
	s := r.shards[r.indexFor(id)]
	if w, ok := s.worlds[id]; ok {
		return w
	}
	w := world.New(id, r.catalog)
	s.worlds[id] = w
	return w
}

// Route enqueues msg onto the shard owning msg.WorldID. Within a shard,
// messages for the same world_id are delivered in submission order; across
// world-ids no ordering is promised.
func (r *Router) Route(msg InboundMessage) {
	s := r.shards[r.indexFor(msg.WorldID)]
	s.inbound <- msg
}

// Outbound returns the channel a caller should drain for messages produced
// by shard i.
func (r *Router) Outbound(i int) <-chan OutboundMessage {
	return r.shards[i].outbound
}

// ShardCount returns the number of worker shards.
func (r *Router) ShardCount() int { return len(r.shards) }

// Run starts every shard worker goroutine and blocks until stop is closed.
func (r *Router) Run(stop <-chan struct{}, handle func(*world.World, InboundMessage, chan<- OutboundMessage)) {
	for i, s := range r.shards {
		r.wg.Add(1)
		go r.runShard(i, s, stop, handle)
	}
	r.wg.Wait()
}

func (r *Router) runShard(i int, s *shardState, stop <-chan struct{}, handle func(*world.World, InboundMessage, chan<- OutboundMessage)) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			// A worker panic is fatal: log a structured entry, then
			// re-panic so the process crashes visibly instead of wedging.
			if r.log != nil {
				r.log.Error("shard worker panicked", "shard", i, "panic", rec)
			}
			panic(rec)
		}
	}()

	for {
		select {
		case <-stop:
			return
		case msg := <-s.inbound:
			w, ok := s.worlds[msg.WorldID]
			if !ok {
				if r.log != nil {
					r.log.Warn("message for unknown world", "world_id", msg.WorldID)
				}
				continue
			}
			handle(w, msg, s.outbound)
		}
	}
}

// PollOutbound drains every shard's outbound queue once, in shard order, so
// repeated calls from the router/main thread give each shard a fair turn
// rather than reading one shard to exhaustion before the next.
func (r *Router) PollOutbound(drain func(OutboundMessage)) {
	for _, s := range r.shards {
		select {
		case msg := <-s.outbound:
			drain(msg)
		default:
		}
	}
}
