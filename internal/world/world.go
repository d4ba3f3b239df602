// Package world owns one simulation instance: its lifecycle state machine,
// per-connection states, fixed-floor tick loop, and map loading.
package world

import (
	"fmt"
	"time"

	"github.com/ernie/quakecore/internal/catalog"
	"github.com/ernie/quakecore/internal/ecs"
	"github.com/ernie/quakecore/internal/formats/bsp"
	"github.com/ernie/quakecore/internal/formats/dem"
	"github.com/ernie/quakecore/internal/protoerr"
	"github.com/ernie/quakecore/internal/replay"
)

// State is the world's coarse lifecycle state.
type State int

const (
	Stopped State = iota
	Running
)

// ConnState is a connection's membership state within a world.
type ConnState int

const (
	Suspended ConnState = iota
	Established
)

// tickFloor is the fixed-ish authoritative tick lower bound (10 Hz).
const tickFloor = 100 * time.Millisecond

// Mode selects which decoder and system schedule a Load call installs.
type Mode struct {
	Kind string // "demo", "campaign", "deathmatch"
	Path string
}

func ModeDemo(path string) Mode       { return Mode{Kind: "demo", Path: path} }
func ModeCampaign(path string) Mode   { return Mode{Kind: "campaign", Path: path} }
func ModeDeathmatch(path string) Mode { return Mode{Kind: "deathmatch", Path: path} }

// Snapshot is the per-tick value a Step returns: every live entity's
// format-level marker plus the events batch committed during that tick.
type Snapshot struct {
	Entities []ecs.EntityMarker
	Events   []any
}

// World owns one simulation instance. No World is ever touched by more
// than one goroutine at a time; the Shard Router enforces this by routing
// every message for a given id to the same worker.
type World struct {
	ID      WorldID
	catalog *catalog.Catalog

	state       State
	connections map[ConnectionID]ConnState
	players     map[ConnectionID]PlayerID
	playerEnt   map[PlayerID]ecs.EntityID

	ecsWorld   *ecs.World
	scheduler  *ecs.Scheduler
	playback   *replay.Playback
	translator *replay.Translator

	nextEntityID uint16

	lastTick time.Time
	mapName  string
}

// New returns a fresh, Stopped world with no connections.
func New(id WorldID, cat *catalog.Catalog) *World {
	return &World{
		ID:          id,
		catalog:     cat,
		state:       Stopped,
		connections: make(map[ConnectionID]ConnState),
		players:     make(map[ConnectionID]PlayerID),
		playerEnt:   make(map[PlayerID]ecs.EntityID),
		ecsWorld:    ecs.NewWorld(),
		scheduler:   &ecs.Scheduler{},
	}
}

// State returns the world's current lifecycle state.
func (w *World) State() State { return w.state }

// MapName returns the most recently loaded map identifier.
func (w *World) MapName() string { return w.mapName }

// establishedCount reports how many connections are Established.
func (w *World) establishedCount() int {
	n := 0
	for _, s := range w.connections {
		if s == Established {
			n++
		}
	}
	return n
}

func (w *World) refreshState() {
	if w.establishedCount() > 0 {
		w.state = Running
	} else {
		w.state = Stopped
	}
}

// OnJoin mints a new PlayerID, spawns a player entity carrying an
// EntityMarker (so it appears in Step's Snapshot like any other entity)
// plus a default transform, and records the connection as Suspended.
func (w *World) OnJoin(conn ConnectionID) PlayerID {
	player := NewPlayerID()
	w.connections[conn] = Suspended
	w.players[conn] = player
	w.nextEntityID++
	e := w.ecsWorld.Spawn()
	ecs.Attach(w.ecsWorld, e, ecs.EntityMarker{ID: w.nextEntityID})
	ecs.Attach(w.ecsWorld, e, ecs.Transform{})
	w.playerEnt[player] = e
	return player
}

// OnLeave removes the connection and despawns its player entity. If no
// Established connections remain, the world flips to Stopped.
func (w *World) OnLeave(conn ConnectionID, player PlayerID) {
	delete(w.connections, conn)
	delete(w.players, conn)
	if e, ok := w.playerEnt[player]; ok {
		w.ecsWorld.Despawn(e)
		delete(w.playerEnt, player)
	}
	w.refreshState()
}

// OnPlay/OnPause/OnResume/OnStop transition a connection's membership
// state; invalid transitions are silently ignored per the error handling
// policy's "logged and ignored" rule for command errors.
func (w *World) OnPlay(conn ConnectionID) {
	if _, ok := w.connections[conn]; !ok {
		return
	}
	w.connections[conn] = Established
	w.refreshState()
}

func (w *World) OnResume(conn ConnectionID) { w.OnPlay(conn) }

func (w *World) OnPause(conn ConnectionID) {
	if _, ok := w.connections[conn]; !ok {
		return
	}
	w.connections[conn] = Suspended
	w.refreshState()
}

func (w *World) OnStop(conn ConnectionID) { w.OnPause(conn) }

// Load decodes mode's backing asset and installs the matching system
// schedule, clearing all previously spawned entities first. A decoder
// failure surfaces as a protoerr InvalidFormat/NotFound error; the world is
// left unchanged on failure.
func (w *World) Load(mode Mode) error {
	const op = "world.Load"

	data, err := w.catalog.Read(mode.Path)
	if err != nil {
		return protoerr.Wrap(protoerr.KindNotFound, op, err)
	}

	switch mode.Kind {
	case "demo":
		demo, err := dem.Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		playback, err := replay.NewPlayback(demo)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		w.resetEntities()
		w.playback = playback
		w.translator = replay.NewTranslator(w.ecsWorld)
		w.scheduler = &ecs.Scheduler{}
		w.scheduler.Add(w.demoReplaySystem)

		it := dem.NewEventIterator(demo)
		for {
			ev, err := it.Next()
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			if ev == nil {
				break
			}
			if ev.Kind == dem.OpServerInfo && ev.ServerInfo != nil {
				w.mapName = ev.ServerInfo.MapName
				break
			}
		}

	case "campaign", "deathmatch":
		level, err := bsp.Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		w.resetEntities()
		w.playback = nil
		w.scheduler = &ecs.Scheduler{}
		for _, ent := range level.Entities {
			if ent.Classname == "info_player_start" || ent.Classname == "info_player_deathmatch" {
				w.mapName = mode.Path
			}
		}

	default:
		return fmt.Errorf("%s: unknown mode %q", op, mode.Kind)
	}

	return nil
}

func (w *World) resetEntities() {
	for _, e := range w.ecsWorld.Entities() {
		w.ecsWorld.Despawn(e)
	}
	w.playerEnt = make(map[PlayerID]ecs.EntityID)
	w.nextEntityID = 0
}

func (w *World) demoReplaySystem(_ *ecs.World, res *ecs.Resources) {
	if w.playback == nil {
		return
	}
	due := w.playback.Advance(res.DeltaTime)
	for _, ev := range due {
		w.translator.Apply(ev, res.Events)
	}
}

// Step advances the simulation by one tick if the world is runnable and the
// tick floor has elapsed, returning the resulting snapshot.
func (w *World) Step() (Snapshot, bool) {
	if len(w.connections) == 0 || w.state == Stopped {
		return Snapshot{}, false
	}
	now := time.Now()
	var dt time.Duration
	if w.lastTick.IsZero() {
		dt = tickFloor
	} else {
		dt = now.Sub(w.lastTick)
	}
	if dt < tickFloor {
		return Snapshot{}, false
	}
	w.lastTick = now

	events := &ecs.EventWriter{}
	res := &ecs.Resources{DeltaTime: dt, Now: now, Events: events}
	w.scheduler.Run(w.ecsWorld, res)

	var markers []ecs.EntityMarker
	for _, e := range w.ecsWorld.Entities() {
		if m, ok := ecs.Get[ecs.EntityMarker](w.ecsWorld, e); ok {
			markers = append(markers, m)
		}
	}

	return Snapshot{Entities: markers, Events: events.Commit()}, true
}
