package world

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/ernie/quakecore/internal/catalog"
	"github.com/ernie/quakecore/internal/ecs"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	cat, err := catalog.Open(dir)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	return cat
}

func writeAsset(t *testing.T, cat *catalog.Catalog, name string, data []byte) {
	t.Helper()
	path := filepath.Join(cat.BaseDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// buildBlock frames a payload with a zero view-angle vector and a 4-byte
// little-endian size prefix, matching dem.Decode's block layout.
func buildBlock(payload []byte) []byte {
	buf := make([]byte, 4+12+len(payload))
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(payload)))
	copy(buf[16:], payload)
	return buf
}

// buildServerInfoPayload assembles a minimal svc_serverinfo opcode record:
// opcode byte, protocol (must be 15), maxclients, gametype, NUL-terminated
// mapname, then an empty models list and an empty sounds list (each
// terminated by a bare NUL).
func buildServerInfoPayload(mapName string) []byte {
	buf := []byte{0x0b} // OpServerInfo
	var proto [4]byte
	binary.LittleEndian.PutUint32(proto[:], 15)
	buf = append(buf, proto[:]...)
	buf = append(buf, 0, 0) // maxclients, gametype
	buf = append(buf, []byte(mapName)...)
	buf = append(buf, 0) // mapname terminator
	buf = append(buf, 0) // empty models list terminator
	buf = append(buf, 0) // empty sounds list terminator
	return buf
}

func buildDemo(t *testing.T, mapName string) []byte {
	t.Helper()
	payload := buildServerInfoPayload(mapName)
	block := buildBlock(payload)
	buf := append([]byte("1\n"), block...)
	return buf
}

func TestOnJoinSpawnsPlayerEntityAndSetsSuspended(t *testing.T) {
	w := New(NewWorldID(), newTestCatalog(t))
	player := w.OnJoin("conn-1")
	if player == 0 {
		t.Fatalf("OnJoin returned zero PlayerID")
	}
	if w.State() != Stopped {
		t.Fatalf("State() = %v after OnJoin alone, want Stopped (not yet Established)", w.State())
	}

	e, ok := w.playerEnt[player]
	if !ok {
		t.Fatalf("no ecs.EntityID recorded for player %v", player)
	}
	marker, ok := ecs.Get[ecs.EntityMarker](w.ecsWorld, e)
	if !ok {
		t.Fatalf("joined player entity carries no EntityMarker")
	}
	if marker.ID == 0 {
		t.Fatalf("EntityMarker.ID = 0, want a nonzero marker")
	}
}

func TestOnJoinAssignsDistinctMarkersAcrossJoins(t *testing.T) {
	w := New(NewWorldID(), newTestCatalog(t))
	p1 := w.OnJoin("conn-1")
	p2 := w.OnJoin("conn-2")

	m1, _ := ecs.Get[ecs.EntityMarker](w.ecsWorld, w.playerEnt[p1])
	m2, _ := ecs.Get[ecs.EntityMarker](w.ecsWorld, w.playerEnt[p2])
	if m1.ID == m2.ID {
		t.Fatalf("both joined players got EntityMarker.ID = %d, want distinct markers", m1.ID)
	}
}

func TestOnPlayEstablishesConnectionAndRunsState(t *testing.T) {
	w := New(NewWorldID(), newTestCatalog(t))
	w.OnJoin("conn-1")
	w.OnPlay("conn-1")
	if w.State() != Running {
		t.Fatalf("State() = %v after OnPlay, want Running", w.State())
	}
}

func TestOnPauseReturnsToStoppedWhenNoneEstablished(t *testing.T) {
	w := New(NewWorldID(), newTestCatalog(t))
	w.OnJoin("conn-1")
	w.OnPlay("conn-1")
	w.OnPause("conn-1")
	if w.State() != Stopped {
		t.Fatalf("State() = %v after OnPause with no other established conns, want Stopped", w.State())
	}
}

func TestOnPlayIgnoresUnknownConnection(t *testing.T) {
	w := New(NewWorldID(), newTestCatalog(t))
	w.OnPlay("ghost")
	if w.State() != Stopped {
		t.Fatalf("State() = %v after OnPlay on an unjoined connection, want Stopped (ignored)", w.State())
	}
}

func TestOnLeaveDespawnsPlayerAndRefreshesState(t *testing.T) {
	w := New(NewWorldID(), newTestCatalog(t))
	player := w.OnJoin("conn-1")
	w.OnPlay("conn-1")

	w.OnLeave("conn-1", player)
	if w.State() != Stopped {
		t.Fatalf("State() = %v after the only connection left, want Stopped", w.State())
	}
}

func TestStepReturnsFalseWithNoConnections(t *testing.T) {
	w := New(NewWorldID(), newTestCatalog(t))
	if _, ok := w.Step(); ok {
		t.Fatalf("Step() ok = true with zero connections, want false")
	}
}

func TestStepReturnsFalseWhenStopped(t *testing.T) {
	w := New(NewWorldID(), newTestCatalog(t))
	w.OnJoin("conn-1")
	// Suspended, never Established: state stays Stopped.
	if _, ok := w.Step(); ok {
		t.Fatalf("Step() ok = true while Stopped, want false")
	}
}

func TestStepProducesSnapshotOnceEstablished(t *testing.T) {
	w := New(NewWorldID(), newTestCatalog(t))
	w.OnJoin("conn-1")
	w.OnPlay("conn-1")

	// First Step call always passes the tick-floor gate (lastTick is zero).
	// OnJoin attaches an EntityMarker to the player entity, so it appears
	// in the snapshot like any other entity.
	snap, ok := w.Step()
	if !ok {
		t.Fatalf("Step() ok = false on first tick after Establish, want true")
	}
	if len(snap.Entities) != 1 {
		t.Fatalf("len(snap.Entities) = %d, want 1 (joined player)", len(snap.Entities))
	}
}

func TestStepGatesOnTickFloor(t *testing.T) {
	w := New(NewWorldID(), newTestCatalog(t))
	w.OnJoin("conn-1")
	w.OnPlay("conn-1")

	if _, ok := w.Step(); !ok {
		t.Fatalf("first Step() ok = false, want true")
	}
	// Immediately stepping again should be gated by the tick floor.
	if _, ok := w.Step(); ok {
		t.Fatalf("second immediate Step() ok = true, want false (tick floor not elapsed)")
	}
}

func TestLoadDemoSetsMapNameFromServerInfo(t *testing.T) {
	cat := newTestCatalog(t)
	writeAsset(t, cat, "demo1.dem", buildDemo(t, "e1m1"))

	w := New(NewWorldID(), cat)
	if err := w.Load(ModeDemo("demo1.dem")); err != nil {
		t.Fatalf("Load(demo): %v", err)
	}
	if w.MapName() != "e1m1" {
		t.Fatalf("MapName() = %q, want e1m1", w.MapName())
	}
}

func TestLoadDemoMissingAssetIsNotFound(t *testing.T) {
	w := New(NewWorldID(), newTestCatalog(t))
	if err := w.Load(ModeDemo("missing.dem")); err == nil {
		t.Fatalf("Load(missing demo) succeeded, want error")
	}
}

func TestLoadUnknownModeKindErrors(t *testing.T) {
	w := New(NewWorldID(), newTestCatalog(t))
	if err := w.Load(Mode{Kind: "bogus", Path: "x"}); err == nil {
		t.Fatalf("Load with an unknown mode kind succeeded, want error")
	}
}

func TestLoadResetsPreviouslySpawnedEntities(t *testing.T) {
	cat := newTestCatalog(t)
	writeAsset(t, cat, "demo1.dem", buildDemo(t, "e1m1"))

	w := New(NewWorldID(), cat)
	w.OnJoin("conn-1")
	if err := w.Load(ModeDemo("demo1.dem")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(w.ecsWorld.Entities()) != 0 {
		t.Fatalf("entity count = %d after Load, want 0 (resetEntities clears prior spawns)", len(w.ecsWorld.Entities()))
	}
}

func TestModeConstructors(t *testing.T) {
	if m := ModeDemo("a"); m.Kind != "demo" || m.Path != "a" {
		t.Fatalf("ModeDemo = %+v, want Kind=demo Path=a", m)
	}
	if m := ModeCampaign("b"); m.Kind != "campaign" || m.Path != "b" {
		t.Fatalf("ModeCampaign = %+v, want Kind=campaign Path=b", m)
	}
	if m := ModeDeathmatch("c"); m.Kind != "deathmatch" || m.Path != "c" {
		t.Fatalf("ModeDeathmatch = %+v, want Kind=deathmatch Path=c", m)
	}
}

func TestNewPlayerIDAndWorldIDAreMonotonicAndDistinct(t *testing.T) {
	p1 := NewPlayerID()
	p2 := NewPlayerID()
	if p2 <= p1 {
		t.Fatalf("NewPlayerID() not increasing: p1=%d p2=%d", p1, p2)
	}
	w1 := NewWorldID()
	w2 := NewWorldID()
	if w2 <= w1 {
		t.Fatalf("NewWorldID() not increasing: w1=%d w2=%d", w1, w2)
	}
}
