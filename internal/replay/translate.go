package replay

import (
	"github.com/ernie/quakecore/internal/ecs"
	"github.com/ernie/quakecore/internal/formats/dem"
)

// The following are the side-effect event payloads a Translator emits onto
// the per-tick ecs.EventWriter. The render/audio backends proper are out of
// scope for this core; these values are the named interface it calls out
// to.
type RenderLoad struct{ Models []string }
type AudioLoad struct{ Sounds []string }
type EntitySpawn struct{ Entity ecs.EntityID }
type AudioPlay struct {
	HandleIndex uint16
	SoundIndex  uint16
	Position    [3]float32
	Volume      uint8
	Attenuation float32
}
type AudioStop struct{ HandleIndex uint16 }

// Translator maps demo entity ids onto live ecs.EntityID handles and
// applies each due dem.Event to the world per the replay translation
// table.
type Translator struct {
	world    *ecs.World
	byDemoID map[uint16]ecs.EntityID
}

// NewTranslator returns a Translator bound to world, with an empty
// demo-id-to-entity mapping.
func NewTranslator(world *ecs.World) *Translator {
	return &Translator{world: world, byDemoID: make(map[uint16]ecs.EntityID)}
}

// Apply runs one decoded demo event through the translation table,
// mutating world and emitting side-effect events onto events.
func (t *Translator) Apply(ev dem.Event, events *ecs.EventWriter) {
	switch ev.Kind {
	case dem.OpServerInfo:
		if ev.ServerInfo == nil {
			return
		}
		events.Emit(RenderLoad{Models: ev.ServerInfo.PrecacheModels})
		events.Emit(AudioLoad{Sounds: ev.ServerInfo.PrecacheSounds})

	case dem.OpSpawnBaseline:
		if ev.Entity == nil {
			return
		}
		e := t.world.Spawn()
		ecs.Attach(t.world, e, ecs.EntityMarker{ID: ev.Entity.EntityID})
		ecs.Attach(t.world, e, ecs.Transform{Position: ev.Entity.Origin, Angles: ev.Entity.Angles})
		ecs.Attach(t.world, e, ecs.Dirty{})
		ecs.Attach(t.world, e, ecs.ModelIndex{Value: ev.Entity.ModelIndex})
		ecs.Attach(t.world, e, ecs.Frame{Value: ev.Entity.Frame})
		ecs.Attach(t.world, e, ecs.Colormap{Value: ev.Entity.Colormap})
		ecs.Attach(t.world, e, ecs.Skin{Value: ev.Entity.Skin})
		t.byDemoID[ev.Entity.EntityID] = e
		events.Emit(EntitySpawn{Entity: e})

	case dem.OpUpdateEntity:
		if ev.Entity == nil {
			return
		}
		e, ok := t.byDemoID[ev.Entity.EntityID]
		if !ok {
			return
		}
		transform, _ := ecs.Get[ecs.Transform](t.world, e)
		if ev.Entity.Present.OriginX {
			transform.Position.X = ev.Entity.Origin.X
		}
		if ev.Entity.Present.OriginY {
			transform.Position.Y = ev.Entity.Origin.Y
		}
		if ev.Entity.Present.OriginZ {
			transform.Position.Z = ev.Entity.Origin.Z
		}
		if ev.Entity.Present.AngleX {
			transform.Angles.X = ev.Entity.Angles.X
		}
		if ev.Entity.Present.AngleY {
			transform.Angles.Y = ev.Entity.Angles.Y
		}
		if ev.Entity.Present.AngleZ {
			transform.Angles.Z = ev.Entity.Angles.Z
		}
		ecs.Attach(t.world, e, transform)
		ecs.Attach(t.world, e, ecs.Dirty{})

	case dem.OpSound:
		if ev.Sound == nil {
			return
		}
		e, ok := t.byDemoID[ev.Sound.EntityID]
		pos := [3]float32{}
		if ok {
			transform, _ := ecs.Get[ecs.Transform](t.world, e)
			pos = [3]float32{transform.Position.X, transform.Position.Y, transform.Position.Z}
		}
		events.Emit(AudioPlay{
			HandleIndex: ev.Sound.EntityID,
			SoundIndex:  ev.Sound.SoundIndex,
			Position:    pos,
			Volume:      ev.Sound.Volume,
			Attenuation: ev.Sound.Attenuation,
		})

	case dem.OpStopSound:
		if ev.StopSound == nil {
			return
		}
		events.Emit(AudioStop{HandleIndex: ev.StopSound.EntityID})

	default:
		// SetAngle, Time, Print, StuffText, LightStyle, UpdateStat,
		// UpdateName, UpdateFrags, UpdateColors, PlayerData, Particle,
		// Damage, SpawnStatic, TempEntity, SpawnStaticSound, SetPause,
		// CenterPrint, KilledMonster, FoundSecret, Intermission, Finale,
		// CdTrack, SellScreen, CutScene: accepted without error, no
		// semantics beyond this core's scope.
	}
}
