// Package dem decodes the demo (DEM) format: an ASCII track line, then
// framed blocks of opcodes. Opcode values match the protocol-15 server
// message set the rest of this module's wire protocol uses; the high-bit
// entity-update bitmask form and the coordinate/angle/velocity fixed-point
// scales follow that same protocol's demo recording layout.
package dem

import (
	"strconv"
	"strings"

	"github.com/ernie/quakecore/internal/netio"
	"github.com/ernie/quakecore/internal/protoerr"
)

// Opcode tags every non-entity-update record. Values match the wire
// protocol's ServerMessageId exactly so a corrupt stream's opcode byte can
// be reported verbatim in diagnostics.
type Opcode uint8

const (
	OpBad              Opcode = 0x00
	OpNop              Opcode = 0x01
	OpDisconnect       Opcode = 0x02
	OpUpdateStat       Opcode = 0x03
	OpVersion          Opcode = 0x04
	OpSetView          Opcode = 0x05
	OpSound            Opcode = 0x06
	OpTime             Opcode = 0x07
	OpPrint            Opcode = 0x08
	OpStuffText        Opcode = 0x09
	OpSetAngle         Opcode = 0x0a
	OpServerInfo       Opcode = 0x0b
	OpLightStyle       Opcode = 0x0c
	OpUpdateName       Opcode = 0x0d
	OpUpdateFrags      Opcode = 0x0e
	OpPlayerData       Opcode = 0x0f
	OpStopSound        Opcode = 0x10
	OpUpdateColors     Opcode = 0x11
	OpParticle         Opcode = 0x12
	OpDamage           Opcode = 0x13
	OpSpawnStatic      Opcode = 0x14
	OpSpawnBaseline    Opcode = 0x16
	OpTempEntity       Opcode = 0x17
	OpSetPause         Opcode = 0x18
	OpSignOnStage      Opcode = 0x19
	OpCenterPrint      Opcode = 0x1a
	OpKilledMonster    Opcode = 0x1b
	OpFoundSecret      Opcode = 0x1c
	OpSpawnStaticSound Opcode = 0x1d
	OpIntermission     Opcode = 0x1e
	OpFinale           Opcode = 0x1f
	OpCdTrack          Opcode = 0x20
	OpSellScreen       Opcode = 0x21
	OpCutScene         Opcode = 0x22

	// OpUpdateEntity is synthetic: it is not a single wire byte but the
	// high-bit-set entity-update form.
	OpUpdateEntity Opcode = 0xff
)

const requiredServerInfoProtocol = 15

// Coordinate/angle/velocity fixed-point scales.
const (
	coordScale    = 1.0 / 8.0
	angleScale    = 360.0 / 256.0
	velocityScale = 1.0 / 16.0
)

// sound field-mask bits (NetQuake svc_sound).
const (
	sndVolume      = 1 << 0
	sndAttenuation = 1 << 1
	sndLargeEntity = 1 << 3
	sndLargeSound  = 1 << 4
)

// entity-update bitmask bits, high-bit-set opcode form.
const (
	updMoreBits    = 1 << 0
	updOrigin0     = 1 << 1
	updOrigin1     = 1 << 2
	updOrigin2     = 1 << 3
	updAngle1      = 1 << 4
	updNoLerp      = 1 << 5
	updFrame       = 1 << 6
	updSignal      = 1 << 7 // the high bit itself, checked before dispatch
	updAngle0      = 1 << 8
	updAngle2      = 1 << 9
	updModel       = 1 << 10
	updColormap    = 1 << 11
	updSkin        = 1 << 12
	updEffects     = 1 << 13
	updLongEntity  = 1 << 14
	updExtend1     = 1 << 15
)

// ServerInfoEvent is the bootstrap event extracted from a svc_serverinfo
// opcode.
type ServerInfoEvent struct {
	ProtocolVersion int32
	MaxClients      uint8
	GameType        uint8
	MapName         string
	PrecacheModels  []string
	PrecacheSounds  []string
}

// EntityUpdate covers both SpawnBaseline (full fields, always present) and
// UpdateEntity (only the axes flagged present are meaningful; Present
// records which).
type EntityUpdate struct {
	EntityID   uint16
	ModelIndex uint8
	Frame      uint8
	Colormap   uint8
	Skin       uint8
	Effects    uint8
	Origin     netio.Vec3
	Angles     netio.Vec3
	NoLerp     bool
	Present    EntityUpdateMask
}

// EntityUpdateMask records which optional fields a high-bit UpdateEntity
// opcode actually carried.
type EntityUpdateMask struct {
	OriginX, OriginY, OriginZ bool
	AngleX, AngleY, AngleZ    bool
	Model, Frame, Colormap, Skin, Effects bool
}

// SoundEvent is the PlaySound translation input.
type SoundEvent struct {
	EntityID    uint16
	Channel     int8
	SoundIndex  uint16
	Volume      uint8
	Attenuation float32
	Origin      netio.Vec3
}

// StopSoundEvent is the StopSound translation input.
type StopSoundEvent struct {
	EntityID uint16
	Channel  int8
}

// Event is one decoded demo event. Kind selects which of the typed payload
// fields is meaningful; every opcode the format defines round-trips to an
// Event so a replay system can translate it into world effects without the
// decoder itself knowing world semantics.
type Event struct {
	Kind Opcode

	// Present on every block boundary and on OpSetAngle itself.
	Angles netio.Vec3

	Time         float32
	Text         string
	ServerInfo   *ServerInfoEvent
	Entity       *EntityUpdate
	Sound        *SoundEvent
	StopSound    *StopSoundEvent
	LightStyle   struct {
		Style uint32
		Map   string
	}
}

// Block is one framed record from the demo file: a view-angle vector and
// the raw opcode payload bytes.
type Block struct {
	ViewAngles netio.Vec3
	Payload    []byte
}

// Demo is the fully framed (but not opcode-decoded) demo file: the ASCII
// track number plus the sequence of blocks.
type Demo struct {
	Track  int
	Blocks []Block
}

// Decode frames a DEM buffer into its track number and block sequence. It
// does not decode opcodes; use NewEventIterator to pull events lazily.
func Decode(buf []byte) (*Demo, error) {
	const op = "dem.Decode"

	cur := netio.NewCursor(buf)
	trackLine, err := cur.ReadLine()
	if err != nil {
		return nil, protoerr.InvalidFormatf(op, "missing track number line: %v", err)
	}
	track, err := strconv.Atoi(strings.TrimSpace(trackLine))
	if err != nil {
		return nil, protoerr.InvalidFormatf(op, "bad track number %q: %v", trackLine, err)
	}

	var blocks []Block
	for cur.Remaining() > 0 {
		size, err := cur.ReadLong()
		if err != nil {
			break
		}
		angles, err := cur.ReadVec3()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "truncated block view angles: %v", err)
		}
		payload, err := cur.ReadData(int(size))
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "truncated block payload: %v", err)
		}
		out := make([]byte, len(payload))
		copy(out, payload)
		blocks = append(blocks, Block{ViewAngles: angles, Payload: out})
	}

	return &Demo{Track: track, Blocks: blocks}, nil
}
