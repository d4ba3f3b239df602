package dem

import (
	"fmt"

	"github.com/ernie/quakecore/internal/netio"
	"github.com/ernie/quakecore/internal/protoerr"
)

// EventIterator is a lazy pull iterator over a Demo's opcode stream. Each
// Next call consumes exactly one opcode from the current block; on a block
// boundary it first yields a synthetic SetAngle event carrying that block's
// view angles, then resumes opcode decoding.
type EventIterator struct {
	demo       *Demo
	blockIndex int
	cur        *netio.Cursor
	pendingAngle bool
	done       bool
}

// NewEventIterator starts iteration at the first block.
func NewEventIterator(d *Demo) *EventIterator {
	it := &EventIterator{demo: d}
	it.enterBlock(0)
	return it
}

func (it *EventIterator) enterBlock(i int) {
	it.blockIndex = i
	if i >= len(it.demo.Blocks) {
		it.cur = nil
		it.done = true
		return
	}
	it.cur = netio.NewCursor(it.demo.Blocks[i].Payload)
	it.pendingAngle = true
}

// Done reports whether the stream is exhausted.
func (it *EventIterator) Done() bool { return it.done }

// Next decodes and returns the next event, advancing the cursor. It returns
// (nil, nil) only when Done(); an unrecognized opcode byte is a hard
// ProtocolViolation error rather than something to skip past.
func (it *EventIterator) Next() (*Event, error) {
	const op = "dem.EventIterator.Next"

	if it.done {
		return nil, nil
	}

	if it.pendingAngle {
		it.pendingAngle = false
		return &Event{Kind: OpSetAngle, Angles: it.demo.Blocks[it.blockIndex].ViewAngles}, nil
	}

	if it.cur.Remaining() == 0 {
		it.enterBlock(it.blockIndex + 1)
		if it.done {
			return nil, nil
		}
		it.pendingAngle = false
		return &Event{Kind: OpSetAngle, Angles: it.demo.Blocks[it.blockIndex].ViewAngles}, nil
	}

	opByte, err := it.cur.ReadByte()
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindProtocolViolation, op, err)
	}

	if opByte&0x80 != 0 {
		ev, err := decodeEntityUpdate(it.cur, opByte)
		if err != nil {
			return nil, protoerr.Wrap(protoerr.KindProtocolViolation, op, err)
		}
		return ev, nil
	}

	op8 := Opcode(opByte)
	ev, err := decodeOpcode(it.cur, op8)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindProtocolViolation, op, fmt.Errorf("opcode %#x: %w", opByte, err))
	}
	return ev, nil
}

// decodeEntityUpdate parses the high-bit-set entity-update form: the first
// byte (already consumed) carries the low bits of the field bitmask plus
// the high-bit signal; a second byte of bitmask follows when updMoreBits is
// set.
func decodeEntityUpdate(cur *netio.Cursor, first byte) (*Event, error) {
	mask := uint32(first) &^ 0x80
	if mask&updMoreBits != 0 {
		more, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		mask |= uint32(more) << 8
	}

	upd := &EntityUpdate{}

	if mask&updLongEntity != 0 {
		id, err := cur.ReadShort()
		if err != nil {
			return nil, err
		}
		upd.EntityID = id
	} else {
		id, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		upd.EntityID = uint16(id)
	}

	if mask&updModel != 0 {
		v, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		upd.ModelIndex = v
		upd.Present.Model = true
	}
	if mask&updFrame != 0 {
		v, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		upd.Frame = v
		upd.Present.Frame = true
	}
	if mask&updColormap != 0 {
		v, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		upd.Colormap = v
		upd.Present.Colormap = true
	}
	if mask&updSkin != 0 {
		v, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		upd.Skin = v
		upd.Present.Skin = true
	}
	if mask&updEffects != 0 {
		v, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		upd.Effects = v
		upd.Present.Effects = true
	}

	var origin, angles [3]float32
	if mask&updOrigin0 != 0 {
		v, err := readCoord(cur)
		if err != nil {
			return nil, err
		}
		origin[0] = v
		upd.Present.OriginX = true
	}
	if mask&updAngle0 != 0 {
		v, err := readAngle(cur)
		if err != nil {
			return nil, err
		}
		angles[0] = v
		upd.Present.AngleX = true
	}
	if mask&updOrigin1 != 0 {
		v, err := readCoord(cur)
		if err != nil {
			return nil, err
		}
		origin[1] = v
		upd.Present.OriginY = true
	}
	if mask&updAngle1 != 0 {
		v, err := readAngle(cur)
		if err != nil {
			return nil, err
		}
		angles[1] = v
		upd.Present.AngleY = true
	}
	if mask&updOrigin2 != 0 {
		v, err := readCoord(cur)
		if err != nil {
			return nil, err
		}
		origin[2] = v
		upd.Present.OriginZ = true
	}
	if mask&updAngle2 != 0 {
		v, err := readAngle(cur)
		if err != nil {
			return nil, err
		}
		angles[2] = v
		upd.Present.AngleZ = true
	}

	upd.Origin = netio.SwapBasis(origin)
	upd.Angles = netio.SwapBasis(angles)
	upd.NoLerp = mask&updNoLerp != 0

	return &Event{Kind: OpUpdateEntity, Entity: upd}, nil
}

func readCoord(cur *netio.Cursor) (float32, error) {
	v, err := cur.ReadInt16()
	if err != nil {
		return 0, err
	}
	return float32(v) * coordScale, nil
}

func readAngle(cur *netio.Cursor) (float32, error) {
	v, err := cur.ReadByte()
	if err != nil {
		return 0, err
	}
	return float32(v) * angleScale, nil
}

func readVelocity(cur *netio.Cursor) (float32, error) {
	v, err := cur.ReadInt8()
	if err != nil {
		return 0, err
	}
	return float32(v) * velocityScale, nil
}

// decodeOpcode parses the fixed-byte-tagged opcodes. Most carry console or
// presentation-only payloads that this core accepts without error and only
// needs to skip correctly to keep the stream synchronized; ServerInfo,
// SpawnBaseline, Sound and StopSound get full field decoding because a
// replay system translates them into world effects.
func decodeOpcode(cur *netio.Cursor, op Opcode) (*Event, error) {
	switch op {
	case OpNop, OpDisconnect, OpKilledMonster, OpFoundSecret, OpIntermission, OpSellScreen:
		return &Event{Kind: op}, nil

	case OpUpdateStat:
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		if _, err := cur.ReadLong(); err != nil {
			return nil, err
		}
		return &Event{Kind: op}, nil

	case OpVersion:
		if _, err := cur.ReadLong(); err != nil {
			return nil, err
		}
		return &Event{Kind: op}, nil

	case OpSetView:
		if _, err := cur.ReadShort(); err != nil {
			return nil, err
		}
		return &Event{Kind: op}, nil

	case OpSound:
		return decodeSound(cur)

	case OpTime:
		t, err := cur.ReadFloat()
		if err != nil {
			return nil, err
		}
		return &Event{Kind: op, Time: t}, nil

	case OpPrint, OpStuffText, OpCenterPrint, OpFinale, OpCutScene:
		s, err := cur.ReadLine()
		if err != nil {
			// Some encoders NUL-terminate instead of newline-terminate;
			// fall back to a bounded NUL scan over the remainder.
			s, err = readNulString(cur)
			if err != nil {
				return nil, err
			}
		}
		return &Event{Kind: op, Text: s}, nil

	case OpSetAngle:
		angles, err := readAnglesTriple(cur)
		if err != nil {
			return nil, err
		}
		return &Event{Kind: op, Angles: angles}, nil

	case OpServerInfo:
		return decodeServerInfo(cur)

	case OpLightStyle:
		style, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		s, err := readNulString(cur)
		if err != nil {
			return nil, err
		}
		ev := &Event{Kind: op}
		ev.LightStyle.Style = uint32(style)
		ev.LightStyle.Map = s
		return ev, nil

	case OpUpdateName:
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		if _, err := readNulString(cur); err != nil {
			return nil, err
		}
		return &Event{Kind: op}, nil

	case OpUpdateFrags:
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		if _, err := cur.ReadShort(); err != nil {
			return nil, err
		}
		return &Event{Kind: op}, nil

	case OpPlayerData:
		return decodePlayerData(cur)

	case OpStopSound:
		v, err := cur.ReadShort()
		if err != nil {
			return nil, err
		}
		return &Event{Kind: op, StopSound: &StopSoundEvent{
			EntityID: v >> 3,
			Channel:  int8(v & 7),
		}}, nil

	case OpUpdateColors:
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		return &Event{Kind: op}, nil

	case OpParticle:
		if _, err := readAnglesTriple(cur); err != nil {
			return nil, err
		}
		for i := 0; i < 3; i++ {
			if _, err := cur.ReadInt8(); err != nil {
				return nil, err
			}
		}
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		return &Event{Kind: op}, nil

	case OpDamage:
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		if _, err := readAnglesTriple(cur); err != nil {
			return nil, err
		}
		return &Event{Kind: op}, nil

	case OpSpawnStatic:
		if err := skipBaselineFields(cur); err != nil {
			return nil, err
		}
		return &Event{Kind: op}, nil

	case OpSpawnBaseline:
		return decodeSpawnBaseline(cur)

	case OpTempEntity:
		return decodeTempEntity(cur)

	case OpSetPause:
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		return &Event{Kind: op}, nil

	case OpSignOnStage:
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		return &Event{Kind: op}, nil

	case OpSpawnStaticSound:
		if _, err := readAnglesTriple(cur); err != nil {
			return nil, err
		}
		for i := 0; i < 3; i++ {
			if _, err := cur.ReadByte(); err != nil {
				return nil, err
			}
		}
		return &Event{Kind: op}, nil

	case OpCdTrack:
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
		return &Event{Kind: op}, nil

	default:
		return nil, fmt.Errorf("unrecognized")
	}
}

func readAnglesTriple(cur *netio.Cursor) (netio.Vec3, error) {
	return cur.ReadVec3()
}

func readNulString(cur *netio.Cursor) (string, error) {
	var b []byte
	for {
		c, err := cur.ReadByte()
		if err != nil {
			return "", err
		}
		if c == 0 {
			return string(b), nil
		}
		b = append(b, c)
	}
}

func decodeSound(cur *netio.Cursor) (*Event, error) {
	mask, err := cur.ReadByte()
	if err != nil {
		return nil, err
	}
	ev := &SoundEvent{Volume: 255, Attenuation: 1}
	if mask&sndVolume != 0 {
		v, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		ev.Volume = v
	}
	if mask&sndAttenuation != 0 {
		v, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		ev.Attenuation = float32(v) / 64
	}
	channelWord, err := cur.ReadShort()
	if err != nil {
		return nil, err
	}
	if mask&sndLargeEntity != 0 {
		id, err := cur.ReadShort()
		if err != nil {
			return nil, err
		}
		ch, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		ev.EntityID = id
		ev.Channel = int8(ch)
	} else {
		ev.EntityID = channelWord >> 3
		ev.Channel = int8(channelWord & 7)
	}
	if mask&sndLargeSound != 0 {
		v, err := cur.ReadShort()
		if err != nil {
			return nil, err
		}
		ev.SoundIndex = v
	} else {
		v, err := cur.ReadByte()
		if err != nil {
			return nil, err
		}
		ev.SoundIndex = uint16(v)
	}
	origin, err := readCoordTriple(cur)
	if err != nil {
		return nil, err
	}
	ev.Origin = origin
	return &Event{Kind: OpSound, Sound: ev}, nil
}

func readCoordTriple(cur *netio.Cursor) (netio.Vec3, error) {
	var raw [3]float32
	for i := range raw {
		v, err := readCoord(cur)
		if err != nil {
			return netio.Vec3{}, err
		}
		raw[i] = v
	}
	return netio.SwapBasis(raw), nil
}

func decodeServerInfo(cur *netio.Cursor) (*Event, error) {
	protocol, err := cur.ReadInt32()
	if err != nil {
		return nil, err
	}
	if protocol != requiredServerInfoProtocol {
		return nil, fmt.Errorf("serverinfo protocol %d, want %d", protocol, requiredServerInfoProtocol)
	}
	maxClients, err := cur.ReadByte()
	if err != nil {
		return nil, err
	}
	gameType, err := cur.ReadByte()
	if err != nil {
		return nil, err
	}
	mapName, err := readNulString(cur)
	if err != nil {
		return nil, err
	}
	var models, sounds []string
	for {
		s, err := readNulString(cur)
		if err != nil {
			return nil, err
		}
		if s == "" {
			break
		}
		models = append(models, s)
	}
	for {
		s, err := readNulString(cur)
		if err != nil {
			return nil, err
		}
		if s == "" {
			break
		}
		sounds = append(sounds, s)
	}
	return &Event{Kind: OpServerInfo, ServerInfo: &ServerInfoEvent{
		ProtocolVersion: protocol,
		MaxClients:      maxClients,
		GameType:        gameType,
		MapName:         mapName,
		PrecacheModels:  models,
		PrecacheSounds:  sounds,
	}}, nil
}

// skipBaselineFields consumes the modelindex/frame/colormap/skin/origin/
// angle fields shared by SpawnStatic and SpawnBaseline, without the
// entity-id prefix SpawnBaseline carries.
func skipBaselineFields(cur *netio.Cursor) error {
	for i := 0; i < 4; i++ {
		if _, err := cur.ReadByte(); err != nil {
			return err
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := readCoord(cur); err != nil {
			return err
		}
		if _, err := readAngle(cur); err != nil {
			return err
		}
	}
	return nil
}

func decodeSpawnBaseline(cur *netio.Cursor) (*Event, error) {
	entityID, err := cur.ReadShort()
	if err != nil {
		return nil, err
	}
	modelIndex, err := cur.ReadByte()
	if err != nil {
		return nil, err
	}
	frame, err := cur.ReadByte()
	if err != nil {
		return nil, err
	}
	colormap, err := cur.ReadByte()
	if err != nil {
		return nil, err
	}
	skin, err := cur.ReadByte()
	if err != nil {
		return nil, err
	}
	var origin, angles [3]float32
	for i := 0; i < 3; i++ {
		c, err := readCoord(cur)
		if err != nil {
			return nil, err
		}
		origin[i] = c
		a, err := readAngle(cur)
		if err != nil {
			return nil, err
		}
		angles[i] = a
	}
	return &Event{Kind: OpSpawnBaseline, Entity: &EntityUpdate{
		EntityID: entityID, ModelIndex: modelIndex, Frame: frame,
		Colormap: colormap, Skin: skin,
		Origin: netio.SwapBasis(origin), Angles: netio.SwapBasis(angles),
		Present: EntityUpdateMask{
			OriginX: true, OriginY: true, OriginZ: true,
			AngleX: true, AngleY: true, AngleZ: true,
			Model: true, Frame: true, Colormap: true, Skin: true,
		},
	}}, nil
}

// decodeTempEntity skips a temporary-entity record. The type byte
// determines payload shape; this core accepts every temp-entity type
// without error and only needs to stay synchronized, so it consumes the
// common origin-only shape shared by the large majority of types and
// additionally consumes a second origin for the beam-like types.
func decodeTempEntity(cur *netio.Cursor) (*Event, error) {
	teType, err := cur.ReadByte()
	if err != nil {
		return nil, err
	}
	switch teType {
	case 3, 4, 6, 7, 8, 9, 10, 12: // beam / lightning-like: two endpoints
		if _, err := cur.ReadShort(); err != nil { // entity, for beam types
			return nil, err
		}
		if _, err := readCoordTriple(cur); err != nil {
			return nil, err
		}
		if _, err := readCoordTriple(cur); err != nil {
			return nil, err
		}
	default: // gunshot/explosion/spike-like: single origin
		if _, err := readCoordTriple(cur); err != nil {
			return nil, err
		}
	}
	return &Event{Kind: OpTempEntity}, nil
}

func decodePlayerData(cur *netio.Cursor) (*Event, error) {
	mask, err := cur.ReadShort()
	if err != nil {
		return nil, err
	}
	if mask&(1<<0) != 0 { // view height
		if _, err := cur.ReadInt8(); err != nil {
			return nil, err
		}
	}
	if mask&(1<<1) != 0 { // ideal pitch
		if _, err := cur.ReadInt8(); err != nil {
			return nil, err
		}
	}
	for i := 0; i < 3; i++ { // punch angles
		if mask&(1<<(2+i)) != 0 {
			if _, err := cur.ReadInt8(); err != nil {
				return nil, err
			}
		}
	}
	for i := 0; i < 3; i++ { // velocity
		if mask&(1<<(5+i)) != 0 {
			if _, err := readVelocity(cur); err != nil {
				return nil, err
			}
		}
	}
	if mask&(1<<8) != 0 { // items
		if _, err := cur.ReadLong(); err != nil {
			return nil, err
		}
	}
	if mask&(1<<9) != 0 { // weapon frame
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
	}
	if mask&(1<<10) != 0 { // armor
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
	}
	if mask&(1<<11) != 0 { // weapon model
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
	}
	if _, err := cur.ReadShort(); err != nil { // health
		return nil, err
	}
	if _, err := cur.ReadByte(); err != nil { // current ammo
		return nil, err
	}
	for i := 0; i < 4; i++ { // shells/nails/rockets/cells
		if _, err := cur.ReadByte(); err != nil {
			return nil, err
		}
	}
	if _, err := cur.ReadByte(); err != nil { // active weapon
		return nil, err
	}
	return &Event{Kind: OpPlayerData}, nil
}
