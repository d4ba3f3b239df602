package dem

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/ernie/quakecore/internal/netio"
)

func putF32(dst []byte, f float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(f))
}

// buildBlock frames a payload with a view-angle vector and a 4-byte
// little-endian size prefix, matching Decode's block layout.
func buildBlock(viewAngles [3]float32, payload []byte) []byte {
	buf := make([]byte, 4+12+len(payload))
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(payload)))
	putF32(buf[4:], viewAngles[0])
	putF32(buf[8:], viewAngles[1])
	putF32(buf[12:], viewAngles[2])
	copy(buf[16:], payload)
	return buf
}

func TestDecodeFramesTrackAndBlocks(t *testing.T) {
	block1 := buildBlock([3]float32{1, 2, 3}, []byte{byte(OpNop)})
	block2 := buildBlock([3]float32{0, 0, 0}, []byte{byte(OpDisconnect)})

	buf := append([]byte("1\n"), block1...)
	buf = append(buf, block2...)

	d, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Track != 1 {
		t.Fatalf("Track = %d, want 1", d.Track)
	}
	if len(d.Blocks) != 2 {
		t.Fatalf("len(Blocks) = %d, want 2", len(d.Blocks))
	}
	// raw (1,2,3) -> SwapBasis -> (x=1, y=3, z=-2)
	want := [3]float32{1, 3, -2}
	got := d.Blocks[0].ViewAngles
	if got.X != want[0] || got.Y != want[1] || got.Z != want[2] {
		t.Fatalf("Blocks[0].ViewAngles = %+v, want X=%v Y=%v Z=%v", got, want[0], want[1], want[2])
	}
}

func TestDecodeMissingTrackLine(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x02}); err == nil {
		t.Fatalf("Decode without a track line succeeded, want error")
	}
}

// Scenario: the iterator must yield a synthetic SetAngle at every block
// boundary, carrying that block's view angles, before resuming opcode
// decoding within the block.
func TestEventIteratorYieldsSetAngleAtBlockBoundary(t *testing.T) {
	block1 := buildBlock([3]float32{10, 20, 30}, []byte{byte(OpNop)})
	block2 := buildBlock([3]float32{40, 50, 60}, []byte{byte(OpDisconnect)})
	buf := append([]byte("1\n"), block1...)
	buf = append(buf, block2...)

	d, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	it := NewEventIterator(d)

	ev, err := it.Next()
	if err != nil || ev.Kind != OpSetAngle {
		t.Fatalf("first event = %+v, %v, want synthetic SetAngle", ev, err)
	}
	wantAngles := netio.SwapBasis([3]float32{10, 20, 30})
	if ev.Angles != wantAngles {
		t.Fatalf("first SetAngle.Angles = %+v, want %+v", ev.Angles, wantAngles)
	}

	ev, err = it.Next()
	if err != nil || ev.Kind != OpNop {
		t.Fatalf("second event = %+v, %v, want OpNop", ev, err)
	}

	ev, err = it.Next()
	if err != nil || ev.Kind != OpSetAngle {
		t.Fatalf("third event = %+v, %v, want synthetic SetAngle for block 2", ev, err)
	}
	wantAngles2 := netio.SwapBasis([3]float32{40, 50, 60})
	if ev.Angles != wantAngles2 {
		t.Fatalf("second SetAngle.Angles = %+v, want %+v", ev.Angles, wantAngles2)
	}

	ev, err = it.Next()
	if err != nil || ev.Kind != OpDisconnect {
		t.Fatalf("fourth event = %+v, %v, want OpDisconnect", ev, err)
	}

	ev, err = it.Next()
	if err != nil || ev != nil {
		t.Fatalf("Next() after stream exhausted = %+v, %v, want nil, nil", ev, err)
	}
	if !it.Done() {
		t.Fatalf("Done() = false after stream exhausted")
	}
}

func TestDecodeOpTime(t *testing.T) {
	payload := make([]byte, 5)
	payload[0] = byte(OpTime)
	putF32(payload[1:], 12.5)
	block := buildBlock([3]float32{}, payload)
	buf := append([]byte("1\n"), block...)

	d, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	it := NewEventIterator(d)
	it.Next() // consume the synthetic SetAngle
	ev, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Kind != OpTime || ev.Time != 12.5 {
		t.Fatalf("event = %+v, want Kind=OpTime Time=12.5", ev)
	}
}

func TestDecodeUnrecognizedOpcodeIsProtocolViolation(t *testing.T) {
	payload := []byte{0x7F} // not assigned to any Opcode and not high-bit-set
	block := buildBlock([3]float32{}, payload)
	buf := append([]byte("1\n"), block...)

	d, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	it := NewEventIterator(d)
	it.Next() // synthetic SetAngle
	if _, err := it.Next(); err == nil {
		t.Fatalf("Next() on unrecognized opcode succeeded, want ProtocolViolation error")
	}
}
