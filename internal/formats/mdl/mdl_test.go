package mdl

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/ernie/quakecore/internal/netio"
)

func putF32(dst []byte, f float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(f))
}

// buildMDL assembles a minimal single-texture, single-frame, one-triangle
// MDL buffer: three vertices forming one triangle, a 2x2 texture, one
// simple (non-grouped) keyframe.
func buildMDL(t *testing.T) []byte {
	t.Helper()

	const (
		textureW, textureH = 2, 2
		vertexCount        = 3
		triangleCount      = 1
	)

	buf := make([]byte, headerSize)
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:], Version)
	putF32(buf[8:], 1)  // scale.x
	putF32(buf[12:], 1) // scale.y
	putF32(buf[16:], 1) // scale.z
	// translate all zero
	putF32(buf[32:], 10) // bounding radius
	// eye position zero
	binary.LittleEndian.PutUint32(buf[48:], 1)           // textures count
	binary.LittleEndian.PutUint32(buf[52:], textureW)    // texture width
	binary.LittleEndian.PutUint32(buf[56:], textureH)    // texture height
	binary.LittleEndian.PutUint32(buf[60:], vertexCount) // vertices count
	binary.LittleEndian.PutUint32(buf[64:], triangleCount)
	binary.LittleEndian.PutUint32(buf[68:], 1) // frames count
	binary.LittleEndian.PutUint32(buf[72:], 0) // sync type
	binary.LittleEndian.PutUint32(buf[76:], 0) // flags
	binary.LittleEndian.PutUint32(buf[80:], 0) // size estimate

	// texture: group=0, 4 pixel bytes
	tex := make([]byte, 4+textureW*textureH)
	tex[4], tex[5], tex[6], tex[7] = 1, 2, 3, 4
	buf = append(buf, tex...)

	// 3 texcoords: onSeam(4) s(4) t(4)
	for i := 0; i < vertexCount; i++ {
		rec := make([]byte, 12)
		binary.LittleEndian.PutUint32(rec[4:], uint32(i))
		buf = append(buf, rec...)
	}

	// 1 triangle: frontFacing=1, indices 0,1,2 (on-disk order)
	tri := make([]byte, 16)
	binary.LittleEndian.PutUint32(tri[0:], 1)
	binary.LittleEndian.PutUint32(tri[4:], 0)
	binary.LittleEndian.PutUint32(tri[8:], 1)
	binary.LittleEndian.PutUint32(tri[12:], 2)
	buf = append(buf, tri...)

	// 1 frame: group=0, min(4) max(4) name(16) + 3 vertices(4 bytes each)
	frame := make([]byte, 4+4+4+16+4*vertexCount)
	// leave group word zero (single frame)
	verts := [][3]byte{{0, 0, 0}, {4, 0, 0}, {0, 4, 0}}
	base := 4 + 4 + 4 + 16
	for i, v := range verts {
		off := base + i*4
		frame[off] = v[0]
		frame[off+1] = v[1]
		frame[off+2] = v[2]
	}
	buf = append(buf, frame...)

	return buf
}

func TestDecodeMDL(t *testing.T) {
	buf := buildMDL(t)

	m, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if m.TextureWidth != 2 || m.TextureHeight != 2 {
		t.Fatalf("texture dims = %dx%d, want 2x2", m.TextureWidth, m.TextureHeight)
	}
	if len(m.Textures) != 1 || len(m.Textures[0].Pixels) != 1 {
		t.Fatalf("Textures = %+v, want one single (non-group) skin", m.Textures)
	}
	if string(m.Textures[0].Pixels[0]) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("skin pixels = %v, want [1 2 3 4]", m.Textures[0].Pixels[0])
	}

	if len(m.Triangles) != 1 {
		t.Fatalf("Triangles = %+v, want 1 triangle", m.Triangles)
	}
	// on-disk [0,1,2] must be rewound to [0,2,1]
	want := [3]uint32{0, 2, 1}
	if m.Triangles[0].Vertices != want {
		t.Fatalf("Triangles[0].Vertices = %v, want %v (winding reversed)", m.Triangles[0].Vertices, want)
	}

	if len(m.Frames) != 1 || m.Frames[0].Group {
		t.Fatalf("Frames = %+v, want one non-group simple frame", m.Frames)
	}
	normals := m.Frames[0].Single.Normals
	if len(normals) != 3 {
		t.Fatalf("len(Normals) = %d, want 3", len(normals))
	}
	for i, n := range normals {
		l := n.Length()
		if l < 0.99 || l > 1.01 {
			t.Fatalf("Normals[%d] length = %v, want ~1 (unit length)", i, l)
		}
	}
}

func TestDecodeMDLBadMagic(t *testing.T) {
	buf := buildMDL(t)
	copy(buf[0:4], "NOPE")
	if _, err := Decode(buf); err == nil {
		t.Fatalf("Decode with bad magic succeeded, want error")
	}
}

func TestDecodeMDLBadVersion(t *testing.T) {
	buf := buildMDL(t)
	binary.LittleEndian.PutUint32(buf[4:], 99)
	if _, err := Decode(buf); err == nil {
		t.Fatalf("Decode with bad version succeeded, want error")
	}
}

func TestDecompressVertex(t *testing.T) {
	v := CompressedVertex{Packed: [3]byte{10, 20, 30}}
	scale := netio.Vec3{X: 2, Y: 2, Z: 2}
	translate := netio.Vec3{X: 1, Y: 1, Z: 1}
	got := v.Decompress(scale, translate)
	want := netio.Vec3{X: 21, Y: 41, Z: 61}
	if got != want {
		t.Fatalf("Decompress() = %+v, want %+v", got, want)
	}
}
