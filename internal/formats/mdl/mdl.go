// Package mdl decodes the vertex-keyframe-animated MDL model format. Field
// layout, the 8-bit vertex decompression, triangle winding reversal and
// per-vertex normal accumulation follow the MDL reader's frame and texture
// group shapes, translated into plain Go slices.
package mdl

import (
	"github.com/ernie/quakecore/internal/netio"
	"github.com/ernie/quakecore/internal/protoerr"
)

const (
	Magic   = "IDPO"
	Version = 6

	headerSize = 84
)

// SyncType controls whether an animated model's frame advances on a shared
// clock or is offset per-instance.
type SyncType int32

const (
	SyncSynced   SyncType = 0
	SyncRandom   SyncType = 1
)

// EntityFlags are MDL-specific render effect bits carried in the header.
type EntityFlags int32

const (
	EffectRocket  EntityFlags = 1 << 0
	EffectGrenade EntityFlags = 1 << 1
	EffectGib     EntityFlags = 1 << 2
	EffectRotate  EntityFlags = 1 << 4
	EffectTracer  EntityFlags = 1 << 5
	EffectZomgib  EntityFlags = 1 << 6
	EffectTracer2 EntityFlags = 1 << 7
	EffectTracer3 EntityFlags = 1 << 8
)

// CompressedVertex is the on-disk 8-bit-per-axis quantized vertex plus a
// discarded precomputed normal-table index byte; this core recomputes
// normals from geometry instead, so the index is not retained.
type CompressedVertex struct {
	Packed [3]byte
}

// Decompress linearly expands a quantized vertex: p = raw*scale + translate.
func (v CompressedVertex) Decompress(scale, translate netio.Vec3) netio.Vec3 {
	return netio.Vec3{
		X: float32(v.Packed[0])*scale.X + translate.X,
		Y: float32(v.Packed[1])*scale.Y + translate.Y,
		Z: float32(v.Packed[2])*scale.Z + translate.Z,
	}
}

// Triangle holds three vertex indices after winding reversal ([a,b,c] on
// disk becomes [a,c,b]).
type Triangle struct {
	FrontFacing bool
	Vertices    [3]uint32
}

// TextureCoord is a per-vertex (s,t) pair; OnSeam marks vertices that need
// duplicating across the texture seam for back-facing triangles.
type TextureCoord struct {
	OnSeam bool
	S, T   int32
}

// SimpleFrame is one keyframe: a name, a bounding pair, and per-vertex
// positions plus accumulated normals.
type SimpleFrame struct {
	Name     string
	Min, Max CompressedVertex
	Vertices []CompressedVertex
	Normals  []netio.Vec3
}

// Frame is either a single keyframe or a named timed group of sub-frames
// with monotonically non-decreasing time marks.
type Frame struct {
	Group  bool
	Single SimpleFrame
	Times  []float32
	Frames []SimpleFrame
}

// TimedTexture is a single skin or a group of skins with display durations,
// generic over the same "single vs timed group" shape as Frame.
type TimedTexture struct {
	Group    bool
	Pixels   [][]byte // one entry unless Group
	Times    []float32
}

// Model is the fully decoded MDL asset.
type Model struct {
	Scale, Translate netio.Vec3
	BoundingRadius   float32
	EyePosition      netio.Vec3
	TextureWidth     uint32
	TextureHeight    uint32
	Textures         []TimedTexture
	TexCoords        []TextureCoord
	Triangles        []Triangle
	Frames           []Frame
	SyncType         SyncType
	Flags            EntityFlags
}

// Decode parses a complete MDL buffer, validating magic and version before
// reading any geometry, and computes per-vertex normals for every simple
// frame as it is read.
func Decode(buf []byte) (*Model, error) {
	const op = "mdl.Decode"

	if len(buf) < headerSize {
		return nil, protoerr.InvalidFormatf(op, "buffer too small: %d bytes", len(buf))
	}
	cur := netio.NewCursor(buf)

	magic, _ := cur.ReadData(4)
	if string(magic) != Magic {
		return nil, protoerr.InvalidFormatf(op, "bad MDL magic %q", magic)
	}
	version, err := cur.ReadLong()
	if err != nil || version != Version {
		return nil, protoerr.InvalidFormatf(op, "unsupported MDL version %d", version)
	}

	scale, _ := cur.ReadVec3Raw()
	translate, _ := cur.ReadVec3Raw()
	boundingRadius, _ := cur.ReadFloat()
	eyePosition, _ := cur.ReadVec3Raw()
	texturesCount, _ := cur.ReadLong()
	textureWidth, _ := cur.ReadLong()
	textureHeight, _ := cur.ReadLong()
	verticesCount, _ := cur.ReadLong()
	trianglesCount, _ := cur.ReadLong()
	framesCount, err := cur.ReadLong()
	if err != nil {
		return nil, protoerr.InvalidFormatf(op, "truncated header: %v", err)
	}
	syncType, _ := cur.ReadInt32()
	flags, _ := cur.ReadInt32()
	_, _ = cur.ReadLong() // declared size estimate, unused by this core

	m := &Model{
		Scale: netio.Vec3{X: scale[0], Y: scale[1], Z: scale[2]},
		Translate: netio.Vec3{X: translate[0], Y: translate[1], Z: translate[2]},
		BoundingRadius: boundingRadius,
		EyePosition:    netio.Vec3{X: eyePosition[0], Y: eyePosition[1], Z: eyePosition[2]},
		TextureWidth:   textureWidth,
		TextureHeight:  textureHeight,
		SyncType:       SyncType(syncType),
		Flags:          EntityFlags(flags),
	}

	texturePixels := int(textureWidth * textureHeight)
	for i := uint32(0); i < texturesCount; i++ {
		tex, err := decodeTexture(cur, texturePixels)
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "texture %d: %v", i, err)
		}
		m.Textures = append(m.Textures, tex)
	}

	for i := uint32(0); i < verticesCount; i++ {
		onSeam, _ := cur.ReadLong()
		s, _ := cur.ReadInt32()
		t, err := cur.ReadInt32()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "texcoord %d: %v", i, err)
		}
		m.TexCoords = append(m.TexCoords, TextureCoord{OnSeam: onSeam != 0, S: s, T: t})
	}

	for i := uint32(0); i < trianglesCount; i++ {
		frontFacing, _ := cur.ReadLong()
		var idx [3]uint32
		for j := range idx {
			v, err := cur.ReadLong()
			if err != nil {
				return nil, protoerr.InvalidFormatf(op, "triangle %d: %v", i, err)
			}
			idx[j] = v
		}
		// Reverse winding [a,b,c] -> [a,c,b] to match the Y-up left-handed
		// convention.
		m.Triangles = append(m.Triangles, Triangle{
			FrontFacing: frontFacing != 0,
			Vertices:    [3]uint32{idx[0], idx[2], idx[1]},
		})
	}

	for i := uint32(0); i < framesCount; i++ {
		frame, err := decodeFrame(cur, int(verticesCount), m.Triangles)
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "frame %d: %v", i, err)
		}
		m.Frames = append(m.Frames, frame)
	}

	return m, nil
}

func decodeTexture(cur *netio.Cursor, pixelsPerSkin int) (TimedTexture, error) {
	group, err := cur.ReadLong()
	if err != nil {
		return TimedTexture{}, err
	}
	if group == 0 {
		pixels, err := cur.ReadData(pixelsPerSkin)
		if err != nil {
			return TimedTexture{}, err
		}
		out := make([]byte, len(pixels))
		copy(out, pixels)
		return TimedTexture{Pixels: [][]byte{out}}, nil
	}

	count, err := cur.ReadLong()
	if err != nil {
		return TimedTexture{}, err
	}
	times := make([]float32, count)
	for i := range times {
		t, err := cur.ReadFloat()
		if err != nil {
			return TimedTexture{}, err
		}
		times[i] = t
	}
	pixelSets := make([][]byte, count)
	for i := range pixelSets {
		pixels, err := cur.ReadData(pixelsPerSkin)
		if err != nil {
			return TimedTexture{}, err
		}
		out := make([]byte, len(pixels))
		copy(out, pixels)
		pixelSets[i] = out
	}
	return TimedTexture{Group: true, Pixels: pixelSets, Times: times}, nil
}

func decodeFrame(cur *netio.Cursor, vertexCount int, triangles []Triangle) (Frame, error) {
	group, err := cur.ReadLong()
	if err != nil {
		return Frame{}, err
	}
	if group == 0 {
		sf, err := decodeSimpleFrame(cur, vertexCount, triangles)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Single: sf}, nil
	}

	count, err := cur.ReadLong()
	if err != nil {
		return Frame{}, err
	}
	// Group bounding min/max precede the per-sub-frame times in the on-disk
	// layout; they bound the whole group and are not retained individually.
	if _, err := cur.ReadData(4); err != nil {
		return Frame{}, err
	}
	if _, err := cur.ReadData(4); err != nil {
		return Frame{}, err
	}

	times := make([]float32, count)
	for i := range times {
		t, err := cur.ReadFloat()
		if err != nil {
			return Frame{}, err
		}
		times[i] = t
	}
	frames := make([]SimpleFrame, count)
	for i := range frames {
		sf, err := decodeSimpleFrame(cur, vertexCount, triangles)
		if err != nil {
			return Frame{}, err
		}
		frames[i] = sf
	}
	return Frame{Group: true, Times: times, Frames: frames}, nil
}

func decodeSimpleFrame(cur *netio.Cursor, vertexCount int, triangles []Triangle) (SimpleFrame, error) {
	minV, err := decodeCompressedVertex(cur)
	if err != nil {
		return SimpleFrame{}, err
	}
	maxV, err := decodeCompressedVertex(cur)
	if err != nil {
		return SimpleFrame{}, err
	}
	name, err := cur.ReadCString(16)
	if err != nil {
		return SimpleFrame{}, err
	}

	verts := make([]CompressedVertex, vertexCount)
	for i := range verts {
		v, err := decodeCompressedVertex(cur)
		if err != nil {
			return SimpleFrame{}, err
		}
		verts[i] = v
	}

	return SimpleFrame{
		Name: name, Min: minV, Max: maxV, Vertices: verts,
		Normals: computeNormals(verts, triangles),
	}, nil
}

// decodeCompressedVertex reads the 3 packed position bytes plus a discarded
// normal-table index byte.
func decodeCompressedVertex(cur *netio.Cursor) (CompressedVertex, error) {
	data, err := cur.ReadData(4)
	if err != nil {
		return CompressedVertex{}, err
	}
	return CompressedVertex{Packed: [3]byte{data[0], data[1], data[2]}}, nil
}

// computeNormals accumulates unnormalized triangle cross products into each
// referenced vertex and normalizes; zero-length results collapse to zero
// per the MDL normals invariant.
func computeNormals(verts []CompressedVertex, triangles []Triangle) []netio.Vec3 {
	accum := make([]netio.Vec3, len(verts))
	positions := make([]netio.Vec3, len(verts))
	for i, v := range verts {
		// Normals are accumulated in the vertex's own local (pre-scale)
		// space; scale/translate only affect final world position, not the
		// direction a cross product points.
		positions[i] = netio.Vec3{X: float32(v.Packed[0]), Y: float32(v.Packed[1]), Z: float32(v.Packed[2])}
	}
	for _, tri := range triangles {
		a, b, c := tri.Vertices[0], tri.Vertices[1], tri.Vertices[2]
		if int(a) >= len(positions) || int(b) >= len(positions) || int(c) >= len(positions) {
			continue
		}
		edge1 := positions[b].Sub(positions[a])
		edge2 := positions[c].Sub(positions[a])
		n := edge1.Cross(edge2)
		accum[a] = accum[a].Add(n)
		accum[b] = accum[b].Add(n)
		accum[c] = accum[c].Add(n)
	}
	out := make([]netio.Vec3, len(accum))
	for i, n := range accum {
		out[i] = n.Normalized()
	}
	return out
}
