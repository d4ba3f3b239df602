// Package bsp decodes the Quake level (BSP) format: a version tag followed
// by fifteen fixed-order lumps. Field layout and the node/clip-node sign
// conventions follow the engine's BSP reader; unlike that reader, an
// unrecognized entity key is collected rather than treated as fatal.
package bsp

import (
	"fmt"

	"github.com/ernie/quakecore/internal/netio"
	"github.com/ernie/quakecore/internal/protoerr"
)

const Version = 0x1D

// Lump indices, in the fixed on-disk order.
const (
	LumpEntities = iota
	LumpPlanes
	LumpTextures
	LumpVertexes
	LumpVisibility
	LumpNodes
	LumpTexInfo
	LumpFaces
	LumpLightmap
	LumpClipNodes
	LumpLeaves
	LumpMarkSurfaces
	LumpEdges
	LumpSurfEdges
	LumpBrushModels
	numLumps
)

const headerSize = 4 + numLumps*8

// Per-record byte sizes.
const (
	planeSize      = 20
	vertexSize     = 12
	nodeSize       = 24
	texInfoSize    = 40
	faceSize       = 20
	clipNodeSize   = 8
	leafSize       = 28
	markSurfSize   = 2
	edgeSize       = 4
	surfEdgeSize   = 4
	brushModelSize = 64
)

// ContentType tags a clip-node leaf with one of the six content kinds.
type ContentType int16

const (
	ContentEmpty ContentType = -1
	ContentSolid ContentType = -2
	ContentWater ContentType = -3
	ContentSlime ContentType = -4
	ContentLava  ContentType = -5
	ContentSky   ContentType = -6
)

func (c ContentType) String() string {
	switch c {
	case ContentEmpty:
		return "empty"
	case ContentSolid:
		return "solid"
	case ContentWater:
		return "water"
	case ContentSlime:
		return "slime"
	case ContentLava:
		return "lava"
	case ContentSky:
		return "sky"
	default:
		return fmt.Sprintf("content(%d)", int16(c))
	}
}

type lump struct {
	offset uint32
	size   uint32
}

// Plane is a BSP splitting plane.
type Plane struct {
	Normal netio.Vec3
	Dist   float32
	Type   int32
}

// Vertex is a raw basis-converted position.
type Vertex struct {
	Position netio.Vec3
}

// Node is an interior BSP node. Children that are negative denote a leaf,
// recovered with NodeChildLeaf/NodeChildIsLeaf.
type Node struct {
	PlaneIndex  int32
	Children    [2]int32
	Mins, Maxs  [3]int16
	FirstFace   uint16
	NumFaces    uint16
}

// NodeChildIsLeaf reports whether a node child index denotes a leaf.
func NodeChildIsLeaf(child int32) bool { return child < 0 }

// NodeChildLeaf recovers the leaf index from a negative child value. Leaf
// indices are stored in two's-complement-NOT form: leaf = ^child.
func NodeChildLeaf(child int32) int32 { return ^child }

// ClipNode is a BSP node used only for collision queries; its leaves are
// ContentType tags rather than geometry leaves.
type ClipNode struct {
	PlaneIndex int32
	Children   [2]int32 // negative values are ContentType tags, not leaf indices
}

// TexInfo maps a face onto a texture with per-axis projection vectors.
type TexInfo struct {
	S, T         netio.Vec3
	SShift, TShift float32
	TextureIndex int32
	Flags        int32
}

// Face is a planar polygon referencing a contiguous run of surface-edges.
type Face struct {
	PlaneIndex   int16
	Side         int16
	FirstEdge    int32
	NumEdges     int16
	TexInfoIndex int16
	Styles       [4]uint8
	LightOffset  int32
}

// Leaf is a convex visibility/collision leaf.
type Leaf struct {
	Contents     ContentType
	VisOffset    int32
	Mins, Maxs   [3]int16
	FirstMark    uint16
	NumMark      uint16
	AmbientLevel [4]uint8
}

// Edge is an undirected pair of vertex indices.
type Edge struct {
	V [2]uint16
}

// SurfEdge is a directed reference into Edges: positive means the edge runs
// V[0]->V[1], negative means V[1]->V[0].
type SurfEdge int32

// BrushModel is a self-contained brush sub-model (e.g. a door) referencing a
// range of nodes/faces/clip-nodes.
type BrushModel struct {
	Mins, Maxs  netio.Vec3
	Origin      netio.Vec3
	HeadNode    [4]int32
	VisLeafs    int32
	FirstFace   int32
	NumFaces    int32
}

// MipTexture is a level-embedded texture name with its size and the offsets
// of its four mipmap levels. External is set when the texture directory
// holds a negative offset for this slot; such an entry carries no name, size
// or offsets. Zero MipLevelOffsets are kept as read and not interpreted.
type MipTexture struct {
	Name            string
	Width, Height   uint32
	MipLevelOffsets [4]uint32
	External        bool
}

// Entity is one `{...}` block from the entities lump: a set of key/value
// pairs plus any keys this core does not give typed treatment, collected
// rather than dropped.
type Entity struct {
	Fields     map[string]string
	Unknown    map[string]string
	Classname  string
	Origin     netio.Vec3
	HasOrigin  bool
}

// Level is the fully decoded BSP file.
type Level struct {
	Entities     []Entity
	Planes       []Plane
	Textures     []MipTexture
	Vertexes     []Vertex
	Visibility   []byte
	Nodes        []Node
	TexInfo      []TexInfo
	Faces        []Face
	Lightmap     []byte
	ClipNodes    []ClipNode
	Leaves       []Leaf
	MarkSurfaces []uint16
	Edges        []Edge
	SurfEdges    []SurfEdge
	BrushModels  []BrushModel
}

// Decode parses a complete BSP buffer. It checks the version tag first,
// then every lump offset+size against the buffer length before reading any
// record, so a truncated or hostile file fails fast with InvalidFormat
// rather than panicking on an out-of-range slice.
func Decode(buf []byte) (*Level, error) {
	const op = "bsp.Decode"

	if len(buf) < headerSize {
		return nil, protoerr.InvalidFormatf(op, "buffer too small: %d bytes", len(buf))
	}
	cur := netio.NewCursor(buf)
	version, _ := cur.ReadLong()
	if version != Version {
		return nil, protoerr.InvalidFormatf(op, "unsupported BSP version %#x", version)
	}

	var lumps [numLumps]lump
	for i := 0; i < numLumps; i++ {
		offset, _ := cur.ReadLong()
		size, _ := cur.ReadLong()
		if int64(offset)+int64(size) > int64(len(buf)) {
			return nil, protoerr.InvalidFormatf(op, "lump %d offset+size exceeds file size", i)
		}
		lumps[i] = lump{offset: offset, size: size}
	}

	lvl := &Level{}
	var err error

	if lvl.Entities, err = decodeEntities(buf, lumps[LumpEntities]); err != nil {
		return nil, err
	}
	if lvl.Planes, err = decodePlanes(buf, lumps[LumpPlanes]); err != nil {
		return nil, err
	}
	if lvl.Textures, err = decodeMipTextures(buf, lumps[LumpTextures]); err != nil {
		return nil, err
	}
	if lvl.Vertexes, err = decodeVertexes(buf, lumps[LumpVertexes]); err != nil {
		return nil, err
	}
	lvl.Visibility = sliceLump(buf, lumps[LumpVisibility])
	if lvl.Nodes, err = decodeNodes(buf, lumps[LumpNodes]); err != nil {
		return nil, err
	}
	if lvl.TexInfo, err = decodeTexInfo(buf, lumps[LumpTexInfo]); err != nil {
		return nil, err
	}
	if lvl.Faces, err = decodeFaces(buf, lumps[LumpFaces]); err != nil {
		return nil, err
	}
	lvl.Lightmap = sliceLump(buf, lumps[LumpLightmap])
	if lvl.ClipNodes, err = decodeClipNodes(buf, lumps[LumpClipNodes]); err != nil {
		return nil, err
	}
	if lvl.Leaves, err = decodeLeaves(buf, lumps[LumpLeaves]); err != nil {
		return nil, err
	}
	if lvl.MarkSurfaces, err = decodeMarkSurfaces(buf, lumps[LumpMarkSurfaces]); err != nil {
		return nil, err
	}
	if lvl.Edges, err = decodeEdges(buf, lumps[LumpEdges]); err != nil {
		return nil, err
	}
	if lvl.SurfEdges, err = decodeSurfEdges(buf, lumps[LumpSurfEdges]); err != nil {
		return nil, err
	}
	if lvl.BrushModels, err = decodeBrushModels(buf, lumps[LumpBrushModels]); err != nil {
		return nil, err
	}

	return lvl, nil
}

func sliceLump(buf []byte, l lump) []byte {
	if l.size == 0 {
		return nil
	}
	out := make([]byte, l.size)
	copy(out, buf[l.offset:l.offset+l.size])
	return out
}

func lumpCursor(buf []byte, l lump) *netio.Cursor {
	return netio.NewCursor(buf[l.offset : l.offset+l.size])
}

func decodePlanes(buf []byte, l lump) ([]Plane, error) {
	const op = "bsp.decodePlanes"
	count := int(l.size) / planeSize
	out := make([]Plane, count)
	cur := lumpCursor(buf, l)
	for i := range out {
		normal, err := cur.ReadVec3()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "plane %d: %v", i, err)
		}
		dist, _ := cur.ReadFloat()
		typ, _ := cur.ReadInt32()
		out[i] = Plane{Normal: normal, Dist: dist, Type: typ}
	}
	return out, nil
}

func decodeVertexes(buf []byte, l lump) ([]Vertex, error) {
	const op = "bsp.decodeVertexes"
	count := int(l.size) / vertexSize
	out := make([]Vertex, count)
	cur := lumpCursor(buf, l)
	for i := range out {
		pos, err := cur.ReadVec3()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "vertex %d: %v", i, err)
		}
		out[i] = Vertex{Position: pos}
	}
	return out, nil
}

func decodeNodes(buf []byte, l lump) ([]Node, error) {
	const op = "bsp.decodeNodes"
	count := int(l.size) / nodeSize
	out := make([]Node, count)
	cur := lumpCursor(buf, l)
	for i := range out {
		plane, _ := cur.ReadInt32()
		c0, _ := cur.ReadInt16()
		c1, _ := cur.ReadInt16()
		var mins, maxs [3]int16
		for j := 0; j < 3; j++ {
			v, err := cur.ReadInt16()
			if err != nil {
				return nil, protoerr.InvalidFormatf(op, "node %d mins: %v", i, err)
			}
			mins[j] = v
		}
		for j := 0; j < 3; j++ {
			v, err := cur.ReadInt16()
			if err != nil {
				return nil, protoerr.InvalidFormatf(op, "node %d maxs: %v", i, err)
			}
			maxs[j] = v
		}
		firstFace, _ := cur.ReadShort()
		numFaces, _ := cur.ReadShort()
		out[i] = Node{
			PlaneIndex: plane,
			Children:   [2]int32{int32(c0), int32(c1)},
			Mins:       mins, Maxs: maxs,
			FirstFace: firstFace, NumFaces: numFaces,
		}
	}
	return out, nil
}

func decodeClipNodes(buf []byte, l lump) ([]ClipNode, error) {
	const op = "bsp.decodeClipNodes"
	count := int(l.size) / clipNodeSize
	out := make([]ClipNode, count)
	cur := lumpCursor(buf, l)
	for i := range out {
		plane, err := cur.ReadInt32()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "clip-node %d: %v", i, err)
		}
		c0, _ := cur.ReadInt16()
		c1, _ := cur.ReadInt16()
		out[i] = ClipNode{PlaneIndex: plane, Children: [2]int32{int32(c0), int32(c1)}}
	}
	return out, nil
}

func decodeTexInfo(buf []byte, l lump) ([]TexInfo, error) {
	const op = "bsp.decodeTexInfo"
	count := int(l.size) / texInfoSize
	out := make([]TexInfo, count)
	cur := lumpCursor(buf, l)
	for i := range out {
		// S/T are texture-axis vectors, not world-space positions, so they
		// stay in native basis; nothing here consumes them swapped.
		s, err := cur.ReadVec3Raw()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "tex-info %d: %v", i, err)
		}
		sShift, _ := cur.ReadFloat()
		t, _ := cur.ReadVec3Raw()
		tShift, _ := cur.ReadFloat()
		texIndex, _ := cur.ReadInt32()
		flags, _ := cur.ReadInt32()
		out[i] = TexInfo{
			S: netio.Vec3{X: s[0], Y: s[1], Z: s[2]},
			T: netio.Vec3{X: t[0], Y: t[1], Z: t[2]},
			SShift: sShift, TShift: tShift,
			TextureIndex: texIndex, Flags: flags,
		}
	}
	return out, nil
}

func decodeFaces(buf []byte, l lump) ([]Face, error) {
	const op = "bsp.decodeFaces"
	count := int(l.size) / faceSize
	out := make([]Face, count)
	cur := lumpCursor(buf, l)
	for i := range out {
		plane, _ := cur.ReadInt16()
		side, _ := cur.ReadInt16()
		firstEdge, _ := cur.ReadInt32()
		numEdges, _ := cur.ReadInt16()
		texInfo, _ := cur.ReadInt16()
		var styles [4]uint8
		for j := range styles {
			b, err := cur.ReadByte()
			if err != nil {
				return nil, protoerr.InvalidFormatf(op, "face %d styles: %v", i, err)
			}
			styles[j] = b
		}
		lightOfs, _ := cur.ReadInt32()
		out[i] = Face{
			PlaneIndex: plane, Side: side, FirstEdge: firstEdge, NumEdges: numEdges,
			TexInfoIndex: texInfo, Styles: styles, LightOffset: lightOfs,
		}
	}
	return out, nil
}

func decodeLeaves(buf []byte, l lump) ([]Leaf, error) {
	const op = "bsp.decodeLeaves"
	count := int(l.size) / leafSize
	out := make([]Leaf, count)
	cur := lumpCursor(buf, l)
	for i := range out {
		contents, err := cur.ReadInt32()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "leaf %d: %v", i, err)
		}
		visOfs, _ := cur.ReadInt32()
		var mins, maxs [3]int16
		for j := 0; j < 3; j++ {
			v, _ := cur.ReadInt16()
			mins[j] = v
		}
		for j := 0; j < 3; j++ {
			v, _ := cur.ReadInt16()
			maxs[j] = v
		}
		firstMark, _ := cur.ReadShort()
		numMark, _ := cur.ReadShort()
		var ambient [4]uint8
		for j := range ambient {
			b, err := cur.ReadByte()
			if err != nil {
				return nil, protoerr.InvalidFormatf(op, "leaf %d ambient: %v", i, err)
			}
			ambient[j] = b
		}
		out[i] = Leaf{
			Contents: ContentType(contents), VisOffset: visOfs,
			Mins: mins, Maxs: maxs, FirstMark: firstMark, NumMark: numMark,
			AmbientLevel: ambient,
		}
	}
	return out, nil
}

func decodeMarkSurfaces(buf []byte, l lump) ([]uint16, error) {
	const op = "bsp.decodeMarkSurfaces"
	count := int(l.size) / markSurfSize
	out := make([]uint16, count)
	cur := lumpCursor(buf, l)
	for i := range out {
		v, err := cur.ReadShort()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "mark-surface %d: %v", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func decodeEdges(buf []byte, l lump) ([]Edge, error) {
	const op = "bsp.decodeEdges"
	count := int(l.size) / edgeSize
	out := make([]Edge, count)
	cur := lumpCursor(buf, l)
	for i := range out {
		v0, err := cur.ReadShort()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "edge %d: %v", i, err)
		}
		v1, _ := cur.ReadShort()
		out[i] = Edge{V: [2]uint16{v0, v1}}
	}
	return out, nil
}

func decodeSurfEdges(buf []byte, l lump) ([]SurfEdge, error) {
	const op = "bsp.decodeSurfEdges"
	count := int(l.size) / surfEdgeSize
	out := make([]SurfEdge, count)
	cur := lumpCursor(buf, l)
	for i := range out {
		v, err := cur.ReadInt32()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "surf-edge %d: %v", i, err)
		}
		out[i] = SurfEdge(v)
	}
	return out, nil
}

func decodeBrushModels(buf []byte, l lump) ([]BrushModel, error) {
	const op = "bsp.decodeBrushModels"
	count := int(l.size) / brushModelSize
	out := make([]BrushModel, count)
	cur := lumpCursor(buf, l)
	for i := range out {
		mins, err := cur.ReadVec3()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "brush-model %d: %v", i, err)
		}
		maxs, _ := cur.ReadVec3()
		origin, _ := cur.ReadVec3()
		var headNode [4]int32
		for j := range headNode {
			v, _ := cur.ReadInt32()
			headNode[j] = v
		}
		visLeafs, _ := cur.ReadInt32()
		firstFace, _ := cur.ReadInt32()
		numFaces, _ := cur.ReadInt32()
		out[i] = BrushModel{
			Mins: mins, Maxs: maxs, Origin: origin, HeadNode: headNode,
			VisLeafs: visLeafs, FirstFace: firstFace, NumFaces: numFaces,
		}
	}
	return out, nil
}

func decodeMipTextures(buf []byte, l lump) ([]MipTexture, error) {
	const op = "bsp.decodeMipTextures"
	if l.size == 0 {
		return nil, nil
	}
	cur := lumpCursor(buf, l)
	count, err := cur.ReadLong()
	if err != nil {
		return nil, protoerr.InvalidFormatf(op, "truncated texture count: %v", err)
	}
	offsets := make([]int32, count)
	for i := range offsets {
		v, err := cur.ReadInt32()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "truncated texture offset %d: %v", i, err)
		}
		offsets[i] = v
	}

	lumpBuf := buf[l.offset : l.offset+l.size]
	out := make([]MipTexture, count)
	for i, off := range offsets {
		if off < 0 {
			out[i] = MipTexture{External: true}
			continue
		}
		if int64(off)+40 > int64(len(lumpBuf)) {
			return nil, protoerr.InvalidFormatf(op, "texture %d header out of bounds", i)
		}
		tc := netio.NewCursor(lumpBuf[off:])
		name, _ := tc.ReadCString(16)
		width, _ := tc.ReadLong()
		height, _ := tc.ReadLong()
		var mipOffsets [4]uint32
		for j := range mipOffsets {
			v, _ := tc.ReadLong()
			mipOffsets[j] = v
		}
		out[i] = MipTexture{Name: name, Width: width, Height: height, MipLevelOffsets: mipOffsets}
	}
	return out, nil
}
