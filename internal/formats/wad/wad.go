// Package wad decodes the WAD2 texture archive format (C2): a flat
// directory of named pictures and mip-textures, independent of any level.
package wad

import (
	"fmt"
	"path/filepath"

	"github.com/ernie/quakecore/internal/netio"
	"github.com/ernie/quakecore/internal/protoerr"
)

const (
	Magic = "WAD2"

	TypePicture   = 0x42
	TypeMipTexture = 0x44

	dirEntrySize = 32
	nameSize     = 16
)

// ErrCompressionUnsupported is returned when a directory entry's compression
// tag is non-zero; this core does not implement WAD LZSS compression.
var ErrCompressionUnsupported = fmt.Errorf("wad: compressed entries are not supported")

// Entry describes one directory record before its payload is decoded.
type Entry struct {
	Name        string
	Type        uint8
	Compression uint8
	Size        uint32
	DiskSize    uint32
	offset      uint32
}

// Picture is a raw 8-bit palette-indexed image (type 0x42): width*height
// bytes, no mipmaps.
type Picture struct {
	Width, Height uint32
	Pixels        []byte
}

// MipTexture is an opaque four-level mip-textured payload (type 0x44),
// shared with level-embedded mip-textures; see formats/bsp.
type MipTexture struct {
	Name string
	Data []byte
}

// Archive is a decoded WAD2 directory plus lazy-reading access to the
// original buffer.
type Archive struct {
	buf     []byte
	entries map[string]Entry
	order   []string
}

// Decode parses a WAD2 buffer into an Archive. It enforces the magic check
// first and never reads past declared entry bounds.
func Decode(buf []byte) (*Archive, error) {
	const op = "wad.Decode"

	if len(buf) < 12 {
		return nil, protoerr.InvalidFormatf(op, "buffer too small: %d bytes", len(buf))
	}
	cur := netio.NewCursor(buf)
	magic, _ := cur.ReadData(4)
	if string(magic) != Magic {
		return nil, protoerr.InvalidFormatf(op, "bad WAD magic %q", magic)
	}
	count, err := cur.ReadLong()
	if err != nil {
		return nil, protoerr.InvalidFormatf(op, "truncated header: %v", err)
	}
	dirOffset, err := cur.ReadLong()
	if err != nil {
		return nil, protoerr.InvalidFormatf(op, "truncated header: %v", err)
	}

	if err := cur.Seek(int(dirOffset)); err != nil {
		return nil, protoerr.InvalidFormatf(op, "directory offset %d out of range", dirOffset)
	}

	entries := make(map[string]Entry, count)
	order := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		offset, err := cur.ReadLong()
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "truncated directory entry %d", i)
		}
		diskSize, _ := cur.ReadLong()
		size, _ := cur.ReadLong()
		typ, _ := cur.ReadByte()
		compression, _ := cur.ReadByte()
		if _, err := cur.ReadShort(); err != nil { // padding
			return nil, protoerr.InvalidFormatf(op, "truncated directory entry %d", i)
		}
		name, err := cur.ReadCString(nameSize)
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "truncated directory entry %d name", i)
		}
		name = filepath.ToSlash(name)
		if int64(offset)+int64(size) > int64(len(buf)) {
			return nil, protoerr.InvalidFormatf(op, "entry %s out of bounds", name)
		}
		entries[name] = Entry{
			Name: name, Type: typ, Compression: compression,
			Size: size, DiskSize: diskSize, offset: offset,
		}
		order = append(order, name)
	}

	return &Archive{buf: buf, entries: entries, order: order}, nil
}

// Names returns every entry name in directory order.
func (a *Archive) Names() []string { return a.order }

// Entry looks up an entry's metadata by name.
func (a *Archive) Entry(name string) (Entry, bool) {
	e, ok := a.entries[name]
	return e, ok
}

// ReadPicture decodes a type-0x42 entry as a Picture.
func (a *Archive) ReadPicture(name string) (*Picture, error) {
	const op = "wad.Archive.ReadPicture"

	e, ok := a.entries[name]
	if !ok {
		return nil, protoerr.NotFoundf(op, "%s", name)
	}
	if e.Type != TypePicture {
		return nil, protoerr.InvalidFormatf(op, "%s is not a picture (type %#x)", name, e.Type)
	}
	if e.Compression != 0 {
		return nil, protoerr.Wrap(protoerr.KindInvalidFormat, op, ErrCompressionUnsupported)
	}

	cur := netio.NewCursor(a.buf)
	if err := cur.Seek(int(e.offset)); err != nil {
		return nil, protoerr.InvalidFormatf(op, "offset out of range for %s", name)
	}
	width, err := cur.ReadLong()
	if err != nil {
		return nil, protoerr.InvalidFormatf(op, "truncated picture header: %v", err)
	}
	height, err := cur.ReadLong()
	if err != nil {
		return nil, protoerr.InvalidFormatf(op, "truncated picture header: %v", err)
	}
	pixels, err := cur.ReadData(int(width * height))
	if err != nil {
		return nil, protoerr.InvalidFormatf(op, "truncated picture pixels: %v", err)
	}
	out := make([]byte, len(pixels))
	copy(out, pixels)
	return &Picture{Width: width, Height: height, Pixels: out}, nil
}

// ReadMipTexture decodes a type-0x44 entry as an opaque MipTexture payload.
// The four-mipmap internal layout is shared with formats/bsp's embedded mip
// textures and is not unpacked here; Data holds the entry's bytes as stored.
func (a *Archive) ReadMipTexture(name string) (*MipTexture, error) {
	const op = "wad.Archive.ReadMipTexture"

	e, ok := a.entries[name]
	if !ok {
		return nil, protoerr.NotFoundf(op, "%s", name)
	}
	if e.Type != TypeMipTexture {
		return nil, protoerr.InvalidFormatf(op, "%s is not a mip-texture (type %#x)", name, e.Type)
	}
	if e.Compression != 0 {
		return nil, protoerr.Wrap(protoerr.KindInvalidFormat, op, ErrCompressionUnsupported)
	}
	data, err := netio.NewCursor(a.buf[e.offset:]).ReadData(int(e.Size))
	if err != nil {
		return nil, protoerr.InvalidFormatf(op, "truncated mip-texture %s: %v", name, err)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return &MipTexture{Name: name, Data: out}, nil
}
