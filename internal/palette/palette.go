// Package palette resolves the 256-entry RGB palette that WAD pictures and
// MDL skins index into. The authoritative palette ships as a 768-byte
// gfx/palette.lmp asset inside the game's own resource tree; this package
// reads it from the catalog when present and falls back to a generated
// placeholder otherwise so tooling still produces viewable output against
// an incomplete resource directory.
package palette

import "github.com/ernie/quakecore/internal/catalog"

// Palette is 256 RGB triples indexed by a picture or skin byte.
type Palette [256][3]byte

// Default returns a deterministic placeholder palette: a uniform sampling
// of the RGB cube, distinguishable enough for tooling but not the
// original game's authored colors.
func Default() Palette {
	var p Palette
	for i := 0; i < 256; i++ {
		p[i] = [3]byte{
			byte((i & 0xE0)),
			byte((i & 0x1C) << 3),
			byte((i & 0x03) << 6),
		}
	}
	return p
}

// Load reads "gfx/palette.lmp" from cat, if present, as 256 raw RGB
// triples. It falls back to Default when the asset is absent or malformed.
func Load(cat *catalog.Catalog) Palette {
	data, err := cat.Read("gfx/palette.lmp")
	if err != nil || len(data) != 768 {
		return Default()
	}
	var p Palette
	for i := 0; i < 256; i++ {
		p[i] = [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
	}
	return p
}
