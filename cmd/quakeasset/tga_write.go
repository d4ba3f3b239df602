package main

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ernie/quakecore/internal/palette"
)

// writeTGA encodes a palette-indexed image as an uncompressed 24-bit
// truecolor TGA. github.com/ftrvxmtrx/tga only implements the decode
// direction, so the dump side of the round trip is hand-rolled against the
// same (small, fixed) header layout its decoder reads back.
func writeTGA(w io.Writer, pixels []byte, width, height int, pal palette.Palette) error {
	if len(pixels) != width*height {
		return fmt.Errorf("writeTGA: pixel count %d does not match %dx%d", len(pixels), width, height)
	}

	header := make([]byte, 18)
	header[2] = 2 // uncompressed truecolor
	binary.LittleEndian.PutUint16(header[12:], uint16(width))
	binary.LittleEndian.PutUint16(header[14:], uint16(height))
	header[16] = 24 // bits per pixel
	if _, err := w.Write(header); err != nil {
		return err
	}

	// TGA stores rows bottom-to-top.
	row := make([]byte, width*3)
	for y := height - 1; y >= 0; y-- {
		for x := 0; x < width; x++ {
			c := pal[pixels[y*width+x]]
			// BGR order.
			row[x*3+0] = c[2]
			row[x*3+1] = c[1]
			row[x*3+2] = c[0]
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
