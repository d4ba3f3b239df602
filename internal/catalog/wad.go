package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ernie/quakecore/internal/formats/wad"
)

// wadArchive adapts a decoded WAD2 directory to the catalog's archive
// interface so texture archives participate in Read/Names resolution
// exactly like PAK archives.
type wadArchive struct {
	path string
	arc  *wad.Archive
}

func openWadArchive(path string) (*wadArchive, error) {
	const op = "catalog.openWadArchive"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	arc, err := wad.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &wadArchive{path: path, arc: arc}, nil
}

func (a *wadArchive) Filename() string { return filepath.Base(a.path) }

func (a *wadArchive) Names() []string { return a.arc.Names() }

func (a *wadArchive) Read(name string) ([]byte, error) {
	if e, ok := a.arc.Entry(name); ok {
		switch e.Type {
		case wad.TypePicture:
			pic, err := a.arc.ReadPicture(name)
			if err != nil {
				return nil, err
			}
			return pic.Pixels, nil
		case wad.TypeMipTexture:
			mt, err := a.arc.ReadMipTexture(name)
			if err != nil {
				return nil, err
			}
			return mt.Data, nil
		}
	}
	return nil, fmt.Errorf("catalog.wadArchive.Read: %s not in %s", name, a.path)
}
