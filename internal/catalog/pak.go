package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ernie/quakecore/internal/netio"
	"github.com/ernie/quakecore/internal/protoerr"
)

const (
	pakMagic      = "PACK"
	pakDirRecSize = 64
	pakNameSize   = 56
)

type pakEntry struct {
	offset uint32
	size   uint32
}

// pakArchive parses the PAK container format: magic, directory
// offset/length, then fixed-size 64-byte directory records. The directory
// is cached at open time; each Read reopens the file and seeks to the
// entry's offset.
type pakArchive struct {
	path    string
	dir     map[string]pakEntry
	names   []string
}

func openPakArchive(path string) (*pakArchive, error) {
	const op = "catalog.openPakArchive"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := f.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("%s: read header: %w", op, err)
	}
	if string(header[0:4]) != pakMagic {
		return nil, protoerr.InvalidFormatf(op, "bad PAK magic %q in %s", header[0:4], path)
	}
	cur := netio.NewCursor(header[4:])
	dirOffset, _ := cur.ReadLong()
	dirBytes, _ := cur.ReadLong()

	dirData := make([]byte, dirBytes)
	if _, err := f.ReadAt(dirData, int64(dirOffset)); err != nil {
		return nil, fmt.Errorf("%s: read directory: %w", op, err)
	}

	count := int(dirBytes) / pakDirRecSize
	dir := make(map[string]pakEntry, count)
	names := make([]string, 0, count)
	dc := netio.NewCursor(dirData)
	for i := 0; i < count; i++ {
		name, err := dc.ReadCString(pakNameSize)
		if err != nil {
			return nil, protoerr.InvalidFormatf(op, "truncated directory record %d in %s", i, path)
		}
		offset, _ := dc.ReadLong()
		size, _ := dc.ReadLong()
		name = filepath.ToSlash(name)
		dir[name] = pakEntry{offset: offset, size: size}
		names = append(names, name)
	}

	return &pakArchive{path: path, dir: dir, names: names}, nil
}

func (a *pakArchive) Filename() string { return filepath.Base(a.path) }

func (a *pakArchive) Names() []string { return a.names }

func (a *pakArchive) Read(name string) ([]byte, error) {
	const op = "catalog.pakArchive.Read"

	entry, ok := a.dir[name]
	if !ok {
		// PAK names are NUL-padded but not case-folded on disk; try a
		// case-insensitive fallback since overlay filesystems are commonly
		// case-insensitive too.
		lower := strings.ToLower(name)
		for n, e := range a.dir {
			if strings.ToLower(n) == lower {
				entry, ok = e, true
				break
			}
		}
		if !ok {
			return nil, protoerr.NotFoundf(op, "%s not in %s", name, a.path)
		}
	}

	f, err := os.Open(a.path)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}
	defer f.Close()

	data := make([]byte, entry.size)
	if _, err := f.ReadAt(data, int64(entry.offset)); err != nil {
		return nil, protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}
	return data, nil
}
