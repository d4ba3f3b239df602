// Package catalog implements the Asset Catalog (C1): a read-only merge of a
// filesystem overlay directory and zero or more archive containers (PAK,
// WAD), resolved by name with the filesystem always winning and archives
// searched in reverse-lexicographic filename order.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/crypto/blake2b"

	"github.com/ernie/quakecore/internal/protoerr"
)

// archive is satisfied by each supported container format (PAK, WAD). A
// catalog treats every archive uniformly once opened: a sorted name list and
// a by-name byte reader.
type archive interface {
	// Filename is the archive's own base name, used for the
	// reverse-lexicographic ordering rule.
	Filename() string
	// Names lists every entry the archive contains.
	Names() []string
	// Read returns the bytes for name, or protoerr.NotFound.
	Read(name string) ([]byte, error)
}

// Catalog is an immutable, concurrency-safe view over a base directory and
// the archives found anywhere beneath it.
type Catalog struct {
	baseDir  string
	fsNames  []string // paths relative to baseDir, archive containers excluded
	archives []archive
}

// Open builds a Catalog rooted at baseDir. It walks baseDir once to record
// filesystem-visible names and to discover *.pak/*.wad archives; nothing is
// re-scanned afterward, matching the "effectively immutable after
// construction" contract.
func Open(baseDir string) (*Catalog, error) {
	const op = "catalog.Open"

	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}
	if !info.IsDir() {
		return nil, protoerr.InvalidFormatf(op, "%s is not a directory", baseDir)
	}

	var archivePaths []string
	var fsNames []string

	err = filepath.WalkDir(baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(baseDir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		lower := strings.ToLower(rel)
		if strings.HasSuffix(lower, ".pak") || strings.HasSuffix(lower, ".wad") {
			archivePaths = append(archivePaths, path)
			return nil
		}
		fsNames = append(fsNames, rel)
		return nil
	})
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindIOFailed, op, err)
	}

	// Reverse-lexicographic by archive filename: PAK9 beats PAK0.
	sort.Slice(archivePaths, func(i, j int) bool {
		return filepath.Base(archivePaths[i]) > filepath.Base(archivePaths[j])
	})

	archives := make([]archive, 0, len(archivePaths))
	for _, p := range archivePaths {
		a, _, err := openArchive(p)
		if err != nil {
			return nil, protoerr.Wrap(protoerr.KindInvalidFormat, op, err)
		}
		archives = append(archives, a)
	}

	sort.Strings(fsNames)

	return &Catalog{baseDir: baseDir, fsNames: fsNames, archives: archives}, nil
}

// Summary returns a human-readable one-line description of the catalog's
// contents, suitable for a startup log entry (e.g. "3 archives, 128 MB
// archived, 4096 loose files").
func (c *Catalog) Summary() string {
	var archiveBytes uint64
	for _, a := range c.archives {
		for _, name := range a.Names() {
			if data, err := a.Read(name); err == nil {
				archiveBytes += uint64(len(data))
			}
		}
	}
	return fmt.Sprintf("%d archives, %s archived, %d loose files",
		len(c.archives), humanize.Bytes(archiveBytes), len(c.fsNames))
}

func openArchive(path string) (archive, int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}
	if strings.HasSuffix(strings.ToLower(path), ".wad") {
		a, err := openWadArchive(path)
		return a, info.Size(), err
	}
	a, err := openPakArchive(path)
	return a, info.Size(), err
}

// Read resolves name per the C1 contract: filesystem first, then archives in
// reverse-lexicographic order, then NotFound.
func (c *Catalog) Read(name string) ([]byte, error) {
	const op = "catalog.Read"

	fsPath := filepath.Join(c.baseDir, filepath.FromSlash(name))
	if info, err := os.Stat(fsPath); err == nil && !info.IsDir() {
		data, err := os.ReadFile(fsPath)
		if err != nil {
			return nil, protoerr.Wrap(protoerr.KindIOFailed, op, err)
		}
		return data, nil
	}

	for _, a := range c.archives {
		if data, err := a.Read(name); err == nil {
			return data, nil
		}
	}
	return nil, protoerr.NotFoundf(op, "%s", name)
}

// Names returns every resolvable name: filesystem-visible paths first (in
// sorted order), then the union of archive entry names (also sorted), with
// duplicates across archives collapsed.
func (c *Catalog) Names() []string {
	seen := make(map[string]bool, len(c.fsNames))
	names := make([]string, 0, len(c.fsNames))
	for _, n := range c.fsNames {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}

	var archiveNames []string
	archiveSeen := make(map[string]bool)
	for _, a := range c.archives {
		for _, n := range a.Names() {
			if !archiveSeen[n] {
				archiveSeen[n] = true
				archiveNames = append(archiveNames, n)
			}
		}
	}
	sort.Strings(archiveNames)
	for _, n := range archiveNames {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

// BaseDir returns the directory the catalog was opened against.
func (c *Catalog) BaseDir() string { return c.baseDir }

// Fingerprint hashes the catalog's name list (not its contents, which can
// be large) with blake2b into a short hex digest, for correlation in log
// entries and manifest caches rather than integrity verification.
func (c *Catalog) Fingerprint() string {
	h, _ := blake2b.New256(nil)
	for _, n := range c.Names() {
		h.Write([]byte(n))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:8])
}
