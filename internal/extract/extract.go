// Package extract writes selected body parts of a parsed message to disk.
// Files are named by the BLAKE3 hash of their content, so identical bodies
// are stored once.
package extract

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/zeebo/blake3"

	"github.com/shineum/mimeparse-lite/internal/email"
)

// hashPrefixLen is the number of hash bytes used in file names.
const hashPrefixLen = 16

// ErrNoDir is returned by New when no output directory is given.
var ErrNoDir = errors.New("extract: output directory is required")

// Record describes one extracted part.
type Record struct {
	Path      string
	MediaType string
	Size      int
	Filename  string // from the part's headers, may be empty
	Hash      string // hex BLAKE3-256 of the body
	// Existing reports that a file with the same content was already there,
	// possibly under another extension; Path then names that file.
	Existing bool
}

// Extractor writes matching basic parts into a directory.
type Extractor struct {
	dir      string
	patterns []glob.Glob
}

// New returns an extractor writing into dir. patterns are media type globs
// such as "image/*" or "application/{pdf,zip}"; with no patterns every
// basic part matches.
func New(dir string, patterns []string) (*Extractor, error) {
	if dir == "" {
		return nil, ErrNoDir
	}
	e := &Extractor{dir: dir}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		e.patterns = append(e.patterns, g)
	}
	return e, nil
}

// Match reports whether mediaType is selected.
func (e *Extractor) Match(mediaType string) bool {
	if len(e.patterns) == 0 {
		return true
	}
	mediaType = strings.ToLower(mediaType)
	for _, g := range e.patterns {
		if g.Match(mediaType) {
			return true
		}
	}
	return false
}

// Extract writes every matching basic part of msg, in walk order, and
// returns one record per matching part.
func (e *Extractor) Extract(msg *email.Message) ([]Record, error) {
	if err := os.MkdirAll(e.dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var records []Record
	for _, bp := range email.BasicParts(msg) {
		mediaType := bp.MediaType()
		if !e.Match(mediaType) {
			continue
		}
		data := bp.Bytes()
		sum := blake3.Sum256(data)
		rec := Record{
			MediaType: mediaType,
			Size:      len(data),
			Filename:  bp.Filename(),
			Hash:      hex.EncodeToString(sum[:]),
		}
		prefix := rec.Hash[:hashPrefixLen*2]
		if matches, _ := filepath.Glob(filepath.Join(e.dir, prefix+"*")); len(matches) > 0 {
			rec.Path, rec.Existing = matches[0], true
		} else {
			rec.Path = filepath.Join(e.dir, prefix+extension(rec.Filename, mediaType))
			existing, err := writeOnce(rec.Path, data)
			if err != nil {
				return records, fmt.Errorf("failed to write %s part: %w", mediaType, err)
			}
			rec.Existing = existing
		}
		slog.Debug("extracted part",
			"path", rec.Path,
			"media_type", mediaType,
			"size", rec.Size,
			"existing", rec.Existing,
		)
		records = append(records, rec)
	}
	return records, nil
}

// writeOnce creates path with data unless it already exists.
func writeOnce(path string, data []byte) (existing bool, err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if errors.Is(err, fs.ErrExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return false, err
	}
	return false, f.Close()
}

// extension picks a file extension from the part's file name, falling back
// to the media type and then to ".bin".
func extension(filename, mediaType string) string {
	if ext := strings.ToLower(filepath.Ext(filepath.Base(filename))); validExt(ext) {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, c := range ext[1:] {
		if !('a' <= c && c <= 'z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}
