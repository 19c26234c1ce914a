package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ErrMalformedArchive indicates the snapshot bytes could not be read as a
// gzipped tar stream.
var ErrMalformedArchive = errors.New("malformed snapshot archive")

// Entry is one regular file from a repository snapshot with its path
// normalized relative to the repository root.
type Entry struct {
	Path string
	Data []byte
}

// ReadSnapshot opens a snapshot archive as a flat list of file entries.
//
// Hosting providers wrap every entry of an exported tree in a single synthetic
// top-level directory whose name encodes the repository and commit. Exactly one
// leading path segment is stripped from each entry so the result can be matched
// against assignment-declared paths, whatever that directory is called.
func ReadSnapshot(raw []byte) ([]Entry, error) {
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
	}
	defer gz.Close()

	var entries []Entry
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		normalized := stripTopSegment(hdr.Name)
		if normalized == "" {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedArchive, err)
		}

		entries = append(entries, Entry{Path: normalized, Data: data})
	}

	return entries, nil
}

func stripTopSegment(name string) string {
	name = strings.TrimPrefix(name, "./")
	idx := strings.IndexByte(name, '/')
	if idx < 0 {
		// A bare file at the archive root is the synthetic directory's
		// sibling metadata; it can never match a repository path.
		return ""
	}
	return name[idx+1:]
}
