package installer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"

	"github.com/jamestagal/leaplearn/registry/internal/shared/errs"
)

// Entries the extractor never admits: editor droppings and archive
// metadata directories that upload tools tend to include.
var skipPatterns = []string{
	"**/.*",
	"**/__MACOSX/**",
	"**/Thumbs.db",
	"**/node_modules/**",
}

// archiveKind is the wire format of an uploaded package archive.
type archiveKind int

const (
	kindUnknown archiveKind = iota
	kindZip
	kindTarGz
)

func (k archiveKind) ext() string {
	switch k {
	case kindZip:
		return "zip"
	case kindTarGz:
		return "tgz"
	default:
		return "bin"
	}
}

// detectKind sniffs the archive format from content, never from the
// upload filename.
func detectKind(data []byte) archiveKind {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/zip"):
		return kindZip
	case mt.Is("application/gzip"), mt.Is("application/x-gzip"):
		return kindTarGz
	default:
		return kindUnknown
	}
}

// extract unpacks an archive into an in-memory file map keyed by
// slash-separated relative path. A single shared top-level directory is
// stripped so "pkg-1.0/package.json" and "package.json" land the same.
func extract(data []byte, maxFileBytes int64) (map[string][]byte, error) {
	kind := detectKind(data)

	var files map[string][]byte
	var err error
	switch kind {
	case kindZip:
		files, err = extractZip(data, maxFileBytes)
	case kindTarGz:
		files, err = extractTarGz(data, maxFileBytes)
	default:
		return nil, fmt.Errorf("unsupported archive format %s: %w", mimetype.Detect(data), errs.ErrInvalidPackage)
	}
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("empty archive: %w", errs.ErrInvalidPackage)
	}
	return stripCommonRoot(files), nil
}

func extractZip(data []byte, maxFileBytes int64) (map[string][]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("malformed zip archive: %w", errs.ErrInvalidPackage)
	}

	files := make(map[string][]byte)
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, ok := cleanEntryName(f.Name)
		if !ok {
			continue
		}
		if f.UncompressedSize64 > uint64(maxFileBytes) {
			return nil, fmt.Errorf("archive entry %s exceeds %d bytes: %w", name, maxFileBytes, errs.ErrInvalidPackage)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open archive entry %s: %w", name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxFileBytes+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry %s: %w", name, err)
		}
		if int64(len(content)) > maxFileBytes {
			return nil, fmt.Errorf("archive entry %s exceeds %d bytes: %w", name, maxFileBytes, errs.ErrInvalidPackage)
		}
		files[name] = content
	}
	return files, nil
}

func extractTarGz(data []byte, maxFileBytes int64) (map[string][]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("malformed gzip stream: %w", errs.ErrInvalidPackage)
	}
	defer gz.Close()

	files := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed tar archive: %w", errs.ErrInvalidPackage)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name, ok := cleanEntryName(hdr.Name)
		if !ok {
			continue
		}
		if hdr.Size > maxFileBytes {
			return nil, fmt.Errorf("archive entry %s exceeds %d bytes: %w", name, maxFileBytes, errs.ErrInvalidPackage)
		}
		content, err := io.ReadAll(io.LimitReader(tr, maxFileBytes+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry %s: %w", name, err)
		}
		if int64(len(content)) > maxFileBytes {
			return nil, fmt.Errorf("archive entry %s exceeds %d bytes: %w", name, maxFileBytes, errs.ErrInvalidPackage)
		}
		files[name] = content
	}
	return files, nil
}

// cleanEntryName normalizes an archive entry path and reports whether
// the entry should be kept. Absolute paths and traversal are rejected
// by normalization, junk entries by pattern.
func cleanEntryName(raw string) (string, bool) {
	name := path.Clean(strings.ReplaceAll(raw, `\`, "/"))
	name = strings.TrimPrefix(name, "/")
	if name == "" || name == "." || strings.HasPrefix(name, "..") {
		return "", false
	}
	for _, pattern := range skipPatterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return "", false
		}
	}
	return name, true
}

// stripCommonRoot removes a single directory prefix shared by every
// entry, if one exists.
func stripCommonRoot(files map[string][]byte) map[string][]byte {
	var root string
	for name := range files {
		idx := strings.IndexByte(name, '/')
		if idx < 0 {
			return files
		}
		prefix := name[:idx+1]
		if root == "" {
			root = prefix
		} else if root != prefix {
			return files
		}
	}

	stripped := make(map[string][]byte, len(files))
	for name, content := range files {
		stripped[strings.TrimPrefix(name, root)] = content
	}
	return stripped
}

// sortedPaths returns the file names in lexicographic order. Hashing
// and blob upload iterate in this order so results are reproducible.
func sortedPaths(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
