package domain

import (
	"path"
	"path/filepath"
	"strings"
)

// Locations are opaque addressable strings. A plain filesystem path is
// the common case; composite locations (an entry inside an archive, an
// unsaved editor buffer) carry a scheme prefix such as
// "zip:///tmp/a.zip!/inner/file.txt" or "untitled://buffer-3".

// IsFileLocation reports whether location addresses a plain filesystem
// path that source-control tooling can operate on.
func IsFileLocation(location string) bool {
	if location == "" {
		return false
	}
	scheme, _, ok := strings.Cut(location, "://")
	if !ok {
		return true
	}
	// "file://" qualified locations are still filesystem-backed.
	return scheme == "file"
}

// FilePath extracts the filesystem path from a location, or returns
// ErrInvalidLocation for locations that are not filesystem-backed or
// are malformed.
func FilePath(location string) (string, error) {
	if location == "" {
		return "", ErrInvalidLocation
	}
	scheme, rest, ok := strings.Cut(location, "://")
	if !ok {
		return filepath.Clean(location), nil
	}
	if scheme != "file" || rest == "" {
		return "", ErrInvalidLocation
	}
	return filepath.Clean(rest), nil
}

// DisplayName returns the last segment of a location, for UI labels.
func DisplayName(location string) string {
	if _, rest, ok := strings.Cut(location, "://"); ok {
		location = rest
	}
	// Archive-internal entries separate the member path with "!".
	if idx := strings.LastIndex(location, "!"); idx >= 0 && idx < len(location)-1 {
		location = location[idx+1:]
	}
	name := path.Base(filepath.ToSlash(location))
	if name == "." || name == "/" {
		return location
	}
	return name
}
