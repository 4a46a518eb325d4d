package models

import (
	"errors"
	"path"
	"strings"
	"time"
)

// FileKind classifies a manifest entry
type FileKind int

const (
	KindRegular FileKind = iota
	KindDirectory
	KindSymlink
	KindConfFile
	KindDocFile
)

// String returns the string representation of FileKind
func (k FileKind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindConfFile:
		return "conffile"
	case KindDocFile:
		return "docfile"
	default:
		return "unknown"
	}
}

// HasContent reports whether entries of this kind have a body in the staged tree.
func (k FileKind) HasContent() bool {
	return k == KindRegular || k == KindConfFile || k == KindDocFile
}

// FileEntry describes one object shipped by a package.
type FileEntry struct {
	// Path is relative to the install root, see NormalizePath
	Path       string
	Mode       uint32 // permission bits including setuid/setgid/sticky
	Owner      string
	Group      string
	Size       int64
	Kind       FileKind
	LinkTarget string
	// Digest is the hex MD5 of the content for entries that have one
	Digest  string
	ModTime time.Time
}

// ErrPathEscape is returned for paths that leave the install root
var ErrPathEscape = errors.New("path escapes the package root")

// NormalizePath turns an archive member name or absolute install path into the
// canonical manifest form: relative, cleaned, without leading "./" or "/" and
// without a trailing slash. The root itself normalizes to "".
func NormalizePath(p string) (string, error) {
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", ErrPathEscape
		}
	}
	cleaned := path.Clean("/" + p)
	cleaned = strings.TrimPrefix(cleaned, "/")
	return cleaned, nil
}

// Parents returns every ancestor directory of a normalized path, outermost first.
func Parents(p string) []string {
	var out []string
	dir := path.Dir(p)
	for dir != "." && dir != "/" && dir != "" {
		out = append([]string{dir}, out...)
		dir = path.Dir(dir)
	}
	return out
}

// DefaultOwner fills empty owner and group with root.
func (f FileEntry) DefaultOwner() FileEntry {
	if f.Owner == "" {
		f.Owner = "root"
	}
	if f.Group == "" {
		f.Group = "root"
	}
	return f
}
