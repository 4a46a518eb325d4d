// Package codec defines the reader/writer contract shared by the package
// formats and the archive helpers they have in common.
package codec

import (
	"context"
	"io"

	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/ralt/pkgconv/internal/staging"
)

// Codec reads and writes one package format
type Codec interface {
	// Type returns the package type this codec supports
	Type() scanner.PackageType

	// Read parses the package at path, stages its contents into arena and
	// returns the canonical package.
	Read(ctx context.Context, path string, arena *staging.Arena) (*models.Package, error)

	// Write serializes pkg, whose contents are staged in arena, to w.
	Write(ctx context.Context, pkg *models.Package, arena *staging.Arena, w io.Writer) error

	// Filename returns the conventional file name for pkg in this format
	Filename(pkg *models.Package) string
}

// Signer produces detached OpenPGP signatures for formats that embed them
type Signer interface {
	// SignDetachedBinary returns an unarmored detached signature of data
	SignDetachedBinary(data []byte) ([]byte, error)
}

// WriteOptions are the writer settings shared by all codecs
type WriteOptions struct {
	// Compression names the payload compression (gzip, xz, zstd)
	Compression string
	// Signer signs the package when the format supports embedded signatures
	Signer Signer
	// Changelog asks writers to ship the changelog as a file where the format
	// has no metadata field for it
	Changelog bool
}
