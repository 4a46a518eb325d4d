package pipeline

import (
	"fmt"

	"github.com/ralt/pkgconv/internal/codec"
	"github.com/ralt/pkgconv/internal/codec/deb"
	pkgfmt "github.com/ralt/pkgconv/internal/codec/pkg"
	"github.com/ralt/pkgconv/internal/codec/rpm"
	"github.com/ralt/pkgconv/internal/codec/tgz"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
)

// CodecFor returns the codec of package type t
func CodecFor(t scanner.PackageType, opts codec.WriteOptions) (codec.Codec, error) {
	switch t {
	case scanner.TypeDeb:
		return deb.New(opts), nil
	case scanner.TypeRpm:
		return rpm.New(opts), nil
	case scanner.TypeLsb:
		return rpm.NewLSB(opts), nil
	case scanner.TypeTgz:
		return tgz.New(opts), nil
	case scanner.TypePkg:
		return pkgfmt.New(opts), nil
	}
	return nil, &models.ConversionError{
		Type:   models.ErrInvalidConfig,
		Offset: -1,
		Err:    fmt.Errorf("no codec for package type %s", t),
	}
}

// embedsSignature reports whether the codec signs packages of type t itself.
// Other formats get a detached .asc next to the package.
func embedsSignature(t scanner.PackageType) bool {
	return t == scanner.TypeDeb || t.Family() == scanner.TypeRpm
}
