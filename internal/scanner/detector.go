package scanner

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Magic bytes for package detection
var (
	// Debian packages start with "!<arch>\ndebian"
	debMagic = []byte("!<arch>\ndebian")

	// RPM packages start with 0xED 0xAB 0xEE 0xDB
	rpmMagic = []byte{0xED, 0xAB, 0xEE, 0xDB}

	// Solaris datastream packages start with this comment line
	pkgMagic = []byte("# PaCkAgE DaTaStReAm")

	// Gzip magic bytes (Slackware .tgz)
	gzipMagic = []byte{0x1F, 0x8B}

	// XZ magic bytes (Slackware .txz)
	xzMagic = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
)

// tgzSuffixes are the Slackware package extensions, longest first
var tgzSuffixes = []string{".tar.gz", ".tar.xz", ".tgz", ".taz", ".txz"}

// TgzSuffix returns the Slackware extension of name, or "".
func TgzSuffix(name string) string {
	for _, s := range tgzSuffixes {
		if strings.HasSuffix(name, s) {
			return s
		}
	}
	return ""
}

// DetectPackageType determines the package type based on magic bytes and file extension
func DetectPackageType(path string) (PackageType, error) {
	// Open file
	f, err := os.Open(path)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()

	// Read first 512 bytes for magic byte detection
	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && n == 0 {
		return TypeUnknown, err
	}
	header = header[:n]

	return detect(header, filepath.Base(path)), nil
}

func detect(header []byte, basename string) PackageType {
	ext := filepath.Ext(basename)

	// Check for Debian package
	if bytes.HasPrefix(header, debMagic) {
		return TypeDeb
	}

	// Check for RPM package; LSB packages are RPMs named lsb-*
	if bytes.HasPrefix(header, rpmMagic) {
		if strings.HasPrefix(basename, "lsb-") {
			return TypeLsb
		}
		return TypeRpm
	}

	if bytes.HasPrefix(header, pkgMagic) {
		return TypePkg
	}

	// Slackware packages need both a compressed stream and a known suffix,
	// since plain tarballs share the magic.
	if suffix := TgzSuffix(basename); suffix != "" {
		if bytes.HasPrefix(header, gzipMagic) || bytes.HasPrefix(header, xzMagic) {
			return TypeTgz
		}
	}

	// Fall back to the extension alone for truncated or unusual files, so the
	// codec can report a precise format error.
	switch {
	case ext == ".deb":
		return TypeDeb
	case ext == ".rpm" && strings.HasPrefix(basename, "lsb-"):
		return TypeLsb
	case ext == ".rpm":
		return TypeRpm
	case ext == ".pkg":
		return TypePkg
	case TgzSuffix(basename) != "":
		return TypeTgz
	}

	return TypeUnknown
}
