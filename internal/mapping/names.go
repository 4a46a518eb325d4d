package mapping

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ralt/pkgconv/internal/scanner"
)

// MaxPkgAbbreviation is the longest PKG value Solaris accepts
const MaxPkgAbbreviation = 32

// MapName applies the target format's naming rules. The transform is lossy and
// one-directional: case folded for Debian is not restored on the way back.
func MapName(name string, target scanner.PackageType) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("package name is empty")
	}

	switch target {
	case scanner.TypeDeb:
		mapped := strings.Map(func(r rune) rune {
			r = unicode.ToLower(r)
			switch {
			case r == '_':
				return '-'
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '-', r == '.':
				return r
			}
			return -1
		}, name)
		if len(mapped) < 2 || !isASCIIAlnum(rune(mapped[0])) {
			return "", fmt.Errorf("%q cannot be expressed as a Debian package name", name)
		}
		return mapped, nil
	case scanner.TypeRpm, scanner.TypeLsb:
		mapped := replaceRunes(name, "-", func(r rune) bool { return unicode.IsSpace(r) || r == '/' })
		if target == scanner.TypeLsb && !strings.HasPrefix(mapped, "lsb-") {
			mapped = "lsb-" + mapped
		}
		return mapped, nil
	case scanner.TypeTgz:
		return replaceRunes(name, "_", func(r rune) bool { return unicode.IsSpace(r) || r == '/' }), nil
	case scanner.TypePkg:
		return replaceRunes(name, "-", func(r rune) bool {
			return !isASCIIAlnum(r) && !strings.ContainsRune("+-.", r)
		}), nil
	}
	return name, nil
}

func replaceRunes(s, with string, bad func(rune) bool) string {
	var b strings.Builder
	for _, r := range s {
		if bad(r) {
			b.WriteString(with)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PkgAbbreviation derives the Solaris PKG instance name from a package name:
// lib* becomes l*, *-perl becomes *p and perl-* becomes pl*. Characters PKG
// does not allow become "-", and a leading non-letter gets a "p" prefix.
func PkgAbbreviation(name string) string {
	if strings.HasPrefix(name, "lib") {
		name = "l" + strings.TrimPrefix(name, "lib")
	}
	if strings.HasSuffix(name, "-perl") {
		name = strings.TrimSuffix(name, "-perl") + "p"
	}
	if strings.HasPrefix(name, "perl-") {
		name = "pl" + strings.TrimPrefix(name, "perl-")
	}
	name = replaceRunes(name, "-", func(r rune) bool {
		return !isASCIIAlnum(r) && r != '+' && r != '-'
	})
	if name != "" && !unicode.IsLetter(rune(name[0])) {
		name = "p" + name
	}
	return name
}
