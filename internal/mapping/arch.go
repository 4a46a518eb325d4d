package mapping

import (
	"strings"

	"github.com/ralt/pkgconv/internal/scanner"
)

// Canonical architecture tokens follow Debian naming.

var rpmFromCanonical = map[string]string{
	"amd64":   "x86_64",
	"arm64":   "aarch64",
	"armel":   "armv7l",
	"armhf":   "armv7hl",
	"arm":     "armv4l",
	"powerpc": "ppc",
	"ppc64el": "ppc64le",
	"hppa":    "parisc",
	"all":     "noarch",
}

var rpmToCanonical = map[string]string{
	"x86_64":  "amd64",
	"em64t":   "amd64",
	"aarch64": "arm64",
	"armv7l":  "armel",
	"armv7hl": "armhf",
	"armv4l":  "arm",
	"ppc":     "powerpc",
	"ppc64le": "ppc64el",
	"parisc":  "hppa",
	"noarch":  "all",
}

var tgzFromCanonical = map[string]string{
	"amd64": "x86_64",
	"i386":  "i586",
	"arm64": "aarch64",
	"armel": "arm",
	"all":   "noarch",
}

var tgzToCanonical = map[string]string{
	"x86_64":  "amd64",
	"aarch64": "arm64",
	"arm":     "armel",
	"noarch":  "all",
	"fw":      "all",
}

var pkgFromCanonical = map[string]string{
	"amd64": "i386",
	"i386":  "i386",
	"all":   "all",
	"sparc": "sparc",
}

// isX86 matches the 32-bit x86 spellings used by RPM and Slackware
func isX86(arch string) bool {
	if len(arch) == 4 && arch[0] == 'i' && strings.HasSuffix(arch, "86") {
		return true
	}
	return strings.HasPrefix(arch, "pentium") || strings.HasPrefix(arch, "athlon")
}

// ArchToCanonical converts a native architecture token of format t to the canonical token.
func ArchToCanonical(t scanner.PackageType, native string) string {
	native = strings.TrimSpace(native)
	switch t.Family() {
	case scanner.TypeRpm:
		if isX86(native) {
			return "i386"
		}
		if c, ok := rpmToCanonical[native]; ok {
			return c
		}
	case scanner.TypeTgz:
		if isX86(native) {
			return "i386"
		}
		if c, ok := tgzToCanonical[native]; ok {
			return c
		}
	case scanner.TypePkg:
		// Solaris packages may list several architectures
		first, _, _ := strings.Cut(native, ",")
		if first == "" {
			return "all"
		}
		return strings.ToLower(first)
	}
	if native == "" {
		return "all"
	}
	return native
}

// ArchFromCanonical converts a canonical architecture token to format t's spelling.
func ArchFromCanonical(t scanner.PackageType, arch string) string {
	var table map[string]string
	switch t.Family() {
	case scanner.TypeRpm:
		table = rpmFromCanonical
	case scanner.TypeTgz:
		table = tgzFromCanonical
	case scanner.TypePkg:
		table = pkgFromCanonical
	default:
		return arch
	}
	if native, ok := table[arch]; ok {
		return native
	}
	return arch
}
