package pkg

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/ralt/pkgconv/internal/mapping"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
)

// pkginfo keys
const (
	keyPkg      = "PKG"
	keyName     = "NAME"
	keyArch     = "ARCH"
	keyVersion  = "VERSION"
	keyCategory = "CATEGORY"
	keyVendor   = "VENDOR"
	keyEmail    = "EMAIL"
	keyDesc     = "DESC"
	keyBasedir  = "BASEDIR"
)

var mandatoryKeys = []string{keyPkg, keyName, keyArch, keyVersion, keyCategory}

const defaultSummary = "Converted Solaris pkg package"

// parsePkginfo reads KEY=value lines. Lines without "=" continue the previous value.
func parsePkginfo(data []byte) map[string]string {
	values := make(map[string]string)
	var key string

	lines := bufio.NewScanner(bytes.NewReader(data))
	for lines.Scan() {
		line := lines.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok && isKey(k) {
			key = k
			values[key] = v
			continue
		}
		if key != "" {
			values[key] += "\n" + line
		}
	}

	for k, v := range values {
		values[k] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	return values
}

func isKey(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// packageFromPkginfo fills the package identity and metadata from pkginfo
func packageFromPkginfo(values map[string]string) (*models.Package, error) {
	for _, key := range mandatoryKeys {
		if _, ok := values[key]; !ok {
			return nil, models.NewFormatError(key, -1, fmt.Errorf("missing mandatory pkginfo key %s", key))
		}
	}

	name := values[keyName]
	summary := ""
	if strings.ContainsFunc(name, unicode.IsSpace) || name == "" {
		summary = name
		name = values[keyPkg]
	}

	version, release, _ := strings.Cut(values[keyVersion], ",REV=")

	desc := values[keyDesc]
	if summary == "" {
		summary, _, _ = strings.Cut(desc, "\n")
	}
	if summary == "" {
		summary = defaultSummary
	}
	if desc == "" {
		desc = summary
	}

	maintainer := values[keyVendor]
	if email := values[keyEmail]; email != "" {
		if maintainer == "" {
			maintainer = email
		} else {
			maintainer = fmt.Sprintf("%s <%s>", maintainer, email)
		}
	}

	return &models.Package{
		Name:         name,
		Version:      strings.TrimSpace(version),
		Release:      strings.TrimSpace(release),
		Architecture: mapping.ArchToCanonical(scanner.TypePkg, values[keyArch]),
		Summary:      summary,
		Description:  desc,
		Maintainer:   maintainer,
		Group:        values[keyCategory],
		SourceFormat: scanner.TypePkg.String(),
	}, nil
}

// splitMaintainer separates "Name <email>" into VENDOR and EMAIL
func splitMaintainer(m string) (vendor, email string) {
	open := strings.Index(m, "<")
	if open < 0 || !strings.HasSuffix(m, ">") {
		return strings.TrimSpace(m), ""
	}
	return strings.TrimSpace(m[:open]), m[open+1 : len(m)-1]
}

// quoteValue rejects what a pkginfo value cannot hold
func quoteValue(key, value string) (string, error) {
	if strings.ContainsAny(value, "\"\n") {
		return "", models.NewEncodingError(key, fmt.Errorf("%q cannot be stored in pkginfo", value))
	}
	return `"` + value + `"`, nil
}

// renderPkginfo writes the pkginfo keys in the order pkgmk produces them
func renderPkginfo(pkg *models.Package, abbr, pstamp string) ([]byte, error) {
	version := pkg.Version
	if pkg.Release != "" {
		version += ",REV=" + pkg.Release
	}
	vendor, email := splitMaintainer(pkg.Maintainer)

	fields := []struct{ key, value string }{
		{keyPkg, abbr},
		{keyName, pkg.Name},
		{keyArch, mapping.ArchFromCanonical(scanner.TypePkg, pkg.Architecture)},
		{keyVersion, version},
		{keyCategory, "application"},
		{keyVendor, vendor},
		{keyEmail, email},
		{"PSTAMP", pstamp},
		{"MAXINST", "1000"},
		{keyBasedir, "/"},
		{"CLASSES", "none"},
		{keyDesc, pkg.SummaryLine()},
	}

	var b bytes.Buffer
	for _, f := range fields {
		quoted, err := quoteValue(f.key, f.value)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "%s=%s\n", f.key, quoted)
	}
	return b.Bytes(), nil
}
