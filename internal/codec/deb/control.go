package deb

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/ralt/pkgconv/internal/mapping"
	"github.com/ralt/pkgconv/internal/models"
)

// Control field names in the order the writer emits them
const (
	FieldPackage       = "Package"
	FieldVersion       = "Version"
	FieldArchitecture  = "Architecture"
	FieldMaintainer    = "Maintainer"
	FieldInstalledSize = "Installed-Size"
	FieldPreDepends    = "Pre-Depends"
	FieldDepends       = "Depends"
	FieldConflicts     = "Conflicts"
	FieldBreaks        = "Breaks"
	FieldProvides      = "Provides"
	FieldReplaces      = "Replaces"
	FieldSection       = "Section"
	FieldPriority      = "Priority"
	FieldHomepage      = "Homepage"
	FieldDescription   = "Description"
)

var mandatoryFields = []string{FieldPackage, FieldVersion, FieldArchitecture, FieldDescription}

// control is one parsed control paragraph. Keys keep their original case;
// lookups are case-insensitive as dpkg does.
type control struct {
	fields map[string]string
}

func (c control) get(key string) string {
	return c.fields[strings.ToLower(key)]
}

func (c control) has(key string) bool {
	_, ok := c.fields[strings.ToLower(key)]
	return ok
}

// parseControl parses the Debian control file format
func parseControl(data []byte) (control, error) {
	c := control{fields: make(map[string]string)}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var currentKey string
	var currentValue strings.Builder

	flush := func() {
		if currentKey != "" {
			c.fields[strings.ToLower(currentKey)] = currentValue.String()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		// Handle continuation lines (start with space)
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			if currentKey == "" {
				return c, fmt.Errorf("continuation line before first field: %q", line)
			}
			currentValue.WriteString("\n")
			currentValue.WriteString(strings.TrimRight(line[1:], " \t"))
			continue
		}

		if strings.TrimSpace(line) == "" {
			// a paragraph separator; binary packages have a single paragraph
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		flush()
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return c, fmt.Errorf("malformed control line %q", line)
		}
		currentKey = strings.TrimSpace(key)
		currentValue.Reset()
		currentValue.WriteString(strings.TrimSpace(value))
	}
	flush()

	return c, scanner.Err()
}

// splitDescription separates the synopsis from the extended description and
// undoes the " ." blank-line encoding.
func splitDescription(value string) (summary, description string) {
	first, rest, _ := strings.Cut(value, "\n")
	summary = strings.TrimSpace(first)
	if rest == "" {
		return summary, ""
	}
	lines := strings.Split(rest, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "." {
			lines[i] = ""
		}
	}
	return summary, strings.Join(lines, "\n")
}

// formatDescription renders the Description field value: the synopsis on the
// first line, then the extended text with blank lines as " ." and tabs
// expanded to eight spaces.
func formatDescription(summary, description string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(summary))
	description = strings.Trim(description, "\n")
	if strings.TrimSpace(description) == "" {
		return b.String()
	}
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimRight(strings.ReplaceAll(line, "\t", "        "), " ")
		b.WriteString("\n ")
		if line == "" {
			b.WriteString(".")
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

func formatRelations(rels []models.Relation) string {
	var parts []string
	for _, r := range rels {
		// informational relations survive only as Debian's own syntax
		if r.Informational && !mapping.IsDebianExpression(r.Name) {
			continue
		}
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ", ")
}

// renderControl writes the control file for pkg
func renderControl(pkg *models.Package, version string) []byte {
	var b bytes.Buffer
	writeField := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", key, value)
		}
	}

	writeField(FieldPackage, pkg.Name)
	writeField(FieldVersion, version)
	writeField(FieldArchitecture, pkg.Architecture)
	writeField(FieldMaintainer, pkg.Maintainer)
	writeField(FieldInstalledSize, fmt.Sprintf("%d", (pkg.InstalledSize()+1023)/1024))
	writeField(FieldDepends, formatRelations(pkg.Depends))
	writeField(FieldConflicts, formatRelations(pkg.Conflicts))
	writeField(FieldProvides, formatRelations(pkg.Provides))
	writeField(FieldReplaces, formatRelations(pkg.Replaces))
	writeField(FieldSection, pkg.Group)
	writeField(FieldPriority, "extra")
	writeField(FieldHomepage, pkg.Homepage)
	writeField(FieldDescription, formatDescription(pkg.SummaryLine(), pkg.Description))

	return b.Bytes()
}
