package pkg

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/ralt/pkgconv/internal/models"
)

// parseDepend reads install/depend. P lines are prerequisites, I lines are
// incompatible packages; an indented line below one pins its version.
// Commented "# P" and "# I" lines are kept as informational relations.
func parseDepend(data []byte, pkg *models.Package) {
	var last *models.Relation

	lines := bufio.NewScanner(bytes.NewReader(data))
	for lines.Scan() {
		line := lines.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			if last != nil {
				version := strings.TrimSpace(line)
				// "(sparc)1.0" pins the version for one architecture
				if strings.HasPrefix(version, "(") {
					if i := strings.Index(version, ")"); i >= 0 {
						version = strings.TrimSpace(version[i+1:])
					}
				}
				if version != "" {
					last.Op = models.OpEqual
					last.Version = version
				}
			}
			continue
		}

		informational := false
		if strings.HasPrefix(line, "#") {
			informational = true
			line = strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			last = nil
			continue
		}
		rel := models.Relation{Name: fields[1], Informational: informational}

		switch fields[0] {
		case "P":
			pkg.Depends = append(pkg.Depends, rel)
			last = &pkg.Depends[len(pkg.Depends)-1]
		case "I":
			pkg.Conflicts = append(pkg.Conflicts, rel)
			last = &pkg.Conflicts[len(pkg.Conflicts)-1]
		default:
			last = nil
		}
	}
}

// renderDepend writes the relations pkgadd understands. Provides and replaces
// have no depend type and are kept as plain comments.
func renderDepend(pkg *models.Package) []byte {
	var b bytes.Buffer

	write := func(typ string, rels []models.Relation) {
		for _, rel := range rels {
			prefix := ""
			if rel.Informational {
				prefix = "# "
			}
			fmt.Fprintf(&b, "%s%s %s\t%s\n", prefix, typ, rel.Name, rel.Name)
			if !rel.Informational && rel.Op == models.OpEqual && rel.Version != "" {
				fmt.Fprintf(&b, "\t%s\n", rel.Version)
			}
		}
	}
	write("P", pkg.Depends)
	write("I", pkg.Conflicts)

	for _, rel := range pkg.Provides {
		fmt.Fprintf(&b, "# provides %s\n", rel)
	}
	for _, rel := range pkg.Replaces {
		fmt.Fprintf(&b, "# replaces %s\n", rel)
	}
	return b.Bytes()
}

// hasRelations reports whether a depend file is worth writing
func hasRelations(pkg *models.Package) bool {
	return len(pkg.Depends)+len(pkg.Conflicts)+len(pkg.Provides)+len(pkg.Replaces) > 0
}
