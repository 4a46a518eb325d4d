package mapping

import (
	"fmt"
	"strings"

	"github.com/ralt/pkgconv/internal/models"
)

// ParseDebianRelation parses one comma-separated element of a Debian relation
// field, such as "libfoo (>= 2.0)" or "awk:any". Alternatives ("a | b") and
// substitution variables are kept verbatim as an informational relation since
// they have no single-package form. The deprecated "<" and ">" operators mean "<=" and ">=" in Debian.
func ParseDebianRelation(s string) (models.Relation, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Relation{}, fmt.Errorf("empty relation")
	}
	if IsDebianExpression(s) {
		return models.Relation{Name: strings.Join(strings.Fields(s), " "), Informational: true}, nil
	}

	name, rest, versioned := strings.Cut(s, "(")
	name = strings.TrimSpace(name)
	// architecture qualifiers and restriction lists do not carry over
	name, _, _ = strings.Cut(name, ":")
	if i := strings.IndexAny(name, "[<"); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if name == "" {
		return models.Relation{}, fmt.Errorf("relation %q has no name", s)
	}
	rel := models.Relation{Name: name}
	if !versioned {
		return rel, nil
	}

	constraint, _, ok := strings.Cut(rest, ")")
	if !ok {
		return models.Relation{}, fmt.Errorf("relation %q: unterminated version constraint", s)
	}
	constraint = strings.TrimSpace(constraint)
	i := 0
	for i < len(constraint) && strings.ContainsRune("<>=", rune(constraint[i])) {
		i++
	}
	opText, version := constraint[:i], strings.TrimSpace(constraint[i:])
	switch opText {
	case "<":
		rel.Op = models.OpLessEqual
	case ">":
		rel.Op = models.OpGreaterEqual
	default:
		op, err := models.ParseOperator(opText)
		if err != nil {
			return models.Relation{}, fmt.Errorf("relation %q: %w", s, err)
		}
		rel.Op = op
	}
	if version == "" {
		return models.Relation{}, fmt.Errorf("relation %q: missing version", s)
	}
	if rel.Op == models.OpAny {
		return models.Relation{}, fmt.Errorf("relation %q: missing operator", s)
	}
	rel.Version = version
	return rel, nil
}

// ParseDebianRelations parses a whole comma-separated relation field.
func ParseDebianRelations(field string) ([]models.Relation, error) {
	var rels []models.Relation
	for _, part := range strings.Split(field, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		rel, err := ParseDebianRelation(part)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// IsDebianExpression reports whether a relation name is Debian-only syntax:
// an alternative list or an unexpanded substitution variable.
func IsDebianExpression(name string) bool {
	return strings.Contains(name, "|") || strings.Contains(name, "${")
}

// firstAlternative returns the first choice of a Debian alternative list.
func firstAlternative(name string) (models.Relation, bool) {
	first, _, ok := strings.Cut(name, "|")
	if !ok {
		return models.Relation{}, false
	}
	rel, err := ParseDebianRelation(first)
	if err != nil {
		return models.Relation{}, false
	}
	return rel, true
}
