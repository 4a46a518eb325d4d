package models

import (
	"fmt"
	"strings"
)

// Operator is a version comparison in a relation
type Operator int

const (
	OpAny Operator = iota
	OpLess
	OpLessEqual
	OpEqual
	OpGreaterEqual
	OpGreater
)

// String returns the Debian spelling of the operator, which is unambiguous.
func (o Operator) String() string {
	switch o {
	case OpLess:
		return "<<"
	case OpLessEqual:
		return "<="
	case OpEqual:
		return "="
	case OpGreaterEqual:
		return ">="
	case OpGreater:
		return ">>"
	default:
		return ""
	}
}

// ParseOperator parses strict operator spellings: "<<" and "<" are both strictly
// less, ">>" and ">" strictly greater. Callers reading Debian data must map the
// deprecated "<" and ">" themselves.
func ParseOperator(s string) (Operator, error) {
	switch strings.TrimSpace(s) {
	case "":
		return OpAny, nil
	case "<<", "<":
		return OpLess, nil
	case "<=", "=<":
		return OpLessEqual, nil
	case "=", "==":
		return OpEqual, nil
	case ">=", "=>":
		return OpGreaterEqual, nil
	case ">>", ">":
		return OpGreater, nil
	}
	return OpAny, fmt.Errorf("unknown operator %q", s)
}

// RelationKind names the four relation sets of a package
type RelationKind int

const (
	RelDepends RelationKind = iota
	RelConflicts
	RelProvides
	RelReplaces
)

func (k RelationKind) String() string {
	switch k {
	case RelDepends:
		return "depends"
	case RelConflicts:
		return "conflicts"
	case RelProvides:
		return "provides"
	case RelReplaces:
		return "replaces"
	default:
		return "unknown"
	}
}

// Relation is a named constraint with an optional version comparison.
// Informational relations are kept for reference but not enforced by the
// target package manager.
type Relation struct {
	Name          string
	Op            Operator
	Version       string
	Informational bool
}

// Versioned reports whether the relation carries a version constraint
func (r Relation) Versioned() bool {
	return r.Op != OpAny && r.Version != ""
}

// String renders the relation the way a Debian control file would.
func (r Relation) String() string {
	if !r.Versioned() {
		return r.Name
	}
	return fmt.Sprintf("%s (%s %s)", r.Name, r.Op, r.Version)
}

// RelationSet pairs a relation kind with its entries
type RelationSet struct {
	Kind      RelationKind
	Relations []Relation
}
