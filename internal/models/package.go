package models

import (
	"sort"
	"strings"
	"time"
)

// Package is the canonical, format-independent representation of a package.
// Readers produce one per conversion; transform stages return modified clones
// and never change the value they were given. File contents are not held here:
// they live in the staging arena under each entry's Path.
type Package struct {
	// Core metadata
	Name         string
	Version      string
	Release      string
	Epoch        *int
	Architecture string
	Summary      string
	Description  string
	Maintainer   string
	Homepage     string
	License      string
	Group        string
	BuildTime    time.Time

	// SourceFormat is the format the package was read from ("deb", "rpm", ...)
	SourceFormat string

	Changelog []ChangelogEntry

	// Relations
	Depends   []Relation
	Conflicts []Relation
	Provides  []Relation
	Replaces  []Relation

	Files   []FileEntry
	Scripts map[ScriptKind]Script
}

// ChangelogEntry is one release note
type ChangelogEntry struct {
	Version string
	Author  string
	Date    time.Time
	Text    string
}

// IntPtr returns a pointer to i, handy for Epoch literals.
func IntPtr(i int) *int {
	return &i
}

// Clone returns a deep copy of the package.
func (p *Package) Clone() *Package {
	c := *p
	if p.Epoch != nil {
		c.Epoch = IntPtr(*p.Epoch)
	}
	c.Changelog = append([]ChangelogEntry(nil), p.Changelog...)
	c.Depends = append([]Relation(nil), p.Depends...)
	c.Conflicts = append([]Relation(nil), p.Conflicts...)
	c.Provides = append([]Relation(nil), p.Provides...)
	c.Replaces = append([]Relation(nil), p.Replaces...)
	c.Files = append([]FileEntry(nil), p.Files...)
	if p.Scripts != nil {
		c.Scripts = make(map[ScriptKind]Script, len(p.Scripts))
		for k, v := range p.Scripts {
			c.Scripts[k] = v
		}
	}
	return &c
}

// File looks up a manifest entry by normalized path.
func (p *Package) File(path string) (FileEntry, bool) {
	for _, f := range p.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileEntry{}, false
}

// SortFiles orders the manifest by path. Readers call this so that every codec
// yields the same order for the same set of files.
func (p *Package) SortFiles() {
	sort.SliceStable(p.Files, func(i, j int) bool {
		return p.Files[i].Path < p.Files[j].Path
	})
}

// ConfFiles returns the paths of all configuration files.
func (p *Package) ConfFiles() []string {
	var out []string
	for _, f := range p.Files {
		if f.Kind == KindConfFile {
			out = append(out, f.Path)
		}
	}
	return out
}

// InstalledSize is the sum of all content sizes in bytes.
func (p *Package) InstalledSize() int64 {
	var total int64
	for _, f := range p.Files {
		if f.Kind.HasContent() {
			total += f.Size
		}
	}
	return total
}

// Script returns the script in slot k, if any.
func (p *Package) Script(k ScriptKind) (Script, bool) {
	if p.Scripts == nil {
		return Script{}, false
	}
	s, ok := p.Scripts[k]
	return s, ok
}

// SetScript stores s in slot k, allocating the map when needed.
func (p *Package) SetScript(k ScriptKind, s Script) {
	if p.Scripts == nil {
		p.Scripts = make(map[ScriptKind]Script)
	}
	p.Scripts[k] = s
}

// AllRelations returns the four relation sets keyed by kind, in a fixed order.
func (p *Package) AllRelations() []RelationSet {
	return []RelationSet{
		{Kind: RelDepends, Relations: p.Depends},
		{Kind: RelConflicts, Relations: p.Conflicts},
		{Kind: RelProvides, Relations: p.Provides},
		{Kind: RelReplaces, Relations: p.Replaces},
	}
}

// SetRelations replaces one relation set.
func (p *Package) SetRelations(kind RelationKind, rels []Relation) {
	switch kind {
	case RelDepends:
		p.Depends = rels
	case RelConflicts:
		p.Conflicts = rels
	case RelProvides:
		p.Provides = rels
	case RelReplaces:
		p.Replaces = rels
	}
}

// SummaryLine returns the summary, falling back to the first description line.
func (p *Package) SummaryLine() string {
	if p.Summary != "" {
		return p.Summary
	}
	first, _, _ := strings.Cut(strings.TrimSpace(p.Description), "\n")
	return strings.TrimSpace(first)
}
