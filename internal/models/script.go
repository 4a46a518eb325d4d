package models

import (
	"path"
	"strings"
)

// ScriptKind identifies a maintainer script lifecycle slot
type ScriptKind int

const (
	PreInstall ScriptKind = iota
	PostInstall
	PreRemove
	PostRemove
)

// ScriptKinds lists every slot in lifecycle order
var ScriptKinds = []ScriptKind{PreInstall, PostInstall, PreRemove, PostRemove}

func (k ScriptKind) String() string {
	switch k {
	case PreInstall:
		return "pre-install"
	case PostInstall:
		return "post-install"
	case PreRemove:
		return "pre-remove"
	case PostRemove:
		return "post-remove"
	default:
		return "unknown"
	}
}

// IsRemove reports whether the slot runs at removal time.
func (k ScriptKind) IsRemove() bool {
	return k == PreRemove || k == PostRemove
}

// Script is an opaque maintainer script body with the interpreter that runs it.
type Script struct {
	Interpreter string
	Body        string
}

// ParseShebang returns the interpreter named on the first line of body, or ""
// when the body has no "#!" line.
func ParseShebang(body string) string {
	if !strings.HasPrefix(body, "#!") {
		return ""
	}
	line, _, _ := strings.Cut(body[2:], "\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	// "#!/usr/bin/env python3" runs python3
	if path.Base(fields[0]) == "env" && len(fields) > 1 {
		return fields[1]
	}
	return fields[0]
}

// NewScript builds a script whose interpreter comes from its shebang, falling
// back to def when there is none.
func NewScript(body, def string) Script {
	interp := ParseShebang(body)
	if interp == "" {
		interp = def
	}
	return Script{Interpreter: interp, Body: body}
}

// IsShell reports whether the interpreter is a POSIX-compatible shell.
func (s Script) IsShell() bool {
	switch path.Base(s.Interpreter) {
	case "", "sh", "bash", "dash", "ksh", "zsh", "ash":
		return true
	}
	return false
}

// HasShebang reports whether the body starts with a "#!" line.
func (s Script) HasShebang() bool {
	return strings.HasPrefix(s.Body, "#!")
}

// Empty reports whether the body is blank.
func (s Script) Empty() bool {
	return strings.TrimSpace(s.Body) == ""
}
