// Package scripts maps the four maintainer script slots onto each target
// format's scripting convention. Script bodies are opaque: they are copied,
// prefixed with a shebang, merged or wrapped, never interpreted.
package scripts

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/sirupsen/logrus"
	"mvdan.cc/sh/v3/syntax"
)

const stage = "scripts"

// Slot describes where one lifecycle slot ends up in a target format
type Slot struct {
	// Artifact is the file name or header tag that holds the script
	Artifact string
	// Merged slots are concatenated into the PostInstall artifact in lifecycle order
	Merged bool
	// Excluded slots are merged only as commented-out text
	Excluded bool
	// Mandatory slots are emitted as an empty script when the source has none
	Mandatory bool
}

// Profile is a target format's scripting convention
type Profile struct {
	Slots map[models.ScriptKind]Slot
	// Shebang is prepended to scripts that have none
	Shebang string
	// ShOnly targets run every script with /bin/sh; non-shell interpreters are wrapped
	ShOnly bool
}

var profiles = map[scanner.PackageType]Profile{
	scanner.TypeDeb: {
		Shebang: "#!/bin/sh",
		Slots: map[models.ScriptKind]Slot{
			models.PreInstall:  {Artifact: "preinst"},
			models.PostInstall: {Artifact: "postinst"},
			models.PreRemove:   {Artifact: "prerm"},
			models.PostRemove:  {Artifact: "postrm"},
		},
	},
	scanner.TypeRpm: {
		ShOnly: true,
		Slots: map[models.ScriptKind]Slot{
			models.PreInstall:  {Artifact: "%pre"},
			models.PostInstall: {Artifact: "%post"},
			models.PreRemove:   {Artifact: "%preun"},
			models.PostRemove:  {Artifact: "%postun"},
		},
	},
	scanner.TypeTgz: {
		Shebang: "#!/bin/sh",
		ShOnly:  true,
		Slots: map[models.ScriptKind]Slot{
			models.PreInstall:  {Artifact: "install/doinst.sh", Merged: true},
			models.PostInstall: {Artifact: "install/doinst.sh", Merged: true},
			models.PreRemove:   {Artifact: "install/doinst.sh", Merged: true, Excluded: true},
			models.PostRemove:  {Artifact: "install/doinst.sh", Merged: true, Excluded: true},
		},
	},
	scanner.TypePkg: {
		Shebang: "#!/bin/sh",
		Slots: map[models.ScriptKind]Slot{
			models.PreInstall:  {Artifact: "preinstall"},
			models.PostInstall: {Artifact: "postinstall"},
			models.PreRemove:   {Artifact: "preremove"},
			models.PostRemove:  {Artifact: "postremove"},
		},
	},
}

// ProfileFor returns the scripting convention of a target format.
func ProfileFor(t scanner.PackageType) Profile {
	return profiles[t.Family()]
}

// Translator rewrites a package's scripts for one target format
type Translator struct {
	Target scanner.PackageType
	Policy models.ScriptPolicy
	// Profile overrides the target's built-in profile when non-nil
	Profile *Profile
}

// Apply returns a copy of pkg whose scripts follow the target convention.
func (t Translator) Apply(pkg *models.Package) (*models.Package, []models.Warning) {
	out := pkg.Clone()
	var warnings []models.Warning

	if t.Policy == models.ScriptsStrip {
		if len(pkg.Scripts) > 0 {
			warnings = append(warnings, models.Warnf(stage, "stripped %d maintainer scripts", len(pkg.Scripts)))
		}
		out.Scripts = nil
		return out, warnings
	}

	profile := ProfileFor(t.Target)
	if t.Profile != nil {
		profile = *t.Profile
	}

	out.Scripts = nil
	var merged []models.ScriptKind
	for _, kind := range models.ScriptKinds {
		slot, ok := profile.Slots[kind]
		if !ok {
			if s, has := pkg.Script(kind); has && !s.Empty() {
				warnings = append(warnings, models.Warnf(stage, "%s script dropped: %s has no such slot", kind, t.Target))
			}
			continue
		}
		script, has := pkg.Script(kind)
		if slot.Merged {
			if has && !script.Empty() {
				merged = append(merged, kind)
			}
			continue
		}
		if !has || script.Empty() {
			if slot.Mandatory {
				out.SetScript(kind, emptyScript(profile))
			}
			continue
		}
		out.SetScript(kind, translateOne(script, profile))
		logrus.Debugf("Mapped %s script to %s", kind, slot.Artifact)
	}

	if len(merged) > 0 {
		body, excluded := mergeScripts(pkg, merged, profile)
		out.SetScript(models.PostInstall, models.NewScript(body, "/bin/sh"))
		if len(excluded) > 0 {
			warnings = append(warnings, models.Warnf(stage,
				"%s logic excluded from %s: %s packages have no removal scripts",
				strings.Join(excluded, " and "), profile.Slots[models.PostInstall].Artifact, t.Target))
		}
	}

	return out, warnings
}

func emptyScript(p Profile) models.Script {
	shebang := p.Shebang
	if shebang == "" {
		shebang = "#!/bin/sh"
	}
	return models.NewScript(shebang+"\nexit 0\n", "/bin/sh")
}

// translateOne prepares a single script for a dedicated slot.
func translateOne(s models.Script, p Profile) models.Script {
	body := withShebang(s, p.Shebang)
	if p.ShOnly && !runsUnderSh(s) {
		return models.Script{Interpreter: "/bin/sh", Body: wrapForeign(s)}
	}
	if p.ShOnly {
		return models.Script{Interpreter: "/bin/sh", Body: body}
	}
	return models.NewScript(body, "/bin/sh")
}

// withShebang makes sure the body starts with a "#!" line. A script that names
// its interpreter out of band (RPM *PROG tags) keeps that interpreter.
func withShebang(s models.Script, shebang string) string {
	if s.HasShebang() || shebang == "" {
		return s.Body
	}
	if s.Interpreter != "" && path.Base(s.Interpreter) != "sh" {
		shebang = "#!" + s.Interpreter
	}
	return shebang + "\n" + s.Body
}

// runsUnderSh reports whether a shell family interpreter can run the script
// as is. The shebang wins over an out of band interpreter.
func runsUnderSh(s models.Script) bool {
	if s.HasShebang() {
		s.Interpreter = models.ParseShebang(s.Body)
	}
	return s.IsShell()
}

// wrapForeign embeds a script for another interpreter into a /bin/sh stub that
// unpacks it to a temporary file and runs it with the original arguments.
func wrapForeign(s models.Script) string {
	body := s.Body
	if !s.HasShebang() {
		body = "#!" + s.Interpreter + "\n" + body
	}
	encoded, err := syntax.Quote(base64.StdEncoding.EncodeToString([]byte(body)), syntax.LangPOSIX)
	if err != nil {
		// base64 output is always quotable; keep the raw text as a fallback
		encoded = "'" + base64.StdEncoding.EncodeToString([]byte(body)) + "'"
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "# wrapped %s script\n", s.Interpreter)
	b.WriteString("script=$(mktemp) || exit 1\n")
	fmt.Fprintf(&b, "printf '%%s' %s | base64 -d > \"$script\"\n", encoded)
	b.WriteString("chmod 0700 \"$script\"\n")
	b.WriteString("\"$script\" \"$@\"\n")
	b.WriteString("status=$?\n")
	b.WriteString("rm -f \"$script\"\n")
	b.WriteString("exit $status\n")
	return b.String()
}

// mergeScripts folds several slots into one shell script in lifecycle order.
// Excluded slots are carried as commented-out text; the returned names list them.
func mergeScripts(pkg *models.Package, kinds []models.ScriptKind, p Profile) (string, []string) {
	var b strings.Builder
	var excluded []string
	b.WriteString(p.Shebang)
	if p.Shebang == "" {
		b.WriteString("#!/bin/sh")
	}
	b.WriteString("\n")

	for _, kind := range kinds {
		s, _ := pkg.Script(kind)
		body := s.Body
		if !runsUnderSh(s) {
			body = wrapForeign(s)
		}
		body = stripShebang(body)
		if !strings.HasSuffix(body, "\n") {
			body += "\n"
		}

		if p.Slots[kind].Excluded {
			excluded = append(excluded, kind.String())
			fmt.Fprintf(&b, "\n# %s (not run: no removal hook in this format)\n", kind)
			for _, line := range strings.Split(strings.TrimSuffix(body, "\n"), "\n") {
				b.WriteString("# " + line + "\n")
			}
			continue
		}

		fmt.Fprintf(&b, "\n# %s\n", kind)
		if len(kinds) > 1 {
			// keep each part's exit from ending the whole script
			b.WriteString("(\n")
			b.WriteString(body)
			b.WriteString(")\n")
			continue
		}
		b.WriteString(body)
	}
	return b.String(), excluded
}

func stripShebang(body string) string {
	if !strings.HasPrefix(body, "#!") {
		return body
	}
	_, rest, _ := strings.Cut(body, "\n")
	return rest
}
