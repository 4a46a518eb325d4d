package deb

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/ralt/pkgconv/internal/models"
)

// changelogDateLayout is the RFC 2822 form dpkg writes in trailer lines
const changelogDateLayout = "Mon, 02 Jan 2006 15:04:05 -0700"

// ChangelogPath returns where a Debian package keeps its changelog.
func ChangelogPath(name string) string {
	return "usr/share/doc/" + name + "/changelog.Debian.gz"
}

// parseChangelog reads changelog.Debian entries:
//
//	name (version) distribution; urgency=low
//
//	  * text
//
//	 -- Author <mail>  date
func parseChangelog(data []byte) []models.ChangelogEntry {
	var entries []models.ChangelogEntry
	var current *models.ChangelogEntry
	var text []string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case current == nil:
			if line == "" || line[0] == ' ' {
				continue
			}
			open := strings.Index(line, "(")
			closing := strings.Index(line, ")")
			if open < 0 || closing < open {
				continue
			}
			current = &models.ChangelogEntry{Version: line[open+1 : closing]}
			text = nil
		case strings.HasPrefix(line, " -- "):
			trailer := strings.TrimPrefix(line, " -- ")
			author, date, _ := strings.Cut(trailer, "  ")
			current.Author = strings.TrimSpace(author)
			if t, err := time.Parse(changelogDateLayout, strings.TrimSpace(date)); err == nil {
				current.Date = t
			}
			current.Text = strings.Trim(strings.Join(text, "\n"), "\n")
			entries = append(entries, *current)
			current = nil
		default:
			text = append(text, strings.TrimPrefix(line, "  "))
		}
	}
	return entries
}

// renderChangelog writes entries in changelog.Debian form, newest first as given.
func renderChangelog(name string, entries []models.ChangelogEntry, maintainer string) []byte {
	var b bytes.Buffer
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s (%s) unstable; urgency=low\n\n", name, e.Version)
		for _, line := range strings.Split(strings.TrimSpace(e.Text), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				b.WriteString("\n")
				continue
			}
			if !strings.HasPrefix(line, "*") && !strings.HasPrefix(line, "-") {
				line = "* " + line
			}
			fmt.Fprintf(&b, "  %s\n", line)
		}
		author := e.Author
		if author == "" {
			author = maintainer
		}
		date := e.Date
		if date.IsZero() {
			date = time.Unix(0, 0).UTC()
		}
		fmt.Fprintf(&b, "\n -- %s  %s\n", author, date.Format(changelogDateLayout))
	}
	return b.Bytes()
}
