package tgz

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// slack-desc always has this many description lines
const slackDescLines = 11

const handyRuler = `# HOW TO EDIT THIS FILE:
# The "handy ruler" below makes it easier to edit a package description.
# Line up the first '|' above the ':' following the base package name, and
# the '|' on the right side marks the last column you can put a character in.
# You must make exactly 11 lines for the formatting to be correct.  It's also
# customary to leave one space after the ':' except on otherwise blank lines.

`

// parseSlackDesc returns the summary and description held in slack-desc.
// The first line reads "name: name (summary)".
func parseSlackDesc(name string, data []byte) (summary, description string) {
	prefix := name + ":"
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		lines = append(lines, strings.TrimPrefix(strings.TrimPrefix(line, prefix), " "))
	}
	if len(lines) == 0 {
		return "", ""
	}

	first := strings.TrimSpace(lines[0])
	if open := strings.Index(first, "("); open >= 0 && strings.HasSuffix(first, ")") {
		summary = first[open+1 : len(first)-1]
	} else {
		summary = first
	}

	rest := lines[1:]
	// one blank separator line follows the title by convention
	if len(rest) > 0 && strings.TrimSpace(rest[0]) == "" {
		rest = rest[1:]
	}
	description = strings.TrimRight(strings.Join(rest, "\n"), "\n ")
	return summary, description
}

// descriptionLines splits a description the way slack-desc lays it out
func descriptionLines(description string) []string {
	var lines []string
	for _, line := range strings.Split(strings.Trim(description, "\n"), "\n") {
		lines = append(lines, strings.TrimRight(line, " \t"))
	}
	return lines
}

// SlackDescOverflow reports how many description lines fit in slack-desc
// next to the title and its separator, out of the total the description has.
func SlackDescOverflow(description string) (kept, total int) {
	total = len(descriptionLines(description))
	kept = total
	if budget := slackDescLines - 2; kept > budget {
		kept = budget
	}
	return kept, total
}

// renderSlackDesc writes exactly eleven "name:" lines after the ruler header
func renderSlackDesc(name, summary, description string) []byte {
	var b bytes.Buffer
	b.WriteString(handyRuler)

	ruler := strings.Repeat(" ", len(name)) + "|-----handy-ruler------------------------------------------------------|\n"
	b.WriteString(ruler)

	lines := append([]string{fmt.Sprintf("%s (%s)", name, summary), ""}, descriptionLines(description)...)
	for len(lines) < slackDescLines {
		lines = append(lines, "")
	}
	lines = lines[:slackDescLines]

	for _, line := range lines {
		if line == "" {
			fmt.Fprintf(&b, "%s:\n", name)
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", name, line)
	}
	return b.Bytes()
}
