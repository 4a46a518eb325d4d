package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseDebVersion splits a Debian version string "[epoch:]upstream[-revision]".
// The revision is everything after the last hyphen.
func ParseDebVersion(s string) (epoch *int, version, release string, err error) {
	s = strings.TrimSpace(s)
	if e, rest, ok := strings.Cut(s, ":"); ok {
		n, convErr := strconv.Atoi(e)
		if convErr != nil || n < 0 {
			return nil, "", "", fmt.Errorf("invalid epoch %q", e)
		}
		epoch = &n
		s = rest
	}
	if i := strings.LastIndex(s, "-"); i >= 0 {
		version, release = s[:i], s[i+1:]
	} else {
		version = s
	}
	if version == "" {
		return nil, "", "", fmt.Errorf("empty upstream version in %q", s)
	}
	return epoch, version, release, nil
}

// FormatDebVersion is the inverse of ParseDebVersion.
func FormatDebVersion(epoch *int, version, release string) string {
	var b strings.Builder
	if epoch != nil {
		b.WriteString(strconv.Itoa(*epoch))
		b.WriteByte(':')
	}
	b.WriteString(version)
	if release != "" {
		b.WriteByte('-')
		b.WriteString(release)
	}
	return b.String()
}

// keepRunes drops every rune of s for which keep returns false.
func keepRunes(s string, keep func(rune) bool) string {
	return strings.Map(func(r rune) rune {
		if keep(r) {
			return r
		}
		return -1
	}, s)
}

func isASCIIAlnum(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// debUpstream sanitizes an upstream version for Debian: only alphanumerics and
// ".+~-" survive, and it must start with a digit.
func debUpstream(v string) string {
	v = keepRunes(v, func(r rune) bool {
		return isASCIIAlnum(r) || strings.ContainsRune(".+~-", r)
	})
	if v == "" || v[0] < '0' || v[0] > '9' {
		v = "0" + v
	}
	return v
}

// debRevision sanitizes a Debian revision: no hyphens allowed.
func debRevision(r string) string {
	return keepRunes(r, func(c rune) bool {
		return isASCIIAlnum(c) || strings.ContainsRune(".+~", c)
	})
}

// BumpRelease increments the trailing number of release by n, or appends ".n"
// when release has no trailing digits.
func BumpRelease(release string, n int) string {
	if n == 0 {
		return release
	}
	if release == "" {
		return strconv.Itoa(n)
	}
	i := len(release)
	for i > 0 && release[i-1] >= '0' && release[i-1] <= '9' {
		i--
	}
	if i == len(release) {
		return fmt.Sprintf("%s.%d", release, n)
	}
	num, err := strconv.Atoi(release[i:])
	if err != nil {
		return fmt.Sprintf("%s.%d", release, n)
	}
	return release[:i] + strconv.Itoa(num+n)
}
