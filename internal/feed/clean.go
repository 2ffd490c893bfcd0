package feed

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxDescriptionLength is the rune limit of a cleaned item description.
const MaxDescriptionLength = 500

var (
	fencedCode = regexp.MustCompile("(?s)```.*?```")
	inlineCode = regexp.MustCompile("`([^`\n]+)`")
	mdLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdMarkers  = regexp.MustCompile(`[#*_]`)
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
)

// XMLText drops terminal escape sequences and every rune XML 1.0 does not
// allow in character data. Invalid UTF-8 becomes U+FFFD.
func XMLText(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		if isXMLChar(r) {
			return r
		}
		return -1
	}, s)
}

func isXMLChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

// CleanDescription turns a markdown body into short plain text: fenced code
// blocks become "[code block]", inline code and links keep their text,
// heading and emphasis markers are dropped and the result is truncated.
// Characters that cannot appear in an XML document are removed first.
func CleanDescription(s string) string {
	s = XMLText(s)
	s = fencedCode.ReplaceAllString(s, "[code block]")
	s = inlineCode.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdMarkers.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) <= MaxDescriptionLength {
		return s
	}
	return string([]rune(s)[:MaxDescriptionLength]) + "..."
}
