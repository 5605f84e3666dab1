package errorstore

import (
	"regexp"
	"strings"
)

var (
	reAbsPath   = regexp.MustCompile(`(?:[A-Za-z]:)?/[^\s:]+`)
	reLineCol   = regexp.MustCompile(`:\d+:\d+`)
	reHexAddr   = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	rePid       = regexp.MustCompile(`\bpid\s*[:=]?\s*\d+\b`)
	reWhitespace = regexp.MustCompile(`\s+`)
	reQuoted    = regexp.MustCompile(`'[^']*'|"[^"]*"`)
)

// Normalize scrubs a raw compiler diagnostic down to a stable, comparable
// text: absolute paths, line/column numbers, memory addresses, process
// ids and quoted identifiers are stripped, the result is lowercased and
// whitespace-collapsed. Deterministic and idempotent, per spec.md §4.2 and
// the testable property in §8 ("normalize(normalize(text)) == normalize(text)").
func Normalize(raw string) string {
	s := raw
	s = reQuoted.ReplaceAllString(s, "<id>")
	s = reHexAddr.ReplaceAllString(s, "<addr>")
	s = rePid.ReplaceAllString(s, "pid <pid>")
	s = reLineCol.ReplaceAllString(s, "")
	s = reAbsPath.ReplaceAllString(s, "<path>")
	s = strings.ToLower(s)
	s = reWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Category assigns a coarse diagnostic category tag by keyword matching,
// used to group patterns and as a cheap signal alongside similarity.
func Category(normalized string) string {
	switch {
	case strings.Contains(normalized, "undefined reference"):
		return "undefined-reference"
	case strings.Contains(normalized, "file not found") || strings.Contains(normalized, "no such file"):
		return "missing-header"
	case strings.Contains(normalized, "-fpic") || strings.Contains(normalized, "recompile with -fpic") || strings.Contains(normalized, "can not be used when making a shared object"):
		return "pic-violation"
	case strings.Contains(normalized, "ambiguous"):
		return "ambiguous-overload"
	default:
		return "other"
	}
}
