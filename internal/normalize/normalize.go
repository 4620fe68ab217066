// Package normalize canonicalizes table header text before embedding.
// Headers in the source reports are Hebrew, but nothing here assumes a
// particular script beyond the Hebrew-specific strip rules; any UTF-8
// input passes through the same pipeline.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// Cantillation and vowel points (U+0591..U+05C7) carry no topical
	// information and vary between report editions. The maqaf (U+05BE)
	// sits inside that block but is punctuation, not pointing; it is
	// kept here so safeReplacements can map it to an ASCII hyphen.
	pointsRe = regexp.MustCompile(`[\x{0591}-\x{05BD}\x{05BF}-\x{05C7}]`)

	// Table / diagram title markers with their serial numbers,
	// e.g. "לוח: 2.13" or "תרשים 4.1".
	titleMarkerRe = regexp.MustCompile(`(לוח|תרשים):?\s*\d+(\.\d+)*`)

	// Continuation marker appended when a table spans pages.
	continuationRe = regexp.MustCompile(`\(המשך\)`)

	// Year tokens. Removed so the matcher compares topics, not years:
	// a 2002 header must be able to match its 2001 predecessor.
	yearTokenRe = regexp.MustCompile(`(ממוצע\s*\d{4}|סוף\s*\d{4}|\d{4})`)
)

// Substitutions that are genuinely synonymous in the source corpus.
// Substantive wording differences are left alone on purpose.
var safeReplacements = [...][2]string{
	{"ושיעור", "ואחוז"},
	{"־", "-"},
}

// Header returns the canonical form of a raw table header.
//
// Rules, in order: NFC-normalize, strip pointing, strip title markers and
// serial numbers, drop the continuation marker, remove year tokens, apply
// safe substitutions, collapse whitespace. An empty header stays empty;
// blank headers are a legitimate low-information case, not an error.
func Header(raw string) string {
	if raw == "" {
		return ""
	}

	s := norm.NFC.String(raw)
	s = pointsRe.ReplaceAllString(s, "")
	s = titleMarkerRe.ReplaceAllString(s, "")
	s = continuationRe.ReplaceAllString(s, "")
	s = yearTokenRe.ReplaceAllString(s, "")

	for _, r := range safeReplacements {
		s = strings.ReplaceAll(s, r[0], r[1])
	}

	return strings.Join(strings.Fields(s), " ")
}

// Representative condenses a multi-line header list into a short single
// line suitable for a validator prompt: the first non-empty header's first
// three unique lines joined by " | ", capped at 200 runes.
func Representative(headers []string) string {
	var header string
	for _, h := range headers {
		if strings.TrimSpace(h) != "" {
			header = h
			break
		}
	}
	if header == "" {
		return ""
	}

	var unique []string
	for _, line := range strings.Split(header, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		seen := false
		for _, u := range unique {
			if u == line {
				seen = true
				break
			}
		}
		if !seen {
			unique = append(unique, line)
			if len(unique) >= 3 {
				break
			}
		}
	}

	out := strings.Join(unique, " | ")
	if r := []rune(out); len(r) > 200 {
		out = string(r[:200])
	}
	return out
}
