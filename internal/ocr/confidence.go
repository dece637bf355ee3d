package ocr

import (
	"regexp"
	"strings"
)

var (
	reDate     = regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b|\b\d{4}-\d{2}-\d{2}\b`)
	rePhone    = regexp.MustCompile(`\+?[0-9][0-9\-\(\)\s\.]{6,}[0-9]`)
	reLabel    = regexp.MustCompile(`(?m)^[A-Za-z][A-Za-z\s/]{2,30}:\s`)
	reArtifact = regexp.MustCompile(`[|]{2,}|[^\s\w][0OIl1]{3,}|\d[Il]\d|[A-Za-z]0[A-Za-z]`)
)

func hasDatePattern(s string) bool  { return reDate.MatchString(s) }
func hasPhonePattern(s string) bool { return rePhone.MatchString(s) }

// TextConfidence is a naive heuristic score based on decoded text
// characteristics: form-like label density, dates and phone numbers each add a
// bit; very short output stays low.
func TextConfidence(txt string) float64 {
	score := 0.2 // base
	if hasDatePattern(txt) {
		score += 0.2
	}
	if hasPhonePattern(txt) {
		score += 0.15
	}
	if labels := reLabel.FindAllStringIndex(txt, 6); len(labels) >= 3 {
		score += 0.2
	}
	if len(txt) > 200 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// ArtifactPenalty estimates how much to discount a field extracted from span:
// character sequences that OCR commonly confuses (0/O, 1/l/I, pipe runs)
// near the value make the reading less trustworthy. Returns a value in
// [0, 0.2].
func ArtifactPenalty(span string) float64 {
	if span == "" {
		return 0
	}
	hits := len(reArtifact.FindAllString(span, 3))
	if hits == 0 {
		return 0
	}
	p := 0.1 * float64(hits)
	if p > 0.2 {
		p = 0.2
	}
	return p
}

// ContextAround returns a window of text surrounding the first occurrence of
// value, for artifact scoring. Empty when the value is not present verbatim.
func ContextAround(text, value string, radius int) string {
	if value == "" {
		return ""
	}
	i := strings.Index(text, value)
	if i < 0 {
		return ""
	}
	lo := i - radius
	if lo < 0 {
		lo = 0
	}
	hi := i + len(value) + radius
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}
