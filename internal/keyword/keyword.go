// Package keyword implements Memoir's keyword detector (C9): a
// code-aware guard that decides whether free text should trigger a
// memory-save suggestion.
package keyword

import (
	"regexp"
	"strings"
)

// DefaultKeywords is the built-in trigger-phrase set from spec §4.9.
var DefaultKeywords = []string{
	"remember",
	"memorize",
	"save this",
	"note this",
	"keep in mind",
	"don't forget",
	"learn this",
	"store this",
	"record this",
	"make a note",
	"take note",
	"jot down",
	"commit to memory",
	"never forget",
	"always remember",
}

var (
	fencedCodeRE = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRE = regexp.MustCompile("`[^`\n]*?`")
)

// StripCode removes fenced code blocks, then inline code spans, in that
// order, so a keyword appearing only inside code never triggers
// detection (spec §4.9, §8 scenario 4).
func StripCode(text string) string {
	text = fencedCodeRE.ReplaceAllString(text, "")
	text = inlineCodeRE.ReplaceAllString(text, "")
	return text
}

// Detector matches a fixed set of keywords, built once from the default
// set plus any caller-supplied extras, against code-stripped text.
type Detector struct {
	pattern *regexp.Regexp
}

// New builds a Detector from the union of DefaultKeywords and extra. An
// empty resulting keyword set yields a Detector that never matches.
func New(extra []string) *Detector {
	seen := make(map[string]bool)
	var keywords []string
	for _, k := range DefaultKeywords {
		if !seen[k] {
			seen[k] = true
			keywords = append(keywords, k)
		}
	}
	for _, k := range extra {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keywords = append(keywords, k)
	}

	if len(keywords) == 0 {
		return &Detector{pattern: nil}
	}

	parts := make([]string, len(keywords))
	for i, k := range keywords {
		parts[i] = `\b` + regexp.QuoteMeta(k) + `\b`
	}
	pattern := regexp.MustCompile("(?i)(" + strings.Join(parts, "|") + ")")
	return &Detector{pattern: pattern}
}

// Detect strips code from text and reports whether any configured
// keyword survives outside of it, case-insensitively and at word
// boundaries.
func (d *Detector) Detect(text string) bool {
	if d.pattern == nil {
		return false
	}
	return d.pattern.MatchString(StripCode(text))
}
