// Package search implements Memoir's search compiler (C7): a safe,
// operator-free full-text query compiler over both corpora with
// BM25-style ranking.
package search

import (
	"regexp"
	"strings"
)

var wordRE = regexp.MustCompile(`\w+`)

// reservedWords are FTS5 operator tokens that must never reach the MATCH
// expression verbatim, since they would let free text control query
// structure (spec §4.7).
var reservedWords = map[string]bool{
	"and":  true,
	"or":   true,
	"not":  true,
	"near": true,
}

// Compile re-tokenizes free text into a safe FTS5 MATCH expression:
// extract maximal \w+ runs, drop runs shorter than 2 characters, drop
// runs matching a reserved operator word case-insensitively, quote each
// remaining run, and join with a literal " OR ". An empty result after
// filtering returns "", signaling "no query should be executed" to the
// caller; raw user text is never interpolated into a MATCH expression.
func Compile(input string) string {
	runs := wordRE.FindAllString(input, -1)

	var terms []string
	for _, run := range runs {
		if len(run) < 2 {
			continue
		}
		if reservedWords[strings.ToLower(run)] {
			continue
		}
		terms = append(terms, `"`+run+`"`)
	}

	if len(terms) == 0 {
		return ""
	}
	return strings.Join(terms, " OR ")
}
