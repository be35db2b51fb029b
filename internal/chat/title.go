package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	titleMaxWords = 8
	titleMaxRunes = 60
)

// Letters with optional trailing digits (e.g. "q3", "gwi2025").
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"what": {}, "how": {}, "do": {}, "does": {}, "which": {},
}

// titleFromQuestion derives a short Title Cased session title from the
// first question, or "" when nothing usable remains.
func titleFromQuestion(q string, tag language.Tag) string {
	toks := titleWordRE.FindAllString(strings.ToLower(q), -1)
	if len(toks) == 0 {
		return ""
	}
	caser := cases.Title(tag)
	out := make([]string, 0, titleMaxWords)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, caser.String(w))
		if len(out) == titleMaxWords {
			break
		}
	}
	title := strings.Join(out, " ")
	if utf8.RuneCountInString(title) > titleMaxRunes {
		title = strings.TrimSpace(string([]rune(title)[:titleMaxRunes]))
	}
	return title
}
