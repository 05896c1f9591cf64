package pubmed

import (
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`\w+`)

var stopWords = map[string]struct{}{
	"what": {}, "are": {}, "is": {}, "the": {}, "how": {}, "when": {}, "why": {},
	"which": {}, "does": {}, "do": {}, "can": {}, "could": {}, "would": {},
	"should": {}, "a": {}, "an": {}, "of": {}, "in": {}, "on": {}, "for": {},
	"to": {}, "with": {}, "and": {}, "from": {}, "i": {}, "you": {}, "have": {},
}

// expansions adds clinical terms after a keyword to steer PubMed towards
// clinical literature.
var expansions = map[string][]string{
	"pregnancy": {"symptoms", "clinical", "manifestations"},
}

// RewriteQuery lowercases a question, drops stop words and appends clinical
// expansions, producing an esearch term.
func RewriteQuery(question string) string {
	words := wordRe.FindAllString(strings.ToLower(question), -1)
	keywords := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		keywords = append(keywords, w)
	}
	out := append([]string(nil), keywords...)
	for _, w := range keywords {
		if extra, ok := expansions[w]; ok {
			out = append(out, extra...)
		}
	}
	return strings.Join(out, " ")
}
