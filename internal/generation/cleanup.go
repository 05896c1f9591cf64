package generation

import (
	"regexp"
	"strings"
)

var answerLabelRe = regexp.MustCompile(`(?i)\banswer:\s*`)

// Clean removes chat scaffolding from a final answer: control tokens, an
// "Assistant:" prefix, anything before an "Answer:" label and an echoed
// copy of the question.
func Clean(text, question string) string {
	text = strings.NewReplacer("<|im_start|>", "", "<|im_end|>", "", "Assistant:", "").Replace(text)
	text = strings.TrimSpace(text)

	if loc := answerLabelRe.FindStringIndex(text); loc != nil {
		text = strings.TrimSpace(text[loc[1]:])
	}

	if q := strings.TrimRight(strings.ToLower(strings.TrimSpace(question)), "?!."); q != "" {
		if len(text) >= len(q) && strings.EqualFold(text[:len(q)], q) {
			text = strings.TrimLeft(text[len(q):], "?!. \n:")
			text = strings.TrimSpace(text)
		}
	}
	return text
}
