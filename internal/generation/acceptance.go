package generation

import (
	"strings"
	"unicode/utf8"
)

const (
	// ApologyMessage is returned when no usable answer could be produced.
	ApologyMessage = "I'm sorry, I couldn't find an adequate answer. Please consult a medical professional."
	// TimeoutMessage is returned when generation exceeds its time budget.
	TimeoutMessage = "Timeout: generating the answer took longer than the maximum allowed time."

	acceptLength   = 30
	fallbackLength = 20
)

var controlTokens = []string{"<|im_start|>", "<|im_end|>", "<|endoftext|>"}

// answerMarkers introduce the answer proper when a model echoes scaffolding.
var answerMarkers = []string{
	"### Detailed answer",
	"Detailed answer",
	"Answer in English:",
	"Answer:",
}

// leakMarkers indicate the model reproduced the prompt instead of answering.
var leakMarkers = []string{
	"### Instructions:",
	"### User question:",
	"### Clinical context",
}

// StripControlTokens removes chat-template control tokens and surrounding space.
func StripControlTokens(s string) string {
	for _, t := range controlTokens {
		s = strings.ReplaceAll(s, t, "")
	}
	return strings.TrimSpace(s)
}

// Accept applies the tiered acceptance policy to raw model output. The first
// stage that matches wins; ok is false when the output should be regenerated.
func Accept(raw string) (answer string, ok bool) {
	text := StripControlTokens(raw)
	if runeLen(text) > acceptLength {
		return text, true
	}
	for _, m := range answerMarkers {
		if _, after, found := strings.Cut(text, m); found {
			// a short answer behind a marker is regenerated like any short answer
			if after = strings.TrimSpace(after); runeLen(after) >= fallbackLength {
				return after, true
			}
			return text, false
		}
	}
	if !containsAny(text, leakMarkers) && runeLen(text) > fallbackLength {
		return text, true
	}
	if i := strings.LastIndex(text, ":"); i >= 0 {
		if tail := strings.TrimSpace(text[i+1:]); runeLen(tail) > fallbackLength {
			return tail, true
		}
	}
	return text, false
}

// AcceptRetry is the policy for the single regeneration: strip and accept if
// long enough, otherwise fall back to the apology.
func AcceptRetry(raw string) string {
	text := StripControlTokens(raw)
	if runeLen(text) > fallbackLength {
		return text
	}
	return ApologyMessage
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
