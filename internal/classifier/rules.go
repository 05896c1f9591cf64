package classifier

import "strings"

// Facts are the inputs every rule sees.
type Facts struct {
	Question string
	Tokens   int
	Scores   Scores
	Previous *PreviousTurn
}

// Rule inspects the facts and either decides (ok == true) or passes.
type Rule struct {
	Name  string
	Apply func(f Facts) (medical, ok bool)
}

const (
	// continuity is the minimum similarity to the previous question for the
	// current one to count as a continuation.
	continuity = 0.3
	shortQuery = 4
	tinyQuery  = 3
)

var followUpPatterns = []string{
	"what about", "how about", "and now", "what if", "what is", "what does",
	"how does", "why does", "when did", "where is", "who is", "what function",
	"what purpose", "what use", "how many", "how much", "what are",
	"what was", "why is", "can you", "could you", "please explain", "tell me more",
	"more info", "more information", "give me", "what happens", "how can", "why would",
}

// DefaultRules returns the context rules in precedence order. Each only
// applies when there is a previous turn.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "topic-shift", Apply: topicShift},
		{Name: "new-topic", Apply: newTopic},
		{Name: "follow-up", Apply: followUp},
		{Name: "ambiguous-with-context", Apply: ambiguousWithContext},
	}
}

// topicShift: the question is clearly closer to the non-medical exemplars.
func topicShift(f Facts) (bool, bool) {
	if f.Previous == nil {
		return false, false
	}
	s := f.Scores
	if s.NonMedicalMean > s.MedicalMean+0.1 && s.NonMedicalMean > 0.5 && s.MedicalMean < 0.4 {
		return false, true
	}
	return false, false
}

// newTopic: unrelated to the previous question and leaning non-medical.
func newTopic(f Facts) (bool, bool) {
	if f.Previous == nil {
		return false, false
	}
	if f.Previous.Similarity < 0.2 && f.Scores.NonMedicalMean > f.Scores.MedicalMean {
		return false, true
	}
	return false, false
}

// followUp: a short continuation inherits the previous question's routing.
func followUp(f Facts) (bool, bool) {
	if f.Previous == nil || f.Tokens > shortQuery || f.Previous.Similarity < continuity {
		return false, false
	}
	if f.Tokens <= tinyQuery || IsFollowUp(f.Question) {
		return f.Previous.Base >= 0.5, true
	}
	return false, false
}

// ambiguousWithContext re-scores a borderline question together with a
// clearly medical previous one.
func ambiguousWithContext(f Facts) (bool, bool) {
	if !needsCombined(f) || f.Previous.Combined == nil {
		return false, false
	}
	return *f.Previous.Combined >= 0.5, true
}

func needsCombined(f Facts) bool {
	return f.Previous != nil &&
		f.Scores.Base >= 0.4 && f.Scores.Base <= 0.6 &&
		f.Previous.Similarity >= continuity &&
		f.Previous.Base >= 0.7
}

// IsFollowUp reports whether question contains a typical follow-up phrase.
func IsFollowUp(question string) bool {
	q := strings.ToLower(question)
	for _, p := range followUpPatterns {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}
