// Package classifier routes questions to the medical or the general path.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"medrag/internal/domain"
	"medrag/internal/embedding"
)

const DefaultK = 5

// Scores describes how a text relates to the exemplar set.
type Scores struct {
	// Base is the similarity-weighted share of medical labels among the
	// top-k exemplars, in [0,1].
	Base              float64  `json:"base"`
	Nearest           Exemplar `json:"nearest"`
	NearestSimilarity float64  `json:"nearest_similarity"`
	MedicalMean       float64  `json:"medical_mean"`
	NonMedicalMean    float64  `json:"non_medical_mean"`
}

// Decision is the routing outcome together with the facts it was based on.
type Decision struct {
	Medical bool `json:"medical"`
	// Rule names the rule that decided, or "base" when none applied.
	Rule   string `json:"rule"`
	Scores Scores `json:"scores"`
	// Previous is only set when there is a prior turn.
	Previous *PreviousTurn `json:"previous,omitempty"`
}

type PreviousTurn struct {
	Question   string  `json:"question"`
	Similarity float64 `json:"similarity"`
	Base       float64 `json:"base"`
	// Combined is the base score of previous + " " + current, computed only
	// when the context rule that uses it can apply.
	Combined *float64 `json:"combined,omitempty"`
}

type Options struct {
	K      int
	Logger *slog.Logger
}

// Classifier is immutable after New and safe for concurrent use.
type Classifier struct {
	embedder  domain.Embedder
	exemplars []Exemplar
	vectors   [][]float32
	k         int
	rules     []Rule
	logger    *slog.Logger
}

// New embeds the exemplars once. An empty exemplar set is an error.
func New(ctx context.Context, embedder domain.Embedder, exemplars []Exemplar, opts Options) (*Classifier, error) {
	if len(exemplars) == 0 {
		return nil, errors.New("classifier: no exemplars")
	}
	texts := make([]string, len(exemplars))
	for i, e := range exemplars {
		texts[i] = e.Text
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("classifier: embed exemplars: %w", err)
	}
	k := opts.K
	if k <= 0 {
		k = DefaultK
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		embedder:  embedder,
		exemplars: append([]Exemplar(nil), exemplars...),
		vectors:   vectors,
		k:         min(k, len(exemplars)),
		rules:     DefaultRules(),
		logger:    logger.With("component", "classifier"),
	}, nil
}

// Score embeds text and scores it against the exemplars.
func (c *Classifier) Score(ctx context.Context, text string) (Scores, []float32, error) {
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return Scores{}, nil, fmt.Errorf("embed question: %w", err)
	}
	return c.scoreVector(vec), vec, nil
}

func (c *Classifier) scoreVector(vec []float32) Scores {
	type hit struct {
		idx int
		sim float64
	}
	hits := make([]hit, len(c.vectors))
	var s Scores
	var medSum, nonSum float64
	var medN, nonN int
	for i, ev := range c.vectors {
		sim := embedding.Cosine(vec, ev)
		hits[i] = hit{i, sim}
		if c.exemplars[i].Label == Medical {
			medSum += sim
			medN++
		} else {
			nonSum += sim
			nonN++
		}
	}
	if medN > 0 {
		s.MedicalMean = medSum / float64(medN)
	}
	if nonN > 0 {
		s.NonMedicalMean = nonSum / float64(nonN)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].sim > hits[j].sim })
	s.Nearest = c.exemplars[hits[0].idx]
	s.NearestSimilarity = hits[0].sim

	var weighted, total float64
	for _, h := range hits[:c.k] {
		w := max(h.sim, 0)
		total += w
		if c.exemplars[h.idx].Label == Medical {
			weighted += w
		}
	}
	if total > 0 {
		s.Base = weighted / total
	}
	return s
}

// Classify decides whether question is medical. history is the user's prior
// turns, oldest first; only the last one is consulted.
func (c *Classifier) Classify(ctx context.Context, question string, history []domain.ConversationTurn) (Decision, error) {
	scores, vec, err := c.Score(ctx, question)
	if err != nil {
		return Decision{}, err
	}
	f := Facts{
		Question: question,
		Tokens:   len(strings.Fields(question)),
		Scores:   scores,
	}

	if len(history) > 0 {
		prevQ := history[len(history)-1].Question
		prevScores, prevVec, err := c.Score(ctx, prevQ)
		if err != nil {
			return Decision{}, err
		}
		prev := &PreviousTurn{
			Question:   prevQ,
			Similarity: embedding.Cosine(vec, prevVec),
			Base:       prevScores.Base,
		}
		f.Previous = prev
		if needsCombined(f) {
			combined, _, err := c.Score(ctx, prevQ+" "+question)
			if err != nil {
				return Decision{}, err
			}
			prev.Combined = &combined.Base
		}
	}

	d := Decision{Scores: scores, Previous: f.Previous, Rule: "base", Medical: scores.Base >= 0.5}
	for _, r := range c.rules {
		if medical, ok := r.Apply(f); ok {
			d.Medical = medical
			d.Rule = r.Name
			break
		}
	}

	attrs := []any{
		"medical", d.Medical,
		"rule", d.Rule,
		"base", fmt.Sprintf("%.3f", scores.Base),
		"nearest", scores.Nearest.Text,
		"nearest_label", scores.Nearest.Label.String(),
		"nearest_similarity", fmt.Sprintf("%.3f", scores.NearestSimilarity),
	}
	if f.Previous != nil {
		attrs = append(attrs,
			"medical_mean", fmt.Sprintf("%.3f", scores.MedicalMean),
			"non_medical_mean", fmt.Sprintf("%.3f", scores.NonMedicalMean),
			"previous_similarity", fmt.Sprintf("%.3f", f.Previous.Similarity))
	}
	if scores.NearestSimilarity < 0.3 {
		c.logger.Debug("low similarity to every exemplar, routing is uncertain", "question", question)
	}
	c.logger.Info("question classified", attrs...)
	return d, nil
}
