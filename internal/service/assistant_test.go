package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/classifier"
	"medrag/internal/conversation"
	"medrag/internal/domain"
	"medrag/internal/generation"
	"medrag/internal/retrieval"
)

type fakeClassifier struct {
	medical   bool
	histories [][]domain.ConversationTurn
	mu        sync.Mutex
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, history []domain.ConversationTurn) (classifier.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, history)
	return classifier.Decision{Medical: f.medical, Rule: "base"}, nil
}

type fakeRetriever struct {
	result retrieval.Result
	err    error
	opts   retrieval.Options
	query  string
}

func (f *fakeRetriever) Retrieve(_ context.Context, q string, opts retrieval.Options) (retrieval.Result, error) {
	f.query, f.opts = q, opts
	return f.result, f.err
}

type fakeGenerator struct {
	answer string
	err    error
	jobs   []generation.Job
}

func (f *fakeGenerator) Generate(_ context.Context, job generation.Job) (string, error) {
	f.jobs = append(f.jobs, job)
	return f.answer, f.err
}

type prefixTranslator struct{}

func (prefixTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	return "[" + target + "] " + text, nil
}

type fixture struct {
	cls      *fakeClassifier
	ret      *fakeRetriever
	grounded *fakeGenerator
	general  *fakeGenerator
	history  *conversation.Store
	asst     *Assistant
}

func newFixture(medical bool, mutate func(*Config)) *fixture {
	f := &fixture{
		cls: &fakeClassifier{medical: medical},
		ret: &fakeRetriever{result: retrieval.Result{
			Documents:       []domain.Document{{ID: "d1", Title: "Gout", Text: "Gout is inflammatory arthritis."}},
			ServedFromIndex: true,
		}},
		grounded: &fakeGenerator{answer: "<|im_start|>Answer: Gout is caused by uric acid crystals.<|im_end|>"},
		general:  &fakeGenerator{answer: "Paris is the capital of France."},
		history:  conversation.NewStore(0),
	}
	cfg := Config{
		Classifier:       f.cls,
		Retriever:        f.ret,
		Grounded:         f.grounded,
		General:          f.general,
		History:          f.history,
		QuestionLanguage: "English",
		Retrieval:        retrieval.Options{MaxCandidates: 50, Threshold: 0.5},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.asst = New(cfg)
	return f
}

func TestAsk_MedicalPath(t *testing.T) {
	f := newFixture(true, nil)
	ans, err := f.asst.Ask(context.Background(), "u", "What causes gout?", 3)
	require.NoError(t, err)

	assert.True(t, ans.Medical)
	assert.Equal(t, "Gout is caused by uric acid crystals.", ans.Text)
	assert.Len(t, ans.Documents, 1)
	assert.True(t, ans.ServedFromIndex)
	assert.Equal(t, 3, f.ret.opts.K)
	assert.Equal(t, 50, f.ret.opts.MaxCandidates)
	require.Len(t, f.grounded.jobs, 1)
	assert.Equal(t, generation.Grounded, f.grounded.jobs[0].Kind)
	assert.Empty(t, f.general.jobs)

	h := f.history.History("u")
	require.Len(t, h, 1)
	assert.Equal(t, "What causes gout?", h[0].Question)
	assert.Equal(t, ans.Text, h[0].Answer)
}

func TestAsk_MedicalWithoutDocuments(t *testing.T) {
	f := newFixture(true, nil)
	f.ret.result = retrieval.Result{}
	ans, err := f.asst.Ask(context.Background(), "u", "What causes gout?", 5)
	require.NoError(t, err)
	assert.Equal(t, NoInformationMessage, ans.Text)
	assert.Empty(t, f.grounded.jobs)
	assert.Len(t, f.history.History("u"), 1)
}

func TestAsk_GeneralPath(t *testing.T) {
	f := newFixture(false, nil)
	ans, err := f.asst.Ask(context.Background(), "", "What is the capital of France?", 5)
	require.NoError(t, err)
	assert.False(t, ans.Medical)
	assert.Equal(t, "Paris is the capital of France.", ans.Text)
	assert.Empty(t, f.ret.query)
	assert.Len(t, f.history.History(DefaultUser), 1)
}

func TestAsk_EmptyAnswersAreReplaced(t *testing.T) {
	f := newFixture(true, nil)
	f.grounded.answer = "<|im_end|>"
	ans, err := f.asst.Ask(context.Background(), "u", "q?", 5)
	require.NoError(t, err)
	assert.Equal(t, generation.ApologyMessage, ans.Text)

	g := newFixture(false, nil)
	g.general.answer = "  "
	ans, err = g.asst.Ask(context.Background(), "u", "q?", 5)
	require.NoError(t, err)
	assert.Equal(t, GeneralApologyMessage, ans.Text)
}

func TestAsk_TimeoutMessagePassesThrough(t *testing.T) {
	f := newFixture(true, nil)
	f.grounded.answer = generation.TimeoutMessage
	ans, err := f.asst.Ask(context.Background(), "u", "q?", 5)
	require.NoError(t, err)
	assert.Equal(t, generation.TimeoutMessage, ans.Text)
}

func TestAsk_HistoryIsPassedToClassifierAndGenerator(t *testing.T) {
	f := newFixture(true, nil)
	_, err := f.asst.Ask(context.Background(), "u", "first?", 5)
	require.NoError(t, err)
	_, err = f.asst.Ask(context.Background(), "u", "second?", 5)
	require.NoError(t, err)

	require.Len(t, f.cls.histories, 2)
	assert.Empty(t, f.cls.histories[0])
	require.Len(t, f.cls.histories[1], 1)
	assert.Equal(t, "first?", f.cls.histories[1][0].Question)
	assert.Len(t, f.grounded.jobs[1].History, 1)
}

func TestAsk_ModelUnavailableIsError(t *testing.T) {
	f := newFixture(false, nil)
	f.general.err = domain.ErrModelUnavailable
	_, err := f.asst.Ask(context.Background(), "u", "q?", 5)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	assert.Empty(t, f.history.History("u"), "failed exchanges are not recorded")
}

func TestAsk_EmptyQuestion(t *testing.T) {
	f := newFixture(true, nil)
	_, err := f.asst.Ask(context.Background(), "u", "   ", 5)
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
}

func TestAsk_Translation(t *testing.T) {
	f := newFixture(false, func(c *Config) {
		c.Translator = prefixTranslator{}
		c.QuestionLanguage = "Italian"
		c.AnswerLanguage = "Italian"
	})
	ans, err := f.asst.Ask(context.Background(), "u", "Qual è la capitale?", 5)
	require.NoError(t, err)
	assert.Equal(t, "[English] Qual è la capitale?", f.general.jobs[0].Question)
	assert.Equal(t, "[Italian] Paris is the capital of France.", ans.Text)
	assert.Equal(t, "Qual è la capitale?", f.history.History("u")[0].Question)
}

func TestSearch(t *testing.T) {
	f := newFixture(true, nil)
	res, err := f.asst.Search(context.Background(), "gout", 2)
	require.NoError(t, err)
	assert.Len(t, res.Documents, 1)
	assert.Equal(t, 2, f.ret.opts.K)

	f.ret.err = errors.New("index unavailable")
	_, err = f.asst.Search(context.Background(), "gout", 2)
	assert.Error(t, err)
}
