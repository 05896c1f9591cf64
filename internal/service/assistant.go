// Package service wires classification, retrieval and generation into the
// question answering flow.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"medrag/internal/classifier"
	"medrag/internal/conversation"
	"medrag/internal/domain"
	"medrag/internal/generation"
	"medrag/internal/retrieval"
	"medrag/internal/translate"
)

const (
	// NoInformationMessage answers a medical question no document supports.
	NoInformationMessage = "I couldn't find relevant medical information. Please consult a doctor."
	// GeneralApologyMessage replaces an empty answer on the general path.
	GeneralApologyMessage = "I'm sorry, I couldn't generate an adequate answer."

	// PivotLanguage is the language classification, retrieval and prompts work in.
	PivotLanguage = "English"
	// DefaultUser owns the history of callers that do not identify themselves.
	DefaultUser = "default"
)

type Classifier interface {
	Classify(ctx context.Context, question string, history []domain.ConversationTurn) (classifier.Decision, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, opts retrieval.Options) (retrieval.Result, error)
}

type Generator interface {
	Generate(ctx context.Context, job generation.Job) (string, error)
}

type Config struct {
	Classifier Classifier
	Retriever  Retriever
	Grounded   Generator
	General    Generator
	History    *conversation.Store
	// Translator defaults to translate.Noop.
	Translator domain.Translator
	// QuestionLanguage is the users' language, empty to auto-detect.
	QuestionLanguage string
	// AnswerLanguage, when set, is the language answers are translated to.
	AnswerLanguage string
	Retrieval      retrieval.Options
	Logger         *slog.Logger
}

// Assistant answers questions. It is safe for concurrent use; requests of the
// same user are serialized.
type Assistant struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Assistant {
	if cfg.Translator == nil {
		cfg.Translator = translate.Noop{}
	}
	if cfg.History == nil {
		cfg.History = conversation.NewStore(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{cfg: cfg, logger: logger.With("component", "assistant")}
}

// Answer is the outcome of Ask.
type Answer struct {
	Text            string            `json:"answer"`
	Medical         bool              `json:"medical"`
	Rule            string            `json:"rule"`
	Documents       []domain.Document `json:"documents"`
	ServedFromIndex bool              `json:"served_from_index"`
	IndexUpdated    bool              `json:"index_updated"`
}

// Ask answers question for user and records the exchange in the user's history.
func (a *Assistant) Ask(ctx context.Context, user, question string, numResults int) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, domain.ErrEmptyQuestion
	}
	if user == "" {
		user = DefaultUser
	}
	logger := a.logger.With("user", user)
	if id, ok := RequestID(ctx); ok {
		logger = logger.With("request_id", id)
	}

	sess := a.cfg.History.Acquire(user)
	defer sess.Release()
	history := sess.History()

	pivot := a.toPivot(ctx, question, logger)
	decision, err := a.cfg.Classifier.Classify(ctx, pivot, history)
	if err != nil {
		return Answer{}, fmt.Errorf("classify: %w", err)
	}
	logger.Info("question received", "question", question, "medical", decision.Medical, "rule", decision.Rule)

	var out Answer
	if decision.Medical {
		out, err = a.answerMedical(ctx, pivot, history, numResults, logger)
	} else {
		out, err = a.answerGeneral(ctx, pivot, history)
	}
	if err != nil {
		return Answer{}, err
	}
	out.Medical = decision.Medical
	out.Rule = decision.Rule
	out.Text = a.fromPivot(ctx, out.Text, logger)

	sess.Append(question, out.Text)
	return out, nil
}

func (a *Assistant) answerMedical(ctx context.Context, question string, history []domain.ConversationTurn, numResults int, logger *slog.Logger) (Answer, error) {
	res, err := a.cfg.Retriever.Retrieve(ctx, question, a.retrievalOptions(numResults))
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve: %w", err)
	}
	out := Answer{Documents: res.Documents, ServedFromIndex: res.ServedFromIndex, IndexUpdated: res.IndexUpdated}
	if len(res.Documents) == 0 {
		logger.Warn("no relevant documents found")
		out.Text = NoInformationMessage
		return out, nil
	}
	logger.Info("documents retrieved", "count", len(res.Documents), "from_index", res.ServedFromIndex, "index_updated", res.IndexUpdated)

	raw, err := a.cfg.Grounded.Generate(ctx, generation.Job{
		Kind:      generation.Grounded,
		Question:  question,
		Documents: res.Documents,
		History:   history,
	})
	if err != nil {
		return Answer{}, err
	}
	out.Text = finalize(raw, question, generation.ApologyMessage)
	return out, nil
}

func (a *Assistant) answerGeneral(ctx context.Context, question string, history []domain.ConversationTurn) (Answer, error) {
	raw, err := a.cfg.General.Generate(ctx, generation.Job{
		Kind:     generation.General,
		Question: question,
		History:  history,
	})
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: finalize(raw, question, GeneralApologyMessage)}, nil
}

func finalize(raw, question, apology string) string {
	if raw == generation.TimeoutMessage {
		return raw
	}
	if text := generation.Clean(raw, question); text != "" {
		return text
	}
	return apology
}

// Search retrieves documents without generating an answer.
func (a *Assistant) Search(ctx context.Context, question string, numResults int) (retrieval.Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return retrieval.Result{}, domain.ErrEmptyQuestion
	}
	pivot := a.toPivot(ctx, question, a.logger)
	return a.cfg.Retriever.Retrieve(ctx, pivot, a.retrievalOptions(numResults))
}

func (a *Assistant) retrievalOptions(numResults int) retrieval.Options {
	opts := a.cfg.Retrieval
	if numResults > 0 {
		opts.K = numResults
	}
	return opts
}

func (a *Assistant) toPivot(ctx context.Context, text string, logger *slog.Logger) string {
	if strings.EqualFold(a.cfg.QuestionLanguage, PivotLanguage) {
		return text
	}
	return translate.OrOriginal(ctx, a.cfg.Translator, text, a.cfg.QuestionLanguage, PivotLanguage, logger)
}

func (a *Assistant) fromPivot(ctx context.Context, text string, logger *slog.Logger) string {
	if a.cfg.AnswerLanguage == "" || strings.EqualFold(a.cfg.AnswerLanguage, PivotLanguage) {
		return text
	}
	return translate.OrOriginal(ctx, a.cfg.Translator, text, PivotLanguage, a.cfg.AnswerLanguage, logger)
}
