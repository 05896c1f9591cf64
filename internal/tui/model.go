// Package tui is the terminal chat front end.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"medrag/internal/domain"
	"medrag/internal/service"
)

// Asker is the TUI-facing subset of the assistant.
type Asker interface {
	Ask(ctx context.Context, user, question string, numResults int) (service.Answer, error)
}

type exchange struct {
	question string
	answer   service.Answer
	err      error
}

type answerMsg exchange

// Model is the Bubble Tea model for the chat.
type Model struct {
	ctx        context.Context
	asker      Asker
	user       string
	numResults int

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	log     []exchange
	cursor  int
	waiting bool
	status  string
	ready   bool
}

func New(ctx context.Context, asker Asker, user string, numResults int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:        ctx,
		asker:      asker,
		user:       user,
		numResults: numResults,
		input:      ti,
		viewport:   viewport.New(0, 0),
		spinner:    sp,
		status:     "Ready. Up/Down browse sources, Ctrl+C quits.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		ans, err := m.asker.Ask(m.ctx, m.user, question, m.numResults)
		return answerMsg{question: question, answer: ans, err: err}
	}
}

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptStyle.GetFrameSize()
		_, qh := inputStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.waiting = false
		m.log = append(m.log, exchange(msg))
		m.cursor = 0
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Answered with %d sources", len(msg.answer.Documents))
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.waiting = true
			m.status = "Thinking..."
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case "down", "up":
			if docs := m.lastDocuments(); len(docs) > 0 {
				step := 1
				if msg.String() == "up" {
					step = len(docs) - 1
				}
				m.cursor = (m.cursor + step) % len(docs)
				m.refresh()
				return m, nil
			}
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("medrag chat")
	status := statusStyle.Render(m.status)
	if m.waiting {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + transcriptStyle.Render(m.viewport.View()) + "\n" + inputStyle.Render(m.input.View()) + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
}

func (m Model) lastDocuments() []domain.Document {
	if len(m.log) == 0 {
		return nil
	}
	return m.log[len(m.log)-1].answer.Documents
}

func (m Model) renderTranscript() string {
	if len(m.log) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, ex := range m.log {
		b.WriteString(questionStyle.Render("You: " + ex.question))
		b.WriteString("\n")
		switch {
		case ex.err != nil:
			b.WriteString(errorStyle.Render("Error: " + ex.err.Error()))
		case ex.answer.Medical:
			b.WriteString(medicalStyle.Render("[medical] ") + ex.answer.Text)
		default:
			b.WriteString(generalStyle.Render("[general] ") + ex.answer.Text)
		}
		b.WriteString("\n")
		if i == len(m.log)-1 && ex.err == nil {
			b.WriteString(m.renderSource(ex))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderSource shows the selected source of the latest answer with the
// sentence closest to the question highlighted.
func (m Model) renderSource(ex exchange) string {
	docs := ex.answer.Documents
	if len(docs) == 0 {
		return ""
	}
	d := docs[m.cursor%len(docs)]
	title := fmt.Sprintf("Source %d/%d  %s  similarity=%.3f", m.cursor%len(docs)+1, len(docs), d.Title, d.Similarity)
	return "\n" + sourceTitleStyle.Render(title) + "\n" + highlightBestSentence(d.Text, ex.question) + "\n"
}

var (
	transcriptStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle    = lipgloss.NewStyle().Bold(true)
	medicalStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	generalStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sourceTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	highlightStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe       = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sent = highlightStyle.Render(sent)
		}
		sentences[i] = sent
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
