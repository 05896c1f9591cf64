package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccept(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"long answer", "<|im_start|>Migraines usually last from four hours up to three days.<|im_end|>",
			"Migraines usually last from four hours up to three days.", true},
		{"marker", "Answer: Rest and drink fluids", "Rest and drink fluids", true},
		{"marker with short tail", "Answer: rest", "", false},
		{"marker with empty tail", "Answer:", "", false},
		{"medium without leak", "Drink plenty of fluids.", "Drink plenty of fluids.", true},
		{"prompt leak", "### Instructions: see above", "", false},
		{"too short", "ok", "ok", false},
		{"only control tokens", "<|endoftext|>", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Accept(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestAccept_LongOutputKeepsMarkers(t *testing.T) {
	got, ok := Accept("Detailed answer Answer: see a GP")
	assert.True(t, ok)
	assert.Equal(t, "Detailed answer Answer: see a GP", got)
}

func TestAcceptRetry(t *testing.T) {
	assert.Equal(t, ApologyMessage, AcceptRetry("<|im_end|>short"))
	long := strings.Repeat("a", 21)
	assert.Equal(t, long, AcceptRetry(" "+long+"<|endoftext|>"))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "Rest and fluids.", Clean("<|im_start|>Assistant: Answer: Rest and fluids.<|im_end|>", ""))
	assert.Equal(t, "It is an enzyme.", Clean("What is lactase? It is an enzyme.", "What is lactase?"))
	assert.Equal(t, "Yes.", Clean("IS IT SAFE: Yes.", "is it safe"))
	assert.Equal(t, "unchanged", Clean("unchanged", "other question"))
}
