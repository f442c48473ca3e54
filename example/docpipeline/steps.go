package docpipeline

import (
	"context"
	"strings"
	"unicode"

	"github.com/sicko7947/smartflow"
	"github.com/sicko7947/smartflow/engine"
)

// costPerToken prices the in-process collaborators' usage reports
const costPerToken = 0.00002

// NewCollaborators returns in-process stand-ins for the extraction and
// summarization services
func NewCollaborators() engine.Collaborators {
	return engine.Collaborators{
		Extraction:    smartflow.CollaboratorFunc(extractEntities),
		Summarization: smartflow.CollaboratorFunc(summarize),
	}
}

// extractEntities reports capitalised words as entities
func extractEntities(_ context.Context, payload map[string]any) (map[string]any, error) {
	text, _ := payload["text"].(string)
	words := strings.Fields(text)

	seen := make(map[string]bool)
	entities := make([]any, 0)
	for _, w := range words {
		w = strings.TrimFunc(w, unicode.IsPunct)
		if w == "" || !unicode.IsUpper([]rune(w)[0]) || seen[w] {
			continue
		}
		seen[w] = true
		entities = append(entities, w)
	}

	return map[string]any{
		"entities":         entities,
		smartflow.UsageKey: usage(len(words), 0.92),
	}, nil
}

// summarize keeps the first sentence
func summarize(_ context.Context, payload map[string]any) (map[string]any, error) {
	text, _ := payload["text"].(string)
	summary := text
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		summary = text[:i+1]
	}

	return map[string]any{
		"summary":          summary,
		smartflow.UsageKey: usage(len(strings.Fields(text))*2, 0.88),
	}, nil
}

func usage(tokens int, accuracy float64) map[string]any {
	return map[string]any{
		"tokensUsed": tokens,
		"cost":       float64(tokens) * costPerToken,
		"accuracy":   accuracy,
	}
}
