package ragblade

import (
	"fmt"
	"strings"
)

// MaxHistoryTurns bounds how much conversation is carried into a prompt.
const MaxHistoryTurns = 5

const groundingRules = `Answer the question using only the numbered context passages.
Cite every passage you rely on as [n] together with its source and page.
If the context does not contain the answer, say plainly that the knowledge base does not cover it instead of guessing.`

// BuildPrompt returns the system instruction and the user prompt for a
// grounded answer. Only the last MaxHistoryTurns turns of history are kept.
func BuildPrompt(query string, docs []RetrievedDoc, scene Scene, history []Turn) (string, string) {
	persona := strings.TrimSpace(scene.Persona)
	if persona == "" {
		persona = DefaultPersona
	}

	system := persona + "\n\n" + groundingRules

	var sb strings.Builder

	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}

	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&sb, "User: %s\n", strings.TrimSpace(turn.User))
			if turn.Assistant != "" {
				fmt.Fprintf(&sb, "Assistant: %s\n", strings.TrimSpace(turn.Assistant))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Context:\n")
	if len(docs) == 0 {
		sb.WriteString("(no relevant passages were found)\n")
	}

	for i, doc := range docs {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, citation(doc), strings.TrimSpace(doc.Content))
	}

	fmt.Fprintf(&sb, "\nQuestion: %s\n", strings.TrimSpace(query))

	return system, sb.String()
}

func citation(doc RetrievedDoc) string {
	source := doc.Source
	if source == "" {
		source = "unknown source"
	}

	if doc.Page > 0 {
		return fmt.Sprintf("(source: %s, page %d)", source, doc.Page)
	}
	return fmt.Sprintf("(source: %s)", source)
}

func sourcesOf(docs []RetrievedDoc) []Source {
	sources := make([]Source, len(docs))
	for i, doc := range docs {
		sources[i] = Source{
			Index:  i + 1,
			Source: doc.Source,
			Page:   doc.Page,
			Score:  doc.Score,
		}
	}
	return sources
}
