package rag

import (
	"context"
	"fmt"

	"hnrag/internal/models"
	"hnrag/internal/types"
)

// DefaultTopK is how many headers back an answer unless configured
// otherwise.
const DefaultTopK = 4

const systemPrompt = `You are a helpful AI assistant with access to a knowledge base of HackerNews articles.

When provided with context from the knowledge base, use it to answer questions accurately and cite the sources.
If the context is relevant, reference the article titles and provide the URLs.
If the context is not relevant to the question, you can answer based on your general knowledge.`

// Orchestrator sequences retrieve, compose and generate for one question.
type Orchestrator struct {
	retriever *Retriever
	generator types.Generator
	topK      int
}

func NewOrchestrator(retriever *Retriever, generator types.Generator, topK int) *Orchestrator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Orchestrator{retriever: retriever, generator: generator, topK: topK}
}

// Answer retrieves context for query, generates a reply conditioned on it
// and the prior history, and returns the reply together with the evidence
// that backed it. Empty retrieval is not an error; generation failure
// propagates since there is no meaningful partial answer.
func (o *Orchestrator) Answer(ctx context.Context, query string, history []models.ChatMessage) (string, []models.RetrievalResult, error) {
	results := o.retriever.Search(ctx, query, o.topK)
	contextBlock := BuildContext(results)

	answer, err := o.generator.Generate(ctx, BuildMessages(query, history, contextBlock))
	if err != nil {
		return "", nil, fmt.Errorf("generating answer: %w", err)
	}
	return answer, results, nil
}

// BuildMessages assembles the generator input: the fixed system
// instruction, the prior history in original order, then a final user turn.
// With context the final turn is the composed block plus a labeled question
// section; without it the raw query goes through unmodified.
func BuildMessages(query string, history []models.ChatMessage, contextBlock string) []models.ChatMessage {
	messages := make([]models.ChatMessage, 0, len(history)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: systemPrompt})

	for _, msg := range history {
		if msg.Role == models.RoleUser || msg.Role == models.RoleAssistant {
			messages = append(messages, msg)
		}
	}

	final := query
	if contextBlock != "" {
		final = fmt.Sprintf("%s\n\n**USER QUESTION:**\n%s", contextBlock, query)
	}
	return append(messages, models.ChatMessage{Role: models.RoleUser, Content: final})
}
