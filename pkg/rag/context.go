package rag

import (
	"fmt"
	"strings"

	"hnrag/internal/models"
)

// contextBanner opens the knowledge-base block handed to the generator.
// The layout below is part of the prompt contract: identical input must
// produce a byte-identical block.
const contextBanner = "\n\n**CONTEXT FROM KNOWLEDGE BASE:**\n\n"

// BuildContext formats retrieval results into the context block for the
// generator. Empty input yields an empty string, not a bare banner.
func BuildContext(results []models.RetrievalResult) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(contextBanner)
	for i, res := range results {
		fmt.Fprintf(&b, "Article %d: %s\n", i+1, res.ArticleTitle)
		fmt.Fprintf(&b, "Header: %s\n", res.HeaderText)
		fmt.Fprintf(&b, "URL: %s\n", res.ArticleURL)
		fmt.Fprintf(&b, "Relevance Score: %.3f\n\n", res.Similarity)
	}
	return b.String()
}
