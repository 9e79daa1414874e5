package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	maxContentPreview = 8000
	maxSummaryLength  = 500
	maxTagCount       = 10
	minSummarizable   = 100
)

// ParseOutcome records how the summary/tag payload was recovered from the
// model response.
type ParseOutcome int

const (
	ParseFailed    ParseOutcome = iota
	ParseParsed                 // response was valid JSON
	ParseExtracted              // best-effort regex extraction over malformed JSON
)

type SummarizerConfig struct {
	Model       string
	Temperature float64
	BaseURL     string // Ollama server URL
}

// Summarizer produces an article summary and tag list in a single model
// call. Generation failures degrade to empty results; the caller treats a
// missing summary as "try again on a later ingest", not an error.
type Summarizer struct {
	config SummarizerConfig
	llm    llms.Model
}

func NewSummarizerWithConfig(config SummarizerConfig) (*Summarizer, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.6
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}

	model, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize summarizer model: %w", err)
	}

	return &Summarizer{config: config, llm: model}, nil
}

const summaryPromptFormat = `Analyze the following article and provide:
1. A concise summary (2-3 sentences, maximum 200 words) for RAG metadata search. Focus on key topics, technologies, and main points.
2. 5-10 relevant tags/keywords as a JSON array. Focus on:
   - Programming languages, frameworks, and technologies mentioned
   - Main topics and subject areas
   - Tools, platforms, or services discussed
   - Industry or domain (e.g., AI, security, web development, etc.)

Title: %s

Content:
%s

Return your response in this exact JSON format (no markdown, no code blocks, just pure JSON):
{
  "summary": "your summary here",
  "tags": ["tag1", "tag2", "tag3"]
}`

// SummarizeAndTag generates both the summary and the tag JSON array for an
// article in one call. Content shorter than 100 characters is skipped. On
// any failure both results are empty.
func (s *Summarizer) SummarizeAndTag(ctx context.Context, title, content string) (string, string) {
	if utf8.RuneCountInString(strings.TrimSpace(content)) < minSummarizable {
		log.Printf("summarizer: content too short to summarize %q", title)
		return "", ""
	}

	preview := content
	if r := []rune(content); len(r) > maxContentPreview {
		preview = string(r[:maxContentPreview])
	}

	prompt := fmt.Sprintf(summaryPromptFormat, title, preview)
	resp, err := s.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithTemperature(s.config.Temperature))
	if err != nil {
		log.Printf("summarizer: generation failed for %q: %v", title, err)
		return "", ""
	}
	if len(resp.Choices) == 0 {
		log.Printf("summarizer: empty response for %q", title)
		return "", ""
	}

	summary, tagsJSON, outcome := ParseResponse(resp.Choices[0].Content)
	if outcome == ParseExtracted {
		log.Printf("summarizer: response for %q was not valid JSON, used text extraction", title)
	}
	return summary, tagsJSON
}

type summaryPayload struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// ParseResponse recovers the summary and tag array from a model response.
// The JSON path is tried first (markdown fences stripped); malformed JSON
// falls through to regex extraction of the individual fields.
func ParseResponse(response string) (summary, tagsJSON string, outcome ParseOutcome) {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```") {
		if parts := strings.Split(response, "```"); len(parts) > 1 {
			response = parts[1]
		}
		response = strings.TrimPrefix(response, "json")
		response = strings.TrimSpace(response)
	}

	var payload summaryPayload
	if err := json.Unmarshal([]byte(response), &payload); err != nil {
		return extractFromText(response)
	}

	summary = clampSummary(strings.TrimSpace(payload.Summary))
	if len(payload.Tags) > 0 {
		tags := payload.Tags
		if len(tags) > maxTagCount {
			tags = tags[:maxTagCount]
		}
		encoded, err := json.Marshal(tags)
		if err == nil {
			tagsJSON = string(encoded)
		}
	}

	if summary == "" && tagsJSON == "" {
		return "", "", ParseFailed
	}
	return summary, tagsJSON, ParseParsed
}

var (
	summaryPattern = regexp.MustCompile(`(?i)"summary"\s*:\s*"([^"]+)"`)
	tagsPattern    = regexp.MustCompile(`(?i)"tags"\s*:\s*\[([^\]]+)\]`)
	tagItemPattern = regexp.MustCompile(`["']([^"']+)["']`)
)

// extractFromText pulls the summary and tags fields out of a response that
// failed JSON parsing, typically a truncated or fence-mangled payload.
func extractFromText(response string) (summary, tagsJSON string, outcome ParseOutcome) {
	if m := summaryPattern.FindStringSubmatch(response); m != nil {
		summary = clampSummary(strings.TrimSpace(m[1]))
	}

	if m := tagsPattern.FindStringSubmatch(response); m != nil {
		var tags []string
		for _, item := range tagItemPattern.FindAllStringSubmatch(m[1], -1) {
			tags = append(tags, item[1])
		}
		if len(tags) > maxTagCount {
			tags = tags[:maxTagCount]
		}
		if len(tags) > 0 {
			if encoded, err := json.Marshal(tags); err == nil {
				tagsJSON = string(encoded)
			}
		}
	}

	if summary == "" && tagsJSON == "" {
		return "", "", ParseFailed
	}
	return summary, tagsJSON, ParseExtracted
}

func clampSummary(summary string) string {
	r := []rune(summary)
	if len(r) <= maxSummaryLength {
		return summary
	}
	return string(r[:maxSummaryLength-3]) + "..."
}
