package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"hnrag/internal/models"
	"hnrag/pkg/chunker"
	cfgPkg "hnrag/pkg/config"
	"hnrag/pkg/fetcher"
	"hnrag/pkg/ingest"
	"hnrag/pkg/llm"
	"hnrag/pkg/rag"
	"hnrag/pkg/scraper"
	"hnrag/pkg/store"
	"hnrag/pkg/tokens"
	"hnrag/server"
)

type flags struct {
	configPath string
	dbURL      string
	ollamaURL  string
	chatModel  string
	embedModel string
	fetchKind  string
	limit      int
	workers    int
	topK       int
	serve      bool
	addr       string
}

func main() {
	// A .env file is optional; ignore a missing one.
	_ = godotenv.Load()

	f := parseFlags()

	if err := run(f); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.dbURL, "db-url", "", "PostgreSQL connection string")
	flag.StringVar(&f.ollamaURL, "ollama-url", "", "Ollama server URL")
	flag.StringVar(&f.chatModel, "chat-model", "", "Chat model name")
	flag.StringVar(&f.embedModel, "embed-model", "", "Embedding model name")
	flag.StringVar(&f.fetchKind, "fetch", "", "Fetch and ingest stories: top, new, best or trending")
	flag.IntVar(&f.limit, "limit", 10, "Number of stories to fetch")
	flag.IntVar(&f.workers, "workers", 0, "Ingestion worker count")
	flag.IntVar(&f.topK, "top-k", 0, "Headers retrieved per question")
	flag.BoolVar(&f.serve, "serve", false, "Start the HTTP API server")
	flag.StringVar(&f.addr, "addr", "", "HTTP listen address")
	flag.Parse()
	return f
}

func run(f flags) error {
	cfg, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		return err
	}

	// Command line flags win over config file and environment.
	if f.dbURL != "" {
		cfg.Database.URL = f.dbURL
	}
	if f.ollamaURL != "" {
		cfg.LLM.BaseURL = f.ollamaURL
	}
	if f.chatModel != "" {
		cfg.LLM.ChatModel = f.chatModel
	}
	if f.embedModel != "" {
		cfg.LLM.EmbedModel = f.embedModel
	}
	if f.workers > 0 {
		cfg.Ingest.Workers = f.workers
	}
	if f.topK > 0 {
		cfg.RAG.TopK = f.topK
	}
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return fmt.Errorf("invalid configuration")
	}

	ctx := context.Background()

	counter := tokens.NewCounter(cfg.LLM.TokenModel)
	chk := chunker.NewWithConfig(chunker.Config{MaxTokens: cfg.Chunker.MaxTokens}, counter)

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.LLM.EmbedModel,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chatEngine, err := llm.NewChatWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.ChatModel,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	summarizer, err := llm.NewSummarizerWithConfig(llm.SummarizerConfig{
		Model:   cfg.LLM.ChatModel,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize summarizer: %w", err)
	}

	vectorStore, err := store.NewWithConfig(ctx, store.Config{
		ConnString: cfg.Database.URL,
		VectorDim:  cfg.Database.VectorDim,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectorStore.Close()

	hn := fetcher.NewWithConfig(fetcher.Config{
		BaseURL:   cfg.Fetcher.BaseURL,
		Timeout:   time.Duration(cfg.Fetcher.TimeoutSecs) * time.Second,
		RateLimit: cfg.Fetcher.RateLimit,
	})
	scr := scraper.NewWithConfig(scraper.Config{
		Timeout:          time.Duration(cfg.Scraper.TimeoutSecs) * time.Second,
		RateLimit:        cfg.Scraper.RateLimit,
		MaxContentLength: cfg.Scraper.MaxContentLength,
	})

	var bar *progressbar.ProgressBar
	pipeline := ingest.NewWithConfig(ingest.Config{
		Workers: cfg.Ingest.Workers,
		OnProgress: func(int64) {
			if bar != nil {
				bar.Add(1)
			}
		},
	}, ingest.Deps{
		Fetcher:    hn,
		Scraper:    scr,
		Summarizer: summarizer,
		Chunker:    chk,
		Embedder:   embedder,
		Store:      vectorStore,
	})

	retriever := rag.NewRetriever(embedder, vectorStore)
	orchestrator := rag.NewOrchestrator(retriever, chatEngine, cfg.RAG.TopK)

	if f.fetchKind != "" {
		if err := runIngest(ctx, pipeline, &bar, f.fetchKind, f.limit); err != nil {
			return err
		}
		if !f.serve {
			return nil
		}
	}

	if f.serve {
		srv := server.New(server.Config{Addr: cfg.Server.Addr}, vectorStore, pipeline, orchestrator)
		return srv.Run()
	}

	return chatLoop(ctx, orchestrator)
}

func runIngest(ctx context.Context, pipeline *ingest.Pipeline, bar **progressbar.ProgressBar, kind string, limit int) error {
	color.Blue("\nIngesting %s stories (limit %d)\n", kind, limit)
	*bar = getProgressBar(limit, "Processing articles...")

	result, err := pipeline.Run(ctx, kind, limit)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	(*bar).Finish()

	color.Green("\nSaved %d new, updated %d, chunked %d articles\n",
		result.Saved, result.Updated, result.Chunked)
	if len(result.FailedURLs) > 0 {
		color.Yellow("Could not process %d articles:\n", len(result.FailedURLs))
		for _, url := range result.FailedURLs {
			color.Yellow("  %s\n", url)
		}
	}
	return nil
}

func chatLoop(ctx context.Context, orchestrator *rag.Orchestrator) error {
	color.Cyan("\nChat with your news corpus (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	var history []models.ChatMessage
	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		spinner := getSpinner("Searching articles...")
		answer, results, err := orchestrator.Answer(ctx, query, history)
		spinner.Finish()
		fmt.Print("\r")

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		assistantPrompt("Assistant: %s\n", answer)
		if len(results) > 0 {
			fmt.Println()
			color.Blue("Sources:")
			for i, res := range results {
				fmt.Printf("  %d. %s (%.3f)\n     %s\n", i+1, res.ArticleTitle, res.Similarity, res.ArticleURL)
			}
		}

		history = append(history,
			models.ChatMessage{Role: models.RoleUser, Content: query},
			models.ChatMessage{Role: models.RoleAssistant, Content: answer})
	}

	return scanner.Err()
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("articles"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
