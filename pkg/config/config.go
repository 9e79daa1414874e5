package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	ChatModel   string  `yaml:"chat_model"`
	EmbedModel  string  `yaml:"embed_model"`
	TokenModel  string  `yaml:"token_model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	VectorDim int    `yaml:"vector_dim"`
}

type FetcherConfig struct {
	BaseURL     string  `yaml:"base_url"`
	RateLimit   float64 `yaml:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

type ScraperConfig struct {
	RateLimit        float64 `yaml:"rate_limit"`
	TimeoutSecs      int     `yaml:"timeout_secs"`
	MaxContentLength int     `yaml:"max_content_length"`
}

type ChunkerConfig struct {
	MaxTokens int `yaml:"max_tokens"`
}

type IngestConfig struct {
	Workers int `yaml:"workers"`
}

type RAGConfig struct {
	TopK int `yaml:"top_k"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Database DatabaseConfig `yaml:"database"`
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Chunker  ChunkerConfig  `yaml:"chunker"`
	Ingest   IngestConfig   `yaml:"ingest"`
	RAG      RAGConfig      `yaml:"rag"`
	Server   ServerConfig   `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/hnrag/config.yaml"),
			"/etc/hnrag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.ChatModel == "" {
		config.LLM.ChatModel = "mistral"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "nomic-embed-text:latest"
	}
	if config.LLM.TokenModel == "" {
		config.LLM.TokenModel = "gpt-3.5-turbo"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}

	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Fetcher.BaseURL == "" {
		config.Fetcher.BaseURL = "https://hacker-news.firebaseio.com/v0"
	}
	if config.Fetcher.RateLimit == 0 {
		config.Fetcher.RateLimit = 10
	}
	if config.Fetcher.TimeoutSecs == 0 {
		config.Fetcher.TimeoutSecs = 10
	}

	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2
	}
	if config.Scraper.TimeoutSecs == 0 {
		config.Scraper.TimeoutSecs = 30
	}
	if config.Scraper.MaxContentLength == 0 {
		config.Scraper.MaxContentLength = 50000
	}

	if config.Chunker.MaxTokens == 0 {
		config.Chunker.MaxTokens = 512
	}

	if config.Ingest.Workers == 0 {
		config.Ingest.Workers = 4
	}

	if config.RAG.TopK == 0 {
		config.RAG.TopK = 4
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if hnURL := os.Getenv("HN_API_URL"); hnURL != "" {
		config.Fetcher.BaseURL = hnURL
	}
}
