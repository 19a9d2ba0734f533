package config

import "time"

// LLMConfig configures the single local LLM inference endpoint used for
// generation. The agent only ever talks to one model at a time; there is no
// provider routing or fallback chain.
type LLMConfig struct {
	// BaseURL points at an OpenAI-compatible completions endpoint, e.g. a
	// local llama.cpp server, vLLM, or Ollama's OpenAI shim.
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a bearer token. Local endpoints commonly ignore it,
	// but it is still read from config/env so hosted-compatible endpoints work.
	APIKey string `yaml:"api_key"`

	// Model is the model name passed on every completion request.
	Model string `yaml:"model"`

	// Timeout bounds a single generate() call. Default: 120s.
	Timeout time.Duration `yaml:"timeout"`

	// MaxTokens is the default max_tokens for a generate() call when the
	// caller does not specify one. Default: 1024.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the default sampling temperature. Default: 0.2.
	Temperature float32 `yaml:"temperature"`

	// ContextWindow is the model's total context size in tokens, used by the
	// context manager to size its budget. Default: 8192.
	ContextWindow int `yaml:"context_window"`
}

// DefaultLLMConfig returns the LLM defaults applied when config omits them.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:       "http://localhost:11434/v1",
		Model:         "qwen2.5:14b-instruct",
		Timeout:       120 * time.Second,
		MaxTokens:     1024,
		Temperature:   0.2,
		ContextWindow: 8192,
	}
}

// EmbeddingsConfig configures the single fixed embedding model used by L3.
// The dimension is fixed for the lifetime of a vector store; switching models
// requires rebuilding the index.
type EmbeddingsConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// DefaultEmbeddingsConfig returns the embeddings defaults.
func DefaultEmbeddingsConfig() EmbeddingsConfig {
	return EmbeddingsConfig{
		BaseURL:   "http://localhost:11434",
		Model:     "nomic-embed-text",
		Dimension: 768,
	}
}
