// Package config loads and validates the agent's configuration: the LLM
// endpoint, the embedding model backing L3 vector memory, context-budget
// tunables, the on-disk chat store location, context pruning, and logging.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the agent's top-level configuration.
type Config struct {
	LLM            LLMConfig            `yaml:"llm"`
	Embeddings     EmbeddingsConfig     `yaml:"embeddings"`
	ChatStore      ChatStoreConfig      `yaml:"chat_store"`
	ContextBudget  ContextBudgetConfig  `yaml:"context_budget"`
	ContextPruning ContextPruningConfig `yaml:"context_pruning"`
	Loop           LoopConfig           `yaml:"loop"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// ChatStoreConfig configures where chat lifecycle state (metadata, history,
// scratchpad, and global-scope vector memory) is persisted on disk.
type ChatStoreConfig struct {
	// DataDir is the root directory. Default: "./data".
	DataDir string `yaml:"data_dir"`
}

// ContextBudgetConfig overrides the context manager's priority-class token
// shares. Any zero-value share falls back to contextmgr.DefaultBudget's
// value for that class.
type ContextBudgetConfig struct {
	SystemShare     float64 `yaml:"system_share"`
	ScratchpadFloor float64 `yaml:"scratchpad_floor"`
	ScratchpadTarget float64 `yaml:"scratchpad_target"`
	ScratchpadCeil  float64 `yaml:"scratchpad_ceil"`
	RetrievedFloor  float64 `yaml:"retrieved_floor"`
	RetrievedTarget float64 `yaml:"retrieved_target"`
	RetrievedCeil   float64 `yaml:"retrieved_ceil"`
	HistoryFloor    float64 `yaml:"history_floor"`
	HistoryTarget   float64 `yaml:"history_target"`
	HistoryCeil     float64 `yaml:"history_ceil"`
	ReserveShare    float64 `yaml:"reserve_share"`
}

// LoopConfig configures the ReAct control loop.
type LoopConfig struct {
	// MaxCycles bounds how many Thought/Action/Observation cycles a run may
	// take before it fails with a cycle-limit error. Default: 50.
	MaxCycles int `yaml:"max_cycles"`

	// ReflectionDirective, when set, overrides the text appended to the
	// prompt the cycle after a tool call fails.
	ReflectionDirective string `yaml:"reflection_directive"`
}

// ContextPruningConfig configures in-memory tool-result pruning for stale
// conversation history. See internal/agent/context.ContextPruningSettings
// for the runtime shape this converts into.
type ContextPruningConfig struct {
	// Mode enables pruning when set to "cache-ttl"; any other value (including
	// empty) disables it.
	Mode                 string                     `yaml:"mode"`
	TTL                  *time.Duration             `yaml:"ttl"`
	KeepLastAssistants   *int                       `yaml:"keep_last_assistants"`
	SoftTrimRatio        *float64                   `yaml:"soft_trim_ratio"`
	HardClearRatio       *float64                   `yaml:"hard_clear_ratio"`
	MinPrunableToolChars *int                       `yaml:"min_prunable_tool_chars"`
	Tools                ContextPruningToolsConfig  `yaml:"tools"`
	SoftTrim             ContextPruningSoftTrimConfig `yaml:"soft_trim"`
	HardClear            ContextPruningHardClearConfig `yaml:"hard_clear"`
}

// ContextPruningToolsConfig allow/deny-lists which tool names are prunable.
type ContextPruningToolsConfig struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// ContextPruningSoftTrimConfig configures head/tail soft trimming.
type ContextPruningSoftTrimConfig struct {
	MaxChars  *int `yaml:"max_chars"`
	HeadChars *int `yaml:"head_chars"`
	TailChars *int `yaml:"tail_chars"`
}

// ContextPruningHardClearConfig configures replacing stale tool results
// entirely with a placeholder.
type ContextPruningHardClearConfig struct {
	Enabled     *bool  `yaml:"enabled"`
	Placeholder string `yaml:"placeholder"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, expands, parses, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBytes is like Load but parses an in-memory YAML document, skipping
// $include resolution. Useful for tests.
func LoadBytes(data []byte) (*Config, error) {
	var raw map[string]any
	decoder := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	defaultLLM := DefaultLLMConfig()
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = defaultLLM.BaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultLLM.Model
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = defaultLLM.Timeout
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = defaultLLM.MaxTokens
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = defaultLLM.Temperature
	}
	if cfg.LLM.ContextWindow <= 0 {
		cfg.LLM.ContextWindow = defaultLLM.ContextWindow
	}

	defaultEmbeddings := DefaultEmbeddingsConfig()
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = defaultEmbeddings.BaseURL
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = defaultEmbeddings.Model
	}
	if cfg.Embeddings.Dimension <= 0 {
		cfg.Embeddings.Dimension = defaultEmbeddings.Dimension
	}

	if strings.TrimSpace(cfg.ChatStore.DataDir) == "" {
		cfg.ChatStore.DataDir = "./data"
	}

	if cfg.Loop.MaxCycles <= 0 {
		cfg.Loop.MaxCycles = 50
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if value := strings.TrimSpace(os.Getenv("AGENT_LLM_BASE_URL")); value != "" {
		cfg.LLM.BaseURL = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENT_LLM_API_KEY")); value != "" {
		cfg.LLM.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENT_LLM_MODEL")); value != "" {
		cfg.LLM.Model = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENT_CHAT_STORE_DIR")); value != "" {
		cfg.ChatStore.DataDir = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENT_LOG_LEVEL")); value != "" {
		cfg.Logging.Level = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENT_LOOP_MAX_CYCLES")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Loop.MaxCycles = parsed
		}
	}
}

// ValidationError collects every config problem found at once, rather than
// failing on the first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	if strings.TrimSpace(cfg.LLM.BaseURL) == "" {
		issues = append(issues, "llm.base_url is required")
	}
	if cfg.LLM.Timeout < 0 {
		issues = append(issues, "llm.timeout must be >= 0")
	}
	if cfg.Embeddings.Dimension <= 0 {
		issues = append(issues, "embeddings.dimension must be > 0")
	}
	if cfg.Loop.MaxCycles <= 0 {
		issues = append(issues, "loop.max_cycles must be > 0")
	}
	if !validLogLevel(cfg.Logging.Level) {
		issues = append(issues, "logging.level must be one of debug, info, warn, error")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
