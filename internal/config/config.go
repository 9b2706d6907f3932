// Package config loads Mira's process-wide configuration: defaults, then
// an optional YAML file, then MIRA_*-prefixed environment overrides for
// secrets. Configuration is read-only after Load returns, matching the
// teacher's "no global mutable singletons other than config" discipline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in spec.md §6.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	DatabasePath  string `yaml:"database_path"`
	VectorStoreURL string `yaml:"vector_store_url"`

	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Recall    RecallConfig    `yaml:"recall"`
	Hooks     HooksConfig     `yaml:"hooks"`

	AutoMemoryEnabled bool `yaml:"auto_memory_enabled"`
}

// LLMConfig configures the abstract LlmProvider capability.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "anthropic" | "openai" | "deepseek" | "genai"
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EmbeddingConfig configures the abstract EmbeddingProvider capability.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "genai" | "openai"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	Dimensions int `yaml:"dimensions"`
}

// LoggingConfig gates categorized debug output.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
}

// TasksConfig enables/disables and paces each C10 scheduled task.
type TasksConfig struct {
	AnalysisEnabled  bool `yaml:"analysis_enabled"`
	DecayEnabled     bool `yaml:"decay_enabled"`
	CleanupEnabled   bool `yaml:"cleanup_enabled"`
	SummaryEnabled   bool `yaml:"summary_processor_enabled"`
	CodeSyncEnabled  bool `yaml:"code_sync_enabled"`
	EmbeddingCleanupEnabled bool `yaml:"embedding_cleanup_enabled"`

	AnalysisInterval       time.Duration `yaml:"analysis_interval"`
	DecayInterval          time.Duration `yaml:"decay_interval"`
	CleanupInterval        time.Duration `yaml:"cleanup_interval"`
	SummaryCheckInterval   time.Duration `yaml:"summary_check_interval"`
	CodeSyncInterval       time.Duration `yaml:"code_sync_interval"`
	EmbeddingCleanupInterval time.Duration `yaml:"embedding_cleanup_interval"`
	DocScanInterval        time.Duration `yaml:"doc_scan_interval"`
	PatternMiningEveryN    int           `yaml:"pattern_mining_every_n"`
	SuggestionEveryN       int           `yaml:"suggestion_every_n"`
	MetricsReportInterval  time.Duration `yaml:"metrics_report_interval"`

	SessionMaxAgeHours int `yaml:"session_max_age_hours"`
	RollingWindowSize  int `yaml:"rolling_window_size"`
}

// RecallConfig sets default per-channel budgets for C8.
type RecallConfig struct {
	RecentCount   int `yaml:"recall_recent_count"`
	SemanticCount int `yaml:"recall_semantic_count"`
	CodeCount     int `yaml:"recall_code_count"`
	CharBudget    int `yaml:"recall_char_budget"`
}

// HooksConfig sets the default hook execution timeout.
type HooksConfig struct {
	TimeoutMs int `yaml:"hook_timeout_ms"`
}

// Default returns sensible defaults matching spec.md §4.8/§6.
func Default() *Config {
	return &Config{
		Name:           "mira",
		Version:        "0.1.0",
		DatabasePath:   "data/mira.db",
		VectorStoreURL: "file:data/mira.db",

		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4",
			Timeout:  120 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:   "genai",
			Model:      "gemini-embedding-001",
			Dimensions: 768,
		},
		Logging: LoggingConfig{DebugMode: false},
		Tasks: TasksConfig{
			AnalysisEnabled:         true,
			DecayEnabled:            true,
			CleanupEnabled:          true,
			SummaryEnabled:          true,
			CodeSyncEnabled:         true,
			EmbeddingCleanupEnabled: true,

			AnalysisInterval:         30 * time.Second,
			DecayInterval:            1 * time.Hour,
			CleanupInterval:          6 * time.Hour,
			SummaryCheckInterval:     5 * time.Minute,
			CodeSyncInterval:         5 * time.Minute,
			EmbeddingCleanupInterval: 7 * 24 * time.Hour,
			DocScanInterval:          1 * time.Hour,
			PatternMiningEveryN:      3,
			SuggestionEveryN:         10,
			MetricsReportInterval:    5 * time.Minute,

			SessionMaxAgeHours: 24,
			RollingWindowSize:  20,
		},
		Recall: RecallConfig{
			RecentCount:   20,
			SemanticCount: 10,
			CodeCount:     10,
			CharBudget:    8000,
		},
		Hooks: HooksConfig{TimeoutMs: 60000},
		AutoMemoryEnabled: true,
	}
}

// Load reads defaults, merges an optional YAML file at path (if it
// exists), then applies MIRA_*-prefixed environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRA_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("MIRA_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("MIRA_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("MIRA_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("MIRA_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.DebugMode = b
		}
	}
}
