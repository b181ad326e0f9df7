package config

import "time"

// Config represents the complete configuration for the learnloop system.
type Config struct {
	// LLM provider configuration
	LLM LLMConfig `yaml:"llm" validate:"required"`

	// Embedding configuration
	Embeddings EmbeddingsConfig `yaml:"embeddings,omitempty" validate:"omitempty"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage,omitempty" validate:"omitempty"`

	// Orchestrator configuration
	Orchestrator OrchestratorConfig `yaml:"orchestrator,omitempty" validate:"omitempty"`

	// Learning pipeline configuration
	Learning LearningConfig `yaml:"learning,omitempty" validate:"omitempty"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty" validate:"omitempty"`
}

// LLMConfig holds configuration for the completion capability.
type LLMConfig struct {
	// Provider name (anthropic)
	Provider string `yaml:"provider" validate:"required,oneof=anthropic"`

	// Model ID (e.g. claude-sonnet-4-5)
	ModelID string `yaml:"model_id" validate:"required"`

	// API key; falls back to ANTHROPIC_API_KEY
	APIKey string `yaml:"api_key,omitempty"`

	// Maximum tokens to generate per step
	MaxTokens int `yaml:"max_tokens" validate:"min=1"`

	// Sampling temperature
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`
}

// EmbeddingsConfig holds configuration for the embedding capability.
type EmbeddingsConfig struct {
	// Model is the embedding model name (fastembed)
	Model string `yaml:"model"`

	// CacheDir is the directory for cached model files
	CacheDir string `yaml:"cache_dir"`
}

// StorageConfig holds observation-log storage settings.
type StorageConfig struct {
	// Path to the SQLite database file; ":memory:" for ephemeral runs
	Path string `yaml:"path"`
}

// OrchestratorConfig tunes the control loop.
type OrchestratorConfig struct {
	// MaxToolRetries is the bounded retry policy: consecutive failures of
	// the same tool type before the task fails
	MaxToolRetries int `yaml:"max_tool_retries" validate:"min=1"`

	// LoopWindow is the circuit breaker: identical consecutive tool-call
	// fingerprints that force a failure
	LoopWindow int `yaml:"loop_window" validate:"min=2"`

	// MaxSteps bounds a single task
	MaxSteps int `yaml:"max_steps" validate:"min=1"`

	// StepTimeout is the deadline applied to generateStep and executeTool
	StepTimeout time.Duration `yaml:"step_timeout"`

	// AutoApprove lists tool names executed without asking the human
	AutoApprove []string `yaml:"auto_approve,omitempty"`
}

// LearningConfig tunes the pattern-discovery pipeline.
type LearningConfig struct {
	Clustering  ClusteringConfig  `yaml:"clustering,omitempty" validate:"omitempty"`
	Correlation CorrelationConfig `yaml:"correlation,omitempty" validate:"omitempty"`
	Strategy    StrategyConfig    `yaml:"strategy,omitempty" validate:"omitempty"`

	// QueueSize bounds the observation queue between the control loop and
	// the learning consumer
	QueueSize int `yaml:"queue_size" validate:"min=1"`
}

// ClusteringConfig tunes both incremental clusterers. The thresholds are
// deliberately configuration, not invariants.
type ClusteringConfig struct {
	// Epsilon is the density radius for cluster assignment
	Epsilon float64 `yaml:"epsilon" validate:"gt=0"`

	// ConsolidateEvery runs the merge pass every M insertions
	ConsolidateEvery int `yaml:"consolidate_every" validate:"min=1"`

	// StaleWindow marks clusters stale after W insertions without growth
	StaleWindow int `yaml:"stale_window" validate:"min=1"`

	// MinMembers keeps clusters at or above this size from going stale
	MinMembers int `yaml:"min_members" validate:"min=1"`
}

// CorrelationConfig tunes behavior/outcome association scoring.
type CorrelationConfig struct {
	// MinConfidence filters pairs out of ranked results
	MinConfidence float64 `yaml:"min_confidence" validate:"min=0,max=1"`
}

// StrategyConfig tunes strategy effectiveness scoring.
type StrategyConfig struct {
	// MinSamples below which the scorer reports insufficient data
	MinSamples int `yaml:"min_samples" validate:"min=1"`

	// MaxHints truncates the adaptation hint list
	MaxHints int `yaml:"max_hints" validate:"min=1"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR, FATAL
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`

	// File, when set, mirrors entries to a log file
	File string `yaml:"file,omitempty"`
}
