package config

import "time"

// Default returns a configuration with every tunable at its documented
// default. Callers overlay file and environment values on top.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "anthropic",
			ModelID:     "claude-sonnet-4-5",
			MaxTokens:   4096,
			Temperature: 0.2,
		},
		Embeddings: EmbeddingsConfig{
			Model: "sentence-transformers/all-MiniLM-L6-v2",
		},
		Storage: StorageConfig{
			Path: "learnloop.db",
		},
		Orchestrator: OrchestratorConfig{
			MaxToolRetries: 3,
			LoopWindow:     4,
			MaxSteps:       30,
			StepTimeout:    2 * time.Minute,
			AutoApprove:    []string{"read_file", "list_dir", "search_files"},
		},
		Learning: LearningConfig{
			QueueSize: 1024,
			Clustering: ClusteringConfig{
				Epsilon:          0.35,
				ConsolidateEvery: 50,
				StaleWindow:      200,
				MinMembers:       3,
			},
			Correlation: CorrelationConfig{
				MinConfidence: 0.5,
			},
			Strategy: StrategyConfig{
				MinSamples: 10,
				MaxHints:   3,
			},
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}
