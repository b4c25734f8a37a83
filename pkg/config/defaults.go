package config

import "time"

// DefaultConfig returns the built-in defaults. User YAML is merged on top;
// any field left zero after the merge takes the value here.
func DefaultConfig() *Config {
	return &Config{
		Mailbox: MailboxConfig{
			Timezone:      "UTC",
			Folders:       []string{"Inbox"},
			LookbackHours: 24,
			PageSize:      100,
		},
		Normalize: NormalizeConfig{
			KeepTopQuoteHead:      boolPtr(true),
			MaxQuoteRemovalLength: 64 * 1024,
			TableMaxColumnWidth:   30,
			TableMaxRows:          10,
		},
		Extract: ExtractConfig{
			ConfidenceThreshold: 0.55,
		},
		Rank: RankConfig{
			TokenBudget: 3000,
			Weights: RankWeights{
				UserInTo:         0.15,
				UserInCc:         0.05,
				HasActionMarker:  0.20,
				HasMention:       0.10,
				HasDueDate:       0.15,
				SenderImportance: 0.10,
				ThreadLength:     0.05,
				Recency:          0.10,
				HasAttachments:   0.05,
				HasProjectTag:    0.05,
			},
		},
		Summarize: SummarizeConfig{
			Enable:                      boolPtr(true),
			AutoEnable:                  boolPtr(true),
			AutoThreadsThreshold:        60,
			AutoMessagesThreshold:       300,
			PerThreadMaxChunks:          8,
			PerThreadMaxChunksException: 12,
			ParallelPool:                8,
			PerThreadTimeout:            20 * time.Second,
			FlatTimeout:                 60 * time.Second,
			FinalInputTokenCap:          4000,
			SmallThreadChunks:           3,
		},
		LLM: LLMConfig{
			Model:              "gpt-4o-mini",
			APIKeyEnv:          "LLM_API_KEY",
			Temperature:        0.1,
			MaxTokens:          2048,
			CostPer1KTokensUSD: 0.002,
		},
		Output: OutputConfig{
			Dir:           "./out",
			RebuildWindow: 48 * time.Hour,
			PromptVersion: "v3",
		},
		Server: ServerConfig{
			Enabled: false,
			Addr:    ":8080",
		},
		Retention: RetentionConfig{
			OutputDays:    30,
			WatermarkDays: 90,
			SweepInterval: 6 * time.Hour,
		},
		Storage: StorageConfig{
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
	}
}

func boolPtr(v bool) *bool { return &v }
