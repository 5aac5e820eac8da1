package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Harshalzarikar/Beaver-agent/internal/classify"
	"github.com/Harshalzarikar/Beaver-agent/internal/config"
	"github.com/Harshalzarikar/Beaver-agent/internal/detector"
	"github.com/Harshalzarikar/Beaver-agent/internal/leads"
	"github.com/Harshalzarikar/Beaver-agent/internal/llm"
	"github.com/Harshalzarikar/Beaver-agent/internal/pipeline"
	"github.com/Harshalzarikar/Beaver-agent/internal/policy"
	"github.com/Harshalzarikar/Beaver-agent/internal/search"
	"github.com/Harshalzarikar/Beaver-agent/internal/vault"
)

// app bundles the wired processing stack shared by serve and process.
type app struct {
	cfg          *config.Config
	vault        *vault.Vault
	orchestrator *pipeline.Orchestrator
	store        *leads.Store
}

// buildApp assembles detector, vault, classifiers, provider, policy engine,
// search client, and leads store from configuration.
func buildApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultKeys()

	det, err := detector.New()
	if err != nil {
		return nil, fmt.Errorf("building detector: %w", err)
	}

	v, err := vault.New(det, cfg.VaultKey,
		vault.WithConfidenceThreshold(cfg.PIIThreshold),
		vault.WithTTL(time.Duration(cfg.VaultTTLSeconds)*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("building vault: %w", err)
	}

	provider, err := llm.NewFromName(cfg.LLMProvider, cfg.OpenAIAPIKey, cfg.OllamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("building llm provider: %w", err)
	}

	cheap, err := classify.NewCheapClassifier(0)
	if err != nil {
		return nil, fmt.Errorf("building classifier: %w", err)
	}
	expensive := classify.NewExpensiveClassifier(provider, cfg.LLMModel)

	engine, err := policy.NewEngine(ctx)
	if err != nil {
		return nil, fmt.Errorf("building policy engine: %w", err)
	}

	var searchClient search.Client
	if cfg.TavilyAPIKey != "" {
		searchClient = search.NewTavilyClient(cfg.TavilyAPIKey)
	}

	store, err := leads.NewStore(cfg.LeadsDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening leads database: %w", err)
	}

	orchestrator := pipeline.New(pipeline.Config{
		Model:                   cfg.LLMModel,
		RoutingThreshold:        cfg.RoutingThreshold,
		SummarizeThresholdChars: cfg.SummarizeThreshold,
		MaxEmailChars:           cfg.MaxEmailChars,
		MaxRetries:              cfg.MaxRetries,
		ProcessTimeout:          time.Duration(cfg.ProcessTimeoutSecs) * time.Second,
	}, v, cheap, expensive, provider, searchClient, engine, store)

	return &app{cfg: cfg, vault: v, orchestrator: orchestrator, store: store}, nil
}

func (a *app) close() {
	a.vault.StopSweeper()
	_ = a.store.Close()
}
