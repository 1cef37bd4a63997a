package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/resilience"
	"github.com/sells-group/prospector/internal/store"
	anthropicpkg "github.com/sells-group/prospector/pkg/anthropic"
	openaipkg "github.com/sells-group/prospector/pkg/openai"
	"github.com/sells-group/prospector/pkg/tavily"
)

// pipelineEnv holds the store and the pipeline needed by the run, batch and
// serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close waits for background runs and releases the store.
func (pe *pipelineEnv) Close() {
	if pe.Pipeline != nil {
		pe.Pipeline.Wait()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens the store and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	analyzer, err := newAnalyzer()
	if err != nil {
		return nil, err
	}

	prompts := pipeline.DefaultPrompts()
	if cfg.Analysis.PromptFile != "" {
		prompts, err = pipeline.LoadPrompts(cfg.Analysis.PromptFile)
		if err != nil {
			return nil, err
		}
		zap.L().Info("analysis prompts loaded", zap.String("path", cfg.Analysis.PromptFile))
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(st, newResearcher(), analyzer,
		pipeline.WithPrompts(prompts),
		pipeline.WithOptions(pipelineOptions()),
	)

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}

// newResearcher returns nil when no Tavily key is configured; research is
// then skipped on every run.
func newResearcher() tavily.Client {
	if cfg.Tavily.Key == "" {
		zap.L().Warn("PROSPECTOR_TAVILY_KEY not set, research stage disabled")
		return nil
	}
	opts := []tavily.Option{
		tavily.WithDefaults(cfg.Tavily.SearchDepth, cfg.Tavily.MaxResults),
	}
	if cfg.Tavily.BaseURL != "" {
		opts = append(opts, tavily.WithBaseURL(cfg.Tavily.BaseURL))
	}
	if cfg.Tavily.TimeoutSecs > 0 {
		opts = append(opts, tavily.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Tavily.TimeoutSecs) * time.Second,
		}))
	}
	return tavily.NewClient(cfg.Tavily.Key, opts...)
}

func newAnalyzer() (pipeline.Analyzer, error) {
	settings := pipeline.ModelSettings{
		Model:       cfg.Analysis.Model,
		Temperature: cfg.Analysis.Temperature,
		MaxTokens:   cfg.Analysis.MaxTokens,
	}
	switch cfg.Analysis.Provider {
	case "anthropic", "":
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, anthropicpkg.WithBaseURL(cfg.Anthropic.BaseURL))
		return pipeline.NewAnthropicAnalyzer(client, settings), nil
	case "openai":
		client := openaipkg.NewClient(cfg.OpenAI.Key, openaipkg.WithBaseURL(cfg.OpenAI.BaseURL))
		return pipeline.NewOpenAIAnalyzer(client, settings), nil
	default:
		return nil, eris.Errorf("unsupported analysis provider: %s", cfg.Analysis.Provider)
	}
}

func pipelineOptions() pipeline.Options {
	retry := resilience.DefaultPolicy()
	retry.Attempts = cfg.Tavily.MaxAttempts
	if cfg.Tavily.RetryBackoffMs > 0 {
		retry.Backoff = time.Duration(cfg.Tavily.RetryBackoffMs) * time.Millisecond
	}
	return pipeline.Options{
		ResearchTimeout: time.Duration(cfg.Tavily.TimeoutSecs) * time.Second,
		ResearchRetry:   retry,
		AnalysisTimeout: time.Duration(cfg.Analysis.TimeoutSecs) * time.Second,
		SearchDepth:     cfg.Tavily.SearchDepth,
		MaxResults:      cfg.Tavily.MaxResults,
	}
}
