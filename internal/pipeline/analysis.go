package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/pkg/anthropic"
	"github.com/sells-group/prospector/pkg/openai"
)

// AnalysisInput is one analysis request: the fixed instructions, the
// per-prospect context and an optional screenshot.
type AnalysisInput struct {
	System   string
	User     string
	ImageURL string
}

// AnalysisResult is the raw model text plus usage.
type AnalysisResult struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Analyzer calls a language model once per run. Any error is fatal to the run.
type Analyzer interface {
	Analyze(ctx context.Context, in AnalysisInput) (*AnalysisResult, error)
}

// ModelSettings are shared by every provider.
type ModelSettings struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-4o"
	defaultTemperature    = 0.7
	defaultMaxTokens      = 2048
)

func (s ModelSettings) withDefaults(model string) ModelSettings {
	if s.Model == "" {
		s.Model = model
	}
	if s.Temperature <= 0 {
		s.Temperature = defaultTemperature
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = defaultMaxTokens
	}
	return s
}

// AnthropicAnalyzer sends the analysis through the Messages API with the
// system instructions marked for prompt caching.
type AnthropicAnalyzer struct {
	client   anthropic.Client
	settings ModelSettings
}

// NewAnthropicAnalyzer creates an Analyzer backed by Anthropic.
func NewAnthropicAnalyzer(client anthropic.Client, settings ModelSettings) *AnthropicAnalyzer {
	return &AnthropicAnalyzer{client: client, settings: settings.withDefaults(defaultAnthropicModel)}
}

// Analyze implements Analyzer.
func (a *AnthropicAnalyzer) Analyze(ctx context.Context, in AnalysisInput) (*AnalysisResult, error) {
	msg := anthropic.Message{Role: "user", Content: in.User}
	if in.ImageURL != "" {
		msg.ImageURLs = []string{in.ImageURL}
	}
	temp := a.settings.Temperature

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.settings.Model,
		MaxTokens:   int64(a.settings.MaxTokens),
		System:      anthropic.BuildCachedSystemBlocks(in.System, ""),
		Messages:    []anthropic.Message{msg},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: anthropic analysis")
	}
	resp.Usage.LogCost(a.settings.Model, "analysis")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, eris.New("pipeline: anthropic analysis returned no text")
	}
	return &AnalysisResult{
		Text:         text,
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// OpenAIAnalyzer sends the analysis through chat completions.
type OpenAIAnalyzer struct {
	client   openai.Client
	settings ModelSettings
}

// NewOpenAIAnalyzer creates an Analyzer backed by OpenAI.
func NewOpenAIAnalyzer(client openai.Client, settings ModelSettings) *OpenAIAnalyzer {
	return &OpenAIAnalyzer{client: client, settings: settings.withDefaults(defaultOpenAIModel)}
}

// Analyze implements Analyzer.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, in AnalysisInput) (*AnalysisResult, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatRequest{
		Model:       a.settings.Model,
		System:      in.System,
		User:        in.User,
		ImageURL:    in.ImageURL,
		Temperature: a.settings.Temperature,
		MaxTokens:   a.settings.MaxTokens,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: openai analysis")
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, eris.New("pipeline: openai analysis returned no text")
	}
	return &AnalysisResult{
		Text:         text,
		Model:        resp.Model,
		InputTokens:  int64(resp.InputTokens),
		OutputTokens: int64(resp.OutputTokens),
	}, nil
}
