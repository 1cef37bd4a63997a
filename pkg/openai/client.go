package openai

import (
	"context"

	"github.com/rotisserie/eris"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client defines the chat completion operations used by the pipeline.
type Client interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a single-turn completion request. ImageURL, when set, is
// sent as an image part alongside the user text.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	ImageURL    string
	Temperature float64
	MaxTokens   int
}

// ChatResponse carries the first choice and token counts.
type ChatResponse struct {
	ID           string
	Model        string
	Text         string
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// ClientOption configures the go-openai client config.
type ClientOption func(*goopenai.ClientConfig)

// WithBaseURL points the client at a compatible API host. The URL should
// include the version prefix, e.g. https://api.openai.com/v1.
func WithBaseURL(url string) ClientOption {
	return func(c *goopenai.ClientConfig) {
		if url != "" {
			c.BaseURL = url
		}
	}
}

type sdkClient struct {
	client *goopenai.Client
}

// NewClient creates an OpenAI chat client.
func NewClient(apiKey string, opts ...ClientOption) Client {
	cfg := goopenai.DefaultConfig(apiKey)
	for _, o := range opts {
		o(&cfg)
	}
	return &sdkClient{client: goopenai.NewClientWithConfig(cfg)}
}

func (c *sdkClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, toSDKRequest(req))
	if err != nil {
		return nil, eris.Wrap(err, "openai: create chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openai: no choices in response")
	}

	zap.L().Debug("openai: chat completion",
		zap.String("model", resp.Model),
		zap.Int("input_tokens", resp.Usage.PromptTokens),
		zap.Int("output_tokens", resp.Usage.CompletionTokens),
	)

	return &ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Text:         resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func toSDKRequest(req ChatRequest) goopenai.ChatCompletionRequest {
	var msgs []goopenai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	user := goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser}
	if req.ImageURL == "" {
		user.Content = req.User
	} else {
		// Content and MultiContent are mutually exclusive.
		user.MultiContent = []goopenai.ChatMessagePart{
			{Type: goopenai.ChatMessagePartTypeText, Text: req.User},
			{
				Type:     goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{URL: req.ImageURL, Detail: goopenai.ImageURLDetailAuto},
			},
		}
	}
	msgs = append(msgs, user)

	return goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
}
