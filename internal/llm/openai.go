package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	maxCompletionTokens = 384
	temperature         = 0.3
)

// sleep is swappable in tests so retry paths run instantly.
var sleep = time.Sleep

// Answer is an upstream completion plus the usage the provider reported,
// which drives cost reconciliation.
type Answer struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Provider is the upstream language-model capability: prompt in, text out,
// with latency and failure modes owned by the caller.
type Provider interface {
	Ask(ctx context.Context, system, user string) (*Answer, error)
}

// chatCompleter is the slice of the OpenAI client we use; tests substitute a
// fake.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient asks an OpenAI chat model, retrying transient transport
// errors with backoff. Retries reuse the caller's budget reservation; the
// caller never reserves twice for one question.
type OpenAIClient struct {
	chat       chatCompleter
	model      string
	maxRetries int
	logger     *zap.Logger
}

// NewOpenAI builds the production client.
func NewOpenAI(apiKey, model string, maxRetries int, logger *zap.Logger) *OpenAIClient {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &OpenAIClient{
		chat:       openai.NewClient(apiKey),
		model:      model,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Ask sends the system and user prompts and returns the first choice.
func (c *OpenAIClient) Ask(ctx context.Context, system, user string) (*Answer, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		MaxTokens:   maxCompletionTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := c.chat.CreateChatCompletion(ctx, req)
		if err == nil {
			text := firstChoice(resp)
			if text == "" {
				return nil, errors.New("upstream returned an empty answer")
			}
			return &Answer{
				Text:             text,
				Model:            c.model,
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
			}, nil
		}

		lastErr = err
		if !isTransient(err) || ctx.Err() != nil {
			break
		}
		if attempt < c.maxRetries {
			c.logger.Warn("upstream call failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			sleep(backoff)
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("upstream chat completion: %w", lastErr)
}

func firstChoice(resp openai.ChatCompletionResponse) string {
	for _, choice := range resp.Choices {
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			return text
		}
	}
	return ""
}

// isTransient reports whether err is worth a retry: server-side errors and
// plain transport failures are; client errors (bad request, auth, quota) are
// not.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode >= 500
	}
	// Raw transport error (connection reset, timeout).
	return true
}
