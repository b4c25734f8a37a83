package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/inboxly/maildigest/pkg/config"
)

// transientRetries bounds retry attempts on transient transport failures.
const transientRetries = 2

// OpenAIClient talks to an OpenAI-compatible completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds the client from configuration; the API key is read
// from the environment variable named by api_key_env.
func NewOpenAIClient(cfg config.LLMConfig) (*OpenAIClient, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("llm api key: environment variable %s is empty", cfg.APIKeyEnv)
	}
	c := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(c),
		model:  cfg.Model,
	}, nil
}

// Complete performs one chat completion with the per-call timeout and a
// short retry on transient transport failures.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var resp openai.ChatCompletionResponse
	op := func() error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: float32(req.Temperature),
			MaxTokens:   req.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
			},
		})
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), transientRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Response{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: empty choices", ErrTransport)
	}
	return Response{
		Text:      resp.Choices[0].Message.Content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

// retryable reports whether an API error is worth retrying: rate limits,
// bad gateways, and other 5xx responses.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout,
			http.StatusInternalServerError:
			return true
		}
		return false
	}
	// Network-level errors (connection reset, DNS) are transient.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

var _ Client = (*OpenAIClient)(nil)
