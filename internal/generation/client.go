// Package generation wraps an OpenAI-compatible text and image API. Every
// call runs under a per-attempt timeout and is retried with exponential
// backoff while the failure looks transient.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultTextModel   = openai.GPT4oMini
	DefaultImageModel  = openai.CreateImageModelDallE3
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
	DefaultTimeout     = 60 * time.Second
)

type Config struct {
	APIKey     string
	BaseURL    string
	TextModel  string
	ImageModel string

	// Timeout bounds each attempt, not the whole call.
	Timeout       time.Duration
	Retries       int
	RetryInterval time.Duration
}

type Client struct {
	cfg    Config
	key    string
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultTextModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	return &Client{cfg: cfg, key: cfg.APIKey, logger: logger}
}

// WithKey returns a client that authenticates with key instead of the
// configured one. An empty key keeps the current one.
func (c *Client) WithKey(key string) *Client {
	key = strings.TrimSpace(key)
	if key == "" {
		return c
	}
	cp := *c
	cp.key = key
	return &cp
}

// Enabled reports whether the client has a credential to call with.
func (c *Client) Enabled() bool {
	return c != nil && c.key != ""
}

func (c *Client) api() *openai.Client {
	cfg := openai.DefaultConfig(c.key)
	if c.cfg.BaseURL != "" {
		cfg.BaseURL = c.cfg.BaseURL
	}
	return openai.NewClientWithConfig(cfg)
}

type Options struct {
	System      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Complete returns the model's reply to prompt.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if opts.Model == "" {
		opts.Model = c.cfg.TextModel
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}

	var messages []openai.ChatCompletionMessage
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	var text string
	err := c.do(ctx, "complete", func(ctx context.Context) error {
		resp, err := c.api().CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       opts.Model,
			Messages:    messages,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return &Error{Reason: ReasonMalformed, Err: errors.New("response has no choices")}
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	return text, err
}

type ImageOptions struct {
	Model   string
	Size    string
	Quality string
}

type Image struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// GenerateImage renders prompt and returns where the image can be fetched.
func (c *Client) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (Image, error) {
	if opts.Model == "" {
		opts.Model = c.cfg.ImageModel
	}
	if opts.Size == "" {
		opts.Size = openai.CreateImageSize1024x1024
	}
	if opts.Quality == "" {
		opts.Quality = openai.CreateImageQualityStandard
	}

	var img Image
	err := c.do(ctx, "image", func(ctx context.Context) error {
		resp, err := c.api().CreateImage(ctx, openai.ImageRequest{
			Prompt:         prompt,
			Model:          opts.Model,
			N:              1,
			Size:           opts.Size,
			Quality:        opts.Quality,
			ResponseFormat: openai.CreateImageResponseFormatURL,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 || resp.Data[0].URL == "" {
			return &Error{Reason: ReasonMalformed, Err: errors.New("response has no image url")}
		}
		img = Image{URL: resp.Data[0].URL, RevisedPrompt: resp.Data[0].RevisedPrompt}
		return nil
	})
	return img, err
}

// do runs fn with a fresh per-attempt deadline, retrying transient failures.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.key == "" {
		return &Error{Reason: ReasonAuth, Err: errNoKey}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.Retries)), ctx)

	err := backoff.RetryNotify(func() error {
		actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		err := fn(actx)
		if err == nil {
			return nil
		}
		gerr := classify(err)
		if !gerr.retryable() {
			return backoff.Permanent(gerr)
		}
		return gerr
	}, policy, func(err error, wait time.Duration) {
		c.logger.Warn("generation attempt failed", "op", op, "error", err, "retry_in", wait)
	})
	if err != nil {
		return classify(err)
	}
	return nil
}
