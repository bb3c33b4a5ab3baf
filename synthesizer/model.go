package synthesizer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"hermannm.dev/devlog/log"
	"hermannm.dev/nlq/config"
	"hermannm.dev/nlq/query"
	"hermannm.dev/wrap"
)

// Model generates text from a system instruction and a user message.
type Model interface {
	Complete(ctx context.Context, system string, user string) (string, error)
	Ping(ctx context.Context) error
}

// Returned by Anthropic when the API is temporarily overloaded.
const statusOverloaded = 529

// AnthropicModel implements Model with the Anthropic Messages API.
type AnthropicModel struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature float64
	timeout     time.Duration
}

// NewModel returns nil if no API key is configured.
func NewModel(config config.LLM) Model {
	if config.APIKey == "" {
		return nil
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// Retries are bounded by the orchestrator
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicModel{
		client:      anthropic.NewClient(options...),
		model:       anthropic.Model(config.Model),
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		timeout:     config.Timeout,
	}
}

func (model *AnthropicModel) Complete(
	ctx context.Context,
	system string,
	user string,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, model.timeout)
	defer cancel()

	start := time.Now()

	message, err := model.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       model.model,
		MaxTokens:   model.maxTokens,
		Temperature: anthropic.Float(model.temperature),
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", classifyModelError(wrap.Error(err, "language model request failed"))
	}

	log.Debug(
		"language model call completed",
		slog.Duration("duration", time.Since(start)),
		slog.String("stopReason", string(message.StopReason)),
	)

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("language model response contained no text")
}

func (model *AnthropicModel) Ping(ctx context.Context) error {
	_, err := model.client.Models.Get(ctx, string(model.model), anthropic.ModelGetParams{})
	if err != nil {
		return wrap.Error(err, "failed to reach language model")
	}
	return nil
}

// classifyModelError marks rate limiting, overload, server errors and transport failures as
// transient. Other API errors (invalid key, bad request) are permanent.
func classifyModelError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == statusOverloaded,
			apiErr.StatusCode >= 500:
			return query.Transient(err)
		default:
			return err
		}
	}
	return query.Transient(err)
}
