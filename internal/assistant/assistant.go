// Package assistant answers shopping questions through an OpenAI-compatible chat API.
package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"product-aggregator/internal/types"
)

// Fallback is returned whenever the upstream cannot answer
const Fallback = "Sorry, I can't help with that right now. Try searching for the product directly and comparing prices across stores."

const systemPrompt = "You are a concise shopping assistant for Indian e-commerce stores " +
	"(Amazon, Flipkart, Myntra, Ajio, Snapdeal). Recommend what to look for, typical price ranges " +
	"and which product categories fit the user's need. Keep answers under 150 words."

const requestTimeout = 30 * time.Second

// Completer is the slice of the chat completions API the assistant uses
type Completer interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Assistant proxies questions to the LLM and never fails
type Assistant struct {
	completions Completer
	model       string
	logger      types.Logger
}

// New creates an assistant from config. Without an API key every answer is the fallback.
func New(config *types.Config, logger types.Logger) *Assistant {
	a := &Assistant{model: config.OpenAIModel, logger: logger}
	if config.OpenAIKey == "" {
		return a
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.OpenAIKey),
	}
	if config.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.OpenAIBaseURL))
	}
	client := openai.NewClient(opts...)
	a.completions = &client.Chat.Completions
	return a
}

// NewWithCompleter creates an assistant over an existing completions client
func NewWithCompleter(c Completer, model string, logger types.Logger) *Assistant {
	return &Assistant{completions: c, model: model, logger: logger}
}

// Respond answers query, substituting Fallback on any failure
func (a *Assistant) Respond(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	if query == "" || a.completions == nil {
		return Fallback
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := a.completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(query),
		},
	})
	if err != nil {
		a.logger.Warnf("Assistant upstream failed: %v", err)
		return Fallback
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		a.logger.Warnf("Assistant upstream returned no content")
		return Fallback
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}
