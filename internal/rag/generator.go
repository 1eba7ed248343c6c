package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Generator turns a prompt into an answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AnthropicGenerator answers with the Messages API.
type AnthropicGenerator struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicGenerator builds a generator from the service config.
func NewAnthropicGenerator(cfg Config, opts ...option.RequestOption) (*AnthropicGenerator, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("answer generation needs WOLFIE_RAG_ANTHROPIC_API_KEY or ANTHROPIC_API_KEY")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.AnthropicAPIKey)}, opts...)
	return &AnthropicGenerator{
		client:      anthropic.NewClient(opts...),
		model:       cfg.ChatModel,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   g.maxTokens,
		Temperature: anthropic.Float(g.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// BuildPrompt numbers the retrieved chunks and wraps them with the
// answering instructions.
func BuildPrompt(question string, hits []Hit) string {
	parts := make([]string, 0, len(hits))
	for i, h := range hits {
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, h.Content))
	}
	return `You are a helpful assistant that answers questions based on the provided context.

Context:
` + strings.Join(parts, "\n\n") + `

Question: ` + question + `

Instructions:
- Answer the question using only information from the context above
- If the context doesn't contain enough information, say so
- Be concise and accurate
- Reference specific sources using [1], [2], etc. when applicable

Answer:`
}
