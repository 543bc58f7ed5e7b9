// Package llm backs the review engine's critic and fixer capabilities with
// the Anthropic API.
package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/reviewloop/reviewloop/internal/critique"
)

// Client wraps the Anthropic API and implements the engine's Critic and
// Fixer interfaces.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// Critique reviews the change from oldContent to newContent and returns
// markdown-shaped critique text: "## Category" sections with "- " findings
// referencing line numbers.
func (c *Client) Critique(ctx context.Context, filePath, oldContent, newContent string) (string, error) {
	text, err := c.complete(ctx,
		critique.CriticSystemPrompt(),
		critique.BuildCriticPrompt(filePath, oldContent, newContent),
		2500,
	)
	if err != nil {
		return "", fmt.Errorf("critique %s: %w", filePath, err)
	}
	return text, nil
}

// Fix applies the critique to content and returns the replacement file. When
// no code block can be extracted from the model's reply, the input content
// is returned unchanged and the loop's stall detection takes over.
func (c *Client) Fix(ctx context.Context, filePath, content, critiqueText string) (string, error) {
	text, err := c.complete(ctx,
		critique.FixerSystemPrompt(),
		critique.BuildFixerPrompt(filePath, content, critiqueText),
		8192,
	)
	if err != nil {
		return "", fmt.Errorf("fix %s: %w", filePath, err)
	}
	return critique.ExtractCode(text, content), nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return text, nil
}
