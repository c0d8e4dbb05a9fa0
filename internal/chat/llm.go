package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"
)

// Provider selects the fallback LLM backend used when no chat service URL is
// configured.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

const llmMaxTokens = 4096

// NewLLMResponder creates a fallback responder for the given provider.
func NewLLMResponder(provider Provider, apiKey string) (Responder, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIResponder(apiKey)
	case ProviderAnthropic:
		return NewAnthropicResponder(apiKey)
	default:
		return NewAnthropicResponder(apiKey)
	}
}

func systemPrompt(persona string) string {
	return fmt.Sprintf("You are %s, an assistant helping configure a Zuora product catalog. "+
		"Answer concisely and stay on the topic of products, rate plans, and charges.", persona)
}

// OpenAIResponder answers turns with the OpenAI chat completion API.
type OpenAIResponder struct {
	client *openai.Client
	model  string
}

// NewOpenAIResponder creates an OpenAI-backed responder.
func NewOpenAIResponder(apiKey string) (*OpenAIResponder, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return &OpenAIResponder{
		client: openai.NewClient(apiKey),
		model:  "gpt-4o",
	}, nil
}

// Name returns the backend name.
func (r *OpenAIResponder) Name() string {
	return "openai"
}

// Respond sends the turn as a single-shot completion.
func (r *OpenAIResponder) Respond(ctx context.Context, turn Turn) (*Reply, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(turn.Persona)},
			{Role: openai.ChatMessageRoleUser, Content: turn.Message},
		},
		MaxTokens: llmMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	if content == "" {
		content = "(No reply content)"
	}

	return &Reply{Text: content, ConversationID: turn.ConversationID}, nil
}

// AnthropicResponder answers turns with the Anthropic Messages API.
type AnthropicResponder struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicResponder creates an Anthropic-backed responder.
func NewAnthropicResponder(apiKey string) (*AnthropicResponder, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	return &AnthropicResponder{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  "claude-3-5-sonnet-20241022",
	}, nil
}

// Name returns the backend name.
func (r *AnthropicResponder) Name() string {
	return "anthropic"
}

// Respond sends the turn as a single-shot message.
func (r *AnthropicResponder) Respond(ctx context.Context, turn Turn) (*Reply, error) {
	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(r.model),
		MaxTokens: anthropic.F(int64(llmMaxTokens)),
		System: anthropic.F([]anthropic.TextBlockParam{
			{
				Type: anthropic.F(anthropic.TextBlockParamTypeText),
				Text: anthropic.F(systemPrompt(turn.Persona)),
			},
		}),
		Messages: anthropic.F([]anthropic.MessageParam{
			{
				Role: anthropic.F(anthropic.MessageParamRoleUser),
				Content: anthropic.F([]anthropic.ContentBlockParamUnion{
					anthropic.TextBlockParam{
						Type: anthropic.F(anthropic.TextBlockParamTypeText),
						Text: anthropic.F(turn.Message),
					},
				}),
			},
		}),
	})
	if err != nil {
		return nil, err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}
	if content == "" {
		content = "(No reply content)"
	}

	return &Reply{Text: content, ConversationID: turn.ConversationID}, nil
}
