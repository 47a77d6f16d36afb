package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
)

const defaultMaxOutputTokens = 4096

// NewProviderGateway builds a Gateway for the given provider type.
//
// Supported types: "openai", "openai_compatible" (both via the OpenAI SDK)
// and "anthropic".
func NewProviderGateway(providerType string, baseURL string, apiKey string) (Gateway, error) {
	providerType = strings.ToLower(strings.TrimSpace(providerType))
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("missing provider api key")
	}
	switch providerType {
	case "openai", "openai_compatible":
		opts := []ooption.RequestOption{ooption.WithAPIKey(strings.TrimSpace(apiKey))}
		if strings.TrimSpace(baseURL) != "" {
			opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(baseURL)))
		}
		return &openAIGateway{client: openai.NewClient(opts...)}, nil
	case "anthropic":
		opts := []aoption.RequestOption{aoption.WithAPIKey(strings.TrimSpace(apiKey))}
		if strings.TrimSpace(baseURL) != "" {
			opts = append(opts, aoption.WithBaseURL(strings.TrimSpace(baseURL)))
		}
		return &anthropicGateway{client: anthropic.NewClient(opts...)}, nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", providerType)
	}
}

type openAIGateway struct {
	client openai.Client
}

func (g *openAIGateway) Generate(ctx context.Context, messages []ChatMessage, cfg Config) (Generation, error) {
	if g == nil {
		return Generation{}, errors.New("nil gateway")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return Generation{}, errors.New("missing model")
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(strings.TrimSpace(cfg.Model)),
		Messages:            buildOpenAIMessages(messages),
		MaxCompletionTokens: openai.Int(defaultMaxOutputTokens),
	}
	if cfg.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(cfg.MaxOutputTokens))
	}
	if cfg.Temperature != nil {
		params.Temperature = openai.Float(*cfg.Temperature)
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Generation{}, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return Generation{}, errors.New("provider returned no choices")
	}
	return Generation{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}, nil
}

func buildOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

type anthropicGateway struct {
	client anthropic.Client
}

func (g *anthropicGateway) Generate(ctx context.Context, messages []ChatMessage, cfg Config) (Generation, error) {
	if g == nil {
		return Generation{}, errors.New("nil gateway")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return Generation{}, errors.New("missing model")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(strings.TrimSpace(cfg.Model)),
		MaxTokens: defaultMaxOutputTokens,
		Messages:  buildAnthropicMessages(messages),
	}
	if cfg.MaxOutputTokens > 0 {
		params.MaxTokens = int64(cfg.MaxOutputTokens)
	}
	if cfg.Temperature != nil {
		params.Temperature = anthropic.Float(*cfg.Temperature)
	}
	if system := collectSystemPrompt(messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return Generation{}, err
	}
	if msg == nil {
		return Generation{}, errors.New("provider returned no message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	in := int(msg.Usage.InputTokens)
	out := int(msg.Usage.OutputTokens)
	return Generation{
		Text:             strings.TrimSpace(text.String()),
		PromptTokens:     in,
		CompletionTokens: out,
		TotalTokens:      in + out,
	}, nil
}

// buildAnthropicMessages maps chat history to the Messages API shape.
// System messages are collected separately (collectSystemPrompt); the API
// rejects them in the messages list.
func buildAnthropicMessages(messages []ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			continue
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func collectSystemPrompt(messages []ChatMessage) string {
	var parts []string
	for _, m := range messages {
		if m.Role != RoleSystem {
			continue
		}
		if s := strings.TrimSpace(m.Content); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
