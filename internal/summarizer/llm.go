package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
)

// llmDeadline is the wall-clock budget for the whole summarization call,
// after which the caller falls through to the deterministic template.
const llmDeadline = 15 * time.Second

const (
	workSystemPrompt = "You are summarizing a coding agent's session for a " +
		"human operator. The agent performed file edits and/or ran commands. " +
		"Report concretely what changed in one or two sentences. Do not invent " +
		"file changes beyond what is listed."
	responseSystemPrompt = "You are summarizing a coding agent's session for a " +
		"human operator. The agent only produced a conversational response; no " +
		"files were changed and no commands were run. Summarize the response in " +
		"one sentence. Do not claim any file changes occurred."
)

// llmClient is satisfied by both provider shapes so the caller can pick one
// by URL inspection without a type switch.
type llmClient interface {
	Summarize(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMConfig configures the optional LLM call. Either field may be empty; an
// empty APIKey disables the call entirely (the caller goes straight to the
// deterministic fallback).
type LLMConfig struct {
	// BaseURL, when it refers to Anthropic's API (or is empty with an
	// Anthropic key set), selects provider A. Any other non-empty value
	// selects provider B (OpenAI-compatible).
	BaseURL string
	APIKey  string
	Model   string
}

func (c LLMConfig) empty() bool { return c.APIKey == "" }

// newLLMClient picks a provider shape by inspecting cfg.BaseURL.
func newLLMClient(cfg LLMConfig) llmClient {
	if cfg.empty() {
		return nil
	}
	if cfg.BaseURL == "" || strings.Contains(strings.ToLower(cfg.BaseURL), "anthropic") {
		return &anthropicClient{cfg: cfg}
	}
	return &openAIClient{cfg: cfg}
}

// anthropicClient is provider A: message+system body, custom auth header.
type anthropicClient struct {
	cfg LLMConfig
}

func (a *anthropicClient) Summarize(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(a.cfg.APIKey)}
	if a.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := a.cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}

	msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 256,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarizer: anthropic call: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if text := block.Text; text != "" {
			if sb.Len() > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("summarizer: anthropic call: empty response")
	}
	return sb.String(), nil
}

// openAIClient is provider B: OpenAI-compatible chat completion, bearer
// token, arbitrary BaseURL (local models, proxies, etc.).
type openAIClient struct {
	cfg LLMConfig
}

func (o *openAIClient) Summarize(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	config := openai.DefaultConfig(o.cfg.APIKey)
	if o.cfg.BaseURL != "" {
		config.BaseURL = o.cfg.BaseURL
	}
	client := openai.NewClientWithConfig(config)

	model := o.cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens: 256,
	})
	if err != nil {
		return "", fmt.Errorf("summarizer: openai-compatible call: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("summarizer: openai-compatible call: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
