package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"github.com/rendis/pathway/internal/logging"
	"github.com/rendis/pathway/pkg/schema"
)

// DefaultSystemPrompt frames every request sent through a ChatModel.
const DefaultSystemPrompt = `You are a clinical decision-science assistant that builds and revises
evidence-based clinical decision pathways. When asked for JSON, answer with the
JSON document only.`

// ChatCompleter is the subset of an eino chat model the adapter needs.
// Every eino model.BaseChatModel satisfies it.
type ChatCompleter interface {
	Generate(ctx context.Context, input []*einoschema.Message, opts ...model.Option) (*einoschema.Message, error)
}

// ModelConfig configures an OpenAI-compatible chat model.
type ModelConfig struct {
	APIKey      string        `yaml:"api_key" json:"-"`
	BaseURL     string        `yaml:"base_url" json:"base_url,omitempty"`
	Model       string        `yaml:"model" json:"model"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens,omitempty"`
	Temperature float64       `yaml:"temperature" json:"temperature,omitempty"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout,omitempty"`
}

// NewOpenAIChatModel creates an eino OpenAI chat model from cfg.
func NewOpenAIChatModel(ctx context.Context, cfg ModelConfig) (*openai.ChatModel, error) {
	if cfg.APIKey == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "generation api key is required")
	}
	if cfg.Model == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "generation model is required")
	}

	mc := &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		mc.MaxTokens = &maxTokens
	}
	if cfg.Temperature > 0 {
		temperature := float32(cfg.Temperature)
		mc.Temperature = &temperature
	}

	m, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return m, nil
}

// ChatModel adapts an eino chat model to the Generator interface.
type ChatModel struct {
	model        ChatCompleter
	systemPrompt string
	logger       *slog.Logger
}

// ChatModelOption configures a ChatModel.
type ChatModelOption func(*ChatModel)

// WithSystemPrompt overrides DefaultSystemPrompt.
func WithSystemPrompt(p string) ChatModelOption {
	return func(c *ChatModel) { c.systemPrompt = p }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) ChatModelOption {
	return func(c *ChatModel) { c.logger = l }
}

// NewChatModel wraps m.
func NewChatModel(m ChatCompleter, opts ...ChatModelOption) *ChatModel {
	c := &ChatModel{model: m, systemPrompt: DefaultSystemPrompt}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger)
	return c
}

// Generate sends prompt as a single user turn. When expectStructured is set the
// JSON document is extracted from the reply; a reply without one is a
// GENERATION_FAILED error.
func (c *ChatModel) Generate(ctx context.Context, prompt string, expectStructured bool) (*Result, error) {
	log := logging.LogWith(ctx, c.logger)
	start := time.Now()

	msgs := []*einoschema.Message{
		einoschema.SystemMessage(c.systemPrompt),
		einoschema.UserMessage(prompt),
	}
	out, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeGenerationFailed, "chat model call failed").WithCause(err)
	}
	if out == nil {
		return nil, schema.NewError(schema.ErrCodeGenerationFailed, "chat model returned no message")
	}

	log.Debug("generation complete",
		"prompt_chars", len(prompt),
		"response_chars", len(out.Content),
		"duration", time.Since(start),
	)

	res := &Result{Text: out.Content}
	if !expectStructured {
		return res, nil
	}
	payload, err := ExtractJSON(out.Content)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeGenerationFailed, "response carries no JSON document").WithCause(err)
	}
	res.Payload = payload
	return res, nil
}
