// Package genai provides the LLM adapters used by campaigner: the intent
// classifier, the structured extractor, and the content generator, all backed
// by the OpenAI chat completion API.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/groundworkhq/campaigner/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// completionService is the minimal slice of the OpenAI client the adapters
// need; tests substitute a fake.
type completionService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// ClientInterface is what the flow engines and the draft generator consume.
type ClientInterface interface {
	// Classify maps raw user text to an intent. It never fails: transport
	// errors produce the error action, unusable model output the unknown pair.
	Classify(ctx context.Context, text string) models.Classification

	// ExtractJSON runs the structured extractor with a task-specific
	// instruction and returns the decoded JSON object.
	ExtractJSON(ctx context.Context, instruction, text string) (map[string]any, error)

	// Generate produces free text from a system and user prompt.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client implements ClientInterface over the OpenAI API.
type Client struct {
	chat  completionService
	model string
}

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client created", "model", cfg.Model)
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model}, nil
}

const classifierInstruction = `You are an intent classifier for a marketing assistant bot.
Map the user's message to a JSON object {"action": ..., "entity": ..., "params": {...}}.
action is one of: add, edit, delete, view, unknown.
entity is one of: campaign, template, email_table, content_plan, company, segment, unknown.
Use unknown when the message does not clearly express one of these intents.
Respond with the JSON object only.`

// Classify maps raw user text to an intent, degrading to sentinels on any
// failure so the caller can re-prompt instead of crashing.
func (c *Client) Classify(ctx context.Context, text string) models.Classification {
	raw, err := c.complete(ctx, classifierInstruction, text)
	if err != nil {
		slog.Error("GenAI Classify transport failure", "error", err)
		return models.Classification{Action: models.ActionError}
	}

	obj, err := recoverJSONObject(raw)
	if err != nil {
		slog.Error("GenAI Classify unparseable response", "error", err, "raw", raw)
		return models.Classification{Action: models.ActionUnknown, Entity: models.EntityUnknown}
	}

	cls := models.Classification{
		Action: models.ActionUnknown,
		Entity: models.EntityUnknown,
		Params: map[string]string{},
	}
	if action, ok := obj["action"].(string); ok && knownAction(action) {
		cls.Action = models.ActionType(action)
	}
	if entity, ok := obj["entity"].(string); ok && knownEntity(entity) {
		cls.Entity = models.EntityType(entity)
	}
	if params, ok := obj["params"].(map[string]any); ok {
		for k, v := range params {
			if s, ok := v.(string); ok {
				cls.Params[k] = s
			}
		}
	}
	slog.Debug("GenAI Classify", "action", cls.Action, "entity", cls.Entity)
	return cls
}

// ExtractJSON runs the structured extractor and returns the decoded object.
func (c *Client) ExtractJSON(ctx context.Context, instruction, text string) (map[string]any, error) {
	raw, err := c.complete(ctx, instruction, text)
	if err != nil {
		return nil, fmt.Errorf("extractor call failed: %w", err)
	}
	obj, err := recoverJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("extractor returned non-JSON: %w", err)
	}
	return obj, nil
}

// Generate produces free text from a system and user prompt.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt)
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// recoverJSONObject decodes a JSON object from model output, tolerating code
// fences and surrounding prose by slicing the outermost braces.
func recoverJSONObject(raw string) (map[string]any, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("decode JSON object: %w", err)
	}
	return obj, nil
}

func knownAction(s string) bool {
	switch models.ActionType(s) {
	case models.ActionAdd, models.ActionEdit, models.ActionDelete, models.ActionView:
		return true
	}
	return false
}

func knownEntity(s string) bool {
	switch models.EntityType(s) {
	case models.EntityCampaign, models.EntityTemplate, models.EntityEmailTable,
		models.EntityContentPlan, models.EntityCompany, models.EntitySegment:
		return true
	}
	return false
}
