package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/studibot/internal/llm/prompts"
	"github.com/pavelanni/studibot/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// CalendarOffer is appended to every Moodle or STiNE summary.
const CalendarOffer = "Soll ich dir die Termine auch in deinen Kalender eintragen?"

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-5-mini"

// Config holds the settings shared by all clients.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client wraps an OpenAI-compatible API client for one API key.
type Client struct {
	api   *openai.Client
	model string
	now   func() time.Time
}

// New creates a new LLM client using apiKey.
func New(cfg Config, apiKey string) *Client {
	config := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	name := cfg.Model
	if name == "" {
		name = DefaultModel
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: name,
		now:   time.Now,
	}
}

func (c *Client) complete(ctx context.Context, p prompts.Prompt) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("LLM returned no choices")
	}
	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "len", len(raw))
	return raw, nil
}

// Classify asks the model for one of labels and returns its raw answer.
// Mapping the answer onto a label is left to the caller.
func (c *Client) Classify(ctx context.Context, message string, labels []model.Intent) (string, error) {
	p, err := prompts.BuildClassify(message, labels)
	if err != nil {
		return "", err
	}
	return c.complete(ctx, p)
}

// Summarize formats scraped text for the user and appends the calendar offer.
func (c *Client) Summarize(ctx context.Context, kind model.DataKind, raw, userMessage string) (string, error) {
	p, err := prompts.BuildSummary(kind, raw, userMessage, c.now())
	if err != nil {
		return "", err
	}
	text, err := c.complete(ctx, p)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text) + "\n\n" + CalendarOffer, nil
}

// Explain produces a tutor explanation for a wizard topic.
func (c *Client) Explain(ctx context.Context, req model.TopicRequest) (string, error) {
	p, err := prompts.BuildTopic(req)
	if err != nil {
		return "", err
	}
	text, err := c.complete(ctx, p)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ToICS converts raw appointment text into ICS text. The result is not
// trusted and should go through ics.Extract.
func (c *Client) ToICS(ctx context.Context, raw string) (string, error) {
	p, err := prompts.BuildICS(raw)
	if err != nil {
		return "", err
	}
	return c.complete(ctx, p)
}
