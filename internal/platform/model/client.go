// Package model implements the reasoning-backend contract against
// OpenAI-compatible chat-completion APIs. The oracle treats every backend as
// an opaque prompt-to-structured-verdict call; this package owns the HTTP
// plumbing and the strict parsing of model output.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

const maxReasoningLen = 1000

// Config identifies one reasoning backend.
type Config struct {
	Name    string // provider label carried on verdicts
	BaseURL string // API root, e.g. "https://api.openai.com/v1"
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is a chat-completions reasoning backend.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ domain.ModelBackend = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider label.
func (c *Client) Name() string { return c.cfg.Name }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// verdictPayload is the JSON schema the model must return. Parsing is
// strict; anything else is an error the consensus engine degrades.
type verdictPayload struct {
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Judge sends the prompt and parses the structured verdict.
func (c *Client) Judge(ctx context.Context, prompt domain.ModelPrompt) (domain.ModelVerdict, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemMessage(prompt.Task)},
			{Role: "user", Content: userMessage(prompt)},
		},
		Temperature: 0,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return domain.ModelVerdict{}, fmt.Errorf("model/%s: encode request: %w", c.cfg.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return domain.ModelVerdict{}, fmt.Errorf("model/%s: build request: %w", c.cfg.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ModelVerdict{}, fmt.Errorf("model/%s: request: %w", c.cfg.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.ModelVerdict{}, fmt.Errorf("model/%s: read response: %w", c.cfg.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.ModelVerdict{}, fmt.Errorf("model/%s: status %d: %s", c.cfg.Name, resp.StatusCode, truncate(string(body), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return domain.ModelVerdict{}, fmt.Errorf("model/%s: decode response: %w", c.cfg.Name, err)
	}
	if chat.Error != nil {
		return domain.ModelVerdict{}, fmt.Errorf("model/%s: api error: %s", c.cfg.Name, chat.Error.Message)
	}
	if len(chat.Choices) == 0 {
		return domain.ModelVerdict{}, fmt.Errorf("model/%s: empty choices", c.cfg.Name)
	}

	verdict, err := parseVerdict(prompt.Task, chat.Choices[0].Message.Content)
	if err != nil {
		return domain.ModelVerdict{}, fmt.Errorf("model/%s: %w", c.cfg.Name, err)
	}
	verdict.Provider = c.cfg.Name
	verdict.CreatedAt = time.Now().UTC()
	return verdict, nil
}

// parseVerdict strictly decodes the model's JSON verdict. Code fences are
// stripped first: models wrap JSON in ```json blocks despite instructions.
func parseVerdict(task domain.PromptTask, content string) (domain.ModelVerdict, error) {
	content = stripFences(content)

	var payload verdictPayload
	dec := json.NewDecoder(strings.NewReader(content))
	if err := dec.Decode(&payload); err != nil {
		return domain.ModelVerdict{}, fmt.Errorf("parse verdict: %w", err)
	}

	answer, err := normalizeAnswer(task, payload.Answer)
	if err != nil {
		return domain.ModelVerdict{}, err
	}
	if payload.Confidence == nil {
		return domain.ModelVerdict{}, fmt.Errorf("parse verdict: missing confidence")
	}

	return domain.ModelVerdict{
		Answer:     answer,
		Confidence: normalizeConfidence(*payload.Confidence),
		Reasoning:  truncate(strings.TrimSpace(payload.Reasoning), maxReasoningLen),
	}, nil
}

// normalizeAnswer maps the model's answer string onto the internal scale.
// Validation-task variants (valid/invalid) map to yes/no.
func normalizeAnswer(task domain.PromptTask, raw string) (domain.Answer, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "true":
		return domain.AnswerYes, nil
	case "no", "false":
		return domain.AnswerNo, nil
	case "uncertain", "unknown", "unresolvable":
		return domain.AnswerUncertain, nil
	case "valid", "valid_binary":
		if task == domain.TaskValidate || task == domain.TaskAudit {
			return domain.AnswerYes, nil
		}
	case "invalid":
		if task == domain.TaskValidate || task == domain.TaskAudit {
			return domain.AnswerNo, nil
		}
	}
	return "", fmt.Errorf("parse verdict: unrecognized answer %q", raw)
}

// normalizeConfidence accepts either a [0,1] or a [0,100] scale and returns
// 0-100 clamped.
func normalizeConfidence(c float64) float64 {
	if c <= 1.0 {
		c *= 100
	}
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
