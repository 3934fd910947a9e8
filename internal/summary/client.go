package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github-summary/internal/report"
)

// Placeholder is rendered for a PR whose summary could not be generated.
const Placeholder = "Error generating summary. See PR description for details."

const apiVersion = "2023-06-01"

// Config holds the summarization service settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
}

// Client talks to an Anthropic-compatible messages API. Transient
// failures (429, 5xx, transport errors) are retried with backoff by the
// underlying client; anything still failing after that is permanent and
// the entry gets the placeholder text.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	apiKey  string
	model   string
	tokens  int
	log     *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Client {
	retry := retryablehttp.NewClient()
	retry.RetryMax = cfg.MaxRetries
	retry.Logger = nil

	tokens := cfg.MaxTokens
	if tokens <= 0 {
		tokens = 2000
	}

	return &Client{
		http:    retry,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		tokens:  tokens,
		log:     log,
	}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Summarize produces prose for one pull request.
func (c *Client) Summarize(ctx context.Context, pr *report.PullRequest) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.tokens,
		Messages:  []message{{Role: "user", Content: buildPrompt(pr)}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding summary request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building summary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling summary API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("summary API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding summary response: %w", err)
	}
	for _, block := range out.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", errors.New("summary response contained no text")
}
