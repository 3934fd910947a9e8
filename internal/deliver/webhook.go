package deliver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github-summary/internal/report"
)

// Slack rejects messages much past this size, so the report is posted in
// chunks that each stay under it.
const defaultChunkLimit = 3000

// WebhookTarget posts the report to a Slack-style incoming webhook, one
// message per chunk. A failing chunk is logged and skipped; the rest are
// still attempted.
type WebhookTarget struct {
	URL   string
	Limit int
	log   *zap.Logger
	http  *retryablehttp.Client
}

func NewWebhookTarget(url string, limit int, log *zap.Logger) *WebhookTarget {
	if limit <= 0 {
		limit = defaultChunkLimit
	}
	retry := retryablehttp.NewClient()
	retry.RetryMax = 2
	retry.Logger = nil
	return &WebhookTarget{URL: url, Limit: limit, log: log, http: retry}
}

func (t *WebhookTarget) Name() string { return "webhook" }

func (t *WebhookTarget) Deliver(ctx context.Context, rep *report.Report) error {
	chunks := rep.Chunks(t.Limit)
	failed := 0
	for i, chunk := range chunks {
		if err := t.post(ctx, chunk); err != nil {
			t.log.Error("failed to post chunk",
				zap.Int("chunk", i+1), zap.Int("chunks", len(chunks)), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d chunks failed", failed, len(chunks))
	}
	return nil
}

func (t *WebhookTarget) post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]any{
		"text":   text,
		"mrkdwn": true,
	})
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, t.URL, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
