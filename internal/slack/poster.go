// Package slack posts ingestion reports to a Slack channel.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/rosa/internal/ingest"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostIngestReport posts the summary of an ingest run. Failed files are
// listed in a threaded reply under the summary.
func (p *Poster) PostIngestReport(ctx context.Context, dir string, res *ingest.Result) error {
	text := formatIngestReport(dir, res)
	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	})
	if err != nil {
		return err
	}
	p.logger.Info("posted ingest report to slack", "ts", ts, "dir", dir)

	if res.Failed == 0 {
		return nil
	}
	return p.PostThread(ctx, ts, formatFailures(res))
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

// post sends a chat.postMessage payload and returns the message timestamp.
func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatIngestReport(dir string, res *ingest.Result) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Contact import:* `%s`\n", dir)
	fmt.Fprintf(&sb, "Files: %d | Rows read: %d | Unique contacts: %d\n",
		len(res.Files), res.RowsRead, res.UniqueRecords)
	fmt.Fprintf(&sb, "Duration: %s", res.Duration.Round(time.Millisecond))

	switch {
	case len(res.Files) == 0:
		sb.WriteString("\n_No CSV files found, the contact table is now empty._")
	case res.Failed > 0:
		fmt.Fprintf(&sb, "\n:warning: %d file(s) could not be imported, see thread.", res.Failed)
	}
	return sb.String()
}

func formatFailures(res *ingest.Result) string {
	var sb strings.Builder
	for _, f := range res.Files {
		if f.Error != "" {
			fmt.Fprintf(&sb, "• `%s`: %s\n", f.Name, f.Error)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
