package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

type SlackNotifier struct {
	SlackWebhookURL string
	Client          *retryablehttp.Client
	// Alerts beyond this rate are dropped
	Limiter *rate.Limiter
}

var _ Notifier = (*SlackNotifier)(nil)

func NewSlackNotifier(webhookURL string, logger *slog.Logger) *SlackNotifier {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = 10 * time.Second
	// the default logger writes to stderr; only log retries when asked to
	client.Logger = nil
	if logger != nil {
		client.Logger = logger
	}
	return &SlackNotifier{
		SlackWebhookURL: webhookURL,
		Client:          client,
		Limiter:         rate.NewLimiter(rate.Every(time.Minute), 5),
	}
}

func (n *SlackNotifier) NotifyError(ctx context.Context, source string, err error) error {
	if n.Limiter != nil && !n.Limiter.Allow() {
		return nil
	}
	msg := fmt.Sprintf("⚠️ ember error in `%s` ⚠️\n```%s```\n", source, err.Error())
	return n.sendSlackMsg(ctx, msg)
}

type SlackWebhookBody struct {
	Text string `json:"text"`
}

// Sends a simple slack message to a channel via "incoming webhook".
//
// The slack incoming webhook must be already configured in the slack workplace.
func (n *SlackNotifier) sendSlackMsg(ctx context.Context, msg string) error {
	body, err := json.Marshal(SlackWebhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.SlackWebhookURL, body)
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, _ = io.Copy(buf, resp.Body)
	if resp.StatusCode != 200 || buf.String() != "ok" {
		return fmt.Errorf("failed slack webhook POST request. status=%d", resp.StatusCode)
	}
	return nil
}
