package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/srvstatus/internal/domain"
)

// Slack posts the report to an incoming webhook. Like mail, it only fires
// when something is down.
type Slack struct {
	Webhook string
	Client  *http.Client
	Logger  *zap.Logger
}

// NewSlack returns nil when no webhook is configured.
func NewSlack(webhook string, logger *zap.Logger) *Slack {
	if webhook == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Logger:  logger,
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Deliver(ctx context.Context, r domain.Report) error {
	if !r.ShouldNotify {
		return nil
	}
	body, _ := json.Marshal(slackPayload{Text: "*" + r.Subject + "*\n" + r.Body})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack webhook returned %s", resp.Status)
	}
	s.Logger.Info("slack_sent", zap.String("priority", r.Priority.String()))
	return nil
}
