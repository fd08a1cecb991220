package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/metakgp/iqps-backend/internal/dto"
	"github.com/metakgp/iqps-backend/pkg/config"
	"github.com/metakgp/iqps-backend/pkg/jobs"
)

const slackJobType = "slack_message"

// NotificationService posts admin notifications to a Slack incoming webhook through a
// background queue. Delivery is best effort; callers never see its failures.
type NotificationService struct {
	webhookURL   string
	dashboardURL string
	client       *http.Client
	queue        *jobs.Queue
	logger       *zap.Logger
}

// NewNotificationService builds the notifier. An empty webhook URL disables it.
func NewNotificationService(cfg config.NotifyConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dashboard := cfg.DashboardURL
	if dashboard == "" {
		dashboard = "https://qp.metakgp.org/admin"
	}

	svc := &NotificationService{
		webhookURL:   cfg.SlackWebhookURL,
		dashboardURL: dashboard,
		client:       &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:       logger,
	}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
	})
	return svc
}

// Enabled reports whether a webhook is configured.
func (s *NotificationService) Enabled() bool {
	return s.webhookURL != ""
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.Enabled() {
		s.queue.Start(ctx)
	}
}

// Flush waits for queued notifications to be delivered or given up on.
func (s *NotificationService) Flush(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.queue.Drain(ctx)
}

// Stop cancels the delivery workers. Undelivered notifications are dropped.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// PapersUploaded announces new uploads awaiting review. pending is negative when
// the queue size is unknown.
func (s *NotificationService) PapersUploaded(ctx context.Context, count, pending int) {
	subject := "A new paper was"
	if count != 1 {
		subject = fmt.Sprintf("%d new papers were", count)
	}
	text := fmt.Sprintf("🔔 %s uploaded to IQPS!\n\n<%s|Review>", subject, s.dashboardURL)
	if pending >= 0 {
		text += fmt.Sprintf(" | Total Unapproved papers: *%d*", pending)
	}
	s.send(ctx, text)
}

// LibraryImported announces the result of a library import run.
func (s *NotificationService) LibraryImported(ctx context.Context, report dto.ImportReport) {
	text := fmt.Sprintf("📚 %d library papers imported to IQPS (%d skipped, %d flagged for review).\n\n<%s|Review>",
		report.Imported, report.Skipped, report.Flagged, s.dashboardURL)
	s.send(ctx, text)
}

func (s *NotificationService) send(ctx context.Context, text string) {
	if !s.Enabled() {
		return
	}
	err := s.queue.TryEnqueue(jobs.Job{Type: slackJobType, Payload: text})
	if err != nil {
		s.logger.Warn("slack notification dropped", zap.Error(err), zap.Bool("queue_full", errors.Is(err, jobs.ErrQueueFull)))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	text, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack responded with status %d", resp.StatusCode)
	}
	s.logger.Debug("slack notification delivered", zap.String("job_id", job.ID))
	return nil
}
