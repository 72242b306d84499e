package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ethpandaops/election-coordinator/pkg/election"
	"github.com/sirupsen/logrus"
)

// WebhookHook POSTs a JSON transition document to a configured URL.
type WebhookHook struct {
	log    logrus.FieldLogger
	config *WebhookConfig
	client *http.Client
}

func NewWebhookHook(log logrus.FieldLogger, config *WebhookConfig) *WebhookHook {
	return &WebhookHook{
		log:    log.WithField("hook", "webhook"),
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (h *WebhookHook) Name() string {
	return "webhook"
}

func (h *WebhookHook) Fire(ctx context.Context, transition election.Transition) error {
	body, err := json.Marshal(newTransitionPayload(transition))
	if err != nil {
		return fmt.Errorf("failed to encode transition: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range h.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	h.log.WithFields(logrus.Fields{
		"url": h.config.URL,
		"to":  transition.To,
	}).Debug("Webhook hook completed")

	return nil
}
