package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/bizflow/internal/domain"
	"github.com/djlord-it/bizflow/internal/metrics"
)

const (
	DefaultWebhookTimeout = 10 * time.Second
	DeliveryIDHeader      = "X-Bizflow-Delivery-ID"
)

// WebhookBody is the JSON document posted to webhook endpoints.
type WebhookBody struct {
	EventType domain.EventType `json:"eventType"`
	EntityID  *int64           `json:"entityId"`
	Payload   map[string]any   `json:"payload"`
}

type WebhookResult struct {
	StatusCode int
	Status     string
	DeliveryID string
	Duration   time.Duration
	Error      error
}

func (r WebhookResult) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Breaker gates calls per URL. done must be called with the outcome when
// Allow returns no error.
type Breaker interface {
	Allow(url string) (done func(success bool), err error)
}

// WebhookMetrics records webhook delivery outcomes. Implementations must
// not block.
type WebhookMetrics interface {
	WebhookDelivered(statusClass string, duration time.Duration)
}

type WebhookHandler struct {
	client  *http.Client
	timeout time.Duration
	breaker Breaker
	metrics WebhookMetrics // optional, nil = disabled
}

func NewWebhookHandler() *WebhookHandler {
	return &WebhookHandler{
		client:  &http.Client{},
		timeout: DefaultWebhookTimeout,
	}
}

func (h *WebhookHandler) WithTimeout(d time.Duration) *WebhookHandler {
	if d > 0 {
		h.timeout = d
	}
	return h
}

func (h *WebhookHandler) WithCircuitBreaker(b Breaker) *WebhookHandler {
	h.breaker = b
	return h
}

func (h *WebhookHandler) WithMetrics(m WebhookMetrics) *WebhookHandler {
	h.metrics = m
	return h
}

func (h *WebhookHandler) WithClient(c *http.Client) *WebhookHandler {
	if c != nil {
		h.client = c
	}
	return h
}

func (h *WebhookHandler) Handle(ctx context.Context, a domain.Action, ev domain.Event) error {
	if a.Webhook == nil {
		return fmt.Errorf("webhook: missing config")
	}

	url := a.Webhook.URL
	var done func(bool)
	if h.breaker != nil {
		var err error
		done, err = h.breaker.Allow(url)
		if err != nil {
			return fmt.Errorf("webhook %s: %w", url, err)
		}
	}

	result := h.Send(ctx, *a.Webhook, ev)
	if done != nil {
		done(result.IsSuccess())
	}
	if h.metrics != nil {
		h.metrics.WebhookDelivered(metrics.ClassifyStatus(result.StatusCode, result.Error), result.Duration)
	}

	if result.Error != nil {
		return fmt.Errorf("webhook %s: %w", url, result.Error)
	}
	if !result.IsSuccess() {
		return fmt.Errorf("webhook %s: unexpected status %s", url, result.Status)
	}
	log.Printf("action: webhook delivered url=%s status=%d delivery=%s duration=%s",
		url, result.StatusCode, result.DeliveryID, result.Duration)
	return nil
}

// Send performs a single delivery of ev to the configured endpoint.
// Headers: Content-Type (overridable by cfg.Headers), X-Bizflow-Delivery-ID.
func (h *WebhookHandler) Send(ctx context.Context, cfg domain.WebhookAction, ev domain.Event) WebhookResult {
	start := time.Now()
	deliveryID := uuid.NewString()

	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(WebhookBody{EventType: ev.Type, EntityID: ev.EntityID, Payload: payload})
	if err != nil {
		return WebhookResult{DeliveryID: deliveryID, Error: fmt.Errorf("marshal: %w", err), Duration: time.Since(start)}
	}

	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodPost
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return WebhookResult{DeliveryID: deliveryID, Error: fmt.Errorf("create request: %w", err), Duration: time.Since(start)}
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(DeliveryIDHeader, deliveryID)

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(ctxTimeout.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", h.timeout, err)
		}
		return WebhookResult{DeliveryID: deliveryID, Error: fmt.Errorf("send: %w", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return WebhookResult{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		DeliveryID: deliveryID,
		Duration:   time.Since(start),
	}
}
