package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/loadpilot/loadpilot/pkg/types"
)

// Webhook posts scaling intents as JSON to a configured URL. Every
// delivery is bounded by the configured timeout so a hung endpoint
// cannot stall a scaling tick.
type Webhook struct {
	url     string
	timeout time.Duration
	client  *fasthttp.Client
}

// NewWebhook creates a webhook sink for the given URL
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:     url,
		timeout: timeout,
		client: &fasthttp.Client{
			MaxConnsPerHost: 16,
			ReadTimeout:     timeout,
			WriteTimeout:    timeout,
		},
	}
}

// Notify posts {action, targetInstances, timestamp} to the webhook URL.
// The effective deadline is the shorter of the configured timeout and
// the context's remaining time.
func (w *Webhook) Notify(ctx context.Context, intent types.ScalingIntent) error {
	body, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to encode scaling intent: %w", err)
	}

	timeout := w.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return ctx.Err()
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(w.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	start := time.Now()
	if err := w.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return fmt.Errorf("webhook returned status %d", status)
	}

	log.WithFields(log.Fields{
		"action":  intent.Action,
		"target":  intent.TargetInstances,
		"latency": time.Since(start),
	}).Debug("Scaling intent delivered")

	return nil
}

// Close implements Notifier
func (w *Webhook) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
