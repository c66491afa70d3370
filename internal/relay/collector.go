package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/brinsoko/LoRa-CP/internal/events"
)

// CollectorClient forwards events to an external observability collector.
type CollectorClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewCollectorClient(baseURL string, timeout time.Duration, logger *zap.Logger) *CollectorClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &CollectorClient{httpClient: client, logger: logger}
}

// Forward posts one event. The collector acknowledges with any 2xx.
func (c *CollectorClient) Forward(ctx context.Context, evt *events.Event) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(evt).
		Post("/events")
	if err != nil {
		return fmt.Errorf("forward event %s: %w", evt.EventID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("forward event %s: collector returned %d", evt.EventID, resp.StatusCode())
	}
	return nil
}
