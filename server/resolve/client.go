// Package resolve calls the external authority that closes SOS alerts.
package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/coordinator"
)

// GenericFailure is reported when the service gives no usable detail.
const GenericFailure = "Backend failed"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

type resolveRequest struct {
	AlertID string `json:"alert_id"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Logger is the subset of pluginapi.LogService used by the client.
type Logger interface {
	Debug(message string, keyValuePairs ...any)
}

// Client posts resolve requests to the authority endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	logger     Logger
}

// NewClient creates a client for url. timeout bounds every request.
func NewClient(url string, timeout time.Duration, logger Logger) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Resolve asks the authority to resolve alertID. Failures are returned as
// *coordinator.MutationError.
func (c *Client) Resolve(ctx context.Context, alertID string) error {
	body, err := json.Marshal(resolveRequest{AlertID: alertID})
	if err != nil {
		return fmt.Errorf("failed to marshal resolve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return coordinator.NewMutationError(coordinator.OpResolve, alertID, coordinator.KindTransport, GenericFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := coordinator.KindTransport
		if isTimeout(ctx, err) {
			kind = coordinator.KindTimeout
		}
		return coordinator.NewMutationError(coordinator.OpResolve, alertID, kind, GenericFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("Resolve request accepted", "alertId", alertID, "status", resp.StatusCode)
		return nil
	}

	detail := GenericFailure
	var apiErr errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Detail != "" {
		detail = apiErr.Detail
	}

	kind := coordinator.KindRejected
	if resp.StatusCode == http.StatusNotFound {
		kind = coordinator.KindNotFound
	}

	mErr := coordinator.NewMutationError(coordinator.OpResolve, alertID, kind, detail,
		fmt.Errorf("unexpected HTTP status %d", resp.StatusCode))
	mErr.Status = resp.StatusCode
	return mErr
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
