package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jbalwikobra/storefront/internal"
)

// TransientError marks provider failures worth retrying: network errors,
// timeouts and 5xx responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient send failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks provider rejections that no retry can fix (4xx).
type PermanentError struct {
	StatusCode int
	Body       string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("provider rejected message: status %d: %s", e.StatusCode, e.Body)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Sender is the outbound side of the group-messaging provider.
type Sender interface {
	Send(ctx context.Context, destinationID, text string) (messageID string, err error)
}

type sendRequest struct {
	DestinationID string `json:"destination_id"`
	Text          string `json:"text"`
}

type sendResponse struct {
	Data struct {
		MessageID string `json:"message_id"`
	} `json:"data"`
}

// Client talks to the group-messaging provider over HTTP with a bounded
// timeout per send.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		client:  &http.Client{},
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
		logger:  logger,
	}
}

func (c *Client) Send(ctx context.Context, destinationID, text string) (string, error) {
	ctx, cancel := internal.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody, err := json.Marshal(sendRequest{
		DestinationID: destinationID,
		Text:          text,
	})
	if err != nil {
		return "", fmt.Errorf("marshal error: %w", err)
	}

	url := fmt.Sprintf("%s/v1/messages", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("request creation error: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("sending group message",
		"url", url,
		"destination_id", destinationID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Network failures and timeouts are never silent successes; the
		// retry policy owns them.
		c.logger.Error("group message request failed", "error", err, "destination_id", destinationID)
		return "", &TransientError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransientError{Err: fmt.Errorf("response read error: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var sendResp sendResponse
		if err := json.Unmarshal(respBody, &sendResp); err != nil {
			c.logger.Error("failed to unmarshal provider response", "error", err, "response", string(respBody))
			return "", fmt.Errorf("response unmarshal error: %w", err)
		}
		c.logger.Info("group message sent",
			"destination_id", destinationID,
			"message_id", sendResp.Data.MessageID)
		return sendResp.Data.MessageID, nil

	case resp.StatusCode >= 500:
		c.logger.Error("provider returned server error",
			"status", resp.StatusCode,
			"response", string(respBody),
			"destination_id", destinationID)
		return "", &TransientError{Err: fmt.Errorf("provider status %d", resp.StatusCode)}

	default:
		c.logger.Error("provider rejected message",
			"status", resp.StatusCode,
			"response", string(respBody),
			"destination_id", destinationID)
		return "", &PermanentError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
}
