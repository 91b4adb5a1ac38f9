// Package delivery talks to the delivery service over HTTP and its
// websocket event feed.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"cockpit/internal/domain"
)

const (
	recordingsPath = "/recordings"
	feedPath       = "/ws/recordings"

	HeaderRecordedAt = "X-Recorded-At"
	HeaderFileName   = "X-File-Name"
)

// Config controls the delivery service client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// StatusError is a non-2xx response. It unwraps to the matching domain
// sentinel so callers can use errors.Is.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("delivery service returned %d", e.Code)
	}
	return fmt.Sprintf("delivery service returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrNotReady
	case http.StatusBadRequest:
		return domain.ErrBadRequest
	default:
		return nil
	}
}

type errorBody struct {
	Error string `json:"error"`
}

type patchBody struct {
	RecordingID string `json:"recordingId"`
	CustomerID  string `json:"customerId"`
}

type patchResult struct {
	DeliveredAt time.Time `json:"deliveredAt"`
}

// Client implements ports.DeliveryClient and ports.EventSubscriber.
type Client struct {
	http    *resty.Client
	feedURL string
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("delivery base url is required")
	}
	feedURL, err := buildFeedURL(base)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(250 * time.Millisecond).
		SetHeader("Accept", "application/json")

	return &Client{http: client, feedURL: feedURL}, nil
}

// Create uploads the artifact. The service upserts by id.
func (c *Client) Create(ctx context.Context, artifact domain.RecordingArtifact) (domain.CreateReceipt, error) {
	var receipt domain.CreateReceipt
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(artifact).
		SetResult(&receipt).
		SetError(&errorBody{}).
		Post(recordingsPath)
	if err := responseErr(resp, err); err != nil {
		return domain.CreateReceipt{}, err
	}
	if !receipt.Acknowledged {
		return domain.CreateReceipt{}, errors.New("delivery service did not acknowledge upload")
	}
	return receipt, nil
}

func (c *Client) PatchRecipient(ctx context.Context, recordingID, customerID string) (time.Time, error) {
	var result patchResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(patchBody{RecordingID: recordingID, CustomerID: customerID}).
		SetResult(&result).
		SetError(&errorBody{}).
		Patch(recordingsPath)
	if err := responseErr(resp, err); err != nil {
		return time.Time{}, err
	}
	return result.DeliveredAt, nil
}

func (c *Client) Fetch(ctx context.Context, recordingID string) (domain.AudioDownload, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "audio/*").
		SetError(&errorBody{}).
		SetPathParam("id", recordingID).
		Get(recordingsPath + "/{id}")
	if err := responseErr(resp, err); err != nil {
		return domain.AudioDownload{}, err
	}

	download := domain.AudioDownload{
		Data:        resp.Body(),
		ContentType: resp.Header().Get("Content-Type"),
		FileName:    resp.Header().Get(HeaderFileName),
	}
	if raw := resp.Header().Get(HeaderRecordedAt); raw != "" {
		if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			download.RecordedAt = at
		}
	}
	return download, nil
}

func (c *Client) List(ctx context.Context) (domain.RemoteListing, error) {
	var listing domain.RemoteListing
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&listing).
		SetError(&errorBody{}).
		Get(recordingsPath)
	if err := responseErr(resp, err); err != nil {
		return domain.RemoteListing{}, err
	}
	return listing, nil
}

// Ping checks the service readiness route.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).SetError(&errorBody{}).Get("/readiness/")
	return responseErr(resp, err)
}

func responseErr(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("delivery request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	statusErr := &StatusError{Code: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		statusErr.Message = body.Error
	}
	if statusErr.Message == "" {
		statusErr.Message = strings.TrimSpace(string(resp.Body()))
	}
	return statusErr
}

func buildFeedURL(base string) (string, error) {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	feed, err := url.Parse(base + feedPath)
	if err != nil {
		return "", fmt.Errorf("invalid delivery base url: %w", err)
	}
	return feed.String(), nil
}
