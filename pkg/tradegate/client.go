package tradegate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrReportNotAvailable is returned when a requested report has not been
// produced (yet) for an import.
var ErrReportNotAvailable = errors.New("tradegate: report not available")

// APIError is a non-2xx response from the tradegate API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tradegate: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("tradegate: %d: %s", e.StatusCode, e.Message)
}

// Config holds tradegate API configuration for one merchant account.
type Config struct {
	BaseURL   string
	APIKey    string
	RateLimit float64
	Timeout   time.Duration
}

// Client is an HTTP client for the tradegate batch-import API. Imports are
// processed asynchronously on the marketplace side: upload a CSV, poll the
// import resource, then download the error / new-items reports.
type Client struct {
	httpClient *http.Client
	config     Config
	limiter    *rate.Limiter
	debug      bool
}

// NewClient creates a new tradegate client.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		debug:      os.Getenv("ENV") == "development",
	}
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.doJSON(ctx, http.MethodGet, "/v2/account", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SubmitImport uploads a CSV file and returns the created import resource.
func (c *Client) SubmitImport(ctx context.Context, filename string, csvData []byte) (*Import, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(csvData); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v2/imports", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Api-Key", c.config.APIKey)

	if c.debug {
		log.Debug().
			Str("filename", filename).
			Int("bytes", len(csvData)).
			Msg("[TRADEGATE] Submitting import")
	}

	respBody, status, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, c.apiError(status, respBody)
	}

	var imp Import
	if err := json.Unmarshal(respBody, &imp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &imp, nil
}

// GetImport fetches the current remote state of an import.
func (c *Client) GetImport(ctx context.Context, importID string) (*Import, error) {
	var imp Import
	if err := c.doJSON(ctx, http.MethodGet, "/v2/imports/"+url.PathEscape(importID), &imp); err != nil {
		return nil, err
	}
	return &imp, nil
}

// DownloadErrorReport returns the raw error report text for an import.
// Returns ErrReportNotAvailable when the marketplace has not produced one.
func (c *Client) DownloadErrorReport(ctx context.Context, importID string) (string, error) {
	return c.downloadReport(ctx, importID, "error-report")
}

// DownloadNewItemsReport returns the raw new-items report text for an
// import. Rows only appear in the report for items the marketplace actually
// created; absence of a row means the item is unconfirmed.
func (c *Client) DownloadNewItemsReport(ctx context.Context, importID string) (string, error) {
	return c.downloadReport(ctx, importID, "new-items-report")
}

func (c *Client) downloadReport(ctx context.Context, importID, kind string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v2/imports/%s/%s", c.config.BaseURL, url.PathEscape(importID), kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.config.APIKey)
	req.Header.Set("Accept", "text/csv")

	respBody, status, err := c.send(req)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", ErrReportNotAvailable
	}
	if status < 200 || status > 299 {
		return "", c.apiError(status, respBody)
	}
	return string(respBody), nil
}

// doJSON performs a JSON GET-style request and decodes into result.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.config.APIKey)

	respBody, status, err := c.send(req)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return c.apiError(status, respBody)
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) send(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	if c.debug {
		log.Debug().
			Str("url", req.URL.String()).
			Int("status_code", resp.StatusCode).
			Int("bytes", len(respBody)).
			Msg("[TRADEGATE] Incoming response")
	}
	return respBody, resp.StatusCode, nil
}

func (c *Client) apiError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}
	var envelope errorEnvelope
	if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
		apiErr.Code = envelope.Code
		apiErr.Message = envelope.Message
	}
	return apiErr
}
