package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// APIError is a non-2xx response from the storefront API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("storefront: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("storefront: %d: %s", e.StatusCode, e.Message)
}

// Config holds storefront API configuration for one shop account.
type Config struct {
	BaseURL     string
	AccessToken string
	RateLimit   float64 // requests per second
	Timeout     time.Duration
}

// Client is an HTTP client for the storefront catalog API. Outbound calls
// are rate limited client-side; the platform throttles at roughly
// 2 req/s per token and answers 429 beyond that.
type Client struct {
	httpClient *http.Client
	config     Config
	limiter    *rate.Limiter
	debug      bool
}

// NewClient constructs a new storefront client with sane defaults.
func NewClient(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 2
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		debug:      os.Getenv("ENV") == "development",
	}
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) (*ShopInfo, error) {
	var info ShopInfo
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/shop", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SearchByTitle returns listings whose title matches exactly. The platform
// search is server-side; the caller decides what to do with multiple hits.
func (c *Client) SearchByTitle(ctx context.Context, title string) ([]Listing, error) {
	endpoint := "/api/v1/listings?title=" + url.QueryEscape(title)
	var page ListingPage
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// GetListing fetches a single listing by id.
func (c *Client) GetListing(ctx context.Context, id string) (*Listing, error) {
	var listing Listing
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/listings/"+url.PathEscape(id), nil, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// CreateListing creates a new listing.
func (c *Client) CreateListing(ctx context.Context, req *ListingRequest) (*Listing, error) {
	var listing Listing
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/listings", req, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// UpdateListing updates an existing listing by id.
func (c *Client) UpdateListing(ctx context.Context, id string, req *ListingRequest) (*Listing, error) {
	var listing Listing
	if err := c.doRequest(ctx, http.MethodPut, "/api/v1/listings/"+url.PathEscape(id), req, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// ListListings returns one page of the listing collection.
func (c *Client) ListListings(ctx context.Context, page, limit int) (*ListingPage, error) {
	endpoint := "/api/v1/listings?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
	var out ListingPage
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doRequest performs an HTTP call with JSON payloads against the storefront
// API and decodes the response into result. Non-2xx responses become
// *APIError with whatever detail the platform returned.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	if c.debug {
		log.Debug().
			Str("method", method).
			Str("endpoint", c.config.BaseURL+endpoint).
			RawJSON("request", emptyIfNil(payload)).
			Msg("[STOREFRONT] Outgoing request")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Access-Token", c.config.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if c.debug {
		log.Debug().
			Str("endpoint", endpoint).
			Int("status_code", resp.StatusCode).
			RawJSON("response", emptyIfNil(respBody)).
			Msg("[STOREFRONT] Incoming response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var envelope errorEnvelope
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func emptyIfNil(b []byte) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}
