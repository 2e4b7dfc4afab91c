package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nibernar/statistics-service/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Client is a pooled JSON HTTP client for delivering events to the consumer
// endpoint.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Headers    map[string]string
}

// RequestOptions provides per-request options
type RequestOptions struct {
	Headers    map[string]string
	Timeout    time.Duration
	Context    context.Context
	Retries    int
	RetryDelay time.Duration
}

// ClientConfig holds configuration for the event client
type ClientConfig struct {
	BaseURL             string
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	KeepAlive           time.Duration
	TLSHandshakeTimeout time.Duration
}

// DefaultClientConfig returns defaults tuned for small event payloads
func DefaultClientConfig(baseURL string) *ClientConfig {
	return &ClientConfig{
		BaseURL:             baseURL,
		Timeout:             10 * time.Second,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         5 * time.Second,
		KeepAlive:           30 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
}

// NewClient creates a new event client with default configuration
func NewClient(baseURL string) *Client {
	return NewClientWithConfig(DefaultClientConfig(baseURL))
}

// NewClientWithConfig creates a new event client with custom configuration
func NewClientWithConfig(config *ClientConfig) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		BaseURL: config.BaseURL,
		HTTPClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
			"User-Agent":   "statistics-service/1.0",
		},
	}
}

// Post performs a POST request with retries
func (c *Client) Post(path string, body, result any, opts *RequestOptions) error {
	return c.doRequest(http.MethodPost, path, body, result, opts)
}

// Get performs a GET request with retries
func (c *Client) Get(path string, result any, opts *RequestOptions) error {
	return c.doRequest(http.MethodGet, path, nil, result, opts)
}

func (c *Client) doRequest(method, path string, body, result any, opts *RequestOptions) error {
	url := c.BaseURL + path

	if opts == nil {
		opts = &RequestOptions{}
	}
	if opts.Retries == 0 {
		opts.Retries = 3
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = 1 * time.Second
	}

	// Encode once into a pooled buffer; each attempt gets a fresh reader
	// over the same bytes.
	var payload []byte
	if body != nil {
		buf := utils.Get()
		defer utils.Put(buf)
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("error marshaling request body: %w", err)
		}
		payload = buf.B
	}

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			// Wait before retry with exponential backoff
			delay := time.Duration(attempt) * opts.RetryDelay
			time.Sleep(delay)
		}

		err := c.executeRequest(method, url, payload, result, opts)
		if err == nil {
			return nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			break
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", opts.Retries+1, lastErr)
}

func (c *Client) executeRequest(method, url string, payload []byte, result any, opts *RequestOptions) error {
	ctx := context.Background()
	if opts.Context != nil {
		ctx = opts.Context
	} else if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if len(payload) > 0 {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if len(payload) > 0 {
		req.ContentLength = int64(len(payload))
	}

	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error executing request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fiberlog.Errorf("Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if result == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}
	if err := json.Unmarshal(bodyBytes, result); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}

	return nil
}

func (c *Client) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if netErr, ok := err.(net.Error); ok {
		return netErr.Timeout()
	}

	if err == context.DeadlineExceeded {
		return true
	}

	// 5xx status codes surface as wrapped message text
	errStr := err.Error()
	retryableStatusCodes := []string{"500", "502", "503", "504", "520", "521", "522", "523", "524"}
	for _, code := range retryableStatusCodes {
		if containsStatusCode(errStr, code) {
			return true
		}
	}

	return false
}

func containsStatusCode(errStr, statusCode string) bool {
	return strings.Contains(errStr, "status code "+statusCode) ||
		strings.Contains(errStr, "status "+statusCode)
}

// Close closes idle connections held by the underlying transport
func (c *Client) Close() {
	if transport, ok := c.HTTPClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
