// Package httpx holds the request plumbing shared by the provider adapters.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 512

// StatusError is a non-2xx provider response
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s http %d: %s", e.Service, e.StatusCode, e.Body)
}

// HTTPStatusCode lets retry policies classify the failure
func (e *StatusError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// ParseError is a 2xx response whose body did not have the expected shape
type ParseError struct {
	Service string
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s response invalid: %s: %v", e.Service, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s response invalid: %s", e.Service, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func NewParseError(service, reason string, err error) *ParseError {
	return &ParseError{Service: service, Reason: reason, Err: err}
}

// NewJSONRequest builds a request with a JSON-encoded body
func NewJSONRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Do sends the request and returns the body of a 2xx response.
// Any other status comes back as *StatusError.
func Do(hc *http.Client, service string, req *http.Request) ([]byte, http.Header, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, fmt.Errorf("%s reading response: %w", service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := strings.TrimSpace(string(raw))
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, resp.Header, &StatusError{Service: service, StatusCode: resp.StatusCode, Body: body}
	}
	return raw, resp.Header, nil
}

// Fetch downloads a URL and returns the bytes and the media type
func Fetch(ctx context.Context, hc *http.Client, service, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	raw, header, err := Do(hc, service, req)
	if err != nil {
		return nil, "", err
	}
	ct := strings.TrimSpace(strings.Split(header.Get("Content-Type"), ";")[0])
	if ct == "" {
		ct = http.DetectContentType(raw)
	}
	return raw, ct, nil
}
