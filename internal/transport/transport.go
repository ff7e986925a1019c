// Package transport sends requests to the game API with the headers of the mobile app.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// Headers the API expects on every request.
const (
	HeaderAppID         = "X-Titanium-Id"
	HeaderRequestedWith = "X-Requested-With"
	HeaderUserAgent     = "User-Agent"

	// This is the ID of the Android app.
	AppID         = "9bbd1ddd-f7f2-402d-9777-873f458cb50c"
	RequestedWith = "XMLHttpRequest"
)

const ContentTypeForm = "application/x-www-form-urlencoded"

var ErrNotJSON = errors.New("response is not JSON")

// HTTPError represents a HTTP response with a status code outside of 2xx.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Request is a request to the API.
type Request struct {
	Method      string // defaults to POST
	URL         string
	Body        []byte
	ContentType string // no Content-Type header is sent when empty
}

// Result is the response from the API.
//
// Endpoints are not consistent in returning JSON.
// When the body could not be decoded as JSON the result holds the raw text.
type Result struct {
	raw    []byte
	value  any
	isJSON bool
}

// NewResult returns a result for a response body.
func NewResult(body []byte) Result {
	r := Result{raw: body}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		r.value = string(body)
		return r
	}
	r.value = v
	r.isJSON = true
	return r
}

// IsJSON reports whether the response body was valid JSON.
func (r Result) IsJSON() bool {
	return r.isJSON
}

// Value returns the decoded JSON value or the raw text.
func (r Result) Value() any {
	return r.value
}

// Text returns the raw response body.
func (r Result) Text() string {
	return string(r.raw)
}

// Decode decodes the JSON body into v.
func (r Result) Decode(v any) error {
	if !r.isJSON {
		return fmt.Errorf("decode %q: %w", truncate(r.Text(), 80), ErrNotJSON)
	}
	return json.Unmarshal(r.raw, v)
}

// Transport sends requests to the API.
type Transport struct {
	httpClient *http.Client

	// Limiter enforces a minimum interval between requests when not nil.
	Limiter *rate.Limiter
}

// New returns a new Transport.
// When no httpClient (nil) is provided it will use the default client.
func New(httpClient *http.Client) *Transport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	t := &Transport{httpClient: httpClient}
	return t
}

// Send sends a request with the app headers.
// It returns an [HTTPError] when the response has a status code outside of 2xx.
func (t *Transport) Send(ctx context.Context, r Request) (Result, error) {
	method := r.Method
	if method == "" {
		method = http.MethodPost
	}
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
	}
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return Result{}, err
	}
	setAppHeaders(req.Header)
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	slog.Debug("Sending API request", "method", method, "url", redactURL(r.URL))
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	dat, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, HTTPError{StatusCode: resp.StatusCode, Body: string(dat)}
	}
	return NewResult(dat), nil
}

func setAppHeaders(h http.Header) {
	h.Set(HeaderAppID, AppID)
	h.Set(HeaderRequestedWith, RequestedWith)
	h.Set(HeaderUserAgent, "")
}

// redactURL removes the query from a URL, since it can contain the session nonce.
func redactURL(s string) string {
	before, _, _ := strings.Cut(s, "?")
	return before
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
