// Package rest implements the HTTP client for the time-reporting API. It
// normalizes success and error shapes: every non-2xx reply surfaces as a
// *domain.HTTPError and every success as a content-type-tagged Payload.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vykazy/timesheet-client/internal/core/domain"
	"github.com/vykazy/timesheet-client/internal/core/ports"
	"github.com/vykazy/timesheet-client/internal/metrics"
)

// Fetcher performs the actual network exchange. The default implementation
// is the plain HTTP transport; the offline cache policy satisfies the same
// interface so it can mediate requests when the app runs installed.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

type httpFetcher struct {
	client *http.Client
}

func (f *httpFetcher) Fetch(_ context.Context, req *http.Request) (*http.Response, error) {
	return f.client.Do(req)
}

// NewHTTPFetcher wraps hc as the plain network Fetcher, for callers that
// need to place another Fetcher (the offline cache policy) in front of it.
func NewHTTPFetcher(hc *http.Client) Fetcher {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &httpFetcher{client: hc}
}

// Client talks JSON to the API. The zero value is not usable; construct with
// NewClient.
type Client struct {
	base    *url.URL
	fetcher Fetcher
	log     zerolog.Logger
}

// Option customises a Client at construction time.
type Option func(*Client, *http.Client)

// WithFetcher routes all exchanges through f instead of the plain transport.
func WithFetcher(f Fetcher) Option {
	return func(c *Client, _ *http.Client) { c.fetcher = f }
}

// WithoutCredentials disables the cookie jar, so the session cookie is never
// sent or stored.
func WithoutCredentials() Option {
	return func(_ *Client, hc *http.Client) { hc.Jar = nil }
}

// NewClient builds a Client rooted at baseURL. A cookie jar carries the
// session cookie across calls unless WithoutCredentials is given.
func NewClient(baseURL string, log zerolog.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("rest: parse base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("rest: cookie jar: %w", err)
	}
	hc := &http.Client{Jar: jar}

	c := &Client{base: base, log: log}
	for _, opt := range opts {
		opt(c, hc)
	}
	if c.fetcher == nil {
		c.fetcher = &httpFetcher{client: hc}
	}
	return c, nil
}

// errorEnvelope is the API's error payload shape. Either message or error
// carries the human-readable text; errors carries per-field messages.
type errorEnvelope struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
}

// Do issues one request and returns the parsed reply. Request bodies are
// JSON-encoded for non-read methods. On a non-2xx status Do always returns
// an error and never a partial payload.
func (c *Client) Do(ctx context.Context, method, path string, body any) (ports.Payload, error) {
	u, err := c.base.Parse(path)
	if err != nil {
		return ports.Payload{}, fmt.Errorf("rest: parse path %q: %w", path, err)
	}

	var reader io.Reader
	encode := body != nil && method != http.MethodGet && method != http.MethodHead
	if encode {
		buf, err := json.Marshal(body)
		if err != nil {
			metrics.RequestErrorsTotal.WithLabelValues("encode").Inc()
			return ports.Payload{}, fmt.Errorf("rest: encode body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return ports.Payload{}, fmt.Errorf("rest: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if encode {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		metrics.RequestErrorsTotal.WithLabelValues("network").Inc()
		c.log.Error().Err(err).Str("method", method).Str("url", u.String()).Msg("request failed")
		return ports.Payload{}, fmt.Errorf("rest: %s %s: %w", method, path, err)
	}

	metrics.RequestsTotal.WithLabelValues(method, strconv.Itoa(res.StatusCode)).Inc()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return ports.Payload{}, c.readError(res, method, u.String())
	}

	return c.readPayload(res)
}

// readError drains the body, extracts the server's explanation when the
// payload parses as the error envelope, and logs before returning.
func (c *Client) readError(res *http.Response, method, url string) error {
	defer res.Body.Close()

	httpErr := &domain.HTTPError{
		Status:  res.StatusCode,
		Message: fmt.Sprintf("HTTP Error! Status: %d", res.StatusCode),
	}

	raw, err := io.ReadAll(res.Body)
	if err == nil {
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil {
			switch {
			case env.Message != "":
				httpErr.Message = env.Message
			case env.Error != "":
				httpErr.Message = env.Error
			}
			if len(env.Errors) > 0 {
				httpErr.FieldErrors = env.Errors
			}
		}
	}

	c.log.Error().
		Int("status", httpErr.Status).
		Str("method", method).
		Str("url", url).
		Str("message", httpErr.Message).
		Msg("api error")

	return httpErr
}

// readPayload maps the reply onto the tagged union by declared content type.
// Raw payloads keep the body open; the caller owns it.
func (c *Client) readPayload(res *http.Response) (ports.Payload, error) {
	ct := res.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mediaType = ""
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		defer res.Body.Close()
		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return ports.Payload{}, fmt.Errorf("rest: read body: %w", err)
		}
		return ports.Payload{Kind: ports.PayloadJSON, JSON: raw}, nil

	case strings.HasPrefix(mediaType, "text/"):
		defer res.Body.Close()
		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return ports.Payload{}, fmt.Errorf("rest: read body: %w", err)
		}
		return ports.Payload{Kind: ports.PayloadText, Text: string(raw)}, nil

	default:
		return ports.Payload{Kind: ports.PayloadRaw, Raw: res}, nil
	}
}
