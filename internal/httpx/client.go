package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TrafficClass distinguishes the three kinds of requests a download run
// makes. Hooks are registered per class, so a caller can, for example,
// rewrite segment requests without touching key fetches.
type TrafficClass int

const (
	TrafficManifest TrafficClass = iota
	TrafficKey
	TrafficSegment
)

func (c TrafficClass) String() string {
	switch c {
	case TrafficManifest:
		return "manifest"
	case TrafficKey:
		return "key"
	case TrafficSegment:
		return "segment"
	default:
		return "unknown"
	}
}

// Response is the normalized result of one request.
type Response struct {
	StatusCode int
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// RequestHook may mutate the outgoing request before it is sent.
type RequestHook func(*http.Request)

// ResponseHook may inspect or alter the response body in place.
type ResponseHook func(*Response)

// Client wraps HTTP operations for the download pipeline.
//
// It applies default headers to every request, runs the registered hooks
// for the request's traffic class in registration order, and returns the
// fully-read body. The client is safe for concurrent Get calls; hooks
// must be registered before the first request is issued.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	reqHooks   map[TrafficClass][]RequestHook
	respHooks  map[TrafficClass][]ResponseHook
}

// NewClient creates a client with the given default headers. Headers may
// be nil. Deadlines beyond the 60 second request timeout are the caller's
// responsibility, applied through the context.
func NewClient(headers map[string]string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		headers:   headers,
		reqHooks:  make(map[TrafficClass][]RequestHook),
		respHooks: make(map[TrafficClass][]ResponseHook),
	}
}

// OnRequest appends a request hook for the given traffic class.
func (c *Client) OnRequest(class TrafficClass, hook RequestHook) {
	c.reqHooks[class] = append(c.reqHooks[class], hook)
}

// OnResponse appends a response hook for the given traffic class.
func (c *Client) OnResponse(class TrafficClass, hook ResponseHook) {
	c.respHooks[class] = append(c.respHooks[class], hook)
}

// Get performs a GET request for the given traffic class and returns the
// fully-read response. Per-call headers override the client defaults.
// A non-2xx status is reported as an error.
func (c *Client) Get(ctx context.Context, class TrafficClass, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	for _, hook := range c.reqHooks[class] {
		hook(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s request to %s: HTTP %d: %s", class, url, resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	out := &Response{StatusCode: resp.StatusCode, Body: body}
	for _, hook := range c.respHooks[class] {
		hook(out)
	}

	return out, nil
}

// Close releases idle connections. Call it once the run is finished.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
