// Package httpclient is the thin HTTP collaborator used by the harness. It
// never returns transport errors as Go errors: every call yields a Response
// whose Status is 0 when no HTTP response was received.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"
)

const (
	// DefaultTimeout applies when an environment does not declare one.
	DefaultTimeout = 10 * time.Second

	// SnippetLength is how much of a body is kept for diagnostics.
	SnippetLength = 200

	tcpDialTimeout      = 5 * time.Second
	tcpKeepAlive        = 30 * time.Second
	tlsHandshakeTimeout = 5 * time.Second
	idleConnTimeout     = 90 * time.Second
)

// Request describes one API call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// Name tags the request in metrics and logs (e.g. "auth_login").
	Name string
}

// Response is the outcome of a Request.
type Response struct {
	Status   int
	Body     []byte
	URL      string
	Name     string
	Duration time.Duration
	// Waiting is the time to first response byte.
	Waiting time.Duration
	Err     error
}

// Failed reports whether no HTTP response was received.
func (r *Response) Failed() bool {
	return r.Status == 0
}

// Timeout reports whether the transport failure was a timeout.
func (r *Response) Timeout() bool {
	if r.Err == nil {
		return false
	}
	if errors.Is(r.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(r.Err, &netErr) && netErr.Timeout()
}

// Snippet returns the first SnippetLength bytes of the body.
func (r *Response) Snippet() string {
	if len(r.Body) > SnippetLength {
		return string(r.Body[:SnippetLength])
	}
	return string(r.Body)
}

// Client issues requests.
type Client interface {
	Do(ctx context.Context, req *Request) *Response
}

// HTTPClient implements Client over net/http with connection pooling.
type HTTPClient struct {
	client *http.Client
}

// New creates an HTTPClient whose requests time out after timeout.
func New(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   tcpDialTimeout,
			KeepAlive: tcpKeepAlive,
		}).DialContext,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 1000,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout, Transport: transport}}
}

// Do executes req and measures its wall-clock duration.
func (c *HTTPClient) Do(ctx context.Context, req *Request) *Response {
	resp := &Response{URL: req.URL, Name: req.Name}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		resp.Err = err
		return resp
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			resp.Waiting = time.Since(start)
		},
	}
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(httpReq.Context(), trace))

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		resp.Duration = time.Since(start)
		resp.Err = err
		return resp
	}
	defer httpResp.Body.Close()

	resp.Body, err = io.ReadAll(httpResp.Body)
	resp.Duration = time.Since(start)
	if err != nil {
		resp.Err = err
		return resp
	}
	resp.Status = httpResp.StatusCode
	return resp
}
