package httpclient

import (
	"context"
	"time"
)

// Retry calls fn up to attempts times, sleeping delay between attempts, and
// returns the first response that is neither a transport failure nor a 5xx.
// When every attempt fails the last response is returned.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() *Response) *Response {
	if attempts < 1 {
		attempts = 1
	}
	var last *Response
	for i := 0; i < attempts; i++ {
		last = fn()
		if last.Status != 0 && last.Status < 500 {
			return last
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return last
		case <-t.C:
		}
	}
	return last
}

// RetryingClient wraps a Client with Retry.
type RetryingClient struct {
	Client   Client
	Attempts int
	Delay    time.Duration
}

// Do implements Client.
func (c *RetryingClient) Do(ctx context.Context, req *Request) *Response {
	return Retry(ctx, c.Attempts, c.Delay, func() *Response {
		return c.Client.Do(ctx, req)
	})
}
