// Package httpcall issues the fire-and-forget requests behind the api: verb,
// bare-path shorthand GETs and booking notifications.
package httpcall

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	appLog "bookcal/internal/log"
)

// Option customizes a Caller.
type Option func(*Caller)

// WithClient replaces the HTTP client. Any timeout belongs to the client.
func WithClient(c *http.Client) Option {
	return func(cl *Caller) {
		if c != nil {
			cl.client = c
		}
	}
}

// WithLogger injects the logger used for failed calls.
func WithLogger(l appLog.Logger) Option {
	return func(cl *Caller) {
		if l != nil {
			cl.logger = l
		}
	}
}

// Caller sends requests without waiting for or exposing their outcome.
type Caller struct {
	baseURL string
	client  *http.Client
	logger  appLog.Logger
	wg      sync.WaitGroup

	// ctx outlives every trigger and is cancelled only by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a Caller resolving relative paths against baseURL.
func New(baseURL string, opts ...Option) *Caller {
	c := &Caller{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  appLog.Named("httpcall"),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Invoke starts the request and returns immediately. A non-empty body is
// sent verbatim as JSON. Failures are logged, never returned.
func (c *Caller) Invoke(method, path, body string) {
	if c == nil {
		return
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	target := c.resolve(strings.TrimSpace(path))
	if target == "" {
		c.logger.Debugw("shorthand call skipped: empty path", "method", method)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.send(method, target, body)
	}()
}

// Wait blocks until every started call has finished.
func (c *Caller) Wait() {
	if c == nil {
		return
	}
	c.wg.Wait()
}

// Shutdown waits for started calls until ctx is done, then cancels the
// ones still in flight and returns ctx's error. Calls invoked afterwards fail
// immediately.
func (c *Caller) Shutdown(ctx context.Context) error {
	if c == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
	}
	c.cancel()
	<-done
	c.logger.Infow("abandoned in-flight calls on shutdown", "err", ctx.Err())
	return ctx.Err()
}

// The request is detached from whatever triggered it, so it outlives the
// HTTP request or key press that caused it.
func (c *Caller) send(method, target, body string) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(c.ctx, method, target, reader)
	if err != nil {
		c.logger.Errorw("shorthand call: bad request", "err", err, "method", method, "url", target)
		return
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Errorw("shorthand call failed", "err", err, "method", method, "url", target)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Errorw("shorthand call returned non-2xx", "status", resp.StatusCode, "method", method, "url", target)
		return
	}
	c.logger.Debugw("shorthand call sent", "status", resp.StatusCode, "method", method, "url", target)
}

func (c *Caller) resolve(path string) string {
	if path == "" {
		return ""
	}
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}
