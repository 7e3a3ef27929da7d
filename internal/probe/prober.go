package probe

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the per-probe timeout
	DefaultTimeout = 2 * time.Second

	// MaxBodySize caps how much of a reply is read. /shelly replies are a few
	// hundred bytes.
	MaxBodySize = 64 * 1024
)

// Prober probes one target. Implementations must be safe for concurrent use.
type Prober interface {
	Probe(ctx context.Context, target Target) Outcome
}

// HTTPProber probes targets over HTTP with a shared, capped connection pool.
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProber creates a prober. Every target is a different host probed
// once, so connections are never reused and the transport puts no limit on
// them; the number of probes in flight is bounded by the caller.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dialer := &net.Dialer{Timeout: timeout}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     true,
		ResponseHeaderTimeout: timeout,
	}

	return &HTTPProber{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: timeout,
	}
}

// Timeout returns the per-probe timeout
func (p *HTTPProber) Timeout() time.Duration {
	return p.timeout
}

// Probe sends exactly one GET to the target and reports what happened.
func (p *HTTPProber) Probe(ctx context.Context, target Target) Outcome {
	start := time.Now()
	out := Outcome{Target: target}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL(), nil)
	if err != nil {
		out.Kind = KindTransportError
		out.Err = err
		out.Elapsed = time.Since(start)
		return out
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		out.Kind = ClassifyError(err)
		out.Err = err
		out.Elapsed = time.Since(start)
		return out
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		out.Kind = ClassifyError(err)
		out.Err = err
		out.Elapsed = time.Since(start)
		return out
	}

	out.Kind = KindReply
	out.Status = resp.StatusCode
	out.Body = body
	out.Elapsed = time.Since(start)
	return out
}

// Close releases idle connections
func (p *HTTPProber) Close() {
	p.client.CloseIdleConnections()
}
