package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pinto-org/beanstalk-snapshot/internal/metrics"
	"golang.org/x/time/rate"
)

// Limiter paces calls to one endpoint. Scan windows, balance reads and code
// lookups all draw from the same bucket.
type Limiter struct {
	limiter  *rate.Limiter
	provider string
}

// NewLimiter admits rps calls per second after an initial burst. A zero or
// negative rps means no pacing.
func NewLimiter(rps float64, burst int, provider string) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiter:  rate.NewLimiter(limit, burst),
		provider: provider,
	}
}

// Wait takes one token, sleeping until it is due. A nil Limiter never waits.
// If ctx ends first the reservation is returned to the bucket.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay > 0 {
		metrics.RPCRateLimitWaits.WithLabelValues(l.provider).Inc()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return nil
}

// RecordRPCCall counts one finished call under its status label.
func RecordRPCCall(provider, method string, err error) {
	status := ClassifyRPCError(err)
	metrics.RPCCallsTotal.WithLabelValues(provider, method, status).Inc()
}

// coder is satisfied by JSON-RPC error responses.
type coder interface {
	RPCCode() int
}

// ClassifyRPCError maps a call result to a status label. JSON-RPC error
// codes are used when present; otherwise the message decides.
func ClassifyRPCError(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var rpcErr coder
	if errors.As(err, &rpcErr) {
		switch code := rpcErr.RPCCode(); {
		case code == 3:
			return "reverted"
		case code == 429 || code == -32005:
			return "rate_limited"
		case code == -32603 || (code <= -32000 && code >= -32099):
			return "server_error"
		}
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return "timeout"
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests"):
		return "rate_limited"
	case strings.Contains(lower, "execution reverted"):
		return "reverted"
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "internal server error"):
		return "server_error"
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "network is unreachable") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "broken pipe") || strings.Contains(lower, "eof"):
		return "network_error"
	default:
		return "client_error"
	}
}
