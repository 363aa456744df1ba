package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pinto-org/beanstalk-snapshot/internal/chain/ratelimit"
	"github.com/pinto-org/beanstalk-snapshot/internal/metrics"
	"github.com/pinto-org/beanstalk-snapshot/internal/retry"
)

const defaultTimeout = 30 * time.Second

// ClientConfig configures a Client. Provider is the label used in logs and metrics.
type ClientConfig struct {
	RPCURL   string
	Provider string
	Timeout  time.Duration
	Limiter  *ratelimit.Limiter
	Retry    retry.Policy
}

type Client struct {
	httpClient *http.Client
	rpcURL     string
	provider   string
	limiter    *ratelimit.Limiter
	retry      retry.Policy
	requestID  atomic.Int64
	logger     *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		rpcURL:     cfg.RPCURL,
		provider:   cfg.Provider,
		limiter:    cfg.Limiter,
		retry:      cfg.Retry,
		logger:     logger.With("component", "rpc", "provider", cfg.Provider),
	}
}

// Provider returns the label this client reports under.
func (c *Client) Provider() string {
	return c.provider
}

// call issues one JSON-RPC request, retrying transient failures per the
// client's retry policy. Every attempt is rate limited.
func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	var result json.RawMessage
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		start := time.Now()
		raw, err := c.callOnce(ctx, method, params)
		metrics.RPCLatency.WithLabelValues(c.provider, method).Observe(time.Since(start).Seconds())
		ratelimit.RecordRPCCall(c.provider, method, err)
		if err != nil {
			return err
		}
		result = raw
		return nil
	}, func(attempt int, decision retry.Decision, err error) {
		metrics.RPCRetriesTotal.WithLabelValues(c.provider, method).Inc()
		c.logger.Warn("rpc call failed; retrying",
			"method", method,
			"attempt", attempt,
			"classification_reason", decision.Reason,
			"error", err,
		)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) callOnce(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := int(c.requestID.Add(1))
	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}
