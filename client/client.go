package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"launchflow/auth"
	"launchflow/config"
	"launchflow/logger"
)

// Auth header names the backend verifier expects.
const (
	HeaderWallet    = "X-Wallet"
	HeaderSignature = "X-Signature"
	HeaderAction    = "X-Action"
	HeaderRequestID = "X-Request-Id"
)

// Client dispatches authenticated requests to the launchpad backend. Write
// requests carry either a cached bearer token or a freshly computed wallet
// signature; non-2xx responses come back as *APIError.
type Client struct {
	baseURL   string
	http      *http.Client
	signer    auth.Signer
	limiter   *rate.Limiter
	log       *logger.Entry
	errorHook func(error)

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option tweaks client construction.
type Option func(*Client)

// WithSigner installs the wallet signer used when no bearer token is cached.
func WithSigner(s auth.Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithErrorHook installs a hook invoked with every API error before it is
// returned to the caller.
func WithErrorHook(hook func(error)) Option {
	return func(c *Client) { c.errorHook = hook }
}

// WithHTTPClient swaps the underlying http.Client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New builds a client from configuration using its own pooled transport.
func New(cfg *config.Config, opts ...Option) *Client {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:       cfg.API.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:    cfg.API.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:    cfg.API.ConnectionPool.IdleConnTimeout.Duration(),
		DisableCompression: false,
	}

	c := &Client{
		baseURL: cfg.API.BaseURL,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.API.Timeout.Duration(),
		},
		limiter: rate.NewLimiter(
			rate.Limit(cfg.API.RateLimit.RequestsPerSecond),
			cfg.API.RateLimit.BurstSize,
		),
		log: log.WithComponent("client"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.log.WithFields(logger.Fields{
		"base_url": c.baseURL,
		"timeout":  cfg.API.Timeout.Duration(),
	}).Info("client initialized")

	return c
}

// SetToken caches a bearer token used for subsequent authenticated requests
// until expiry.
func (c *Client) SetToken(token string, expiresAt time.Time) {
	c.mu.Lock()
	c.token = token
	c.tokenExpiry = expiresAt
	c.mu.Unlock()
}

// ClearToken drops the cached bearer token, forcing signature auth on the
// next authenticated request.
func (c *Client) ClearToken() {
	c.SetToken("", time.Time{})
}

func (c *Client) bearerToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return ""
	}
	if !c.tokenExpiry.IsZero() && !time.Now().Before(c.tokenExpiry) {
		return ""
	}
	return c.token
}

// do performs one request against the backend. When authed is set, a bearer
// header is attached if a live token is cached; otherwise the request body is
// embedded into a signed message and the wallet/signature pair goes out as
// headers. The body value is marshalled exactly once so the signed bytes and
// the wire bytes cannot diverge.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, authed bool, action string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := marshalBody(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderRequestID, uuid.NewString())

	if authed {
		if err := c.attachAuth(req.Header, body, action); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.IncrementRequest(true)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.IncrementRequest(true)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	logger.LogPerformanceEntry(c.log, "client", method+" "+path, time.Since(start), nil)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.IncrementRequest(true)
		apiErr := newAPIError(resp.StatusCode, data)
		c.log.WithFields(logger.Fields{
			"status": apiErr.Status,
			"path":   path,
		}).Warn(apiErr.Message)
		if c.errorHook != nil {
			c.errorHook(apiErr)
		}
		return nil, apiErr
	}

	logger.IncrementRequest(false)
	return data, nil
}

// attachAuth adds auth headers: bearer when a live token is cached, wallet
// signature otherwise. Signing failures propagate; the write must not go out
// unauthenticated.
func (c *Client) attachAuth(h http.Header, body any, action string) error {
	if token := c.bearerToken(); token != "" {
		h.Set("Authorization", "Bearer "+token)
		return nil
	}

	if c.signer == nil {
		return fmt.Errorf("request requires authentication but no signer is configured")
	}

	message, err := auth.BuildMessage(action, body, time.Now().Unix())
	if err != nil {
		return err
	}
	sig, err := auth.Sign(message, c.signer)
	if err != nil {
		return err
	}
	cred := auth.Encode(sig, c.signer.PublicKey())

	h.Set(HeaderWallet, cred.Wallet)
	h.Set(HeaderSignature, cred.Signature)
	if action != "" {
		h.Set(HeaderAction, action)
	}
	return nil
}

func marshalBody(body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return payload, nil
}
