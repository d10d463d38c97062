// Package kms fetches wallet key material from the key management service.
// Keys are returned wrapped so they cannot end up in logs by accident.
package kms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrKeyUnavailable is returned when the service does not hand out a usable key
var ErrKeyUnavailable = errors.New("private key unavailable")

const (
	userKeyPath     = "/wallets/users/%s/private-key"
	verifierKeyPath = "/wallets/platform/verifier-private-key"
	maxBodyBytes    = 64 << 10
)

// PrivateKey is hex key material. Only Reveal returns the raw value.
type PrivateKey struct {
	value string
}

// NewPrivateKey wraps raw key material
func NewPrivateKey(value string) PrivateKey {
	return PrivateKey{value: value}
}

// Reveal returns the raw hex key
func (k PrivateKey) Reveal() string {
	return k.value
}

func (k PrivateKey) String() string {
	return "[REDACTED]"
}

func (k PrivateKey) GoString() string {
	return "kms.PrivateKey{[REDACTED]}"
}

// LogValue implements slog.LogValuer
func (k PrivateKey) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// Config holds KMS client configuration
type Config struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// Client talks to the key management HTTP API
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a KMS client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:   cfg.APIToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// UserPrivateKey fetches the custodial key of a platform user
func (c *Client) UserPrivateKey(ctx context.Context, userID string) (PrivateKey, error) {
	if userID == "" {
		return PrivateKey{}, fmt.Errorf("%w: empty user id", ErrKeyUnavailable)
	}
	return c.fetch(ctx, fmt.Sprintf(userKeyPath, url.PathEscape(userID)))
}

// VerifierPrivateKey fetches the platform verifier key
func (c *Client) VerifierPrivateKey(ctx context.Context) (PrivateKey, error) {
	return c.fetch(ctx, verifierKeyPath)
}

type keyResponse struct {
	PrivateKey string `json:"privateKey"`
}

func (c *Client) fetch(ctx context.Context, path string) (PrivateKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("failed to build kms request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("kms request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return PrivateKey{}, fmt.Errorf("failed to read kms response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("KMS refused key request",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return PrivateKey{}, fmt.Errorf("%w: kms returned status %d for %s", ErrKeyUnavailable, resp.StatusCode, path)
	}

	var decoded keyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return PrivateKey{}, fmt.Errorf("%w: malformed kms response", ErrKeyUnavailable)
	}

	if strings.TrimSpace(decoded.PrivateKey) == "" {
		return PrivateKey{}, fmt.Errorf("%w: empty key for %s", ErrKeyUnavailable, path)
	}

	return NewPrivateKey(decoded.PrivateKey), nil
}
