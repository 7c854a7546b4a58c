package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ChecksumHeader carries the hex SHA-256 of an artifact when the registry knows it
const ChecksumHeader = "X-Checksum-Sha256"

// Client downloads model artifacts from an HTTP model registry into a
// local cache directory
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // bounds concurrent downloads
	logger     *slog.Logger

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	cacheHits       uint64
	totalRetries    uint64
	bytesDownloaded uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains model registry client configuration
type Config struct {
	Endpoint      string
	APIKey        string
	CacheDir      string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	BackoffBase   time.Duration // first retry delay, doubled per attempt
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	CacheHits       uint64        `json:"cache_hits"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	BytesDownloaded uint64        `json:"bytes_downloaded"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// StatusError is returned for non-2xx registry responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a new model registry client
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if _, err := url.Parse(config.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	if config.CacheDir == "" {
		return nil, fmt.Errorf("cache dir cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 2
	}

	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		logger:     logger,
	}, nil
}

// LocalPath returns where an artifact is cached
func (c *Client) LocalPath(name, version, file string) string {
	return filepath.Join(c.config.CacheDir, name, version, filepath.Base(file))
}

// Fetch returns the local path of an artifact, downloading it when it is
// not cached yet
func (c *Client) Fetch(ctx context.Context, name, version, file string) (string, error) {
	if name == "" || file == "" {
		return "", fmt.Errorf("artifact name and file are required")
	}
	if version == "" {
		version = "latest"
	}

	dest := c.LocalPath(name, version, file)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		c.mu.Lock()
		c.cacheHits++
		c.mu.Unlock()
		return dest, nil
	}

	// Acquire semaphore for bounded concurrency
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.BackoffBase
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				c.incrementFailedRequests()
				return "", ctx.Err()
			}
		}

		n, err := c.download(ctx, name, version, file, dest)
		if err == nil {
			c.recordSuccess(time.Since(startTime), n)
			c.logger.Info("Model artifact downloaded",
				slog.String("name", name),
				slog.String("version", version),
				slog.Int64("bytes", n),
				slog.Int("attempts", attempt+1))
			return dest, nil
		}

		lastErr = err
		c.logger.Warn("Model artifact download failed",
			slog.String("name", name),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))

		if !isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return "", fmt.Errorf("fetch %s@%s failed: %w", name, version, lastErr)
}

// download performs a single GET and moves the artifact into place
func (c *Client) download(ctx context.Context, name, version, file, dest string) (int64, error) {
	u, err := url.JoinPath(c.config.Endpoint, "models", name, version, filepath.Base(file))
	if err != nil {
		return 0, fmt.Errorf("failed to build artifact URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/octet-stream")
	httpReq.Header.Set("User-Agent", "voxgate/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read artifact: %w", err)
	}

	if n == 0 {
		return 0, fmt.Errorf("registry returned an empty artifact")
	}

	if want := resp.Header.Get(ChecksumHeader); want != "" {
		if got := hex.EncodeToString(hash.Sum(nil)); !strings.EqualFold(got, want) {
			return 0, fmt.Errorf("checksum mismatch: expected %s, got %s", want, got)
		}
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("failed to move artifact into cache: %w", err)
	}

	return n, nil
}

// isRetryableError reports whether a download attempt may succeed on retry.
// Server errors, throttling and transport failures are retried; client
// errors and checksum mismatches are not.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused")
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) recordSuccess(responseTime time.Duration, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.successRequests++
	c.bytesDownloaded += uint64(n)

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		CacheHits:       c.cacheHits,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		BytesDownloaded: c.bytesDownloaded,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for in-flight downloads to finish
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}

	return nil
}
