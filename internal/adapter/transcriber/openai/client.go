// Package openai talks to an OpenAI-compatible speech-to-text endpoint
// (POST {base}/audio/transcriptions).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bnema/scribe/internal/domain"
	"github.com/bnema/scribe/internal/infrastructure/logger"
	"github.com/bnema/scribe/internal/port"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "whisper-1"
	DefaultTimeout = 2 * time.Minute

	maxResponseBytes = 10 << 20
	maxErrorPreview  = 500
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds one call, including time spent waiting on the limiter.
	Timeout time.Duration
	// RequestsPerSecond paces outgoing calls across all segments. Zero disables pacing.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

type Client struct {
	endpoint   string
	apiKey     string
	model      string
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	c := &Client{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/audio/transcriptions",
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = newLimiter(cfg.RequestsPerSecond)
	}
	return c
}

func newLimiter(rps float64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
}

type transcriptionResponse struct {
	Text *string `json:"text"`
}

// Transcribe uploads audio and returns the recognized text. Every failure is a
// *domain.TranscriptionError; nothing is retried here.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		// Wait fails early when the next token lies past the deadline.
		if err := c.limiter.Wait(callCtx); err != nil {
			if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", domain.NewTranscriptionError(domain.CauseServiceError, fmt.Errorf("wait for rate limiter: %w", err))
			}
			return "", domain.NewTranscriptionError(domain.CauseTimeout, fmt.Errorf("wait for rate limiter: %w", err))
		}
	}

	body, contentType, err := c.buildForm(audio, filename)
	if err != nil {
		return "", domain.NewTranscriptionError(domain.CauseServiceError, fmt.Errorf("build request: %w", err))
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", domain.NewTranscriptionError(domain.CauseServiceError, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.contextError(ctx, callCtx, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", c.contextError(ctx, callCtx, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		te := domain.NewTranscriptionError(domain.CauseRateLimited, fmt.Errorf("http %d: %s", resp.StatusCode, preview(data)))
		te.StatusCode = resp.StatusCode
		te.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return "", te
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		te := domain.NewTranscriptionError(domain.CauseServiceError, fmt.Errorf("http %d: %s", resp.StatusCode, preview(data)))
		te.StatusCode = resp.StatusCode
		return "", te
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return "", domain.NewTranscriptionError(domain.CauseMalformedResponse, errors.New("empty response body"))
	}
	var out transcriptionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", domain.NewTranscriptionError(domain.CauseMalformedResponse, fmt.Errorf("decode response: %w", err))
	}
	if out.Text == nil {
		return "", domain.NewTranscriptionError(domain.CauseMalformedResponse, errors.New("response has no text field"))
	}

	return strings.TrimSpace(*out.Text), nil
}

func (c *Client) buildForm(audio io.Reader, filename string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", c.model); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return nil, "", err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return nil, "", fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

// contextError classifies err: the per-call deadline (or the caller's) is a
// timeout, anything else is a service error.
func (c *Client) contextError(parent, callCtx context.Context, err error) error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(parent.Err(), context.DeadlineExceeded) {
		return domain.NewTranscriptionError(domain.CauseTimeout, fmt.Errorf("no response within %s: %w", c.timeout, err))
	}
	return domain.NewTranscriptionError(domain.CauseServiceError, err)
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func preview(body []byte) string {
	return logger.SanitizeForLog(logger.Preview(string(body), maxErrorPreview))
}

var _ port.Transcriber = (*Client)(nil)
