package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the Drive v2 metadata API endpoint.
const DefaultBaseURL = "https://www.googleapis.com/drive/v2"

const userAgent = "driveup/0.1"

// Retry tuning for the underlying retryablehttp transport. Metadata
// operations are cheap and idempotent, so transient 429/5xx responses and
// network errors are retried transparently.
const (
	retryMax     = 5
	retryWaitMin = 1 * time.Second
	retryWaitMax = 60 * time.Second
)

// TokenSource provides bearer tokens. Defined at the consumer per Go
// convention "accept interfaces, return structs"; token acquisition is the
// caller's problem.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource backed by a fixed bearer credential.
type StaticToken string

// Token returns the credential, or ErrNoToken when empty.
func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", ErrNoToken
	}

	return string(t), nil
}

// Client is an HTTP client for the Drive v2 metadata API. Transient
// failures are retried by the transport; terminal failures surface as
// typed APIError values.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	token   TokenSource
	logger  *slog.Logger
}

// NewClient creates a Drive API client. baseURL is typically
// DefaultBaseURL; httpClient may be nil for http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = retryWaitMin
	rc.RetryWaitMax = retryWaitMax
	rc.Logger = leveledLogger{logger}

	if httpClient != nil {
		rc.HTTPClient = httpClient
	}

	return &Client{
		baseURL: baseURL,
		http:    rc,
		token:   token,
		logger:  logger,
	}
}

// do executes an authenticated request against the API. The path is
// appended to the base URL with the given query parameters. For non-nil
// bodies, Content-Type is set to application/json. The caller closes the
// response body on success.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("drive: creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("drive: obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive: %s %s failed: %w", method, path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		c.logger.Error("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(errBody),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	c.logger.Debug("request succeeded",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return resp, nil
}

// leveledLogger adapts slog to retryablehttp's LeveledLogger interface.
type leveledLogger struct {
	l *slog.Logger
}

func (w leveledLogger) Error(msg string, keysAndValues ...any) { w.l.Error(msg, keysAndValues...) }
func (w leveledLogger) Warn(msg string, keysAndValues ...any)  { w.l.Warn(msg, keysAndValues...) }
func (w leveledLogger) Info(msg string, keysAndValues ...any)  { w.l.Debug(msg, keysAndValues...) }
func (w leveledLogger) Debug(msg string, keysAndValues ...any) { w.l.Debug(msg, keysAndValues...) }
