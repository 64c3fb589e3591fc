package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
)

// DefaultBaseURL is the session-initiation endpoint for the Drive v2
// upload API. Overridable via Config.BaseURL for tests and other hosts.
const DefaultBaseURL = "https://www.googleapis.com/upload/drive/v2/files/"

const userAgent = "driveup/0.1"

// Config describes one file transfer. It is immutable once passed to New;
// the session copies what it needs and owns all mutable state itself.
type Config struct {
	// Content is the byte-addressable payload. Required.
	Content io.ReaderAt
	// Size is the total payload size in bytes. Required, must be positive.
	Size int64
	// Name is the file title used for default metadata.
	Name string
	// MIMEType is the payload's own content type. Used when ContentType
	// is not set; falls back to application/octet-stream.
	MIMEType string

	// ContentType overrides the payload's MIME type for the transfer.
	ContentType string
	// Metadata, when non-nil, replaces the default {title, mimeType}
	// mapping sent with session initiation.
	Metadata map[string]any

	// Token is the bearer credential for session initiation. Required.
	// Transfer requests go to the pre-authenticated session URL and
	// carry no Authorization header.
	Token string
	// FileID, when set, targets an existing file: initiation uses PUT
	// (replace) instead of POST (create). Fixed at construction.
	FileID string
	// BaseURL overrides DefaultBaseURL.
	BaseURL string
	// Params are extra query parameters merged into the initiation URL.
	Params url.Values

	// URL is a pre-resolved session URL. When set, initiation is skipped
	// entirely and the transfer starts at Offset.
	URL string
	// Offset is the starting byte offset, for resuming a transfer whose
	// session URL and confirmed offset were recorded externally.
	Offset int64
	// ChunkSize bounds each transfer request. Zero sends the whole
	// remaining payload in one request.
	ChunkSize int64

	// OnComplete receives the raw response body on terminal success.
	// Required. Exactly one of OnComplete or OnError fires per session.
	OnComplete func(body string)
	// OnError receives the raw response body on fatal failure. Required.
	OnError func(body string)
	// OnProgress, when set, is invoked after every server-confirmed
	// offset advance. Useful for recording resume state externally.
	OnProgress func(offset, total int64)

	// MaxRetries caps transient-failure retries for the whole session.
	// Zero means retry indefinitely, matching the protocol's design.
	MaxRetries int

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// state is the session's position in its lifecycle.
type state int

const (
	stateInitiating state = iota
	stateTransferring
	stateRetrying
	stateCompleted
	stateFailed
)

// retryAction identifies which step a pending retry re-invokes. Transfer
// failures never blindly re-send the last chunk: they probe the server for
// its confirmed offset first, so a partially-received body is not resent.
type retryAction int

const (
	retryInitiate retryAction = iota
	retryProbe
)

// rangeDigits extracts integer tokens from a Range response header.
var rangeDigits = regexp.MustCompile(`[0-9]+`)

// Session owns one file transfer's lifecycle: initiation, content
// transfer, offset resumption, and retry scheduling. A Session and its
// backoff live for exactly one transfer (including all retries of it) and
// are discarded once a callback has fired. Not safe for concurrent use;
// Run issues requests strictly sequentially.
type Session struct {
	cfg         Config
	contentType string
	metadata    map[string]any
	method      string // initiation method, fixed at construction
	httpClient  *http.Client
	logger      *slog.Logger

	url     string
	offset  int64
	state   state
	retry   *backoff
	pending retryAction
	// lastBody is the most recent transient-failure response body,
	// surfaced via OnError if the retry budget runs out.
	lastBody    string
	retries     int
	terminalErr error
}

// New validates the configuration and constructs a Session in the
// Initiating state. The content type, metadata, and initiation method are
// resolved once here and never change.
func New(cfg Config) (*Session, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	contentType := cfg.ContentType
	if contentType == "" {
		contentType = cfg.MIMEType
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	metadata := cfg.Metadata
	if metadata == nil {
		metadata = map[string]any{
			"title":    cfg.Name,
			"mimeType": contentType,
		}
	}

	// Presence of a target file ID selects replace (PUT) over create (POST).
	method := http.MethodPost
	if cfg.FileID != "" {
		method = http.MethodPut
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		cfg:         cfg,
		contentType: contentType,
		metadata:    metadata,
		method:      method,
		httpClient:  httpClient,
		logger:      logger,
		url:         cfg.URL,
		offset:      cfg.Offset,
		state:       stateInitiating,
		retry:       newBackoff(),
	}, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.Content == nil:
		return errors.New("upload: Content is required")
	case cfg.Size <= 0:
		return errors.New("upload: Size must be positive")
	case cfg.Token == "":
		return errors.New("upload: Token is required")
	case cfg.OnComplete == nil:
		return errors.New("upload: OnComplete is required")
	case cfg.OnError == nil:
		return errors.New("upload: OnError is required")
	case cfg.Offset < 0 || cfg.Offset > cfg.Size:
		return fmt.Errorf("upload: Offset %d outside [0, %d]", cfg.Offset, cfg.Size)
	case cfg.ChunkSize < 0:
		return fmt.Errorf("upload: ChunkSize must be non-negative, got %d", cfg.ChunkSize)
	}

	if cfg.BaseURL != "" {
		if _, err := url.Parse(cfg.BaseURL); err != nil {
			return fmt.Errorf("upload: invalid BaseURL: %w", err)
		}
	}

	return nil
}

// Run drives the transfer to completion. It blocks until the session
// reaches Completed (returns nil, OnComplete has fired) or Failed (returns
// the terminal error, OnError has fired), or until ctx is canceled — in
// which case neither callback fires and the context error is returned.
// At most one request is in flight at any time.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("upload: session canceled: %w", err)
		}

		switch s.state {
		case stateInitiating:
			s.stepInitiate(ctx)
		case stateTransferring:
			s.stepTransmit(ctx)
		case stateRetrying:
			if err := s.stepRetry(ctx); err != nil {
				return err
			}
		case stateCompleted:
			return nil
		case stateFailed:
			return s.terminalErr
		}
	}
}

// Offset returns the current server-confirmed byte offset.
func (s *Session) Offset() int64 {
	return s.offset
}

// SessionURL returns the resolved upload session URL, or "" before
// initiation has completed.
func (s *Session) SessionURL() string {
	return s.url
}

// stepInitiate requests a new upload session. The server pre-validates the
// transfer from the X-Upload-Content-* headers before any payload bytes
// arrive, and returns the session URL in the Location header.
//
// Initiation failures share the transfer taxonomy: 401/404 are fatal,
// anything else (including transport errors) is transient and re-attempts
// initiation after backoff. A 2xx without a Location header is fatal
// because the session cannot proceed without a URL.
func (s *Session) stepInitiate(ctx context.Context) {
	if s.url != "" {
		s.logger.Debug("session URL supplied, skipping initiation",
			slog.Int64("offset", s.offset),
		)

		s.state = stateTransferring

		return
	}

	body, err := json.Marshal(s.metadata)
	if err != nil {
		// Metadata is caller-supplied; an unmarshalable value cannot
		// succeed on retry.
		s.fail(&StatusError{Body: err.Error(), Err: fmt.Errorf("upload: marshaling metadata: %w", err)}, err.Error())

		return
	}

	s.logger.Info("initiating upload session",
		slog.String("method", s.method),
		slog.String("name", s.cfg.Name),
		slog.Int64("size", s.cfg.Size),
	)

	req, err := http.NewRequestWithContext(ctx, s.method, s.buildURL(), bytes.NewReader(body))
	if err != nil {
		s.fail(&StatusError{Body: err.Error(), Err: fmt.Errorf("upload: creating initiation request: %w", err)}, err.Error())

		return
	}

	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(s.cfg.Size, 10))
	req.Header.Set("X-Upload-Content-Type", s.contentType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("initiation request failed",
			slog.String("error", err.Error()),
		)

		s.transient(retryInitiate, "")

		return
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		s.transient(retryInitiate, "")

		return
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if sentinel := fatalSentinel(resp.StatusCode); sentinel != nil {
			s.fail(&StatusError{StatusCode: resp.StatusCode, Body: string(respBody), Err: sentinel}, string(respBody))

			return
		}

		s.logger.Warn("initiation returned transient status",
			slog.Int("status", resp.StatusCode),
		)

		s.transient(retryInitiate, string(respBody))

		return
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		s.fail(&StatusError{StatusCode: resp.StatusCode, Body: string(respBody), Err: ErrNoLocation}, string(respBody))

		return
	}

	s.logger.Debug("upload session created")

	s.url = loc
	s.state = stateTransferring
}

// stepTransmit sends payload bytes from the current offset: the whole
// remainder when no chunk size is configured, otherwise at most ChunkSize
// bytes. The Content-Range header declares exactly which bytes are in the
// body so the server can acknowledge them individually.
func (s *Session) stepTransmit(ctx context.Context) {
	end := s.cfg.Size
	if s.cfg.ChunkSize > 0 {
		if e := s.offset + s.cfg.ChunkSize; e < end {
			end = e
		}
	}

	length := end - s.offset
	contentRange := fmt.Sprintf("bytes %d-%d/%d", s.offset, end-1, s.cfg.Size)

	s.logger.Debug("transmitting",
		slog.String("content_range", contentRange),
		slog.Int64("length", length),
	)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPut, s.url, io.NewSectionReader(s.cfg.Content, s.offset, length),
	)
	if err != nil {
		s.fail(&StatusError{Body: err.Error(), Err: fmt.Errorf("upload: creating transfer request: %w", err)}, err.Error())

		return
	}

	req.Header.Set("Content-Type", s.contentType)
	req.Header.Set("Content-Range", contentRange)
	req.Header.Set("X-Upload-Content-Type", s.contentType)
	req.Header.Set("User-Agent", userAgent)
	req.ContentLength = length

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("transfer request failed",
			slog.String("error", err.Error()),
		)

		s.transient(retryProbe, "")

		return
	}

	s.handleTransferResponse(resp)
}

// stepProbe asks the server how many bytes it has durably received: an
// empty-body PUT with a wildcard Content-Range. The server answers 308
// with a Range header covering what it holds (or 200/201 if the transfer
// actually finished), which handleTransferResponse turns into the next
// offset. Probing before re-sending means a partially-arrived previous
// request is never duplicated.
func (s *Session) stepProbe(ctx context.Context) {
	contentRange := fmt.Sprintf("bytes */%d", s.cfg.Size)

	s.logger.Info("probing session for confirmed offset",
		slog.String("content_range", contentRange),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.url, http.NoBody)
	if err != nil {
		s.fail(&StatusError{Body: err.Error(), Err: fmt.Errorf("upload: creating probe request: %w", err)}, err.Error())

		return
	}

	req.Header.Set("Content-Range", contentRange)
	req.Header.Set("X-Upload-Content-Type", s.contentType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("probe request failed",
			slog.String("error", err.Error()),
		)

		s.transient(retryProbe, "")

		return
	}

	s.handleTransferResponse(resp)
}

// handleTransferResponse classifies a transfer or probe response:
// 200/201 terminal success, 308 acknowledged partial progress (advance
// offset, keep transferring — protocol-expected, no backoff), 401/404
// fatal, everything else transient.
func (s *Session) handleTransferResponse(resp *http.Response) {
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		s.transient(retryProbe, "")

		return
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		s.logger.Info("upload complete",
			slog.Int("status", resp.StatusCode),
			slog.Int64("size", s.cfg.Size),
		)

		s.state = stateCompleted
		s.cfg.OnComplete(string(body))

	case resp.StatusCode == http.StatusPermanentRedirect: // 308 Resume Incomplete
		s.advanceOffset(resp.Header.Get("Range"))

		s.state = stateTransferring

	default:
		if sentinel := fatalSentinel(resp.StatusCode); sentinel != nil {
			s.fail(&StatusError{StatusCode: resp.StatusCode, Body: string(body), Err: sentinel}, string(body))

			return
		}

		s.logger.Warn("transfer returned transient status",
			slog.Int("status", resp.StatusCode),
		)

		s.transient(retryProbe, string(body))
	}
}

// advanceOffset moves the offset past the last byte the server confirmed.
// The Range header reads like "bytes=0-2499"; the last integer token is
// the final confirmed byte. An absent header means the server holds
// nothing new and the current offset stands.
func (s *Session) advanceOffset(rangeHeader string) {
	if rangeHeader == "" {
		return
	}

	tokens := rangeDigits.FindAllString(rangeHeader, -1)
	if len(tokens) == 0 {
		return
	}

	last, err := strconv.ParseInt(tokens[len(tokens)-1], 10, 64)
	if err != nil {
		return
	}

	s.offset = last + 1

	s.logger.Debug("server confirmed progress",
		slog.String("range", rangeHeader),
		slog.Int64("offset", s.offset),
	)

	if s.cfg.OnProgress != nil {
		s.cfg.OnProgress(s.offset, s.cfg.Size)
	}
}

// stepRetry waits out the current backoff interval, then re-invokes the
// pending step. The interval grows for every retry and retries continue
// until success, a fatal response, context cancellation, or — when a
// ceiling is configured — budget exhaustion.
func (s *Session) stepRetry(ctx context.Context) error {
	if s.cfg.MaxRetries > 0 && s.retries >= s.cfg.MaxRetries {
		s.logger.Error("retry budget exhausted",
			slog.Int("retries", s.retries),
		)

		s.fail(&StatusError{Body: s.lastBody, Err: ErrRetriesExhausted}, s.lastBody)

		return nil
	}

	s.retries++

	if err := s.retry.wait(ctx); err != nil {
		return fmt.Errorf("upload: canceled during backoff: %w", err)
	}

	switch s.pending {
	case retryInitiate:
		s.state = stateInitiating
	case retryProbe:
		s.stepProbe(ctx)
	}

	return nil
}

// transient records a retryable failure and enters the Retrying state.
func (s *Session) transient(action retryAction, body string) {
	s.pending = action

	if body != "" {
		s.lastBody = body
	}

	s.state = stateRetrying
}

// fail reaches the Failed state and fires the error callback.
func (s *Session) fail(err *StatusError, body string) {
	s.terminalErr = err
	s.state = stateFailed
	s.cfg.OnError(body)
}

// buildURL assembles the initiation URL: base + optional target file ID,
// with uploadType=resumable and any caller-supplied parameters.
func (s *Session) buildURL() string {
	base := s.cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	q := url.Values{"uploadType": []string{"resumable"}}
	for k, vs := range s.cfg.Params {
		q[k] = vs
	}

	return base + url.PathEscape(s.cfg.FileID) + "?" + q.Encode()
}
