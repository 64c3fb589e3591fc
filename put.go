package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/driveup/internal/sessionstore"
	"github.com/tonimelisma/driveup/internal/upload"
)

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> [title]",
		Short: "Upload a file over the resumable protocol",
		Long: `Upload a file to Drive. Large transfers survive interruption: the upload
session URL and the last server-confirmed offset are recorded locally, and
a re-run of the same file continues where the transfer left off.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPut,
	}

	cmd.Flags().String("file-id", "", "replace an existing file instead of creating a new one")
	cmd.Flags().String("content-type", "", "override the detected content type")
	cmd.Flags().String("chunk-size", "", `per-request chunk size, e.g. "8MiB" (default: whole file in one request)`)
	cmd.Flags().StringArray("param", nil, "extra query parameter for session initiation (key=value, repeatable)")
	cmd.Flags().Bool("no-resume", false, "ignore any recorded session and start over")

	return cmd
}

// putOptions carries the per-upload settings shared by put and watch.
type putOptions struct {
	title       string
	fileID      string
	contentType string
	chunkSize   int64
	params      url.Values
	noResume    bool
}

func runPut(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	ctx, stop := commandContext(cmd)
	defer stop()

	opts := putOptions{chunkSize: resolvedCfg.ChunkBytes}

	if len(args) > 1 {
		opts.title = args[1]
	}

	opts.fileID, _ = cmd.Flags().GetString("file-id")
	opts.contentType, _ = cmd.Flags().GetString("content-type")
	opts.noResume, _ = cmd.Flags().GetBool("no-resume")

	if raw, _ := cmd.Flags().GetString("chunk-size"); raw != "" {
		n, err := units.RAMInBytes(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid --chunk-size %q", raw)
		}

		opts.chunkSize = n
	}

	rawParams, _ := cmd.Flags().GetStringArray("param")

	params, err := parseParams(rawParams)
	if err != nil {
		return err
	}

	opts.params = params

	store, err := openSessionStore(ctx, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return uploadFile(ctx, logger, store, args[0], opts)
}

// uploadFile drives one resumable upload end to end: resume lookup,
// session run, and session-record bookkeeping around the result.
func uploadFile(
	ctx context.Context, logger *slog.Logger, store *sessionstore.Store,
	path string, opts putOptions,
) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stating %s: %w", path, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	title := opts.title
	if title == "" {
		title = filepath.Base(path)
	}

	size := info.Size()

	var sessionURL string

	var offset int64

	if !opts.noResume {
		rec, loadErr := store.Load(ctx, abs)
		if loadErr != nil {
			return loadErr
		}

		// A recorded session is only trusted if the file size still
		// matches; an edited file invalidates the old transfer.
		if rec != nil && rec.Size == size {
			sessionURL = rec.SessionURL
			offset = rec.Offset

			logger.Info("resuming recorded session",
				slog.String("path", abs),
				slog.Int64("offset", offset),
			)
		}
	}

	var (
		sess         *upload.Session
		responseBody string
	)

	cfg := upload.Config{
		Content:     f,
		Size:        size,
		Name:        title,
		MIMEType:    detectMIMEType(path),
		ContentType: opts.contentType,
		Token:       resolvedCfg.Token,
		FileID:      opts.fileID,
		BaseURL:     resolvedCfg.UploadURL,
		Params:      opts.params,
		URL:         sessionURL,
		Offset:      offset,
		ChunkSize:   opts.chunkSize,
		Logger:      logger,
		OnComplete: func(body string) {
			responseBody = body
		},
		OnError: func(body string) {
			responseBody = body
		},
		OnProgress: func(confirmed, total int64) {
			rec := &sessionstore.Record{
				LocalPath:  abs,
				SessionURL: sess.SessionURL(),
				Offset:     confirmed,
				Size:       total,
			}
			if saveErr := store.Save(ctx, rec); saveErr != nil {
				logger.Warn("failed to record progress", slog.String("error", saveErr.Error()))
			}
		},
	}

	sess, err = upload.New(cfg)
	if err != nil {
		return err
	}

	if runErr := sess.Run(ctx); runErr != nil {
		if ctx.Err() != nil && sess.SessionURL() != "" {
			// Interrupted: record what we know so the next run resumes.
			rec := &sessionstore.Record{
				LocalPath:  abs,
				SessionURL: sess.SessionURL(),
				Offset:     sess.Offset(),
				Size:       size,
			}
			if saveErr := store.Save(context.WithoutCancel(ctx), rec); saveErr != nil {
				logger.Warn("failed to record session", slog.String("error", saveErr.Error()))
			}

			return fmt.Errorf("upload interrupted, run again to resume: %w", runErr)
		}

		// Fatal: the session is unusable, drop the record.
		if delErr := store.Delete(context.WithoutCancel(ctx), abs); delErr != nil {
			logger.Warn("failed to drop session record", slog.String("error", delErr.Error()))
		}

		return fmt.Errorf("uploading %s: %w", path, runErr)
	}

	if delErr := store.Delete(ctx, abs); delErr != nil {
		logger.Warn("failed to drop session record", slog.String("error", delErr.Error()))
	}

	fmt.Printf("Uploaded %s (%s)%s\n", title, units.BytesSize(float64(size)), uploadedID(responseBody))

	return nil
}

// uploadedID extracts the file ID from the completion body, best effort.
func uploadedID(body string) string {
	var item struct {
		ID string `json:"id"`
	}

	if err := json.Unmarshal([]byte(body), &item); err != nil || item.ID == "" {
		return ""
	}

	return " as " + item.ID
}

// detectMIMEType maps a file extension to a MIME type, stripping any
// charset parameters. Returns "" when unknown; the upload layer falls
// back to application/octet-stream.
func detectMIMEType(path string) string {
	t := mime.TypeByExtension(filepath.Ext(path))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}

	return strings.TrimSpace(t)
}

// parseParams turns repeated key=value flags into query parameters.
func parseParams(raw []string) (url.Values, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	params := url.Values{}

	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q (want key=value)", kv)
		}

		params.Add(key, value)
	}

	return params, nil
}

// openSessionStore opens the session database under the data dir and
// opportunistically expires stale records.
func openSessionStore(ctx context.Context, logger *slog.Logger) (*sessionstore.Store, error) {
	dbPath := filepath.Join(resolvedCfg.DataDir, "sessions.db")

	store, err := sessionstore.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, err
	}

	if _, err := store.CleanStale(ctx, sessionstore.StaleSessionAge); err != nil {
		logger.Warn("stale session cleanup failed", slog.String("error", err.Error()))
	}

	return store, nil
}
