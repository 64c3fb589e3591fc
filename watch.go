package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/driveup/internal/sessionstore"
)

// defaultSettleDelay is how long a file must stay quiet after its last
// write before it is uploaded. Editors and download managers write in
// bursts; uploading mid-burst would ship a torn file.
const defaultSettleDelay = 2 * time.Second

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and upload new or changed files",
		Long: `Watch a local directory and upload files as they appear or change.
Uploads run sequentially in arrival order. Dotfiles and subdirectories
are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().Duration("settle", defaultSettleDelay, "quiet period before a changed file is uploaded")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	ctx, stop := commandContext(cmd)
	defer stop()

	dir := args[0]

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stating %s: %w", dir, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	settle, _ := cmd.Flags().GetDuration("settle")

	store, err := openSessionStore(ctx, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	logger.Info("watching directory",
		slog.String("dir", dir),
		slog.Duration("settle", settle),
	)

	w := &dirWatcher{
		logger: logger,
		store:  store,
		settle: settle,
		ready:  make(chan string),
		timers: make(map[string]*time.Timer),
	}

	return w.loop(ctx, watcher)
}

// dirWatcher debounces filesystem events per path and uploads settled
// files one at a time.
type dirWatcher struct {
	logger *slog.Logger
	store  *sessionstore.Store
	settle time.Duration
	ready  chan string

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// loop processes watcher events until the context is canceled. Uploads
// run on the loop goroutine, so at most one transfer is in flight.
func (w *dirWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			w.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case path := <-w.ready:
			w.uploadSettled(ctx, path)
		}
	}
}

// handleEvent resets the settle timer for created or written files.
func (w *dirWatcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}

	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return
	}

	if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
		return
	}

	w.logger.Debug("file changed",
		slog.String("path", event.Name),
		slog.String("op", event.Op.String()),
	)

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, exists := w.timers[event.Name]; exists {
		timer.Reset(w.settle)
		return
	}

	path := event.Name
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.ready <- path
	})
}

// uploadSettled uploads a file whose settle timer fired. Failures are
// logged, not fatal — the watch keeps running.
func (w *dirWatcher) uploadSettled(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.timers, path)
	w.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		// Deleted between settle and upload.
		return
	}

	opts := putOptions{chunkSize: resolvedCfg.ChunkBytes}

	if err := uploadFile(ctx, w.logger, w.store, path, opts); err != nil {
		w.logger.Error("upload failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
