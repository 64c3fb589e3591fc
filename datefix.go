package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/driveup/internal/datefix"
)

// patchWorkers bounds concurrent modified-date patches.
const patchWorkers = 4

func newDatefixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "datefix",
		Short: "Reset photo modification dates to their EXIF capture dates",
		Long: `Scan every JPEG in Drive and, after confirmation, set each photo's
modification date to its EXIF capture date. Useful after a bulk re-upload
stamped everything with the upload time.`,
		RunE: runDatefix,
	}
}

func runDatefix(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	ctx, stop := commandContext(cmd)
	defer stop()

	client := newDriveClient(logger)

	files, err := client.ListFiles(ctx, datefix.Query, datefix.Fields)
	if err != nil {
		return fmt.Errorf("listing images: %w", err)
	}

	logger.Info("listing complete", slog.Int("images", len(files)))

	patches := datefix.Plan(files)
	if len(patches) == 0 {
		fmt.Println("All photo dates already match their EXIF dates.")
		return nil
	}

	fmt.Printf("Found %d images, %d need fixing.\n", len(files), len(patches))

	if !confirm("Fix the dates?") {
		fmt.Println("Not touching anything.")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(patchWorkers)

	for _, p := range patches {
		p := p

		g.Go(func() error {
			if err := client.SetModifiedDate(gctx, p.FileID, p.ModifiedDate); err != nil {
				return fmt.Errorf("patching %s: %w", p.FileID, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("Fixed %d photo dates.\n", len(patches))

	return nil
}
