package main

import (
	"fmt"
	"log/slog"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/driveup/internal/dedupe"
)

// trashWorkers bounds concurrent trash requests. Independent metadata
// mutations parallelize safely; the limit keeps us under API rate limits.
const trashWorkers = 4

func newDedupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedup",
		Short: "Find identical files and trash the extra copies",
		Long: `List every file in Drive, group them by content checksum, and report
duplicate sets with the space they waste. After confirmation, all but the
first copy of each set are moved to the trash.`,
		RunE: runDedup,
	}
}

func runDedup(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	ctx, stop := commandContext(cmd)
	defer stop()

	client := newDriveClient(logger)

	files, err := client.ListFiles(ctx, dedupe.Query, dedupe.Fields)
	if err != nil {
		return fmt.Errorf("listing files: %w", err)
	}

	logger.Info("listing complete", slog.Int("files", len(files)))

	sets := dedupe.Find(files)
	if len(sets) == 0 {
		fmt.Println("No duplicates found.")
		return nil
	}

	for _, set := range sets {
		fmt.Println("--")

		for _, f := range set.Files {
			fmt.Printf("%s %s\n", f.AlternateLink, f.Title)
		}
	}

	fmt.Println("--")
	fmt.Printf("%d duplicate sets, %s wasted.\n",
		len(sets), units.BytesSize(float64(dedupe.TotalWasted(sets))))

	if !confirm("Trash the extra copies?") {
		fmt.Println("Not touching anything.")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(trashWorkers)

	var trashed int

	for _, set := range sets {
		for _, extra := range set.Extras() {
			extra := extra

			g.Go(func() error {
				if err := client.Trash(gctx, extra.ID); err != nil {
					return fmt.Errorf("trashing %s: %w", extra.Title, err)
				}

				return nil
			})

			trashed++
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("Trashed %d files. Check the trash before emptying it.\n", trashed)

	return nil
}
