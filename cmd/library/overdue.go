// cmd/library/overdue.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/adhocore/gronx"

	"libranexus/internal/library"
	"libranexus/internal/storage"
)

// runOverdue prints overdue loans from the stored library. With -watch the
// snapshot is reloaded and checked again at every tick of the cron expression.
func runOverdue(ctx context.Context, args []string, newLibrary func() *library.Library, store storage.Store, key string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("overdue", flag.ContinueOnError)
	watch := fs.String("watch", "", `cron expression, e.g. "0 8 * * *"`)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *watch == "" {
		return reportOverdue(ctx, newLibrary(), store, key, logger)
	}
	if !gronx.New().IsValid(*watch) {
		return fmt.Errorf("invalid cron expression %q", *watch)
	}

	for {
		next, err := gronx.NextTick(*watch, false)
		if err != nil {
			return fmt.Errorf("next tick: %w", err)
		}
		logger.InfoContext(ctx, "waiting for next overdue check", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if err := reportOverdue(ctx, newLibrary(), store, key, logger); err != nil {
			logger.ErrorContext(ctx, "overdue check failed", "error", err)
		}
	}
}

func reportOverdue(ctx context.Context, lib *library.Library, store storage.Store, key string, logger *slog.Logger) error {
	if err := loadExisting(ctx, lib, store, key, logger); err != nil {
		return err
	}

	overdue := lib.Overdue()
	logger.InfoContext(ctx, "overdue check", "overdue", len(overdue))
	if len(overdue) == 0 {
		fmt.Println("nothing overdue")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ISBN\tUSER\tCHECKED OUT\tDUE\tLATE")
	now := time.Now()
	for _, o := range overdue {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			o.BookISBN, o.UserID,
			o.CheckedOutAt.Format(time.DateOnly),
			o.DueDate.Format(time.DateOnly),
			now.Sub(o.DueDate).Truncate(time.Hour),
		)
	}
	return w.Flush()
}
