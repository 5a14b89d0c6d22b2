// cmd/library/demo.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"

	"libranexus/internal/circulation"
	"libranexus/internal/domain"
	"libranexus/internal/library"
	"libranexus/internal/storage"
)

// runDemo seeds an empty library, exercises the circulation rules and
// optionally saves the result and reads it back into a second library.
func runDemo(ctx context.Context, args []string, newLibrary func() *library.Library, store storage.Store, key string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	save := fs.Bool("save", false, "store the resulting library, replacing any stored one")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lib := newLibrary()

	for _, b := range [][3]string{{"a", "c", "isbn1"}, {"b", "b", "isbn2"}, {"c", "a", "isbn3"}} {
		if _, err := lib.AddBook(b[0], b[1], b[2]); err != nil {
			return err
		}
	}
	jeel, err := lib.RegisterUser(ctx, "Jeel")
	if err != nil {
		return err
	}
	leej, err := lib.RegisterUser(ctx, "Leej")
	if err != nil {
		return err
	}

	if _, err := lib.AddReview(jeel.ID, "isbn1", 1, "very good"); err != nil {
		return err
	}
	if _, err := lib.AddReview(leej.ID, "isbn1", 2, "very cool"); err != nil {
		return err
	}

	policy := lib.Circulation().Policy()
	for i := 0; i < policy.MaxCheckouts; i++ {
		if _, err := lib.CheckOut(ctx, "isbn1", jeel.ID); err != nil {
			return err
		}
		if _, err := lib.Return(ctx, "isbn1", jeel.ID); err != nil {
			return err
		}
	}

	_, err = lib.CheckOut(ctx, "isbn1", leej.ID)
	if !errors.Is(err, domain.ErrPolicyViolation) {
		return fmt.Errorf("expected the checkout limit to refuse a further checkout, got %v", err)
	}
	fmt.Printf("checkout %d refused: %v\n", policy.MaxCheckouts+1, err)

	fmt.Printf("checkouts of isbn1 by %s:\n", jeel.Name)
	for _, tx := range lib.Circulation().History("isbn1") {
		if tx.UserID == jeel.ID && tx.Kind == circulation.KindCheckout {
			fmt.Printf("  %s  %s\n", tx.Timestamp.Format("2006-01-02 15:04:05.000"), tx.ID)
		}
	}

	if avg, ok := lib.Reviews().AverageRating("isbn1"); ok {
		fmt.Printf("average rating of isbn1: %.2f\n", avg)
	}

	if !*save {
		return nil
	}
	if err := lib.Save(ctx, store, key); err != nil {
		return err
	}

	reloaded := newLibrary()
	if err := reloaded.Load(ctx, store, key); err != nil {
		return err
	}
	logger.InfoContext(ctx, "demo library reloaded",
		"books", len(reloaded.Catalog().Books()),
		"users", len(reloaded.Members().Users()),
		"transactions", len(reloaded.Circulation().Transactions()),
	)
	fmt.Printf("saved and reloaded %q: %d transactions\n", key, len(reloaded.Circulation().Transactions()))
	return nil
}
