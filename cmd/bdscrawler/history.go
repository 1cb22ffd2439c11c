package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/julianbeese/bds_crawler/internal/repository/sqlite"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent crawl activity recorded in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()
			return printHistory(cmd.Context(), cmd.OutOrStdout(), repo, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of activity entries to show")

	return cmd
}

func newListingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "listing <id>",
		Short: "Show a stored listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()
			return printListing(cmd.Context(), cmd.OutOrStdout(), repo, args[0])
		},
	}
}

func (a *app) openRepository() (*sqlite.Repository, error) {
	if a.cfg.DatabasePath == "" {
		return nil, fmt.Errorf("no database configured, set database_path")
	}
	repo, err := sqlite.New(a.cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return repo, nil
}

func printHistory(ctx context.Context, w io.Writer, repo *sqlite.Repository, limit int) error {
	total, err := repo.CountListings(ctx)
	if err != nil {
		return fmt.Errorf("count listings: %w", err)
	}
	fmt.Fprintf(w, "Listings stored: %d\n\n", total)

	logs, err := repo.RecentActivity(ctx, limit)
	if err != nil {
		return fmt.Errorf("load activity: %w", err)
	}

	for _, entry := range logs {
		line := fmt.Sprintf("%s  %-13s", entry.CreatedAt.Local().Format(time.DateTime), entry.Action)
		if entry.EntityType != "" {
			line += fmt.Sprintf("  %s %s", entry.EntityType, entry.EntityID)
		}

		if entry.EntityType == "crawl_run" {
			run, err := repo.GetRun(ctx, entry.EntityID)
			if err != nil {
				return fmt.Errorf("load run %s: %w", entry.EntityID, err)
			}
			if run != nil {
				line += fmt.Sprintf("  [%s %s results=%d new=%d]", run.ProductType, run.Status, run.ResultCount, run.NewCount)
			}
		}

		switch {
		case entry.ErrorMsg != "":
			line += "  error: " + entry.ErrorMsg
		case entry.Details != "" && entry.EntityType != "crawl_run":
			line += "  " + entry.Details
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func printListing(ctx context.Context, w io.Writer, repo *sqlite.Repository, id string) error {
	l, err := repo.GetListing(ctx, id)
	if err != nil {
		return fmt.Errorf("load listing %s: %w", id, err)
	}
	if l == nil {
		return fmt.Errorf("listing %s not found", id)
	}

	fmt.Fprintf(w, "%s\n", l.Title)
	fmt.Fprintf(w, "URL:      %s\n", l.URL)
	fmt.Fprintf(w, "Price:    %s\n", l.Price)
	fmt.Fprintf(w, "Area:     %g m²\n", l.AreaM2)
	if l.Rooms != nil {
		fmt.Fprintf(w, "Rooms:    %d\n", *l.Rooms)
	}
	if l.Bathrooms != nil {
		fmt.Fprintf(w, "WC:       %d\n", *l.Bathrooms)
	}
	fmt.Fprintf(w, "Location: %s, %s\n", l.District, l.City)
	if !l.PublishedAt.IsZero() {
		fmt.Fprintf(w, "Posted:   %s\n", l.PublishedAt.Format("2006-01-02"))
	}
	if len(l.Images) > 0 {
		fmt.Fprintf(w, "Images:   %s\n", strings.Join(l.Images, ", "))
	}
	return nil
}
