package main

import (
	"fmt"
	"time"

	"github.com/SscSPs/recurring_journal_engine/internal/core/domain"
	"github.com/SscSPs/recurring_journal_engine/internal/dto"
	"github.com/spf13/cobra"
)

func parseOptionalDate(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q, expected YYYY-MM-DD", flag, value)
	}
	return &d, nil
}

func newPreviewCmd(a *app) *cobra.Command {
	var (
		workplaceID string
		limit       int
		from        string
	)

	cmd := &cobra.Command{
		Use:   "preview <definition-id>",
		Short: "List the next run dates of a definition",
		Args:  cobra.ExactArgs(1),
		RunE: a.withServices(func(cmd *cobra.Command, args []string) error {
			fromDate, err := parseOptionalDate("from", from)
			if err != nil {
				return err
			}
			items, err := a.services.Preview.PreviewOccurrences(cmd.Context(), workplaceID, args[0], limit, fromDate)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), dto.ToPreviewResponse(args[0], items))
		}),
	}

	cmd.Flags().StringVarP(&workplaceID, "workplace", "w", "", "Workplace that owns the definition, any when empty")
	cmd.Flags().IntVarP(&limit, "limit", "n", 12, "Number of dates to list")
	cmd.Flags().StringVar(&from, "from", "", "List dates on or after this date (YYYY-MM-DD)")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var (
		workplaceID string
		runDate     string
		runID       string
		dryRun      bool
		notify      bool
	)

	cmd := &cobra.Command{
		Use:   "run <definition-id>",
		Short: "Run the currently due date of a definition",
		Args:  cobra.ExactArgs(1),
		RunE: a.withServices(func(cmd *cobra.Command, args []string) error {
			date, err := parseOptionalDate("run-date", runDate)
			if err != nil {
				return err
			}
			if _, err := a.services.Definition.GetDefinition(cmd.Context(), workplaceID, args[0]); err != nil {
				return err
			}
			result, err := a.services.Run.Run(cmd.Context(), args[0], domain.RunOptions{
				RunDate:            date,
				RunID:              runID,
				DryRun:             dryRun,
				NotifyOnCompletion: notify,
				RequestedBy:        "rjectl",
			})
			if err != nil {
				return err
			}
			if err := a.print(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("run of %s failed: %s", args[0], result.Message)
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&workplaceID, "workplace", "w", "", "Workplace that owns the definition, any when empty")
	cmd.Flags().StringVar(&runDate, "run-date", "", "As-of date (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&runID, "run-id", "", "Replay a previous run with this id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Materialize without posting")
	cmd.Flags().BoolVar(&notify, "notify", false, "Notify on completion")
	return cmd
}

func newRunDueCmd(a *app) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "run-due",
		Short: "Run every definition due on or before a date",
		Args:  cobra.NoArgs,
		RunE: a.withServices(func(cmd *cobra.Command, args []string) error {
			date, err := parseOptionalDate("as-of", asOf)
			if err != nil {
				return err
			}
			when := time.Now().UTC()
			if date != nil {
				when = *date
			}
			batch, err := a.services.Run.RunDue(cmd.Context(), when)
			if err != nil {
				return err
			}
			if err := a.print(cmd.OutOrStdout(), batch); err != nil {
				return err
			}
			if batch.Failed > 0 {
				return fmt.Errorf("%d of %d due definitions failed", batch.Failed, batch.Attempted)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "As-of date (YYYY-MM-DD), defaults to today")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var workplaceID string

	cmd := &cobra.Command{
		Use:   "stats <definition-id>",
		Short: "Show occurrence counts of a definition",
		Args:  cobra.ExactArgs(1),
		RunE: a.withServices(func(cmd *cobra.Command, args []string) error {
			stats, err := a.services.Occurrence.GetStatistics(cmd.Context(), workplaceID, args[0])
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), stats)
		}),
	}

	cmd.Flags().StringVarP(&workplaceID, "workplace", "w", "", "Workplace that owns the definition, any when empty")
	return cmd
}
