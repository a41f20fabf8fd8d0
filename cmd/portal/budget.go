package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vaihtoaktivaattori/portal/internal/config"
	"github.com/vaihtoaktivaattori/portal/pkg/budget"
	"github.com/vaihtoaktivaattori/portal/pkg/budgetsync"
	"github.com/vaihtoaktivaattori/portal/pkg/debounce"
)

func newBudgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show or edit your exchange budget",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return editBudget(cmd, "", nil)
		},
	})

	var notes string
	set := &cobra.Command{
		Use:   "set <category> <amount>",
		Short: "Set the estimated cost of a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			return editBudget(cmd, args[0], func(e *budgetsync.Editor) error {
				if _, err := e.SetEstimatedCost(args[0], amount); err != nil {
					return err
				}
				if cmd.Flags().Changed("notes") {
					_, err = e.SetNotes(args[0], notes)
				}
				return err
			})
		},
	}
	set.Flags().StringVar(&notes, "notes", "", "free text notes for the category")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "step <category> <delta>",
		Short: "Add delta to a category, never going below zero",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid delta %q: %w", args[1], err)
			}
			return editBudget(cmd, args[0], func(e *budgetsync.Editor) error {
				_, err := e.Step(args[0], delta)
				return err
			})
		},
	})

	return cmd
}

// editBudget loads the remote budget, applies edit to category and flushes
// before printing the result.
func editBudget(cmd *cobra.Command, category string, edit func(*budgetsync.Editor) error) error {
	ctx := cmd.Context()
	cfg := config.GetBudgetConfig()

	client := budgetsync.NewClient(config.GetAuthAPIBase()).SetToken(config.GetClientToken())
	editor := budgetsync.NewEditor(client, debounce.Options{
		QuietPeriod:  cfg.QuietPeriod,
		GraceWindow:  cfg.GraceWindow,
		MaxDeferral:  cfg.MaxDeferral,
		FlushTimeout: cfg.FlushTimeout,
	})

	if _, err := editor.Load(ctx, client); err != nil {
		return fmt.Errorf("failed to load budget: %w", err)
	}

	if edit != nil {
		if err := edit(editor); err != nil {
			return err
		}
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.FlushTimeout)
	defer cancel()
	if err := editor.Close(closeCtx); err != nil {
		return fmt.Errorf("failed to save budget: %w", err)
	}

	if edit != nil {
		// the flush does not report failures itself
		stored, err := client.Get(ctx)
		if err != nil {
			return fmt.Errorf("failed to reload budget: %w", err)
		}
		printBudget(cmd.OutOrStdout(), stored)

		want, _ := editor.Category(category)
		if got := stored.Categories[category]; got != want {
			return fmt.Errorf("edit of %q was not saved, stored value is %.2f EUR", category, got.EstimatedCost)
		}
		return nil
	}

	printBudget(cmd.OutOrStdout(), editor.Snapshot())
	return nil
}

func printBudget(w io.Writer, snap budget.Snapshot) {
	for _, name := range snap.Names() {
		c := snap.Categories[name]
		if c.Notes != "" {
			fmt.Fprintf(w, "%-20s %10.2f EUR  %s\n", name, c.EstimatedCost, c.Notes)
		} else {
			fmt.Fprintf(w, "%-20s %10.2f EUR\n", name, c.EstimatedCost)
		}
	}
	fmt.Fprintf(w, "%-20s %10.2f EUR\n", "total", snap.Total)
}
