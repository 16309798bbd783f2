package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"memebox/internal/history"
)

const historyTimeLayout = "2006-01-02 15:04:05"

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded ingestion attempts",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryStatsCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))

	return historyCmd
}

type attemptJSON struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Category  string    `json:"category,omitempty"`
	Requester string    `json:"requester,omitempty"`
	Source    string    `json:"source"`
	Replace   bool      `json:"replace"`
	Status    string    `json:"status"`
	Asset     string    `json:"asset,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent ingestion attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withHistory(func(store *history.Store) error {
				attempts, err := store.Recent(cmd.Context(), limit, statuses...)
				if err != nil {
					return err
				}
				if jsonOutput {
					items := make([]attemptJSON, 0, len(attempts))
					for _, a := range attempts {
						items = append(items, attemptJSON{
							ID:        a.ID,
							Key:       a.Key,
							Category:  a.Category,
							Requester: a.Requester,
							Source:    string(a.Source),
							Replace:   a.Replace,
							Status:    string(a.Status),
							Asset:     a.Asset,
							Error:     a.ErrorMessage,
							CreatedAt: a.CreatedAt,
							UpdatedAt: a.UpdatedAt,
						})
					}
					return writeJSON(cmd, items)
				}

				out := cmd.OutOrStdout()
				if len(attempts) == 0 {
					fmt.Fprintln(out, "No ingestions recorded")
					return nil
				}
				rows := make([][]string, 0, len(attempts))
				for _, a := range attempts {
					key := a.Key
					if a.Category != "" {
						key = a.Category + "/" + key
					}
					rows = append(rows, []string{
						shortID(a.ID),
						a.CreatedAt.Local().Format(historyTimeLayout),
						key,
						string(a.Source),
						string(a.Status),
						a.ErrorMessage,
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Started", "Key", "Source", "Status", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
					shouldColorize(out),
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of attempts to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one ingestion attempt and its transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				id, err := resolveAttemptID(cmd, store, args[0])
				if err != nil {
					return err
				}
				attempt, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				transitions, err := store.Transitions(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:        %s\n", attempt.ID)
				fmt.Fprintf(out, "Key:       %s\n", attempt.Key)
				if attempt.Category != "" {
					fmt.Fprintf(out, "Category:  %s\n", attempt.Category)
				}
				fmt.Fprintf(out, "Requester: %s (%s)\n", attempt.Requester, attempt.Source)
				fmt.Fprintf(out, "Replace:   %s\n", yesNo(attempt.Replace))
				fmt.Fprintf(out, "Status:    %s\n", attempt.Status)
				if attempt.Asset != "" {
					fmt.Fprintf(out, "Asset:     %s\n", attempt.Asset)
				}
				if attempt.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:     %s\n", attempt.ErrorMessage)
				}
				if len(transitions) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(transitions))
				for _, tr := range transitions {
					rows = append(rows, []string{tr.At.Local().Format(historyTimeLayout), string(tr.Status), tr.Detail})
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, renderTable([]string{"At", "Status", "Detail"}, rows, nil, shouldColorize(out)))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
}

func newHistoryStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count ingestion attempts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				counts, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(counts))
				total := 0
				for _, status := range history.AllStatuses() {
					n := counts[status]
					total += n
					rows = append(rows, []string{string(status), strconv.Itoa(n)})
				}
				rows = append(rows, []string{"total", strconv.Itoa(total)})
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
					shouldColorize(out),
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished attempts older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return ctx.withHistory(func(store *history.Store) error {
				removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d ingestion attempts\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff for finished attempts")
	return cmd
}

func parseStatuses(values []string) ([]history.Status, error) {
	var statuses []history.Status
	for _, value := range values {
		for part := range strings.SplitSeq(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := history.ParseStatus(part)
			if !ok {
				return nil, fmt.Errorf("unknown status %q", part)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

// resolveAttemptID expands an ID prefix as printed by 'history list'.
func resolveAttemptID(cmd *cobra.Command, store *history.Store, raw string) (string, error) {
	prefix := strings.TrimSpace(raw)
	if _, err := store.Get(cmd.Context(), prefix); err == nil {
		return prefix, nil
	}
	attempts, err := store.Recent(cmd.Context(), 1000)
	if err != nil {
		return "", err
	}
	var match string
	for _, a := range attempts {
		if strings.HasPrefix(a.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("ambiguous ingestion id %q", raw)
			}
			match = a.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %q", history.ErrNotFound, raw)
	}
	return match, nil
}
