package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"memebox/internal/catalogue"
	"memebox/internal/daemon"
	"memebox/internal/history"
	"memebox/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var probeEndpoint bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show bot, catalogue and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			var lines []string

			lines = append(lines, renderSectionHeader("Bot", colorize))
			running, probeErr := daemon.Probe(cfg.DaemonLockPath())
			switch {
			case probeErr != nil:
				lines = append(lines, renderStatusLine("Daemon", statusError, probeErr.Error(), colorize))
			case running:
				lines = append(lines, renderStatusLine("Daemon", statusOK, "running", colorize))
			default:
				lines = append(lines, renderStatusLine("Daemon", statusInfo, "stopped", colorize))
			}
			if err := cfg.RequireBot(); err != nil {
				lines = append(lines, renderStatusLine("Bot token", statusWarn, "not configured", colorize))
			} else {
				lines = append(lines, renderStatusLine("Bot token", statusOK, "configured", colorize))
			}
			lines = append(lines, renderStatusLine("Base URL", statusInfo, cfg.Server.BaseURL, colorize))

			lines = append(lines, "", renderSectionHeader("Catalogue", colorize))
			registry, assets, err := ctx.openCatalogue()
			if err != nil {
				lines = append(lines, renderStatusLine("Catalogue", statusError, err.Error(), colorize))
			} else {
				snap := registry.Snapshot()
				lines = append(lines, renderStatusLine("Memes", statusInfo, fmt.Sprintf("%d in %d categories", snap.Len(), len(snap.Categories)), colorize))
				issues := catalogue.Audit(snap, assets)
				if len(issues) == 0 {
					lines = append(lines, renderStatusLine("Audit", statusOK, "no issues", colorize))
				} else {
					lines = append(lines, renderStatusLine("Audit", statusWarn, fmt.Sprintf("%d issues (run 'memebox catalogue check')", len(issues)), colorize))
				}
			}

			lines = append(lines, "", renderSectionHeader("Ingestions", colorize))
			histErr := ctx.withHistory(func(store *history.Store) error {
				counts, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				parts := make([]string, 0, len(counts))
				for _, status := range history.AllStatuses() {
					if n := counts[status]; n > 0 {
						parts = append(parts, fmt.Sprintf("%s=%d", status, n))
					}
				}
				summary := strings.Join(parts, " ")
				if summary == "" {
					summary = "none recorded"
				}
				lines = append(lines, renderStatusLine("History", statusInfo, summary, colorize))
				return nil
			})
			if histErr != nil {
				lines = append(lines, renderStatusLine("History", statusError, histErr.Error(), colorize))
			}

			lines = append(lines, "", renderSectionHeader("Dependencies", colorize))
			results := preflight.RunAll(cmd.Context(), cfg)
			if probeEndpoint && running {
				results = append(results, preflight.CheckAssetEndpoint(cmd.Context(), cfg.Server.BaseURL))
			}
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&probeEndpoint, "probe", false, "Probe the public asset endpoint when the bot is running")
	return cmd
}
