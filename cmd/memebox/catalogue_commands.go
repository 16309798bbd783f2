package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"memebox/internal/assetstore"
	"memebox/internal/catalogue"
	"memebox/internal/history"
	"memebox/internal/ingest"
	"memebox/internal/notifications"
	"memebox/internal/transcode"
)

func newCatalogueCommand(ctx *commandContext) *cobra.Command {
	catalogueCmd := &cobra.Command{
		Use:     "catalogue",
		Aliases: []string{"catalog", "memes"},
		Short:   "Inspect and edit the meme catalogue",
	}

	catalogueCmd.AddCommand(newCatalogueListCommand(ctx))
	catalogueCmd.AddCommand(newCatalogueCheckCommand(ctx))
	catalogueCmd.AddCommand(newCatalogueNormalizeCommand(ctx))
	catalogueCmd.AddCommand(newCatalogueAddCommand(ctx))
	catalogueCmd.AddCommand(newCatalogueRenameCommand(ctx))

	return catalogueCmd
}

type catalogueRow struct {
	Category string `json:"category,omitempty"`
	Key      string `json:"key"`
	Asset    string `json:"asset"`
	Present  bool   `json:"present"`
}

func newCatalogueListCommand(ctx *commandContext) *cobra.Command {
	var categoryFlag string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalogue entries in menu order",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, assets, err := ctx.openCatalogue()
			if err != nil {
				return err
			}
			snap := registry.Snapshot()

			filter := strings.TrimSpace(categoryFlag)
			if filter != "" {
				name, err := catalogue.ParseCategory(filter)
				if err != nil {
					return err
				}
				if !snap.HasCategory(name) {
					return fmt.Errorf("%w: %q", catalogue.ErrCategoryNotFound, name)
				}
				filter = name
			}

			var rows []catalogueRow
			for e := range snap.Entries() {
				if filter != "" && e.Category != filter {
					continue
				}
				rows = append(rows, catalogueRow{
					Category: e.Category,
					Key:      string(e.Key),
					Asset:    string(e.Asset),
					Present:  assets.Exists(e.Asset),
				})
			}

			if jsonOutput {
				if rows == nil {
					rows = []catalogueRow{}
				}
				return writeJSON(cmd, rows)
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No memes yet.")
				return nil
			}
			table := make([][]string, 0, len(rows))
			for _, row := range rows {
				category := row.Category
				if category == catalogue.Root {
					category = "-"
				}
				table = append(table, []string{category, row.Key, row.Asset, yesNo(row.Present)})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Category", "Key", "Asset", "Present"},
				table,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				shouldColorize(out),
			))
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&categoryFlag, "category", "", "Only list entries in this category")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

// readRawCatalogue decodes the durable file without normalizing it, so
// problems are reported before the registry repairs them on open.
func readRawCatalogue(path string) (catalogue.Catalogue, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return catalogue.Catalogue{}, false, nil
		}
		return catalogue.Catalogue{}, false, fmt.Errorf("read catalogue: %w", err)
	}
	c, err := catalogue.Decode(data)
	if err != nil {
		return catalogue.Catalogue{}, true, fmt.Errorf("%s: %w", path, err)
	}
	return c, true, nil
}

func newCatalogueCheckCommand(ctx *commandContext) *cobra.Command {
	var showOrphans bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Audit the catalogue file without changing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			assets, err := assetstore.Open(cfg.Paths.AssetsDir, ctx.cliLogger())
			if err != nil {
				return err
			}
			raw, exists, err := readRawCatalogue(cfg.Paths.CatalogueFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !exists {
				fmt.Fprintf(out, "No catalogue at %s\n", cfg.Paths.CatalogueFile)
				return nil
			}

			issues := catalogue.Audit(raw, assets)
			var orphans []catalogue.AssetRef
			if showOrphans {
				normalized, _ := catalogue.Normalize(raw)
				refs, err := assets.List()
				if err != nil {
					return err
				}
				for _, ref := range refs {
					if !normalized.ReferencesAsset(ref) {
						orphans = append(orphans, ref)
					}
				}
			}

			if len(issues) > 0 {
				rows := make([][]string, 0, len(issues))
				for _, issue := range issues {
					scope := issue.Category
					if scope == catalogue.Root {
						scope = "-"
					}
					rows = append(rows, []string{scope, issue.Key, issue.Problem, yesNo(issue.Dropped)})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Category", "Key", "Problem", "Dropped"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
					shouldColorize(out),
				))
				fmt.Fprintln(out)
			}
			for _, ref := range orphans {
				fmt.Fprintf(out, "Unreferenced asset: %s\n", ref)
			}
			if len(issues) == 0 {
				fmt.Fprintf(out, "Catalogue OK (%d memes)\n", raw.Len())
				return nil
			}
			return fmt.Errorf("%d catalogue issues found", len(issues))
		},
	}
	cmd.Flags().BoolVar(&showOrphans, "orphans", false, "Also list asset files no entry references")
	return cmd
}

func newCatalogueNormalizeCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Rewrite the catalogue file in canonical form",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			raw, exists, err := readRawCatalogue(cfg.Paths.CatalogueFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !exists {
				fmt.Fprintf(out, "No catalogue at %s\n", cfg.Paths.CatalogueFile)
				return nil
			}
			normalized, changed := catalogue.Normalize(raw)
			if !changed {
				fmt.Fprintln(out, "Catalogue already normalized")
				return nil
			}
			if dryRun {
				for _, issue := range catalogue.Audit(raw, nil) {
					fmt.Fprintln(out, issue.String())
				}
				fmt.Fprintf(out, "Would rewrite catalogue: %d -> %d memes\n", raw.Len(), normalized.Len())
				return nil
			}
			// Opening the registry persists the normalized form under the file lock.
			if _, _, err := ctx.openCatalogue(); err != nil {
				return err
			}
			fmt.Fprintf(out, "Catalogue normalized: %d -> %d memes\n", raw.Len(), normalized.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing the file")
	return cmd
}

func newCatalogueAddCommand(ctx *commandContext) *cobra.Command {
	var categoryFlag string
	var replace bool

	cmd := &cobra.Command{
		Use:   "add <audio-file> <key...>",
		Short: "Transcode a local audio file and register it under key",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source := args[0]
			if info, err := os.Stat(source); err != nil {
				return fmt.Errorf("audio file: %w", err)
			} else if !info.Mode().IsRegular() {
				return fmt.Errorf("audio file %s is not a regular file", source)
			}

			registry, assets, err := ctx.openCatalogue()
			if err != nil {
				return err
			}
			logger := ctx.cliLogger()
			transcoder := transcode.New(transcode.Options{
				Binary:      cfg.FFmpegBinary(),
				Bitrate:     cfg.Transcode.Bitrate,
				SampleRate:  cfg.Transcode.SampleRate,
				Channels:    cfg.Transcode.Channels,
				Timeout:     cfg.TranscodeTimeout(),
				MaxParallel: 1,
				Logger:      logger,
			})

			return ctx.withHistory(func(store *history.Store) error {
				pipeline, err := ingest.New(ingest.Options{
					Registry:   registry,
					Store:      assets,
					Transcoder: transcoder,
					Recorder:   store,
					Notifier:   notifications.NewService(cfg),
					Logger:     logger,
				})
				if err != nil {
					return err
				}
				defer pipeline.Close()

				entry, err := pipeline.IngestFile(cmd.Context(), ingest.Request{
					Category:  categoryFlag,
					Key:       strings.Join(args[1:], " "),
					Replace:   replace,
					Requester: localUser(),
					Source:    history.SourceCLI,
				}, source)
				if err != nil {
					return err
				}
				verb := "Added"
				if replace {
					verb = "Replaced"
				}
				scope := entry.Category
				if scope == catalogue.Root {
					scope = "(root)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %q in %s -> %s\n", verb, entry.Key, scope, entry.Asset)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&categoryFlag, "category", "", "Category to add the meme to (created when missing)")
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace the audio of an existing key")
	return cmd
}

func newCatalogueRenameCommand(ctx *commandContext) *cobra.Command {
	var categoryFlag string

	cmd := &cobra.Command{
		Use:   "rename <old-key> <new-key>",
		Short: "Rename an entry in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, _, err := ctx.openCatalogue()
			if err != nil {
				return err
			}
			from := catalogue.Key(args[0])
			to := catalogue.Key(args[1])
			if err := registry.Rename(cmd.Context(), categoryFlag, from, to); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %q to %q\n", args[0], strings.TrimSpace(args[1]))
			return nil
		},
	}
	cmd.Flags().StringVar(&categoryFlag, "category", "", "Category holding the entry")
	return cmd
}

func localUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}
