// cmd/synthctl/catalog_commands.go
package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/VidSynth/vidsynth-studio-go/internal/catalog"
	"github.com/VidSynth/vidsynth-studio-go/internal/intel"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

// newCatalogCommand lists catalog assets with the same filtering the studio
// view applies: category selection, filename search, and tag OR-filtering.
func newCatalogCommand(ctx *commandContext) *cobra.Command {
	var (
		categoryFlag string
		searchFlag   string
		tagsFlag     []string
		recentFlag   bool
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List catalog assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.gatewayClient()
			if err != nil {
				return err
			}

			store := catalog.NewStore(client, intel.NewCache(client), nil, ctx.logger)
			if err := store.Refresh(cmd.Context()); err != nil {
				return err
			}

			filter := model.CatalogFilter{SearchQuery: searchFlag, Tags: tagsFlag}
			if categoryFlag != "" {
				kind, err := model.ParseAssetKind(categoryFlag)
				if err != nil {
					return err
				}
				filter.Category = &kind
			}

			view := store.View(filter)
			assets := view.All
			if recentFlag {
				assets = view.Recent
			}

			rows := make([][]string, 0, len(assets))
			for _, a := range assets {
				rows = append(rows, []string{
					string(a.Kind),
					a.Filename,
					a.SessionID,
					formatSize(a.Size),
					time.Unix(a.CreatedAt, 0).UTC().Format(time.RFC3339),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"KIND", "FILENAME", "SESSION", "SIZE", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&categoryFlag, "category", "", "Limit to one collection (clip, reference, result)")
	cmd.Flags().StringVar(&searchFlag, "search", "", "Case-insensitive filename substring")
	cmd.Flags().StringSliceVar(&tagsFlag, "tag", nil, "Only clips carrying any of these tags")
	cmd.Flags().BoolVar(&recentFlag, "recent", false, "Show only the most recent assets")

	return cmd
}

// newRenameCommand renames one catalog asset.
func newRenameCommand(ctx *commandContext) *cobra.Command {
	var sessionFlag string

	cmd := &cobra.Command{
		Use:   "rename <kind> <old-filename> <new-filename>",
		Short: "Rename a catalog asset",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseAssetKind(args[0])
			if err != nil {
				return err
			}

			client, err := ctx.gatewayClient()
			if err != nil {
				return err
			}

			store := catalog.NewStore(client, intel.NewCache(client), nil, ctx.logger)
			if err := store.Refresh(cmd.Context()); err != nil {
				return err
			}
			if err := store.Rename(cmd.Context(), kind, sessionFlag, args[1], args[2]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s %q to %q\n", kind, args[1], args[2])
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "", "Owning session id (required for clips)")

	return cmd
}

// newDeleteCommand deletes a clip or a result.
func newDeleteCommand(ctx *commandContext) *cobra.Command {
	var sessionFlag string

	cmd := &cobra.Command{
		Use:   "delete <kind> <filename>",
		Short: "Delete a clip or a result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseAssetKind(args[0])
			if err != nil {
				return err
			}

			client, err := ctx.gatewayClient()
			if err != nil {
				return err
			}

			store := catalog.NewStore(client, intel.NewCache(client), nil, ctx.logger)
			if err := store.Refresh(cmd.Context()); err != nil {
				return err
			}

			switch kind {
			case model.AssetKindClip:
				err = store.DeleteClip(cmd.Context(), sessionFlag, args[1])
			case model.AssetKindResult:
				err = store.DeleteResult(cmd.Context(), args[1])
			default:
				return fmt.Errorf("references cannot be deleted")
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %q\n", kind, args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionFlag, "session", "", "Owning session id (required for clips)")

	return cmd
}

// formatSize renders a byte count with a binary unit suffix.
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return strconv.FormatInt(size, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
