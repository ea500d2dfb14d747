package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/listenupapp/testimonials/internal/config"
	"github.com/listenupapp/testimonials/internal/export"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Generate playlists and write the site artifact",
		Args:  cobra.NoArgs,
		RunE: ctx.run(func(cmd *cobra.Command, args []string) error {
			cfg, err := invoke[*config.Config](ctx)
			if err != nil {
				return err
			}
			exporter, err := invoke[*export.Exporter](ctx)
			if err != nil {
				return err
			}

			res, err := exporter.Export(cmd.Context(), export.Options{OutputPath: cfg.Export.Path})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d testimonials and %d playlists to %s (%s, sha256 %s)\n",
				res.Testimonials, res.Destinations, res.Path, humanize.Bytes(uint64(res.Size)), res.Checksum[:12])
			return nil
		}),
	}
	cmd.Flags().StringVar(&ctx.overrides.ExportPath, "out", "", "Artifact path (default: EXPORT_PATH or {data}/testimonials.json)")
	return cmd
}
