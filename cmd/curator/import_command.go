package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/listenupapp/testimonials/internal/di/providers"
	"github.com/listenupapp/testimonials/internal/domain"
	"github.com/listenupapp/testimonials/internal/logger"
	"github.com/listenupapp/testimonials/internal/pipeline"
	"github.com/listenupapp/testimonials/internal/rules"
	"github.com/listenupapp/testimonials/internal/source"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var (
		cfg     source.Config
		workers int
		seed    bool
	)

	cmd := &cobra.Command{
		Use:   "import <source>",
		Short: "Import testimonials from a source",
		Long: "Import testimonials from a source (" + strings.Join(source.Kinds(), ", ") + ").\n\n" +
			"Per-record failures are reported and the command still succeeds; only a source\n" +
			"that cannot be read or rejects its credentials makes it exit non-zero.",
		Args: cobra.ExactArgs(1),
		RunE: ctx.run(func(cmd *cobra.Command, args []string) error {
			cfg.Kind = args[0]
			if workers > 0 {
				ctx.overrides.ImportWorkers = strconv.Itoa(workers)
			}

			log, err := invoke[*logger.Logger](ctx)
			if err != nil {
				return err
			}
			adapter, err := source.New(cfg, log.Logger)
			if err != nil {
				return err
			}

			if seed {
				if err := seedTags(cmd.Context(), ctx, io.Discard); err != nil {
					return err
				}
			}

			orch, err := invoke[*pipeline.Orchestrator](ctx)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, runErr := orch.Run(runCtx, adapter)
			printRunReport(cmd.OutOrStdout(), report)
			return runErr
		}),
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Path, "file", "", "Path to a json or csv export")
	flags.StringVar(&cfg.URL, "url", "", "Endpoint for the http source")
	flags.StringVar(&cfg.Token, "token", os.Getenv("CURATOR_SOURCE_TOKEN"), "Bearer token for the http source (default: $CURATOR_SOURCE_TOKEN)")
	flags.StringVar(&cfg.Platform, "platform", "", "Platform for records that do not name one")
	flags.IntVar(&cfg.MaxPages, "max-pages", 0, "Page limit for the http source (default 50)")
	flags.IntVar(&workers, "workers", 0, "Concurrent record workers (default: IMPORT_WORKERS)")
	flags.StringVar(&ctx.overrides.MetricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	flags.BoolVar(&seed, "seed-tags", true, "Create missing default tags before importing")

	return cmd
}

func printRunReport(w io.Writer, r *domain.RunReport) {
	if r == nil {
		return
	}

	fmt.Fprintf(w, "Run %s (%s) %s in %s\n", r.RunID, r.Source, r.Status, r.Duration().Round(time.Millisecond))
	if r.FatalError != "" {
		fmt.Fprintf(w, "Fatal: %s\n", r.FatalError)
	}

	rows := [][]string{
		{"Fetched", strconv.Itoa(r.Fetched)},
		{"Imported", strconv.Itoa(r.Imported)},
		{"Updated", strconv.Itoa(r.Updated)},
		{"Duplicates", strconv.Itoa(r.Duplicates)},
		{"Failed", strconv.Itoa(r.FailedImports)},
		{"New avatars", strconv.Itoa(r.NewAvatars)},
		{"Mappings saved", strconv.Itoa(r.MappingsSaved)},
	}
	fmt.Fprintln(w, renderTable([]string{"Count", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(r.Errors) == 0 {
		return
	}
	errRows := make([][]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		errRows = append(errRows, []string{e.ID, e.Stage, e.Message})
	}
	fmt.Fprintf(w, "%d record error(s):\n", len(r.Errors))
	fmt.Fprintln(w, renderTable([]string{"Testimonial", "Stage", "Error"}, errRows, nil))
}

// seedTags creates the default tags that do not exist yet.
func seedTags(ctx context.Context, cc *commandContext, w io.Writer) error {
	st, err := invoke[*providers.StoreHandle](cc)
	if err != nil {
		return err
	}
	set, err := invoke[*rules.Set](cc)
	if err != nil {
		return err
	}
	created, err := st.SeedDefaultTags(ctx, set.Tags())
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Seeded %d of %d default tags\n", created, len(set.Tags()))
	return nil
}
