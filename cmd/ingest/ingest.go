package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timmy/portdesk/internal/domain"
	"github.com/timmy/portdesk/internal/logger"
	"github.com/timmy/portdesk/internal/source/loader"
)

var kbCmd = &cobra.Command{
	Use:   "kb <path>",
	Short: "Ingest a knowledge base document (.txt, .md, .docx)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd, args[0], domain.CollectionKnowledgeBase)
	},
}

var casesCmd = &cobra.Command{
	Use:   "cases <path>",
	Short: "Ingest a case log (.csv, .xlsx), one document per row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !loader.IsCaseLog(args[0]) {
			return fmt.Errorf("%w: case logs must be .csv or .xlsx", loader.ErrUnsupportedFormat)
		}
		return runIngest(cmd, args[0], domain.CollectionCaseHistory)
	},
}

func init() {
	casesCmd.Flags().String("sheet", "", "Worksheet to read (default: active sheet)")
	for _, c := range []*cobra.Command{kbCmd, casesCmd} {
		c.Flags().String("collection", "", "Override the target collection")
		rootCmd.AddCommand(c)
	}
}

func runIngest(cmd *cobra.Command, path, collection string) error {
	ctx := cmd.Context()
	if override, _ := cmd.Flags().GetString("collection"); override != "" {
		collection = override
	}
	sheet, _ := cmd.Flags().GetString("sheet")

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	src, err := loader.Open(ctx, path, e.store, loader.Options{Sheet: sheet})
	if err != nil {
		return err
	}

	log := logger.GetDefault().WithFields(logger.Fields{
		logger.FieldSource:     path,
		logger.FieldCollection: collection,
	})
	log.WithField(logger.FieldCount, src.Len()).Info("Starting ingestion")

	stats, err := e.retrieval.Ingest(ctx, src, collection)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", path, err)
	}

	log.WithFields(logger.Fields{
		"rows":     stats.Rows,
		"chunks":   stats.Chunks,
		"upserted": stats.Upserted,
		"skipped":  stats.Skipped,
		"failed":   stats.Failed,
	}).Info("Ingestion completed")

	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: %d rows, %d chunks, %d upserted, %d skipped, %d failed\n",
		path, collection, stats.Rows, stats.Chunks, stats.Upserted, stats.Skipped, stats.Failed)
	return nil
}
