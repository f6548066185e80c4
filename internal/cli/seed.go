package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vjcreations/storefront/internal/seed"
)

var seedFlags struct {
	file         string
	dryRun       bool
	concurrency  int
	batchSize    int
	skipExisting bool
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import fixture accounts and products",
	Long: `Import accounts and products from a YAML fixture file. Without --file
the bundled catalog of event services is imported.

Records whose email or slug already exists are skipped unless
--skip-existing=false, in which case they are reported as failures.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFlags.file, "file", "f", "", "fixture file (defaults to the bundled fixtures)")
	seedCmd.Flags().BoolVar(&seedFlags.dryRun, "dry-run", false, "parse and count without writing")
	seedCmd.Flags().IntVar(&seedFlags.concurrency, "concurrency", 4, "concurrent product batches")
	seedCmd.Flags().IntVar(&seedFlags.batchSize, "batch-size", 10, "products per batch")
	seedCmd.Flags().BoolVar(&seedFlags.skipExisting, "skip-existing", true, "skip records that already exist")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	fixtures, err := seed.Load(seedFlags.file)
	if err != nil {
		return err
	}

	env, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	config := seed.DefaultConfig()
	config.DryRun = seedFlags.dryRun
	config.Concurrency = seedFlags.concurrency
	config.BatchSize = seedFlags.batchSize
	config.SkipExisting = seedFlags.skipExisting

	result, err := seed.NewSeeder(env.store, env.store, config, env.logger).Run(cmd.Context(), fixtures)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "records: %d created: %d skipped: %d failed: %d (%s)\n",
		result.TotalRecords, result.Created, result.Skipped, result.Failed, result.ProcessingTime)
	for _, e := range result.ErrorDetails {
		fmt.Fprintf(out, "  %s: %s\n", e.Record, e.Error)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d records failed", result.Failed)
	}
	return nil
}
