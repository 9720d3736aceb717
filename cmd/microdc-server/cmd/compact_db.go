package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var compactDBCmd = &cobra.Command{
	Use:   "compact-db",
	Short: "Compact the state store and refresh planner statistics",
	RunE:  runCompactDB,
}

func init() {
	rootCmd.AddCommand(compactDBCmd)
}

func runCompactDB(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	env, err := loadEnvironment(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	logger := env.logger

	sizeBefore, err := env.store.SizeBytes(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Database size before: %.2f MB\n", megabytes(sizeBefore))

	logger.Info("compacting database", zap.String("driver", env.store.Driver()))
	fmt.Fprintln(out, "\nRunning VACUUM and ANALYZE (this may take a while)...")
	if err := env.store.Compact(ctx); err != nil {
		return err
	}

	sizeAfter, err := env.store.SizeBytes(ctx)
	if err != nil {
		return err
	}
	saved := sizeBefore - sizeAfter
	percentSaved := 0.0
	if sizeBefore > 0 {
		percentSaved = float64(saved) / float64(sizeBefore) * 100
	}

	fmt.Fprintf(out, "\nDatabase size after:  %.2f MB\n", megabytes(sizeAfter))
	fmt.Fprintf(out, "Space reclaimed:      %.2f MB (%.1f%%)\n", megabytes(saved), percentSaved)

	logger.Info("compaction completed",
		zap.Int64("size_before", sizeBefore),
		zap.Int64("size_after", sizeAfter),
		zap.Int64("saved", saved),
	)

	counts, err := env.store.RowCounts(ctx)
	if err != nil {
		logger.Warn("failed to count table rows", zap.Error(err))
	} else {
		fmt.Fprintln(out, "\nTable Statistics:")
		fmt.Fprintln(out, "=====================================")
		tables := make([]string, 0, len(counts))
		for table := range counts {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		for _, table := range tables {
			fmt.Fprintf(out, "  %-20s %d rows\n", table+":", counts[table])
		}
	}

	fmt.Fprintln(out, "\n✓ Database compaction completed successfully")
	return nil
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
