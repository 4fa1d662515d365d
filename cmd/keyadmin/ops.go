package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"lang_gateway/internal/models"
	"lang_gateway/internal/queue"
	"lang_gateway/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history <key>",
	Short: "Show the audited calls of an API key, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect usage records that could not be persisted",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered usage records",
	RunE:  runDLQList,
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Put a dead-lettered usage record back on the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runDLQRetry,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show connection pool, cache and queue statistics",
	RunE:  runStats,
}

var (
	historySince time.Duration
	historyLimit int
	dlqLimit     int
)

func init() {
	rootCmd.AddCommand(historyCmd, dlqCmd, statsCmd)
	dlqCmd.AddCommand(dlqListCmd, dlqRetryCmd)

	historyCmd.Flags().DurationVar(&historySince, "since", 24*time.Hour, "how far back to look")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of records")

	dlqListCmd.Flags().IntVar(&dlqLimit, "limit", 100, "maximum number of items (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	deps, err := openDependencies(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	end := time.Now().UTC()
	records, err := deps.DB.NewUsageRepository().GetByAPIKey(cmd.Context(), args[0], end.Add(-historySince), end, historyLimit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No usage recorded.")
		return nil
	}
	printHistory(cmd.OutOrStdout(), records)
	return nil
}

func runDLQList(cmd *cobra.Command, args []string) error {
	deps, err := openDependencies(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	items, err := deps.UsageWorker.GetDeadLetterItems(cmd.Context(), dlqLimit)
	if err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Dead letter queue is empty.")
		return nil
	}
	printDeadLetters(cmd.OutOrStdout(), items)
	return nil
}

func runDLQRetry(cmd *cobra.Command, args []string) error {
	deps, err := openDependencies(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.UsageWorker.RetryDeadLetterItem(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to retry item: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Item re-queued.")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	deps, err := openDependencies(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	queued, err := deps.UsageWorker.GetQueueLength(cmd.Context())
	if err != nil {
		return err
	}

	printStats(cmd.OutOrStdout(), deps.DB.GetStats(), deps.Redis.PoolStats(), queued)
	return nil
}

func printHistory(out io.Writer, records []*models.UsageRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSERVICE\tTYPE\tLANG\tRAW\tBILLABLE\tACCEPTED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%t\n",
			r.CreatedAt.Format(time.RFC3339), r.Service, r.RequestType, r.Language,
			r.RawCharacters, r.BillableCharacters, r.Accepted)
	}
	w.Flush()
}

func printDeadLetters(out io.Writer, items []queue.DeadLetterItem[*models.UsageRecord]) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFAILED AT\tERROR")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\n", item.ID, item.Timestamp.Format(time.RFC3339), item.Error)
	}
	w.Flush()
}

func printStats(out io.Writer, db storage.DBStats, pool *redis.PoolStats, queued int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Postgres connections:\t%d open, %d in use, %d idle\n", db.Pool.OpenConnections, db.Pool.InUse, db.Pool.Idle)
	fmt.Fprintf(w, "Postgres waits:\t%d (%s)\n", db.Pool.WaitCount, db.Pool.WaitDuration)
	fmt.Fprintf(w, "Key cache:\t%d hits, %d misses, %d evicted\n",
		db.KeyCache.Hits, db.KeyCache.Misses, db.KeyCache.Evicted)
	fmt.Fprintf(w, "Redis connections:\t%d total, %d idle, %d timeouts\n", pool.TotalConns, pool.IdleConns, pool.Timeouts)
	fmt.Fprintf(w, "Usage queue:\t%d pending\n", queued)
	w.Flush()
}
