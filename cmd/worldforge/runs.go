package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/julianshen/worldforge/internal/store"
)

// runsCmd returns the "runs" command, which lists recorded pipeline runs.
func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbPath, _ := cmd.Flags().GetString("store")
			if dbPath == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dbPath = cfg.Paths.CacheDBPath()
			}
			limit, _ := cmd.Flags().GetInt("limit")

			s, err := store.NewStore(dbPath)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("listing runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tDURATION\tVERDICT\tPARTIAL\tSNAPSHOT\tERROR")
			for _, r := range runs {
				verdict := r.Verdict
				if verdict == "" {
					verdict = "-"
				}
				var took string
				if !r.FinishedAt.IsZero() {
					took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
					r.StartedAt.Format(time.RFC3339), took, verdict, r.Partial, r.Snapshot, r.Fatal)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("store", "", "path to the run database (default: paths.out_dir/llm_cache.db)")
	cmd.Flags().Int("limit", 20, "maximum number of runs to show")
	return cmd
}
