package main

import (
	"github.com/spf13/cobra"
)

// analyzeCmd returns the "analyze" command, which stops after
// cross-validation and writes only the audit.
func analyzeCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "analyze [snapshot]",
		Short: "Analyse and cross-validate a snapshot without emitting content",
		Long: `Read, classify and analyse the snapshot, cross-validate the pattern and
model analyses and write the audit reports. No sources, databases or models
are written.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args, &opts, true)
		},
	}
	opts.register(cmd)
	return cmd
}
