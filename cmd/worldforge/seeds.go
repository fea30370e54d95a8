package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/julianshen/worldforge/internal/seeds"
)

// seedsCmd returns the "seeds" command with init and show subcommands.
func seedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seeds",
		Short: "Manage the seed library cache",
	}
	cmd.AddCommand(seedsInitCmd())
	cmd.AddCommand(seedsShowCmd())
	return cmd
}

// resolveSeedsDir returns the cache directory from the flag or the config.
func resolveSeedsDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir != "" {
		return dir, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Paths.SeedsDir, nil
}

func seedsInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialise the seed cache from the bundled defaults",
		Long:  "Copy the bundled seed library into the cache directory. An existing cache is left untouched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := resolveSeedsDir(cmd)
			if err != nil {
				return err
			}
			created, err := seeds.EnsureCache(dir)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Seed cache initialised in %s\n", dir)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Seed cache already present in %s\n", dir)
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "seed cache directory (default: paths.seeds_dir)")
	return cmd
}

func seedsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the size of each seed index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var lib *seeds.Library
			var err error
			if bundled, _ := cmd.Flags().GetBool("bundled"); bundled {
				lib, err = seeds.Default()
			} else {
				dir, derr := resolveSeedsDir(cmd)
				if derr != nil {
					return derr
				}
				lib, err = seeds.Load(dir)
			}
			if err != nil {
				return fmt.Errorf("loading seeds: %w", err)
			}

			sizes := lib.Sizes()
			names := make([]string, 0, len(sizes))
			for name := range sizes {
				names = append(names, name)
			}
			slices.Sort(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tENTRIES")
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%d\n", name, sizes[name])
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("dir", "", "seed cache directory (default: paths.seeds_dir)")
	cmd.Flags().Bool("bundled", false, "show the bundled defaults instead of the cache")
	return cmd
}
