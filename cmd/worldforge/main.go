// cmd/worldforge/main.go
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/julianshen/worldforge/internal/config"
	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/runner"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	configPath   string
	modelFlag    string
	logLevelFlag string
	envFileFlag  string
)

func versionString() string {
	return fmt.Sprintf("worldforge %s (commit: %s, built: %s)", version, commit, date)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "worldforge",
		Short: "Ingest a world snapshot into game content",
		Long: `worldforge reads an exported world snapshot, classifies and correlates its
entities, cross-validates the result against a model-assisted analysis and
publishes generated sources, a game content database and audit reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			initLogging()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/worldforge/config.toml)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "override model name")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", "", "dotenv file to load (default: .env)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(seedsCmd())
	rootCmd.AddCommand(hexCmd())
	rootCmd.AddCommand(runsCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		code := runner.ExitFatal
		var ee *runner.ExitError
		if errors.As(err, &ee) {
			code = ee.Code
		}
		os.Exit(code)
	}
}

// initLogging installs the console logger. The flag wins over the
// configured level; a config that fails to load is reported later by the
// command itself.
func initLogging() {
	level := logLevelFlag
	if level == "" {
		if cfg, err := loadConfig(); err == nil {
			level = cfg.Logging.Level
		}
	}
	logger.Init(logger.NewConsole(logger.ConsoleParams{Level: level}))
}

func loadConfig() (*config.Config, error) {
	cfgPath := configPath
	if cfgPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		cfgPath = filepath.Join(home, ".config", "worldforge", "config.toml")
	}

	if envFileFlag != "" {
		config.LoadDotEnv(envFileFlag)
	} else {
		config.LoadDotEnv()
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyEnv()

	if modelFlag != "" {
		cfg.LLM.Model = modelFlag
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}

	return cfg, nil
}
