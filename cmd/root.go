package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/StinkyLord/gh-sbom-export/internal/config"
	"github.com/StinkyLord/gh-sbom-export/internal/logger"
)

var (
	flagConfig   string
	flagLogLevel string
	flagLogFile  string
)

var rootCmd = &cobra.Command{
	Use:   "gh-sbom-export",
	Short: "Export GitHub dependency graphs as CycloneDX SBOMs",
	Long: `gh-sbom-export downloads the dependency-graph SBOM GitHub builds for a
repository and rewrites it as a CycloneDX 1.4 JSON bill of materials.

For every repository it:
  • fetches the SPDX package list from the dependency-graph API
  • drops the repository's own entry and CI workflow actions
  • normalizes package identifiers and version strings
  • writes {repo}.json, optionally uploading a copy to S3

Settings come from a YAML config file, a .env file, the environment
(GITHUB_TOKEN, SBOM_OWNER, SBOM_REPOS, ...) and flags, in that order.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "",
		"Path to a YAML config file (default: first of "+defaultConfigHint()+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Also write logs to this file")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(createVersionCommand())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigHint() string {
	paths := config.GetConfigPaths()
	if len(paths) == 0 {
		return "none"
	}
	return paths[0] + ", ..."
}

// loadConfig resolves the config file, loads it and applies the persistent
// flags. Command-specific flags are applied by the caller before Validate.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = config.FindConfigFile()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = flagLogLevel
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = flagLogFile
	}
	return cfg, nil
}

// initLogger configures the global logger from cfg and returns its cleanup.
func initLogger(cfg *config.Config) (func(), error) {
	_, cleanup, err := logger.InitWithConfig(logger.Config{
		Level:    cfg.Logging.Level,
		FilePath: cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}
	return cleanup, nil
}
