package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/StinkyLord/gh-sbom-export/internal/github"
	"github.com/StinkyLord/gh-sbom-export/internal/logger"
	"github.com/StinkyLord/gh-sbom-export/internal/output"
	"github.com/StinkyLord/gh-sbom-export/internal/pipeline"
	"github.com/StinkyLord/gh-sbom-export/internal/transform"
	"github.com/StinkyLord/gh-sbom-export/internal/version"
)

var (
	flagOwner      string
	flagRepos      []string
	flagOutputDir  string
	flagWorkers    int
	flagNoProgress bool
)

var exportCmd = &cobra.Command{
	Use:   "export [owner/repo | repo ...]",
	Short: "Export the dependency graph of one or more repositories",
	Long: `Export the dependency graph of one or more repositories as CycloneDX 1.4
JSON, one {repo}.json per repository.

Repositories given as arguments or with --repo replace the configured list.
A repository without an owner uses --owner (or SBOM_OWNER / owner: in the
config file). Processing continues past a failing repository; the command
exits non-zero if any repository failed.

Examples:
  gh-sbom-export export octo/hello
  gh-sbom-export export --owner octo hello world --output-dir ./sbom
  gh-sbom-export export --config gh-sbom-export.yml --output-dir -`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&flagOwner, "owner", "", "Default owner for repositories given without one")
	exportCmd.Flags().StringSliceVarP(&flagRepos, "repo", "r", nil, "Repository to export (repeatable, comma separated)")
	exportCmd.Flags().StringVarP(&flagOutputDir, "output-dir", "o", "", "Directory for {repo}.json files (use '-' for stdout)")
	exportCmd.Flags().IntVarP(&flagWorkers, "workers", "w", 0, "Repositories processed concurrently")
	exportCmd.Flags().BoolVar(&flagNoProgress, "no-progress", false, "Disable the progress bar")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("owner") {
		cfg.Owner = flagOwner
	}
	if repos := append(append([]string{}, args...), flagRepos...); len(repos) > 0 {
		cfg.Repos = repos
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = flagOutputDir
	}
	if flags.Changed("workers") {
		cfg.Workers = flagWorkers
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cleanup, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	log := logger.Logger()

	repos, err := cfg.Repositories()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%s v%s\n", version.Toolname, version.Version)
	log.Debugf("Rule set %s, %d repositories, %d workers", cfg.RuleSet().Version, len(repos), cfg.Workers)
	if cfg.GitHub.Token == "" {
		log.Warnf("No GitHub token configured; only public repositories can be exported")
	}

	client, err := github.NewClient(&github.ClientConfig{
		BaseURL:   cfg.GitHub.BaseURL,
		Token:     cfg.GitHub.Token,
		Timeout:   cfg.GitHub.Timeout,
		RateLimit: cfg.GitHub.RateLimit,
		RateBurst: cfg.GitHub.RateBurst,
		UserAgent: version.Toolname + "/" + version.Version,
	})
	if err != nil {
		return fmt.Errorf("creating GitHub client: %w", err)
	}

	opts := pipeline.Options{
		OutputDir: cfg.OutputDir,
		Workers:   cfg.Workers,
		Progress:  progressWriter(len(repos)),
	}
	if s3 := cfg.Publish.S3; s3.Enabled {
		pub, err := output.NewS3Publisher(output.S3Config{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			UseSSL:    s3.UseSSL,
			Prefix:    s3.Prefix,
		})
		if err != nil {
			return fmt.Errorf("configuring S3 publishing: %w", err)
		}
		opts.Publisher = pub
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := pipeline.New(client, transform.NewAssembler(cfg.RuleSet()), opts)
	result := runner.Run(ctx, repos)

	for _, rr := range result.Repos {
		if rr.Err != nil {
			fmt.Fprintf(os.Stderr, "FAILED  %s: %v\n", rr.Repository.Slug(), rr.Err)
			continue
		}
		if rr.Path != output.StdoutTarget {
			fmt.Fprintf(os.Stderr, "OK      %s: %d component(s) -> %s\n", rr.Repository.Slug(), rr.Components, rr.Path)
		}
	}

	return result.Err()
}

// progressWriter returns stderr when a progress bar makes sense.
func progressWriter(repos int) io.Writer {
	if flagNoProgress || repos < 2 || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return os.Stderr
}
