package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/StinkyLord/gh-sbom-export/internal/rules"
	"github.com/StinkyLord/gh-sbom-export/internal/version"
)

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Run:   executeVersion,
	}
}

func executeVersion(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s v%s\n", version.Toolname, version.Version)
	fmt.Fprintf(out, "Build Date: %s\n", version.BuildDate)
	fmt.Fprintf(out, "Commit: %s\n", version.CommitSHA)
	fmt.Fprintf(out, "Rules: %s\n", rules.Version)
}
