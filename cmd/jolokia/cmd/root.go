package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time. Version also anchors the
// agent compatibility check: metadata version ranges are matched against it.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "jolokia [archive]",
	Short: "Manage deployable Jolokia agent artifacts",
	Long: `jolokia downloads, inspects and repackages the deployable agents of the
Jolokia JMX-over-HTTP bridge.

Run without arguments to download the latest compatible web archive agent.
Run with a single archive path to inspect it. Subcommands give full control:

  jolokia download --agent war:1.2
  jolokia info jolokia.war
  jolokia repack --security-role ops jolokia.war`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return runInfo(cmd, args[0], false)
		}
		return runDownload(cmd, downloadOptions{agentSpec: "war"})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("jolokia %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolP("quiet", "q", false, "Suppress normal output")
	pf.BoolP("verbose", "v", false, "Print per-repository download progress")
	pf.Bool("no-color", false, "Disable colored output")
	pf.Bool("no-cache", false, "Ignore the metadata cache and refresh from the remote")
	pf.String("repository", "", "Use only this repository base URL")
	pf.String("proxy", "", "HTTP proxy URL for downloads")
	pf.String("proxy-user", "", "Username for the HTTP proxy")
	pf.String("proxy-password", "", "Password for the HTTP proxy")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
