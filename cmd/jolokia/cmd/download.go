package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jolokia-tools/jolokia-cli/internal/core"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download an agent artifact or configuration template",
	Long: `Download a versioned agent artifact from the configured repositories.

The artifact is selected with --agent <name>[:<version>] (or --template for
plain configuration templates). Without an explicit version the latest
version compatible with this client is resolved from the agent metadata.

Repositories are tried in order; the first download that completes and
passes signature verification wins. Signatures are checked with PGP when a
keyring is installed, falling back to published checksums as allowed by
--verify-fallback.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, _ := cmd.Flags().GetString("agent")
		template, _ := cmd.Flags().GetString("template")
		outDir, _ := cmd.Flags().GetString("outdir")

		if agent != "" && template != "" {
			return fmt.Errorf("--agent and --template are mutually exclusive")
		}

		opts := downloadOptions{agentSpec: agent, templateSpec: template, outDir: outDir}
		if opts.agentSpec == "" && opts.templateSpec == "" {
			opts.agentSpec = "war"
		}
		return runDownload(cmd, opts)
	},
}

type downloadOptions struct {
	agentSpec    string // name[:version], empty when a template is requested
	templateSpec string
	outDir       string
}

func runDownload(cmd *cobra.Command, opts downloadOptions) error {
	p := newPrinter(cmd)

	specInput := opts.agentSpec
	if opts.templateSpec != "" {
		specInput = opts.templateSpec
	}
	spec, err := core.ParseArtifactSpec(specInput)
	if err != nil {
		return err
	}

	client, err := newHTTPClient(cmd.Flags())
	if err != nil {
		return err
	}

	doc, err := loadMetadata(cmd, client, p)
	if err != nil {
		return err
	}

	// Validate the name before any resolution or download.
	if opts.templateSpec != "" {
		if _, err := core.LookupTemplate(doc, spec.Name); err != nil {
			return err
		}
	} else {
		if _, err := core.LookupAgent(doc, spec.Name); err != nil {
			return err
		}
	}

	resolver := core.NewVersionResolver(doc, Version)
	resolved, err := resolver.Resolve(spec)
	if err != nil {
		return err
	}
	if resolved.Warning != "" {
		p.Warnf("%s", resolved.Warning)
	}
	p.Verbosef("resolved %s to version %s", spec.Name, resolved.Version)

	fetcher, err := newFetcher(cmd, client, p)
	if err != nil {
		return err
	}

	fetchOpts := core.FetchOptions{
		OutDir:       opts.outDir,
		Repositories: repositoryOverride(cmd.Flags()),
	}

	var artifact *core.ResolvedArtifact
	if opts.templateSpec != "" {
		artifact, err = fetcher.FetchTemplate(doc, spec.Name, resolved.Version, fetchOpts)
	} else {
		artifact, err = fetcher.FetchAgent(doc, spec.Name, resolved.Version, fetchOpts)
	}
	if err != nil {
		return err
	}

	p.Successf("Downloaded %s %s to %s", artifact.Name, artifact.Version, artifact.LocalPath)
	if artifact.Verified != "none" {
		p.Infof("  Verified: %s", artifact.Verified)
	}
	p.Verbosef("  Source: %s", artifact.DownloadURL)
	return nil
}

func init() {
	downloadCmd.Flags().String("agent", "", "Agent to download as <name>[:<version>] (e.g. war:1.2)")
	downloadCmd.Flags().String("template", "", "Configuration template to download as <name>[:<version>]")
	downloadCmd.Flags().String("outdir", "", "Directory to write the artifact to (default: current directory)")
	downloadCmd.Flags().String("verify-fallback", core.VerifySHA256, "Weakest acceptable checksum when no PGP signature exists (sha256, sha1, md5)")
	rootCmd.AddCommand(downloadCmd)
}
