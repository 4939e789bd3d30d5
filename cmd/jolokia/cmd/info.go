package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jolokia-tools/jolokia-cli/internal/core"
)

var infoCmd = &cobra.Command{
	Use:   "info <archive>",
	Short: "Inspect a downloaded agent archive",
	Long: `Report what an agent archive contains: its type and version, whether an
access policy is embedded, and (for web archives) the authentication and
JSR-160 proxy configuration of its deployment descriptor.

Everything is derived from the archive contents; the file name plays no
part. With --verify the matching signature is re-downloaded from the
repositories and checked against the local file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		verify, _ := cmd.Flags().GetBool("verify")
		return runInfo(cmd, args[0], verify)
	},
}

func runInfo(cmd *cobra.Command, archivePath string, verify bool) error {
	p := newPrinter(cmd)

	info, err := core.Inspect(archivePath)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Type:    %s\n", info.Type)
	fmt.Fprintf(os.Stdout, "Version: %s\n", info.Version)
	fmt.Fprintf(os.Stdout, "Policy:  %s\n", yesNo(info.HasPolicy))
	if info.Type == core.AgentWar {
		if info.SecurityEnabled {
			fmt.Fprintf(os.Stdout, "Security: enabled (role %q)\n", info.SecurityRole)
		} else {
			fmt.Fprintf(os.Stdout, "Security: disabled\n")
		}
		fmt.Fprintf(os.Stdout, "JSR-160 proxy: %s\n", enabledDisabled(info.ProxyEnabled))
	}

	if !verify {
		return nil
	}

	client, err := newHTTPClient(cmd.Flags())
	if err != nil {
		return err
	}
	doc, err := loadMetadata(cmd, client, p)
	if err != nil {
		// Verification needs metadata; inspection itself already succeeded.
		p.Warnf("%s", describeUnavailable(err))
		return nil
	}
	fetcher, err := newFetcher(cmd, client, p)
	if err != nil {
		return err
	}

	method, err := fetcher.VerifyExisting(doc, info.Type, info.Version, archivePath, repositoryOverride(cmd.Flags()))
	if err != nil {
		return fmt.Errorf("verifying %s: %w", archivePath, err)
	}
	p.Successf("Signature OK (%s)", method)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func enabledDisabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func init() {
	infoCmd.Flags().Bool("verify", false, "Re-download the signature and verify the archive")
	infoCmd.Flags().String("verify-fallback", core.VerifySHA256, "Weakest acceptable checksum when no PGP signature exists (sha256, sha1, md5)")
	rootCmd.AddCommand(infoCmd)
}
