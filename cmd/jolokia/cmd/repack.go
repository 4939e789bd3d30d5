package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jolokia-tools/jolokia-cli/internal/core"
)

const defaultSecurityRole = "jolokia"

var repackCmd = &cobra.Command{
	Use:   "repack <archive>",
	Short: "Rewrite an agent archive's policy or descriptor configuration",
	Long: `Repackage an agent archive in place: embed or remove an access policy
file, and (for web archives) toggle authentication or the JSR-160 proxy in
the deployment descriptor.

Edits are idempotent and atomic: unrelated archive content stays
byte-identical, and on any failure the original file is left untouched.

  jolokia repack --policy jolokia.war             embed the default policy
  jolokia repack --policy-file my.xml jolokia.war embed a custom policy
  jolokia repack --security-role ops jolokia.war  require role "ops"
  jolokia repack --no-security jolokia.war        drop authentication`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd)
		fs := cmd.Flags()

		policy, err := triState(fs, "policy")
		if err != nil {
			return err
		}
		security, err := triState(fs, "security")
		if err != nil {
			return err
		}
		proxy, err := triState(fs, "jsr160-proxy")
		if err != nil {
			return err
		}

		policyFile, _ := fs.GetString("policy-file")
		role, _ := fs.GetString("security-role")

		// --policy-file implies a policy add, --security-role a security add.
		if policyFile != "" && policy == nil {
			v := true
			policy = &v
		}
		if role != "" && security == nil {
			v := true
			security = &v
		}
		if policyFile != "" && policy != nil && !*policy {
			return fmt.Errorf("--policy-file conflicts with --no-policy")
		}
		if role != "" && security != nil && !*security {
			return fmt.Errorf("--security-role conflicts with --no-security")
		}
		if security != nil && *security && role == "" {
			role = defaultSecurityRole
		}

		result, err := core.Repack(args[0], core.RepackOptions{
			Policy:       policy,
			PolicyFile:   policyFile,
			Security:     security,
			SecurityRole: role,
			Proxy:        proxy,
		})
		if err != nil {
			return err
		}

		for _, action := range result.Actions {
			p.Infof("%s", action)
		}
		p.Successf("Repacked %s (%s agent)", args[0], result.Type)
		return nil
	},
}

func init() {
	fs := repackCmd.Flags()
	fs.Bool("policy", false, "Embed the default access policy")
	fs.Bool("no-policy", false, "Remove an embedded access policy")
	fs.String("policy-file", "", "Embed this access policy file instead of the default")
	fs.Bool("security", false, "Require authentication (role from --security-role)")
	fs.Bool("no-security", false, "Remove authentication")
	fs.String("security-role", "", "Role name for --security (default \""+defaultSecurityRole+"\")")
	fs.Bool("jsr160-proxy", false, "Enable the JSR-160 proxy dispatcher")
	fs.Bool("no-jsr160-proxy", false, "Disable the JSR-160 proxy dispatcher")
	rootCmd.AddCommand(repackCmd)
}
