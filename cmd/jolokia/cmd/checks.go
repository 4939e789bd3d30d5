package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jolokia-tools/jolokia-cli/internal/checks"
)

var checksCmd = &cobra.Command{
	Use:   "checks [name]",
	Short: "Show the bundled monitoring check definitions",
	Long: `List the monitoring check definitions shipped with this tool (JMX metric
checks for an Oracle Coherence data grid), or show a single check in full.

The definitions are purely declarative; feed them to whatever monitoring
system reads your JMX-over-HTTP endpoint.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := checks.Coherence()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			check, ok := set.Find(args[0])
			if !ok {
				return fmt.Errorf("unknown check %q (run 'jolokia checks' to list them)", args[0])
			}
			printCheck(check)
			return nil
		}

		fmt.Fprintf(os.Stdout, "%s: %s\n\n", set.Name, set.Description)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tATTRIBUTE\tWARN\tCRIT\tDESCRIPTION")
		for _, c := range set.Checks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.Attribute, c.Warning, c.Critical, c.Description)
		}
		return w.Flush()
	},
}

func printCheck(c *checks.Check) {
	fmt.Fprintf(os.Stdout, "Name:        %s\n", c.Name)
	if c.Description != "" {
		fmt.Fprintf(os.Stdout, "Description: %s\n", c.Description)
	}
	fmt.Fprintf(os.Stdout, "MBean:       %s\n", c.MBean)
	fmt.Fprintf(os.Stdout, "Attribute:   %s\n", c.Attribute)
	if c.Path != "" {
		fmt.Fprintf(os.Stdout, "Path:        %s\n", c.Path)
	}
	if c.Warning != "" {
		fmt.Fprintf(os.Stdout, "Warning:     %s\n", c.Warning)
	}
	if c.Critical != "" {
		fmt.Fprintf(os.Stdout, "Critical:    %s\n", c.Critical)
	}
	if c.Unit != "" {
		fmt.Fprintf(os.Stdout, "Unit:        %s\n", c.Unit)
	}
}

func init() {
	rootCmd.AddCommand(checksCmd)
}
