package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BDNK1/ivrflow/runtime/engine/loader"
)

var validateCmd = &cobra.Command{
	Use:   "validate <flow-file>...",
	Short: "Check flow files for errors and dangling targets",
	Long: `Validate loads each flow file, reports structural errors and lists
warnings for transitions that point at missing nodes.

Example:
  ivrflow validate flows/2001.json flows/support.yaml
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	fl := loader.NewFileLoader(cfg.Engine.DefaultLanguage)
	out := cmd.OutOrStdout()

	failed := 0
	for _, file := range args {
		flow, err := fl.Load(file)
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", file, err)
			continue
		}

		fmt.Fprintf(out, "OK   %s (flow %q, extension %s, %d nodes)\n", file, flow.ID, flow.Extension, len(flow.Nodes))
		for _, w := range flow.Lint() {
			fmt.Fprintf(out, "     warning: %s\n", w)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d flow files invalid", failed, len(args))
	}
	return nil
}
