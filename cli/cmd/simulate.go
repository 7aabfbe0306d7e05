package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BDNK1/ivrflow/plugins/http"
	"github.com/BDNK1/ivrflow/runtime"
	"github.com/BDNK1/ivrflow/runtime/engine"
	"github.com/BDNK1/ivrflow/runtime/engine/loader"
	"github.com/BDNK1/ivrflow/runtime/engine/resolver"
)

var (
	simDigits      []string
	simVars        []string
	simChannelVars []string
	simCaller      string
	simHangupAfter int
	simJSON        bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <flow-file>",
	Short: "Run a flow against a scripted caller",
	Long: `Simulate runs a flow without Asterisk. Each --digits entry answers one
digit collection in order; an empty entry is silence. api_call nodes reach
their real endpoints.

Example:
  ivrflow simulate flows/2001.json --digits 1 --digits 12345# --caller 0555
  ivrflow simulate flows/2001.json --var account_number=12345 --json
`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringArrayVar(&simDigits, "digits", nil, "Digits entered at successive collections")
	simulateCmd.Flags().StringArrayVar(&simVars, "var", nil, "Initial flow variable as key=value")
	simulateCmd.Flags().StringArrayVar(&simChannelVars, "channel-var", nil, "Channel variable as NAME=value")
	simulateCmd.Flags().StringVar(&simCaller, "caller", "", "Caller id")
	simulateCmd.Flags().IntVar(&simHangupAfter, "hangup-after", 0, "Caller hangs up after this many playbacks")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "Print the full result as JSON")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, l, err := loadConfig()
	if err != nil {
		return err
	}

	flow, err := loader.NewFileLoader(cfg.Engine.DefaultLanguage).Load(args[0])
	if err != nil {
		return err
	}

	invoker, err := http.New(cfg.PluginConfig("http"))
	if err != nil {
		return err
	}

	vars, err := parseAssignments(simVars)
	if err != nil {
		return err
	}
	channelVars, err := parseAssignments(simChannelVars)
	if err != nil {
		return err
	}

	req := runtime.SimulationRequest{
		CallerID:         simCaller,
		Digits:           simDigits,
		Variables:        make(map[string]any, len(vars)),
		ChannelVariables: channelVars,
		HangupAfterPlays: simHangupAfter,
	}
	for k, v := range vars {
		req.Variables[k] = v
	}

	opts := engine.OptionsFromConfig(cfg.Engine)
	opts.AnswerDelay = 0
	executor := engine.NewStepExecutor(resolver.NewEvaluator(l), invoker, l, opts)
	simulator := engine.NewSimulator(engine.NewInterpreter(l, executor, nil, opts))

	result, err := simulator.Simulate(cmd.Context(), &flow, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if simJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "outcome:  %s\n", result.Outcome)
	fmt.Fprintf(out, "history:  %s\n", strings.Join(result.History, " -> "))
	fmt.Fprintln(out, "operations:")
	for _, op := range result.Operations {
		fmt.Fprintf(out, "  %s\n", op)
	}
	return nil
}

func parseAssignments(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", v)
		}
		out[key] = value
	}
	return out, nil
}
