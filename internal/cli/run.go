package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docql/docql/internal/harness"
)

// RunSummary reports one executed scenario.
type RunSummary struct {
	Scenario string   `json:"scenario"`
	Pass     bool     `json:"pass"`
	Steps    int      `json:"steps"`
	Errors   []string `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <scenario.yaml|dir>",
		Short: "Run conformance scenarios against the in-memory store",
		Long: `Run one scenario file, or every scenario in a directory, against a
fresh in-memory store. Exit code 1 reports scenario failures; the
per-step details land in the output.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := formatterFor(rootOpts, cmd)

			scenarios, err := loadScenarios(args[0])
			if err != nil {
				_ = formatter.Error(err.Error())
				return err
			}

			summaries := make([]RunSummary, 0, len(scenarios))
			failed := false
			for _, s := range scenarios {
				formatter.VerboseLog("running %s", s.Name)
				result, err := harness.Run(s)
				if err != nil {
					_ = formatter.Error(fmt.Sprintf("%s: %v", s.Name, err))
					return &ExitError{Code: ExitCommandError, Message: s.Name, Err: err}
				}
				summaries = append(summaries, RunSummary{
					Scenario: s.Name,
					Pass:     result.Pass,
					Steps:    len(result.Trace),
					Errors:   result.Errors,
				})
				if !result.Pass {
					failed = true
				}
			}

			if rootOpts.Format == "json" {
				if err := formatter.Success(summaries); err != nil {
					return err
				}
			} else {
				for _, s := range summaries {
					status := "PASS"
					if !s.Pass {
						status = "FAIL"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d steps)\n", status, s.Scenario, s.Steps)
					for _, msg := range s.Errors {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", msg)
					}
				}
			}

			if failed {
				return &ExitError{Code: ExitFailure, Message: "scenarios failed"}
			}
			return nil
		},
	}
}

func loadScenarios(path string) ([]*harness.Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "scenario path not found", Err: err}
	}
	if info.IsDir() {
		scenarios, err := harness.LoadScenarioDir(path)
		if err != nil {
			return nil, &ExitError{Code: ExitCommandError, Message: "load scenarios", Err: err}
		}
		if len(scenarios) == 0 {
			return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("no scenarios in %s", filepath.Clean(path))}
		}
		return scenarios, nil
	}
	s, err := harness.LoadScenario(path)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "load scenario", Err: err}
	}
	return []*harness.Scenario{s}, nil
}
