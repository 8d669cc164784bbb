package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docql/docql/domain"
	"github.com/docql/docql/internal/harness"
	"github.com/docql/docql/mongodoc"
)

// ExplainResult carries the compiled artifact of one query step.
type ExplainResult struct {
	Query    string `json:"query"`
	Filter   string `json:"filter,omitempty"`
	Artifact string `json:"artifact"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <scenario.yaml>",
		Short: "Compile a scenario's queries without executing them",
		Long: `Compile every query in a scenario file and print the native artifact
each one produces. Nothing is executed; this is the dry-run view of what
would reach the store.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := formatterFor(rootOpts, cmd)

			scenario, err := harness.LoadScenario(args[0])
			if err != nil {
				_ = formatter.Error(err.Error())
				return &ExitError{Code: ExitCommandError, Message: "load scenario", Err: err}
			}
			registry, err := harness.LoadRegistry(scenario)
			if err != nil {
				_ = formatter.Error(err.Error())
				return &ExitError{Code: ExitFailure, Message: "load models", Err: err}
			}

			backend := mongodoc.New()
			results := make([]ExplainResult, 0, len(scenario.Queries))
			for _, step := range scenario.Queries {
				spec, err := harness.BuildSpec(registry, step)
				if err != nil {
					_ = formatter.Error(fmt.Sprintf("%s: %v", step.Name, err))
					return &ExitError{Code: ExitFailure, Message: step.Name, Err: err}
				}
				artifact, err := backend.Compile(spec)
				if err != nil {
					_ = formatter.Error(fmt.Sprintf("%s: %v", step.Name, err))
					return &ExitError{Code: ExitFailure, Message: step.Name, Err: err}
				}
				extJSON, err := artifact.ExtJSON()
				if err != nil {
					return err
				}
				res := ExplainResult{Query: step.Name, Artifact: extJSON}
				if expr, err := spec.NormalizedFilter(); err == nil {
					res.Filter = domain.Format(expr)
				}
				results = append(results, res)
			}

			if rootOpts.Format == "json" {
				return formatter.Success(results)
			}
			for _, res := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:\n  filter:   %s\n  artifact: %s\n", res.Query, res.Filter, res.Artifact)
			}
			return nil
		},
	}
}
