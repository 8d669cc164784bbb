package cli

import (
	"github.com/spf13/cobra"
)

// ValidationResult summarizes a validate run.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Files  int      `json:"files"`
	Models []string `json:"models"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <models-path>",
		Short: "Validate model declaration files",
		Long: `Validate model declarations without running anything.

Checks YAML and CUE declaration files for syntax errors, unknown field
types, duplicate fields and duplicate model names.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := formatterFor(rootOpts, cmd)

			registry, files, err := LoadModels(args[0])
			if err != nil {
				_ = formatter.Error(err.Error())
				return err
			}
			formatter.VerboseLog("loaded %d declaration file(s)", files)

			return formatter.Success(ValidationResult{
				Valid:  true,
				Files:  files,
				Models: registry.Names(),
			})
		},
	}
}
