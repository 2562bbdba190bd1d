package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// ValidationResult holds the outcome of a schema validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Entities []string `json:"entities,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-file>",
		Short: "Validate a schema file",
		Long: `Validate an entity schema file (CUE or YAML) without touching storage.

Checks field types, unique/primary declarations, relation targets and
foreign keys. Prints the declared entities on success.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	reg, err := LoadSchema(path)
	if err != nil {
		if formatter.Format == "json" {
			_ = formatter.Success(ValidationResult{Valid: false, Error: err.Error()})
		} else {
			fmt.Fprintln(formatter.Writer, "✗ Schema invalid")
			fmt.Fprintf(formatter.Writer, "  %v\n", err)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("schema validation failed: %v", err))
	}

	names := reg.Names()
	sort.Strings(names)
	formatter.VerboseLog("Loaded %d entity descriptor(s) from %s", len(names), path)

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Entities: names})
	}
	fmt.Fprintln(formatter.Writer, "✓ Schema valid")
	for _, name := range names {
		fmt.Fprintf(formatter.Writer, "  %s\n", name)
	}
	return nil
}
