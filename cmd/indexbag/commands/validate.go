package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/indexbag/pkg/rapid"
)

const stdinArg = "-"

// NewValidateCommand creates the validate subcommand.
func NewValidateCommand() *cobra.Command {
	var nocolor bool

	cmd := &cobra.Command{
		Use:   "validate <report.json|->",
		Short: "Validate a JSON rapid report against the report schema",
		Long: `Validate a report produced by "indexbag rapid --format json".

Examples:
  indexbag validate report.json
  indexbag rapid --format json | indexbag validate -
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if nocolor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			}

			return runValidate(cmd.InOrStdin(), cmd.OutOrStdout(), args[0])
		},
	}

	cmd.Flags().BoolVar(&nocolor, "no-color", false, "disable colored output")

	return cmd
}

func runValidate(stdin io.Reader, out io.Writer, inputPath string) error {
	data, label, err := readInput(stdin, inputPath)
	if err != nil {
		return err
	}

	err = rapid.ValidateReportJSON(data)
	if err != nil {
		color.New(color.FgRed).Fprintf(out, "report is invalid (%s)\n", label)

		return err
	}

	color.New(color.FgGreen).Fprintf(out, "report is valid (%s)\n", label)

	return nil
}

func readInput(stdin io.Reader, inputPath string) (data []byte, label string, err error) {
	if inputPath == stdinArg {
		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, "", fmt.Errorf("read stdin: %w", err)
		}

		return data, "stdin", nil
	}

	data, err = os.ReadFile(inputPath)
	if err != nil {
		return nil, "", fmt.Errorf("read report: %w", err)
	}

	return data, inputPath, nil
}
