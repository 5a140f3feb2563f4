package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/reqx/packages/core/config"
	"github.com/abdul-hamid-achik/reqx/packages/core/parser"
	"github.com/abdul-hamid-achik/reqx/packages/core/runner"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>...",
	Short: "Check .reqx files for errors without sending anything",
	Long: `Parse .reqx files and report syntax errors. Exits 3 if any file is
invalid.

Examples:
  reqx validate health.reqx
  reqx validate ./api
  reqx validate ./api --show`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

var showFlag bool

func init() {
	validateCmd.Flags().BoolVar(&showFlag, "show", false, "Print each valid document in normalized form")
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return config.Errorf("", "no %s files found in %s", FileExtension, strings.Join(args, ", "))
	}

	red := color.New(color.FgRed).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	docs := runner.LoadDocuments(files)
	invalid := 0
	for _, d := range docs {
		if d.Err != nil {
			invalid++
			fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", red("✗"), d.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("✓"), d.Path)
		if showFlag {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", parser.Format(d.Definition))
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d file(s), %d invalid\n", len(docs), invalid)
	if invalid > 0 {
		return exitWith(ExitParseError)
	}
	return nil
}
