package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/reqx/packages/core/config"
	"github.com/abdul-hamid-achik/reqx/packages/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded runs",
	Long: `List runs recorded with run --history, newest first, or show the
requests of a single run.

Examples:
  reqx history
  reqx history --limit 50
  reqx history 42`,
	Args: cobra.MaximumNArgs(1),
	RunE: historyCommand,
}

var (
	historyDBFlag    string
	historyLimitFlag int
)

func init() {
	historyCmd.Flags().StringVar(&historyDBFlag, "db", getEnvString("REQX_HISTORY", DefaultHistoryPath), "History database (env: REQX_HISTORY)")
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Number of runs to show")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(historyDBFlag); err != nil {
		return config.Errorf(historyDBFlag, "no history database (record one with: reqx run --history)")
	}
	store, err := history.Open(historyDBFlag)
	if err != nil {
		return config.Errorf(historyDBFlag, "%v", err)
	}
	defer store.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return config.Errorf("", "invalid run id %q", args[0])
		}
		outcomes, err := store.Outcomes(cmd.Context(), id)
		if err != nil {
			return err
		}
		if len(outcomes) == 0 {
			return fmt.Errorf("run %d not found", id)
		}
		fmt.Fprintln(w, "NAME\tFILE\tRESULT\tSTATUS\tTIME\tERROR")
		for _, o := range outcomes {
			status := "-"
			if o.StatusCode != nil {
				status = strconv.Itoa(*o.StatusCode)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\t%s\n", o.Name, o.File, o.Classification, status, o.Duration.Milliseconds(), o.Error)
		}
		return nil
	}

	runs, err := store.Recent(cmd.Context(), historyLimitFlag)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tSTARTED\tENV\tRESULT\tEXIT\tPASSED\tTOTAL\tTIME")
	for _, r := range runs {
		env := r.Environment
		if env == "" {
			env = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), env, r.Classification,
			r.ExitCode, r.Counts.Passed, r.Counts.Total, r.Duration.Round(time.Millisecond))
	}
	return nil
}
