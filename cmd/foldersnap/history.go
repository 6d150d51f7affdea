package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tangthinker/foldersnap/internal/history"
)

const timeFormat = "2006-01-02 15:04:05"

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		runID string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs, or the copies of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.NewSQLite(historyDB)
			if err != nil {
				return err
			}
			defer store.Close()

			if runID != "" {
				copies, err := store.Copies(runID)
				if err != nil {
					return err
				}
				printCopies(os.Stdout, copies)
				return nil
			}

			runs, err := store.Runs(limit)
			if err != nil {
				return err
			}
			printRuns(os.Stdout, runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list, 0 for all")
	cmd.Flags().StringVar(&runID, "run", "", "Show the copies of this run")
	return cmd
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}

	format := "%-36s\t%-16s\t%-19s\t%-19s\t%-6s\t%-6s\t%s\n"
	fmt.Fprintf(w, format, "ID", "LABEL", "STARTED", "FINISHED", "COPIES", "ERRORS", "REASON")
	for _, r := range runs {
		fmt.Fprintf(w, format,
			r.ID,
			r.Label,
			r.Started.Format(timeFormat),
			formatOptional(r.Finished),
			fmt.Sprint(r.Copies),
			fmt.Sprint(r.Errors),
			r.Reason,
		)
	}
}

func printCopies(w io.Writer, copies []history.Copy) {
	if len(copies) == 0 {
		fmt.Fprintln(w, "No copies recorded")
		return
	}

	format := "%-20s\t%-19s\t%-10s\t%-6s\t%s\n"
	fmt.Fprintf(w, format, "FOLDER", "STARTED", "DURATION", "ERRORS", "JOURNAL")
	for _, c := range copies {
		journal := c.Journal
		if journal == "" {
			journal = "-"
		}
		fmt.Fprintf(w, format,
			c.Folder,
			c.Started.Format(timeFormat),
			c.Duration.Round(time.Millisecond).String(),
			fmt.Sprint(c.Errors),
			journal,
		)
	}
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeFormat)
}
