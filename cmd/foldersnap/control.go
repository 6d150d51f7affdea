package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tangthinker/foldersnap/internal/backup"
	"github.com/tangthinker/foldersnap/internal/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the countdown of every source folder of the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client.NewClient(socketPath).Status()
			if err != nil {
				return err
			}
			printStatus(os.Stdout, st)
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon after its current copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.NewClient(socketPath).Stop(); err != nil {
				return err
			}
			fmt.Println("Stop requested")
			return nil
		},
	}
}

// printStatus shows progress only; copy failures are in the journals and
// in `foldersnap history`.
func printStatus(w io.Writer, st backup.Status) {
	fmt.Fprintf(w, "Run %s (%s)\n", st.Label, st.State)
	for _, f := range st.Folders {
		fmt.Fprintln(w, f.Line())
		if f.PendingChanges > 0 {
			fmt.Fprintf(w, "  %d changes since last copy\n", f.PendingChanges)
		}
	}
}
