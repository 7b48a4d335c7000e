package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/bnema/xhier/internal/session"
	"github.com/bnema/xhier/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	listTable   bool
	listIDs     bool
	listPlain   bool
	listPending bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show the device hierarchy",
	Long: `Show master devices with their slaves, followed by the Unassigned group of
floating slaves. Uses the daemon's view when one is running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		b, _, err := connect(ctx)
		if err != nil {
			return err
		}
		v, err := b.View(ctx)
		if err != nil {
			return err
		}

		styled := !listPlain && isTerminal(cmd.OutOrStdout())
		printView(cmd.OutOrStdout(), v, styled)
		printHealth(cmd.ErrOrStderr(), b.Health())
		return nil
	},
}

func printView(w io.Writer, v hierarchy.View, styled bool) {
	if listTable {
		fmt.Fprintln(w, ui.RenderTable(v))
	} else {
		fmt.Fprint(w, ui.RenderTree(v, ui.RenderOptions{Styled: styled, Cursor: -1, ShowIDs: listIDs}))
	}
	if listPending && len(v.Pending) > 0 {
		fmt.Fprintf(w, "\nPending (%d):\n", len(v.Pending))
		fmt.Fprint(w, ui.RenderPending(v, styled))
	}
}

// printHealth warns when the view may be stale because refreshes fail
func printHealth(w io.Writer, h session.Health) {
	if h.LastError == nil {
		return
	}
	fmt.Fprintf(w, "warning: %s\n", h.Status())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func init() {
	listCmd.Flags().BoolVarP(&listTable, "table", "t", false, "Render as a table")
	listCmd.Flags().BoolVarP(&listIDs, "ids", "i", true, "Show device ids")
	listCmd.Flags().BoolVar(&listPlain, "plain", false, "Disable colors")
	listCmd.Flags().BoolVarP(&listPending, "pending", "p", true, "Show pending changes")
	rootCmd.AddCommand(listCmd)
}
