package cmd

import (
	"fmt"

	"github.com/bnema/xhier/internal/config"
	"github.com/bnema/xhier/internal/ui"
	"github.com/spf13/cobra"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Queue a change on the daemon without applying it",
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List the daemon's pending changes in apply order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		client, err := daemon(ctx)
		if err != nil {
			return err
		}
		v, _ := client.LastView()
		fmt.Fprint(cmd.OutOrStdout(), ui.RenderPending(v, isTerminal(cmd.OutOrStdout())))
		if len(v.Pending) == 0 {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply every pending change as one batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		client, err := daemon(ctx)
		if err != nil {
			return err
		}
		before, _ := client.LastView()
		if len(before.Pending) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to apply")
			return nil
		}
		if err := client.Apply(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s applied %d changes\n", ui.IconSuccess, len(before.Pending))
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Discard every pending change",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		client, err := daemon(ctx)
		if err != nil {
			return err
		}
		before, _ := client.LastView()
		if err := client.Cancel(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "discarded %d changes\n", len(before.Pending))
		return nil
	},
}

func configReturnMode() string {
	return config.Get().Engine.RemoveReturn
}

func init() {
	stageCmd.AddCommand(changeCommands(stageChange, true)...)
	rootCmd.AddCommand(changeCommands(submitChange, false)...)
	rootCmd.AddCommand(stageCmd, pendingCmd, applyCmd, cancelCmd)
}
