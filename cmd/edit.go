package cmd

import (
	"github.com/bnema/xhier/internal/config"
	"github.com/bnema/xhier/internal/session"
	"github.com/bnema/xhier/internal/ui"
	"github.com/spf13/cobra"
)

var editInline bool

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the hierarchy interactively",
	Long: `Open the interactive editor. Pick a slave with m and drop it on a master
with enter, float it with f, create masters with n and remove them with d.
Press a to apply the staged changes or u to discard them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		b, remote, err := connect(ctx)
		if err != nil {
			return err
		}
		// a private session refreshes itself so external changes show up
		if s, ok := b.(*session.Session); ok {
			s.Start(ctx)
		}

		title := "xhier"
		if remote {
			title = "xhier · daemon"
		}
		m := ui.NewModel(ctx, b, ui.Options{
			Title:        title,
			PollInterval: config.Get().Engine.RefreshInterval,
		})

		pc := ui.DefaultProgramConfig()
		pc.AltScreen = !editInline
		return ui.Run(ctx, m, pc)
	},
}

func init() {
	editCmd.Flags().BoolVar(&editInline, "inline", false, "Render below the prompt instead of full screen")
	rootCmd.AddCommand(editCmd)
}
