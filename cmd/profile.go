package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/xhier/internal/config"
	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/bnema/xhier/internal/profile"
	"github.com/bnema/xhier/internal/ui"
	"github.com/spf13/cobra"
)

// maxProfileRounds bounds the apply loop; created masters need one extra
// round before their slaves can be attached
const maxProfileRounds = 3

var (
	profileFormat string
	profilePrune  bool
	profileFuzzy  bool
	profileDryRun bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Save and restore device layouts",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := profile.List(config.Get().Profile.Dir)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no profiles in %s\n", config.Get().Profile.Dir)
			return nil
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var profileSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save the current layout",
	Args:  cobra.ExactArgs(1),
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

		name := args[0]
		p := profile.Capture(name, v)
		path := profile.PathFor(config.Get().Profile.Dir, name)
		if profileFormat != "" && !strings.Contains(name, ".") {
			path = profile.PathFor(config.Get().Profile.Dir, name+"."+strings.TrimPrefix(profileFormat, "."))
		}
		if err := profile.Save(path, p); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %d masters to %s\n", len(p.Masters), path)
		return nil
	},
}

var profileApplyCmd = &cobra.Command{
	Use:   "apply <name>",
	Short: "Rearrange devices to match a saved layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		path, err := profile.Resolve(config.Get().Profile.Dir, args[0])
		if err != nil {
			return err
		}
		p, err := profile.Load(path)
		if err != nil {
			return err
		}

		b, _, err := connect(ctx)
		if err != nil {
			return err
		}
		ret, err := hierarchy.ParseReturnMode(configReturnMode())
		if err != nil {
			return err
		}
		opts := profile.Options{Prune: profilePrune, Fuzzy: profileFuzzy, Return: ret}
		out := cmd.OutOrStdout()

		for round := 1; round <= maxProfileRounds; round++ {
			v, err := b.View(ctx)
			if err != nil {
				return err
			}
			if round == 1 && len(v.Pending) > 0 {
				return fmt.Errorf("%d changes are already pending; apply or cancel them first", len(v.Pending))
			}

			plan := profile.Build(v, p, opts)
			if round == 1 {
				for _, m := range plan.Missing {
					fmt.Fprintf(out, "%s %q is not connected\n", ui.IconWarning, m)
				}
			}
			if len(plan.Changes) == 0 {
				break
			}
			for _, c := range plan.Changes {
				fmt.Fprintf(out, "  %s\n", ui.DescribeChange(v, c))
			}
			if profileDryRun {
				if !plan.Done() {
					fmt.Fprintf(out, "then attach %d devices to the new masters\n", len(plan.Deferred))
				}
				return nil
			}

			for _, c := range plan.Changes {
				if err := b.Stage(ctx, c); err != nil {
					_ = b.Cancel(ctx)
					return err
				}
			}
			if err := b.Apply(ctx); err != nil {
				return err
			}
			if plan.Done() {
				break
			}
		}

		fmt.Fprintf(out, "%s profile %s applied\n", ui.IconSuccess, p.Name)
		return nil
	},
}

func init() {
	profileSaveCmd.Flags().StringVar(&profileFormat, "format", "", "File format: toml or yaml")
	profileApplyCmd.Flags().BoolVar(&profilePrune, "prune", false, "Remove masters the profile does not list")
	profileApplyCmd.Flags().BoolVar(&profileFuzzy, "fuzzy", false, "Match renamed devices by name fragment")
	profileApplyCmd.Flags().BoolVarP(&profileDryRun, "dry-run", "n", false, "Only print the planned changes")

	profileCmd.AddCommand(profileListCmd, profileSaveCmd, profileApplyCmd)
	rootCmd.AddCommand(profileCmd)
}
