package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/bnema/xhier/internal/logger"
	"github.com/bnema/xhier/internal/ui"
	"github.com/spf13/cobra"
)

// changeBuilder turns command arguments into a change against a view
type changeBuilder func(v hierarchy.View, args []string, ret string) (hierarchy.PendingChange, error)

func buildReattach(v hierarchy.View, args []string, _ string) (hierarchy.PendingChange, error) {
	dev, err := v.Find(args[0], hierarchy.IsSlaveRow)
	if err != nil {
		return hierarchy.PendingChange{}, fmt.Errorf("device: %w", err)
	}
	target, err := v.Find(args[1], hierarchy.IsAttachTargetRow)
	if err != nil {
		return hierarchy.PendingChange{}, fmt.Errorf("master: %w", err)
	}
	return hierarchy.Reattach(dev.ID, target.ID), nil
}

func buildFloat(v hierarchy.View, args []string, _ string) (hierarchy.PendingChange, error) {
	dev, err := v.Find(args[0], hierarchy.IsSlaveRow)
	if err != nil {
		return hierarchy.PendingChange{}, fmt.Errorf("device: %w", err)
	}
	return hierarchy.Float(dev.ID), nil
}

func buildCreateMaster(_ hierarchy.View, args []string, _ string) (hierarchy.PendingChange, error) {
	name := strings.TrimSpace(strings.Join(args, " "))
	if name == "" {
		return hierarchy.PendingChange{}, fmt.Errorf("master name must not be empty")
	}
	return hierarchy.CreateMaster(name), nil
}

func buildRemoveMaster(v hierarchy.View, args []string, ret string) (hierarchy.PendingChange, error) {
	master, err := v.Find(args[0], hierarchy.IsMasterRow)
	if err != nil {
		return hierarchy.PendingChange{}, fmt.Errorf("master: %w", err)
	}
	mode, err := hierarchy.ParseReturnMode(ret)
	if err != nil {
		return hierarchy.PendingChange{}, err
	}
	return hierarchy.RemoveMaster(master.ID, mode), nil
}

// changeCommands creates the reattach, float, create-master and
// remove-master commands, each handing its change to run. Submitted removals
// always follow the configured return mode, so only staging offers --return.
func changeCommands(run func(ctx context.Context, cmd *cobra.Command, build changeBuilder, args []string, ret string) error, withReturn bool) []*cobra.Command {
	specs := []struct {
		use   string
		short string
		args  cobra.PositionalArgs
		build changeBuilder
	}{
		{"reattach <device> <master>", "Attach a slave to a master (or to Unassigned)", cobra.ExactArgs(2), buildReattach},
		{"float <device>", "Detach a slave from its master", cobra.ExactArgs(1), buildFloat},
		{"create-master <name>", "Create a master pointer and keyboard pair", cobra.MinimumNArgs(1), buildCreateMaster},
		{"remove-master <master>", "Remove a master pair", cobra.ExactArgs(1), buildRemoveMaster},
	}

	cmds := make([]*cobra.Command, 0, len(specs))
	for _, spec := range specs {
		build := spec.build
		c := &cobra.Command{
			Use:   spec.use,
			Short: spec.short,
			Args:  spec.args,
		}
		var ret string
		if withReturn && strings.HasPrefix(spec.use, "remove-master") {
			c.Flags().StringVar(&ret, "return", "", "Where slaves go: defaults or floating (default from config)")
		}
		c.RunE = func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return run(ctx, cmd, build, args, ret)
		}
		cmds = append(cmds, c)
	}
	return cmds
}

// submitChange runs a change through the backend policy. A private
// session has nowhere to keep a queue, so its changes are applied at once.
func submitChange(ctx context.Context, cmd *cobra.Command, build changeBuilder, args []string, ret string) error {
	b, remote, err := connect(ctx)
	if err != nil {
		return err
	}
	v, err := b.View(ctx)
	if err != nil {
		return err
	}
	change, err := build(v, args, returnOrDefault(ret))
	if err != nil {
		return err
	}
	if err := b.Submit(ctx, change); err != nil {
		return err
	}

	after, err := b.View(ctx)
	if err != nil {
		return err
	}
	switch afterSubmit(after.Mode, remote) {
	case submitStaged:
		fmt.Fprintf(cmd.OutOrStdout(), "staged: %s (%d pending)\n", ui.DescribeChange(v, change), len(after.Pending))
		return nil
	case submitApplyLocal:
		logger.Debug("No daemon running, applying immediately")
		if err := b.Apply(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied: %s\n", ui.DescribeChange(v, change))
	return nil
}

type submitAction int

const (
	// submitApplied means the backend already applied the change
	submitApplied submitAction = iota
	// submitStaged means the change waits in the daemon queue
	submitStaged
	// submitApplyLocal means the change sits in a private queue that dies
	// with this process, so it is applied right away
	submitApplyLocal
)

// afterSubmit decides what a submitted change became from the policy mode.
// An immediate daemon may still hold changes queued with 'xhier stage'.
func afterSubmit(mode hierarchy.Mode, remote bool) submitAction {
	switch {
	case mode != hierarchy.ModeStaged:
		return submitApplied
	case remote:
		return submitStaged
	default:
		return submitApplyLocal
	}
}

// stageChange queues a change on the daemon regardless of its mode
func stageChange(ctx context.Context, cmd *cobra.Command, build changeBuilder, args []string, ret string) error {
	client, err := daemon(ctx)
	if err != nil {
		return err
	}
	v, _ := client.LastView()
	change, err := build(v, args, returnOrDefault(ret))
	if err != nil {
		return err
	}
	if err := client.Stage(ctx, change); err != nil {
		return err
	}
	after, _ := client.LastView()
	fmt.Fprintf(cmd.OutOrStdout(), "staged: %s (%d pending)\n", ui.DescribeChange(v, change), len(after.Pending))
	return nil
}

func returnOrDefault(ret string) string {
	if ret != "" {
		return ret
	}
	return configReturnMode()
}
