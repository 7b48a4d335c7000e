package cmd

import (
	"fmt"

	"github.com/bnema/xhier/internal/logger"
	"github.com/bnema/xhier/internal/virtual"
	"github.com/spf13/cobra"
)

var (
	virtualMice      []string
	virtualKeyboards []string
	virtualDevices   []string
	virtualPath      string
)

var virtualCmd = &cobra.Command{
	Use:   "virtual",
	Short: "Create uinput test devices until interrupted",
	Long: `Create virtual mice and keyboards through uinput. They appear as new slaves
of the core masters and disappear when the command exits. Needs write access
to /dev/uinput.`,
	Example: `  xhier virtual --mouse "Test mouse" --keyboard "Test keyboard"
  xhier virtual -d "mouse:Left mouse" -d "kbd:Left keys"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var specs []virtual.Spec
		for _, name := range virtualMice {
			specs = append(specs, virtual.Spec{Kind: virtual.KindMouse, Name: name})
		}
		for _, name := range virtualKeyboards {
			specs = append(specs, virtual.Spec{Kind: virtual.KindKeyboard, Name: name})
		}
		for _, d := range virtualDevices {
			spec, err := virtual.ParseSpec(d)
			if err != nil {
				return err
			}
			specs = append(specs, spec)
		}
		if len(specs) == 0 {
			return fmt.Errorf("nothing to create: pass --mouse, --keyboard or --device")
		}

		ctx, cancel := signalContext()
		defer cancel()

		logger.Infof("Holding %d virtual devices, press Ctrl+C to remove them", len(specs))
		return virtual.NewSet(virtualPath).Hold(ctx, specs)
	},
}

func init() {
	virtualCmd.Flags().StringArrayVar(&virtualMice, "mouse", nil, "Create a mouse with this name (repeatable)")
	virtualCmd.Flags().StringArrayVar(&virtualKeyboards, "keyboard", nil, "Create a keyboard with this name (repeatable)")
	virtualCmd.Flags().StringArrayVarP(&virtualDevices, "device", "d", nil, "Create a device given as kind:name (repeatable)")
	virtualCmd.Flags().StringVar(&virtualPath, "uinput", virtual.DefaultPath, "uinput device node")
	rootCmd.AddCommand(virtualCmd)
}
