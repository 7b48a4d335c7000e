package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bnema/xhier/internal/config"
	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/bnema/xhier/internal/logger"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage xhier configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		rows := [][2]string{
			{"config file", config.GetConfigPath()},
			{"xinput.display", cfg.XInput.Display},
			{"xinput.binary", cfg.XInput.Binary},
			{"xinput.timeout", cfg.XInput.Timeout.String()},
			{"engine.mode", cfg.Engine.Mode},
			{"engine.remove_return", cfg.Engine.RemoveReturn},
			{"engine.refresh_interval", cfg.Engine.RefreshInterval.String()},
			{"ipc.socket_path", config.SocketPath()},
			{"ssh.listen", cfg.SSH.Listen},
			{"ssh.host_key_path", cfg.SSH.HostKeyPath},
			{"ssh.authorized_keys_path", cfg.SSH.AuthorizedKeysPath},
			{"profile.dir", cfg.Profile.Dir},
			{"logging.file_logging", fmt.Sprint(cfg.Logging.FileLogging)},
			{"logging.log_level", cfg.Logging.LogLevel},
		}
		for _, r := range rows {
			if _, err := fmt.Fprintf(w, "%s\t%s\n", r[0], r[1]); err != nil {
				logger.Errorf("Failed to write config row: %v", err)
			}
		}
		return w.Flush()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				fmt.Fprintf(cmd.OutOrStdout(), "configuration already exists at %s (use --force to overwrite)\n", configPath)
				return nil
			}
		}
		if err := config.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", configPath)
		return nil
	},
}

var configSetModeCmd = &cobra.Command{
	Use:       "set-mode <staged|immediate>",
	Short:     "Choose whether edits are staged or applied at once",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"staged", "immediate"},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := hierarchy.ParseMode(args[0])
		if err != nil {
			return err
		}
		engineCfg := config.Get().Engine
		engineCfg.Mode = mode.String()

		if ret, _ := cmd.Flags().GetString("return"); ret != "" {
			rm, err := hierarchy.ParseReturnMode(ret)
			if err != nil {
				return err
			}
			engineCfg.RemoveReturn = rm.String()
		}

		if err := config.UpdateEngine(engineCfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "engine mode set to %s (restart the daemon to pick it up)\n", engineCfg.Mode)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
	configSetModeCmd.Flags().String("return", "", "Also set where removed masters send their slaves")

	configCmd.AddCommand(configShowCmd, configInitCmd, configSetModeCmd)
	rootCmd.AddCommand(configCmd)
}
