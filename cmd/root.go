package cmd

import (
	"github.com/bnema/xhier/internal/config"
	"github.com/bnema/xhier/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFile string
	logLevel   string
	socketPath string

	rootCmd = &cobra.Command{
		Use:   "xhier",
		Short: "xhier - X input device hierarchy editor",
		Long: `xhier shows the X input device hierarchy as a tree of master devices and
their slaves, and lets you move slaves between masters, float them, and
create or remove master devices. Changes are staged and applied as one batch.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ~/.config/xhier/xhier.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Daemon socket path")

	_ = viper.BindPFlag("logging.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("ipc.socket_path", rootCmd.PersistentFlags().Lookup("socket"))
}

// setup loads the configuration and applies the logging settings
func setup(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		config.SetConfigPath(configFile)
	}
	if err := config.Init(); err != nil {
		return err
	}

	cfg := config.Get()
	if cfg.Logging.LogLevel != "" {
		logger.SetLevel(cfg.Logging.LogLevel)
	}
	if cfg.Logging.FileLogging {
		if err := logger.EnableFileLogging(logger.DefaultLogPath()); err != nil {
			logger.Warnf("File logging disabled: %v", err)
		}
	}
	return nil
}
