package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/xhier/internal/config"
	"github.com/bnema/xhier/internal/ipc"
	"github.com/bnema/xhier/internal/logger"
	"github.com/bnema/xhier/internal/sshui"
	"github.com/bnema/xhier/internal/xinput"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveSSH       bool
	serveSSHListen string
	serveSkipProbe bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hierarchy daemon",
	Long: `Run a daemon that owns the pending change queue. Other xhier commands
talk to it over a unix socket, so changes staged from one terminal can be
reviewed and applied from another. With --ssh the editor is also served over
SSH to the keys in the authorized keys file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		cfg := config.Get()
		if !serveSkipProbe {
			probe, err := xinput.NewFromConfig(cfg.XInput).Probe(ctx, cfg.XInput.Display)
			if err != nil {
				return fmt.Errorf("X input check failed: %w", err)
			}
			logger.Infof("X Input %d.%d on display %q", probe.ServerMajor, probe.ServerMinor, probe.Display)
		}

		client := ipc.NewClient(config.SocketPath())
		if client.IsRunning(ctx) {
			return fmt.Errorf("a daemon is already listening on %s", config.SocketPath())
		}

		s, err := newLocalSession(ctx)
		if err != nil {
			return err
		}
		s.Start(ctx)

		server := ipc.NewSocketServer(config.SocketPath(), s)
		if err := server.Start(); err != nil {
			return err
		}
		defer server.Stop()
		logger.Infof("Daemon listening on %s (%s mode)", server.Path(), cfg.Engine.Mode)

		if serveSSH {
			sshServer := sshui.NewServer(cfg.SSH, s)
			sshServer.OnSessionStart = func(addr, fingerprint string) {
				logger.Infof("Remote editor connected addr=%s key=%s", addr, fingerprint)
			}
			sshServer.OnSessionEnd = func(addr string) {
				logger.Infof("Remote editor disconnected addr=%s", addr)
			}
			if err := sshServer.Start(ctx); err != nil {
				return err
			}
			defer sshServer.Stop()
		}

		<-ctx.Done()
		logger.Info("Shutting down")

		// staged changes die with the daemon
		if v, err := s.View(context.Background()); err == nil && len(v.Pending) > 0 {
			logger.Warnf("Discarding %d pending changes", len(v.Pending))
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveSSH, "ssh", false, "Serve the editor over SSH")
	serveCmd.Flags().StringVar(&serveSSHListen, "ssh-listen", "", "SSH listen address")
	serveCmd.Flags().BoolVar(&serveSkipProbe, "skip-probe", false, "Skip the X Input 2 check")

	_ = viper.BindPFlag("ssh.listen", serveCmd.Flags().Lookup("ssh-listen"))
	rootCmd.AddCommand(serveCmd)
}
