package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/xhier/internal/logger"
	tea "github.com/charmbracelet/bubbletea"
)

// ProgramConfig holds configuration for running the editor
type ProgramConfig struct {
	AltScreen   bool
	GracePeriod time.Duration
	Options     []tea.ProgramOption
}

// DefaultProgramConfig returns default configuration
func DefaultProgramConfig() ProgramConfig {
	return ProgramConfig{
		AltScreen:   true,
		GracePeriod: 2 * time.Second,
	}
}

// Run starts the editor and blocks until it exits or ctx is cancelled
func Run(ctx context.Context, m *Model, config ProgramConfig) error {
	defer m.Close()

	opts := append([]tea.ProgramOption{}, config.Options...)
	if config.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(m, opts...)

	errCh := make(chan error, 1)
	go func() {
		_, err := program.Run()
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("editor failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		program.Quit()

		select {
		case err := <-errCh:
			return err
		case <-time.After(config.GracePeriod):
			logger.Warn("editor did not exit in time, killing it")
			program.Kill()
			<-errCh
			return ctx.Err()
		}
	}
}
