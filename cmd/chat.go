package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	tea "charm.land/bubbletea/v2"

	"github.com/promptwise/promptwise/internal/app"
	"github.com/promptwise/promptwise/internal/config"
	"github.com/promptwise/promptwise/internal/tui"
)

// runChat initializes and starts the interactive terminal conversation.
func runChat() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	machine, err := a.NewMachine()
	if err != nil {
		return err
	}
	// Drain in-flight persistence writes before the pool closes.
	defer machine.Wait()

	model, err := tui.New(ctx, machine)
	if err != nil {
		return fmt.Errorf("creating interface: %w", err)
	}

	program := tea.NewProgram(model, tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("interface exited: %w", err)
	}
	return nil
}
