package commands

import (
	"fmt"

	"github.com/bryanchriswhite/osk/internal/inputmethod"
	"github.com/bryanchriswhite/osk/internal/window"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where taps would go",
	Long: `Show the window that currently holds input focus, which is where key
taps are delivered, and whether the input method service is registered.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	x, err := window.Connect()
	if err != nil {
		return err
	}
	defer x.Close()

	focus, err := x.InputFocus()
	if err != nil {
		return fmt.Errorf("failed to get input focus: %w", err)
	}

	fmt.Fprintf(out, "🖥  Display backend: %s\n", x.Name())
	switch focus {
	case 0:
		fmt.Fprintln(out, "   Focused window: none")
	case 1, x.Root():
		fmt.Fprintln(out, "   Focused window: root (pointer root)")
	default:
		info, err := x.Describe(focus)
		if err != nil {
			return fmt.Errorf("failed to describe window 0x%x: %w", uint32(focus), err)
		}
		fmt.Fprintf(out, "   Focused window: 0x%x\n", info.ID)
		fmt.Fprintf(out, "     Title: %s\n", info.Title)
		fmt.Fprintf(out, "     Class: %s\n", info.Class)
		if info.PID != 0 {
			fmt.Fprintf(out, "     PID:   %d\n", info.PID)
		}
	}

	if !cfg.InputMethod.Enabled {
		fmt.Fprintln(out, "⌨  Input method: disabled (raw key events only)")
		return nil
	}

	bus, err := inputmethod.ConnectSessionBus()
	if err != nil {
		return err
	}
	defer bus.Close()

	owned, err := bus.NameHasOwner(cfg.InputMethod.Name)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", cfg.InputMethod.Name, err)
	}
	state := inputmethod.Disconnected
	if owned {
		state = inputmethod.Connected
	}
	fmt.Fprintf(out, "⌨  Input method %s: %s\n", cfg.InputMethod.Name, state)
	return nil
}
