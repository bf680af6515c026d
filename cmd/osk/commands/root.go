package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/osk/internal/config"
	"github.com/bryanchriswhite/osk/internal/logger"
	"github.com/bryanchriswhite/osk/internal/shell"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "osk",
		Short: "OSK - on-screen keyboard for X11",
		Long: `OSK shows a small always-on-top keyboard window that never takes input
focus. Taps on its keys are typed into whichever window currently has focus.

Features:
  • Single characters are sent as synthetic X11 key events
  • Text snippets are forwarded to an input method over the session bus
  • Keyboard layouts are plain HTML pages, reloaded when edited
  • Persistent YAML configuration`,
		Example: `  # Run with the built-in layout
  osk

  # Run a custom layout without the input method
  osk --page ~/layouts/numpad.html --raw

  # Debug logging
  osk --log-level debug`,
		SilenceUsage: true,
		RunE:         runKeyboard,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/osk/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().String("page", "", "keyboard layout HTML file (default is the built-in layout)")
	rootCmd.Flags().Bool("raw", false, "send raw key events only, never contact the input method")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("page.path", rootCmd.Flags().Lookup("page"))
	viper.BindPFlag("raw", rootCmd.Flags().Lookup("raw"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if level := viper.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}
	if page := viper.GetString("page.path"); page != "" {
		cfg.Page.Path = page
	}
	if viper.GetBool("raw") {
		cfg.InputMethod.Enabled = false
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	return configMgr, cfg, nil
}

func runKeyboard(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.WithComponent("main")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Bool("input_method", cfg.InputMethod.Enabled).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := shell.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	log.Info().Msg("✅ Keyboard is running, close the window or press Ctrl+C to stop")
	if err := app.Run(ctx); err != nil {
		return err
	}

	log.Info().Msg("Shutting down gracefully...")
	return nil
}
