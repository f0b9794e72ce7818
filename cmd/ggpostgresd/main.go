package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ggpostgres/cmd/ggpostgresd/ui"
	"ggpostgres/internal/config"
	"ggpostgres/internal/logging"
)

func main() {
	if err := logging.Configure(logging.LevelInfo, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath    string
	envFile       string
	workDir       string
	logLevel      string
	logFormat     string
	noInteraction bool
}

func rootCmd() *cobra.Command {
	var (
		flags    rootFlags
		settings config.Settings
	)

	cmd := &cobra.Command{
		Use:           "ggpostgresd",
		Short:         "Keep a PostgreSQL container in sync with its desired state",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureInteraction(flags.noInteraction)
			s, err := loadSettings(cmd, flags)
			if err != nil {
				return err
			}
			settings = s
			return logging.Configure(s.LogLevel, s.LogFormat)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", config.DefaultPath, "Settings file (YAML or TOML)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Dotenv file with GGPOSTGRES_* variables")
	pf.StringVar(&flags.workDir, "work-dir", "", "Work directory for data, secrets and desired state")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")
	pf.BoolVar(&flags.noInteraction, "no-interaction", false, "Disable colored output")

	cmd.AddCommand(runCmd(&settings))
	cmd.AddCommand(shutdownCmd(&settings))
	cmd.AddCommand(statusCmd(&settings))
	cmd.AddCommand(validateCmd(&settings))
	return cmd
}

// loadSettings layers defaults, the settings file, the environment and flags.
func loadSettings(cmd *cobra.Command, flags rootFlags) (config.Settings, error) {
	if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Settings{}, fmt.Errorf("load env file %s: %w", flags.envFile, err)
	}

	s, err := config.Load(flags.configPath)
	if err != nil {
		return config.Settings{}, err
	}
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return config.Settings{}, err
	}

	pf := cmd.Flags()
	if pf.Changed("work-dir") {
		s.WorkDir = flags.workDir
	}
	if pf.Changed("log-level") {
		s.LogLevel = flags.logLevel
	}
	if pf.Changed("log-format") {
		s.LogFormat = flags.logFormat
	}

	if err := s.Resolve(); err != nil {
		return config.Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return config.Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}
