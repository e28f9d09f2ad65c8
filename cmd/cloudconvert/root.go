package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/Cloudconvert/internal/config"
	"github.com/Ning0612/Cloudconvert/internal/logger"
)

// app holds state shared by every subcommand
type app struct {
	configPath string
	envFile    string
	logLevel   string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "cloudconvert",
		Short:         "Convert videos on a cloud drive to mp4 in place",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Shutdown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default: config.yaml in ., ./configs, the user config dir or ~/.cloudconvert)")
	flags.StringVar(&a.envFile, "env-file", "", "dotenv file loaded before the config (default: .env if present)")
	flags.StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(a),
		newPlanCmd(a),
		newLsCmd(a),
		newStatusCmd(a),
		newStopCmd(a),
		newUnlockCmd(a),
	)
	return root
}

// setup loads the environment, the config and the logger, in that order
func (a *app) setup() error {
	envFile, optional := a.envFile, false
	if envFile == "" {
		envFile, optional = ".env", true
	}
	if err := config.LoadEnvFile(envFile, optional); err != nil {
		return err
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}
