package main

import (
	"fmt"

	"codeberg.org/mutker/thermhint/internal/config"
	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/logger"
	"github.com/spf13/cobra"
)

var (
	loader *config.Loader
	cfg    *config.Config
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:           "thermhintd",
	Short:         "Thermal and performance hint coordinator",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		loader, err = config.NewLoader()
		if err != nil {
			return err
		}
		if err := loader.BindFlags(cmd.Flags()); err != nil {
			return err
		}
		cfg, err = loader.Load()
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to load config: %v\n", err)
			return err
		}

		logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
		if err := applyLogLevel(cfg.LogLevel); err != nil {
			return err
		}
		logger.Debug().Str("config_file", loader.ConfigFile()).Msg("Config loaded")

		return nil
	},
}

func applyLogLevel(level config.LogLevel) error {
	parsed, err := logger.ParseLevel(level.String())
	if err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Send()
		}
		return err
	}
	logger.SetLogLevel(parsed)
	return nil
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(historyCmd)
}
