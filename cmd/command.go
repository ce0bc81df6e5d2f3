// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/config"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/env"
	"github.com/LeeDigitalWorks/ctxrelay/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "ctxrelay",
	Short: "ctxrelay - request context propagation across filters and workers",
	Long: `ctxrelay binds per-request data (request id, current request) into a
scope, carries it across scheduler workers and releases it when the request
completes, on both the blocking and the asynchronous filter stacks.`,
	PersistentPreRun: initialize,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&config.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	pf.String(config.KeyLogLevel, "info", "Log level (trace, debug, info, warn, error)")

	viper.BindPFlag(config.KeyLogLevel, pf.Lookup(config.KeyLogLevel))
}

// initialize loads the optional configuration file and applies logging settings.
func initialize(cmd *cobra.Command, args []string) {
	config.SetDefaults()
	config.LoadConfiguration("ctxrelay", false)
	env.Load()

	if env.IsLocal() {
		logger.SetOutput(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	levelStr := viper.GetString(config.KeyLogLevel)
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || level == zerolog.NoLevel {
		logger.Warn().Err(err).Str("log_level", levelStr).Msg("invalid log level, keeping current level")
		return
	}
	logger.SetLevel(level)
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
