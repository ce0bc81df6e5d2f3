// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/LeeDigitalWorks/ctxrelay/pkg/scheduler"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Configuration keys
const (
	KeyConcurrency = "scheduler.concurrency"
	KeyQueueSize   = "scheduler.queue_size"
	KeyRateLimit   = "scheduler.rate_limit"
	KeyRateBurst   = "scheduler.rate_burst"
	KeyLogLevel    = "log_level"
	KeyDebugAddr   = "debug_addr"
	KeyEnv         = "ENV"
)

var (
	ConfigurationFileDirectory string
)

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault(KeyConcurrency, scheduler.DefaultConcurrency)
	viper.SetDefault(KeyQueueSize, scheduler.DefaultQueueSize)
	viper.SetDefault(KeyRateLimit, 0)
	viper.SetDefault(KeyRateBurst, scheduler.DefaultRateBurst)
	viper.SetDefault(KeyLogLevel, "info")
	viper.SetDefault(KeyDebugAddr, "")
}

func LoadConfiguration(configFileName string, required bool) bool {
	viper.SetConfigName(configFileName)
	viper.AddConfigPath(ResolvePath(ConfigurationFileDirectory))
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.ctxrelay")
	viper.AddConfigPath("/etc/ctxrelay/")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if required {
				log.Fatal().Msgf("Config file not found: %s", configFileName)
			}
			log.Info().Msgf("Config file not found: %s", configFileName)
			return false
		}

		if required {
			log.Fatal().Err(err).Msgf("Failed to load required config file: %s", configFileName)
		}
		log.Warn().Err(err).Msgf("Failed to load config file: %s", configFileName)
		return false
	}
	log.Info().Msgf("Loaded config file: %s", viper.ConfigFileUsed())

	return true
}

// Scheduler returns the scheduler settings currently known to viper.
func Scheduler(name string) scheduler.Config {
	return scheduler.Config{
		Name:        name,
		Concurrency: viper.GetInt(KeyConcurrency),
		QueueSize:   viper.GetInt(KeyQueueSize),
		RateLimit:   viper.GetFloat64(KeyRateLimit),
		RateBurst:   viper.GetInt(KeyRateBurst),
	}
}

// ResolvePath expands ~ and environment variables and makes path absolute.
func ResolvePath(path string) string {
	if strings.Contains(path, "~") {
		if path == "~" {
			if usr, err := user.Current(); err == nil {
				path = usr.HomeDir
			}
		} else if strings.HasPrefix(path, "~/") {
			if usr, err := user.Current(); err == nil {
				path = filepath.Join(usr.HomeDir, path[2:])
			}
		}
	}

	path = os.ExpandEnv(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}

	return path
}
