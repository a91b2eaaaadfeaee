// Package env resolves command settings from cobra flags and the environment.
package env

import (
	"os"

	"github.com/futurelot/nscache/logger"
	"github.com/spf13/cobra"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok && val != "" {
		return val
	}
	return defaultValue
}

// LogLevel reads the --log-level flag, then NSCACHE_LOG_LEVEL, defaulting to info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	return logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.LevelEnv, ""), logger.LevelInfo)
}

// NewLogger returns a console logger at LogLevel(cmd).
func NewLogger(cmd *cobra.Command) logger.Logger {
	return logger.NewConsoleLogger(LogLevel(cmd))
}
