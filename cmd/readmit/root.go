package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gyeh/readmitstats/internal/config"
	"github.com/gyeh/readmitstats/internal/exitcode"
	"github.com/gyeh/readmitstats/internal/logging"
)

var (
	cfg        = envConfig()
	configPath string
)

// envConfig runs before any command's init so flag defaults see the environment.
func envConfig() config.Config {
	c, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v; using defaults\n", err)
		return config.Defaults()
	}
	return c
}

var rootCmd = &cobra.Command{
	Use:   "readmit",
	Short: "Medicare 30-day readmission rates from DE-SynPUF claims",
	Long: "Imports DE-SynPUF inpatient claims into Postgres, classifies 30-day readmissions " +
		"and reports rates by state, sex and year, optionally scoped by a free-text condition.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return nil
		}
		if err := cfg.LoadFromFile(configPath, explicitSettings(cmd)...); err != nil {
			log := logging.Setup(cfg.LogFormat, cfg.LogLevel)
			log.Error().Err(err).Str("path", configPath).Msg("settings file rejected")
			os.Exit(exitcode.UsageError)
		}
		return nil
	},
}

// settingsKeys maps command-line flags to the settings-file keys they shadow.
var settingsKeys = map[string]string{
	"grouping": "grouping",
	"source":   "sources",
}

// explicitSettings lists the settings-file keys whose flag was set on cmd's
// command line.
func explicitSettings(cmd *cobra.Command) []string {
	var keys []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if key, ok := settingsKeys[f.Name]; ok {
			keys = append(keys, key)
		}
	})
	return keys
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.DSN, "dsn", cfg.DSN, "Postgres connection string (or set DATABASE_URL)")
	pf.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	pf.StringVar(&configPath, "config", "", "Optional YAML settings file")
}
