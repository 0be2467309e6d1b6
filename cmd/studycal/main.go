package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"studycal/internal/config"
	appLog "studycal/internal/log"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

type rootFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "studycal",
		Short:         "Study planner that fits study sessions into the free time of your calendars",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			appLog.Sync()
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "./studycal.yaml", "path to config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(newScheduleCmd(flags))
	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newStatsCmd(flags))
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig reads the dotenv file and the config and initializes logging.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(flags.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := appLog.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	appLog.Debug("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"refresh", cfg.RefreshCron,
		"horizon_days", cfg.HorizonDays,
		"ics_count", len(cfg.ICS),
		"database", cfg.Database.DSN != "",
		"redis", cfg.Redis.Addr != "",
	)
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "studycal %s (commit=%s, built=%s)\n", Version, CommitSHA, BuildDate)
		},
	}
}
