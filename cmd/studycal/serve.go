package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	appLog "studycal/internal/log"
	"studycal/internal/metrics"
	"studycal/internal/web"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	var (
		listen    string
		noRefresh bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			m := metrics.New()
			svc, err := buildServices(ctx, cfg, cfg.Sources(), m)
			if err != nil {
				return err
			}
			defer svc.Close()

			srv := web.NewServer(cfg, svc.planner, m)
			if !noRefresh && len(cfg.ICS) > 0 {
				stop, err := srv.StartRefresher(ctx)
				if err != nil {
					return err
				}
				defer stop()
			}

			appLog.Info("studycal serving", "version", Version, "listen", cfg.Listen, "feeds", len(cfg.ICS))
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "do not refresh feeds on the cron schedule")
	return cmd
}
