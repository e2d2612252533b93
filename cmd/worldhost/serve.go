package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/WorldsMadeReal/world-host/core"
	"github.com/WorldsMadeReal/world-host/internal/adminhttp"
	"github.com/WorldsMadeReal/world-host/internal/wsgateway"
	"github.com/WorldsMadeReal/world-host/pkg/config"
)

// serveCmd runs the admin HTTP surface and the websocket gateway against a
// single shared core.World, plus the tick scheduler and the Prometheus
// metrics sampler.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the world server (admin API + websocket gateway)",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logrus.StandardLogger()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			world := core.NewWorld(cfg, log)

			store, err := adminhttp.NewFileSnapshotStore(cfg.Persistence.DataDirectory)
			if err != nil {
				return err
			}

			go world.Run()
			defer world.Stop()

			metricsCtx, cancelMetrics := signalContext()
			defer cancelMetrics()
			go world.Metrics.Run(metricsCtx, 5*time.Second)

			admin := adminhttp.NewServer(world, store, log)
			go func() {
				if err := admin.ListenAndServe(cfg.AdminAddr); err != nil {
					log.WithError(err).Error("admin server stopped")
				}
			}()

			heartbeat := time.Duration(cfg.Transport.HeartbeatMS) * time.Millisecond
			timeout := time.Duration(cfg.Transport.ConnectionTimeoutMS) * time.Millisecond
			gw := wsgateway.NewGateway(world.Sessions, heartbeat, timeout, log)

			log.WithFields(logrus.Fields{"admin": cfg.AdminAddr, "ws": cfg.WSAddr}).Info("worldhost serving")
			return gw.ListenAndServe(cfg.WSAddr)
		},
	}
}

// loadConfig resolves the --config flag shared by every subcommand.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// signalContext cancels on SIGINT/SIGTERM, used for background loops that
// should stop when the process is asked to shut down.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
