// Command adminserver runs the admin HTTP surface standalone, against
// its own in-process core.World. For a combined deployment that shares one
// World with the websocket gateway, use `worldhost serve` instead.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/WorldsMadeReal/world-host/core"
	"github.com/WorldsMadeReal/world-host/internal/adminhttp"
	"github.com/WorldsMadeReal/world-host/pkg/config"
)

func main() {
	_ = godotenv.Load()

	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(os.Getenv("WORLDHOST_CONFIG"))
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	world := core.NewWorld(cfg, log)
	store, err := adminhttp.NewFileSnapshotStore(cfg.Persistence.DataDirectory)
	if err != nil {
		log.WithError(err).Fatal("init snapshot store")
	}

	go world.Run()
	defer world.Stop()

	srv := adminhttp.NewServer(world, store, log)
	if err := srv.ListenAndServe(cfg.AdminAddr); err != nil {
		log.WithError(err).Fatal("admin server failed")
	}
}
