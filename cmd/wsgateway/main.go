// Command wsgateway runs the websocket transport standalone, against
// its own in-process core.World. For a combined deployment that shares one
// World with the admin HTTP surface, use `worldhost serve` instead.
package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/WorldsMadeReal/world-host/core"
	"github.com/WorldsMadeReal/world-host/internal/wsgateway"
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
	go world.Run()
	defer world.Stop()

	heartbeat := time.Duration(cfg.Transport.HeartbeatMS) * time.Millisecond
	timeout := time.Duration(cfg.Transport.ConnectionTimeoutMS) * time.Millisecond
	gw := wsgateway.NewGateway(world.Sessions, heartbeat, timeout, log)

	if err := gw.ListenAndServe(cfg.WSAddr); err != nil {
		log.WithError(err).Fatal("websocket gateway failed")
	}
}
