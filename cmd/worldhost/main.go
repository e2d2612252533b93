// Command worldhost is the process entrypoint: it loads configuration,
// wires a core.World, and exposes serve/snapshot/layer/archetype
// subcommands over cobra.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	root := &cobra.Command{Use: "worldhost", Short: "real-time multiplayer world server"}
	root.PersistentFlags().String("config", "", "path to a config file (yaml/json/toml)")

	root.AddCommand(serveCmd())
	root.AddCommand(snapshotCmd())
	root.AddCommand(layerCmd())
	root.AddCommand(archetypeCmd())

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("worldhost failed")
		os.Exit(1)
	}
}
