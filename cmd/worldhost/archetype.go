package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/WorldsMadeReal/world-host/core"
)

// archetypeCmd groups archetype catalog tooling. Its only subcommand,
// `load`, parses a YAML seed file into a freshly constructed World's
// catalog and reports how many archetypes it defines; the result is not
// persisted or sent to a running server.
func archetypeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archetype",
		Short: "manage the archetype catalog",
	}
	cmd.AddCommand(archetypeLoadCmd())
	return cmd
}

// archetypeSeedFile is the on-disk shape of archetypes.yaml: a flat list
// of archetype records whose component fields are kept as generic maps
// until decoded through core.DecodeComponent, since yaml.v3 has no notion
// of the Component interface's concrete kinds.
type archetypeSeedFile struct {
	Archetypes []archetypeSeed `yaml:"archetypes"`
}

type archetypeSeed struct {
	ID         string                   `yaml:"id"`
	Name       string                   `yaml:"name"`
	Tags       []string                 `yaml:"tags"`
	Components []map[string]interface{} `yaml:"components"`
}

func archetypeLoadCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "parse an archetypes.yaml seed file and report what it defines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			world := core.NewWorld(cfg, logrus.StandardLogger())

			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var seed archetypeSeedFile
			if err := yaml.Unmarshal(raw, &seed); err != nil {
				return err
			}

			for _, a := range seed.Archetypes {
				components := make([]core.Component, 0, len(a.Components))
				for _, fields := range a.Components {
					encoded, err := json.Marshal(fields)
					if err != nil {
						return err
					}
					c, err := core.DecodeComponent(encoded)
					if err != nil {
						return fmt.Errorf("archetype %s: %w", a.ID, err)
					}
					components = append(components, c)
				}
				world.Catalog.Define(core.Archetype{ID: a.ID, Name: a.Name, Tags: a.Tags, Components: components})
			}

			fmt.Printf("loaded %d archetypes from %s\n", len(seed.Archetypes), file)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "archetypes.yaml", "archetype seed file path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
