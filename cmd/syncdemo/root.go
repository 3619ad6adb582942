package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// config is the YAML file the demo reads; flags override it.
type config struct {
	DBPath           string   `yaml:"db_path"`
	Identity         string   `yaml:"identity"`
	Ephemeral        bool     `yaml:"ephemeral"`
	StalenessMinutes int      `yaml:"staleness_minutes"`
	SyncIntervalSecs int      `yaml:"sync_interval_seconds"`
	FailureRate      float64  `yaml:"failure_rate"`
	SeedEntities     []string `yaml:"seed_entities"`
	CreateLatencyMs  int      `yaml:"create_latency_ms"`
}

func defaultConfig() config {
	return config{
		DBPath:           "./syncdemo-data",
		Identity:         "demo-user",
		StalenessMinutes: 30,
		SyncIntervalSecs: 60,
		SeedEntities:     []string{"Acme Corp", "Globex", "Initech"},
	}
}

func (c config) staleness() time.Duration {
	return time.Duration(c.StalenessMinutes) * time.Minute
}

func (c config) syncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSecs) * time.Second
}

func (c config) createLatency() time.Duration {
	return time.Duration(c.CreateLatencyMs) * time.Millisecond
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "syncdemo",
		Short: "Interactive demo of the offline-first accounts sync engine",
		Long: "syncdemo drives the offline cache and mutation-sync engine against a\n" +
			"scripted in-process server. Toggle connectivity, create records while\n" +
			"offline, and watch them reconcile on reconnect.",
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config")
	cmd.AddCommand(newRunCommand(&configPath))
	return cmd
}
