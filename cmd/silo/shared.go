package main

import (
	"context"

	"github.com/spf13/cobra"

	siloruntime "github.com/fluxgrid/silo"
	"github.com/fluxgrid/silo/actor"
	"github.com/fluxgrid/silo/config"
	"github.com/fluxgrid/silo/dispatch"
	"github.com/fluxgrid/silo/envelope"
	"github.com/fluxgrid/silo/log"
)

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to a YAML config file")
	cmd.Flags().String("silo-id", "silo-1", "this process's silo id")
	cmd.Flags().String("listen", "127.0.0.1:7700", "transport listen address")
	cmd.Flags().String("data-dir", "./data", "badger data directory")
	cmd.Flags().String("region", "", "region id for geo-aware placement")
	cmd.Flags().String("zone", "", "zone id for geo-aware placement")
	cmd.Flags().String("log-level", "info", "debug, info, warn, or error")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	siloID, _ := cmd.Flags().GetString("silo-id")
	listen, _ := cmd.Flags().GetString("listen")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	region, _ := cmd.Flags().GetString("region")
	zone, _ := cmd.Flags().GetString("zone")

	opts := []config.Option{
		config.WithSiloID(siloID),
		config.WithListenAddr(listen),
		config.WithDataDir(dataDir),
	}

	if path != "" {
		c, err := config.Load(path, opts...)
		if err != nil {
			return config.Config{}, err
		}
		c.Region = region
		c.Zone = zone
		return c, nil
	}

	c := config.Default(opts...)
	c.Region = region
	c.Zone = zone
	return c, nil
}

func newLogger(cmd *cobra.Command) (log.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	cfg := log.DefaultConfig()
	cfg.Level = level
	return log.New(cfg)
}

// pingHandler is the runtime's built-in smoke-test actor type, used to
// verify a process is reachable and processing turns without requiring a
// caller to register its own actor type first.
type pingHandler struct{}

func (pingHandler) OnActivate(context.Context) error   { return nil }
func (pingHandler) OnDeactivate(context.Context) error { return nil }

func pingFactory(string, func(string) (*actor.Activation, error)) (actor.Handler, error) {
	return pingHandler{}, nil
}

func pingMethod(_ context.Context, _ interface{}, e *envelope.Envelope) ([]byte, error) {
	return e.Payload, nil
}

func registerBuiltins(s *siloruntime.Silo) error {
	d := dispatch.NewDispatcher()
	if err := d.Register("Ping", pingMethod); err != nil {
		return err
	}
	return s.RegisterActorType("ping", pingFactory, d)
}
