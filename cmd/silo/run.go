package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	siloruntime "github.com/fluxgrid/silo"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start this silo process and block until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			s := siloruntime.New(cfg, logger, nil)
			if err := registerBuiltins(s); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := s.Start(ctx); err != nil {
				return fmt.Errorf("starting silo %s: %w", cfg.SiloID, err)
			}
			defer func() { _ = s.Stop() }()

			fmt.Printf("silo %s listening on %s (data dir %s)\n", cfg.SiloID, cfg.ListenAddr, cfg.DataDir)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh
			fmt.Println("shutting down...")
			return nil
		},
	}
	addCommonFlags(cmd)
	return cmd
}
