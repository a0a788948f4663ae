package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	siloruntime "github.com/fluxgrid/silo"
)

func memberCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Inspect cluster membership"}
	cmd.AddCommand(memberListCmd())
	return cmd
}

func memberListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the members a freshly-started silo knows about",
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
			ctx := context.Background()
			if err := s.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = s.Stop() }()

			for _, id := range s.Members().List() {
				info, _ := s.Members().Get(id)
				fmt.Printf("%s\t%s\t%s/%s\tv%s\n", info.ID, info.Address, info.Region, info.Zone, info.Version)
			}
			return nil
		},
	}
	addCommonFlags(cmd)
	return cmd
}
