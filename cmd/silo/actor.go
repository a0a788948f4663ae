package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	siloruntime "github.com/fluxgrid/silo"
	"github.com/fluxgrid/silo/diagnostics"
)

func actorCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "actor", Short: "Inspect live activations"}
	cmd.AddCommand(actorListCmd())
	return cmd
}

func actorListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Paginate live activations on a freshly-started silo (spec §6)",
		RunE: func(cmd *cobra.Command, args []string) error {
			typeFilter, _ := cmd.Flags().GetString("type")
			idGlob, _ := cmd.Flags().GetString("id-glob")
			page, _ := cmd.Flags().GetInt("page")
			pageSize, _ := cmd.Flags().GetInt("page-size")

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
			ctx := context.Background()
			if err := s.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = s.Stop() }()

			src := diagnostics.ActivationTableSource{Table: s.Activations(), SiloID: cfg.SiloID}
			result, err := diagnostics.List(src, diagnostics.Query{
				TypeFilter:    typeFilter,
				IDGlobPattern: idGlob,
				Page:          page,
				PageSize:      pageSize,
			})
			if err != nil {
				return err
			}

			fmt.Printf("page %d/%d (%d total)\n", result.PageNumber, result.TotalPages, result.TotalCount)
			for _, a := range result.Items {
				fmt.Printf("%s/%s on %s, idle %.1fs\n", a.ActorType, a.ActorID, a.SiloID, a.IdleSeconds)
			}
			return nil
		},
	}
	cmd.Flags().String("type", "", "exact actor type filter")
	cmd.Flags().String("id-glob", "", "glob pattern over actor id ('*' and '?')")
	cmd.Flags().Int("page", 1, "1-based page number")
	cmd.Flags().Int("page-size", 50, "items per page")
	addCommonFlags(cmd)
	return cmd
}
