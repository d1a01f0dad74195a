package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"govconsole/internal/services/mirror"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Copy every proposal from the canister into the mirror once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			worker := mirror.NewWorker(a.client, a.proposals, a.govs, a.metrics, a.cfg.Sync.PollEvery, a.cfg.Sync.Chunk)
			written, err := worker.SyncOnce(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Int("proposals", written).Msg("sync finished")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the mirror tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.pool == nil {
				log.Warn().Msg("DB_DSN not set, nothing to migrate")
				return nil
			}
			log.Info().Msg("schema is up to date")
			return nil
		},
	}
}
