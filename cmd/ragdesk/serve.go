package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/ragdesk-backend/internal/app"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat and ingestion HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), log, cfg)
			if err != nil {
				log.Error("bootstrap failed", "error", err)
				log.Sync()
				return err
			}
			defer a.Close()
			return a.Run(cmd.Context())
		},
	}
}
