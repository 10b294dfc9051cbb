package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/ragdesk-backend/internal/app"
)

func triggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Receive storage CloudEvents and forward them to the /embed webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			t, err := app.NewTrigger(cmd.Context(), log, cfg)
			if err != nil {
				return err
			}
			defer t.Close()
			return t.Run(cmd.Context())
		},
	}
}

func watchCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a local directory and ingest PDFs as they are written",
		Long: "With trigger.webhook_url set, each settled PDF is uploaded to the configured " +
			"object storage under storage.prefix and its object name is forwarded to the " +
			"webhook like a storage event; the receiving service must read the same storage. " +
			"Otherwise the directory is re-ingested in process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Ingest.PDFDir
			}
			if cfg.Trigger.WebhookURL != "" {
				t, err := app.NewTrigger(cmd.Context(), log, cfg)
				if err != nil {
					return err
				}
				defer t.Close()
				return t.Watch(cmd.Context(), dir)
			}
			a, err := app.New(cmd.Context(), log, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.WatchLocal(cmd.Context(), dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to watch (default ingest.pdf_dir)")
	return cmd
}
