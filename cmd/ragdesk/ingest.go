package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/ragdesk-backend/internal/app"
	runmodel "github.com/yungbote/ragdesk-backend/internal/domain/ingestion"
)

func ingestCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed every PDF in a local directory into the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), log, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.IngestLocal(cmd.Context(), dir, runmodel.TriggerCLI)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of PDFs (default ingest.pdf_dir)")
	return cmd
}
