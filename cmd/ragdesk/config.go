package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/ragdesk-backend/internal/config"
)

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			redacted := *cfg
			for _, s := range []*string{&redacted.Auth.Secret, &redacted.Vector.QdrantAPIKey, &redacted.Storage.S3SecretKey, &redacted.Sessions.RedisPassword, &redacted.Storage.Credentials, &redacted.Vector.PGVectorDSN} {
				if *s != "" {
					*s = "[redacted]"
				}
			}
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(redacted)
		},
	}
}
