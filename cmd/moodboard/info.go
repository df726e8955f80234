package main

import (
	"github.com/spf13/cobra"

	"moodboard/internal/api"
	"moodboard/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show database, asset and blob counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}
				if resp.DBPath == "" {
					resp.DBPath = cfg.DBPath
				}

				if *jsonOutput {
					return writeJSON(resp)
				}

				_ = writePlain("db_path: %s\n", resp.DBPath)
				_ = writePlain("schema_version: %d\n", resp.SchemaVersion)
				_ = writePlain("blob_backend: %s\n", resp.BlobBackend)
				_ = writePlain("boards: %d\n", resp.Boards)
				_ = writePlain("images: %d\n", resp.Images)
				_ = writePlain("files: %d\n", resp.Files)
				return writePlain("blobs: %d\n", resp.Blobs)
			})
		},
	}
}
