package main

import (
	"github.com/spf13/cobra"

	"moodboard/internal/api"
	"moodboard/internal/config"
	"moodboard/internal/format"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	cmd.AddCommand(newAdminGCBlobsCmd(cfg, jsonOutput))
	return cmd
}

func newAdminGCBlobsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		apply     bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "gc-blobs",
		Short: "Garbage-collect blobs no image or file references",
		Long:  "Lists unreferenced blobs. Pass --apply to delete them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				req := api.BlobGCRequest{DryRun: !apply, BatchSize: batchSize}
				resp, err := client.GCBlobs(cmd.Context(), req, apply)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				mode := "dry run"
				if !resp.DryRun {
					mode = "applied"
				}
				return writePlain("%s: candidates=%d deleted=%d failed=%d reclaimed=%s\n",
					mode, resp.CandidateCount, resp.DeletedCount, resp.FailedCount, format.Size(resp.ReclaimedBytes))
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete unreferenced blobs (default is a dry run)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "blobs deleted per batch (default: images.gc_batch_size)")
	return cmd
}
