package main

import (
	"io"
	"net/url"
	"path/filepath"

	"github.com/spf13/cobra"

	"moodboard/internal/api"
	"moodboard/internal/config"
)

func newImageCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Upload, inspect and delete images",
	}

	cmd.AddCommand(
		newImageUploadCmd(cfg, jsonOutput),
		newImageListCmd(cfg, jsonOutput),
		newImageShowCmd(cfg, jsonOutput),
		newImageGetCmd(cfg),
		newImageRmCmd(cfg, jsonOutput),
		newImageBulkRmCmd(cfg, jsonOutput),
		newImageCleanupCmd(cfg, jsonOutput),
	)
	return cmd
}

func newImageUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var in api.ImageUpload

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload an image file",
		Args:  argNames("image path"),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openUpload(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in.Filename = filepath.Base(args[0])

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.UploadImage(cmd.Context(), in, f)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				verb := "uploaded"
				if resp.Deduplicated {
					verb = "already stored"
				}
				return writePlain("%s %s %dx%d %s\n", verb, resp.ID, resp.Width, resp.Height, resp.URL)
			})
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "display name (default: file name)")
	cmd.Flags().IntVar(&in.Width, "width", 0, "width in pixels (default: read from the image)")
	cmd.Flags().IntVar(&in.Height, "height", 0, "height in pixels (default: read from the image)")
	return cmd
}

func newImageListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		search  string
		page    int
		perPage int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List images, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			setIfNotEmpty(query, "search", search)
			if page > 0 {
				query.Set("page", intToString(page))
			}
			if perPage > 0 {
				query.Set("per_page", intToString(perPage))
			}

			return withClient(cfg, func(client *api.Client) error {
				images, pagination, err := client.ListImages(cmd.Context(), query)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"images": images, "pagination": pagination})
				}
				for _, image := range images {
					if err := writePlain("%s\n", formatImageLine(image)); err != nil {
						return err
					}
				}
				if pagination != nil {
					return writePlain("page %d of %d (%d images)\n", pagination.CurrentPage, pagination.LastPage, pagination.Total)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "match name or original file name")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "images per page")
	return cmd
}

func newImageShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <image-id>",
		Short: "Show image metadata",
		Args:  argNames("image id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				image, err := client.GetImage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(image)
				}
				return writeImageDetail(image)
			})
		},
	}
}

func newImageGetCmd(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <image-id>",
		Short: "Download image bytes to --output or stdout",
		Args:  argNames("image id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				return downloadTo(output, cmd.OutOrStdout(), func(w io.Writer) error {
					_, err := client.DownloadImage(cmd.Context(), args[0], w)
					return err
				})
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this path instead of stdout")
	return cmd
}

func newImageRmCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rm <image-id>",
		Short: "Delete an image no board references",
		Args:  argNames("image id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DeleteImage(cmd.Context(), args[0], force)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("deleted %s\n", resp.ID)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "delete even if boards reference the image")
	return cmd
}

func newImageBulkRmCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "bulk-rm <image-id>...",
		Short: "Delete several images, keeping those boards still reference",
		Args:  atLeastOneArg("image id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]string, 0, len(args))
			for _, arg := range args {
				ids = append(ids, splitCommaList(arg)...)
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.BulkDeleteImages(cmd.Context(), ids)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				_ = writePlain("deleted %d, protected %d\n", resp.DeletedCount, resp.ProtectedCount)
				for _, id := range resp.ProtectedIDs {
					_ = writePlain("  in use: %s\n", id)
				}
				return nil
			})
		},
	}
}

func newImageCleanupCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete images no board references",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.CleanupImages(cmd.Context(), dryRun)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				if resp.DryRun {
					_ = writePlain("dry run: %d unreferenced images\n", len(resp.CandidateIDs))
				} else {
					_ = writePlain("deleted %d unreferenced images\n", resp.DeletedCount)
				}
				for _, id := range resp.CandidateIDs {
					_ = writePlain("  %s\n", id)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list candidates without deleting")
	return cmd
}
