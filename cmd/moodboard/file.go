package main

import (
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"moodboard/internal/api"
	"moodboard/internal/config"
)

func newFileCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Upload and manage generic files",
	}

	cmd.AddCommand(
		newFileUploadCmd(cfg, jsonOutput),
		newFileShowCmd(cfg, jsonOutput),
		newFileGetCmd(cfg),
		newFileRenameCmd(cfg, jsonOutput),
		newFileRmCmd(cfg, jsonOutput),
	)
	return cmd
}

func newFileUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a file",
		Args:  argNames("file path"),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openUpload(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withClient(cfg, func(client *api.Client) error {
				file, err := client.UploadFile(cmd.Context(), filepath.Base(args[0]), name, f)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(file)
				}
				verb := "uploaded"
				if file.Deduplicated {
					verb = "already stored"
				}
				return writePlain("%s %s %s %s\n", verb, file.ID, file.FormattedSize, file.URL)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (default: file name)")
	return cmd
}

func newFileShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file-id>",
		Short: "Show file metadata",
		Args:  argNames("file id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				file, err := client.GetFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(file)
				}
				return writeFileDetail(file)
			})
		},
	}
}

func newFileGetCmd(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <file-id>",
		Short: "Download file bytes to --output or stdout",
		Args:  argNames("file id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				return downloadTo(output, cmd.OutOrStdout(), func(w io.Writer) error {
					_, err := client.DownloadFile(cmd.Context(), args[0], w)
					return err
				})
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this path instead of stdout")
	return cmd
}

func newFileRenameCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <file-id> <name>",
		Short: "Change a file's display name",
		Args:  argNames("file id", "new name"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				file, err := client.RenameFile(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(file)
				}
				return writePlain("renamed %s to %s\n", file.ID, file.Name)
			})
		},
	}
}

func newFileRmCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <file-id>",
		Short: "Delete a file",
		Args:  argNames("file id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DeleteFile(cmd.Context(), args[0])
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
}
