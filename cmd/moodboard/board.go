package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"moodboard/internal/api"
	"moodboard/internal/config"
)

func newBoardCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "List, load, save and manage boards",
	}

	cmd.AddCommand(
		newBoardListCmd(cfg, jsonOutput),
		newBoardShowCmd(cfg, jsonOutput),
		newBoardLoadCmd(cfg),
		newBoardSaveCmd(cfg, jsonOutput),
		newBoardDeleteCmd(cfg, jsonOutput),
		newBoardDuplicateCmd(cfg, jsonOutput),
		newBoardStatsCmd(cfg, jsonOutput),
		newBoardSeedCmd(cfg, jsonOutput),
	)
	return cmd
}

func newBoardListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List boards, most recently saved first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				boards, err := client.ListBoards(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(boards)
				}
				for _, board := range boards {
					if err := writePlain("%s\n", formatBoardLine(board)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newBoardShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <board-id>",
		Short: "Show a board and its object statistics",
		Args:  argNames("board id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ShowBoard(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeBoardDetail(resp.Board, resp.Stats.ByType)
			})
		},
	}
}

// newBoardLoadCmd always prints JSON: the loaded document is the output.
func newBoardLoadCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "load <board-id>",
		Short: "Print a board document, creating an empty board if absent",
		Args:  argNames("board id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				board, err := client.LoadBoard(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(board)
			})
		},
	}
}

func newBoardSaveCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "save <board-id>",
		Short: "Save a board document read from --file or stdin",
		Args:  argNames("board id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readBoardData(path, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.SaveBoard(cmd.Context(), args[0], data)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("saved %s version %d\n", args[0], resp.Version)
			})
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "board document JSON file (default: stdin)")
	return cmd
}

func newBoardDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var cleanupImages bool

	cmd := &cobra.Command{
		Use:   "delete <board-id>",
		Short: "Delete a board",
		Args:  argNames("board id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				message, err := client.DeleteBoard(cmd.Context(), args[0], cleanupImages)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(map[string]string{"id": args[0], "message": message})
				}
				return writePlain("%s\n", message)
			})
		},
	}

	cmd.Flags().BoolVar(&cleanupImages, "cleanup-images", false, "also delete images no other board references")
	return cmd
}

func newBoardDuplicateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate <board-id>",
		Short: "Copy a board under a new generated id",
		Args:  argNames("board id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				board, err := client.DuplicateBoard(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(board)
				}
				return writePlain("created %s (%s)\n", board.ID, board.Name)
			})
		},
	}
}

func newBoardStatsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <board-id>",
		Short: "Summarize the images a board references",
		Args:  argNames("board id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				stats, err := client.BoardImageStats(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(stats)
				}
				lines := []string{
					fmt.Sprintf("images: %d", stats.TotalImages),
					fmt.Sprintf("total_size: %d", stats.TotalSize),
					fmt.Sprintf("average_size: %.0f", stats.AverageSize),
				}
				for _, mime := range sortedKeys(stats.Formats) {
					lines = append(lines, fmt.Sprintf("  %s: %d", mime, stats.Formats[mime]))
				}
				return writeLines(lines)
			})
		},
	}
}

func readBoardData(path string, stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read board data: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("board data is not valid JSON")
	}
	return json.RawMessage(data), nil
}
