package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"moodboard/internal/api"
	"moodboard/internal/config"
)

// seedFile is the YAML layout accepted by "board seed".
//
//	boards:
//	  - id: inspiration
//	    name: Inspiration
//	    settings: {backgroundColor: "#ffffff"}
//	    objects:
//	      - {id: t1, type: text, x: 10, y: 20, text: Hello}
type seedFile struct {
	Boards []seedBoard `yaml:"boards"`
}

type seedBoard struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Settings    map[string]any   `yaml:"settings"`
	Objects     []map[string]any `yaml:"objects"`
}

func newBoardSeedCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Save every board described in a YAML seed file",
		Args:  argNames("seed file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			boards, err := parseSeed(f)
			if err != nil {
				return err
			}

			return withClient(cfg, func(client *api.Client) error {
				saved := make([]api.SaveBoardResponse, 0, len(boards))
				for _, board := range boards {
					data, err := board.documentJSON()
					if err != nil {
						return err
					}
					resp, err := client.SaveBoard(cmd.Context(), board.ID, data)
					if err != nil {
						return fmt.Errorf("seed board %s: %w", board.ID, err)
					}
					saved = append(saved, resp)
					if !*jsonOutput {
						_ = writePlain("seeded %s version %d\n", board.ID, resp.Version)
					}
				}
				if *jsonOutput {
					return writeJSON(saved)
				}
				return nil
			})
		},
	}
}

func parseSeed(r io.Reader) ([]seedBoard, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("seed file is empty")
		}
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Boards))
	for i, board := range file.Boards {
		id := strings.TrimSpace(board.ID)
		if id == "" {
			return nil, fmt.Errorf("boards[%d]: id is required", i)
		}
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("boards[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		file.Boards[i].ID = id
	}
	return file.Boards, nil
}

// documentJSON renders the board as the boardData payload of a save.
func (b seedBoard) documentJSON() (json.RawMessage, error) {
	doc := map[string]any{}
	objects := b.Objects
	if objects == nil {
		objects = []map[string]any{}
	}
	doc["objects"] = objects
	if b.Name != "" {
		doc["name"] = b.Name
	}
	if b.Description != "" {
		doc["description"] = b.Description
	}
	if len(b.Settings) > 0 {
		doc["settings"] = b.Settings
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode board %s: %w", b.ID, err)
	}
	return data, nil
}
