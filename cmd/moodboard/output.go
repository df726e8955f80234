package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"moodboard/internal/api"
	"moodboard/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{Indent: true}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(layout string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, layout, args...)
	return err
}

func writeLines(lines []string) error {
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatBoardLine(board api.BoardSummary) string {
	return fmt.Sprintf("%s  v%d  %d objects  saved %s  %s", board.ID, board.Version, board.ObjectStats.Total, format.Age(board.LastSaved), board.Name)
}

func writeBoardDetail(board api.BoardResponse, stats map[string]int) error {
	lines := []string{
		fmt.Sprintf("id: %s", board.ID),
		fmt.Sprintf("name: %s", board.Name),
		fmt.Sprintf("version: %d", board.Version),
		fmt.Sprintf("objects: %d", len(board.Objects)),
		fmt.Sprintf("created: %s", formatTime(board.Created)),
		fmt.Sprintf("last_saved: %s", formatTime(board.LastSaved)),
	}
	if board.Description != "" {
		lines = append(lines, fmt.Sprintf("description: %s", board.Description))
	}
	if len(stats) > 0 {
		lines = append(lines, "by_type:")
		for _, key := range sortedKeys(stats) {
			lines = append(lines, fmt.Sprintf("  %s: %d", key, stats[key]))
		}
	}
	return writeLines(lines)
}

func formatImageLine(image api.ImageResponse) string {
	return fmt.Sprintf("%s  %dx%d  %s  %s", image.ID, image.Width, image.Height, format.Size(image.Size), image.Name)
}

func writeImageDetail(image api.ImageResponse) error {
	return writeLines([]string{
		fmt.Sprintf("id: %s", image.ID),
		fmt.Sprintf("name: %s", image.Name),
		fmt.Sprintf("original_name: %s", image.OriginalName),
		fmt.Sprintf("mime_type: %s", image.MimeType),
		fmt.Sprintf("size: %s", format.Size(image.Size)),
		fmt.Sprintf("dimensions: %dx%d", image.Width, image.Height),
		fmt.Sprintf("url: %s", image.URL),
		fmt.Sprintf("created_at: %s", formatTime(image.CreatedAt)),
	})
}

func writeFileDetail(file api.FileResponse) error {
	lines := []string{
		fmt.Sprintf("id: %s", file.ID),
		fmt.Sprintf("name: %s", file.Name),
		fmt.Sprintf("mime_type: %s", file.MimeType),
		fmt.Sprintf("size: %s", file.FormattedSize),
		fmt.Sprintf("url: %s", file.URL),
	}
	if file.CreatedAt != nil {
		lines = append(lines, fmt.Sprintf("created_at: %s", formatTime(*file.CreatedAt)))
	}
	if file.UpdatedAt != nil {
		lines = append(lines, fmt.Sprintf("updated_at: %s", formatTime(*file.UpdatedAt)))
	}
	return writeLines(lines)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
