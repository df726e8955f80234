package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"moodboard/internal/api"
)

// Numeric API error codes the CLI gives specific guidance for.
const (
	apiCodeImageInUse     = 2101
	apiCodeUploadTooLarge = 1013
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.ErrorCode == apiCodeImageInUse:
			lines = append(lines, "hint: boards still place this image; pass --force to delete it anyway.")
		case apiErr.ErrorCode == apiCodeUploadTooLarge, apiErr.Status == http.StatusRequestEntityTooLarge:
			lines = append(lines, "hint: raise uploads.max_image_bytes or uploads.max_file_bytes on the server.")
		case apiErr.Code == "validation_failed":
			lines = append(lines, "hint: fix the fields listed above and retry.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify MOODBOARD_API_URL points to a moodboard server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase MOODBOARD_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a moodboard server is running at MOODBOARD_API_URL.",
			"hint: start local server manually with: moodboard srv",
			"hint: you can increase MOODBOARD_HTTP_TIMEOUT for slower environments.",
		)
		if snapHint := snapStartHint(); snapHint != "" {
			lines = append(lines, snapHint)
		}
	}

	return uniqueLines(lines)
}

func snapStartHint() string {
	if os.Getenv("SNAP") == "" && os.Getenv("SNAP_NAME") == "" {
		return ""
	}
	return "hint: in snap installs, start the daemon with: snap start moodboard.daemon"
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
