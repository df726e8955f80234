package main

import (
	"context"
	"fmt"
	"net"
	"testing"

	"moodboard/internal/api"
)

func TestFormatCLIError_NetworkGuidance(t *testing.T) {
	err := &net.DNSError{Err: "dial tcp: connection refused", Name: "127.0.0.1", IsTemporary: true}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: ensure a moodboard server is running at MOODBOARD_API_URL.") {
		t.Fatalf("expected connectivity guidance, got %v", lines)
	}
	if !containsLine(lines, "hint: start local server manually with: moodboard srv") {
		t.Fatalf("expected manual-start guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIUnknownServiceGuidance(t *testing.T) {
	err := &api.APIError{Status: 404, Message: "api error: 404 Not Found"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: verify MOODBOARD_API_URL points to a moodboard server.") {
		t.Fatalf("expected api-url guidance, got %v", lines)
	}
}

func TestFormatCLIError_ImageInUseGuidance(t *testing.T) {
	err := &api.APIError{Status: 409, Code: "conflict", ErrorCode: apiCodeImageInUse, Message: "image is used by boards: b1"}
	lines := formatCLIError(err)
	if lines[0] != "conflict: image is used by boards: b1" {
		t.Fatalf("expected error line first, got %v", lines)
	}
	if !containsLine(lines, "hint: boards still place this image; pass --force to delete it anyway.") {
		t.Fatalf("expected --force guidance, got %v", lines)
	}
}

func TestFormatCLIError_UploadTooLargeGuidance(t *testing.T) {
	err := &api.APIError{
		Status:    422,
		Code:      "validation_failed",
		ErrorCode: apiCodeUploadTooLarge,
		Message:   "validation failed",
		Fields:    map[string][]string{"image": {"image must not exceed 64 B"}},
	}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: raise uploads.max_image_bytes or uploads.max_file_bytes on the server.") {
		t.Fatalf("expected upload limit guidance, got %v", lines)
	}
	if containsLine(lines, "hint: fix the fields listed above and retry.") {
		t.Fatalf("expected a single validation hint, got %v", lines)
	}
}

func TestFormatCLIError_APIInternalGuidance(t *testing.T) {
	err := &api.APIError{Status: 500, Code: "internal", Message: "internal error"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: server returned an internal error; check server logs for details.") {
		t.Fatalf("expected internal-error guidance, got %v", lines)
	}
}

func TestFormatCLIError_TimeoutGuidance(t *testing.T) {
	lines := formatCLIError(fmt.Errorf("list boards: %w", context.DeadlineExceeded))
	if !containsLine(lines, "hint: request timed out; check server health or increase MOODBOARD_HTTP_TIMEOUT.") {
		t.Fatalf("expected timeout guidance, got %v", lines)
	}
}

func TestUniqueLinesDropsBlanksAndRepeats(t *testing.T) {
	got := uniqueLines([]string{"a", "", "b", "a"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected [a b], got %v", got)
	}
}

func containsLine(lines []string, expected string) bool {
	for _, line := range lines {
		if line == expected {
			return true
		}
	}
	return false
}
