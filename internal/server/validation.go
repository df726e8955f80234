package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"moodboard/internal/models"
)

var (
	imageIDRegex = regexp.MustCompile(`^img-[0-9a-z]{26}$`)
	fileIDRegex  = regexp.MustCompile(`^file-[0-9a-z]{26}$`)
)

func validateImageID(id string) bool {
	return imageIDRegex.MatchString(id)
}

func validateFileID(id string) bool {
	return fileIDRegex.MatchString(id)
}

// validateBoardID checks a public board id: 1..255 characters, no slash,
// no surrounding whitespace. Ids are stored and matched exactly as given.
func validateBoardID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("boardId is required")
	case strings.TrimSpace(id) != id:
		return fmt.Errorf("boardId must not have leading or trailing whitespace")
	case utf8.RuneCountInString(id) > models.BoardIDMaxLength:
		return fmt.Errorf("boardId must not exceed %d characters", models.BoardIDMaxLength)
	case strings.Contains(id, "/"):
		return fmt.Errorf("boardId must not contain '/'")
	}
	return nil
}

// parseBoardIDField decodes the raw boardId of a save request.
func parseBoardIDField(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", fmt.Errorf("boardId is required")
	}
	var id string
	if err := json.Unmarshal(trimmed, &id); err != nil {
		return "", fmt.Errorf("boardId must be a string")
	}
	if err := validateBoardID(id); err != nil {
		return "", err
	}
	return id, nil
}

// normalizeDisplayName trims a user supplied asset name and enforces its length.
func normalizeDisplayName(field, name string, max int) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > max {
		return "", fieldError(field, fmt.Sprintf("%s must not exceed %d characters", field, max), ErrCodeInvalidName)
	}
	return name, nil
}
