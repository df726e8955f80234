package store

import (
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

const (
	idMaxAttempts = 20

	BoardIDPrefix = "board"
	ImageIDPrefix = "img"
	FileIDPrefix  = "file"
	BlobIDPrefix  = "bl"
)

// GenerateID returns a new id of the form <prefix>-<lowercase ulid>.
// It retries on collisions using the provided exists function.
func GenerateID(prefix string, exists func(string) (bool, error)) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("id prefix is required")
	}

	for i := 0; i < idMaxAttempts; i++ {
		id := prefix + "-" + strings.ToLower(ulid.Make().String())
		if exists == nil {
			return id, nil
		}
		ok, err := exists(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return id, nil
		}
	}

	return "", fmt.Errorf("unable to generate unique id")
}

// NewIdentity returns the internal row identity assigned to a board on insert.
func NewIdentity() string {
	return ulid.Make().String()
}

// GenerateBoardID returns a new public board id using the board- prefix.
func GenerateBoardID(exists func(string) (bool, error)) (string, error) {
	return GenerateID(BoardIDPrefix, exists)
}

// GenerateImageID returns a new image id using the img- prefix.
func GenerateImageID(exists func(string) (bool, error)) (string, error) {
	return GenerateID(ImageIDPrefix, exists)
}

// GenerateFileID returns a new file id using the file- prefix.
func GenerateFileID(exists func(string) (bool, error)) (string, error) {
	return GenerateID(FileIDPrefix, exists)
}

// GenerateBlobID returns a new blob id using the bl- prefix.
func GenerateBlobID(exists func(string) (bool, error)) (string, error) {
	return GenerateID(BlobIDPrefix, exists)
}
