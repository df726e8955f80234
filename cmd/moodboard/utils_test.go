package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"moodboard/internal/config"
)

func TestSplitCommaList(t *testing.T) {
	got := splitCommaList(" a, ,b ,c")
	if strings.Join(got, "|") != "a|b|c" {
		t.Fatalf("expected a|b|c, got %v", got)
	}
	if splitCommaList("  ") != nil {
		t.Fatal("expected nil for blank input")
	}
}

func TestReadBoardData(t *testing.T) {
	data, err := readBoardData("", strings.NewReader(`{"objects":[]}`))
	if err != nil {
		t.Fatalf("read stdin: %v", err)
	}
	if string(data) != `{"objects":[]}` {
		t.Fatalf("unexpected data %s", data)
	}

	if _, err := readBoardData("-", strings.NewReader("{")); err == nil {
		t.Fatal("expected invalid JSON error")
	}

	path := filepath.Join(t.TempDir(), "board.json")
	if err := os.WriteFile(path, []byte(`{"objects":[{"id":"o1"}]}`), 0o600); err != nil {
		t.Fatalf("write board: %v", err)
	}
	if _, err := readBoardData(path, nil); err != nil {
		t.Fatalf("read file: %v", err)
	}
}

func TestDownloadToRemovesPartialFileOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	err := downloadTo(path, nil, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial file removed, stat err=%v", statErr)
	}

	var stdout bytes.Buffer
	if err := downloadTo("", &stdout, func(w io.Writer) error {
		_, err := w.Write([]byte("bytes"))
		return err
	}); err != nil {
		t.Fatalf("download to stdout: %v", err)
	}
	if stdout.String() != "bytes" {
		t.Fatalf("expected bytes on stdout, got %q", stdout.String())
	}
}

func TestOpenUploadRejectsDirectory(t *testing.T) {
	if _, err := openUpload(t.TempDir()); err == nil {
		t.Fatal("expected directory error")
	}
}

func TestServerProcessEnvUsesConfigKeys(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = "/tmp/boards.db"
	env := serverProcessEnv(&cfg)
	if env[0] != "MOODBOARD_DB_PATH=/tmp/boards.db" {
		t.Fatalf("expected db path env, got %q", env[0])
	}
	if env[1] != "MOODBOARD_API_URL="+config.DefaultAPIURL {
		t.Fatalf("expected api url env, got %q", env[1])
	}
}
