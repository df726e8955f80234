package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"time"

	"moodboard/internal/api"
	"moodboard/internal/config"
)

const (
	probeTimeout       = 500 * time.Millisecond
	serverStartTimeout = 3 * time.Second
	serverPollInterval = 100 * time.Millisecond
)

// localServer is a "moodboard srv" child started on behalf of one command.
type localServer struct {
	cmd *exec.Cmd
}

func (s *localServer) stop() {
	if s == nil || s.cmd == nil || s.cmd.Process == nil {
		return
	}
	_ = s.cmd.Process.Kill()
	_ = s.cmd.Wait()
}

func withClient(cfg *config.Config, fn func(*api.Client) error) error {
	client := api.NewClient(cfg.APIURL)
	child, err := ensureServer(cfg, client)
	if err != nil {
		return err
	}
	defer child.stop()
	return fn(client)
}

// ensureServer returns nil when a server already answers at the configured
// URL. Otherwise it starts one and waits until it is reachable.
func ensureServer(cfg *config.Config, client *api.Client) (*localServer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	err := client.Ping(ctx)
	cancel()
	if err == nil {
		return nil, nil
	}

	child, err := startServerProcess(cfg)
	if err != nil {
		return nil, fmt.Errorf("start local server: %w", err)
	}
	if err := waitForServer(client, serverStartTimeout); err != nil {
		child.stop()
		return nil, err
	}
	return child, nil
}

func startServerProcess(cfg *config.Config) (*localServer, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exe, "srv")
	cmd.Env = append(os.Environ(), serverProcessEnv(cfg)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &localServer{cmd: cmd}, nil
}

func serverProcessEnv(cfg *config.Config) []string {
	return []string{
		config.EnvKey("db_path") + "=" + cfg.DBPath,
		config.EnvKey("api_url") + "=" + cfg.APIURL,
	}
}

func waitForServer(client *api.Client, timeout time.Duration) error {
	ticker := time.NewTicker(serverPollInterval)
	defer ticker.Stop()
	deadline := time.After(timeout)

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*serverPollInterval)
		err := client.Ping(ctx)
		cancel()
		switch {
		case err == nil:
			return nil
		case !isConnRefused(err):
			// Something that is not a moodboard server owns the port.
			return err
		}

		select {
		case <-ticker.C:
		case <-deadline:
			return errors.New("server did not start in time")
		}
	}
}

func isConnRefused(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
