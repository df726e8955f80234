package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"moodboard/internal/blobstore"
	"moodboard/internal/cache"
	"moodboard/internal/config"
	"moodboard/internal/server"
	"moodboard/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the moodboard API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, slog.Default().With("component", "server"))
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	addr, err := server.ListenAddr(cfg.APIURL)
	if err != nil {
		return err
	}

	logger.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	bs, err := openBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	opts := server.Options{
		DBPath:      cfg.DBPath,
		PublicURL:   cfg.PublicURL,
		CORSOrigins: cfg.CORS.AllowedOrigins,
		Uploads: server.UploadLimits{
			MaxImageBytes:      cfg.Uploads.MaxImageBytes,
			MaxFileBytes:       cfg.Uploads.MaxFileBytes,
			MultipartMaxMemory: cfg.Uploads.MultipartMaxMemory,
		},
		Images: server.ImagePolicy{
			CleanupGracePeriod: cfg.Images.CleanupGracePeriod,
			GCBatchSize:        cfg.Images.GCBatchSize,
		},
	}
	if strings.TrimSpace(opts.PublicURL) == "" {
		opts.PublicURL = cfg.APIURL
	}

	if strings.TrimSpace(cfg.Redis.URL) != "" {
		lookup, err := cache.NewImageLookup(cfg.Redis.URL, cfg.Redis.TTL, st, logger)
		if err != nil {
			return err
		}
		defer lookup.Close()
		if err := lookup.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		logger.Info("image lookup cache enabled", "ttl", cfg.Redis.TTL)
		opts.ImageLookup = lookup
	}

	srv := server.New(addr, st, bs, logger, opts)
	return srv.ListenAndServe(ctx)
}

func openBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blobstore.BlobStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Blobs.Backend)) {
	case "s3":
		logger.Info("using s3 blob store", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
		return blobstore.NewS3(ctx, blobstore.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			PathStyle: cfg.S3.PathStyle,
		})
	case "", config.DefaultBlobBackend:
		root := cfg.BlobRoot()
		logger.Info("using local blob store", "root", root)
		return blobstore.NewLocalCAS(root)
	default:
		return nil, fmt.Errorf("unknown blobs.backend %q", cfg.Blobs.Backend)
	}
}
