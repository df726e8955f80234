package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"moodboard/internal/blobstore"
	"moodboard/internal/canvas"
	"moodboard/internal/store"
)

const (
	allowRemoteEnvKey = "MOODBOARD_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Options carries the optional collaborators and limits of a Server.
type Options struct {
	DBPath    string
	PublicURL string

	// ImageLookup replaces the store as the resolver's existence check,
	// typically with a cache in front of it.
	ImageLookup canvas.ImageLookup

	CORSOrigins []string
	Uploads     UploadLimits
	Images      ImagePolicy
}

// Server wraps HTTP handlers for the moodboard API.
type Server struct {
	addr         string
	dbPath       string
	store        store.ServiceStore
	blobService  *BlobService
	boardService *BoardService
	imageService *ImageService
	fileService  *FileService
	corsOrigins  []string
	uploads      UploadLimits
	logger       *slog.Logger
}

// New creates a new server instance.
func New(addr string, st store.ServiceStore, blobs blobstore.BlobStore, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	uploads := opts.Uploads.withDefaults()
	urls := canvas.URLBuilder{BaseURL: opts.PublicURL}

	var lookup canvas.ImageLookup = st
	if opts.ImageLookup != nil {
		lookup = opts.ImageLookup
	}
	forgetter, _ := lookup.(imageForgetter)

	blobService := NewBlobService(st, blobs, logger, opts.Images.GCBatchSize)

	imageService := NewImageService(st, blobService, urls, logger)
	imageService.ConfigurePolicy(uploads.MaxImageBytes, opts.Images)
	imageService.forgetter = forgetter

	fileService := NewFileService(st, blobService, urls, logger)
	fileService.maxBytes = uploads.MaxFileBytes

	return &Server{
		addr:         addr,
		dbPath:       opts.DBPath,
		store:        st,
		blobService:  blobService,
		boardService: NewBoardService(st, lookup, imageService, urls, logger),
		imageService: imageService,
		fileService:  fileService,
		corsOrigins:  opts.CORSOrigins,
		uploads:      uploads,
		logger:       logger,
	}
}

// ListenAndServe starts the HTTP server and stops it when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
