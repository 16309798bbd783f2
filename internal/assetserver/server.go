package assetserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"memebox/internal/catalogue"
	"memebox/internal/logging"
)

const (
	cacheControl    = "public, max-age=86400"
	shutdownTimeout = 5 * time.Second
)

// Assets is the read side of the asset store.
type Assets interface {
	Open(ref catalogue.AssetRef) (io.ReadCloser, error)
	Stat(ref catalogue.AssetRef) (fs.FileInfo, error)
}

// Snapshotter reports the catalogue served alongside the assets.
type Snapshotter interface {
	Snapshot() catalogue.Catalogue
}

// Options configures a Server.
type Options struct {
	Listen   string
	Prefix   string
	Assets   Assets
	Registry Snapshotter
	Logger   *slog.Logger
}

// Server serves asset bytes and a health endpoint.
type Server struct {
	listen   string
	prefix   string
	assets   Assets
	registry Snapshotter
	logger   *slog.Logger
	server   *http.Server
}

// New constructs a Server. The prefix defaults to "/memes/".
func New(opts Options) (*Server, error) {
	if opts.Assets == nil {
		return nil, errors.New("asset server requires an asset store")
	}
	prefix := "/" + strings.Trim(strings.TrimSpace(opts.Prefix), "/") + "/"
	if prefix == "//" {
		prefix = "/memes/"
	}
	s := &Server{
		listen:   opts.Listen,
		prefix:   prefix,
		assets:   opts.Assets,
		registry: opts.Registry,
		logger:   logging.NewComponentLogger(opts.Logger, "asset-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+prefix+"{file}", s.handleAsset)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("asset server listen: %w", err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on an existing listener until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()
	s.logger.Info("asset server listening",
		logging.String("address", listener.Addr().String()),
		logging.String("prefix", s.prefix),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("asset server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("asset server shutdown incomplete", logging.Error(err))
		}
		return nil
	}
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if !servable(name) {
		http.NotFound(w, r)
		return
	}
	ref := catalogue.AssetRef(name)
	info, err := s.assets.Stat(ref)
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}
	rc, err := s.assets.Open(ref)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer rc.Close()

	h := w.Header()
	h.Set("Content-Type", "audio/ogg")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Cache-Control", cacheControl)

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, info.ModTime(), rs)
		return
	}
	h.Set("Content-Length", fmt.Sprint(info.Size()))
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Debug("asset response interrupted", logging.String("asset", name), logging.Error(err))
	}
}

type health struct {
	Status string `json:"status"`
	Memes  int    `json:"memes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	payload := health{Status: "ok"}
	if s.registry != nil {
		payload.Memes = s.registry.Snapshot().Len()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode health response", logging.Error(err))
	}
}

// servable rejects anything but a bare, visible file name.
func servable(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return false
	}
	ref, err := catalogue.ParseAssetRef(name)
	return err == nil && string(ref) == name
}
