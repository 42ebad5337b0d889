// Package server mounts one storage root as a FUSE filesystem and optionally
// serves its metrics over HTTP while mounted.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sashapodgoreanu/opfs-poc/config"
	"github.com/sashapodgoreanu/opfs-poc/filesystem"
	"github.com/sashapodgoreanu/opfs-poc/internal/metrics"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
)

// Server exposes a root through the kernel FUSE interface
type Server struct {
	cfg     *config.Config
	fsys    *filesystem.FileSystem
	root    string
	server  *fuse.Server
	metrics *http.Server
}

// New creates a Server for root. Nothing is mounted until [Server.Serve].
func New(cfg *config.Config, fsys *filesystem.FileSystem, root string) *Server {
	return &Server{cfg: cfg, fsys: fsys, root: root}
}

func (s *Server) rootNode() *node {
	return &node{m: &mount{fsys: s.fsys, root: s.root, mounted: time.Now()}}
}

// Serve mounts the root at mountPoint and returns once the mount is ready
func (s *Server) Serve(mountPoint string) error {
	logger := util.GetLogger("FuseServer")

	opts := s.cfg.MountOptions
	attrTimeout, entryTimeout := s.cfg.AttrTimeout, s.cfg.EntryTimeout
	raw := gofs.NewNodeFS(s.rootNode(), &gofs.Options{
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
		Logger:       util.NewLogLogger("FuseBridge", s.cfg.LogLvl),
	})
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:   opts.Name,
		FsName: opts.SourceName(s.root),
		Debug:  opts.Debug || s.cfg.LogLvl == util.TraceLevel,
		Logger: util.NewLogLogger("FuseServer", util.TraceLevel),
	})
	if err != nil {
		return err
	}
	s.server = srv

	go srv.Serve()
	if err := srv.WaitMount(); err != nil {
		return err
	}
	logger.Info().Str("root", s.root).Str("mountpoint", mountPoint).Msg("Mounted")

	if s.cfg.MetricsAddr != "" {
		s.serveMetrics()
	}
	return nil
}

func (s *Server) serveMetrics() {
	logger := util.GetLogger("Metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	s.metrics = &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", s.cfg.MetricsAddr).Msg("Metrics server failed")
		}
	}()
	logger.Info().Str("addr", s.cfg.MetricsAddr).Msg("Serving metrics")
}

func (s *Server) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- s.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Wait blocks until the filesystem is unmounted
func (s *Server) Wait() {
	if s.server != nil {
		s.server.Wait()
	}
}

// Unmount cleanly unmounts the filesystem and stops the metrics server
func (s *Server) Unmount() error {
	var errs []error
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, s.metrics.Shutdown(ctx))
	}
	if s.server != nil {
		errs = append(errs, s.server.Unmount())
	}
	return errors.Join(errs...)
}
