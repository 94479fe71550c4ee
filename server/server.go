// Package server assembles the HTTP surface: router, middleware and
// lifecycle around the v1 API service.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"golang.org/x/sync/errgroup"

	apiv1 "github.com/personakit/personakit/server/router/api/v1"
	"github.com/personakit/personakit/server/profile"
	"github.com/personakit/personakit/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	httpServer *http.Server
	apiV1      *apiv1.APIV1Service
	eg         errgroup.Group
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store, apiV1 *apiv1.APIV1Service) (*Server, error) {
	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", func(c *echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	apiV1.Register(e)

	s := &Server{
		Profile:    profile,
		Store:      store,
		echoServer: e,
		apiV1:      apiV1,
		httpServer: &http.Server{
			Addr:              profile.ListenAddr(),
			Handler:           e,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	return s, nil
}

// Start serves in the background. Serve errors other than a clean close
// are collected and surface from Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.eg.Go(func() error {
		slog.Info("server listening", "addr", s.Profile.ListenAddr(), "mode", s.Profile.Mode)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return nil
}

// Shutdown stops accepting requests, drains in-flight handlers, waits
// for detached persistence tasks and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down server", "err", err)
	}
	if err := s.eg.Wait(); err != nil {
		slog.Error("server exited with error", "err", err)
	}

	s.apiV1.WaitForFinalizers()

	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "err", err)
	}

	slog.Info("server stopped")
}
