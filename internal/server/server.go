// Package server exposes vision sessions over HTTP. Every browser session gets
// its own image store, selection and model settings.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/menta2k/vision-amp/internal/config"
	"github.com/menta2k/vision-amp/internal/log"
)

const maxUploadBody = "32M"

type Server struct {
	cfg      *config.Config
	echo     *echo.Echo
	sessions *sessionManager
	cancel   context.CancelFunc
}

// New creates a server whose sessions are built by factory
func New(cfg *config.Config, factory SessionFactory) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: newSessionManager(factory, cfg.Server.SessionTTL),
	}
	s.echo = s.defineServer()
	s.setRoutes()
	return s
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured port until Shutdown is called
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.sessions.run(ctx)

	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	log.Infof("starting server on %s", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.echo.Shutdown(ctx)
}

func (s *Server) defineServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Skip the probe endpoint
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/probe"
		},
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogError:     true,
		LogRemoteIP:  true,
		LogRoutePath: true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				log.Infof("%s %s (route=%s) - Status: %d - Latency: %v - Error: %v - RemoteIP: %s",
					v.Method, v.URI, v.RoutePath, v.Status, v.Latency, v.Error, v.RemoteIP)
			} else {
				log.Infof("%s %s (route=%s) - Status: %d - Latency: %v - RemoteIP: %s",
					v.Method, v.URI, v.RoutePath, v.Status, v.Latency, v.RemoteIP)
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxUploadBody))
	e.Pre(middleware.RemoveTrailingSlash())

	e.Validator = newEchoValidator()
	return e
}

func (s *Server) setRoutes() {
	e := s.echo
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "vision-amp is running")
	})

	api := e.Group("/api")
	api.GET("/models", s.withSession(s.listModelsHandler))
	api.PUT("/model", s.withSession(s.selectModelHandler))
	api.GET("/params", s.withSession(s.getParamsHandler))
	api.PUT("/params", s.withSession(s.setParamsHandler))

	api.POST("/images", s.withSession(s.uploadHandler))
	api.GET("/images", s.withSession(s.listImagesHandler))
	api.GET("/images/:hash", s.withSession(s.getImageHandler))
	api.GET("/images/:hash/raw", s.withSession(s.rawImageHandler))
	api.GET("/images/:hash/thumbnail", s.withSession(s.thumbnailHandler))
	api.DELETE("/images/:hash", s.withSession(s.deleteImageHandler))
	api.POST("/images/:hash/select", s.withSession(s.selectImageHandler))

	api.POST("/ask", s.withSession(s.askHandler))
	api.POST("/enrich", s.withSession(s.enrichHandler))
}
