// Package server exposes the merge engine over HTTP so archive windows
// can be requested remotely. It holds its configuration explicitly;
// nothing here reads process-global state.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/petems/radiotape/internal/archive"
	"github.com/petems/radiotape/internal/config"
)

type Server struct {
	echo *echo.Echo
	cfg  *config.Settings
	log  zerolog.Logger
}

func New(cfg *config.Settings, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, cfg: cfg, log: log}

	e.GET("/api/v1/health", s.handleHealth)
	e.GET("/api/v1/merge", s.handleMerge)

	return s
}

// Start serves on the configured bind address until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("address", s.cfg.BindAddress).Msg("HTTP server listening")
	err := s.echo.Start(s.cfg.BindAddress)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleMerge runs a merge for ?start_time=YYYYMMDD-HHMMSS&end_time=...
// and returns the merged WAV as an attachment.
func (s *Server) handleMerge(c echo.Context) error {
	startStr := c.QueryParam("start_time")
	endStr := c.QueryParam("end_time")
	if startStr == "" || endStr == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "start_time and end_time parameters are required",
		})
	}

	start, err := archive.ParseTimestamp(startStr)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	end, err := archive.ParseTimestamp(endStr)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	path, err := archive.MergeRange(archive.Request{
		Start:      start,
		End:        end,
		SegmentDir: s.cfg.RecordingDir,
		OutputDir:  s.cfg.OutputDir,
	}, s.log)
	switch {
	case errors.Is(err, archive.ErrInvalidRange):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, archive.ErrNoSegments):
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "no recordings found in the requested time range",
		})
	case err != nil:
		s.log.Error().Err(err).Msg("Merge request failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.Attachment(path, filepath.Base(path))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":               "ok",
		"recording_dir":        s.cfg.RecordingDir,
		"recording_dir_exists": dirExists(s.cfg.RecordingDir),
		"output_dir":           s.cfg.OutputDir,
		"output_dir_exists":    dirExists(s.cfg.OutputDir),
	})
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
