// Package app assembles the HMS processes: the edge gateway and the four
// internal services. cmd/hms and the integration tests build their servers
// through it.
package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/config"
)

// Internal service names. They double as migration directory names.
const (
	ServicePatient       = "patient"
	ServiceDoctor        = "doctor"
	ServiceAppointment   = "appointment"
	ServiceMedicalRecord = "medical-record"
)

// Services lists every internal service.
var Services = []string{ServicePatient, ServiceDoctor, ServiceAppointment, ServiceMedicalRecord}

const shutdownTimeout = 10 * time.Second

// NewLogger returns the process logger: console output in development, JSON
// otherwise. An unknown LOG_LEVEL falls back to info.
func NewLogger(cfg *config.Config, service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var out io.Writer = os.Stdout
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", service).Logger()
}

// Serve runs e on addr until SIGINT or SIGTERM, then shuts it down
// gracefully.
func Serve(e *echo.Echo, addr string, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
