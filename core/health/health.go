// Package health serves liveness and readiness endpoints next to the bot.
package health

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/m3rciful/farmbot/core/logger"
)

const (
	probeTimeout    = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Options configures the health server.
type Options struct {
	Listen  string
	Service string
	Version string
	// Ping checks the database. A nil Ping reports healthy.
	Ping func(ctx context.Context) error
	// Stats adds counters to the root document.
	Stats func(ctx context.Context) (map[string]int64, error)
}

// Server is a small fiber app exposing /, /health and /ping.
type Server struct {
	opts Options
	app  *fiber.App
}

// New builds the health server without starting it.
func New(opts Options) *Server {
	if opts.Service == "" {
		opts.Service = "farmbot"
	}
	app := fiber.New(fiber.Config{
		AppName:               opts.Service,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(recover.New())

	s := &Server{opts: opts, app: app}
	app.Get("/", s.root)
	app.Get("/health", s.health)
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	return s
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) probe(c *fiber.Ctx) error {
	if s.opts.Ping == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), probeTimeout)
	defer cancel()
	return s.opts.Ping(ctx)
}

func (s *Server) root(c *fiber.Ctx) error {
	resp := fiber.Map{
		"service": s.opts.Service,
		"version": s.opts.Version,
		"status":  "healthy",
	}
	db := "connected"
	if err := s.probe(c); err != nil {
		db = "error"
		resp["status"] = "degraded"
	}
	resp["database"] = db

	if s.opts.Stats != nil && db == "connected" {
		ctx, cancel := context.WithTimeout(c.UserContext(), probeTimeout)
		defer cancel()
		if stats, err := s.opts.Stats(ctx); err == nil {
			resp["stats"] = stats
		}
	}
	return c.JSON(resp)
}

func (s *Server) health(c *fiber.Ctx) error {
	if err := s.probe(c); err != nil {
		logger.Warn(c.UserContext(), logger.CompHTTP, "health.unhealthy",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// Run serves until ctx is done, then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.opts.Listen)
	}()
	logger.Info(ctx, logger.CompHTTP, "health.listen", slog.String("listen", s.opts.Listen))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Warn(context.Background(), logger.CompHTTP, "health.shutdown",
				slog.String("err", err.Error()),
			)
		}
		<-errCh
		return nil
	}
}
