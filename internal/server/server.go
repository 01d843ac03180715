package server

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"concierge/internal/budget"
	"concierge/internal/relay"
)

const shutdownGrace = 10 * time.Second

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer        string   `json:"answer"`
	ContextChunks []string `json:"context_chunks"`
	Grounded      bool     `json:"grounded"`
	Model         string   `json:"model"`
}

type fallbackResponse struct {
	Fallback bool   `json:"fallback"`
	Reason   string `json:"reason"`
}

type usageResponse struct {
	Budget []budget.WindowState `json:"budget"`
	Client clientUsage          `json:"client"`
}

type clientUsage struct {
	Burst  int `json:"burst"`
	Minute int `json:"minute"`
	Hour   int `json:"hour"`
	Day    int `json:"day"`
}

// Server exposes the relay over HTTP. Graceful degradations (budget, rate
// limit, upstream outage) are 200 responses with a fallback body; non-2xx is
// reserved for requests the relay could not even parse.
type Server struct {
	app    *fiber.App
	relay  *relay.Relay
	ledger *budget.Ledger
	ips    *budget.IPLimiter
	logger *zap.Logger
}

// New builds the fiber app and registers the routes.
func New(r *relay.Relay, ledger *budget.Ledger, ips *budget.IPLimiter, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
	})

	s := &Server{
		app:    app,
		relay:  r,
		ledger: ledger,
		ips:    ips,
		logger: logger,
	}

	app.Post("/api/ask", s.handleAsk)
	app.Get("/api/usage", s.handleUsage)
	app.Get("/healthz", s.handleHealth)
	return s
}

// App returns the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests.
func (s *Server) Run(addr string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()

	s.logger.Info("relay listening", zap.String("addr", addr))
	select {
	case sig := <-stop:
		s.logger.Info("shutting down", zap.String("signal", sig.String()))
		return s.app.ShutdownWithTimeout(shutdownGrace)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleAsk(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be JSON with a question field",
		})
	}

	result, err := s.relay.Answer(c.UserContext(), c.IP(), req.Question)
	if err != nil {
		var invalid *relay.InvalidRequestError
		if errors.As(err, &invalid) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": invalid.Detail,
			})
		}
		s.logger.Error("relay failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}

	if result.Fallback {
		return c.JSON(fallbackResponse{Fallback: true, Reason: result.Reason})
	}

	ids := result.ContextIDs
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(askResponse{
		Answer:        result.Answer,
		ContextChunks: ids,
		Grounded:      result.Grounded,
		Model:         result.Model,
	})
}

func (s *Server) handleUsage(c *fiber.Ctx) error {
	burst, minute, hour, day := s.ips.Counts(c.IP())
	return c.JSON(usageResponse{
		Budget: s.ledger.Snapshot(),
		Client: clientUsage{Burst: burst, Minute: minute, Hour: hour, Day: day},
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
