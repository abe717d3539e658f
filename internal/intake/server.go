// Package intake serves a small local HTTP endpoint that lets an editor push
// code into a running insight session.
package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/nhle/codeinsight/internal/model"
)

// MaxBody caps the size of a submitted request.
const MaxBody = 2 * 1024 * 1024

// Submission is code pushed by an editor. Mode is empty when the sender did
// not ask for one.
type Submission struct {
	Code string
	Mode model.UIMode
}

// SubmitFunc delivers a submission to the host. It must not block.
type SubmitFunc func(Submission)

type explainRequest struct {
	Code string `json:"code"`
	Mode string `json:"mode"`
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Server wraps the fiber app.
type Server struct {
	app    *fiber.App
	submit SubmitFunc
	logger *zap.Logger
}

// New creates a Server that hands accepted code to submit.
func New(submit SubmitFunc, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             MaxBody,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{app: app, submit: submit, logger: logger}
	s.registerRoutes(app)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerRoutes(r fiber.Router) {
	r.Get("/health", s.health)
	r.Post("/explain", s.explain)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(response{Success: true, Message: "ok"})
}

func (s *Server) explain(c *fiber.Ctx) error {
	var req explainRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Code) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code is required")
	}

	sub := Submission{Code: req.Code}
	if req.Mode != "" {
		mode, err := model.ParseMode(req.Mode)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		sub.Mode = mode
	}

	s.logger.Info("code received", zap.Int("bytes", len(req.Code)), zap.String("mode", string(sub.Mode)))
	if s.submit != nil {
		s.submit(sub)
	}

	return c.Status(fiber.StatusAccepted).JSON(response{Success: true, Message: "accepted"})
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("intake listening", zap.String("addr", addr))
	err := s.app.Listen(addr)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown stops the listener, waiting at most timeout for open requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(response{Success: false, Message: err.Error()})
}
