package server

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/Kaggle-runa/book-agent/app/client/llm"
	"github.com/Kaggle-runa/book-agent/app/config"
	"github.com/Kaggle-runa/book-agent/app/service/conversation"
	"github.com/Kaggle-runa/book-agent/app/service/thread"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the conversation API consumed by the presentation layer.
type Server struct {
	cfg *config.Config
	app *fiber.App
	db  *sql.DB

	conversationSvc *conversation.Service
	threadSvc       *thread.Service
}

func New(di *do.Injector) (*Server, error) {
	s := &Server{
		cfg:             do.MustInvoke[*config.Config](di),
		db:              do.MustInvoke[*sql.DB](di),
		conversationSvc: do.MustInvoke[*conversation.Service](di),
		threadSvc:       do.MustInvoke[*thread.Service](di),
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})

	api := app.Group("/api")
	api.Post("/threads/:id/proposal/messages", s.handleProposalTurn)
	api.Post("/threads/:id/chat/messages", s.handleChatTurn)
	api.Get("/threads/:id/messages", s.handleListMessages)
	api.Post("/threads/:id/reset", s.handleReset)

	app.Get("/health", s.handleHealth)

	s.app = app

	return s, nil
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()

		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("HTTP server listening", "addr", s.cfg.Server.Addr)

	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, conversation.ErrTurnInFlight),
		errors.Is(err, conversation.ErrThreadCompleted):
		status = fiber.StatusConflict
	case errors.Is(err, llm.ErrGeneration):
		status = fiber.StatusBadGateway
	case errors.As(err, &fiberErr):
		status = fiberErr.Code
	}

	if status >= fiber.StatusInternalServerError {
		slog.Error("Request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
	}

	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
