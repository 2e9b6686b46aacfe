package server

import (
	"github.com/Kaggle-runa/book-agent/app/service/thread"

	"github.com/gofiber/fiber/v2"
)

type messageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleProposalTurn(c *fiber.Ctx) error {
	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := s.conversationSvc.ProcessTurn(c.UserContext(), c.Params("id"), req.Text)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

func (s *Server) handleChatTurn(c *fiber.Ctx) error {
	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	msg, err := s.conversationSvc.ProcessChat(c.UserContext(), c.Params("id"), req.Text)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"message": msg})
}

func (s *Server) handleListMessages(c *fiber.Ctx) error {
	messages, err := s.threadSvc.List(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}

	if messages == nil {
		messages = []thread.Message{}
	}

	return c.JSON(fiber.Map{"messages": messages})
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	if err := s.conversationSvc.Reset(c.UserContext(), c.Params("id")); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if err := s.db.PingContext(c.UserContext()); err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "database unavailable")
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
