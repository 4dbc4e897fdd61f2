package server

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/orchestra-mcp/monitor-socket/src/hub"
	"github.com/orchestra-mcp/monitor-socket/src/source"
	"github.com/orchestra-mcp/monitor-socket/src/types"
)

// registerRoutes registers the operator routes. The websocket upgrade and
// /metrics are served by Handler before fiber sees the request.
func (s *Server) registerRoutes(app fiber.Router) {
	app.Get("/health", s.handleHealth)

	ws := app.Group("/ws")
	ws.Get("/info", s.handleInfo)
	ws.Get("/clients", s.handleListClients)
	ws.Get("/clients/:id", s.handleGetClient)
	ws.Delete("/clients/:id", s.handleDisconnect)
	ws.Get("/channels", s.handleListChannels)
	ws.Post("/alerts", s.handleTriggerAlert)
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(s.service.Info())
}

func (s *Server) handleListClients(c fiber.Ctx) error {
	clients := s.service.GetClients()
	return c.JSON(fiber.Map{
		"clients": clients,
		"count":   len(clients),
	})
}

func (s *Server) handleGetClient(c fiber.Ctx) error {
	info, err := s.service.GetClientInfo(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(info)
}

func (s *Server) handleDisconnect(c fiber.Ctx) error {
	if err := s.service.Disconnect(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type channelCount struct {
	Channel     string `json:"channel"`
	Subscribers int    `json:"subscribers"`
}

func (s *Server) handleListChannels(c fiber.Ctx) error {
	channels := s.service.GetChannels()
	result := make([]channelCount, 0, len(channels))
	for name, count := range channels {
		result = append(result, channelCount{Channel: name, Subscribers: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Channel < result[j].Channel })
	return c.JSON(fiber.Map{
		"channels": result,
		"count":    len(result),
	})
}

const alertTimeout = 5 * time.Second

type alertRequest struct {
	TargetID string         `json:"targetId"`
	Severity types.Severity `json:"severity"`
}

func (s *Server) handleTriggerAlert(c fiber.Ctx) error {
	var req alertRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}

	ctx, cancel := context.WithTimeout(s.ctx, alertTimeout)
	defer cancel()

	alert, n, err := s.service.TriggerAlert(ctx, req.TargetID, req.Severity)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"alert":      alert,
		"recipients": n,
	})
}

// errorHandler renders errors as JSON with a status derived from the error.
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, hub.ErrClientNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, source.ErrMissingTarget), errors.Is(err, source.ErrInvalidSeverity):
		code = fiber.StatusBadRequest
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
