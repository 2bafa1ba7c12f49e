package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"warden/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	store     *services.GuildStore
	startedAt time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store *services.GuildStore) *HealthHandler {
	return &HealthHandler{store: store, startedAt: time.Now()}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":        "healthy",
		"loaded_guilds": len(h.store.LoadedIDs()),
		"uptime":        time.Since(h.startedAt).Round(time.Second).String(),
		"timestamp":     time.Now().Format(time.RFC3339),
	})
}
