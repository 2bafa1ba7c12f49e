package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"warden/internal/options"
	"warden/internal/services"
)

// GuildHandler exposes loaded guild state for operators: inspection, the
// option accessor layer, and manual flushes. It never triggers loads: the
// admin surface observes the cache, the gateway populates it.
type GuildHandler struct {
	store *services.GuildStore
}

// NewGuildHandler creates a new guild handler
func NewGuildHandler(store *services.GuildStore) *GuildHandler {
	return &GuildHandler{store: store}
}

// List returns all currently loaded guilds with table sizes.
func (h *GuildHandler) List(c *fiber.Ctx) error {
	ids := h.store.LoadedIDs()
	guilds := make([]fiber.Map, 0, len(ids))
	for _, id := range ids {
		state, ok := h.store.Get(id)
		if !ok {
			continue
		}
		guilds = append(guilds, fiber.Map{
			"id":      id,
			"members": state.MemberCount(),
			"events":  state.EventCount(),
		})
	}
	return c.JSON(fiber.Map{"guilds": guilds})
}

// GetSettings renders every declared option for one loaded guild.
func (h *GuildHandler) GetSettings(c *fiber.Ctx) error {
	state, ok := h.store.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Guild not loaded"})
	}

	settings := make(map[string]fiber.Map)
	for _, key := range options.Declared() {
		opt, _ := options.Lookup(key)
		settings[key] = fiber.Map{
			"value":       state.DisplayOption(key),
			"description": opt.Description,
		}
	}
	return c.JSON(fiber.Map{"guild_id": state.ID(), "settings": settings})
}

// UpdateSettingRequest is the body for UpdateSetting.
type UpdateSettingRequest struct {
	Value string `json:"value"`
}

// UpdateSetting validates and writes one option value.
func (h *GuildHandler) UpdateSetting(c *fiber.Ctx) error {
	state, ok := h.store.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Guild not loaded"})
	}

	var req UpdateSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	key := c.Params("key")
	if err := state.SetOption(key, req.Value); err != nil {
		var ive *options.InvalidValueError
		if errors.As(err, &ive) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ive.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update setting"})
	}

	return c.JSON(fiber.Map{"key": key, "value": state.DisplayOption(key)})
}

// ResetSetting reverts one option to its default.
func (h *GuildHandler) ResetSetting(c *fiber.Ctx) error {
	state, ok := h.store.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Guild not loaded"})
	}

	key := c.Params("key")
	if _, declared := options.Lookup(key); !declared {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No such option"})
	}
	state.ResetOption(key)
	return c.JSON(fiber.Map{"key": key, "value": state.DisplayOption(key)})
}

// Flush persists every loaded guild immediately.
func (h *GuildHandler) Flush(c *fiber.Ctx) error {
	if err := h.store.FlushAll(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "flushed"})
}
