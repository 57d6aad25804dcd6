package handlers

import (
	"errors"
	"log/slog"

	"mediashelf/internal/middleware"
	"mediashelf/internal/services"

	"github.com/gofiber/fiber/v2"
)

// LibraryHandler serves the JSON API over the caller's library.
type LibraryHandler struct {
	library  *services.LibraryService
	sessions middleware.SessionResolver
}

// NewLibraryHandler creates a new LibraryHandler.
func NewLibraryHandler(library *services.LibraryService, sessions middleware.SessionResolver) *LibraryHandler {
	return &LibraryHandler{
		library:  library,
		sessions: sessions,
	}
}

// RegisterRoutes registers the library API routes with the Fiber app.
func (h *LibraryHandler) RegisterRoutes(router fiber.Router) {
	itemRoutes := router.Group("/items", middleware.SessionRequired(h.sessions, middleware.RejectUnauthenticated))
	itemRoutes.Get("/", h.HandleListItems)
	itemRoutes.Post("/", h.HandleCreateItem)
	itemRoutes.Get("/:id", h.HandleGetItem)
	itemRoutes.Put("/:id", h.HandleUpdateItem)
	itemRoutes.Delete("/:id", h.HandleDeleteItem)
}

// HandleListItems returns the caller's items, newest first.
func (h *LibraryHandler) HandleListItems(c *fiber.Ctx) error {
	items, err := h.library.ListForCaller(c.UserContext(), middleware.IdentityFrom(c))
	if err != nil {
		return apiError(c, err, "Could not retrieve library items")
	}
	return c.JSON(items)
}

// HandleCreateItem creates an item owned by the caller.
func (h *LibraryHandler) HandleCreateItem(c *fiber.Ctx) error {
	var fields services.ItemFields
	if err := c.BodyParser(&fields); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	item, err := h.library.Create(c.UserContext(), middleware.IdentityFrom(c), fields)
	if err != nil {
		return apiError(c, err, "Could not create library item")
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// HandleGetItem returns one of the caller's items.
func (h *LibraryHandler) HandleGetItem(c *fiber.Ctx) error {
	id, ok := itemID(c)
	if !ok {
		return notFound(c)
	}
	item, outcome, err := h.library.Get(c.UserContext(), middleware.IdentityFrom(c), id)
	if err != nil {
		return apiError(c, err, "Could not retrieve library item")
	}
	if outcome == services.OutcomeNoMatch {
		return notFound(c)
	}
	return c.JSON(item)
}

// HandleUpdateItem replaces the fields of one of the caller's items.
func (h *LibraryHandler) HandleUpdateItem(c *fiber.Ctx) error {
	id, ok := itemID(c)
	if !ok {
		return notFound(c)
	}
	var fields services.ItemFields
	if err := c.BodyParser(&fields); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	item, outcome, err := h.library.Update(c.UserContext(), middleware.IdentityFrom(c), id, fields)
	if err != nil {
		return apiError(c, err, "Could not update library item")
	}
	if outcome == services.OutcomeNoMatch {
		return notFound(c)
	}
	return c.JSON(item)
}

// HandleDeleteItem permanently deletes one of the caller's items.
func (h *LibraryHandler) HandleDeleteItem(c *fiber.Ctx) error {
	id, ok := itemID(c)
	if !ok {
		return notFound(c)
	}
	outcome, err := h.library.Delete(c.UserContext(), middleware.IdentityFrom(c), id)
	if err != nil {
		return apiError(c, err, "Could not delete library item")
	}
	if outcome == services.OutcomeNoMatch {
		return notFound(c)
	}
	return c.JSON(fiber.Map{
		"message": "Library item deleted",
		"outcome": outcome.String(),
	})
}

// itemID parses the :id route parameter. Malformed ids are reported like
// missing ones.
func itemID(c *fiber.Ctx) (uint, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"message": "Library item not found",
		"outcome": services.OutcomeNoMatch.String(),
	})
}

// apiError maps service errors to JSON responses.
func apiError(c *fiber.Ctx, err error, message string) error {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  verr.Fields,
		})
	case errors.Is(err, services.ErrUnauthenticated):
		return middleware.RejectUnauthenticated(c)
	default:
		slog.ErrorContext(c.UserContext(), message, "path", c.Path(), "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": message,
			"error":   err.Error(),
		})
	}
}
