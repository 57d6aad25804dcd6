package handlers

import (
	"errors"
	"fmt"
	"log/slog"

	"mediashelf/internal/middleware"
	"mediashelf/internal/models"
	"mediashelf/internal/services"
	"mediashelf/internal/views"

	"github.com/gofiber/fiber/v2"
)

const createItemAction = "/profile/items"

// Notices shown after a redirect, keyed by the notice query value.
var notices = map[string]string{
	"no_match": "No matching item in your library",
	"deleted":  "Item deleted",
	"saved":    "Item saved",
}

// ProfileHandler serves the HTML library pages.
type ProfileHandler struct {
	library  *services.LibraryService
	sessions middleware.SessionResolver
}

// NewProfileHandler creates a new ProfileHandler. Pages are rendered through
// the app's view engine.
func NewProfileHandler(library *services.LibraryService, sessions middleware.SessionResolver) *ProfileHandler {
	return &ProfileHandler{
		library:  library,
		sessions: sessions,
	}
}

// RegisterRoutes registers the profile routes with the Fiber app.
func (h *ProfileHandler) RegisterRoutes(router fiber.Router) {
	profileRoutes := router.Group("/profile", middleware.SessionRequired(h.sessions, middleware.RedirectToSignIn))
	profileRoutes.Get("/", h.HandleProfile)
	profileRoutes.Post("/items", h.HandleCreateItem)
	profileRoutes.Get("/items/:id", h.HandleItem)
	profileRoutes.Post("/items/:id", h.HandleUpdateItem)
	profileRoutes.Post("/items/:id/delete", h.HandleDeleteItem)
}

// HandleProfile renders the caller's library grouped by media type.
func (h *ProfileHandler) HandleProfile(c *fiber.Ctx) error {
	return h.renderProfile(c, fiber.StatusOK, views.Form{Action: createItemAction}, notices[c.Query("notice")])
}

// HandleCreateItem adds an item from the profile form. Rejected input
// re-renders the form open with the submitted values.
func (h *ProfileHandler) HandleCreateItem(c *fiber.Ctx) error {
	var fields services.ItemFields
	if err := c.BodyParser(&fields); err != nil {
		return h.renderProfile(c, fiber.StatusBadRequest, views.Form{Action: createItemAction, Open: true}, "Could not read the submitted form")
	}

	_, err := h.library.Create(c.UserContext(), middleware.IdentityFrom(c), fields)
	if err != nil {
		form := views.Form{Action: createItemAction, Fields: fields, Open: true}
		status, notice, handled := h.formError(c, err, &form)
		if !handled {
			return middleware.RedirectToSignIn(c)
		}
		return h.renderProfile(c, status, form, notice)
	}
	return c.Redirect("/profile", fiber.StatusSeeOther)
}

// HandleItem renders the detail page of one of the caller's items.
func (h *ProfileHandler) HandleItem(c *fiber.Ctx) error {
	id, ok := itemID(c)
	if !ok {
		return h.renderItem(c, fiber.StatusNotFound, views.ItemPage{Notice: notices["no_match"]})
	}
	item, outcome, err := h.library.Get(c.UserContext(), middleware.IdentityFrom(c), id)
	if err != nil {
		if errors.Is(err, services.ErrUnauthenticated) {
			return middleware.RedirectToSignIn(c)
		}
		slog.ErrorContext(c.UserContext(), "could not load library item", "item_id", id, "err", err)
		return h.renderItem(c, fiber.StatusInternalServerError, views.ItemPage{Notice: "Could not load the item, please try again"})
	}
	if outcome == services.OutcomeNoMatch {
		return h.renderItem(c, fiber.StatusNotFound, views.ItemPage{Notice: notices["no_match"]})
	}
	return h.renderItem(c, fiber.StatusOK, views.ItemPage{
		Item:   item,
		Form:   views.FormFromItem(itemAction(id), item),
		Notice: notices[c.Query("notice")],
	})
}

// HandleUpdateItem saves the edit form of an item.
func (h *ProfileHandler) HandleUpdateItem(c *fiber.Ctx) error {
	id, ok := itemID(c)
	if !ok {
		return c.Redirect("/profile?notice=no_match", fiber.StatusSeeOther)
	}
	var fields services.ItemFields
	if err := c.BodyParser(&fields); err != nil {
		return c.Redirect(itemAction(id), fiber.StatusSeeOther)
	}

	identity := middleware.IdentityFrom(c)
	_, outcome, err := h.library.Update(c.UserContext(), identity, id, fields)
	if err != nil {
		form := views.Form{Action: itemAction(id), Fields: fields, Open: true}
		status, notice, handled := h.formError(c, err, &form)
		if !handled {
			return middleware.RedirectToSignIn(c)
		}
		// Show the stored item next to the rejected edit.
		item, _, _ := h.library.Get(c.UserContext(), identity, id)
		return h.renderItem(c, status, views.ItemPage{Item: item, Form: form, Notice: notice})
	}
	if outcome == services.OutcomeNoMatch {
		return c.Redirect("/profile?notice=no_match", fiber.StatusSeeOther)
	}
	return c.Redirect(itemAction(id)+"?notice=saved", fiber.StatusSeeOther)
}

// HandleDeleteItem deletes an item and returns to the library.
func (h *ProfileHandler) HandleDeleteItem(c *fiber.Ctx) error {
	id, ok := itemID(c)
	if !ok {
		return c.Redirect("/profile?notice=no_match", fiber.StatusSeeOther)
	}
	identity := middleware.IdentityFrom(c)
	outcome, err := h.library.Delete(c.UserContext(), identity, id)
	if err != nil {
		if errors.Is(err, services.ErrUnauthenticated) {
			return middleware.RedirectToSignIn(c)
		}
		slog.ErrorContext(c.UserContext(), "could not delete library item", "item_id", id, "err", err)
		item, _, _ := h.library.Get(c.UserContext(), identity, id)
		page := views.ItemPage{Item: item, Notice: "Could not delete the item, please try again"}
		if item != nil {
			page.Form = views.FormFromItem(itemAction(id), item)
		}
		return h.renderItem(c, fiber.StatusInternalServerError, page)
	}
	if outcome == services.OutcomeNoMatch {
		return c.Redirect("/profile?notice=no_match", fiber.StatusSeeOther)
	}
	return c.Redirect("/profile?notice=deleted", fiber.StatusSeeOther)
}

// formError maps a failed write to a status and notice, filling the form's
// field errors. handled is false when the caller must sign in again.
func (h *ProfileHandler) formError(c *fiber.Ctx, err error, form *views.Form) (status int, notice string, handled bool) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		form.Errors = verr.Fields
		return fiber.StatusUnprocessableEntity, "", true
	case errors.Is(err, services.ErrUnauthenticated):
		return 0, "", false
	default:
		slog.ErrorContext(c.UserContext(), "could not save library item", "path", c.Path(), "err", err)
		return fiber.StatusInternalServerError, "Could not save the item, please try again", true
	}
}

func (h *ProfileHandler) renderProfile(c *fiber.Ctx, status int, form views.Form, notice string) error {
	identity := middleware.IdentityFrom(c)
	items, err := h.library.ListForCaller(c.UserContext(), identity)
	if err != nil {
		if errors.Is(err, services.ErrUnauthenticated) {
			return middleware.RedirectToSignIn(c)
		}
		slog.ErrorContext(c.UserContext(), "could not load library", "err", err)
		items = []models.LibraryItem{}
		if notice == "" {
			notice = "Could not load your library, please try again"
		}
		if status == fiber.StatusOK {
			status = fiber.StatusInternalServerError
		}
	}
	return c.Status(status).Render("profile", views.ProfilePage{
		Identity: identity,
		Tabs:     views.Tabs(items),
		Form:     form,
		Notice:   notice,
	})
}

func (h *ProfileHandler) renderItem(c *fiber.Ctx, status int, page views.ItemPage) error {
	page.Identity = middleware.IdentityFrom(c)
	return c.Status(status).Render("item", page)
}

func itemAction(id uint) string {
	return fmt.Sprintf("/profile/items/%d", id)
}
