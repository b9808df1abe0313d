package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"event-registration/models"

	"github.com/pocketbase/pocketbase/core"
)

type RegistrationStore interface {
	FindRegistrationsByReference(ctx context.Context, reference string) ([]models.Registration, error)
	CheckIn(ctx context.Context, registrationID string) (bool, error)
}

type RegistrationHandler struct {
	store RegistrationStore
	log   *slog.Logger
}

func NewRegistrationHandler(store RegistrationStore, log *slog.Logger) *RegistrationHandler {
	return &RegistrationHandler{store: store, log: log}
}

// ByReference - GET /api/v1/registrations/ref/{reference}
func (h *RegistrationHandler) ByReference(e *core.RequestEvent) error {
	reference := e.Request.PathValue("reference")

	regs, err := h.store.FindRegistrationsByReference(e.Request.Context(), reference)
	if err != nil {
		return respondError(e, h.log, err)
	}
	if len(regs) == 0 {
		return e.JSON(http.StatusNotFound, map[string]any{"error": "no registrations for reference"})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"reference":     reference,
		"registrations": regs,
	})
}

// CheckIn - POST /api/v1/registrations/{id}/check-in
func (h *RegistrationHandler) CheckIn(e *core.RequestEvent) error {
	id := e.Request.PathValue("id")

	applied, err := h.store.CheckIn(e.Request.Context(), id)
	if err != nil {
		return respondError(e, h.log, err)
	}
	if !applied {
		return e.JSON(http.StatusConflict, map[string]any{
			"error":      "registration already checked in or not paid",
			"checked_in": false,
		})
	}

	h.log.Info("registration checked in", slog.String("registration_id", id))
	return e.JSON(http.StatusOK, map[string]any{"id": id, "checked_in": true})
}
