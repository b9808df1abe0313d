package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/core"
)

type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
	SweepOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

type AdminHandler struct {
	payments PaymentFlow
	reaper   Sweeper
	log      *slog.Logger
}

func NewAdminHandler(payments PaymentFlow, reaper Sweeper, log *slog.Logger) *AdminHandler {
	return &AdminHandler{payments: payments, reaper: reaper, log: log}
}

// Reconcile - POST /api/v1/admin/payers/{payerId}/reconcile
func (h *AdminHandler) Reconcile(e *core.RequestEvent) error {
	res, err := h.payments.Reconcile(e.Request.Context(), e.Request.PathValue("payerId"))
	if err != nil {
		return respondError(e, h.log, err)
	}
	return e.JSON(http.StatusOK, res)
}

// RunReaper - POST /api/v1/admin/reaper/run?max_age=48h
func (h *AdminHandler) RunReaper(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	var (
		deleted int64
		err     error
	)
	if raw := e.Request.URL.Query().Get("max_age"); raw != "" {
		maxAge, perr := time.ParseDuration(raw)
		if perr != nil || maxAge <= 0 {
			return e.JSON(http.StatusBadRequest, map[string]any{"error": "max_age must be a positive duration", "field": "max_age"})
		}
		deleted, err = h.reaper.SweepOlderThan(ctx, maxAge)
	} else {
		deleted, err = h.reaper.Sweep(ctx)
	}
	if err != nil {
		return respondError(e, h.log, err)
	}

	return e.JSON(http.StatusOK, map[string]any{"deleted": deleted})
}
