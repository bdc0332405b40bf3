package display_api

import (
	"fmt"
	"net/http"
	"time"

	"ms-checkin/internal/live"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/sse"

	"github.com/go-chi/chi/v5"
)

// Handler serves the participant display stream.
type Handler struct {
	Push         live.PushChannel
	Store        live.LatestFetcher
	PollInterval time.Duration
	ConfirmDelay time.Duration
	Logger       *logger.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/display/{participantID}/events", h.StreamDisplay)
}

// StreamDisplay emits a "view" event per display change and ends after the
// confirmed view.
func (h *Handler) StreamDisplay(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")
	if participantID == "" {
		http.Error(w, "participant id is required", http.StatusBadRequest)
		return
	}

	sse.SetupHeaders(w)
	ctx := r.Context()

	propagator := live.NewPropagator(participantID, h.Push, h.Store, h.PollInterval, h.ConfirmDelay, h.Logger)
	views := make(chan live.View)
	done := make(chan error, 1)
	go func() {
		done <- propagator.Run(ctx, views)
	}()

	h.Logger.LogDisplay(participantID, "Display connected")

	for {
		select {
		case view := <-views:
			if err := sse.WriteEvent(w, "view", view); err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to write display view for %s: %v", participantID, err))
				return
			}
		case err := <-done:
			if err != nil {
				h.Logger.Debug("DISPLAY", fmt.Sprintf("[%s] Display disconnected: %v", participantID, err))
			}
			return
		}
	}
}
