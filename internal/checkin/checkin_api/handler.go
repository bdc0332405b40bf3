package checkin_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/badge"
	checkin "ms-checkin/internal/checkin/service"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/sse"
	"ms-checkin/internal/utils"

	"github.com/go-chi/chi/v5"
)

type ParticipantFinder interface {
	FindParticipant(ctx context.Context, id string) (*models.User, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	Registry     *checkin.Registry
	Participants ParticipantFinder
	Badges       *badge.QRGenerator
	DB           Pinger
	Logger       *logger.Logger
}

type targetsRequest struct {
	Targets []models.TargetRef `json:"targets"`
}

type scanRequest struct {
	Payload string `json:"payload"`
}

// RegisterRoutes mounts the operator terminal routes; r must already carry
// the auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/checkin/terminals", func(r chi.Router) {
		r.Get("/", h.ListTerminals)
		r.Post("/", h.StartTerminal)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetTerminal)
			r.Delete("/", h.StopTerminal)
			r.Put("/targets", h.UpdateTargets)
			r.Post("/scans", h.SubmitScan)
			r.Post("/scan-failures", h.ReportScanFailure)
			r.Get("/events", h.StreamTerminal)
		})
	})
}

func (h *Handler) StartTerminal(w http.ResponseWriter, r *http.Request) {
	var req targetsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	operatorID := auth.UserID(r.Context())
	terminal, err := h.Registry.Start(operatorID, req.Targets)
	if err != nil {
		h.writeError(w, "StartTerminal", err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("StartTerminal: session=%s operator=%s targets=%d", terminal.Controller.ID, operatorID, len(req.Targets)))
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Terminal started", terminal.Controller.Snapshot()))
}

func (h *Handler) ListTerminals(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Open terminals", h.Registry.List()))
}

func (h *Handler) GetTerminal(w http.ResponseWriter, r *http.Request) {
	terminal, ok := h.terminal(w, r)
	if !ok {
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Terminal state", terminal.Controller.Snapshot()))
}

func (h *Handler) StopTerminal(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.Registry.Stop(sessionID); err != nil {
		h.writeError(w, "StopTerminal", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("StopTerminal: session=%s", sessionID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateTargets(w http.ResponseWriter, r *http.Request) {
	terminal, ok := h.terminal(w, r)
	if !ok {
		return
	}

	var req targetsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if err := terminal.Controller.UpdateSelection(req.Targets); err != nil {
		h.writeError(w, "UpdateTargets", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Targets updated", terminal.Controller.Snapshot()))
}

// SubmitScan delivers one decoded QR payload. Scan outcomes, failures
// included, are answered with 200: the request itself succeeded.
func (h *Handler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	terminal, ok := h.terminal(w, r)
	if !ok {
		return
	}

	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	result, err := terminal.Camera.Deliver(req.Payload)
	if err != nil {
		h.writeError(w, "SubmitScan", err)
		return
	}

	resp := utils.SuccessResponse(result.Message, result)
	resp.Success = result.OK
	resp.Code = string(result.Code)
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) ReportScanFailure(w http.ResponseWriter, r *http.Request) {
	terminal, ok := h.terminal(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// the reason is informational; an absent or unreadable body still
		// reports the failure
		req.Reason = ""
	}
	if err := terminal.Camera.Fail(errors.New(req.Reason)); err != nil {
		h.writeError(w, "ReportScanFailure", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// StreamTerminal streams terminal updates until the session stops or the
// client disconnects.
func (h *Handler) StreamTerminal(w http.ResponseWriter, r *http.Request) {
	terminal, ok := h.terminal(w, r)
	if !ok {
		return
	}

	sse.SetupHeaders(w)
	ctx := r.Context()
	updates := h.Registry.Updates().Subscribe(ctx, terminal.Controller.ID)

	snapshot := terminal.Controller.Snapshot()
	if err := sse.WriteEvent(w, "snapshot", snapshot); err != nil {
		return
	}
	h.Logger.Debug("SSE", fmt.Sprintf("Client connected to terminal %s", terminal.Controller.ID))

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Terminal %s closed its stream", terminal.Controller.ID))
				return
			}
			if err := sse.WriteEvent(w, "update", update); err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to write terminal update: %v", err))
				return
			}
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from terminal %s", terminal.Controller.ID))
			return
		}
	}
}

// GetBadge renders the participant's badge QR as PNG.
func (h *Handler) GetBadge(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")

	user, err := h.Participants.FindParticipant(r.Context(), participantID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBadge: lookup failed for %s: %v", participantID, err))
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Participant lookup failed", err.Error()))
		return
	}
	if user == nil || !user.IsParticipant() {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Participant not found", participantID))
		return
	}

	png, err := h.Badges.GenerateBadgeQR(user.ID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBadge: QR generation failed for %s: %v", participantID, err))
		http.Error(w, "failed to generate badge", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK

	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	utils.WriteJSON(w, code, status)
}

func (h *Handler) terminal(w http.ResponseWriter, r *http.Request) (*checkin.Terminal, bool) {
	terminal, err := h.Registry.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, "terminal", err)
		return nil, false
	}
	return terminal, true
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	code := checkin.CodeOf(err)
	message := err.Error()
	var e *checkin.Error
	if errors.As(err, &e) {
		message = e.Message
	}

	h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	resp := utils.ErrorResponse(message, string(code))
	resp.Code = string(code)
	utils.WriteJSON(w, code.HTTPStatus(), resp)
}
