package waitlist

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/clinicbook/clinicbook/libs/httpx"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

// Handler exposes the public waitlist surface. Everything is keyed by the
// opaque entry token; no authentication beyond possession of the token.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type createRequest struct {
	ProfessionalID        string `json:"professionalId"`
	ProfessionalServiceID string `json:"professionalServiceId"`
	Name                  string `json:"name"`
	Email                 string `json:"email"`
	Phone                 string `json:"phone"`
	PreferredDate         string `json:"preferredDate"`
	PreferredStartTime    string `json:"preferredStartTime"`
	PreferredEndTime      string `json:"preferredEndTime"`
}

type entryResponse struct {
	Token          string `json:"token"`
	Status         string `json:"status"`
	ProfessionalID string `json:"professionalId"`
	PreferredDate  string `json:"preferredDate"`
	SlotDate       string `json:"slotDate,omitempty"`
	StartTime      string `json:"startTime,omitempty"`
	EndTime        string `json:"endTime,omitempty"`
	ExpiresAt      string `json:"expiresAt,omitempty"`
}

func entryToResponse(e Entry) entryResponse {
	resp := entryResponse{
		Token:          e.Token,
		Status:         e.Status,
		ProfessionalID: e.ProfessionalID,
		PreferredDate:  e.PreferredDate.String(),
	}
	if e.AvailableDate != "" {
		resp.SlotDate = e.AvailableDate.String()
		resp.StartTime = e.AvailableStart.String()
		resp.EndTime = e.AvailableEnd.String()
	}
	if e.ExpiresAt != nil {
		resp.ExpiresAt = e.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Expired:
		return http.StatusGone
	case apperr.LimitReached:
		return http.StatusForbidden
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		httpx.WriteError(w, status, "internal error")
		return
	}
	httpx.WriteError(w, status, err.Error())
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.ProfessionalID == "" || req.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "professionalId and name are required")
		return
	}
	if req.Email == "" && req.Phone == "" {
		httpx.WriteError(w, http.StatusBadRequest, "email or phone is required")
		return
	}
	date, err := civil.ParseDate(strings.TrimSpace(req.PreferredDate))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry := Entry{
		ProfessionalID: req.ProfessionalID,
		ServiceRef:     req.ProfessionalServiceID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		PreferredDate:  date,
	}
	if req.PreferredStartTime != "" || req.PreferredEndTime != "" {
		start, err := civil.ParseTimeOfDay(req.PreferredStartTime)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		end, err := civil.ParseTimeOfDay(req.PreferredEndTime)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if end <= start {
			httpx.WriteError(w, http.StatusBadRequest, "preferredEndTime must be after preferredStartTime")
			return
		}
		entry.PreferredStart = start
		entry.PreferredEnd = end
	}

	if err := h.engine.CreateEntry(r.Context(), &entry); err != nil {
		writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, entryToResponse(entry))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.Get(r.Context(), r.PathValue("token"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entryToResponse(entry))
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	appt, err := h.engine.Confirm(r.Context(), r.PathValue("token"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"appointmentId":     appt.ID,
		"professionalId":    appt.ProfessionalID,
		"appointmentDate":   appt.Date.String(),
		"startTime":         appt.StartTime.String(),
		"endTime":           appt.EndTime.String(),
		"status":            appt.Status,
		"cancellationToken": appt.CancellationToken,
	})
}

// Cancel withdraws the entry entirely. Unlike Release it never re-offers
// the stamped slot; the patient simply leaves the queue.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Cancel(r.Context(), r.PathValue("token")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.Release(r.Context(), r.PathValue("token"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entryToResponse(entry))
}
