package schedule

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/clinicbook/clinicbook/libs/httpx"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
)

// Handler exposes the professional-facing schedule settings. Role checks
// happen upstream; these endpoints trust the professional id in the path.
type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

type windowItem struct {
	Weekday     int    `json:"weekday"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsAvailable bool   `json:"isAvailable"`
}

type breakRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type breakItem struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	professionalID := r.PathValue("id")
	windows, err := h.repo.ListWindows(r.Context(), professionalID)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load schedule")
		return
	}

	items := make([]windowItem, 0, len(windows))
	for _, win := range windows {
		items = append(items, windowItem{
			Weekday:     win.Weekday,
			StartTime:   win.StartTime.String(),
			EndTime:     win.EndTime.String(),
			IsAvailable: win.IsAvailable,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) PutSchedule(w http.ResponseWriter, r *http.Request) {
	professionalID := r.PathValue("id")

	var items []windowItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	for _, item := range items {
		if item.Weekday < 0 || item.Weekday > 6 {
			httpx.WriteError(w, http.StatusBadRequest, "weekday must be 0-6")
			return
		}
		win := Window{
			ProfessionalID: professionalID,
			Weekday:        item.Weekday,
			IsAvailable:    item.IsAvailable,
		}
		if item.IsAvailable {
			start, err := civil.ParseTimeOfDay(item.StartTime)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			end, err := civil.ParseTimeOfDay(item.EndTime)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			if end <= start {
				httpx.WriteError(w, http.StatusBadRequest, "endTime must be after startTime")
				return
			}
			win.StartTime = start
			win.EndTime = end
		}
		if err := h.repo.UpsertWindow(r.Context(), win); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "failed to save schedule")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateBreak(w http.ResponseWriter, r *http.Request) {
	professionalID := r.PathValue("id")

	var req breakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	date, err := civil.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := civil.ParseTimeOfDay(req.StartTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := civil.ParseTimeOfDay(req.EndTime)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if end <= start {
		httpx.WriteError(w, http.StatusBadRequest, "endTime must be after startTime")
		return
	}

	id, err := h.repo.CreateBreak(r.Context(), Break{
		ProfessionalID: professionalID,
		Date:           date,
		StartTime:      start,
		EndTime:        end,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to create break")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, breakItem{
		ID:        id,
		Date:      date.String(),
		StartTime: start.String(),
		EndTime:   end.String(),
	})
}

func (h *Handler) DeleteBreak(w http.ResponseWriter, r *http.Request) {
	professionalID := r.PathValue("id")
	breakID := r.PathValue("breakId")

	if err := h.repo.DeleteBreak(r.Context(), professionalID, breakID); err != nil {
		if err == pgx.ErrNoRows {
			httpx.WriteError(w, http.StatusNotFound, "break not found")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "failed to delete break")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListBreaks(w http.ResponseWriter, r *http.Request) {
	professionalID := r.PathValue("id")
	from, err := civil.ParseDate(strings.TrimSpace(r.URL.Query().Get("fromDate")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "fromDate required (YYYY-MM-DD)")
		return
	}
	to, err := civil.ParseDate(strings.TrimSpace(r.URL.Query().Get("toDate")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "toDate required (YYYY-MM-DD)")
		return
	}

	breaks, err := h.repo.BreaksInRange(r.Context(), professionalID, from, to)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load breaks")
		return
	}
	items := make([]breakItem, 0, len(breaks))
	for _, b := range breaks {
		items = append(items, breakItem{
			ID:        b.ID,
			Date:      b.Date.String(),
			StartTime: b.StartTime.String(),
			EndTime:   b.EndTime.String(),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}
