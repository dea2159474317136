// Package handlers exposes the appointment REST surface. All scheduling
// decisions live in the booking facade; handlers only parse, delegate, and
// map the error taxonomy to status codes.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/clinicbook/clinicbook/libs/httpx"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/apperr"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/booking"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/civil"
	"github.com/clinicbook/clinicbook/services/booking-service/internal/model"
)

type BookingHandler struct {
	svc *booking.Service
}

func NewBookingHandler(svc *booking.Service) *BookingHandler {
	return &BookingHandler{svc: svc}
}

type slotItem struct {
	SlotDate  string `json:"slotDate"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type createAppointmentRequest struct {
	ProfessionalID        string `json:"professionalId"`
	ProfessionalServiceID string `json:"professionalServiceId"`
	AppointmentDate       string `json:"appointmentDate"`
	StartTime             string `json:"startTime"`
	EndTime               string `json:"endTime"`
	PatientName           string `json:"patientName"`
	PatientEmail          string `json:"patientEmail"`
	PatientPhone          string `json:"patientPhone"`
}

type rescheduleRequest struct {
	AppointmentDate string `json:"appointmentDate"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
}

type appointmentItem struct {
	ID                string `json:"id"`
	ProfessionalID    string `json:"professionalId"`
	ServiceID         string `json:"professionalServiceId,omitempty"`
	AppointmentDate   string `json:"appointmentDate"`
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime"`
	Status            string `json:"status"`
	CancellationToken string `json:"cancellationToken,omitempty"`
	RescheduledFromID string `json:"rescheduledFromId,omitempty"`
}

func appointmentToItem(a model.Appointment, includeToken bool) appointmentItem {
	item := appointmentItem{
		ID:                a.ID,
		ProfessionalID:    a.ProfessionalID,
		ServiceID:         a.ServiceID,
		AppointmentDate:   a.Date.String(),
		StartTime:         a.StartTime.String(),
		EndTime:           a.EndTime.String(),
		Status:            a.Status,
		RescheduledFromID: a.RescheduledFromID,
	}
	if includeToken {
		item.CancellationToken = a.CancellationToken
	}
	return item
}

// parseOptionalEnd validates the optional endTime field. A zero return with
// ok=true means the client omitted it and the service duration decides the end.
func parseOptionalEnd(w http.ResponseWriter, raw string, start civil.TimeOfDay) (civil.TimeOfDay, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	end, err := civil.ParseTimeOfDay(raw)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if end <= start {
		httpx.WriteError(w, http.StatusBadRequest, "endTime must be after startTime")
		return 0, false
	}
	return end, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case apperr.Conflict:
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case apperr.NotFound:
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case apperr.Expired:
		httpx.WriteError(w, http.StatusGone, err.Error())
	case apperr.LimitReached:
		httpx.WriteJSON(w, http.StatusForbidden, map[string]bool{"limitReached": true})
	case apperr.Unauthorized:
		httpx.WriteError(w, http.StatusUnauthorized, err.Error())
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *BookingHandler) Timeslots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := civil.ParseDate(strings.TrimSpace(q.Get("fromDate")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "fromDate required (YYYY-MM-DD)")
		return
	}
	to, err := civil.ParseDate(strings.TrimSpace(q.Get("toDate")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "toDate required (YYYY-MM-DD)")
		return
	}

	slots, err := h.svc.Timeslots(r.Context(), booking.TimeslotQuery{
		ProfessionalID:       r.PathValue("id"),
		From:                 from,
		To:                   to,
		ServiceID:            strings.TrimSpace(q.Get("professionalServiceId")),
		ExcludeAppointmentID: strings.TrimSpace(q.Get("excludeAppointmentId")),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			SlotDate:  s.Date.String(),
			StartTime: s.Start.String(),
			EndTime:   s.End.String(),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)
	req.PatientName = strings.TrimSpace(req.PatientName)
	if req.ProfessionalID == "" || req.PatientName == "" {
		httpx.WriteError(w, http.StatusBadRequest, "professionalId and patientName are required")
		return
	}
	if strings.TrimSpace(req.PatientEmail) == "" && strings.TrimSpace(req.PatientPhone) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "patientEmail or patientPhone is required")
		return
	}
	date, err := civil.ParseDate(strings.TrimSpace(req.AppointmentDate))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := civil.ParseTimeOfDay(strings.TrimSpace(req.StartTime))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, ok := parseOptionalEnd(w, req.EndTime, start)
	if !ok {
		return
	}

	appt, err := h.svc.Book(r.Context(), booking.BookRequest{
		ProfessionalID: req.ProfessionalID,
		ServiceID:      strings.TrimSpace(req.ProfessionalServiceID),
		Date:           date,
		Start:          start,
		End:            end,
		PatientName:    req.PatientName,
		PatientEmail:   strings.TrimSpace(req.PatientEmail),
		PatientPhone:   strings.TrimSpace(req.PatientPhone),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appointmentToItem(appt, true))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentToItem(appt, false))
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	date, err := civil.ParseDate(strings.TrimSpace(req.AppointmentDate))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := civil.ParseTimeOfDay(strings.TrimSpace(req.StartTime))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, ok := parseOptionalEnd(w, req.EndTime, start)
	if !ok {
		return
	}

	appt, err := h.svc.Reschedule(r.Context(), booking.RescheduleRequest{
		AppointmentID: r.PathValue("id"),
		Date:          date,
		Start:         start,
		End:           end,
		RescheduledBy: strings.TrimSpace(r.Header.Get("X-Professional-Id")),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentToItem(appt, true))
}

func (h *BookingHandler) ListForProfessional(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := civil.ParseDate(strings.TrimSpace(q.Get("fromDate")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "fromDate required (YYYY-MM-DD)")
		return
	}
	to, err := civil.ParseDate(strings.TrimSpace(q.Get("toDate")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "toDate required (YYYY-MM-DD)")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	appts, err := h.svc.List(r.Context(), r.PathValue("id"), from, to, strings.TrimSpace(q.Get("status")), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, appointmentToItem(a, false))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}
