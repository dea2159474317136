package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Field validation runs before the facade is consulted, so these requests
// never reach the nil service.
func postCreate(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewBookingHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	return rec
}

func TestCreateRejectsMalformedFields(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{
			name: "missing professionalId",
			body: `{"patientName":"Ana","patientEmail":"a@b.c","appointmentDate":"2026-10-01","startTime":"09:00"}`,
		},
		{
			name: "missing contact",
			body: `{"professionalId":"p1","patientName":"Ana","appointmentDate":"2026-10-01","startTime":"09:00"}`,
		},
		{
			name: "date under the old key is not accepted",
			body: `{"professionalId":"p1","patientName":"Ana","patientEmail":"a@b.c","slotDate":"2026-10-01","startTime":"09:00"}`,
		},
		{
			name: "malformed endTime",
			body: `{"professionalId":"p1","patientName":"Ana","patientEmail":"a@b.c","appointmentDate":"2026-10-01","startTime":"09:00","endTime":"10:3a"}`,
		},
		{
			name: "endTime before startTime",
			body: `{"professionalId":"p1","patientName":"Ana","patientEmail":"a@b.c","appointmentDate":"2026-10-01","startTime":"09:00","endTime":"08:30"}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postCreate(t, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestRescheduleRejectsMalformedFields(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "missing appointmentDate", body: `{"startTime":"09:00"}`},
		{name: "malformed startTime", body: `{"appointmentDate":"2026-10-01","startTime":"9:00"}`},
		{name: "endTime not after start", body: `{"appointmentDate":"2026-10-01","startTime":"09:00","endTime":"09:00"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewBookingHandler(nil)
			req := httptest.NewRequest(http.MethodPatch, "/api/v1/appointments/a1/reschedule", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.Reschedule(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}
