// Package handlers exposes the booking and check-in operations over HTTP.
package handlers

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/booking"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/checkin"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/notify"
)

const maxScanImageBytes = 4 << 20

// Dispatcher performs the effects of domain events.
type Dispatcher interface {
	Dispatch(ctx context.Context, events ...notify.Event)
}

type AppointmentHandler struct {
	bookings *booking.Manager
	checkins *checkin.Service
	dispatch Dispatcher
	logger   *slog.Logger
	qrSize   int
}

func NewAppointmentHandler(bookings *booking.Manager, checkins *checkin.Service, dispatch Dispatcher, logger *slog.Logger, qrSize int) *AppointmentHandler {
	return &AppointmentHandler{bookings: bookings, checkins: checkins, dispatch: dispatch, logger: logger, qrSize: qrSize}
}

// Register mounts every route behind bearer authentication.
func (h *AppointmentHandler) Register(mux *http.ServeMux, verifier *auth.Verifier) {
	authed := func(fn http.HandlerFunc, roles ...auth.Role) http.Handler {
		var next http.Handler = fn
		if len(roles) > 0 {
			next = auth.RequireRole(next, roles...)
		}
		return auth.RequireIdentity(verifier, next)
	}
	staff := []auth.Role{auth.RoleCounselor, auth.RoleAdmin}

	mux.Handle("GET /api/v1/slots", authed(h.Slots))
	mux.Handle("POST /api/v1/appointments", authed(h.Create, auth.RoleStudent, auth.RoleAdmin))
	mux.Handle("GET /api/v1/appointments", authed(h.List))
	mux.Handle("GET /api/v1/appointments/{id}", authed(h.Get))
	mux.Handle("DELETE /api/v1/appointments/{id}", authed(h.Delete, auth.RoleAdmin))
	mux.Handle("POST /api/v1/appointments/{id}/cancel", authed(h.Cancel))
	mux.Handle("POST /api/v1/appointments/{id}/status", authed(h.UpdateStatus))
	mux.Handle("GET /api/v1/appointments/{id}/checkin-code.png", authed(h.CheckInCode))
	mux.Handle("POST /api/v1/checkin/scan", authed(h.Scan, staff...))
	mux.Handle("PUT /api/v1/timeslots", authed(h.PutTimeSlot, staff...))
	mux.Handle("GET /api/v1/timeslots", authed(h.ListTimeSlots, staff...))
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	program := q.Get("program")
	if program == "" {
		program = identity(r).Program
	}
	slots, err := h.bookings.Availability(r.Context(), q.Get("date"), program)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slots)
}

type createResponse struct {
	Appointment model.Appointment `json:"appointment"`
	CheckInCode string            `json:"checkin_code"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req booking.CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteCodedError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	res, err := h.bookings.Create(r.Context(), identity(r), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	h.dispatch.Dispatch(r.Context(), res.Events...)

	out := createResponse{Appointment: res.Appointment}
	if res.Token != nil {
		out.CheckInCode = res.Token.Payload
	}
	httpx.WriteJSON(w, http.StatusCreated, out)
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.WriteCodedError(w, http.StatusBadRequest, "validation_error", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	items, err := h.bookings.List(r.Context(), identity(r), model.AppointmentFilter{
		StudentID:   q.Get("student_id"),
		CounselorID: q.Get("counselor_id"),
		Program:     q.Get("program"),
		Date:        q.Get("date"),
		DateFrom:    q.Get("from"),
		DateTo:      q.Get("to"),
		Status:      model.Status(q.Get("status")),
		Limit:       limit,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.bookings.Get(r.Context(), identity(r), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.bookings.Delete(r.Context(), identity(r), r.PathValue("id")); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionResponse struct {
	Appointment  model.Appointment     `json:"appointment"`
	GoalFailures []booking.GoalFailure `json:"goal_failures,omitempty"`
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req booking.CancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteCodedError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	res, err := h.bookings.Cancel(r.Context(), identity(r), r.PathValue("id"), req)
	h.respondTransition(w, r, res, err)
}

func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req booking.UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteCodedError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	res, err := h.bookings.Update(r.Context(), identity(r), r.PathValue("id"), req)
	h.respondTransition(w, r, res, err)
}

func (h *AppointmentHandler) respondTransition(w http.ResponseWriter, r *http.Request, res booking.Result, err error) {
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	h.dispatch.Dispatch(r.Context(), res.Events...)
	httpx.WriteJSON(w, http.StatusOK, transitionResponse{Appointment: res.Appointment, GoalFailures: res.GoalFailures})
}

// CheckInCode renders the appointment's check-in payload as a QR image for
// whoever may see the appointment.
func (h *AppointmentHandler) CheckInCode(w http.ResponseWriter, r *http.Request) {
	appt, err := h.bookings.Get(r.Context(), identity(r), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	code, err := h.checkins.Code(r.Context(), appt.ID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	png, err := checkin.RenderQR(code, h.qrSize)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type scanRequest struct {
	Payload string `json:"payload"`
}

type scanResponse struct {
	Appointment model.Appointment `json:"appointment"`
	ScannedAt   string            `json:"scanned_at"`
}

// Scan accepts either {"payload": "..."} or a multipart upload with an
// "image" part holding a photo of the code.
func (h *AppointmentHandler) Scan(w http.ResponseWriter, r *http.Request) {
	payload, err := h.scanPayload(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	res, err := h.checkins.Verify(r.Context(), payload)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	h.dispatch.Dispatch(r.Context(), res.Events...)

	out := scanResponse{Appointment: res.Appointment}
	if res.Token.ScannedAt != nil {
		out.ScannedAt = res.Token.ScannedAt.UTC().Format(time.RFC3339)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *AppointmentHandler) scanPayload(r *http.Request) (string, error) {
	const op = "handlers.Scan"

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxScanImageBytes); err != nil {
			return "", model.Wrap(op, model.ErrValidation, "invalid multipart body", err)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return "", model.Wrap(op, model.ErrValidation, "image part is required", err)
		}
		defer file.Close()
		return checkin.DecodeQR(io.LimitReader(file, maxScanImageBytes))
	}

	var req scanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return "", model.Wrap(op, model.ErrValidation, "invalid json body", err)
	}
	if strings.TrimSpace(req.Payload) == "" {
		return "", model.E(op, model.ErrValidation, "payload is required")
	}
	return req.Payload, nil
}

func (h *AppointmentHandler) PutTimeSlot(w http.ResponseWriter, r *http.Request) {
	var req booking.TimeSlotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteCodedError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	ts, err := h.bookings.SetTimeSlot(r.Context(), identity(r), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ts)
}

func (h *AppointmentHandler) ListTimeSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	slots, err := h.bookings.ListTimeSlots(r.Context(), identity(r), q.Get("date"), q.Get("counselor_id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if slots == nil {
		slots = []model.TimeSlot{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": slots})
}
