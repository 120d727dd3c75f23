package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicapi/libs/httpx"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/appointment"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/metrics"
)

// Appointments is the engine surface the HTTP layer drives.
type Appointments interface {
	Book(ctx context.Context, req appointment.BookRequest) (appointment.Appointment, error)
	Reschedule(ctx context.Context, id int64, patch appointment.Patch, actor appointment.Actor) (appointment.Appointment, error)
	Cancel(ctx context.Context, id int64, actingUserID string) (appointment.Appointment, bool, error)
	Get(ctx context.Context, id int64) (appointment.Appointment, error)
	List(ctx context.Context, q appointment.ListQuery) (appointment.Page, error)
	Calendar(ctx context.Context, q appointment.CalendarQuery) ([]appointment.CalendarEntry, error)
}

type AppointmentHandler struct {
	engine  Appointments
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewAppointmentHandler(engine Appointments, logger *slog.Logger, m *metrics.Metrics) *AppointmentHandler {
	return &AppointmentHandler{engine: engine, logger: logger, metrics: m}
}

// Register mounts the appointment routes behind authn.
func (h *AppointmentHandler) Register(mux *http.ServeMux, authn httpx.Middleware) {
	mux.Handle("GET /api/appointments", authn(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/appointments", authn(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/appointments/calendar/view", authn(http.HandlerFunc(h.Calendar)))
	mux.Handle("GET /api/appointments/{id}", authn(http.HandlerFunc(h.Get)))
	mux.Handle("PUT /api/appointments/{id}", authn(http.HandlerFunc(h.Update)))
	mux.Handle("PATCH /api/appointments/{id}", authn(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/appointments/{id}", authn(http.HandlerFunc(h.Cancel)))
}

type createAppointmentRequest struct {
	PatientID      string `json:"patient_id"`
	ProfessionalID string `json:"professional_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	ServiceTypeID  int64  `json:"service_type_id"`
	Notes          string `json:"notes"`
}

// Absent fields stay nil and are left unchanged.
type updateAppointmentRequest struct {
	ProfessionalID *string `json:"professional_id"`
	StartTime      *string `json:"start_time"`
	EndTime        *string `json:"end_time"`
	ServiceTypeID  *int64  `json:"service_type_id"`
	Notes          *string `json:"notes"`
	StatusID       *int    `json:"status_id"`
}

type listFilters struct {
	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
	StatusID       int64  `json:"status_id,omitempty"`
	ProfessionalID string `json:"professional_id,omitempty"`
	ServiceTypeID  int64  `json:"service_type_id,omitempty"`
	Search         string `json:"search,omitempty"`
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	var errs fieldErrors
	page := queryInt(r, &errs, "page", 1, 0, "Page must be a positive integer")
	limit := queryInt(r, &errs, "limit", 1, appointment.MaxPageSize, "Limit must be between 1 and 100")
	from := queryTime(r, &errs, "from")
	to := queryTime(r, &errs, "to")
	status := queryInt(r, &errs, "status", 1, 0, "Valid status ID required")
	serviceType := queryInt(r, &errs, "service_type_id", 1, 0, "Valid service type ID required")
	professional := queryUUID(r, &errs, "professional_id", "Valid professional ID required")
	if !errs.empty() {
		httpx.ValidationFailed(w, errs)
		return
	}

	q := appointment.ListQuery{
		From:           from,
		To:             to,
		Status:         appointment.Status(status),
		ProfessionalID: professional,
		ServiceTypeID:  serviceType,
		Search:         strings.TrimSpace(r.URL.Query().Get("search")),
		Page:           int(page),
		Limit:          int(limit),
	}
	res, err := h.engine.List(r.Context(), q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{
		Success:    true,
		Data:       res.Items,
		Pagination: pagination{Page: res.Page, Limit: res.Limit, Total: res.Total, Pages: res.Pages},
		Filters: listFilters{
			From:           r.URL.Query().Get("from"),
			To:             r.URL.Query().Get("to"),
			StatusID:       status,
			ProfessionalID: professional,
			ServiceTypeID:  serviceType,
			Search:         q.Search,
		},
	})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.invalidID(w, r)
		return
	}
	appt, err := h.engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", appt)
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	var errs fieldErrors
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)
	if !validUUID(req.PatientID) {
		errs.add("patient_id", "Valid patient ID required", req.PatientID)
	}
	if req.ProfessionalID != "" && !validUUID(req.ProfessionalID) {
		errs.add("professional_id", "Valid professional ID required", req.ProfessionalID)
	}
	start, err := parseTime(req.StartTime)
	if err != nil {
		errs.add("start_time", "Valid start date required", req.StartTime)
	}
	end, err := parseTime(req.EndTime)
	if err != nil {
		errs.add("end_time", "Valid end date required", req.EndTime)
	}
	if req.ServiceTypeID < 1 {
		errs.add("service_type_id", "Valid service type ID required", req.ServiceTypeID)
	}
	if !errs.empty() {
		httpx.ValidationFailed(w, errs)
		return
	}

	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	appt, err := h.engine.Book(r.Context(), appointment.BookRequest{
		PatientID:      req.PatientID,
		ProfessionalID: req.ProfessionalID,
		Start:          start,
		End:            end,
		ServiceTypeID:  req.ServiceTypeID,
		Notes:          req.Notes,
		ActingUserID:   principal.UserID,
	})
	if err != nil {
		h.metrics.Conflict(err)
		writeError(w, r, h.logger, err)
		return
	}
	h.metrics.Booked()
	h.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"professional_id", appt.ProfessionalID,
		"request_id", httpx.RequestIDFromContext(r.Context()),
	)
	httpx.OK(w, http.StatusCreated, "Appointment created successfully", appt)
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.invalidID(w, r)
		return
	}
	var req updateAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	patch, errs := req.patch()
	if !errs.empty() {
		httpx.ValidationFailed(w, errs)
		return
	}

	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	appt, err := h.engine.Reschedule(r.Context(), id, patch, appointment.Actor{UserID: principal.UserID, Role: principal.Role})
	if err != nil {
		h.metrics.Conflict(err)
		writeError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Appointment updated successfully", appt)
}

func (req updateAppointmentRequest) patch() (appointment.Patch, fieldErrors) {
	var (
		p    appointment.Patch
		errs fieldErrors
	)
	if req.ProfessionalID != nil {
		v := strings.TrimSpace(*req.ProfessionalID)
		if v != "" && !validUUID(v) {
			errs.add("professional_id", "Valid professional ID required", v)
		}
		p.ProfessionalID = &v
	}
	if req.StartTime != nil {
		t, err := parseTime(*req.StartTime)
		if err != nil {
			errs.add("start_time", "Valid start date required", *req.StartTime)
		}
		p.StartTime = &t
	}
	if req.EndTime != nil {
		t, err := parseTime(*req.EndTime)
		if err != nil {
			errs.add("end_time", "Valid end date required", *req.EndTime)
		}
		p.EndTime = &t
	}
	if req.ServiceTypeID != nil {
		if *req.ServiceTypeID < 1 {
			errs.add("service_type_id", "Valid service type ID required", *req.ServiceTypeID)
		}
		p.ServiceTypeID = req.ServiceTypeID
	}
	if req.Notes != nil {
		p.Notes = req.Notes
	}
	if req.StatusID != nil {
		if *req.StatusID < 1 {
			errs.add("status_id", "Valid status ID required", *req.StatusID)
		}
		s := appointment.Status(*req.StatusID)
		p.Status = &s
	}
	return p, errs
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.invalidID(w, r)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	_, changed, err := h.engine.Cancel(r.Context(), id, principal.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if changed {
		h.metrics.Cancelled()
	}
	httpx.OK(w, http.StatusOK, "Appointment cancelled successfully", nil)
}

func (h *AppointmentHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	var errs fieldErrors
	q := appointment.CalendarQuery{
		From:           queryTime(r, &errs, "start"),
		To:             queryTime(r, &errs, "end"),
		ProfessionalID: queryUUID(r, &errs, "professional_id", "Valid professional ID required"),
	}
	if !errs.empty() {
		httpx.ValidationFailed(w, errs)
		return
	}
	entries, err := h.engine.Calendar(r.Context(), q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", entries)
}

func (h *AppointmentHandler) invalidID(w http.ResponseWriter, r *http.Request) {
	httpx.ValidationFailed(w, fieldErrors{{Field: "id", Message: "Valid appointment ID required", Value: r.PathValue("id")}})
}
