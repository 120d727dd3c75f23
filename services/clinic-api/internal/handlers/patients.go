package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicapi/libs/auth"
	"github.com/md-rashed-zaman/clinicapi/libs/httpx"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/appointment"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/patients"
)

const recentAppointments = 10

// AppointmentLister is the part of the engine the patient routes read.
type AppointmentLister interface {
	List(ctx context.Context, q appointment.ListQuery) (appointment.Page, error)
}

type PatientHandler struct {
	patients     patients.Store
	appointments AppointmentLister
	logger       *slog.Logger
	now          func() time.Time
}

func NewPatientHandler(store patients.Store, appointments AppointmentLister, logger *slog.Logger) *PatientHandler {
	return &PatientHandler{patients: store, appointments: appointments, logger: logger, now: time.Now}
}

// Register mounts the patient routes behind authn; deleting also needs the
// admin role.
func (h *PatientHandler) Register(mux *http.ServeMux, authn httpx.Middleware) {
	adminOnly := auth.RequireRole(auth.RoleAdmin)
	mux.Handle("GET /api/patients", authn(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/patients", authn(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/patients/{id}", authn(http.HandlerFunc(h.Get)))
	mux.Handle("PUT /api/patients/{id}", authn(http.HandlerFunc(h.Update)))
	mux.Handle("PATCH /api/patients/{id}", authn(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/patients/{id}", httpx.Chain(http.HandlerFunc(h.Delete), authn, adminOnly))
	mux.Handle("GET /api/patients/{id}/appointments", authn(http.HandlerFunc(h.Appointments)))
}

type createPatientRequest struct {
	Document  string `json:"document" validate:"required,document"`
	FullName  string `json:"full_name" validate:"required,personname"`
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Phone     string `json:"phone" validate:"omitempty,phone"`
	Email     string `json:"email" validate:"omitempty,email,max=100"`
	Address   string `json:"address" validate:"omitempty,max=500"`
}

// Absent fields stay nil and are left unchanged.
type updatePatientRequest struct {
	Document  *string `json:"document" validate:"omitempty,document"`
	FullName  *string `json:"full_name" validate:"omitempty,personname"`
	BirthDate *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Phone     *string `json:"phone" validate:"omitempty,phone"`
	Email     *string `json:"email" validate:"omitempty,email,max=100"`
	Address   *string `json:"address" validate:"omitempty,max=500"`
}

type patientDetail struct {
	Patient            patients.Patient          `json:"patient"`
	RecentAppointments []appointment.Appointment `json:"recent_appointments"`
}

func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	var errs fieldErrors
	page, limit := pageParams(r, &errs, patients.MaxPageSize)
	if !errs.empty() {
		httpx.ValidationFailed(w, errs)
		return
	}
	q := patients.Query{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Page:   page,
		Limit:  limit,
	}.Normalized()
	items, total, err := h.patients.List(r.Context(), q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []patients.Patient{}
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{
		Success:    true,
		Data:       items,
		Pagination: pagination{Page: q.Page, Limit: q.Limit, Total: total, Pages: pages(total, q.Limit)},
	})
}

func (h *PatientHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r)
	if !ok {
		h.invalidID(w, r)
		return
	}
	p, err := h.patients.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	recent, err := h.appointments.List(r.Context(), appointment.ListQuery{PatientID: id, Limit: recentAppointments})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := recent.Items
	if items == nil {
		items = []appointment.Appointment{}
	}
	httpx.OK(w, http.StatusOK, "", patientDetail{Patient: p, RecentAppointments: items})
}

func (h *PatientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPatientRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Document = strings.TrimSpace(req.Document)
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	if errs := validateStruct(req); !errs.empty() {
		httpx.ValidationFailed(w, errs)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	p := patients.Patient{
		Document:  req.Document,
		FullName:  req.FullName,
		Phone:     req.Phone,
		Email:     req.Email,
		Address:   req.Address,
		UpdatedBy: principal.UserID,
	}
	if req.BirthDate != "" {
		d, _ := time.Parse(time.DateOnly, req.BirthDate)
		p.BirthDate = &d
	}
	created, err := h.patients.Create(r.Context(), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("patient created",
		"patient_id", created.ID,
		"user_id", principal.UserID,
		"request_id", httpx.RequestIDFromContext(r.Context()),
	)
	httpx.OK(w, http.StatusCreated, "Patient created successfully", created)
}

func (h *PatientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r)
	if !ok {
		h.invalidID(w, r)
		return
	}
	var req updatePatientRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if errs := validateStruct(req); !errs.empty() {
		httpx.ValidationFailed(w, errs)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	patch := patients.Patch{
		Document: req.Document,
		FullName: req.FullName,
		Phone:    req.Phone,
		Email:    req.Email,
		Address:  req.Address,
	}
	if req.BirthDate != nil {
		d, _ := time.Parse(time.DateOnly, *req.BirthDate)
		patch.BirthDate = &d
	}
	updated, err := h.patients.Update(r.Context(), id, patients.Changes{
		Patch:     patch,
		UpdatedBy: principal.UserID,
		UpdatedAt: h.now().UTC(),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Patient updated successfully", updated)
}

// Delete refuses patients with any appointment history, cancelled included.
func (h *PatientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r)
	if !ok {
		h.invalidID(w, r)
		return
	}
	ctx := r.Context()
	if _, err := h.patients.Get(ctx, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	history, err := h.appointments.List(ctx, appointment.ListQuery{PatientID: id, Limit: 1})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if history.Total > 0 {
		writeError(w, r, h.logger, patients.ErrHasAppointments)
		return
	}
	if err := h.patients.Delete(ctx, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Patient deleted successfully", nil)
}

func (h *PatientHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r)
	if !ok {
		h.invalidID(w, r)
		return
	}
	var errs fieldErrors
	page, limit := pageParams(r, &errs, appointment.MaxPageSize)
	if !errs.empty() {
		httpx.ValidationFailed(w, errs)
		return
	}
	if _, err := h.patients.Get(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.appointments.List(r.Context(), appointment.ListQuery{PatientID: id, Page: page, Limit: limit})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := res.Items
	if items == nil {
		items = []appointment.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{
		Success:    true,
		Data:       items,
		Pagination: pagination{Page: res.Page, Limit: res.Limit, Total: res.Total, Pages: res.Pages},
	})
}

func (h *PatientHandler) invalidID(w http.ResponseWriter, r *http.Request) {
	httpx.ValidationFailed(w, fieldErrors{{Field: "id", Message: "Valid patient ID required", Value: r.PathValue("id")}})
}
