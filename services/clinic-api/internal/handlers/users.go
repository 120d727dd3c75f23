package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicapi/libs/auth"
	"github.com/md-rashed-zaman/clinicapi/libs/httpx"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/storage"
)

// UserAdmin is the account store behind the user management routes.
type UserAdmin interface {
	FindByID(ctx context.Context, id string) (storage.User, error)
	List(ctx context.Context, q storage.UserQuery) ([]storage.User, int, error)
	Create(ctx context.Context, user storage.User) (storage.User, error)
	Update(ctx context.Context, id string, p storage.UserPatch, at time.Time) (storage.User, error)
}

type UserHandler struct {
	users        UserAdmin
	bcryptRounds int
	logger       *slog.Logger
	now          func() time.Time
}

func NewUserHandler(users UserAdmin, bcryptRounds int, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, bcryptRounds: bcryptRounds, logger: logger, now: time.Now}
}

// Register mounts the user routes. Listing, creating and deactivating are
// admin only; reading and editing are open to the account itself.
func (h *UserHandler) Register(mux *http.ServeMux, authn httpx.Middleware) {
	admin := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, authn, auth.RequireRole(auth.RoleAdmin))
	}
	mux.Handle("GET /api/users", admin(h.List))
	mux.Handle("POST /api/users", admin(h.Create))
	mux.Handle("GET /api/users/{id}", authn(http.HandlerFunc(h.Get)))
	mux.Handle("PUT /api/users/{id}", authn(http.HandlerFunc(h.Update)))
	mux.Handle("PATCH /api/users/{id}", authn(http.HandlerFunc(h.Update)))
	mux.Handle("DELETE /api/users/{id}", admin(h.Deactivate))
}

type createUserRequest struct {
	Document string `json:"document" validate:"required,document"`
	FullName string `json:"full_name" validate:"required,personname"`
	Email    string `json:"email" validate:"omitempty,email,max=100"`
	Password string `json:"password" validate:"required,strongpassword"`
	RoleID   int    `json:"role_id" validate:"required,min=1"`
	Active   *bool  `json:"active"`
}

// Absent fields stay nil and are left unchanged.
type updateUserRequest struct {
	Document *string `json:"document" validate:"omitempty,document"`
	FullName *string `json:"full_name" validate:"omitempty,personname"`
	Email    *string `json:"email" validate:"omitempty,email,max=100"`
	Password *string `json:"password" validate:"omitempty,strongpassword"`
	RoleID   *int    `json:"role_id" validate:"omitempty,min=1"`
	Active   *bool   `json:"active"`
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	var errs fieldErrors
	page, limit := pageParams(r, &errs, storage.MaxUserPageSize)
	if !errs.empty() {
		httpx.ValidationFailed(w, errs)
		return
	}
	q := storage.UserQuery{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Page:   page,
		Limit:  limit,
	}.Normalized()
	items, total, err := h.users.List(r.Context(), q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []storage.User{}
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{
		Success:    true,
		Data:       items,
		Pagination: pagination{Page: q.Page, Limit: q.Limit, Total: total, Pages: pages(total, q.Limit)},
	})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r)
	if !ok {
		h.invalidID(w, r)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if !principal.IsAdmin() && principal.UserID != id {
		httpx.Fail(w, http.StatusForbidden, "Access denied")
		return
	}
	u, err := h.users.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", u)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Document = strings.TrimSpace(req.Document)
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	errs := validateStruct(req)
	if req.RoleID > 0 && !storage.ValidRole(req.RoleID) {
		errs.add("role_id", fieldMessages["role_id"], req.RoleID)
	}
	if !errs.empty() {
		httpx.ValidationFailed(w, errs)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	hash, err := auth.HashPassword(req.Password, h.bcryptRounds)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	created, err := h.users.Create(r.Context(), storage.User{
		Document:     req.Document,
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: hash,
		RoleID:       req.RoleID,
		Active:       active,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("user created",
		"user_id", created.ID,
		"role", created.Role,
		"created_by", principal.UserID,
		"request_id", httpx.RequestIDFromContext(r.Context()),
	)
	httpx.OK(w, http.StatusCreated, "User created successfully", created)
}

// Update lets an account edit its own profile and password; role and
// active flag changes need an admin.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r)
	if !ok {
		h.invalidID(w, r)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if !principal.IsAdmin() && principal.UserID != id {
		httpx.Fail(w, http.StatusForbidden, "Access denied")
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	errs := validateStruct(req)
	if req.RoleID != nil && *req.RoleID > 0 && !storage.ValidRole(*req.RoleID) {
		errs.add("role_id", fieldMessages["role_id"], *req.RoleID)
	}
	if !errs.empty() {
		httpx.ValidationFailed(w, errs)
		return
	}
	if !principal.IsAdmin() && (req.RoleID != nil || req.Active != nil) {
		httpx.Fail(w, http.StatusForbidden, "Insufficient permissions")
		return
	}
	if req.Active != nil && !*req.Active && id == principal.UserID {
		httpx.Fail(w, http.StatusBadRequest, "Cannot deactivate your own account")
		return
	}

	patch := storage.UserPatch{
		Document: req.Document,
		FullName: req.FullName,
		Email:    req.Email,
		RoleID:   req.RoleID,
		Active:   req.Active,
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password, h.bcryptRounds)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		patch.PasswordHash = &hash
	}
	if patch.Empty() {
		httpx.Fail(w, http.StatusBadRequest, "No valid fields to update")
		return
	}
	updated, err := h.users.Update(r.Context(), id, patch, h.now().UTC())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "User updated successfully", updated)
}

// Deactivate is a soft delete; the account stays for audit and history.
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r)
	if !ok {
		h.invalidID(w, r)
		return
	}
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := h.users.FindByID(ctx, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if id == principal.UserID {
		httpx.Fail(w, http.StatusBadRequest, "Cannot delete your own account")
		return
	}
	inactive := false
	if _, err := h.users.Update(ctx, id, storage.UserPatch{Active: &inactive}, h.now().UTC()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("user deactivated",
		"user_id", id,
		"by", principal.UserID,
		"request_id", httpx.RequestIDFromContext(ctx),
	)
	httpx.OK(w, http.StatusOK, "User deactivated successfully", nil)
}

func (h *UserHandler) invalidID(w http.ResponseWriter, r *http.Request) {
	httpx.ValidationFailed(w, fieldErrors{{Field: "id", Message: "Valid user ID required", Value: r.PathValue("id")}})
}
