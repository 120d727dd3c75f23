package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicapi/libs/auth"
	"github.com/md-rashed-zaman/clinicapi/libs/httpx"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/audit"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/lockout"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/metrics"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/storage"
)

type UserStore interface {
	FindByDocument(ctx context.Context, document string) (storage.User, error)
	FindByID(ctx context.Context, id string) (storage.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

type TokenIssuer interface {
	auth.Verifier
	Issue(use auth.TokenUse, subject, role, document string) (string, time.Time, error)
	AccessTTL() time.Duration
}

type AuthHandler struct {
	users   UserStore
	tokens  TokenIssuer
	guard   *lockout.Guard
	audit   audit.Recorder
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAuthHandler(users UserStore, tokens TokenIssuer, guard *lockout.Guard, recorder audit.Recorder, logger *slog.Logger, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		users:   users,
		tokens:  tokens,
		guard:   guard,
		audit:   recorder,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Register mounts the auth routes. limit applies to login and refresh.
func (h *AuthHandler) Register(mux *http.ServeMux, limit, authn httpx.Middleware) {
	mux.Handle("POST /api/auth/login", limit(http.HandlerFunc(h.Login)))
	mux.Handle("POST /api/auth/refresh", limit(http.HandlerFunc(h.Refresh)))
	mux.Handle("POST /api/auth/logout", authn(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /api/auth/me", authn(http.HandlerFunc(h.Me)))
}

// CheckUser re-reads the token subject on every authenticated request so
// deactivation and role changes apply before the token expires.
func (h *AuthHandler) CheckUser(ctx context.Context, claims *auth.Claims) (auth.Principal, error) {
	u, err := h.users.FindByID(ctx, claims.Subject)
	if errors.Is(err, storage.ErrUserNotFound) {
		return auth.Principal{}, auth.ErrInactiveUser
	}
	if err != nil {
		return auth.Principal{}, err
	}
	if !u.Active {
		return auth.Principal{}, auth.ErrInactiveUser
	}
	return auth.Principal{UserID: u.ID, Role: u.Role, Document: u.Document}, nil
}

type loginRequest struct {
	Document string `json:"document"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userView struct {
	ID       string `json:"id"`
	Document string `json:"document"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	RoleID   int    `json:"role_id"`
	Role     string `json:"role"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    string `json:"expiresIn"`
	ExpiresAt    string `json:"expiresAt"`
}

func newUserView(u storage.User) userView {
	return userView{ID: u.ID, Document: u.Document, FullName: u.FullName, Email: u.Email, RoleID: u.RoleID, Role: u.Role}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Document = strings.TrimSpace(req.Document)
	var errs fieldErrors
	if req.Document == "" {
		errs.add("document", "Document required", nil)
	}
	if req.Password == "" {
		errs.add("password", "Password required", nil)
	}
	if !errs.empty() {
		httpx.ValidationFailed(w, errs)
		return
	}

	ctx := r.Context()
	entry := audit.Entry{
		Document:  req.Document,
		IP:        httpx.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: httpx.RequestIDFromContext(ctx),
	}
	key := lockout.Key(req.Document, entry.IP)

	locked, err := h.guard.Locked(ctx, key)
	if err != nil {
		h.logger.Warn("lockout check failed", "err", err, "request_id", entry.RequestID)
	}
	if locked {
		h.metrics.LockedOut()
		h.record(ctx, audit.LoginLocked, entry)
		httpx.Fail(w, http.StatusTooManyRequests, "Account temporarily locked due to too many failed attempts. Please try again later.")
		return
	}

	user, err := h.users.FindByDocument(ctx, req.Document)
	if errors.Is(err, storage.ErrUserNotFound) {
		h.failLogin(ctx, key, entry, "unknown_document")
		httpx.Fail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		h.logger.Error("load user failed", "err", err, "request_id", entry.RequestID)
		httpx.Fail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	entry.UserID = user.ID

	// Inactive accounts are rejected without counting towards the lockout.
	if !user.Active {
		httpx.Fail(w, http.StatusUnauthorized, "Account is inactive")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.failLogin(ctx, key, entry, "bad_password")
		httpx.Fail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := h.guard.Succeed(ctx, key); err != nil {
		h.logger.Warn("lockout reset failed", "err", err, "request_id", entry.RequestID)
	}
	access, expiresAt, err := h.tokens.Issue(auth.AccessToken, user.ID, user.Role, user.Document)
	if err != nil {
		h.logger.Error("issue access token failed", "err", err, "request_id", entry.RequestID)
		httpx.Fail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	refresh, _, err := h.tokens.Issue(auth.RefreshToken, user.ID, user.Role, user.Document)
	if err != nil {
		h.logger.Error("issue refresh token failed", "err", err, "request_id", entry.RequestID)
		httpx.Fail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := h.users.TouchLastLogin(ctx, user.ID, h.now()); err != nil {
		h.logger.Warn("update last login failed", "err", err, "user_id", user.ID)
	}
	h.record(ctx, audit.LoginSucceeded, entry)

	httpx.OK(w, http.StatusOK, "Login successful", map[string]any{
		"user": newUserView(user),
		"tokens": tokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresIn:    h.tokens.AccessTTL().String(),
			ExpiresAt:    expiresAt.UTC().Format(time.RFC3339),
		},
	})
}

func (h *AuthHandler) failLogin(ctx context.Context, key string, entry audit.Entry, reason string) {
	nowLocked, err := h.guard.Fail(ctx, key)
	if err != nil {
		h.logger.Warn("record failed login failed", "err", err, "request_id", entry.RequestID)
	}
	entry.Metadata = map[string]any{"reason": reason, "locked": nowLocked}
	h.record(ctx, audit.LoginFailed, entry)
}

func (h *AuthHandler) record(ctx context.Context, eventType string, entry audit.Entry) {
	if h.audit == nil {
		return
	}
	entry.EventType = eventType
	if err := h.audit.Record(ctx, entry); err != nil {
		h.logger.Warn("audit record failed", "err", err, "event_type", eventType, "request_id", entry.RequestID)
	}
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		httpx.Fail(w, http.StatusUnauthorized, "Refresh token required")
		return
	}
	claims, err := h.tokens.Verify(strings.TrimSpace(req.RefreshToken), auth.RefreshToken)
	if err != nil {
		httpx.Fail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	p, err := h.CheckUser(r.Context(), claims)
	if errors.Is(err, auth.ErrInactiveUser) {
		httpx.Fail(w, http.StatusUnauthorized, "User not found or inactive")
		return
	}
	if err != nil {
		h.logger.Error("load user failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.Fail(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	access, expiresAt, err := h.tokens.Issue(auth.AccessToken, p.UserID, p.Role, p.Document)
	if err != nil {
		h.logger.Error("issue access token failed", "err", err)
		httpx.Fail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	httpx.OK(w, http.StatusOK, "Token refreshed successfully", tokenPair{
		AccessToken: access,
		ExpiresIn:   h.tokens.AccessTTL().String(),
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout is an acknowledgment; tokens are stateless and expire on their own.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, http.StatusOK, "Logout successful", nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "Access token required")
		return
	}
	u, err := h.users.FindByID(r.Context(), p.UserID)
	if errors.Is(err, storage.ErrUserNotFound) || (err == nil && !u.Active) {
		httpx.Fail(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.logger.Error("load user failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.Fail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	httpx.OK(w, http.StatusOK, "", newUserView(u))
}
