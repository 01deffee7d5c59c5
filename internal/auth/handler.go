package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/wellkorea/wellkorea-erp/internal/platform/httpx"
	"github.com/wellkorea/wellkorea-erp/internal/shared"
	"github.com/wellkorea/wellkorea-erp/internal/users"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	sessions *shared.SessionManager
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers auth routes on the provided router. Login is rate
// limited by IP to slow down credential stuffing.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(10, time.Minute)).Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, r, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, r, err)
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.Problem(w, r, httpx.ProblemDetail{
			Title:  "Authentication Failed",
			Status: http.StatusUnauthorized,
			Detail: "invalid email or password",
		})
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Internal(w, r)
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))

	detail, err := h.service.CurrentUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("load user after login", slog.Any("error", err))
		httpx.Internal(w, r)
		return
	}
	httpx.JSON(w, r, http.StatusOK, detail)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.service.Logout(r.Context(), shared.ActorID(r.Context()))
		h.sessions.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID := shared.ActorID(r.Context())
	if userID == 0 {
		httpx.Unauthorized(w, r)
		return
	}
	detail, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			httpx.Unauthorized(w, r)
			return
		}
		h.logger.Error("load current user", slog.Any("error", err))
		httpx.Internal(w, r)
		return
	}
	httpx.JSON(w, r, http.StatusOK, detail)
}
