package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/marketdesk/marketdesk/internal/authz"
	"github.com/marketdesk/marketdesk/internal/platform/httpx"
	"github.com/marketdesk/marketdesk/internal/rbac"
	"github.com/marketdesk/marketdesk/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	tokens         *TokenIssuer
	rbac           rbac.Middleware
	validator      *validator.Validate
	signinLimit    func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, tokens *TokenIssuer, rbac rbac.Middleware) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		tokens:         tokens,
		rbac:           rbac,
		validator:      validator.New(),
	}
}

// WithSignInLimiter throttles the credential endpoints.
func (h *Handler) WithSignInLimiter(mw func(http.Handler) http.Handler) *Handler {
	h.signinLimit = mw
	return h
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/auth/signin", h.showSignIn)
	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/csrf", h.issueCSRF)
		r.Post("/signout", h.handleSignOut)
		r.Group(func(r chi.Router) {
			if h.signinLimit != nil {
				r.Use(h.signinLimit)
			}
			r.Post("/signin", h.handleSignIn)
			r.Post("/token", h.handleToken)
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAPI(shared.Capabilities().MustLookup(shared.CapSessionView), rbac.Platform()))
		r.Get("/api/me", h.showMe)
	})
}

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type signInPage struct {
	SignIn string               `json:"signin"`
	CSRF   string               `json:"csrf"`
	Token  string               `json:"token"`
	Flash  *shared.FlashMessage `json:"flash,omitempty"`
}

type signInResult struct {
	UserID  int64  `json:"user_id"`
	Role    string `json:"role"`
	Landing string `json:"landing"`
}

type tokenResult struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type meResult struct {
	ID      string   `json:"id"`
	Role    string   `json:"role"`
	Stores  []string `json:"stores"`
	Landing string   `json:"landing"`
}

func (h *Handler) showSignIn(w http.ResponseWriter, r *http.Request) {
	page := signInPage{SignIn: "/api/auth/signin", CSRF: "/api/auth/csrf", Token: "/api/auth/token"}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		page.Flash = sess.PopFlash()
	}
	httpx.OK(w, http.StatusOK, page)
}

func (h *Handler) issueCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.Error("issue csrf token", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	httpx.OK(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var form credentials
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return form, false
	}
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			httpx.Fail(w, http.StatusBadRequest, fieldErrs[0].Field()+" is invalid")
			return form, false
		}
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return form, false
	}
	return form, true
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during signin")
		httpx.Fail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	form, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}
	user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		httpx.Fail(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	h.sessionManager.Renew(sess)
	h.csrfManager.Rotate(sess)
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	rec := SessionRecord{
		ID:        sess.ID,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(h.sessionManager.TTL()),
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if err := h.service.RegisterSession(r.Context(), rec); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	result := signInResult{UserID: user.ID, Landing: "/"}
	if role, err := authz.Normalize(user.Role); err == nil {
		result.Role = role.String()
		result.Landing = authz.LandingFor(role)
	} else {
		h.logger.Warn("signed-in user has no catalog role", slog.Int64("user_id", user.ID), slog.String("role", user.Role))
	}
	httpx.OK(w, http.StatusOK, result)
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}
	user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		httpx.Fail(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	token, expires, err := h.tokens.Issue(user.ID)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.Fail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	httpx.OK(w, http.StatusOK, tokenResult{Token: token, TokenType: "Bearer", ExpiresAt: expires.UTC()})
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.OK(w, http.StatusOK, nil)
}

func (h *Handler) showMe(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	role, _ := p.CanonicalRole()
	httpx.OK(w, http.StatusOK, meResult{ID: p.ID, Role: role.String(), Stores: p.TenantIDs(), Landing: authz.LandingFor(role)})
}
