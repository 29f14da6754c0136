package fakeapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/2beens/cutroom-admin/internal/middleware"
	"github.com/2beens/cutroom-admin/internal/telemetry/metrics"
	"github.com/2beens/cutroom-admin/internal/telemetry/tracing"
	"github.com/2beens/cutroom-admin/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type AuthHandler struct {
	accounts *AccountStore
	tokens   *TokenIssuer
}

func NewAuthHandler(accounts *AccountStore, tokens *TokenIssuer) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		tokens:   tokens,
	}
}

// SetupRoutes registers the four auth endpoints. Login is public and, with a
// rateLimiter, limited to loginLimitPerMin requests per client; the rest
// require a bearer token.
func (handler *AuthHandler) SetupRoutes(
	mainRouter *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	loginLimitPerMin int,
	metricsManager *metrics.Manager,
) {
	var loginHandler http.Handler = http.HandlerFunc(handler.handleLogin)
	if rateLimiter != nil && loginLimitPerMin > 0 {
		loginHandler = middleware.RateLimit(rateLimiter, "login", loginLimitPerMin, metricsManager)(loginHandler)
	}
	mainRouter.Handle("/admin/auth/login", loginHandler).Methods("POST").Name("login")

	authRouter := mainRouter.PathPrefix("/admin/auth").Subrouter()
	authRouter.HandleFunc("/verify", handler.handleVerify).Methods("GET").Name("verify")
	authRouter.HandleFunc("/logout", handler.handleLogout).Methods("POST").Name("logout")
	authRouter.HandleFunc("/change-password", handler.handleChangePassword).Methods("POST").Name("change-password")
	authRouter.Use(middleware.BearerAuth(handler.tokens))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message,omitempty"`
	Token       string     `json:"token,omitempty"`
	Admin       *AdminView `json:"admin,omitempty"`
	LockedUntil string     `json:"lockedUntil,omitempty"`
}

func (handler *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.login")
	defer span.End()

	var loginReq loginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		log.Debugf("login, unmarshal json params: %s", err)
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(loginReq.Email) == "" || loginReq.Password == "" {
		writeFailure(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	span.SetAttributes(attribute.String("login.email", loginReq.Email))

	admin, err := handler.accounts.Authenticate(loginReq.Email, loginReq.Password)
	if err != nil {
		var lockedErr *LockedError
		if errors.As(err, &lockedErr) {
			log.Warnf("login for [%s] refused, account locked until %s", loginReq.Email, lockedErr.Until)
			span.SetStatus(codes.Error, "account-locked")
			pkg.WriteJSONResponse(w, http.StatusLocked, loginResponse{
				Message:     "Too many failed attempts. Account is temporarily locked.",
				LockedUntil: lockedErr.Until.UTC().Format(time.RFC3339),
			})
			return
		}
		log.Tracef("failed login attempt for [%s]", loginReq.Email)
		span.SetStatus(codes.Error, "invalid-credentials")
		writeFailure(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, _, err := handler.tokens.Issue(admin.ID, admin.Role)
	if err != nil {
		log.Errorf("login failed, issue token: %s", err)
		span.RecordError(err)
		writeFailure(w, http.StatusInternalServerError, "Login failed")
		return
	}

	log.Debugf("login for [%s] success", admin.Email)
	span.SetStatus(codes.Ok, "logged-in")
	pkg.WriteJSONResponseOK(w, loginResponse{
		Success: true,
		Token:   token,
		Admin:   &admin,
	})
}

func (handler *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	admin, ok := handler.currentAdmin(r)
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	pkg.WriteJSONResponseOK(w, map[string]any{
		"success": true,
		"admin":   admin,
	})
}

func (handler *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if err := handler.tokens.Revoke(token); err != nil {
		log.Tracef("logout, revoke token: %s", err)
		writeFailure(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	pkg.WriteJSONResponseOK(w, map[string]any{
		"success": true,
		"message": "Logged out",
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (handler *AuthHandler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "authHandler.changePassword")
	defer span.End()

	admin, ok := handler.currentAdmin(r)
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeFailure(w, http.StatusBadRequest, "Current and new password are required")
		return
	}

	err := handler.accounts.ChangePassword(admin.ID, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
		log.Infof("password changed for [%s]", admin.Email)
		pkg.WriteJSONResponseOK(w, map[string]any{
			"success": true,
			"message": "Password changed successfully",
		})
	case errors.Is(err, ErrInvalidCredentials):
		// 400, not 401: the token is fine, the old password is not
		writeFailure(w, http.StatusBadRequest, "Current password is incorrect")
	case errors.Is(err, ErrWeakPassword):
		writeFailure(w, http.StatusBadRequest, "New password must be at least 8 characters")
	default:
		log.Errorf("change password for [%s]: %s", admin.Email, err)
		span.RecordError(err)
		writeFailure(w, http.StatusInternalServerError, "Failed to change password")
	}
}

func (handler *AuthHandler) currentAdmin(r *http.Request) (AdminView, bool) {
	subject, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		return AdminView{}, false
	}
	return handler.accounts.Get(subject)
}

func writeFailure(w http.ResponseWriter, statusCode int, message string) {
	pkg.WriteJSONResponse(w, statusCode, map[string]any{
		"success": false,
		"message": message,
	})
}
