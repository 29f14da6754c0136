package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2beens/cutroom-admin/internal/telemetry/tracing"
	"github.com/2beens/cutroom-admin/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	verifyEndpoint         = "/admin/auth/verify"
	loginEndpoint          = "/admin/auth/login"
	logoutEndpoint         = "/admin/auth/logout"
	changePasswordEndpoint = "/admin/auth/change-password"

	maxResponseBytes = 1 << 20

	loginFailureMessage          = "Login failed. Please try again."
	changePasswordFailureMessage = "Failed to change password. Please try again."
)

type LoginResult struct {
	Success     bool
	Message     string
	LockedUntil *time.Time
	Admin       *Admin
}

type ChangePasswordResult struct {
	Success bool
	Message string
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Admin   *Admin `json:"admin"`
}

type loginResponse struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	Token       string          `json:"token"`
	Admin       *Admin          `json:"admin"`
	LockedUntil json.RawMessage `json:"lockedUntil"`
}

type changePasswordResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Initialize resolves the startup state exactly once. Without a persisted
// token it settles on unauthenticated with no network call; otherwise it
// verifies the token once and fails closed on any error.
func (m *Manager) Initialize(ctx context.Context) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "session.initialize")
	defer span.End()

	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return ErrAlreadyInitialized
	}
	m.initialized = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
	}()

	token, err := m.store.Load(ctx)
	if err != nil {
		log.Errorf("session init: load persisted token: %s", err)
		token = ""
	}
	if token == "" {
		log.Debugln("session init: no persisted token")
		span.SetAttributes(attribute.String("session.status", StatusUnauthenticated.String()))
		return nil
	}

	m.mu.Lock()
	m.token = token
	m.status = StatusVerifying
	m.mu.Unlock()

	admin, verifyErr := m.verify(ctx, token)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != StatusVerifying || m.token != token {
		// something else (login, a rejected request) already moved the session on
		log.Debugf("session init: state changed while verifying, dropping result")
		return nil
	}

	if verifyErr != nil {
		log.Infof("session init: persisted token %s not accepted: %s", pkg.MaskToken(token), verifyErr)
		if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
			log.Errorf("session init: clear persisted token: %s", err)
		}
		m.resetLocked()
		span.SetAttributes(attribute.String("session.status", StatusUnauthenticated.String()))
		return nil
	}

	m.setAuthenticatedLocked(token, admin)
	log.Infof("session init: resumed session for admin [%s]", admin.Email)
	span.SetAttributes(attribute.String("session.status", StatusAuthenticated.String()))
	return nil
}

func (m *Manager) verify(ctx context.Context, token string) (*Admin, error) {
	req, err := m.newRequest(ctx, http.MethodGet, verifyEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var body verifyResponse
	if err := decodeBody(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if !body.Success {
		return nil, fmt.Errorf("verify unsuccessful: %s", body.Message)
	}
	if err := body.Admin.validate(); err != nil {
		return nil, fmt.Errorf("verify response: %w", err)
	}
	return body.Admin, nil
}

// Login never returns an error: every failure ends up in the result, and a
// failed login leaves the session untouched.
func (m *Manager) Login(ctx context.Context, email, password string) LoginResult {
	ctx, span := tracing.GlobalTracer.Start(ctx, "session.login")
	defer span.End()

	result := m.login(ctx, email, password)
	if result.Success {
		span.SetStatus(codes.Ok, "logged-in")
		m.countLoginAttempt("success")
	} else {
		span.SetStatus(codes.Error, result.Message)
		if result.LockedUntil != nil {
			m.countLoginAttempt("locked")
		} else {
			m.countLoginAttempt("failure")
		}
	}
	return result
}

func (m *Manager) login(ctx context.Context, email, password string) LoginResult {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{Message: "Email and password are required."}
	}

	req, err := m.newRequest(ctx, http.MethodPost, loginEndpoint, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		log.Errorf("login: build request: %s", err)
		return LoginResult{Message: loginFailureMessage}
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Warnf("login: request failed: %s", err)
		return LoginResult{Message: loginFailureMessage}
	}
	defer resp.Body.Close()

	// the backend explains failures in the body, whatever the status code
	var body loginResponse
	if err := decodeBody(resp.Body, &body); err != nil {
		log.Warnf("login: decode response [%d]: %s", resp.StatusCode, err)
		return LoginResult{Message: loginFailureMessage}
	}

	succeeded := resp.StatusCode >= 200 && resp.StatusCode <= 299 && body.Success
	if !succeeded {
		message := body.Message
		if message == "" {
			message = loginFailureMessage
		}
		log.Debugf("login for [%s] rejected [%d]: %s", email, resp.StatusCode, message)
		return LoginResult{
			Message:     message,
			LockedUntil: parseTimestamp(body.LockedUntil),
		}
	}

	if body.Token == "" {
		log.Errorf("login: backend reported success without a token")
		return LoginResult{Message: loginFailureMessage}
	}
	if err := body.Admin.validate(); err != nil {
		log.Errorf("login: backend reported success with bad admin: %s", err)
		return LoginResult{Message: loginFailureMessage}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(context.WithoutCancel(ctx), body.Token); err != nil {
		log.Errorf("login: persist token: %s", err)
		return LoginResult{Message: loginFailureMessage}
	}
	m.setAuthenticatedLocked(body.Token, body.Admin)
	log.Infof("admin [%s] logged in", body.Admin.Email)

	return LoginResult{
		Success: true,
		Admin:   body.Admin.clone(),
	}
}

func (m *Manager) countLoginAttempt(result string) {
	if m.metrics != nil {
		m.metrics.CounterLoginAttempts.WithLabelValues(result).Inc()
	}
}

// Logout tells the backend on a best-effort basis, then always clears the
// local session. It never fails.
func (m *Manager) Logout(ctx context.Context) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "session.logout")
	defer span.End()

	token, err := m.store.Load(ctx)
	if err != nil {
		log.Errorf("logout: load persisted token: %s", err)
	}
	if token == "" {
		m.mu.RLock()
		token = m.token
		m.mu.RUnlock()
	}

	if token != "" {
		if err := m.notifyLogout(ctx, token); err != nil {
			log.Debugf("logout: backend notification failed: %s", err)
			span.RecordError(err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		log.Errorf("logout: clear persisted token: %s", err)
	}
	m.resetLocked()
	log.Infoln("admin logged out")
}

func (m *Manager) notifyLogout(ctx context.Context, token string) error {
	req, err := m.newRequest(ctx, http.MethodPost, logoutEndpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// ChangePassword goes through the authorized client, so a rejected token
// still tears the session down. The backend result is passed through.
func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword string) ChangePasswordResult {
	ctx, span := tracing.GlobalTracer.Start(ctx, "session.changePassword")
	defer span.End()

	req, err := m.authorized.NewRequest(ctx, http.MethodPost, changePasswordEndpoint, map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	})
	if err != nil {
		log.Errorf("change password: build request: %s", err)
		return ChangePasswordResult{Message: changePasswordFailureMessage}
	}

	resp, err := m.authorized.Do(req)
	if err != nil {
		log.Warnf("change password: request failed: %s", err)
		span.SetStatus(codes.Error, err.Error())
		return ChangePasswordResult{Message: changePasswordFailureMessage}
	}
	defer resp.Body.Close()

	var body changePasswordResponse
	if err := decodeBody(resp.Body, &body); err != nil {
		log.Warnf("change password: decode response [%d]: %s", resp.StatusCode, err)
		return ChangePasswordResult{Message: changePasswordFailureMessage}
	}

	result := ChangePasswordResult{
		Success: body.Success && resp.StatusCode >= 200 && resp.StatusCode <= 299,
		Message: body.Message,
	}
	if !result.Success && result.Message == "" {
		result.Message = changePasswordFailureMessage
	}
	return result
}

func (m *Manager) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	return newJSONRequest(ctx, m.baseURL.JoinPath(path).String(), method, payload)
}

func newJSONRequest(ctx context.Context, target, method string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		body = bytes.NewReader(payloadBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", pkg.ContentType.JSON)
	if payload != nil {
		req.Header.Set("Content-Type", pkg.ContentType.JSON)
	}
	return req, nil
}

func decodeBody(body io.Reader, v any) error {
	if err := json.NewDecoder(io.LimitReader(body, maxResponseBytes)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty response body")
		}
		return err
	}
	return nil
}
