package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/2beens/cutroom-admin/internal/telemetry/metrics"
	"github.com/2beens/cutroom-admin/internal/telemetry/tracing"
	"github.com/2beens/cutroom-admin/pkg"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultRequestTimeout = 20 * time.Second
	DefaultLoginPath      = "/login"
)

type Status int

const (
	StatusUnauthenticated Status = iota
	StatusVerifying
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusVerifying:
		return "verifying"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is a read-only snapshot of the session.
type State struct {
	Status Status
	Admin  *Admin
}

const (
	ExpiredReasonUnauthorized = "unauthorized"
	ExpiredReasonForbidden    = "forbidden"
	ExpiredReasonTokenMissing = "token-missing"
)

// ExpiredEvent is emitted when an authorized request tears the session down.
// The application shell is expected to navigate to RedirectTo.
type ExpiredEvent struct {
	Reason     string
	RedirectTo string
	At         time.Time
}

type NewManagerParams struct {
	BaseURL string
	Store   TokenStore
	// HTTPClient only donates its Transport; timeouts and auth are set here.
	HTTPClient        *http.Client
	RequestTimeout    time.Duration
	LoginPath         string
	ExpireOnForbidden bool
	Metrics           *metrics.Manager
}

// Manager owns the admin session: the bearer token, the admin identity and
// the status. It is the only component allowed to touch the TokenStore.
type Manager struct {
	baseURL           *url.URL
	store             TokenStore
	loginPath         string
	expireOnForbidden bool
	metrics           *metrics.Manager

	httpClient *http.Client // verify, login, logout: no interceptor
	authorized *Client

	mu          sync.RWMutex
	status      Status
	admin       *Admin
	token       string
	loading     bool
	initialized bool

	listenersMu    sync.Mutex
	listeners      map[int]func(ExpiredEvent)
	nextListenerID int
}

func NewManager(params NewManagerParams) (*Manager, error) {
	if params.Store == nil {
		return nil, errors.New("token store not set")
	}
	baseURL, err := url.Parse(params.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: [%s]", params.BaseURL)
	}

	timeout := params.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	loginPath := params.LoginPath
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}

	var baseTransport http.RoundTripper
	if params.HTTPClient != nil {
		baseTransport = params.HTTPClient.Transport
	}
	transport := tracing.NewTracedTransport(&instrumentedTransport{
		metrics: params.Metrics,
		next:    baseTransport,
	})

	m := &Manager{
		baseURL:           baseURL,
		store:             params.Store,
		loginPath:         loginPath,
		expireOnForbidden: params.ExpireOnForbidden,
		metrics:           params.Metrics,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		status:    StatusUnauthenticated,
		loading:   true,
		listeners: map[int]func(ExpiredEvent){},
	}
	m.authorized = &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &authTransport{manager: m, next: transport},
			Timeout:   timeout,
		},
	}

	return m, nil
}

// AuthorizedClient returns the only sanctioned way to reach the admin api.
func (m *Manager) AuthorizedClient() *Client {
	return m.authorized
}

func (m *Manager) LoginPath() string {
	return m.loginPath
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{
		Status: m.status,
		Admin:  m.admin.clone(),
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Admin returns a copy of the current admin identity, nil when not authenticated.
func (m *Manager) Admin() *Admin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admin.clone()
}

func (m *Manager) IsAuthenticated() bool {
	return m.Status() == StatusAuthenticated
}

func (m *Manager) IsSuperAdmin() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admin != nil && m.admin.Role == RoleSuperAdmin
}

// Loading is true until Initialize has resolved the startup state.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// TokenExpiry reads the exp claim when the token happens to be a JWT. The
// signature is not checked, so the value is for display only.
func (m *Manager) TokenExpiry() (time.Time, bool) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()
	if token == "" {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// OnSessionExpired registers fn to be called after an authorized request
// tore the session down. Listeners run synchronously, outside the session lock.
func (m *Manager) OnSessionExpired(fn func(ExpiredEvent)) (unsubscribe func()) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	id := m.nextListenerID
	m.nextListenerID++
	m.listeners[id] = fn

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) emitExpired(event ExpiredEvent) {
	m.listenersMu.Lock()
	listeners := make([]func(ExpiredEvent), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// expire tears the session down after tokenUsed was rejected. A rejection of
// a token that is no longer the persisted one is stale and ignored, so a
// late 401 cannot log out a newer session. Teardown is idempotent: of many
// concurrent rejections only the first one emits an event.
func (m *Manager) expire(ctx context.Context, tokenUsed, reason string) {
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	current, err := m.store.Load(ctx)
	if err != nil {
		log.Errorf("session expire: load persisted token: %s", err)
		current = tokenUsed
	}
	if current != "" && current != tokenUsed {
		m.mu.Unlock()
		log.Debugf("session expire: ignoring stale rejection for token %s", pkg.MaskToken(tokenUsed))
		return
	}
	if current != "" {
		if err := m.store.Clear(ctx); err != nil {
			log.Errorf("session expire: clear persisted token: %s", err)
		}
	}
	wasAuthenticated := m.status == StatusAuthenticated
	m.resetLocked()
	m.mu.Unlock()

	if !wasAuthenticated {
		return
	}

	log.Warnf("session expired [%s], redirecting to %s", reason, m.loginPath)
	if m.metrics != nil {
		m.metrics.CounterSessionExpirations.WithLabelValues(reason).Inc()
	}
	m.emitExpired(ExpiredEvent{
		Reason:     reason,
		RedirectTo: m.loginPath,
		At:         time.Now(),
	})
}

func (m *Manager) setAuthenticatedLocked(token string, admin *Admin) {
	m.token = token
	m.admin = admin.clone()
	m.status = StatusAuthenticated
	if m.metrics != nil {
		m.metrics.GaugeAuthenticated.Set(1)
	}
}

func (m *Manager) resetLocked() {
	m.token = ""
	m.admin = nil
	m.status = StatusUnauthenticated
	if m.metrics != nil {
		m.metrics.GaugeAuthenticated.Set(0)
	}
}
