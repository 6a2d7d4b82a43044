package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var ErrScopeMismatch = errors.New("oauth scope mismatch")

var (
	refreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solarcloud_oauth_refresh_total",
		Help: "Token refreshes by outcome (ok, error, persist_error)",
	}, []string{"provider", "outcome"})
	tokenExpiry = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solarcloud_oauth_token_expiry_timestamp_seconds",
		Help: "Expiry of the cached access token; 0 when none is usable",
	}, []string{"provider"})
	mirrorOK = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solarcloud_oauth_state_mirror_ok",
		Help: "Whether the last blob mirror of OAuth state succeeded",
	}, []string{"provider"})
	scopeRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solarcloud_oauth_scope_rejected_total",
		Help: "Stored state rejected because its scope differs from the declaration",
	}, []string{"provider"})
)

// MetricsCollectors returns the OAuth collectors shared by every manager.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{refreshTotal, tokenExpiry, mirrorOK, scopeRejected}
}

func expirySeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.Unix())
}

// expiryLeeway is how long before expiry a cached access token stops being served.
const expiryLeeway = 30 * time.Second

// Refresher trades a refresh token for a new token set. Providers whose token
// endpoint is not RFC 6749 compliant supply their own.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// ConfigRefresher refreshes through a standard oauth2.Config.
type ConfigRefresher struct {
	Config     *oauth2.Config
	HTTPClient *http.Client
}

func (r ConfigRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}
	token, err := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			body := strings.TrimSpace(string(retrieveErr.Body))
			return nil, fmt.Errorf("token refresh failed %d: %s", retrieveErr.Response.StatusCode, body)
		}
		return nil, err
	}
	return token, nil
}

// Manager keeps a provider's refresh token, caches access tokens and mirrors state
// to disk and blob storage. It implements oauth2.TokenSource.
type Manager struct {
	decl      Declaration
	blobStore BlobStore
	refresher Refresher
	logger    *zap.SugaredLogger

	// refreshMu serializes refreshes; providers rotate refresh tokens, so two
	// concurrent refreshes would invalidate each other.
	refreshMu sync.Mutex

	mu           sync.Mutex
	accessToken  string
	tokenType    string
	expiresAt    time.Time
	refreshToken string
	scope        string
	clientID     string
	clientSecret string
}

var _ oauth2.TokenSource = (*Manager)(nil)

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithRefresher replaces the standard oauth2 refresh.
func WithRefresher(r Refresher) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.refresher = r
		}
	}
}

func WithLogger(logger *zap.SugaredLogger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(decl Declaration, bootstrapPath string, blobStore BlobStore, opts ...ManagerOption) (*Manager, error) {
	if bootstrapPath == "" {
		return nil, fmt.Errorf("bootstrap path is required")
	}
	bootstrap, err := LoadBootstrap(bootstrapPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return NewManagerFromBootstrap(decl, bootstrap, blobStore, opts...)
}

// NewManagerFromBootstrap creates an OAuth manager from an inline Bootstrap (no file needed).
func NewManagerFromBootstrap(decl Declaration, bootstrap Bootstrap, blobStore BlobStore, opts ...ManagerOption) (*Manager, error) {
	if err := decl.Validate(); err != nil {
		return nil, err
	}
	if blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if err := bootstrap.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	m := &Manager{
		decl:         decl,
		blobStore:    blobStore,
		logger:       zap.NewNop().Sugar(),
		clientID:     bootstrap.ClientID,
		clientSecret: bootstrap.ClientSecret,
		refresher: ConfigRefresher{
			Config:     decl.OAuth2Config(bootstrap.ClientID, bootstrap.ClientSecret, ""),
			HTTPClient: &http.Client{Timeout: 15 * time.Second},
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	state, err := m.loadInitialState(bootstrap)
	if err != nil {
		return nil, err
	}

	m.refreshToken = state.RefreshToken
	m.scope = state.Scope
	if state.AccessToken != "" && time.Until(state.Expiry) > expiryLeeway {
		m.accessToken = state.AccessToken
		m.tokenType = state.TokenType
		m.expiresAt = state.Expiry
		tokenExpiry.WithLabelValues(decl.Provider).Set(expirySeconds(state.Expiry))
	}

	return m, nil
}

// StartWithInterval refreshes now if needed and then on every tick until ctx ends.
func (m *Manager) StartWithInterval(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	threshold := interval
	if threshold < expiryLeeway {
		threshold = expiryLeeway
	}
	m.refreshIfNeeded(ctx, threshold)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refreshIfNeeded(ctx, threshold)
			}
		}
	}()
}

// Token returns a valid access token, refreshing synchronously when the cached one
// is missing or about to expire.
func (m *Manager) Token() (*oauth2.Token, error) {
	return m.TokenContext(context.Background())
}

func (m *Manager) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	if token, ok := m.cachedToken(expiryLeeway); ok {
		return token, nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	if token, ok := m.cachedToken(expiryLeeway); ok {
		return token, nil
	}
	if err := m.refresh(ctx); err != nil {
		return nil, err
	}
	token, ok := m.cachedToken(0)
	if !ok {
		return nil, fmt.Errorf("%s: refreshed token already expired", m.decl.Provider)
	}
	return token, nil
}

// AccessToken returns the cached access token without refreshing.
func (m *Manager) AccessToken(_ context.Context) (string, error) {
	if token, ok := m.cachedToken(expiryLeeway); ok {
		return token.AccessToken, nil
	}
	tokenExpiry.WithLabelValues(m.decl.Provider).Set(0)
	return "", fmt.Errorf("oauth token unavailable")
}

func (m *Manager) cachedToken(leeway time.Duration) (*oauth2.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accessToken == "" {
		return nil, false
	}
	if !m.expiresAt.IsZero() && time.Until(m.expiresAt) <= leeway {
		return nil, false
	}
	return &oauth2.Token{
		AccessToken:  m.accessToken,
		TokenType:    m.tokenType,
		RefreshToken: m.refreshToken,
		Expiry:       m.expiresAt,
	}, true
}

func (m *Manager) refreshIfNeeded(ctx context.Context, threshold time.Duration) {
	if _, ok := m.cachedToken(threshold); ok {
		return
	}
	if !m.refreshMu.TryLock() {
		return
	}
	defer m.refreshMu.Unlock()

	if err := m.refresh(ctx); err != nil {
		m.logger.Warnw("oauth refresh failed", "provider", m.decl.Provider, "error", err)
	}
}

// refresh must be called with refreshMu held.
func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	refreshToken := m.refreshToken
	m.mu.Unlock()

	token, err := m.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		refreshTotal.WithLabelValues(m.decl.Provider, "error").Inc()
		tokenExpiry.WithLabelValues(m.decl.Provider).Set(0)
		return err
	}

	m.mu.Lock()
	m.accessToken = token.AccessToken
	m.tokenType = token.TokenType
	m.expiresAt = token.Expiry
	if token.RefreshToken != "" {
		m.refreshToken = token.RefreshToken
	}
	state := State{
		SchemaVersion: SchemaVersion,
		ClientID:      m.clientID,
		ClientSecret:  m.clientSecret,
		RefreshToken:  m.refreshToken,
		Scope:         m.scope,
		AccessToken:   m.accessToken,
		TokenType:     m.tokenType,
		Expiry:        m.expiresAt,
	}
	m.mu.Unlock()

	if err := WriteState(m.decl.StatePath, state); err != nil {
		refreshTotal.WithLabelValues(m.decl.Provider, "persist_error").Inc()
		return fmt.Errorf("persist state: %w", err)
	}
	refreshTotal.WithLabelValues(m.decl.Provider, "ok").Inc()
	tokenExpiry.WithLabelValues(m.decl.Provider).Set(expirySeconds(state.Expiry))
	m.recordBlobPersist(m.persistBlob(ctx, state))
	m.logger.Debugw("oauth token refreshed", "provider", m.decl.Provider, "expiry", m.expiresAt)
	return nil
}

func (m *Manager) loadInitialState(bootstrap Bootstrap) (State, error) {
	ctx := context.Background()

	local, localErr := LoadState(m.decl.StatePath)
	if localErr == nil {
		if err := checkStateFile(m.decl.StatePath); err != nil {
			return State{}, err
		}
		if err := m.checkScope(&local); err != nil {
			return State{}, err
		}
		local.ClientID = bootstrap.ClientID
		local.ClientSecret = bootstrap.ClientSecret
		m.recordBlobPersist(m.persistBlob(ctx, local))
		return local, nil
	}

	blob, blobErr := m.loadFromBlob(ctx)
	if blobErr == nil {
		blob.ClientID = bootstrap.ClientID
		blob.ClientSecret = bootstrap.ClientSecret
		if err := m.checkScope(&blob); err != nil {
			return State{}, err
		}
		if err := WriteState(m.decl.StatePath, blob); err != nil {
			return State{}, err
		}
		return blob, nil
	}

	if !errors.Is(blobErr, ErrBlobNotFound) {
		if !errors.Is(localErr, ErrStateNotFound) {
			return State{}, localErr
		}
		return State{}, blobErr
	}

	if bootstrap.RefreshToken == "" {
		return State{}, fmt.Errorf("bootstrap missing refresh_token; run solarcloud oauth auth-code")
	}

	state := State{
		SchemaVersion: SchemaVersion,
		ClientID:      bootstrap.ClientID,
		ClientSecret:  bootstrap.ClientSecret,
		RefreshToken:  bootstrap.RefreshToken,
		Scope:         bootstrap.Scope,
	}
	if err := m.checkScope(&state); err != nil {
		return State{}, err
	}
	if err := WriteState(m.decl.StatePath, state); err != nil {
		return State{}, err
	}
	m.recordBlobPersist(m.persistBlob(ctx, state))
	return state, nil
}

// checkScope fills an empty scope from the declaration and rejects state granted
// for a different scope.
func (m *Manager) checkScope(state *State) error {
	if state.Scope == "" {
		state.Scope = m.decl.Scope
	}
	if state.Scope != m.decl.Scope {
		scopeRejected.WithLabelValues(m.decl.Provider).Inc()
		return ErrScopeMismatch
	}
	return nil
}

func (m *Manager) loadFromBlob(ctx context.Context) (State, error) {
	data, err := m.blobStore.Load(ctx, m.decl.Provider)
	if err != nil {
		return State{}, err
	}
	return DecodeState(data)
}

func (m *Manager) persistBlob(ctx context.Context, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return m.blobStore.Save(ctx, m.decl.Provider, data)
}

func (m *Manager) recordBlobPersist(err error) {
	if err != nil {
		mirrorOK.WithLabelValues(m.decl.Provider).Set(0)
		m.logger.Warnw("oauth state blob persist failed", "provider", m.decl.Provider, "error", err)
		return
	}
	mirrorOK.WithLabelValues(m.decl.Provider).Set(1)
}

func checkStateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0o600 {
		return fmt.Errorf("state file %s must have 0600 permissions", path)
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != os.Geteuid() {
			return fmt.Errorf("state file %s must be owned by uid %d", path, os.Geteuid())
		}
	}
	return nil
}

// statePathValid reports whether a declaration's state path can be used.
func statePathValid(path string) bool {
	return path != "" && filepath.IsAbs(path)
}
