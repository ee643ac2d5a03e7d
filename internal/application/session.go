package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/bnema/steam-accounts-cli/internal/ports"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultLoginTimeout   = 30 * time.Second
	DefaultSettleDelay    = 2 * time.Second
	DefaultRescanInterval = 5 * time.Minute
	DefaultActivityAppID  = uint32(730)

	presenceCallTimeout = 10 * time.Second
)

var (
	errExpiredCredential = errors.New("cached credential expired")
	errLoggedOff         = errors.New("logged off")
)

type SessionConfig struct {
	Credentials    domain.Credentials
	DataDir        string
	LoginTimeout   time.Duration
	SettleDelay    time.Duration
	RescanInterval time.Duration
	ActivityAppID  uint32
}

func (c *SessionConfig) applyDefaults() {
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = DefaultLoginTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.RescanInterval <= 0 {
		c.RescanInterval = DefaultRescanInterval
	}
	if c.ActivityAppID == 0 {
		c.ActivityAppID = DefaultActivityAppID
	}
}

type sessionHooks struct {
	// ready runs after the session is established and before it is marked
	// ready.
	ready func()
	// lost runs after the session leaves an established state.
	lost func()
}

type loginAttempt struct {
	id            string
	explicitCode  string
	passwordOnly  bool
	guardAnswered bool
	result        chan error
}

// SessionManager owns the disconnected -> authenticating -> connected -> ready
// lifecycle of the single platform session.
type SessionManager struct {
	client ports.PlatformClient
	codes  ports.GuardCodeProvider
	cfg    SessionConfig
	hooks  sessionHooks
	logger logrus.FieldLogger

	loginMu sync.Mutex

	mu          sync.Mutex
	state       domain.ConnectionState
	attempt     *loginAttempt
	settleTimer *time.Timer
	// resumable is set once the session has been ready and cleared by a
	// failed attempt or Logout. Only a resumable session accepts a
	// logged-on event without a login attempt in flight.
	resumable bool
}

func NewSessionManager(client ports.PlatformClient, codes ports.GuardCodeProvider, cfg SessionConfig, logger logrus.FieldLogger) *SessionManager {
	return newSessionManager(client, codes, cfg, logger, sessionHooks{})
}

func newSessionManager(client ports.PlatformClient, codes ports.GuardCodeProvider, cfg SessionConfig, logger logrus.FieldLogger, hooks sessionHooks) *SessionManager {
	cfg.applyDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &SessionManager{
		client: client,
		codes:  codes,
		cfg:    cfg,
		hooks:  hooks,
		logger: logger.WithFields(logrus.Fields{
			"component": "session",
			"account":   cfg.Credentials.AccountName,
		}),
		state: domain.StateDisconnected,
	}
}

func (m *SessionManager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *SessionManager) Connected() bool {
	return m.State().Established()
}

func (m *SessionManager) Ready() bool {
	return m.State() == domain.StateReady
}

// Login authenticates the session. A second caller while an attempt is in
// flight gets ErrLoginInProgress; a caller on an established session gets nil.
func (m *SessionManager) Login(ctx context.Context, explicitCode string) error {
	if !m.loginMu.TryLock() {
		return domain.ErrLoginInProgress
	}
	defer m.loginMu.Unlock()

	if m.Connected() {
		return nil
	}

	err := m.attemptLogin(ctx, explicitCode, false)
	if errors.Is(err, errExpiredCredential) {
		m.logger.Warn("Cached credential expired, retrying with password logon")
		err = m.attemptLogin(ctx, "", true)
	}

	return err
}

func (m *SessionManager) attemptLogin(ctx context.Context, explicitCode string, passwordOnly bool) error {
	details := domain.LogOnDetails{
		AccountName: m.cfg.Credentials.AccountName,
		Password:    m.cfg.Credentials.Password,
		DataDir:     m.cfg.DataDir,
	}
	if !passwordOnly {
		code, err := m.resolveCode(explicitCode)
		if err != nil {
			return err
		}
		details.TwoFactorCode = code
	}

	attempt := &loginAttempt{
		id:           uuid.NewString(),
		explicitCode: explicitCode,
		passwordOnly: passwordOnly,
		result:       make(chan error, 1),
	}

	m.mu.Lock()
	m.state = domain.StateAuthenticating
	m.attempt = attempt
	m.mu.Unlock()

	logger := m.logger.WithFields(logrus.Fields{
		"attempt":       attempt.id,
		"password_only": passwordOnly,
		"second_factor": details.TwoFactorCode != "",
	})
	logger.Info("Logging on")

	timer := time.NewTimer(m.cfg.LoginTimeout)
	defer timer.Stop()

	// The logon call runs under the attempt's deadline; a bridge that never
	// answers is released when the attempt resolves.
	logOnCtx, cancelLogOn := context.WithCancel(ctx)
	defer cancelLogOn()
	go func() {
		if err := m.client.LogOn(logOnCtx, details); err != nil && logOnCtx.Err() == nil {
			m.failAttempt(attempt, &domain.LoginFailedError{Cause: err})
		}
	}()

	select {
	case err := <-attempt.result:
		return m.logOutcome(logger, err)
	case <-timer.C:
		m.failAttempt(attempt, domain.ErrLoginTimeout)
	case <-ctx.Done():
		m.failAttempt(attempt, ctx.Err())
	}

	// Whichever outcome claimed the attempt first is delivered here.
	return m.logOutcome(logger, <-attempt.result)
}

func (m *SessionManager) logOutcome(logger logrus.FieldLogger, err error) error {
	switch {
	case err == nil:
		logger.Info("Logged on")
	case errors.Is(err, errExpiredCredential):
		logger.WithError(err).Debug("Logon rejected cached credential")
	default:
		logger.WithError(err).Error("Logon failed")
	}
	return err
}

// resolveCode picks the second factor for the initial logon: the explicit
// code, else one derived from the shared secret, else none.
func (m *SessionManager) resolveCode(explicitCode string) (string, error) {
	if explicitCode != "" {
		return explicitCode, nil
	}
	if !m.cfg.Credentials.HasSharedSecret() {
		return "", nil
	}

	code, err := m.codes.GenerateCode(m.cfg.Credentials.SharedSecret)
	if err != nil {
		var authErr *domain.AuthCodeError
		if errors.As(err, &authErr) {
			return "", err
		}
		return "", &domain.AuthCodeError{Err: err}
	}

	return code, nil
}

// failAttempt resolves attempt with err unless another outcome already did.
func (m *SessionManager) failAttempt(attempt *loginAttempt, err error) bool {
	m.mu.Lock()
	if m.attempt != attempt {
		m.mu.Unlock()
		return false
	}
	m.attempt = nil
	m.state = domain.StateDisconnected
	m.resumable = false
	m.mu.Unlock()

	attempt.result <- err
	return true
}

func (m *SessionManager) handleLoggedOn() {
	m.mu.Lock()
	attempt := m.attempt
	if attempt == nil && (m.state.Established() || !m.resumable) {
		m.mu.Unlock()
		m.logger.Debug("Ignoring logged-on event without a login attempt")
		return
	}
	m.attempt = nil
	m.state = domain.StateConnected
	m.mu.Unlock()

	if attempt == nil {
		m.logger.Info("Session re-established by platform client")
	}

	if m.hooks.ready != nil {
		m.hooks.ready()
	}

	m.mu.Lock()
	if m.state != domain.StateConnected {
		// A fatal error arrived while reconciling.
		m.mu.Unlock()
		if attempt != nil {
			attempt.result <- &domain.LoginFailedError{Cause: domain.ErrNotConnected}
		}
		return
	}
	m.state = domain.StateReady
	m.resumable = true
	m.stopSettleTimerLocked()
	m.settleTimer = time.AfterFunc(m.cfg.SettleDelay, m.announcePresence)
	m.mu.Unlock()

	if attempt != nil {
		attempt.result <- nil
	}
}

func (m *SessionManager) handleError(platformErr *domain.PlatformError) {
	if platformErr == nil {
		return
	}

	m.mu.Lock()
	attempt := m.attempt
	m.mu.Unlock()

	if attempt != nil {
		if platformErr.ExpiredCredential() && !attempt.passwordOnly {
			m.failAttempt(attempt, fmt.Errorf("%w: %w", errExpiredCredential, platformErr))
			return
		}
		m.failAttempt(attempt, &domain.LoginFailedError{Cause: platformErr})
		return
	}

	m.mu.Lock()
	wasEstablished := m.state.Established()
	m.state = domain.StateDisconnected
	m.stopSettleTimerLocked()
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"code":  platformErr.Code,
		"error": platformErr.Message,
	}).Error("Platform session error")

	if wasEstablished && m.hooks.lost != nil {
		m.hooks.lost()
	}
}

func (m *SessionManager) handleGuardRequested(respond ports.GuardResponder) {
	m.mu.Lock()
	attempt := m.attempt
	if attempt == nil {
		m.mu.Unlock()
		m.logger.Debug("Ignoring guard code request outside of a login attempt")
		return
	}
	answered := attempt.guardAnswered
	attempt.guardAnswered = true
	m.mu.Unlock()

	if answered {
		// The previous answer was rejected.
		m.failAttempt(attempt, domain.ErrGuardCodeRequired)
		return
	}

	code, err := m.resolveCode(attempt.explicitCode)
	if err == nil && code == "" {
		err = domain.ErrGuardCodeRequired
	}
	if err != nil {
		m.failAttempt(attempt, err)
		return
	}

	m.logger.WithField("attempt", attempt.id).Info("Answering guard code request")
	respond(code)
}

func (m *SessionManager) announcePresence() {
	if !m.Ready() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), presenceCallTimeout)
	defer cancel()

	if err := m.client.SetPresence(ctx, domain.PresenceOnline); err != nil {
		m.logger.WithError(err).Warn("Failed to set presence")
	}
	if err := m.client.DeclareActivity(ctx, m.cfg.ActivityAppID); err != nil {
		m.logger.WithError(err).WithField("app_id", m.cfg.ActivityAppID).Warn("Failed to declare activity")
	}
}

// Logout ends the session. An in-flight login attempt fails.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	attempt := m.attempt
	wasEstablished := m.state.Established()
	m.stopSettleTimerLocked()
	m.mu.Unlock()

	if attempt != nil {
		m.failAttempt(attempt, &domain.LoginFailedError{Cause: errLoggedOff})
	}

	m.mu.Lock()
	m.state = domain.StateDisconnected
	m.resumable = false
	m.mu.Unlock()

	if wasEstablished && m.hooks.lost != nil {
		m.hooks.lost()
	}

	if err := m.client.LogOff(ctx); err != nil {
		return fmt.Errorf("log off: %w", err)
	}

	m.logger.Info("Logged off")
	return nil
}

func (m *SessionManager) stopSettleTimerLocked() {
	if m.settleTimer != nil {
		m.settleTimer.Stop()
		m.settleTimer = nil
	}
}
