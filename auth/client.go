package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/session"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SignOutScope selects which sessions SignOut terminates.
type SignOutScope string

const (
	// ScopeLocal clears this device only. No network call is made.
	ScopeLocal SignOutScope = "local"
	// ScopeGlobal revokes every session of the user, including this one.
	ScopeGlobal SignOutScope = "global"
	// ScopeOthers revokes every session except this one.
	ScopeOthers SignOutScope = "others"
)

// Config configures a [Client].
type Config struct {
	URL     string
	AnonKey string

	HTTPClient *http.Client
	Store      session.Store
	Tokens     *jwt.Manager
	Logger     logrus.FieldLogger

	LockAcquireTimeout time.Duration
	ExpiryMargin       time.Duration
	AutoRefreshTick    time.Duration
	Retry              RetryConfig

	Now   func() time.Time
	Sleep func(context.Context, time.Duration) error
}

// DefaultConfig returns a Config with the client defaults and an in-memory store.
func DefaultConfig() Config {
	return Config{
		LockAcquireTimeout: 5 * time.Second,
		ExpiryMargin:       90 * time.Second,
		AutoRefreshTick:    30 * time.Second,
		Retry:              DefaultRetryConfig(),
	}
}

// Client talks to the auth backend and owns the persisted session.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	store      session.Store
	tokens     *jwt.Manager
	log        logrus.FieldLogger

	lock         *storageLock
	events       *eventHub
	expiryMargin time.Duration
	tick         time.Duration
	retry        RetryConfig
	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
}

// New builds a Client. An empty URL or key yields an unconfigured client:
// Configured reports false and network operations fail with ErrNotConfigured.
func New(cfg Config) (*Client, error) {
	def := DefaultConfig()
	if cfg.LockAcquireTimeout == 0 {
		cfg.LockAcquireTimeout = def.LockAcquireTimeout
	}
	if cfg.ExpiryMargin == 0 {
		cfg.ExpiryMargin = def.ExpiryMargin
	}
	if cfg.AutoRefreshTick == 0 {
		cfg.AutoRefreshTick = def.AutoRefreshTick
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = def.Retry
	}
	if cfg.LockAcquireTimeout < 0 || cfg.ExpiryMargin < 0 || cfg.AutoRefreshTick < 0 {
		return nil, errors.New("auth: durations must not be negative")
	}
	if cfg.Retry.MaxRetries < 0 || cfg.Retry.InitialBackoff < 0 {
		return nil, errors.New("auth: invalid retry configuration")
	}
	if cfg.URL != "" {
		u, err := url.Parse(cfg.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("auth: invalid backend URL %q", cfg.URL)
		}
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Store == nil {
		cfg.Store = session.NewMemoryStore()
	}
	if cfg.Tokens == nil {
		m, err := jwt.NewManager(jwt.Config{})
		if err != nil {
			return nil, err
		}
		cfg.Tokens = m
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.URL, "/"),
		anonKey:      cfg.AnonKey,
		httpClient:   cfg.HTTPClient,
		store:        cfg.Store,
		tokens:       cfg.Tokens,
		log:          cfg.Logger.WithField("component", "auth"),
		lock:         newStorageLock(cfg.LockAcquireTimeout),
		events:       newEventHub(),
		expiryMargin: cfg.ExpiryMargin,
		tick:         cfg.AutoRefreshTick,
		retry:        cfg.Retry,
		now:          cfg.Now,
		sleep:        cfg.Sleep,
	}, nil
}

// Configured reports whether a backend URL and anon key are set.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.anonKey != ""
}

// OnAuthStateChange registers fn for every subsequent session change.
// Events are delivered synchronously on the goroutine that caused the change.
func (c *Client) OnAuthStateChange(fn func(ChangeEvent)) *Subscription {
	return c.events.subscribe(fn)
}

// GetSession returns the persisted session, refreshing it first when it
// expires within the configured margin. It returns (nil, nil) when no session
// is stored and ErrLockAcquireTimeout when the storage lock is contended.
func (c *Client) GetSession(ctx context.Context) (*session.Session, error) {
	if err := c.lock.acquire(ctx); err != nil {
		return nil, err
	}
	sess, ev, err := c.loadLocked(ctx)
	c.lock.release()

	if ev != nil {
		c.events.emit(*ev)
	}
	return sess, err
}

func (c *Client) loadLocked(ctx context.Context) (*session.Session, *ChangeEvent, error) {
	sess, err := c.store.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil || !sess.ExpiresWithin(c.now(), c.expiryMargin) {
		return sess, nil, nil
	}
	if sess.RefreshToken == "" {
		return nil, nil, ErrSessionMissing
	}
	return c.refreshLocked(ctx, sess)
}

// refreshLocked exchanges the refresh token of sess and persists the result.
// A rejection by the backend removes the stored session.
func (c *Client) refreshLocked(ctx context.Context, sess *session.Session) (*session.Session, *ChangeEvent, error) {
	fresh, err := c.refreshTokens(ctx, sess.RefreshToken)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && !retryableStatus(apiErr.Status) {
			if rmErr := c.store.Remove(ctx); rmErr != nil {
				c.log.WithError(rmErr).Warn("removing rejected session failed")
			}
			return nil, &ChangeEvent{Type: EventSignedOut}, err
		}
		return nil, nil, err
	}
	if fresh.User == nil {
		fresh.User = sess.User
	}
	if err := c.store.Save(ctx, fresh); err != nil {
		return nil, nil, err
	}
	return fresh, &ChangeEvent{Type: EventTokenRefreshed, Session: fresh}, nil
}

// refreshTokens calls the refresh grant, retrying transport failures and
// retryable statuses with exponential backoff.
func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (*session.Session, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	query := url.Values{"grant_type": {"refresh_token"}}
	body := map[string]string{"refresh_token": refreshToken}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retry.backoff(attempt - 1)
			c.log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).Debug("retrying token refresh")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := c.call(ctx, http.MethodPost, "token", query, "", body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if !resp.ok() {
			apiErr := resp.apiError()
			if retryableStatus(resp.status) {
				lastErr = apiErr
				continue
			}
			return nil, apiErr
		}

		var tok tokenResponse
		if err := resp.decode(&tok); err != nil {
			return nil, err
		}
		return tok.session(c.now()), nil
	}
	return nil, lastErr
}

// RefreshSession forces a refresh of the stored session.
func (c *Client) RefreshSession(ctx context.Context) (*session.Session, error) {
	if err := c.lock.acquire(ctx); err != nil {
		return nil, err
	}
	sess, ev, err := func() (*session.Session, *ChangeEvent, error) {
		cur, err := c.store.Load(ctx)
		if err != nil {
			return nil, nil, err
		}
		if cur == nil || cur.RefreshToken == "" {
			return nil, nil, ErrSessionMissing
		}
		return c.refreshLocked(ctx, cur)
	}()
	c.lock.release()

	if ev != nil {
		c.events.emit(*ev)
	}
	return sess, err
}

// GetUser fetches the user the access token belongs to. A response without a
// user id yields (nil, nil).
func (c *Client) GetUser(ctx context.Context, accessToken string) (*session.User, error) {
	if accessToken == "" {
		return nil, ErrSessionMissing
	}
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	resp, err := c.call(ctx, http.MethodGet, "user", nil, accessToken, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.apiError()
	}

	var user session.User
	if err := resp.decode(&user); err != nil {
		return nil, err
	}
	if user.ID == uuid.Nil {
		return nil, nil
	}
	return &user, nil
}

// SignInWithPassword exchanges email and password for a session and persists it.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if email == "" || password == "" {
		return nil, &APIError{Status: http.StatusBadRequest, Code: "validation_failed", Message: "email and password are required"}
	}

	resp, err := c.call(ctx, http.MethodPost, "token", url.Values{"grant_type": {"password"}}, "",
		map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.apiError()
	}
	var tok tokenResponse
	if err := resp.decode(&tok); err != nil {
		return nil, err
	}
	sess := tok.session(c.now())

	if err := c.persist(ctx, sess); err != nil {
		return nil, err
	}
	c.events.emit(ChangeEvent{Type: EventSignedIn, Session: sess})
	return sess, nil
}

// SetSession adopts an externally obtained token pair. The expiry and identity
// are read from the access token's claims; an already expired token is
// refreshed immediately.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*session.Session, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, ErrSessionMissing
	}
	claims, err := c.tokens.Parse(accessToken)
	if err != nil {
		return nil, fmt.Errorf("auth: parse access token: %w", err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		User: &session.User{
			ID:    userID,
			Email: claims.Email,
			Phone: claims.Phone,
			Role:  claims.Role,
		},
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Unix()
		sess.ExpiresIn = int(claims.ExpiresAt.Sub(c.now()).Seconds())
	}

	if err := c.lock.acquire(ctx); err != nil {
		return nil, err
	}
	var ev *ChangeEvent
	if sess.ExpiresAt != 0 && !time.Unix(sess.ExpiresAt, 0).After(c.now()) {
		sess, ev, err = c.refreshLocked(ctx, sess)
		if ev != nil && ev.Type == EventTokenRefreshed {
			ev.Type = EventSignedIn
		}
	} else {
		err = c.store.Save(ctx, sess)
		ev = &ChangeEvent{Type: EventSignedIn, Session: sess}
		if err != nil {
			ev = nil
		}
	}
	c.lock.release()

	if ev != nil {
		c.events.emit(*ev)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// UpdatePassword changes the password of the signed-in user.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) (*session.User, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	sess, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionMissing
	}

	resp, err := c.call(ctx, http.MethodPut, "user", nil, sess.AccessToken, map[string]string{"password": newPassword})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.apiError()
	}
	var user session.User
	if err := resp.decode(&user); err != nil {
		return nil, err
	}

	updated := sess.Clone()
	updated.User = &user
	if err := c.persist(ctx, updated); err != nil {
		return nil, err
	}
	c.events.emit(ChangeEvent{Type: EventUserUpdated, Session: updated})
	return &user, nil
}

// SignOut ends the session for scope. ScopeLocal only clears persisted state.
// For the remote scopes a 401, 403 or 404 from the backend means the session is
// already gone and local state is cleared anyway.
func (c *Client) SignOut(ctx context.Context, scope SignOutScope) error {
	switch scope {
	case "":
		scope = ScopeGlobal
	case ScopeLocal, ScopeGlobal, ScopeOthers:
	default:
		return ErrInvalidScope
	}

	if scope != ScopeLocal {
		if err := c.revoke(ctx, scope); err != nil {
			return err
		}
		if scope == ScopeOthers {
			return nil
		}
	}

	if err := c.lock.acquire(ctx); err != nil {
		return err
	}
	err := c.store.Remove(ctx)
	c.lock.release()
	if err != nil {
		return err
	}

	c.events.emit(ChangeEvent{Type: EventSignedOut})
	return nil
}

func (c *Client) revoke(ctx context.Context, scope SignOutScope) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if err := c.lock.acquire(ctx); err != nil {
		return err
	}
	sess, err := c.store.Load(ctx)
	c.lock.release()
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	resp, err := c.call(ctx, http.MethodPost, "logout", url.Values{"scope": {string(scope)}}, sess.AccessToken, nil)
	if err != nil {
		return err
	}
	if resp.ok() {
		return nil
	}
	switch resp.status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		c.log.WithField("status", resp.status).Debug("logout: session already invalid")
		return nil
	}
	return resp.apiError()
}

func (c *Client) persist(ctx context.Context, sess *session.Session) error {
	if err := c.lock.acquire(ctx); err != nil {
		return err
	}
	defer c.lock.release()
	return c.store.Save(ctx, sess)
}

// StartAutoRefresh refreshes the stored session in the background whenever it
// gets within the expiry margin. The returned stop function blocks until the
// refresher has exited.
func (c *Client) StartAutoRefresh(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(c.tick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := c.GetSession(ctx); err != nil && ctx.Err() == nil {
					c.log.WithError(err).Debug("auto refresh tick failed")
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}
