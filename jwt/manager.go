package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoSecret is returned by Issue when the manager has no signing secret.
var ErrNoSecret = errors.New("jwt: no signing secret configured")

// Config controls how access tokens are parsed.
//
// With an empty Secret, Parse does not verify signatures; it only decodes claims.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// Manager parses access tokens and issues HS256 tokens for local backends.
type Manager struct {
	config Config
}

// AccessClaims are the claims the auth backend places in its access tokens.
type AccessClaims struct {
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	AAL       string `json:"aal,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim as a user id.
func (c *AccessClaims) UserID() (uuid.UUID, error) {
	if c == nil || c.Subject == "" {
		return uuid.Nil, errors.New("jwt: missing sub claim")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("jwt: invalid sub claim: %w", err)
	}
	return id, nil
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Secret != nil && len(cfg.Secret) < 16 {
		return nil, errors.New("hs256 secret must be at least 16 bytes")
	}
	return &Manager{config: cfg}, nil
}

// Verifies reports whether Parse checks signatures.
func (m *Manager) Verifies() bool {
	return len(m.config.Secret) > 0
}

// Parse decodes an access token. When a secret is configured the signature,
// expiry, issuer and audience are validated; otherwise claims are returned as-is
// and the caller must treat them as untrusted hints.
func (m *Manager) Parse(tokenStr string) (*AccessClaims, error) {
	if !m.Verifies() {
		claims := &AccessClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of tokenStr without verifying it.
func (m *Manager) ExpiresAt(tokenStr string) (time.Time, error) {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("jwt: missing exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// Issue signs an HS256 access token for userID valid for ttl.
func (m *Manager) Issue(userID uuid.UUID, email, sessionID string, ttl time.Duration) (string, error) {
	if !m.Verifies() {
		return "", ErrNoSecret
	}
	if ttl <= 0 {
		return "", errors.New("invalid TTL configuration")
	}

	now := time.Now()
	claims := AccessClaims{
		Email:     email,
		Role:      "authenticated",
		SessionID: sessionID,
		AAL:       "aal1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}
