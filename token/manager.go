package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-passthru-auth/internal/errors"
)

// SessionClaims is the payload of a session artifact. Token carries the
// downstream access token the artifact stands for.
type SessionClaims struct {
	jwt.RegisteredClaims
	Token string `json:"token"`
	Scope string `json:"scope,omitempty"`
}

// SessionInput describes the artifact to mint.
type SessionInput struct {
	DownstreamToken  string
	DownstreamExpiry time.Time // zero when the downstream provider gave no expiry
	ClientID         string
	Subject          string
	Scope            string
}

// Session is a freshly minted artifact.
type Session struct {
	Artifact  string
	ExpiresAt time.Time
	ExpiresIn int64
}

// Manager mints and verifies session artifacts.
type Manager struct {
	signer      Signer
	issuer      string
	maxLifetime time.Duration
	leeway      time.Duration
	nowFunc     func() time.Time
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

// WithMaxLifetime caps the artifact lifetime regardless of the downstream expiry.
func WithMaxLifetime(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.maxLifetime = d
	}
}

func WithLeeway(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.leeway = d
	}
}

func New(signer Signer, options ...ManagerOption) (*Manager, error) {
	if signer == nil {
		return nil, fmt.Errorf("[token.New] nil signer")
	}
	m := &Manager{signer: signer}
	for _, opt := range options {
		opt(m)
	}
	if m.maxLifetime <= 0 {
		m.maxLifetime = time.Hour
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m, nil
}

// Mint signs an artifact whose expiry is the earlier of the downstream expiry
// and now plus the maximum lifetime.
func (m *Manager) Mint(in SessionInput) (*Session, error) {
	if strings.TrimSpace(in.DownstreamToken) == "" {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "[token.Mint] empty downstream token")
	}
	now := m.nowFunc().Truncate(time.Second)
	exp := now.Add(m.maxLifetime)
	if !in.DownstreamExpiry.IsZero() && in.DownstreamExpiry.Before(exp) {
		exp = in.DownstreamExpiry.Truncate(time.Second)
	}
	if !exp.After(now) {
		return nil, errors.Wrapf(errors.ErrTokenInvalid, "[token.Mint] downstream token already expired")
	}

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   in.Subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Token: in.DownstreamToken,
		Scope: in.Scope,
	}
	if in.ClientID != "" {
		claims.Audience = jwt.ClaimStrings{in.ClientID}
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return nil, errors.Wrapf(err, "[token.Mint]")
	}
	return &Session{Artifact: signed, ExpiresAt: exp, ExpiresIn: int64(exp.Sub(now) / time.Second)}, nil
}

// Verify checks signature, algorithm, expiry and issuer, and returns the claims.
// Every failure is reported as ErrTokenInvalid.
func (m *Manager) Verify(raw string) (*SessionClaims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.Wrapf(errors.ErrTokenInvalid, "empty token")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.nowFunc),
		jwt.WithLeeway(m.leeway),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &SessionClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, m.signer.GetVerificationKey, opts...); err != nil {
		return nil, errors.Mark(err, errors.ErrTokenInvalid)
	}
	if claims.Token == "" {
		return nil, errors.Wrapf(errors.ErrTokenInvalid, "missing token claim")
	}
	return claims, nil
}
