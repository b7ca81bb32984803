package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-passthru-auth/cache"
	"github.com/jrsteele09/go-passthru-auth/oauthmodel"
)

const (
	pendingKeyPrefix = "pending:"
	codeKeyPrefix    = "code:"

	stateTokenLength = 32
	localCodeLength  = 32
)

// PendingAuthorization is kept between StartAuthorization and the downstream callback.
type PendingAuthorization struct {
	ClientID            string                    `json:"client_id"`
	Scope               string                    `json:"scope,omitempty"`
	RedirectURI         string                    `json:"redirect_uri"`
	ClientState         string                    `json:"client_state,omitempty"`
	CodeChallenge       string                    `json:"code_challenge,omitempty"`
	CodeChallengeMethod oauthmodel.CodeMethodType `json:"code_challenge_method,omitempty"`
	DownstreamVerifier  string                    `json:"downstream_verifier,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
}

// IssuedCode is kept between the downstream callback and the token request.
type IssuedCode struct {
	ClientID            string                    `json:"client_id"`
	RedirectURI         string                    `json:"redirect_uri"`
	Scope               string                    `json:"scope,omitempty"`
	Artifact            string                    `json:"artifact"`
	ArtifactExpiresAt   time.Time                 `json:"artifact_expires_at"`
	CodeChallenge       string                    `json:"code_challenge,omitempty"`
	CodeChallengeMethod oauthmodel.CodeMethodType `json:"code_challenge_method,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
}

func pendingKey(state string) string {
	return pendingKeyPrefix + state
}

func codeKey(code string) string {
	return codeKeyPrefix + hashToken(code)
}

// hashToken keeps raw local codes out of the cache key space.
func hashToken(v string) string {
	sum := sha256.Sum256([]byte(v))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[auth.generateRandomString] %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (p *PassthroughProvider) putRecord(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("[auth.putRecord] marshal %s: %w", key, err)
	}
	value := string(data)
	if p.deps.Sealer != nil {
		if value, err = p.deps.Sealer.Seal(data, []byte(key)); err != nil {
			return err
		}
	}
	return p.deps.Cache.Set(ctx, key, value, ttl)
}

// takeRecord atomically consumes key. A missing key yields cache.ErrNotFound.
func (p *PassthroughProvider) takeRecord(ctx context.Context, key string, v any) error {
	value, err := p.deps.Cache.Take(ctx, key)
	if err != nil {
		return err
	}
	data := []byte(value)
	if p.deps.Sealer != nil {
		if data, err = p.deps.Sealer.Open(value, []byte(key)); err != nil {
			return fmt.Errorf("%w: %w", cache.ErrNotFound, err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: unmarshal %s: %w", cache.ErrNotFound, key, err)
	}
	return nil
}
