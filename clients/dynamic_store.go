package clients

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-passthru-auth/cache"
	"github.com/jrsteele09/go-passthru-auth/internal/errors"
)

const (
	keyPrefix        = "client:"
	clientSecretSize = 32
)

var _ Store = (*DynamicStore)(nil)

// DynamicStore persists sealed client records through a cache.Cache.
type DynamicStore struct {
	cache  cache.Cache
	sealer *Sealer
	ttl    time.Duration
	now    func() time.Time
}

type DynamicOption func(*DynamicStore)

// WithRecordTTL expires dynamic registrations after ttl. Zero keeps them forever.
func WithRecordTTL(ttl time.Duration) DynamicOption {
	return func(s *DynamicStore) {
		s.ttl = ttl
	}
}

func WithNowTime(now func() time.Time) DynamicOption {
	return func(s *DynamicStore) {
		s.now = now
	}
}

func NewDynamicStore(c cache.Cache, sealer *Sealer, opts ...DynamicOption) (*DynamicStore, error) {
	if c == nil {
		return nil, fmt.Errorf("[clients.NewDynamicStore] nil cache")
	}
	if sealer == nil {
		return nil, fmt.Errorf("[clients.NewDynamicStore] nil sealer")
	}
	s := &DynamicStore{cache: c, sealer: sealer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *DynamicStore) Mode() Mode {
	return ModeDynamic
}

func (s *DynamicStore) Register(ctx context.Context, c *Client) (*Client, error) {
	if c == nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "[DynamicStore.Register] nil client")
	}
	if err := ValidateRedirectURIs(c.RedirectURIs); err != nil {
		return nil, err
	}

	record := *c
	record.ID = uuid.NewString()
	record.Mode = ModeDynamic
	record.IssuedAt = s.now().Unix()
	record.Secret = ""
	if !record.IsPublic() {
		secret, err := generateSecret()
		if err != nil {
			return nil, err
		}
		record.Secret = secret
	}

	plaintext, err := json.Marshal(&record)
	if err != nil {
		return nil, errors.Wrapf(err, "[DynamicStore.Register] marshal")
	}
	sealed, err := s.sealer.Seal(plaintext, []byte(record.ID))
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, keyPrefix+record.ID, sealed, s.ttl); err != nil {
		return nil, errors.Wrapf(err, "[DynamicStore.Register] store client %s", record.ID)
	}

	record.SecretRef = s.sealer.Reference(record.Secret)
	return &record, nil
}

func (s *DynamicStore) Lookup(ctx context.Context, clientID string) (*Client, error) {
	record, err := s.load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	record.SecretRef = s.sealer.Reference(record.Secret)
	return record.Redacted(), nil
}

func (s *DynamicStore) ValidateSecret(ctx context.Context, clientID, secret string) error {
	record, err := s.load(ctx, clientID)
	if err != nil {
		return err
	}
	if record.IsPublic() {
		return nil
	}
	if !s.sealer.MatchesReference(secret, s.sealer.Reference(record.Secret)) {
		return errors.Wrapf(errors.ErrInvalidClientSecret, "client %s", clientID)
	}
	return nil
}

func (s *DynamicStore) Delete(ctx context.Context, clientID string) error {
	return s.cache.Delete(ctx, keyPrefix+clientID)
}

func (s *DynamicStore) load(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, errors.Wrapf(errors.ErrInvalidClient, "empty client_id")
	}
	sealed, err := s.cache.Get(ctx, keyPrefix+clientID)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, errors.Wrapf(errors.ErrInvalidClient, "client %s", clientID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[DynamicStore.load] client %s", clientID)
	}
	plaintext, err := s.sealer.Open(sealed, []byte(clientID))
	if err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidClient)
	}
	var record Client
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, errors.Wrapf(err, "[DynamicStore.load] unmarshal client %s", clientID)
	}
	return &record, nil
}

func generateSecret() (string, error) {
	b := make([]byte, clientSecretSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[clients.generateSecret] %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
