package clients

import (
	"context"
	"fmt"
	"os"

	"github.com/jrsteele09/go-passthru-auth/internal/errors"
	"gopkg.in/yaml.v3"
)

var _ Store = (*StaticStore)(nil)

// Definitions is the layout of the static clients file.
type Definitions struct {
	Capability string    `yaml:"capability"`
	Clients    []*Client `yaml:"clients"`
}

// Descriptor is the fixed registration answer handed out in static mode.
type Descriptor struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Capability   string `json:"capability"`
}

// StaticStore serves a pre-seeded, read-only table. Only secret references are kept, except
// for the first client whose credentials make up the registration descriptor.
type StaticStore struct {
	clients    map[string]*Client
	sealer     *Sealer
	descriptor Descriptor
}

// LoadStaticStore reads client definitions from a YAML (or JSON) file.
func LoadStaticStore(path string, sealer *Sealer, defaultCapability string) (*StaticStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[clients.LoadStaticStore] reading %s: %w", path, err)
	}
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("[clients.LoadStaticStore] parsing %s: %w", path, err)
	}
	if defs.Capability == "" {
		defs.Capability = defaultCapability
	}
	return NewStaticStore(defs, sealer)
}

func NewStaticStore(defs Definitions, sealer *Sealer) (*StaticStore, error) {
	if sealer == nil {
		return nil, fmt.Errorf("[clients.NewStaticStore] nil sealer")
	}
	if len(defs.Clients) == 0 {
		return nil, fmt.Errorf("[clients.NewStaticStore] no clients defined")
	}

	s := &StaticStore{clients: make(map[string]*Client, len(defs.Clients)), sealer: sealer}
	for i, c := range defs.Clients {
		if c == nil || c.ID == "" {
			return nil, fmt.Errorf("[clients.NewStaticStore] client %d has no client_id", i)
		}
		if _, dup := s.clients[c.ID]; dup {
			return nil, fmt.Errorf("[clients.NewStaticStore] duplicate client_id %s", c.ID)
		}
		if err := ValidateRedirectURIs(c.RedirectURIs); err != nil {
			return nil, fmt.Errorf("[clients.NewStaticStore] client %s: %w", c.ID, err)
		}
		if i == 0 {
			s.descriptor = Descriptor{ClientID: c.ID, ClientSecret: c.Secret, Capability: defs.Capability}
		}
		record := *c
		record.Mode = ModeStatic
		record.SecretRef = sealer.Reference(c.Secret)
		if record.Secret == "" && record.TokenEndpointAuthMethod == "" {
			record.TokenEndpointAuthMethod = AuthMethodNone
		}
		s.clients[c.ID] = record.Redacted()
	}
	return s, nil
}

func (s *StaticStore) Mode() Mode {
	return ModeStatic
}

// Descriptor returns the fixed client_id/secret pair and capability token.
func (s *StaticStore) Descriptor() Descriptor {
	return s.descriptor
}

func (s *StaticStore) Register(_ context.Context, _ *Client) (*Client, error) {
	return nil, errors.ErrRegistrationDisabled
}

func (s *StaticStore) Lookup(_ context.Context, clientID string) (*Client, error) {
	c, ok := s.clients[clientID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidClient, "client %s", clientID)
	}
	return c.Redacted(), nil
}

func (s *StaticStore) ValidateSecret(ctx context.Context, clientID, secret string) error {
	c, err := s.Lookup(ctx, clientID)
	if err != nil {
		return err
	}
	if c.IsPublic() {
		return nil
	}
	if !s.sealer.MatchesReference(secret, c.SecretRef) {
		return errors.Wrapf(errors.ErrInvalidClientSecret, "client %s", clientID)
	}
	return nil
}

// Delete is refused; the table only changes by editing the definitions file.
func (s *StaticStore) Delete(_ context.Context, _ string) error {
	return errors.ErrRegistrationDisabled
}
