package fakeclientrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-passthru-auth/clients"
	"github.com/jrsteele09/go-passthru-auth/internal/errors"
)

var _ clients.Store = (*FakeClientRepo)(nil)

// FakeClientRepo is an unsealed in-memory clients.Store for tests that need to
// control what the store returns.
type FakeClientRepo struct {
	clients map[string]*clients.Client
	err     error
	lock    sync.RWMutex
}

func NewFakeClientRepo() *FakeClientRepo {
	return &FakeClientRepo{
		clients: make(map[string]*clients.Client),
	}
}

// FailWith makes every subsequent call return err. A nil err restores normal behaviour.
func (r *FakeClientRepo) FailWith(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.err = err
}

func (r *FakeClientRepo) Mode() clients.Mode {
	return clients.ModeDynamic
}

func (r *FakeClientRepo) Register(_ context.Context, clientData *clients.Client) (*clients.Client, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if err := clients.ValidateRedirectURIs(clientData.RedirectURIs); err != nil {
		return nil, err
	}
	record := *clientData
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if !record.IsPublic() && record.Secret == "" {
		record.Secret = uuid.New().String()
	}
	record.Mode = clients.ModeDynamic
	r.clients[record.ID] = &record
	out := record
	return &out, nil
}

func (r *FakeClientRepo) Lookup(_ context.Context, clientID string) (*clients.Client, error) {
	client, err := r.get(clientID)
	if err != nil {
		return nil, err
	}
	return client.Redacted(), nil
}

func (r *FakeClientRepo) ValidateSecret(_ context.Context, clientID, secret string) error {
	client, err := r.get(clientID)
	if err != nil {
		return err
	}
	if !client.IsPublic() && client.Secret != secret {
		return errors.Wrapf(errors.ErrInvalidClientSecret, "client %s", clientID)
	}
	return nil
}

func (r *FakeClientRepo) Delete(_ context.Context, clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.err != nil {
		return r.err
	}
	delete(r.clients, clientID)
	return nil
}

// List returns registered clients ordered by ID.
func (r *FakeClientRepo) List(offset, limit int) []*clients.Client {
	r.lock.RLock()
	defer r.lock.RUnlock()

	all := make([]*clients.Client, 0, len(r.clients))
	for _, v := range r.clients {
		all = append(all, v.Redacted())
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ID < all[j].ID
	})

	if offset >= len(all) {
		return nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end]
}

func (r *FakeClientRepo) get(clientID string) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.err != nil {
		return nil, r.err
	}
	client, ok := r.clients[clientID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidClient, "client %s", clientID)
	}
	return client, nil
}
