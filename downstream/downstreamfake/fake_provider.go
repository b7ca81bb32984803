package downstreamfake

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/jrsteele09/go-passthru-auth/downstream"
)

const AuthURL = "https://downstream.example/o/oauth2/auth"

var _ downstream.Provider = (*FakeProvider)(nil)

// FakeProvider answers exchanges from a fixed code table.
type FakeProvider struct {
	lock      sync.Mutex
	tokens    map[string]*downstream.Token
	err       error
	exchanges []Exchange
}

// Exchange records one call to FakeProvider.Exchange.
type Exchange struct {
	Code     string
	Verifier string
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{tokens: make(map[string]*downstream.Token)}
}

// AddCode makes code exchange to tok.
func (f *FakeProvider) AddCode(code string, tok *downstream.Token) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.tokens[code] = tok
}

// FailWith makes every exchange return err.
func (f *FakeProvider) FailWith(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.err = err
}

func (f *FakeProvider) Exchanges() []Exchange {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]Exchange(nil), f.exchanges...)
}

func (f *FakeProvider) AuthCodeURL(state, verifier string) string {
	q := url.Values{"state": {state}, "response_type": {"code"}}
	if verifier != "" {
		q.Set("code_challenge_method", "S256")
	}
	return AuthURL + "?" + q.Encode()
}

func (f *FakeProvider) Exchange(ctx context.Context, code, verifier string) (*downstream.Token, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.exchanges = append(f.exchanges, Exchange{Code: code, Verifier: verifier})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	tok, ok := f.tokens[code]
	if !ok {
		return nil, errors.New("invalid_grant: unknown downstream code")
	}
	cp := *tok
	return &cp, nil
}
