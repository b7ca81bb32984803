package service

import (
	"context"
	"sync"
)

type contextKey string

const scopeContextKey contextKey = "service_scope"

// Scope is the per-request slot holding at most one Handle. The credential
// middleware creates it on entry and releases it when the handler returns.
type Scope struct {
	mu       sync.Mutex
	handle   *Handle
	released bool
}

func NewScope() *Scope {
	return &Scope{}
}

// Set attaches h. Setting on a released scope releases h immediately.
func (s *Scope) Set(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		h.Release()
		return
	}
	if s.handle != nil && s.handle != h {
		s.handle.Release()
	}
	s.handle = h
}

// Handle returns the attached handle, if any.
func (s *Scope) Handle() (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil || s.released {
		return nil, false
	}
	return s.handle, true
}

// Release clears the slot and invalidates the handle. Safe to call repeatedly.
func (s *Scope) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.handle.Release()
		s.handle = nil
	}
	s.released = true
}

func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey, s)
}

func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeContextKey).(*Scope)
	return s, ok && s != nil
}

// FromContext returns the handle attached to the current request, if any.
func FromContext(ctx context.Context) (*Handle, bool) {
	s, ok := ScopeFromContext(ctx)
	if !ok {
		return nil, false
	}
	return s.Handle()
}
