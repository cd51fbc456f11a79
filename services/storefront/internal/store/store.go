package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNoSlot is returned when a Slot is used without an id.
var ErrNoSlot = errors.New("token slot has no id")

// Backend persists one token string per browser slot id.
type Backend interface {
	Get(ctx context.Context, slot string) (string, bool, error)
	Set(ctx context.Context, slot, token string) error
	Delete(ctx context.Context, slot string) error
}

// Slot is the persisted storage of one browser. It satisfies
// apiclient.TokenStore.
type Slot struct {
	backend Backend
	id      string
}

// NewSlot binds a backend to a slot id.
func NewSlot(backend Backend, id string) *Slot {
	return &Slot{backend: backend, id: strings.TrimSpace(id)}
}

// ID returns the slot id carried by the browser cookie.
func (s *Slot) ID() string {
	return s.id
}

// Token returns the stored token, or "" when the slot is empty.
func (s *Slot) Token(ctx context.Context) (string, error) {
	if s.id == "" {
		return "", nil
	}
	token, ok, err := s.backend.Get(ctx, s.id)
	if err != nil || !ok {
		return "", err
	}
	return token, nil
}

// SetToken replaces the stored token.
func (s *Slot) SetToken(ctx context.Context, token string) error {
	if s.id == "" {
		return ErrNoSlot
	}
	if strings.TrimSpace(token) == "" {
		return s.backend.Delete(ctx, s.id)
	}
	return s.backend.Set(ctx, s.id, token)
}

// ClearToken empties the slot.
func (s *Slot) ClearToken(ctx context.Context) error {
	if s.id == "" {
		return nil
	}
	return s.backend.Delete(ctx, s.id)
}
