// Package policystore implements a jsonstore-backed policy.Store.
package policystore

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/toolgate/toolgate/internal/adapter/outbound/jsonstore"
	"github.com/toolgate/toolgate/internal/domain/policy"
)

// state is the on-disk shape of policies.json: a map keyed by policy id.
type state struct {
	Policies map[string]*policy.Policy `json:"policies"`
}

// Store persists policy.Policy records through the jsonstore append/replace
// primitive, so every write is atomic and crash-safe.
type Store struct {
	store *jsonstore.Store[state]
}

// New creates a Store backed by the file at path.
func New(path string, logger *slog.Logger) *Store {
	return &Store{
		store: jsonstore.New(path, logger, func() *state {
			return &state{Policies: map[string]*policy.Policy{}}
		}),
	}
}

// GetAllPolicies returns every enabled policy.
func (s *Store) GetAllPolicies(ctx context.Context) ([]policy.Policy, error) {
	st, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	policies := make([]policy.Policy, 0, len(st.Policies))
	for _, p := range st.Policies {
		if p.Enabled {
			policies = append(policies, *p)
		}
	}
	return policies, nil
}

// SavePolicy creates p if p.ID is empty, otherwise replaces the existing
// policy with that ID.
func (s *Store) SavePolicy(ctx context.Context, p *policy.Policy) error {
	return s.store.Update(func(st *state) error {
		now := time.Now().UTC()
		if p.ID == "" {
			p.ID = uuid.NewString()
			p.CreatedAt = now
		} else if existing, ok := st.Policies[p.ID]; ok {
			p.CreatedAt = existing.CreatedAt
		}
		p.UpdatedAt = now
		st.Policies[p.ID] = p
		return nil
	})
}

// DeletePolicy removes the policy with the given id. Deleting an id that
// does not exist is a no-op.
func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	return s.store.Update(func(st *state) error {
		delete(st.Policies, id)
		return nil
	})
}

var _ policy.Store = (*Store)(nil)
