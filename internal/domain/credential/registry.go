package credential

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/toolgate/toolgate/internal/adapter/outbound/jsonstore"
)

// state is the on-disk shape of clients.json: a map keyed by credential id.
type state struct {
	Clients map[string]*Record `json:"clients"`
}

// Registry manages client credentials: creation, authentication, and role
// or metadata edits. All mutations go through the backing jsonstore, so
// every write is atomic and crash-safe.
type Registry struct {
	store *jsonstore.Store[state]
}

// NewRegistry creates a Registry backed by the file at path.
func NewRegistry(path string, logger *slog.Logger) *Registry {
	return &Registry{
		store: jsonstore.New(path, logger, func() *state {
			return &state{Clients: map[string]*Record{}}
		}),
	}
}

// Create registers a new client with a freshly hashed password. The
// returned Record's PasswordHash is populated only in the in-process copy;
// callers that forward it outward should call Public() first.
func (r *Registry) Create(ctx context.Context, username, password, email string, roles []string) (*Record, error) {
	var created *Record
	err := r.store.Update(func(s *state) error {
		for _, rec := range s.Clients {
			if rec.Username == username {
				return ErrAlreadyExists
			}
		}

		hash, err := hashPassword(password)
		if err != nil {
			return err
		}

		rec := &Record{
			ID:           uuid.NewString(),
			Username:     username,
			PasswordHash: hash,
			Email:        email,
			Roles:        append([]string{}, roles...),
			Enabled:      true,
			CreatedAt:    time.Now().UTC(),
			Metadata:     map[string]string{},
		}
		s.Clients[rec.ID] = rec
		created = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Authenticate verifies a username/password pair, rejecting disabled
// accounts, and records the successful login time. It returns
// ErrInvalidCredentials for every failure mode to avoid revealing which
// part of the check failed.
func (r *Registry) Authenticate(ctx context.Context, username, password string) (*Record, error) {
	var authenticated *Record
	err := r.store.Update(func(s *state) error {
		var match *Record
		for _, rec := range s.Clients {
			if rec.Username == username {
				match = rec
				break
			}
		}
		if match == nil || !match.Enabled {
			return ErrInvalidCredentials
		}

		ok, verr := verifyPassword(password, match.PasswordHash)
		if verr != nil || !ok {
			return ErrInvalidCredentials
		}

		now := time.Now().UTC()
		match.LastLoginAt = &now
		authenticated = match
		return nil
	})
	if err != nil {
		return nil, err
	}
	return authenticated, nil
}

// Get returns the credential with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*Record, error) {
	s, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	rec, ok := s.Clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// GetByUsername returns the credential with the given username.
func (r *Registry) GetByUsername(ctx context.Context, username string) (*Record, error) {
	s, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	for _, rec := range s.Clients {
		if rec.Username == username {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

// List returns every registered credential.
func (r *Registry) List(ctx context.Context) ([]*Record, error) {
	s, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(s.Clients))
	for _, rec := range s.Clients {
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes a credential by id.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.store.Update(func(s *state) error {
		if _, ok := s.Clients[id]; !ok {
			return ErrNotFound
		}
		delete(s.Clients, id)
		return nil
	})
}

// SetEnabled toggles whether a credential may authenticate.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return r.store.Update(func(s *state) error {
		rec, ok := s.Clients[id]
		if !ok {
			return ErrNotFound
		}
		rec.Enabled = enabled
		return nil
	})
}

// AddRole attaches a role tag to a credential, idempotently.
func (r *Registry) AddRole(ctx context.Context, id, role string) error {
	return r.store.Update(func(s *state) error {
		rec, ok := s.Clients[id]
		if !ok {
			return ErrNotFound
		}
		if rec.HasRole(role) {
			return nil
		}
		rec.Roles = append(rec.Roles, role)
		return nil
	})
}

// RemoveRole detaches a role tag from a credential, idempotently.
func (r *Registry) RemoveRole(ctx context.Context, id, role string) error {
	return r.store.Update(func(s *state) error {
		rec, ok := s.Clients[id]
		if !ok {
			return ErrNotFound
		}
		filtered := rec.Roles[:0]
		for _, have := range rec.Roles {
			if have != role {
				filtered = append(filtered, have)
			}
		}
		rec.Roles = filtered
		return nil
	})
}

// UpdateMetadata merges kv into a credential's metadata map, overwriting
// any existing keys.
func (r *Registry) UpdateMetadata(ctx context.Context, id string, kv map[string]string) error {
	return r.store.Update(func(s *state) error {
		rec, ok := s.Clients[id]
		if !ok {
			return ErrNotFound
		}
		if rec.Metadata == nil {
			rec.Metadata = map[string]string{}
		}
		for k, v := range kv {
			rec.Metadata[k] = v
		}
		return nil
	})
}
