package sandbox

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/toolgate/toolgate/internal/adapter/outbound/jsonstore"
)

// variableBag is the on-disk shape of a client's state.json.
type variableBag struct {
	Variables map[string]interface{} `json:"variables"`
}

// StateStore manages a persistent key/value variable bag per client,
// stored at clients/<client_id>/state.json so tool invocations can carry
// state across calls within a session.
type StateStore struct {
	dirs *DirManager

	mu      sync.Mutex
	clients map[string]*jsonstore.Store[variableBag]
	logger  *slog.Logger
}

// NewStateStore creates a StateStore that persists under each client's jail
// directory, managed by dirs.
func NewStateStore(dirs *DirManager, logger *slog.Logger) *StateStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateStore{dirs: dirs, clients: map[string]*jsonstore.Store[variableBag]{}, logger: logger}
}

func (s *StateStore) storeFor(clientID string) (*jsonstore.Store[variableBag], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.clients[clientID]; ok {
		return st, nil
	}

	jail, err := s.dirs.JailDir(clientID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(jail, "state.json")
	st := jsonstore.New(path, s.logger, func() *variableBag {
		return &variableBag{Variables: map[string]interface{}{}}
	})
	s.clients[clientID] = st
	return st, nil
}

// Get returns a single variable's value for clientID, and whether it was set.
func (s *StateStore) Get(ctx context.Context, clientID, key string) (interface{}, bool, error) {
	st, err := s.storeFor(clientID)
	if err != nil {
		return nil, false, err
	}
	bag, err := st.Load()
	if err != nil {
		return nil, false, err
	}
	v, ok := bag.Variables[key]
	return v, ok, nil
}

// Set persists key=value for clientID.
func (s *StateStore) Set(ctx context.Context, clientID, key string, value interface{}) error {
	st, err := s.storeFor(clientID)
	if err != nil {
		return err
	}
	return st.Update(func(bag *variableBag) error {
		bag.Variables[key] = value
		return nil
	})
}

// Delete removes a variable for clientID, idempotently.
func (s *StateStore) Delete(ctx context.Context, clientID, key string) error {
	st, err := s.storeFor(clientID)
	if err != nil {
		return err
	}
	return st.Update(func(bag *variableBag) error {
		delete(bag.Variables, key)
		return nil
	})
}

// All returns a copy of every variable set for clientID.
func (s *StateStore) All(ctx context.Context, clientID string) (map[string]interface{}, error) {
	st, err := s.storeFor(clientID)
	if err != nil {
		return nil, err
	}
	bag, err := st.Load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(bag.Variables))
	for k, v := range bag.Variables {
		out[k] = v
	}
	return out, nil
}
