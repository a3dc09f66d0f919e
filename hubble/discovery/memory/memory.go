package memory

import (
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/hubblenetwork/hubble-go/hubble/discovery"
)

// Store is an in-memory device registry.
// It is useful for tests, examples and embedding in applications.
type Store struct {
	mu      sync.RWMutex
	devices map[uuid.UUID]discovery.Device
}

func New() *Store {
	return &Store{devices: map[uuid.UUID]discovery.Device{}}
}

func (s *Store) Register(d discovery.Device) error {
	if d.Key.IsZero() {
		return discovery.ErrInvalidKey
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Labels = maps.Clone(d.Labels)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.ID] = d
	return nil
}

func (s *Store) Lookup(id uuid.UUID) (discovery.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return discovery.Device{}, discovery.ErrNotFound
	}
	d.Labels = maps.Clone(d.Labels)
	return d, nil
}

func (s *Store) Remove(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[id]; !ok {
		return discovery.ErrNotFound
	}
	delete(s.devices, id)
	return nil
}

// List returns devices ordered by name, then ID.
func (s *Store) List() ([]discovery.Device, error) {
	s.mu.RLock()
	out := make([]discovery.Device, 0, len(s.devices))
	for _, d := range s.devices {
		d.Labels = maps.Clone(d.Labels)
		out = append(out, d)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
