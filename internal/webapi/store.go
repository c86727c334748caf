package webapi

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTaskNotFound is returned when a task ID does not match any stored task.
var ErrTaskNotFound = errors.New("task not found")

// TaskStore keeps the tasks and files known to the simulator.
type TaskStore interface {
	// Create records a new task and assigns its ID.
	Create(kind string, payload map[string]any) (*Task, error)
	// Get returns a task by ID.
	Get(id string) (*Task, error)
	// ListCSVs returns the available dataset CSV names, sorted.
	ListCSVs() ([]string, error)
	// AddCSV makes a CSV produced by a finished task available.
	AddCSV(name string) error
}

// MemoryStore is an in-memory TaskStore.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	csvs  map[string]struct{}
	newID func() string
	now   func() time.Time
}

// NewMemoryStore creates a store seeded with the given CSV names.
func NewMemoryStore(csvs ...string) *MemoryStore {
	s := &MemoryStore{
		tasks: make(map[string]*Task),
		csvs:  make(map[string]struct{}),
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, c := range csvs {
		s.csvs[c] = struct{}{}
	}
	return s
}

func (s *MemoryStore) Create(kind string, payload map[string]any) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Task{
		ID:      s.newID(),
		Kind:    kind,
		Payload: payload,
		Created: s.now().UTC(),
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *MemoryStore) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListCSVs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.csvs))
	for n := range s.csvs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names, nil
}

func (s *MemoryStore) AddCSV(name string) error {
	if name == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csvs[name] = struct{}{}
	return nil
}
