package environment

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/MixOS/backend/internal/shared/apperr"
)

// Store is the in-memory registry of environment records. Every operation
// serializes on the store lock and callers only ever see copies.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Environment // Protected by mu
	order   []string                // creation order, protected by mu
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]*Environment)}
}

// Create validates req and registers a stopped environment.
func (s *Store) Create(req CreateRequest) (Environment, error) {
	kind := req.ResolvedKind()
	name := strings.TrimSpace(req.Name)

	if name == "" {
		return Environment{}, apperr.Newf(apperr.KindInvalid, "create", "", "name is required")
	}
	if kind == "" {
		return Environment{}, apperr.Newf(apperr.KindInvalid, "create", name, "kind is required")
	}
	if !kind.Known() {
		return Environment{}, apperr.Newf(apperr.KindInvalid, "create", name, "unknown kind %q", kind)
	}

	env := &Environment{
		ID:         uuid.New().String(),
		Name:       name,
		Kind:       kind,
		Status:     StatusStopped,
		CPUCores:   DefaultCPUCores,
		MemoryMB:   DefaultMemoryMB,
		DiskSizeGB: DefaultDiskSizeGB,
	}
	if err := applyHints(env, req.CPUCores, req.MemoryMB, req.DiskSizeGB); err != nil {
		return Environment{}, apperr.New(apperr.KindInvalid, "create", name, err)
	}
	applyPaths(env, req.KernelPath, req.RootfsPath, req.InitramfsPath)

	now := time.Now().UTC()
	env.CreatedAt = now
	env.UpdatedAt = now

	s.mu.Lock()
	s.records[env.ID] = env
	s.order = append(s.order, env.ID)
	s.mu.Unlock()

	return env.clone(), nil
}

// Get returns a copy of the record.
func (s *Store) Get(id string) (Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	env, ok := s.records[id]
	if !ok {
		return Environment{}, apperr.NotFound("get", id)
	}
	return env.clone(), nil
}

// List returns copies of every record in creation order.
func (s *Store) List() []Environment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Environment, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].clone())
	}
	return out
}

// Update merges the non-nil fields of p.
func (s *Store) Update(id string, p Patch) (Environment, error) {
	return s.mutate("update", id, func(env *Environment) error {
		if p.Name != nil {
			name := strings.TrimSpace(*p.Name)
			if name == "" {
				return apperr.Newf(apperr.KindInvalid, "update", id, "name must not be empty")
			}
			env.Name = name
		}
		if err := applyHints(env, p.CPUCores, p.MemoryMB, p.DiskSizeGB); err != nil {
			return apperr.New(apperr.KindInvalid, "update", id, err)
		}
		applyPaths(env, p.KernelPath, p.RootfsPath, p.InitramfsPath)
		return nil
	})
}

// Mutate applies fn to the record atomically. If fn fails the record is
// left unchanged.
func (s *Store) Mutate(id string, fn func(*Environment) error) (Environment, error) {
	return s.mutate("mutate", id, fn)
}

func (s *Store) mutate(op, id string, fn func(*Environment) error) (Environment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.records[id]
	if !ok {
		return Environment{}, apperr.NotFound(op, id)
	}

	draft := env.clone()
	if err := fn(&draft); err != nil {
		return Environment{}, err
	}
	draft.ID = env.ID
	draft.CreatedAt = env.CreatedAt
	draft.UpdatedAt = time.Now().UTC()
	*env = draft

	return env.clone(), nil
}

// Delete removes the record.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return apperr.NotFound("delete", id)
	}
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func applyHints(env *Environment, cpu, mem, disk *int) error {
	if cpu != nil {
		if *cpu < 1 {
			return fmt.Errorf("cpuCores must be positive, got %d", *cpu)
		}
		env.CPUCores = *cpu
	}
	if mem != nil {
		if *mem < 1 {
			return fmt.Errorf("memoryMB must be positive, got %d", *mem)
		}
		env.MemoryMB = *mem
	}
	if disk != nil {
		if *disk < 1 {
			return fmt.Errorf("diskSizeGB must be positive, got %d", *disk)
		}
		env.DiskSizeGB = *disk
	}
	return nil
}

func applyPaths(env *Environment, kernel, rootfs, initramfs *string) {
	if kernel != nil {
		env.KernelPath = *kernel
	}
	if rootfs != nil {
		env.RootfsPath = *rootfs
	}
	if initramfs != nil {
		env.InitramfsPath = *initramfs
	}
}
