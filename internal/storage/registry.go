package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/Anosmish/pdf2word/internal/domain"
)

// Registry is the in-memory artifact table. It is the single owner of the
// id -> artifact mapping: handlers and the janitor mutate state only through
// its methods. Every method copies artifacts in and out of the map, so
// callers never hold a reference into it.
//
// No method touches the filesystem. Remove and Sweep pop entries and hand
// the paths back so callers can unlink outside the lock.
type Registry struct {
	mu        sync.RWMutex
	artifacts map[string]domain.Artifact
}

func NewRegistry() *Registry {
	return &Registry{artifacts: map[string]domain.Artifact{}}
}

// Register inserts a new artifact. Returns domain.ErrDuplicateID if the id
// is already live; ids come from uuid.NewString so this guards against
// programming errors rather than collisions.
func (r *Registry) Register(a domain.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.artifacts[a.ID]; ok {
		return fmt.Errorf("register %s: %w", a.ID, domain.ErrDuplicateID)
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.Downloaded = false

	r.artifacts[a.ID] = a
	return nil
}

func (r *Registry) Get(id string) (domain.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.artifacts[id]
	if !ok {
		return domain.Artifact{}, domain.ErrNotFound
	}
	return a, nil
}

// MarkDownloaded sets the downloaded flag. The returned bool is true only
// for the call that performed the false->true transition, so concurrent
// downloads of the same artifact arm exactly one deferred deletion.
func (r *Registry) MarkDownloaded(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.artifacts[id]
	if !ok {
		return false, domain.ErrNotFound
	}

	if a.Downloaded {
		return false, nil
	}

	a.Downloaded = true
	r.artifacts[id] = a
	return true, nil
}

// Remove atomically pops the entry and returns it so the caller can unlink
// the backing files. A Remove racing a Sweep on the same id resolves to one
// winner; the loser gets domain.ErrNotFound.
func (r *Registry) Remove(id string) (domain.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.artifacts[id]
	if !ok {
		return domain.Artifact{}, domain.ErrNotFound
	}

	delete(r.artifacts, id)
	return a, nil
}

// Sweep pops every entry strictly older than olderThan, plus every
// downloaded entry regardless of age when includeDownloaded is set, and
// returns them for batch file deletion.
func (r *Registry) Sweep(olderThan time.Duration, includeDownloaded bool) []domain.Artifact {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var popped []domain.Artifact
	for id, a := range r.artifacts {
		if a.Age(now) > olderThan || (includeDownloaded && a.Downloaded) {
			popped = append(popped, a)
			delete(r.artifacts, id)
		}
	}
	return popped
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.artifacts)
}
