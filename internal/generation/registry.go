package generation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultRetention = 30 * time.Minute

type entry struct {
	owner      uuid.UUID
	controller *Controller
	createdAt  time.Time
}

// Registry hosts the controllers of many users. Each owner may have one
// attempt in flight; finished attempts stay readable until Sweep forgets them.
type Registry struct {
	client    Submitter
	opts      []Option
	retention time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

func NewRegistry(client Submitter, retention time.Duration, logger *zap.Logger, opts ...Option) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		client:    client,
		opts:      append([]Option{WithLogger(logger)}, opts...),
		retention: retention,
		logger:    logger.With(zap.String("component", "generation_registry")),
		entries:   make(map[uuid.UUID]*entry),
	}
}

// Start begins a new attempt for owner. The attempt is detached from ctx's
// cancellation so it survives the HTTP request that started it.
func (r *Registry) Start(ctx context.Context, owner uuid.UUID, images []Image) (uuid.UUID, Snapshot, error) {
	if _, err := NewRequest(images); err != nil {
		return uuid.Nil, Snapshot{}, err
	}

	r.mu.Lock()
	for _, e := range r.entries {
		// A controller that is not yet terminal is either in flight or about
		// to be started by a concurrent call.
		if e.owner == owner && !e.controller.Snapshot().Terminal() {
			r.mu.Unlock()
			return uuid.Nil, Snapshot{}, ErrBusy
		}
	}

	id := uuid.New()
	ctrl := NewController(r.client, r.opts...)
	r.entries[id] = &entry{owner: owner, controller: ctrl, createdAt: time.Now()}
	r.mu.Unlock()

	if err := ctrl.Start(context.WithoutCancel(ctx), images); err != nil {
		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
		return uuid.Nil, Snapshot{}, err
	}

	r.logger.Info("generation registered", zap.String("id", id.String()), zap.String("owner", owner.String()))
	return id, ctrl.Snapshot(), nil
}

// Get returns owner's controller for id. Another owner's id is reported as
// not found.
func (r *Registry) Get(owner, id uuid.UUID) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.owner != owner {
		return nil, ErrNotFound
	}
	return e.controller, nil
}

// Reset cancels the attempt and forgets it.
func (r *Registry) Reset(owner, id uuid.UUID) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.owner != owner {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.entries, id)
	r.mu.Unlock()

	e.controller.Reset()
	return nil
}

// Sweep forgets finished attempts that were started more than the retention
// window before now. It returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.retention)
	removed := 0
	for id, e := range r.entries {
		if e.createdAt.Before(cutoff) && e.controller.Snapshot().Terminal() {
			delete(r.entries, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("swept finished generations", zap.Int("removed", removed))
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}
