package cart

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Registry хранит координаторы корзин по идентификатору сессии.
type Registry struct {
	mu    sync.Mutex
	carts map[string]*Coordinator

	backend Backend
	hardCap decimal.Decimal
	idleTTL time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewRegistry создаёт реестр. Координаторы, не использовавшиеся дольше idleTTL, удаляются Sweep.
func NewRegistry(b Backend, hardCap decimal.Decimal, idleTTL time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		carts:   make(map[string]*Coordinator),
		backend: b,
		hardCap: hardCap,
		idleTTL: idleTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// For возвращает координатор сессии, создавая его при первом обращении.
func (r *Registry) For(sessionID string) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[sessionID]
	if !ok {
		c = NewCoordinator(r.backend, sessionID, r.hardCap)
		c.now = r.now
		r.carts[sessionID] = c
	}
	c.Touch()
	return c
}

// Drop удаляет координатор сессии, например при выходе.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	delete(r.carts, sessionID)
	r.mu.Unlock()
}

// Len возвращает число активных координаторов.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.carts)
}

// Sweep удаляет простаивающие координаторы и возвращает их количество.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	deadline := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, c := range r.carts {
		if c.idleSince().Before(deadline) {
			delete(r.carts, id)
			n++
		}
	}
	return n
}

// Run периодически вызывает Sweep до отмены контекста.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("evicted idle carts", zap.Int("count", n), zap.Int("active", r.Len()))
			}
		}
	}
}
