package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// cartStoreInMemory хранит корзины сессий. Корзина живёт столько же, сколько сессия.
type cartStoreInMemory struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
}

// NewCartStore создаёт in-memory хранилище корзин.
func NewCartStore() domain.CartStore {
	return &cartStoreInMemory{carts: make(map[string]domain.Cart)}
}

func (s *cartStoreInMemory) Get(_ context.Context, sessionID string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[sessionID]
	if !ok {
		return domain.Cart{}, domain.ErrSessionExpired
	}
	return cart.Clone(), nil
}

// Update применяет fn к копии корзины и сохраняет её только при успехе fn.
func (s *cartStoreInMemory) Update(ctx context.Context, sessionID string, create bool, fn func(cart *domain.Cart) error) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.carts[sessionID]
	if !ok {
		if !create {
			return domain.Cart{}, domain.ErrSessionExpired
		}
		current = domain.Cart{SessionID: sessionID}
	}

	working := current.Clone()
	if err := fn(&working); err != nil {
		return current.Clone(), err
	}
	working.SessionID = sessionID
	working.UpdatedAt = time.Now().UTC()
	s.carts[sessionID] = working
	return working.Clone(), nil
}

func (s *cartStoreInMemory) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, sessionID)
	return nil
}

var _ domain.CartStore = (*cartStoreInMemory)(nil)
