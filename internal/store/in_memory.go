package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	perrors "github.com/mkraev/gocatalog/internal/errors"

	"github.com/google/uuid"
)

// inMemory implements ProductStore using an in-memory map.
// Used by unit tests and local runs without a database.
type inMemory struct {
	mu       sync.RWMutex
	products map[uuid.UUID]Product
	seq      map[uuid.UUID]int64
	nextSeq  int64
}

// NewInMemoryStore creates a new instance of ProductStore backed by a map.
func NewInMemoryStore() ProductStore {
	return &inMemory{
		products: make(map[uuid.UUID]Product),
		seq:      make(map[uuid.UUID]int64),
	}
}

// FindByID retrieves a product by its ID.
func (s *inMemory) FindByID(_ context.Context, id uuid.UUID) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, perrors.ErrProductNotFound
	}
	return &p, nil
}

// FindByTerm retrieves a product whose id or slug equals term.
func (s *inMemory) FindByTerm(_ context.Context, term string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.ID.String() == term || p.Slug == term {
			return &p, nil
		}
	}
	return nil, perrors.ErrProductNotFound
}

// FindByName retrieves a product by its exact name.
func (s *inMemory) FindByName(_ context.Context, name string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, perrors.ErrProductNotFound
}

// FindByIDs retrieves products by IDs, skipping ids that do not exist.
func (s *inMemory) FindByIDs(_ context.Context, ids []uuid.UUID) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// FindAll returns a page of products, newest first.
func (s *inMemory) FindAll(_ context.Context, params FindAllParams) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matching(params.Search)
	if params.Offset >= int64(len(matched)) {
		return []Product{}, nil
	}
	start := int(params.Offset)
	end := start + int(params.Limit)
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

// Count returns the number of products matching the search filter.
func (s *inMemory) Count(_ context.Context, search string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.matching(search))), nil
}

// Create adds a new product with a generated id and creation timestamp.
func (s *inMemory) Create(_ context.Context, params CreateParams) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.products {
		if p.Name == params.Name || p.Slug == params.Slug {
			return nil, perrors.ErrDuplicateName
		}
	}

	product := Product{
		ID:        uuid.New(),
		Name:      params.Name,
		Slug:      params.Slug,
		Price:     params.Price,
		Stock:     params.Stock,
		CreatedAt: time.Now(),
	}
	s.nextSeq++
	s.products[product.ID] = product
	s.seq[product.ID] = s.nextSeq
	return &product, nil
}

// Update applies a partial update: nil fields keep their current value.
func (s *inMemory) Update(_ context.Context, params UpdateParams) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[params.ID]
	if !ok {
		return nil, perrors.ErrProductNotFound
	}
	if params.Name != nil {
		for id, other := range s.products {
			if id != params.ID && other.Name == *params.Name {
				return nil, perrors.ErrDuplicateName
			}
		}
		p.Name = *params.Name
	}
	if params.Slug != nil {
		p.Slug = *params.Slug
	}
	if params.Price != nil {
		p.Price = *params.Price
	}
	if params.Stock != nil {
		p.Stock = *params.Stock
	}
	s.products[params.ID] = p
	return &p, nil
}

// DeleteByID removes a product and returns its pre-deletion snapshot.
func (s *inMemory) DeleteByID(_ context.Context, id uuid.UUID) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, perrors.ErrProductNotFound
	}
	delete(s.products, id)
	delete(s.seq, id)
	return &p, nil
}

// DecrementStock validates the whole batch under the write lock before
// applying any change, giving the same all-or-nothing guarantee as the
// transactional SQL implementation.
func (s *inMemory) DecrementStock(_ context.Context, entries []StockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// pending accumulates per-product totals so duplicate ids in one batch
	// are checked against the combined quantity.
	pending := make(map[uuid.UUID]int32, len(entries))
	for _, entry := range entries {
		p, ok := s.products[entry.ID]
		if !ok {
			return perrors.ErrProductNotFound
		}
		pending[entry.ID] += entry.Quantity
		if p.Stock < pending[entry.ID] {
			return perrors.ErrInsufficientStock
		}
	}
	for id, quantity := range pending {
		p := s.products[id]
		p.Stock -= quantity
		s.products[id] = p
	}
	return nil
}

// matching returns products filtered by search, newest first.
// Caller must hold at least the read lock.
func (s *inMemory) matching(search string) []Product {
	matched := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if search == "" || strings.Contains(p.ID.String(), search) || strings.Contains(p.Name, search) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return s.seq[matched[i].ID] > s.seq[matched[j].ID]
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched
}
