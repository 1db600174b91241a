// Package store provides an interface for product storage operations.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Product represents a product record as persisted by the store.
type Product struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	Price     int64 // price in cents
	Stock     int32
	CreatedAt time.Time
}

// FindAllParams holds pagination and search parameters for FindAll and Count.
// Search filters by case-sensitive substring over the id (as text) or the name.
type FindAllParams struct {
	Offset int64
	Limit  int32
	Search string
}

// CreateParams holds the fields required to insert a new product.
type CreateParams struct {
	Name  string
	Slug  string
	Price int64
	Stock int32
}

// UpdateParams holds a partial update: nil fields are left unchanged.
type UpdateParams struct {
	ID    uuid.UUID
	Name  *string
	Slug  *string
	Price *int64
	Stock *int32
}

// StockEntry pairs a product id with the quantity to remove from its stock.
type StockEntry struct {
	ID       uuid.UUID
	Quantity int32
}

// ProductStore is an interface for product storage operations.
// It abstracts the underlying data store, allowing for different implementations (e.g., in-memory, database).
type ProductStore interface {
	// FindByID retrieves a single product by its unique identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindByTerm retrieves a single product whose id or slug equals term.
	// Returns ErrProductNotFound if no product matches.
	FindByTerm(ctx context.Context, term string) (*Product, error)

	// FindByName retrieves a single product by its exact name.
	// Returns ErrProductNotFound if no product matches.
	FindByName(ctx context.Context, name string) (*Product, error)

	// FindByIDs retrieves products by IDs. The result is in store-defined
	// order and may be shorter than ids if some do not exist.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)

	// FindAll returns a page of products ordered by creation time, newest first.
	// Returns an empty slice if the page is beyond the last one.
	FindAll(ctx context.Context, params FindAllParams) ([]Product, error)

	// Count returns the number of products matching the search filter,
	// or the total number of products when search is empty.
	Count(ctx context.Context, search string) (int64, error)

	// Create adds a new product to the system.
	// Returns ErrDuplicateName if the name or slug is already taken.
	Create(ctx context.Context, params CreateParams) (*Product, error)

	// Update applies a partial update to an existing product.
	// Returns ErrProductNotFound if no product exists with the given ID.
	Update(ctx context.Context, params UpdateParams) (*Product, error)

	// DeleteByID removes a product and returns its pre-deletion snapshot.
	// Returns ErrProductNotFound if no product exists with the given ID.
	DeleteByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// DecrementStock atomically subtracts each entry's quantity from the
	// matching product's stock. The whole batch is applied in a single
	// transaction: if any product is missing (ErrProductNotFound) or has
	// less stock than requested (ErrInsufficientStock), no stock changes.
	DecrementStock(ctx context.Context, entries []StockEntry) error
}
