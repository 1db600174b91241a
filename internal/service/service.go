// Package service provides the implementation of product-related business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	perrors "github.com/mkraev/gocatalog/internal/errors"
	"github.com/mkraev/gocatalog/internal/store"

	"github.com/google/uuid"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// ProductService defines the methods for managing the product catalog.
// It abstracts the underlying business logic and data access.
type ProductService interface {
	// Create adds a new product, deriving its slug from the name.
	// Returns ErrDuplicateName if a product with the same name exists.
	Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error)

	// FindAll returns one page of products ordered by creation time,
	// newest first, optionally filtered by a substring search over id or name.
	FindAll(ctx context.Context, query PageQuery) (*ProductPageDto, error)

	// FindOne retrieves a single product whose id or slug equals term.
	// Returns ErrProductNotFound if no product matches.
	FindOne(ctx context.Context, term string) (*ProductDto, error)

	// Update applies a partial update, recomputing the slug when the name changes.
	// Returns ErrProductNotFound if no product exists with the given ID.
	Update(ctx context.Context, id uuid.UUID, product ProductUpdateDto) (*ProductDto, error)

	// DeleteByID removes a product and returns its pre-deletion snapshot.
	// Returns ErrProductNotFound if no product exists with the given ID.
	DeleteByID(ctx context.Context, id uuid.UUID) (*ProductDto, error)

	// ValidateIDs checks that every deduplicated id resolves to a product
	// and returns the resolved products. Returns ErrValidationFailed if at
	// least one id has no matching product.
	ValidateIDs(ctx context.Context, ids []uuid.UUID) ([]ProductDto, error)

	// UpdateStock decrements stock for each entry as one all-or-nothing
	// batch. Returns ErrInsufficientStock or ErrProductNotFound without
	// applying any change when the batch cannot be satisfied in full.
	UpdateStock(ctx context.Context, entries []StockEntryDto) error
}

// Service implements ProductService and provides methods to manage products.
type Service struct {
	repository store.ProductStore
}

// NewService creates a new instance of ProductService with the provided repository.
func NewService(repo store.ProductStore) *Service {
	return &Service{
		repository: repo,
	}
}

// ProductCreateDto represents the data transfer object for creating a new product.
type ProductCreateDto struct {
	Name  string `json:"name"  validate:"required,max=100"`
	Price int64  `json:"price" validate:"min=0"`
	Stock int32  `json:"stock" validate:"min=0"`
}

// ProductUpdateDto represents a partial update: nil fields are left unchanged.
type ProductUpdateDto struct {
	Name  *string `json:"name,omitempty"  validate:"omitempty,max=100"`
	Price *int64  `json:"price,omitempty" validate:"omitempty,min=0"`
	Stock *int32  `json:"stock,omitempty" validate:"omitempty,min=0"`
}

// ProductDto represents the data transfer object for a product.
type ProductDto struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Price     int64  `json:"price"`
	Stock     int32  `json:"stock"`
	CreatedAt string `json:"createdAt"`
}

// PageQuery holds pagination and search parameters for FindAll.
type PageQuery struct {
	Page   int32
	Limit  int32
	Search string
}

// PageMetaDto describes the position of a page within the filtered result set.
type PageMetaDto struct {
	Total    int64 `json:"total"`
	Page     int32 `json:"page"`
	LastPage int64 `json:"lastPage"`
}

// ProductPageDto is one page of products plus its pagination metadata.
type ProductPageDto struct {
	Products []ProductDto `json:"products"`
	Meta     PageMetaDto  `json:"meta"`
}

// StockEntryDto pairs a product id with the quantity to remove from its stock.
type StockEntryDto struct {
	ID       uuid.UUID `json:"id"`
	Quantity int32     `json:"quantity"`
}

// Create adds a new product and returns it as a ProductDto.
// The name pre-check gives a friendly error on the common path; the store's
// unique constraint remains the authoritative guard against races.
func (s *Service) Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error) {
	if product.Price < 0 || product.Stock < 0 {
		return nil, fmt.Errorf("price and stock must not be negative: %w", perrors.ErrInvalidInput)
	}

	_, err := s.repository.FindByName(ctx, product.Name)
	if err == nil {
		return nil, fmt.Errorf("name %q: %w", product.Name, perrors.ErrDuplicateName)
	}
	if !errors.Is(err, perrors.ErrProductNotFound) {
		return nil, fmt.Errorf("failed to check product name: %w", err)
	}

	created, err := s.repository.Create(ctx, store.CreateParams{
		Name:  product.Name,
		Slug:  deriveSlug(product.Name),
		Price: product.Price,
		Stock: product.Stock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return toDto(created), nil
}

// FindAll retrieves one page of products and the pagination metadata.
// Page and limit default to 1 and 10; a non-positive limit is rejected
// since it would break the last-page computation.
func (s *Service) FindAll(ctx context.Context, query PageQuery) (*ProductPageDto, error) {
	if query.Page == 0 {
		query.Page = defaultPage
	}
	if query.Limit == 0 {
		query.Limit = defaultLimit
	}
	if query.Page < 1 || query.Limit < 1 {
		return nil, fmt.Errorf("page and limit must be positive: %w", perrors.ErrInvalidInput)
	}

	total, err := s.repository.Count(ctx, query.Search)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	// The offset is widened before multiplying so extreme page numbers
	// cannot overflow into a negative value.
	products, err := s.repository.FindAll(ctx, store.FindAllParams{
		Offset: (int64(query.Page) - 1) * int64(query.Limit),
		Limit:  query.Limit,
		Search: query.Search,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}

	dtos := make([]ProductDto, len(products))
	for i, item := range products {
		dtos[i] = *toDto(&item)
	}

	return &ProductPageDto{
		Products: dtos,
		Meta: PageMetaDto{
			Total:    total,
			Page:     query.Page,
			LastPage: (total + int64(query.Limit) - 1) / int64(query.Limit),
		},
	}, nil
}

// FindOne retrieves a product by id or slug and returns it as a ProductDto.
// Returns ErrProductNotFound if no product matches.
func (s *Service) FindOne(ctx context.Context, term string) (*ProductDto, error) {
	product, err := s.repository.FindByTerm(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by term %q: %w", term, err)
	}
	return toDto(product), nil
}

// Update modifies an existing product's details and returns the updated
// product as a ProductDto. The slug is recomputed only when the name changes.
func (s *Service) Update(ctx context.Context, id uuid.UUID, product ProductUpdateDto) (*ProductDto, error) {
	if product.Price != nil && *product.Price < 0 {
		return nil, fmt.Errorf("price must not be negative: %w", perrors.ErrInvalidInput)
	}
	if product.Stock != nil && *product.Stock < 0 {
		return nil, fmt.Errorf("stock must not be negative: %w", perrors.ErrInvalidInput)
	}

	params := store.UpdateParams{
		ID:    id,
		Name:  product.Name,
		Price: product.Price,
		Stock: product.Stock,
	}
	if product.Name != nil {
		slug := deriveSlug(*product.Name)
		params.Slug = &slug
	}

	updated, err := s.repository.Update(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update product with ID %s: %w", id, err)
	}
	return toDto(updated), nil
}

// DeleteByID deletes a product by its ID and returns the pre-deletion snapshot.
// Returns ErrProductNotFound if no product exists with the given ID.
func (s *Service) DeleteByID(ctx context.Context, id uuid.UUID) (*ProductDto, error) {
	deleted, err := s.repository.DeleteByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete product with ID %s: %w", id, err)
	}
	return toDto(deleted), nil
}

// ValidateIDs deduplicates ids, fetches the matching products in one batch
// and succeeds only if every deduplicated id resolved to a product.
func (s *Service) ValidateIDs(ctx context.Context, ids []uuid.UUID) ([]ProductDto, error) {
	deduped := dedupe(ids)

	products, err := s.repository.FindByIDs(ctx, deduped)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	if len(products) != len(deduped) {
		missing := missingIDs(deduped, products)
		return nil, fmt.Errorf("products %v: %w", missing, perrors.ErrValidationFailed)
	}

	dtos := make([]ProductDto, len(products))
	for i, item := range products {
		dtos[i] = *toDto(&item)
	}
	return dtos, nil
}

// UpdateStock decrements stock for every entry as one all-or-nothing batch.
// Pairing is keyed by product id, never by position, and the store applies
// the batch atomically so a failed entry leaves every product unchanged.
func (s *Service) UpdateStock(ctx context.Context, entries []StockEntryDto) error {
	if len(entries) == 0 {
		return fmt.Errorf("stock update requires at least one entry: %w", perrors.ErrInvalidInput)
	}

	decrements := make([]store.StockEntry, len(entries))
	for i, entry := range entries {
		if entry.Quantity < 1 {
			return fmt.Errorf("quantity for product %s must be positive: %w", entry.ID, perrors.ErrInvalidInput)
		}
		decrements[i] = store.StockEntry{ID: entry.ID, Quantity: entry.Quantity}
	}

	if err := s.repository.DecrementStock(ctx, decrements); err != nil {
		return fmt.Errorf("failed to update product stock: %w", err)
	}
	return nil
}

// toDto converts a store.Product to a ProductDto.
func toDto(product *store.Product) *ProductDto {
	return &ProductDto{
		ID:        product.ID.String(),
		Name:      product.Name,
		Slug:      product.Slug,
		Price:     product.Price,
		Stock:     product.Stock,
		CreatedAt: product.CreatedAt.Format(time.RFC3339),
	}
}

// dedupe returns ids with duplicates removed, keeping first occurrences.
func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	deduped := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}
	return deduped
}

// missingIDs returns the requested ids that have no matching product.
func missingIDs(ids []uuid.UUID, products []store.Product) []uuid.UUID {
	found := make(map[uuid.UUID]struct{}, len(products))
	for _, p := range products {
		found[p.ID] = struct{}{}
	}
	missing := make([]uuid.UUID, 0)
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
