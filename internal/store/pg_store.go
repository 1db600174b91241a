package store

import (
	"context"
	"errors"
	"fmt"

	perrors "github.com/mkraev/gocatalog/internal/errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

const productColumns = "id, name, slug, price, stock, created_at"

// PgStore implements ProductStore using PostgreSQL as the data store.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a new instance of ProductStore using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{db: dbp}
}

// FindByID retrieves a product by its unique identifier.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgStore) FindByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}
	return product, nil
}

// FindByTerm retrieves a product whose id or slug equals term.
// Returns ErrProductNotFound if no product matches.
func (p *PgStore) FindByTerm(ctx context.Context, term string) (*Product, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id::text = $1 OR slug = $1`, term)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by term: %w", err)
	}
	return product, nil
}

// FindByName retrieves a product by its exact name.
// Returns ErrProductNotFound if no product matches.
func (p *PgStore) FindByName(ctx context.Context, name string) (*Product, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE name = $1`, name)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by name: %w", err)
	}
	return product, nil
}

// FindByIDs retrieves products by IDs.
// It returns a slice of products, which may be shorter than ids if some do not exist.
func (p *PgStore) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to find products by IDs: %w", err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

// FindAll retrieves a page of products ordered by creation time, newest first.
// An empty search matches every product. position() keeps the search a
// literal substring match, so LIKE metacharacters in the term carry no
// special meaning.
func (p *PgStore) FindAll(ctx context.Context, params FindAllParams) ([]Product, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE $1 = '' OR position($1 in id::text) > 0 OR position($1 in name) > 0
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		params.Search, params.Limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find all products: %w", err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

// Count returns the number of products matching the search filter.
func (p *PgStore) Count(ctx context.Context, search string) (int64, error) {
	var count int64
	err := p.db.QueryRow(ctx,
		`SELECT count(*) FROM products
		 WHERE $1 = '' OR position($1 in id::text) > 0 OR position($1 in name) > 0`,
		search).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// Create adds a new product to the system.
// The unique constraints on name and slug are the authoritative duplicate
// guard; violations are reported as ErrDuplicateName.
func (p *PgStore) Create(ctx context.Context, params CreateParams) (*Product, error) {
	row := p.db.QueryRow(ctx,
		`INSERT INTO products (name, slug, price, stock)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+productColumns,
		params.Name, params.Slug, params.Price, params.Stock)
	product, err := scanProduct(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, perrors.ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

// Update applies a partial update: nil fields keep their current value.
// Returns ErrProductNotFound if no product exists with the given ID.
func (p *PgStore) Update(ctx context.Context, params UpdateParams) (*Product, error) {
	row := p.db.QueryRow(ctx,
		`UPDATE products
		 SET name  = COALESCE($2, name),
		     slug  = COALESCE($3, slug),
		     price = COALESCE($4, price),
		     stock = COALESCE($5, stock)
		 WHERE id = $1
		 RETURNING `+productColumns,
		params.ID, params.Name, params.Slug, params.Price, params.Stock)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		if isUniqueViolation(err) {
			return nil, perrors.ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	return product, nil
}

// DeleteByID removes a product by its unique identifier and returns the
// pre-deletion snapshot. Returns ErrProductNotFound if no product exists.
func (p *PgStore) DeleteByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	row := p.db.QueryRow(ctx,
		`DELETE FROM products WHERE id = $1 RETURNING `+productColumns, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, perrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to delete product by ID: %w", err)
	}
	return product, nil
}

// DecrementStock applies all entries inside a single transaction using
// conditional updates. A decrement only matches when enough stock remains,
// so concurrent batches can never drive stock below zero; any miss rolls
// back the whole batch.
func (p *PgStore) DecrementStock(ctx context.Context, entries []StockEntry) error {
	return p.withTransaction(ctx, func(tx pgx.Tx) error {
		for _, entry := range entries {
			tag, err := tx.Exec(ctx,
				`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
				entry.ID, entry.Quantity)
			if err != nil {
				return fmt.Errorf("failed to decrement stock for product %s: %w", entry.ID, err)
			}
			if tag.RowsAffected() == 0 {
				var exists bool
				if err := tx.QueryRow(ctx,
					`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, entry.ID).Scan(&exists); err != nil {
					return fmt.Errorf("failed to check product %s: %w", entry.ID, err)
				}
				if !exists {
					return fmt.Errorf("product %s: %w", entry.ID, perrors.ErrProductNotFound)
				}
				return fmt.Errorf("product %s: %w", entry.ID, perrors.ErrInsufficientStock)
			}
		}
		return nil
	})
}

// withTransaction runs fn inside a transaction, committing on success and
// rolling back on error.
func (p *PgStore) withTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("failed to rollback transaction: %w", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	var product Product
	err := row.Scan(&product.ID, &product.Name, &product.Slug, &product.Price, &product.Stock, &product.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	products := make([]Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}
	return products, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
