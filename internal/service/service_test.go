package service

import (
	"context"
	"errors"
	"testing"

	perrors "github.com/mkraev/gocatalog/internal/errors"
	"github.com/mkraev/gocatalog/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore returns the configured error from every method. It stands in
// for an unreachable database when testing error propagation.
type failingStore struct {
	err error
}

func (f *failingStore) FindByID(context.Context, uuid.UUID) (*store.Product, error) {
	return nil, f.err
}
func (f *failingStore) FindByTerm(context.Context, string) (*store.Product, error) {
	return nil, f.err
}
func (f *failingStore) FindByName(context.Context, string) (*store.Product, error) {
	return nil, f.err
}
func (f *failingStore) FindByIDs(context.Context, []uuid.UUID) ([]store.Product, error) {
	return nil, f.err
}
func (f *failingStore) FindAll(context.Context, store.FindAllParams) ([]store.Product, error) {
	return nil, f.err
}
func (f *failingStore) Count(context.Context, string) (int64, error) {
	return 0, f.err
}
func (f *failingStore) Create(context.Context, store.CreateParams) (*store.Product, error) {
	return nil, f.err
}
func (f *failingStore) Update(context.Context, store.UpdateParams) (*store.Product, error) {
	return nil, f.err
}
func (f *failingStore) DeleteByID(context.Context, uuid.UUID) (*store.Product, error) {
	return nil, f.err
}
func (f *failingStore) DecrementStock(context.Context, []store.StockEntry) error {
	return f.err
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(store.NewInMemoryStore())
}

func mustCreate(t *testing.T, svc *Service, name string, price int64, stock int32) *ProductDto {
	t.Helper()
	created, err := svc.Create(context.Background(), ProductCreateDto{Name: name, Price: price, Stock: stock})
	require.NoError(t, err)
	return created
}

func Test_Service_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("derives slug from name", func(t *testing.T) {
		// given
		svc := newTestService(t)

		// when
		created, err := svc.Create(ctx, ProductCreateDto{Name: "Ergonomic Steel Chair", Price: 4999, Stock: 12})

		// then
		require.NoError(t, err)
		assert.Equal(t, "Ergonomic Steel Chair", created.Name)
		assert.Equal(t, "ergonomic-steel-chair", created.Slug)
		assert.Equal(t, int64(4999), created.Price)
		assert.Equal(t, int32(12), created.Stock)
		assert.NotEmpty(t, created.ID)
		assert.NotEmpty(t, created.CreatedAt)
	})

	t.Run("rejects duplicate name", func(t *testing.T) {
		// given
		svc := newTestService(t)
		mustCreate(t, svc, "Widget", 100, 5)

		// when
		_, err := svc.Create(ctx, ProductCreateDto{Name: "Widget", Price: 200, Stock: 1})

		// then
		assert.ErrorIs(t, err, perrors.ErrDuplicateName)
	})

	t.Run("rejects negative price", func(t *testing.T) {
		// given
		svc := newTestService(t)

		// when
		_, err := svc.Create(ctx, ProductCreateDto{Name: "Widget", Price: -1, Stock: 5})

		// then
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})

	t.Run("propagates store errors", func(t *testing.T) {
		// given
		storeErr := errors.New("connection refused")
		svc := NewService(&failingStore{err: storeErr})

		// when
		_, err := svc.Create(ctx, ProductCreateDto{Name: "Widget", Price: 100, Stock: 5})

		// then
		assert.ErrorIs(t, err, storeErr)
	})
}

func Test_Service_FindOne(t *testing.T) {
	ctx := context.Background()

	t.Run("finds by id", func(t *testing.T) {
		// given
		svc := newTestService(t)
		created := mustCreate(t, svc, "Widget", 100, 5)

		// when
		found, err := svc.FindOne(ctx, created.ID)

		// then
		require.NoError(t, err)
		assert.Equal(t, created, found)
	})

	t.Run("finds by slug after create", func(t *testing.T) {
		// given
		svc := newTestService(t)
		created := mustCreate(t, svc, "Widget", 100, 5)

		// when
		found, err := svc.FindOne(ctx, "widget")

		// then
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("returns not found for unknown term", func(t *testing.T) {
		// given
		svc := newTestService(t)

		// when
		_, err := svc.FindOne(ctx, "no-such-product")

		// then
		assert.ErrorIs(t, err, perrors.ErrProductNotFound)
	})
}

func Test_Service_FindAll(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, svc *Service, n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			mustCreate(t, svc, "Product "+string(rune('A'+i)), int64(100*(i+1)), int32(i))
		}
	}

	t.Run("applies defaults", func(t *testing.T) {
		// given
		svc := newTestService(t)
		seed(t, svc, 25)

		// when
		page, err := svc.FindAll(ctx, PageQuery{})

		// then
		require.NoError(t, err)
		assert.Len(t, page.Products, 10)
		assert.Equal(t, int64(25), page.Meta.Total)
		assert.Equal(t, int32(1), page.Meta.Page)
		assert.Equal(t, int64(3), page.Meta.LastPage)
	})

	t.Run("last page holds the remainder", func(t *testing.T) {
		// given
		svc := newTestService(t)
		seed(t, svc, 25)

		// when
		page, err := svc.FindAll(ctx, PageQuery{Page: 3, Limit: 10})

		// then
		require.NoError(t, err)
		assert.Len(t, page.Products, 5)
		assert.Equal(t, int64(3), page.Meta.LastPage)
	})

	t.Run("page past the end is empty but keeps metadata", func(t *testing.T) {
		// given
		svc := newTestService(t)
		seed(t, svc, 5)

		// when
		page, err := svc.FindAll(ctx, PageQuery{Page: 4, Limit: 2})

		// then
		require.NoError(t, err)
		assert.Empty(t, page.Products)
		assert.Equal(t, int64(5), page.Meta.Total)
		assert.Equal(t, int64(3), page.Meta.LastPage)
	})

	t.Run("orders newest first", func(t *testing.T) {
		// given
		svc := newTestService(t)
		mustCreate(t, svc, "Oldest", 100, 1)
		newest := mustCreate(t, svc, "Newest", 100, 1)

		// when
		page, err := svc.FindAll(ctx, PageQuery{})

		// then
		require.NoError(t, err)
		require.Len(t, page.Products, 2)
		assert.Equal(t, newest.ID, page.Products[0].ID)
	})

	t.Run("search narrows the result set", func(t *testing.T) {
		// given
		svc := newTestService(t)
		mustCreate(t, svc, "Steel Chair", 100, 1)
		mustCreate(t, svc, "Steel Table", 100, 1)
		mustCreate(t, svc, "Oak Table", 100, 1)

		// when
		all, err := svc.FindAll(ctx, PageQuery{})
		require.NoError(t, err)
		filtered, err := svc.FindAll(ctx, PageQuery{Search: "Steel"})

		// then
		require.NoError(t, err)
		assert.Equal(t, int64(2), filtered.Meta.Total)
		assert.Less(t, filtered.Meta.Total, all.Meta.Total)
		for _, p := range filtered.Products {
			assert.Contains(t, p.Name, "Steel")
		}
	})

	t.Run("search matches id fragments", func(t *testing.T) {
		// given
		svc := newTestService(t)
		created := mustCreate(t, svc, "Widget", 100, 1)

		// when
		page, err := svc.FindAll(ctx, PageQuery{Search: created.ID[:8]})

		// then
		require.NoError(t, err)
		ids := make([]string, 0, len(page.Products))
		for _, p := range page.Products {
			ids = append(ids, p.ID)
		}
		assert.Contains(t, ids, created.ID)
	})

	t.Run("extreme page numbers return an empty page", func(t *testing.T) {
		// given
		svc := newTestService(t)
		seed(t, svc, 5)

		// when: (page-1)*limit exceeds the int32 range
		page, err := svc.FindAll(ctx, PageQuery{Page: 1 << 26, Limit: 100})

		// then
		require.NoError(t, err)
		assert.Empty(t, page.Products)
		assert.Equal(t, int64(5), page.Meta.Total)
	})

	t.Run("rejects non-positive page and limit", func(t *testing.T) {
		testCases := []struct {
			name  string
			query PageQuery
		}{
			{name: "negative page", query: PageQuery{Page: -1, Limit: 10}},
			{name: "negative limit", query: PageQuery{Page: 1, Limit: -5}},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				svc := newTestService(t)
				_, err := svc.FindAll(ctx, tc.query)
				assert.ErrorIs(t, err, perrors.ErrInvalidInput)
			})
		}
	})
}

func Test_Service_Update(t *testing.T) {
	ctx := context.Background()
	strPtr := func(s string) *string { return &s }
	i64Ptr := func(i int64) *int64 { return &i }

	t.Run("recomputes slug when name changes", func(t *testing.T) {
		// given
		svc := newTestService(t)
		created := mustCreate(t, svc, "Widget", 100, 5)
		id := uuid.MustParse(created.ID)

		// when
		updated, err := svc.Update(ctx, id, ProductUpdateDto{Name: strPtr("Super Widget")})

		// then
		require.NoError(t, err)
		assert.Equal(t, "Super Widget", updated.Name)
		assert.Equal(t, "super-widget", updated.Slug)
		assert.Equal(t, created.Price, updated.Price)
	})

	t.Run("keeps slug on price-only update", func(t *testing.T) {
		// given
		svc := newTestService(t)
		created := mustCreate(t, svc, "Widget", 100, 5)
		id := uuid.MustParse(created.ID)

		// when
		updated, err := svc.Update(ctx, id, ProductUpdateDto{Price: i64Ptr(250)})

		// then
		require.NoError(t, err)
		assert.Equal(t, "widget", updated.Slug)
		assert.Equal(t, int64(250), updated.Price)
	})

	t.Run("rejects negative price", func(t *testing.T) {
		// given
		svc := newTestService(t)
		created := mustCreate(t, svc, "Widget", 100, 5)

		// when
		_, err := svc.Update(ctx, uuid.MustParse(created.ID), ProductUpdateDto{Price: i64Ptr(-10)})

		// then
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})

	t.Run("returns not found for unknown id", func(t *testing.T) {
		// given
		svc := newTestService(t)

		// when
		_, err := svc.Update(ctx, uuid.New(), ProductUpdateDto{Price: i64Ptr(100)})

		// then
		assert.ErrorIs(t, err, perrors.ErrProductNotFound)
	})
}

func Test_Service_DeleteByID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the pre-deletion snapshot", func(t *testing.T) {
		// given
		svc := newTestService(t)
		created := mustCreate(t, svc, "Widget", 100, 5)

		// when
		deleted, err := svc.DeleteByID(ctx, uuid.MustParse(created.ID))

		// then
		require.NoError(t, err)
		assert.Equal(t, created, deleted)

		_, err = svc.FindOne(ctx, created.ID)
		assert.ErrorIs(t, err, perrors.ErrProductNotFound)
	})

	t.Run("returns not found on repeat deletion", func(t *testing.T) {
		// given
		svc := newTestService(t)
		created := mustCreate(t, svc, "Widget", 100, 5)
		id := uuid.MustParse(created.ID)

		_, err := svc.DeleteByID(ctx, id)
		require.NoError(t, err)

		// when
		_, err = svc.DeleteByID(ctx, id)

		// then
		assert.ErrorIs(t, err, perrors.ErrProductNotFound)
	})
}

func Test_Service_ValidateIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate ids resolve like the deduplicated list", func(t *testing.T) {
		// given
		svc := newTestService(t)
		a := uuid.MustParse(mustCreate(t, svc, "A", 100, 1).ID)
		b := uuid.MustParse(mustCreate(t, svc, "B", 100, 1).ID)

		// when
		withDuplicates, err := svc.ValidateIDs(ctx, []uuid.UUID{a, b, a, a, b})
		require.NoError(t, err)
		deduplicated, err := svc.ValidateIDs(ctx, []uuid.UUID{a, b})

		// then
		require.NoError(t, err)
		assert.Equal(t, deduplicated, withDuplicates)
		assert.Len(t, withDuplicates, 2)
	})

	t.Run("fails when any id is unknown", func(t *testing.T) {
		// given
		svc := newTestService(t)
		a := uuid.MustParse(mustCreate(t, svc, "A", 100, 1).ID)

		// when
		_, err := svc.ValidateIDs(ctx, []uuid.UUID{a, uuid.New()})

		// then
		assert.ErrorIs(t, err, perrors.ErrValidationFailed)
	})

	t.Run("empty input resolves to an empty list", func(t *testing.T) {
		// given
		svc := newTestService(t)

		// when
		products, err := svc.ValidateIDs(ctx, nil)

		// then
		require.NoError(t, err)
		assert.Empty(t, products)
	})
}

func Test_Service_UpdateStock(t *testing.T) {
	ctx := context.Background()

	stockOf := func(t *testing.T, svc *Service, id string) int32 {
		t.Helper()
		found, err := svc.FindOne(ctx, id)
		require.NoError(t, err)
		return found.Stock
	}

	t.Run("decrements every entry", func(t *testing.T) {
		// given
		svc := newTestService(t)
		a := mustCreate(t, svc, "A", 100, 10)
		b := mustCreate(t, svc, "B", 100, 2)

		// when
		err := svc.UpdateStock(ctx, []StockEntryDto{
			{ID: uuid.MustParse(a.ID), Quantity: 3},
			{ID: uuid.MustParse(b.ID), Quantity: 1},
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, int32(7), stockOf(t, svc, a.ID))
		assert.Equal(t, int32(1), stockOf(t, svc, b.ID))
	})

	t.Run("one short entry leaves the whole batch unapplied", func(t *testing.T) {
		// given
		svc := newTestService(t)
		a := mustCreate(t, svc, "A", 100, 10)
		b := mustCreate(t, svc, "B", 100, 2)

		// when
		err := svc.UpdateStock(ctx, []StockEntryDto{
			{ID: uuid.MustParse(a.ID), Quantity: 3},
			{ID: uuid.MustParse(b.ID), Quantity: 5},
		})

		// then
		assert.ErrorIs(t, err, perrors.ErrInsufficientStock)
		assert.Equal(t, int32(10), stockOf(t, svc, a.ID))
		assert.Equal(t, int32(2), stockOf(t, svc, b.ID))
	})

	t.Run("unknown product leaves the whole batch unapplied", func(t *testing.T) {
		// given
		svc := newTestService(t)
		a := mustCreate(t, svc, "A", 100, 10)

		// when
		err := svc.UpdateStock(ctx, []StockEntryDto{
			{ID: uuid.MustParse(a.ID), Quantity: 3},
			{ID: uuid.New(), Quantity: 1},
		})

		// then
		assert.ErrorIs(t, err, perrors.ErrProductNotFound)
		assert.Equal(t, int32(10), stockOf(t, svc, a.ID))
	})

	t.Run("rejects an empty batch", func(t *testing.T) {
		// given
		svc := newTestService(t)

		// when
		err := svc.UpdateStock(ctx, nil)

		// then
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})

	t.Run("rejects non-positive quantities", func(t *testing.T) {
		// given
		svc := newTestService(t)
		a := mustCreate(t, svc, "A", 100, 10)

		// when
		err := svc.UpdateStock(ctx, []StockEntryDto{{ID: uuid.MustParse(a.ID), Quantity: 0}})

		// then
		assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	})
}
