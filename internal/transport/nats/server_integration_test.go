package nats

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mkraev/gocatalog/internal/service"
	"github.com/mkraev/gocatalog/internal/store"

	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/nats"
)

const skipIntegrationTests = "CATALOG_SVC_SKIP_INTEGRATION_TESTS"
const natsImg = "nats:2.11.6-alpine"

const requestTimeout = 5 * time.Second

// RPCSuite exercises the catalog subjects end to end over a real NATS server,
// with the service backed by the in-memory store.
type RPCSuite struct {
	suite.Suite
	ctx           context.Context
	logger        *slog.Logger
	natsContainer *nats.NATSContainer
	nc            *natsgo.Conn
}

func (s *RPCSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var err error
	s.natsContainer, err = nats.Run(s.ctx, natsImg)
	require.NoError(s.T(), err, "Failed to run NATS container")

	natsURL, err := s.natsContainer.ConnectionString(s.ctx)
	require.NoError(s.T(), err, "Failed to get NATS connection string")

	s.nc, err = natsgo.Connect(natsURL)
	require.NoError(s.T(), err, "Failed to connect to NATS")
}

func (s *RPCSuite) TearDownSuite() {
	if s.nc != nil {
		s.nc.Close()
	}
	if err := testcontainers.TerminateContainer(s.natsContainer); err != nil {
		s.logger.Error("Failed to terminate NATS container", "error", err)
	}
}

// SetupTest rebuilds the server on a fresh store and resubscribes, so every
// test starts with an empty catalog. Subscriptions from earlier tests are
// drained via a dedicated connection per test.
func (s *RPCSuite) SetupTest() {
	svc := service.NewService(store.NewInMemoryStore())
	srv := NewServer(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), requestTimeout)

	natsURL, err := s.natsContainer.ConnectionString(s.ctx)
	require.NoError(s.T(), err)
	nc, err := natsgo.Connect(natsURL)
	require.NoError(s.T(), err)
	s.T().Cleanup(nc.Close)

	require.NoError(s.T(), srv.Subscribe(nc))
	require.NoError(s.T(), nc.Flush())
}

func TestRPCIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(RPCSuite))
}

// request sends a JSON payload to a subject and decodes the reply into out.
func (s *RPCSuite) request(subject string, payload any, out any) {
	s.T().Helper()
	data, err := json.Marshal(payload)
	require.NoError(s.T(), err)
	msg, err := s.nc.Request(subject, data, requestTimeout)
	require.NoError(s.T(), err, "request to %s failed", subject)
	require.NoError(s.T(), json.Unmarshal(msg.Data, out), "reply was: %s", msg.Data)
}

// requestFault sends a JSON payload and expects an error reply.
func (s *RPCSuite) requestFault(subject string, payload any) fault {
	s.T().Helper()
	data, err := json.Marshal(payload)
	require.NoError(s.T(), err)
	msg, err := s.nc.Request(subject, data, requestTimeout)
	require.NoError(s.T(), err, "request to %s failed", subject)

	var f fault
	require.NoError(s.T(), json.Unmarshal(msg.Data, &f))
	require.NotEmpty(s.T(), f.Error.Kind, "expected a fault, reply was: %s", msg.Data)
	return f
}

func (s *RPCSuite) createProduct(name string, price int64, stock int32) service.ProductDto {
	s.T().Helper()
	var reply messageResponse
	s.request(SubjectCreateProduct, service.ProductCreateDto{Name: name, Price: price, Stock: stock}, &reply)
	require.NotEmpty(s.T(), reply.Product.ID)
	return reply.Product
}

func (s *RPCSuite) TestCreateAndFindBySlug() {
	// given
	created := s.createProduct("Ergonomic Steel Chair", 4999, 12)
	require.Equal(s.T(), "ergonomic-steel-chair", created.Slug)

	// when
	var reply productResponse
	s.request(SubjectFindOneProduct, created.Slug, &reply)

	// then
	assert.Equal(s.T(), created, reply.Product)
}

func (s *RPCSuite) TestFindAll() {
	// given
	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		s.createProduct(name, 100, 1)
	}

	// when
	var page service.ProductPageDto
	s.request(SubjectFindAllProducts, map[string]any{"page": 1, "limit": 2}, &page)

	// then
	assert.Len(s.T(), page.Products, 2)
	assert.Equal(s.T(), int64(3), page.Meta.Total)
	assert.Equal(s.T(), int64(2), page.Meta.LastPage)
	assert.Equal(s.T(), "Charlie", page.Products[0].Name)
}

func (s *RPCSuite) TestDuplicateNameFault() {
	// given
	s.createProduct("Widget", 100, 1)

	// when
	f := s.requestFault(SubjectCreateProduct, service.ProductCreateDto{Name: "Widget", Price: 200, Stock: 1})

	// then
	assert.Equal(s.T(), KindDuplicateName, f.Error.Kind)
}

func (s *RPCSuite) TestFindOneNotFound() {
	f := s.requestFault(SubjectFindOneProduct, "no-such-product")
	assert.Equal(s.T(), KindNotFound, f.Error.Kind)
}

func (s *RPCSuite) TestUpdateRecomputesSlug() {
	// given
	created := s.createProduct("Widget", 100, 1)

	// when
	var reply messageResponse
	s.request(SubjectUpdateProduct, map[string]any{"id": created.ID, "name": "Super Widget"}, &reply)

	// then
	assert.Equal(s.T(), "super-widget", reply.Product.Slug)
}

func (s *RPCSuite) TestRemoveReturnsSnapshot() {
	// given
	created := s.createProduct("Widget", 100, 1)

	// when
	var reply messageResponse
	s.request(SubjectRemoveProduct, created.ID, &reply)

	// then
	assert.Equal(s.T(), created, reply.Product)

	f := s.requestFault(SubjectFindOneProduct, created.ID)
	assert.Equal(s.T(), KindNotFound, f.Error.Kind)
}

func (s *RPCSuite) TestValidateProductsIds() {
	// given
	a := s.createProduct("A", 100, 1)
	b := s.createProduct("B", 100, 1)

	// when: duplicates collapse to one entry each
	var products []service.ProductDto
	s.request(SubjectValidateProductsIds, []string{a.ID, b.ID, a.ID}, &products)

	// then
	assert.Len(s.T(), products, 2)

	f := s.requestFault(SubjectValidateProductsIds, []string{a.ID, "b3b7f0f6-9f6a-4a3e-8f25-1ec3f8dfe1aa"})
	assert.Equal(s.T(), KindValidationFailed, f.Error.Kind)
}

func (s *RPCSuite) TestUpdateProductStock() {
	// given
	a := s.createProduct("A", 100, 10)
	b := s.createProduct("B", 100, 2)

	// when: the batch exceeds B's stock, nothing may change
	f := s.requestFault(SubjectUpdateProductStock, []map[string]any{
		{"id": a.ID, "quantity": 3},
		{"id": b.ID, "quantity": 5},
	})

	// then
	assert.Equal(s.T(), KindInsufficientStock, f.Error.Kind)

	var unchanged productResponse
	s.request(SubjectFindOneProduct, a.ID, &unchanged)
	assert.Equal(s.T(), int32(10), unchanged.Product.Stock)

	// when: a batch within stock succeeds and replies true
	var ok bool
	s.request(SubjectUpdateProductStock, []map[string]any{
		{"id": a.ID, "quantity": 3},
		{"id": b.ID, "quantity": 1},
	}, &ok)

	// then
	assert.True(s.T(), ok)
	var after productResponse
	s.request(SubjectFindOneProduct, a.ID, &after)
	assert.Equal(s.T(), int32(7), after.Product.Stock)
}
