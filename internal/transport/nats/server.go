// Package nats exposes the product catalog as NATS request/reply operations.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	perrors "github.com/mkraev/gocatalog/internal/errors"
	"github.com/mkraev/gocatalog/internal/service"
	"github.com/mkraev/gocatalog/pkg/web"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
)

// QueueGroup is the queue group shared by all catalog service instances, so
// each request is delivered to exactly one instance.
const QueueGroup = "catalog"

// Subjects of the RPC operations. They match the message patterns of the
// services that call the catalog.
const (
	SubjectCreateProduct       = "createProduct"
	SubjectFindAllProducts     = "findAllProducts"
	SubjectFindOneProduct      = "findOneProduct"
	SubjectUpdateProduct       = "updateProduct"
	SubjectRemoveProduct       = "removeProduct"
	SubjectValidateProductsIds = "validateProductsIds"
	SubjectUpdateProductStock  = "updateProductStock"
)

// Fault kinds carried in error replies. Callers map them to their own
// transport-level status codes.
const (
	KindNotFound          = "NOT_FOUND"
	KindDuplicateName     = "DUPLICATE_NAME"
	KindInsufficientStock = "INSUFFICIENT_STOCK"
	KindValidationFailed  = "VALIDATION_FAILED"
	KindInvalidInput      = "INVALID_INPUT"
	KindInternal          = "INTERNAL"
)

// handlerFunc decodes a request payload and returns the reply body.
type handlerFunc func(ctx context.Context, data []byte) (any, error)

// Server subscribes to the catalog subjects and dispatches requests to the
// product service.
type Server struct {
	service  service.ProductService
	validate *validator.Validate
	logger   *slog.Logger
	timeout  time.Duration
}

// NewServer creates a new NATS RPC server for the given product service.
// timeout bounds the handling of a single request.
func NewServer(svc service.ProductService, logger *slog.Logger, timeout time.Duration) *Server {
	return &Server{
		service:  svc,
		validate: validator.New(),
		logger:   logger.With("component", "nats"),
		timeout:  timeout,
	}
}

// Subscribe registers a queue subscription per subject on the given connection.
func (s *Server) Subscribe(nc *natsgo.Conn) error {
	handlers := map[string]handlerFunc{
		SubjectCreateProduct:       s.handleCreate,
		SubjectFindAllProducts:     s.handleFindAll,
		SubjectFindOneProduct:      s.handleFindOne,
		SubjectUpdateProduct:       s.handleUpdate,
		SubjectRemoveProduct:       s.handleRemove,
		SubjectValidateProductsIds: s.handleValidateIDs,
		SubjectUpdateProductStock:  s.handleUpdateStock,
	}
	for subject, handler := range handlers {
		if _, err := nc.QueueSubscribe(subject, QueueGroup, s.dispatch(subject, handler)); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
	}
	return nil
}

// dispatch wraps a handler with request scoping, logging and reply encoding.
func (s *Server) dispatch(subject string, handler handlerFunc) natsgo.MsgHandler {
	return func(msg *natsgo.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		ctx = web.WithRequestID(ctx, uuid.NewString())

		result, err := handler(ctx, msg.Data)
		if msg.Reply == "" {
			if err != nil {
				s.logger.ErrorContext(ctx, "request without reply subject failed", "subject", subject, "error", err)
			}
			return
		}

		var payload []byte
		if err != nil {
			s.logger.WarnContext(ctx, "request failed", "subject", subject, "error", err)
			payload = s.encodeFault(ctx, err)
		} else {
			payload, err = json.Marshal(result)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to encode reply", "subject", subject, "error", err)
				payload = s.encodeFault(ctx, err)
			}
		}
		if err := msg.Respond(payload); err != nil {
			s.logger.ErrorContext(ctx, "failed to send reply", "subject", subject, "error", err)
		}
	}
}

// messageResponse is the reply body of the mutating CRUD operations.
type messageResponse struct {
	Message string             `json:"message"`
	Product service.ProductDto `json:"product"`
}

// productResponse is the reply body of findOneProduct.
type productResponse struct {
	Product service.ProductDto `json:"product"`
}

func (s *Server) handleCreate(ctx context.Context, data []byte) (any, error) {
	var dto service.ProductCreateDto
	if err := s.decode(data, &dto); err != nil {
		return nil, err
	}
	product, err := s.service.Create(ctx, dto)
	if err != nil {
		return nil, err
	}
	return messageResponse{Message: "product created", Product: *product}, nil
}

// findAllRequest carries optional pagination parameters. Pointers distinguish
// absent values (defaulted) from explicit zero values (rejected).
type findAllRequest struct {
	Page   *int32 `json:"page,omitempty"  validate:"omitempty,gt=0"`
	Limit  *int32 `json:"limit,omitempty" validate:"omitempty,gt=0"`
	Search string `json:"search,omitempty"`
}

func (s *Server) handleFindAll(ctx context.Context, data []byte) (any, error) {
	var req findAllRequest
	if len(data) > 0 {
		if err := s.decode(data, &req); err != nil {
			return nil, err
		}
	}
	query := service.PageQuery{Search: req.Search}
	if req.Page != nil {
		query.Page = *req.Page
	}
	if req.Limit != nil {
		query.Limit = *req.Limit
	}
	return s.service.FindAll(ctx, query)
}

func (s *Server) handleFindOne(ctx context.Context, data []byte) (any, error) {
	var term string
	if err := json.Unmarshal(data, &term); err != nil || term == "" {
		return nil, fmt.Errorf("term must be a non-empty string: %w", perrors.ErrInvalidInput)
	}
	product, err := s.service.FindOne(ctx, term)
	if err != nil {
		return nil, err
	}
	return productResponse{Product: *product}, nil
}

// updateRequest carries the product id plus the partial update fields.
type updateRequest struct {
	ID string `json:"id" validate:"required,uuid"`
	service.ProductUpdateDto
}

func (s *Server) handleUpdate(ctx context.Context, data []byte) (any, error) {
	var req updateRequest
	if err := s.decode(data, &req); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid product ID %q: %w", req.ID, perrors.ErrInvalidInput)
	}
	product, err := s.service.Update(ctx, id, req.ProductUpdateDto)
	if err != nil {
		return nil, err
	}
	return messageResponse{Message: "product updated", Product: *product}, nil
}

func (s *Server) handleRemove(ctx context.Context, data []byte) (any, error) {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("id must be a string: %w", perrors.ErrInvalidInput)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid product ID %q: %w", raw, perrors.ErrInvalidInput)
	}
	product, err := s.service.DeleteByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return messageResponse{Message: "product deleted", Product: *product}, nil
}

func (s *Server) handleValidateIDs(ctx context.Context, data []byte) (any, error) {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ids must be an array of strings: %w", perrors.ErrInvalidInput)
	}
	ids := make([]uuid.UUID, len(raw))
	for i, item := range raw {
		id, err := uuid.Parse(item)
		if err != nil {
			return nil, fmt.Errorf("invalid product ID %q: %w", item, perrors.ErrInvalidInput)
		}
		ids[i] = id
	}
	return s.service.ValidateIDs(ctx, ids)
}

// stockEntryRequest pairs a product id with the quantity to remove.
type stockEntryRequest struct {
	ID       string `json:"id"       validate:"required,uuid"`
	Quantity int32  `json:"quantity" validate:"required,gt=0"`
}

func (s *Server) handleUpdateStock(ctx context.Context, data []byte) (any, error) {
	var raw []stockEntryRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("entries must be an array of {id, quantity}: %w", perrors.ErrInvalidInput)
	}
	entries := make([]service.StockEntryDto, len(raw))
	for i, item := range raw {
		if err := s.validate.Struct(item); err != nil {
			return nil, fmt.Errorf("%v: %w", err, perrors.ErrInvalidInput)
		}
		id, err := uuid.Parse(item.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid product ID %q: %w", item.ID, perrors.ErrInvalidInput)
		}
		entries[i] = service.StockEntryDto{ID: id, Quantity: item.Quantity}
	}
	if err := s.service.UpdateStock(ctx, entries); err != nil {
		return nil, err
	}
	return true, nil
}

// decode unmarshals and validates a request DTO.
func (s *Server) decode(data []byte, dto any) error {
	if err := json.Unmarshal(data, dto); err != nil {
		return fmt.Errorf("malformed request payload: %w", perrors.ErrInvalidInput)
	}
	if err := s.validate.Struct(dto); err != nil {
		return fmt.Errorf("%v: %w", err, perrors.ErrInvalidInput)
	}
	return nil
}

// fault is the error reply envelope.
type fault struct {
	Error faultDetail `json:"error"`
}

type faultDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// encodeFault maps a domain error to its wire representation. Unknown errors
// are reported as INTERNAL without leaking details to the caller.
func (s *Server) encodeFault(ctx context.Context, err error) []byte {
	kind := KindInternal
	message := "internal server error"
	switch {
	case errors.Is(err, perrors.ErrProductNotFound):
		kind, message = KindNotFound, err.Error()
	case errors.Is(err, perrors.ErrDuplicateName):
		kind, message = KindDuplicateName, err.Error()
	case errors.Is(err, perrors.ErrInsufficientStock):
		kind, message = KindInsufficientStock, err.Error()
	case errors.Is(err, perrors.ErrValidationFailed):
		kind, message = KindValidationFailed, err.Error()
	case errors.Is(err, perrors.ErrInvalidInput):
		kind, message = KindInvalidInput, err.Error()
	default:
		s.logger.ErrorContext(ctx, "internal error", "error", err)
	}
	payload, _ := json.Marshal(fault{Error: faultDetail{Kind: kind, Message: message}})
	return payload
}
