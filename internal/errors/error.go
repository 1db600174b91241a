// Package errors provides custom error types for product-related operations.
package errors

import "errors"

var (
	// ErrProductNotFound is returned when no product matches the given id or slug.
	ErrProductNotFound = errors.New("product not found")

	// ErrDuplicateName is returned when a product with the same name already exists.
	ErrDuplicateName = errors.New("product name already registered")

	// ErrInsufficientStock is returned when a stock decrement would drop stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrValidationFailed is returned when at least one id of a batch does not resolve to a product.
	ErrValidationFailed = errors.New("some products were not found")

	// ErrInvalidInput is returned for malformed or out-of-range request parameters.
	ErrInvalidInput = errors.New("invalid input")
)
