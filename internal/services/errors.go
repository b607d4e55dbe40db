package services

import (
	"errors"

	"go.opentelemetry.io/otel"
)

var (
	tracer = otel.Tracer("reboul-checkout")
	meter  = otel.Meter("reboul-checkout")
)

var (
	// ErrNoValidItems means the cart partitioned into zero non-empty buckets.
	ErrNoValidItems = errors.New("no valid items in cart")
	// ErrNoReservations means every item in a reservation batch failed.
	ErrNoReservations = errors.New("no reservations could be made")
	// ErrNoStockUpdates means every item in a stock commit batch failed.
	ErrNoStockUpdates = errors.New("no stock updates could be made")
	// ErrOrderNotFound means no order matches the given reference.
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidTransferAmount means the computed settlement amount is not
	// positive.
	ErrInvalidTransferAmount = errors.New("invalid transfer amount")
	// ErrUnattributableTransfer means the session's line items exist but none
	// could be attributed to The Corner even though its metadata says Corner
	// items are present. The service refuses to estimate in that case.
	ErrUnattributableTransfer = errors.New("cannot attribute line items to a store")
)
