// Package pricing provides point-in-time price lookup for the outcome
// scorer. Implementations must return a price or a typed failure, never an
// implicit zero.
package pricing

import "context"

// Source resolves the current price of a symbol.
type Source interface {
	// CurrentPrice returns the latest traded price for symbol. Failures are
	// reported as *outcome.LookupError.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}
