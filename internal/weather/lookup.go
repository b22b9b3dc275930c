package weather

import (
	"context"
	"errors"

	"github.com/DoyleJ11/weatherboard/pkg/types"
)

var (
	// ErrLookup wraps every failure to obtain a report.
	ErrLookup = errors.New("weather lookup failed")
	// ErrMalformed marks a response that decoded but is not a usable report.
	ErrMalformed = errors.New("malformed weather response")
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// Lookup resolves a free-form location query ("lat,lon" or a place name)
// to current conditions.
type Lookup interface {
	Current(ctx context.Context, location string) (types.Report, error)
}

// LookupFunc adapts a plain function to Lookup.
type LookupFunc func(ctx context.Context, location string) (types.Report, error)

func (f LookupFunc) Current(ctx context.Context, location string) (types.Report, error) {
	return f(ctx, location)
}
