package fetcher

import (
	"context"

	"github.com/IshaanNene/homestalk/internal/types"
)

// Fetcher retrieves a single page.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// TableFetcher acquires a query's bulk export as a raw table.
type TableFetcher interface {
	// FetchTable returns the export for q. A zero-row table is not an error.
	FetchTable(ctx context.Context, q *types.Query) (*types.RawTable, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}
