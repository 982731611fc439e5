// Package fetcher performs the HTTP requests of a crawl and classifies their
// failures for the engine's retry policy.
package fetcher

import (
	"context"

	"github.com/IshaanNene/hotnews/internal/types"
)

// Fetcher retrieves one request. A non-nil error is always a
// *types.FetchError.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL. Only 2xx
	// responses are returned without error.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error
}
