package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Priority levels for request scheduling. Requests deeper in a chain are
// served first so that started chains finish before new ones fan out.
const (
	PriorityHighest = 0
	PriorityHigh    = 1
	PriorityNormal  = 2
	PriorityLow     = 3
)

// Request is a single pending fetch together with everything needed to
// resume its chain once the response arrives.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are custom HTTP headers to send with the request.
	Headers http.Header

	// Stage says which adapter step consumes the response.
	Stage Stage

	// State is the chain context carried to the next step.
	State ChainState

	// ChainID groups every request of one listing or article chain in logs.
	ChainID string

	// Priority controls scheduling order (lower = higher priority).
	Priority int

	// MaxRetries is the maximum number of retries for this request.
	MaxRetries int

	// RetryCount tracks the current retry attempt.
	RetryCount int

	// Timeout overrides the engine request timeout for this request.
	Timeout time.Duration

	// CreatedAt is when this request was created.
	CreatedAt time.Time
}

// NewRequest creates a GET request for the given stage.
func NewRequest(rawURL string, stage Stage) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, ErrInvalidURL)
	}

	return &Request{
		URL:        u,
		Method:     http.MethodGet,
		Headers:    make(http.Header),
		Stage:      stage,
		ChainID:    uuid.NewString(),
		Priority:   stage.Priority(),
		MaxRetries: 3,
		CreatedAt:  time.Now(),
	}, nil
}

// Follow creates the next request of the same chain. The chain ID is kept
// and the state is replaced.
func (r *Request) Follow(rawURL string, stage Stage, state ChainState) (*Request, error) {
	next, err := NewRequest(rawURL, stage)
	if err != nil {
		return nil, err
	}
	next.ChainID = r.ChainID
	next.State = state
	next.MaxRetries = r.MaxRetries
	return next, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Domain returns the hostname of the request URL.
func (r *Request) Domain() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Hostname()
}

// Clone creates a deep copy of the request.
func (r *Request) Clone() *Request {
	clone := *r
	if r.URL != nil {
		u := *r.URL
		clone.URL = &u
	}
	clone.Headers = r.Headers.Clone()
	return &clone
}
