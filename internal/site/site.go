// Package site defines the per-site adapter contract and the two news site
// adapters. Adapters are pure: every method depends only on its arguments and
// the adapter's immutable configuration.
package site

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/IshaanNene/hotnews/internal/types"
)

// Adapter turns one site's pages into crawl requests and engagement totals.
type Adapter interface {
	// Name identifies the site, e.g. "vnexpress".
	Name() string

	// AllowedDomains lists the hosts requests may target. Subdomains of a
	// listed host are allowed too.
	AllowedDomains() []string

	// SeedRequests returns the first listing page request of every listing
	// the window covers.
	SeedRequests(w Window) ([]*types.Request, error)

	// ParseListing extracts the article stubs of a listing page and, when
	// the page was not empty, the request for the next page.
	ParseListing(resp *types.Response) (Listing, error)

	// ParseArticlePage locates the article's comment thread and returns the
	// first comment request. It returns nil, nil when the page has no thread.
	ParseArticlePage(resp *types.Response, stub types.ArticleStub) (*types.Request, error)

	// ParseCommentPage folds one page of comments into the running total.
	ParseCommentPage(resp *types.Response, state types.ChainState) (Outcome, error)
}

// Listing is the result of parsing one listing page.
type Listing struct {
	Stubs []types.ArticleStub
	Next  *types.Request
}

// Outcome is the result of parsing one comment page: either the chain is
// done with Likes, or it continues with Next.
type Outcome struct {
	Done  bool
	Likes int
	Next  *types.Request
}

// Done builds a terminal outcome.
func Done(likes int) Outcome { return Outcome{Done: true, Likes: likes} }

// Continue builds an outcome that fetches another comment page.
func Continue(next *types.Request) Outcome {
	return Outcome{Next: next, Likes: next.State.RunningLikes}
}

// Config holds the endpoints of one site. Empty fields fall back to the
// site's defaults.
type Config struct {
	BaseURL       string
	CommentAPIURL string
}

// Factory builds an adapter from its configuration.
type Factory func(cfg Config) (Adapter, error)

var registry = map[string]Factory{
	VnExpressName: func(cfg Config) (Adapter, error) { return NewVnExpress(cfg) },
	TuoiTreName:   func(cfg Config) (Adapter, error) { return NewTuoiTre(cfg) },
}

// New builds the named adapter.
func New(name string, cfg Config) (Adapter, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown site %q (known: %v)", name, Names())
	}
	return factory(cfg)
}

// Names returns the registered site names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// endpoints is the parsed form of Config shared by the adapters.
type endpoints struct {
	base       *url.URL
	commentAPI *url.URL
	domains    []string
}

func resolveEndpoints(cfg Config, defaultBase, defaultCommentAPI string) (endpoints, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBase
	}
	if cfg.CommentAPIURL == "" {
		cfg.CommentAPIURL = defaultCommentAPI
	}

	base, err := parseEndpoint(cfg.BaseURL)
	if err != nil {
		return endpoints{}, fmt.Errorf("base url: %w", err)
	}
	commentAPI, err := parseEndpoint(cfg.CommentAPIURL)
	if err != nil {
		return endpoints{}, fmt.Errorf("comment api url: %w", err)
	}

	domains := []string{base.Hostname()}
	if h := commentAPI.Hostname(); h != base.Hostname() {
		domains = append(domains, h)
	}
	return endpoints{base: base, commentAPI: commentAPI, domains: domains}, nil
}

func parseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%q: %w", raw, types.ErrInvalidURL)
	}
	return u, nil
}

func parseErr(resp *types.Response, selector string, err error) error {
	return &types.ParseError{URL: resp.URLString(), Selector: selector, Err: err}
}
