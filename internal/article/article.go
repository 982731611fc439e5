// Package article holds the scored article record and the per-site tracker
// that collects them during a crawl.
package article

import (
	"errors"
	"fmt"
)

var (
	ErrMissingTitle  = errors.New("article title is empty")
	ErrMissingURL    = errors.New("article url is empty")
	ErrNegativeLikes = errors.New("article likes are negative")
)

// Article is an article whose comment thread has been fully aggregated.
type Article struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	TotalLikes int    `json:"total_likes"`
}

// New validates and builds an Article.
func New(title, url string, totalLikes int) (Article, error) {
	switch {
	case title == "":
		return Article{}, fmt.Errorf("%w (url=%s)", ErrMissingTitle, url)
	case url == "":
		return Article{}, ErrMissingURL
	case totalLikes < 0:
		return Article{}, fmt.Errorf("%w: %d (url=%s)", ErrNegativeLikes, totalLikes, url)
	}
	return Article{Title: title, URL: url, TotalLikes: totalLikes}, nil
}

// Less orders articles by engagement, lowest first.
func (a Article) Less(other Article) bool {
	return a.TotalLikes < other.TotalLikes
}
