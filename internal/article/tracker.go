package article

import (
	"sort"
	"sync"
)

// Tracker collects the articles completed by one site crawl.
// It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	articles []Article
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{articles: make([]Article, 0, 256)}
}

// Add appends an article.
func (t *Tracker) Add(a Article) {
	t.mu.Lock()
	t.articles = append(t.articles, a)
	t.mu.Unlock()
}

// Len returns the number of articles added so far.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.articles)
}

// Top returns at most n articles, most liked first. Articles with equal
// likes keep the order in which they were added. A negative n returns all.
func (t *Tracker) Top(n int) []Article {
	t.mu.Lock()
	sorted := make([]Article, len(t.articles))
	copy(sorted, t.articles)
	t.mu.Unlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[j].Less(sorted[i])
	})

	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
