package types

// Stage identifies which step of a crawl chain a request belongs to.
type Stage int

const (
	StageListing Stage = iota
	StageArticle
	StageComments
)

func (s Stage) String() string {
	switch s {
	case StageListing:
		return "listing"
	case StageArticle:
		return "article"
	case StageComments:
		return "comments"
	default:
		return "unknown"
	}
}

// Priority returns the default scheduling priority for the stage.
func (s Stage) Priority() int {
	switch s {
	case StageComments:
		return PriorityHighest
	case StageArticle:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// ArticleStub is a listing entry that has not been scored yet.
type ArticleStub struct {
	Title string
	URL   string
}

// Cursor locates a listing page: a category ID or a date, a page number,
// and for time-ranged listings the unix bounds of the range.
type Cursor struct {
	Key  string
	Page int
	From int64
	To   int64
}

// Thread identifies the comment thread of an article.
type Thread struct {
	ObjectID   string
	ObjectType string
}

// ChainState is the context a chain carries from one fetch to the next.
// Only the fields relevant to the request's stage are set.
type ChainState struct {
	Cursor       Cursor
	Stub         ArticleStub
	Thread       Thread
	CommentPage  int
	RunningLikes int
}
