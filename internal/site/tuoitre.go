package site

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/IshaanNene/hotnews/internal/parser"
	"github.com/IshaanNene/hotnews/internal/types"
)

const (
	TuoiTreName = "tuoitre"

	tuoitreBaseURL    = "https://tuoitre.vn"
	tuoitreCommentAPI = "https://id.tuoitre.vn/api/getlist-comment.api"
	tuoitreDayLayout  = "02-01-2006"
	tuoitreSortByLike = "2"

	// The comment API pages until it returns an empty list. The cap stops a
	// misbehaving thread from paging forever.
	tuoitreMaxCommentPages = 500

	tuoitreItemXPath   = "//li[contains(concat(' ', normalize-space(@class), ' '), ' news-item ')]"
	tuoitreThreadXPath = "//section[contains(concat(' ', normalize-space(@class), ' '), ' comment-wrapper ')]"
)

// TuoiTre walks the by-day timeline for every date the window touches and
// scores articles by paging through the comment API until it runs dry.
type TuoiTre struct {
	ep endpoints
}

// NewTuoiTre builds the TuoiTre adapter.
func NewTuoiTre(cfg Config) (*TuoiTre, error) {
	ep, err := resolveEndpoints(cfg, tuoitreBaseURL, tuoitreCommentAPI)
	if err != nil {
		return nil, fmt.Errorf("tuoitre: %w", err)
	}
	return &TuoiTre{ep: ep}, nil
}

func (t *TuoiTre) Name() string { return TuoiTreName }

func (t *TuoiTre) AllowedDomains() []string {
	return append([]string(nil), t.ep.domains...)
}

func (t *TuoiTre) SeedRequests(w Window) ([]*types.Request, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	days := w.Days()
	reqs := make([]*types.Request, 0, len(days))
	for _, day := range days {
		cursor := types.Cursor{Key: day.Format(tuoitreDayLayout), Page: 1}
		req, err := types.NewRequest(t.listingURL(cursor), types.StageListing)
		if err != nil {
			return nil, err
		}
		req.State.Cursor = cursor
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (t *TuoiTre) ParseListing(resp *types.Response) (Listing, error) {
	root, err := resp.Node()
	if err != nil {
		return Listing{}, parseErr(resp, "", err)
	}
	items, err := parser.Nodes(root, tuoitreItemXPath)
	if err != nil {
		return Listing{}, parseErr(resp, tuoitreItemXPath, err)
	}

	var listing Listing
	for _, item := range items {
		href, _ := parser.FirstXPath(item, parser.Rule{Selector: ".//a", Attribute: "href"})
		title, _ := parser.FirstXPath(item, parser.Rule{Selector: ".//a", Attribute: "title"})
		if href == "" || title == "" {
			continue
		}
		link, ok := parser.ResolveURL(t.ep.base, href)
		if !ok {
			continue
		}
		listing.Stubs = append(listing.Stubs, types.ArticleStub{Title: title, URL: link})
	}

	if len(items) == 0 {
		return listing, nil
	}

	cursor := resp.Request.State.Cursor
	cursor.Page++
	next, err := resp.Request.Follow(t.listingURL(cursor), types.StageListing, types.ChainState{Cursor: cursor})
	if err != nil {
		return Listing{}, parseErr(resp, "", err)
	}
	listing.Next = next
	return listing, nil
}

func (t *TuoiTre) ParseArticlePage(resp *types.Response, stub types.ArticleStub) (*types.Request, error) {
	root, err := resp.Node()
	if err != nil {
		return nil, parseErr(resp, "", err)
	}

	objectID, err := parser.FirstXPath(root, parser.Rule{Selector: tuoitreThreadXPath, Attribute: "data-objectid"})
	if err != nil {
		return nil, parseErr(resp, tuoitreThreadXPath, err)
	}
	objectType, err := parser.FirstXPath(root, parser.Rule{Selector: tuoitreThreadXPath, Attribute: "data-objecttype"})
	if err != nil {
		return nil, parseErr(resp, tuoitreThreadXPath, err)
	}
	if objectID == "" || objectType == "" {
		return nil, nil
	}

	thread := types.Thread{ObjectID: objectID, ObjectType: objectType}
	state := types.ChainState{Stub: stub, Thread: thread, CommentPage: 1}
	next, err := resp.Request.Follow(t.commentURL(thread, 1), types.StageComments, state)
	if err != nil {
		return nil, parseErr(resp, tuoitreThreadXPath, err)
	}
	return next, nil
}

// tuoitreEnvelope is the outer comment API response. Data holds the comment
// list as a JSON-encoded string.
type tuoitreEnvelope struct {
	Data *string `json:"Data"`
}

type tuoitreComment struct {
	Reactions map[string]int `json:"reactions"`
}

func (t *TuoiTre) ParseCommentPage(resp *types.Response, state types.ChainState) (Outcome, error) {
	var envelope tuoitreEnvelope
	if err := resp.JSON(&envelope); err != nil {
		return Outcome{}, parseErr(resp, "Data", err)
	}

	raw := "[]"
	if envelope.Data != nil && strings.TrimSpace(*envelope.Data) != "" {
		raw = *envelope.Data
	}
	var comments []tuoitreComment
	if err := json.Unmarshal([]byte(raw), &comments); err != nil {
		return Outcome{}, parseErr(resp, "Data", fmt.Errorf("decode comment list: %w", err))
	}

	if len(comments) == 0 {
		return Done(state.RunningLikes), nil
	}

	running := state.RunningLikes
	for i, c := range comments {
		for name, n := range c.Reactions {
			if n < 0 {
				return Outcome{}, parseErr(resp, "Data.reactions", fmt.Errorf("comment %d: negative %s count %d", i, name, n))
			}
			running += n
		}
	}

	// A thread that never ends is dropped instead of scored with a partial total.
	if state.CommentPage >= tuoitreMaxCommentPages {
		return Outcome{}, parseErr(resp, "Data", fmt.Errorf("comment thread exceeds %d pages", tuoitreMaxCommentPages))
	}

	page := state.CommentPage + 1
	nextState := types.ChainState{
		Stub:         state.Stub,
		Thread:       state.Thread,
		CommentPage:  page,
		RunningLikes: running,
	}
	next, err := resp.Request.Follow(t.commentURL(state.Thread, page), types.StageComments, nextState)
	if err != nil {
		return Outcome{}, parseErr(resp, "", err)
	}
	return Continue(next), nil
}

func (t *TuoiTre) listingURL(c types.Cursor) string {
	return fmt.Sprintf("%s/timeline-xem-theo-ngay/0/%s/trang-%d.htm",
		strings.TrimRight(t.ep.base.String(), "/"), c.Key, c.Page)
}

func (t *TuoiTre) commentURL(th types.Thread, page int) string {
	u := *t.ep.commentAPI
	q := u.Query()
	q.Set("pageindex", strconv.Itoa(page))
	q.Set("objId", th.ObjectID)
	q.Set("objType", th.ObjectType)
	q.Set("sort", tuoitreSortByLike)
	u.RawQuery = q.Encode()
	return u.String()
}
