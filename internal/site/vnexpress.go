package site

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/hotnews/internal/parser"
	"github.com/IshaanNene/hotnews/internal/types"
)

const (
	VnExpressName = "vnexpress"

	vnexpressBaseURL      = "https://vnexpress.net"
	vnexpressCommentAPI   = "https://usi-saas.vnexpress.net/index/get"
	vnexpressCommentLimit = 1000
	vnexpressSiteID       = "1000000"

	vnexpressItemSelector   = "article.item-news.item-news-common"
	vnexpressThreadSelector = "span.number_cmt.txt_num_comment.num_cmt_detail"
)

// Category is one section of the VnExpress taxonomy.
type Category struct {
	Name      string
	ID        int
	ClassName string
	ShareURL  string
}

var vnexpressCategories = []Category{
	{Name: "Thời sự", ID: 1001005, ClassName: "thoisu", ShareURL: "/thoi-su"},
	{Name: "Góc nhìn", ID: 1003450, ClassName: "gocnhin", ShareURL: "/goc-nhin"},
	{Name: "Thế giới", ID: 1001002, ClassName: "thegioi", ShareURL: "/the-gioi"},
	{Name: "Video", ID: 1003834, ClassName: "video", ShareURL: "https://video.vnexpress.net"},
	{Name: "Podcasts", ID: 1004685, ClassName: "podcasts", ShareURL: "/podcast"},
	{Name: "Kinh doanh", ID: 1003159, ClassName: "kinhdoanh", ShareURL: "/kinh-doanh"},
	{Name: "Bất động sản", ID: 1005628, ClassName: "kinhdoanh", ShareURL: "/bat-dong-san"},
	{Name: "Khoa học", ID: 1001009, ClassName: "khoahoc", ShareURL: "/khoa-hoc"},
	{Name: "Giải trí", ID: 1002691, ClassName: "giaitri", ShareURL: "/giai-tri"},
	{Name: "Thể thao", ID: 1002565, ClassName: "thethao", ShareURL: "/the-thao"},
	{Name: "Pháp luật", ID: 1001007, ClassName: "phapluat", ShareURL: "/phap-luat"},
	{Name: "Giáo dục", ID: 1003497, ClassName: "giaoduc", ShareURL: "/giao-duc"},
	{Name: "Sức khỏe", ID: 1003750, ClassName: "suckhoe", ShareURL: "/suc-khoe"},
	{Name: "Đời sống", ID: 1002966, ClassName: "doisong", ShareURL: "/doi-song"},
	{Name: "Du lịch", ID: 1003231, ClassName: "dulich", ShareURL: "/du-lich"},
	{Name: "Số hóa", ID: 1002592, ClassName: "sohoa", ShareURL: "/so-hoa"},
	{Name: "Xe", ID: 1001006, ClassName: "xe", ShareURL: "/oto-xe-may"},
	{Name: "Ý kiến", ID: 1001012, ClassName: "ykien", ShareURL: "/y-kien"},
	{Name: "Tâm sự", ID: 1001014, ClassName: "tamsu", ShareURL: "/tam-su"},
	{Name: "Thư giãn", ID: 1001011, ClassName: "cuoi", ShareURL: "/thu-gian"},
}

var errMissingUserLike = errors.New("comment has no userlike field")

// VnExpress walks every category's day listing between the window bounds and
// scores articles with a single comment API call sorted by likes.
type VnExpress struct {
	ep endpoints
}

// NewVnExpress builds the VnExpress adapter.
func NewVnExpress(cfg Config) (*VnExpress, error) {
	ep, err := resolveEndpoints(cfg, vnexpressBaseURL, vnexpressCommentAPI)
	if err != nil {
		return nil, fmt.Errorf("vnexpress: %w", err)
	}
	return &VnExpress{ep: ep}, nil
}

func (v *VnExpress) Name() string { return VnExpressName }

func (v *VnExpress) AllowedDomains() []string {
	return append([]string(nil), v.ep.domains...)
}

// Categories returns the sections crawled by the adapter.
func (v *VnExpress) Categories() []Category {
	return append([]Category(nil), vnexpressCategories...)
}

func (v *VnExpress) SeedRequests(w Window) ([]*types.Request, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	from, to := w.Start.Unix(), w.End.Unix()

	reqs := make([]*types.Request, 0, len(vnexpressCategories))
	for _, cat := range vnexpressCategories {
		cursor := types.Cursor{Key: strconv.Itoa(cat.ID), Page: 1, From: from, To: to}
		req, err := types.NewRequest(v.listingURL(cursor), types.StageListing)
		if err != nil {
			return nil, err
		}
		req.State.Cursor = cursor
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (v *VnExpress) ParseListing(resp *types.Response) (Listing, error) {
	doc, err := resp.Document()
	if err != nil {
		return Listing{}, parseErr(resp, "", err)
	}

	items := doc.Find(vnexpressItemSelector)
	var listing Listing
	items.Each(func(_ int, item *goquery.Selection) {
		href := parser.FirstCSS(item, parser.Rule{Selector: "a", Attribute: "href"})
		title := parser.FirstCSS(item, parser.Rule{Selector: "a", Attribute: "title"})
		if href == "" || title == "" {
			return
		}
		link, ok := parser.ResolveURL(v.ep.base, href)
		if !ok {
			return
		}
		listing.Stubs = append(listing.Stubs, types.ArticleStub{Title: title, URL: link})
	})

	if items.Length() == 0 {
		return listing, nil
	}

	cursor := resp.Request.State.Cursor
	cursor.Page++
	next, err := resp.Request.Follow(v.listingURL(cursor), types.StageListing, types.ChainState{Cursor: cursor})
	if err != nil {
		return Listing{}, parseErr(resp, "", err)
	}
	listing.Next = next
	return listing, nil
}

func (v *VnExpress) ParseArticlePage(resp *types.Response, stub types.ArticleStub) (*types.Request, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, parseErr(resp, "", err)
	}

	objectID := parser.FirstCSS(doc.Selection, parser.Rule{Selector: vnexpressThreadSelector, Attribute: "data-objectid"})
	objectType := parser.FirstCSS(doc.Selection, parser.Rule{Selector: vnexpressThreadSelector, Attribute: "data-objecttype"})
	if objectID == "" || objectType == "" {
		return nil, nil
	}

	thread := types.Thread{ObjectID: objectID, ObjectType: objectType}
	state := types.ChainState{Stub: stub, Thread: thread, CommentPage: 1}
	next, err := resp.Request.Follow(v.commentURL(thread), types.StageComments, state)
	if err != nil {
		return nil, parseErr(resp, vnexpressThreadSelector, err)
	}
	return next, nil
}

type vnexpressComments struct {
	Data struct {
		Items []struct {
			UserLike *int `json:"userlike"`
		} `json:"items"`
	} `json:"data"`
}

// ParseCommentPage always finishes the chain: one call returns up to the
// limit of comments, so there is no second page to ask for.
func (v *VnExpress) ParseCommentPage(resp *types.Response, state types.ChainState) (Outcome, error) {
	var envelope vnexpressComments
	if err := resp.JSON(&envelope); err != nil {
		return Outcome{}, parseErr(resp, "data.items", err)
	}

	total := state.RunningLikes
	for i, item := range envelope.Data.Items {
		if item.UserLike == nil {
			return Outcome{}, parseErr(resp, "data.items.userlike", fmt.Errorf("item %d: %w", i, errMissingUserLike))
		}
		if *item.UserLike < 0 {
			return Outcome{}, parseErr(resp, "data.items.userlike", fmt.Errorf("item %d: negative userlike %d", i, *item.UserLike))
		}
		total += *item.UserLike
	}
	return Done(total), nil
}

func (v *VnExpress) listingURL(c types.Cursor) string {
	return fmt.Sprintf("%s/category/day/cateid/%s/fromdate/%d/todate/%d/allcate/0/page/%d",
		strings.TrimRight(v.ep.base.String(), "/"), c.Key, c.From, c.To, c.Page)
}

func (v *VnExpress) commentURL(t types.Thread) string {
	u := *v.ep.commentAPI
	q := u.Query()
	q.Set("offset", "0")
	q.Set("limit", strconv.Itoa(vnexpressCommentLimit))
	q.Set("sort_by", "like")
	q.Set("objectid", t.ObjectID)
	q.Set("objecttype", t.ObjectType)
	q.Set("siteid", vnexpressSiteID)
	u.RawQuery = q.Encode()
	return u.String()
}
