package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/hotnews/internal/article"
	"github.com/IshaanNene/hotnews/internal/site"
)

func sampleArticles() []article.Article {
	return []article.Article{
		{Title: "title1", URL: "https://vnexpress.net/a1.html", TotalLikes: 30},
		{Title: "title2", URL: "https://vnexpress.net/a2.html", TotalLikes: 5},
	}
}

func TestBuild(t *testing.T) {
	s := Build(site.VnExpressName, sampleArticles(), nil)
	assert.Equal(t, site.VnExpressName, s.Name)
	require.Len(t, s.Entries, 2)
	assert.Equal(t, Entry{Rank: 1, TotalLikes: 30, Title: "title1", URL: "https://vnexpress.net/a1.html"}, s.Entries[0])
	assert.Equal(t, 2, s.Entries[1].Rank)
	assert.Empty(t, s.Error)

	failed := Build(site.TuoiTreName, nil, errors.New("listing unavailable"))
	assert.Empty(t, failed.Entries)
	assert.NotNil(t, failed.Entries)
	assert.Equal(t, "listing unavailable", failed.Error)
}

func TestBar(t *testing.T) {
	sites := []Site{
		Build(site.VnExpressName, sampleArticles(), nil),
		Build(site.TuoiTreName, []article.Article{{Title: "a | b", URL: "https://tuoitre.vn/x.htm", TotalLikes: 8}}, nil),
	}

	var buf bytes.Buffer
	require.NoError(t, Bar(&buf, sites))

	want := strings.Join([]string{
		"---",
		"VnExpress",
		"30 - title1| href=https://vnexpress.net/a1.html",
		"5 - title2| href=https://vnexpress.net/a2.html",
		"---",
		"TuoiTre",
		"8 - a / b| href=https://tuoitre.vn/x.htm",
		"---",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestBarShowsSiteError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Bar(&buf, []Site{Build(site.TuoiTreName, nil, errors.New("boom"))}))
	assert.Equal(t, "---\nTuoiTre\nerror: boom| color=red\n---\n", buf.String())
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, []Site{Build(site.VnExpressName, sampleArticles(), nil)}))

	var got []Site
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 30, got[0].Entries[0].TotalLikes)
	assert.NotContains(t, buf.String(), `"error"`)

	buf.Reset()
	require.NoError(t, JSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	sites := []Site{
		Build(site.VnExpressName, sampleArticles(), nil),
		Build(site.TuoiTreName, nil, nil),
	}
	require.NoError(t, Table(&buf, sites))

	out := buf.String()
	assert.Contains(t, out, "VnExpress")
	assert.Contains(t, out, "title1")
	assert.Contains(t, out, "https://vnexpress.net/a2.html")
	assert.Contains(t, out, "TuoiTre")
	assert.Contains(t, out, "no articles in window")
	assert.Less(t, strings.Index(out, "title1"), strings.Index(out, "title2"))
}

func TestTableFooterKeepsCase(t *testing.T) {
	var buf bytes.Buffer
	sites := []Site{Build(site.TuoiTreName, nil, errors.New("Listing Unavailable"))}
	require.NoError(t, Table(&buf, sites))
	assert.Contains(t, buf.String(), "error: Listing Unavailable")
	assert.NotContains(t, buf.String(), "ERROR:")
}

func TestWriteFormats(t *testing.T) {
	sites := []Site{Build(site.VnExpressName, sampleArticles(), nil)}
	for _, format := range []string{FormatTable, FormatJSON, FormatBar} {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, format, sites), format)
		assert.Contains(t, buf.String(), "title1", format)
	}

	assert.Error(t, Write(&bytes.Buffer{}, "xml", sites))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "VnExpress", DisplayName(site.VnExpressName))
	assert.Equal(t, "TuoiTre", DisplayName(site.TuoiTreName))
	assert.Equal(t, "other", DisplayName("other"))
}
