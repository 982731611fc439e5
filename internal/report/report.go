// Package report turns per-site article rankings into printable reports.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/IshaanNene/hotnews/internal/article"
	"github.com/IshaanNene/hotnews/internal/site"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatBar   = "bar"
)

// Entry is one ranked article.
type Entry struct {
	Rank       int    `json:"rank"`
	TotalLikes int    `json:"total_likes"`
	Title      string `json:"title"`
	URL        string `json:"url"`
}

// Site is the ranking of one site.
type Site struct {
	Name    string  `json:"site"`
	Entries []Entry `json:"entries"`
	Error   string  `json:"error,omitempty"`
}

// Build ranks articles, which must already be sorted most liked first. A
// non-nil err marks the site as failed; whatever was scored is kept.
func Build(name string, articles []article.Article, err error) Site {
	s := Site{Name: name, Entries: make([]Entry, 0, len(articles))}
	for i, a := range articles {
		s.Entries = append(s.Entries, Entry{
			Rank:       i + 1,
			TotalLikes: a.TotalLikes,
			Title:      a.Title,
			URL:        a.URL,
		})
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// Write renders the reports in the given format.
func Write(w io.Writer, format string, sites []Site) error {
	switch format {
	case FormatTable, "":
		return Table(w, sites)
	case FormatJSON:
		return JSON(w, sites)
	case FormatBar:
		return Bar(w, sites)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// Table renders one table per site.
func Table(w io.Writer, sites []Site) error {
	for i, s := range sites {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}

		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.Style().Format.Footer = text.FormatDefault
		t.SetTitle(DisplayName(s.Name))
		t.AppendHeader(table.Row{"#", "Likes", "Title", "URL"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight},
			{Number: 3, WidthMax: 72},
		})
		for _, e := range s.Entries {
			t.AppendRow(table.Row{e.Rank, e.TotalLikes, e.Title, e.URL})
		}
		if s.Error != "" {
			t.AppendFooter(table.Row{"", "", "error: " + s.Error, ""})
		} else if len(s.Entries) == 0 {
			t.AppendFooter(table.Row{"", "", "no articles in window", ""})
		}
		t.Render()
	}
	return nil
}

// JSON renders the reports as an indented JSON array.
func JSON(w io.Writer, sites []Site) error {
	if sites == nil {
		sites = []Site{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(sites)
}

// Bar renders the menu-bar plugin format: a separator line, the site label,
// then one "{likes} - {title}| href={url}" line per article.
func Bar(w io.Writer, sites []Site) error {
	var b strings.Builder
	for _, s := range sites {
		b.WriteString("---\n")
		b.WriteString(DisplayName(s.Name))
		b.WriteByte('\n')
		for _, e := range s.Entries {
			// "|" separates the item from its options in the menu-bar format.
			fmt.Fprintf(&b, "%d - %s| href=%s\n", e.TotalLikes, strings.ReplaceAll(e.Title, "|", "/"), e.URL)
		}
		if s.Error != "" {
			fmt.Fprintf(&b, "error: %s| color=red\n", s.Error)
		}
	}
	b.WriteString("---\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// DisplayName is the human label of a site.
func DisplayName(name string) string {
	switch name {
	case site.VnExpressName:
		return "VnExpress"
	case site.TuoiTreName:
		return "TuoiTre"
	default:
		return name
	}
}
