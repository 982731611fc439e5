package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/hotnews/internal/report"
	"github.com/IshaanNene/hotnews/internal/site"
)

// sitesCmd creates the "sites" subcommand.
func sitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List the supported sites and the sections they crawl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Site", "Name", "Enabled", "Domains"})

			var vnexpress *site.VnExpress
			for _, name := range site.Names() {
				sc := cfg.Sites[name]
				a, err := site.New(name, site.Config{BaseURL: sc.BaseURL, CommentAPIURL: sc.CommentAPIURL})
				if err != nil {
					return fmt.Errorf("site %s: %w", name, err)
				}
				if v, ok := a.(*site.VnExpress); ok {
					vnexpress = v
				}
				t.AppendRow(table.Row{report.DisplayName(name), name, sc.Enabled, strings.Join(a.AllowedDomains(), ", ")})
			}
			t.Render()

			if vnexpress == nil {
				return nil
			}
			fmt.Fprintln(out)
			ct := table.NewWriter()
			ct.SetOutputMirror(out)
			ct.SetStyle(table.StyleLight)
			ct.SetTitle("VnExpress sections")
			ct.AppendHeader(table.Row{"ID", "Section", "Path"})
			for _, c := range vnexpress.Categories() {
				ct.AppendRow(table.Row{c.ID, c.Name, c.ShareURL})
			}
			ct.Render()
			return nil
		},
	}
}
