package cli

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bryan-buckman/dropwatch/internal/model"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func renderSummaries(w io.Writer, listing []model.ReleaseSummary) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Price", "Status", "Scraped"})
	for _, s := range listing {
		scraped := ""
		if !s.Timestamp.IsZero() {
			scraped = s.Timestamp.Local().Format("Jan 2 15:04")
		}
		t.AppendRow(table.Row{s.ID, s.Name, s.Price, s.Status, scraped})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(listing)})
	t.Render()
}

func renderItem(w io.Writer, item model.Item) {
	t := newTable(w)
	t.AppendRows([]table.Row{
		{"ID", item.ID},
		{"Name", item.Name},
		{"Price", item.Price},
		{"Status", item.Status},
		{"Colorway", item.Colorway},
		{"Style", item.Style},
		{"Launched", item.IsLaunched},
		{"URL", item.ProductURL},
	})
	if item.LastUpdated != nil {
		t.AppendRow(table.Row{"Updated", item.LastUpdated.Local().Format("Jan 2 15:04")})
	}
	if item.StockXPrice > 0 {
		t.AppendRow(table.Row{"StockX", item.StockXPrice})
	}
	t.Render()

	if len(item.Sizes) == 0 {
		return
	}
	sizes := newTable(w)
	sizes.AppendHeader(table.Row{"Size", "Available"})
	for _, s := range item.Sizes {
		sizes.AppendRow(table.Row{s.Size, s.Available})
	}
	sizes.Render()
}
