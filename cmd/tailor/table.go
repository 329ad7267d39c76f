package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		tw.AppendRow(padRow(row, columns))
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render() + "\n"
}

// renderDetails renders label/value pairs as a borderless two-column block.
func renderDetails(pairs [][2]string) string {
	if len(pairs) == 0 {
		return ""
	}
	tw := table.NewWriter()
	style := table.StyleLight
	style.Options.DrawBorder = false
	style.Options.SeparateColumns = false
	tw.SetStyle(style)
	for _, pair := range pairs {
		tw.AppendRow(table.Row{pair[0] + ":", pair[1]})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: text.Colors{text.Bold}},
		{Number: 2, WidthMax: 100},
	})
	return tw.Render() + "\n"
}

func padRow(row []string, columns int) table.Row {
	r := make(table.Row, columns)
	for i := range columns {
		if i < len(row) {
			r[i] = row[i]
		} else {
			r[i] = ""
		}
	}
	return r
}
