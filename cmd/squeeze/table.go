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

func renderTable(headers []string, rows [][]string, alignments []columnAlignment) string {
	writer := table.NewWriter()
	writer.SetStyle(table.StyleRounded)
	writer.AppendHeader(toTableRow(headers))
	for _, row := range rows {
		writer.AppendRow(toTableRow(row))
	}

	configs := make([]table.ColumnConfig, 0, len(alignments))
	for idx, alignment := range alignments {
		align := text.AlignLeft
		if alignment == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      idx + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	writer.SetColumnConfigs(configs)
	return writer.Render()
}

func toTableRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for idx, cell := range cells {
		row[idx] = cell
	}
	return row
}
