package main

import (
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Pixel-to-xlsx unit conversions: Excel column widths are in character
// units, row heights in points.
const (
	pxPerWidthUnit = 7.0
	pxToPoints     = 0.75
)

const exportSheetName = "Sheet1"

// ImportXLSX reads the first worksheet of an xlsx stream into a Sheet.
// Columns are labeled by position, not by any header row; missing trailing
// cells become null. Unreadable bytes are an error for the caller.
func ImportXLSX(r io.Reader, name string) (Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Sheet{}, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Sheet{}, fmt.Errorf("spreadsheet has no worksheets")
	}
	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return Sheet{}, fmt.Errorf("read worksheet %s: %w", sheets[0], err)
	}

	cols := 0
	for _, row := range raw {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		cols = 1
	}

	out := Sheet{Name: name}
	out.Columns = make([]string, cols)
	for c := 0; c < cols; c++ {
		out.Columns[c] = columnLabel(c)
	}
	out.Rows = make([]Row, len(raw))
	for i, rawRow := range raw {
		row := make(Row, cols)
		for c := 0; c < cols; c++ {
			if c < len(rawRow) && rawRow[c] != "" {
				row[out.Columns[c]] = parseCellInput(rawRow[c])
			} else {
				row[out.Columns[c]] = Null()
			}
		}
		out.Rows[i] = row
	}
	return out, nil
}

// ExportXLSX writes the sheet to an xlsx stream: widths and heights
// converted from pixels, style overrides mapped to xlsx font/fill/
// alignment/border, formula cells written as formulas, merge regions
// re-applied 1-indexed. A merge region the writer rejects is skipped and
// the export continues.
func ExportXLSX(s Sheet, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	for row := range s.Rows {
		for col := range s.Columns {
			cell, err := excelize.CoordinatesToCellName(col+1, row+1)
			if err != nil {
				return err
			}
			v := s.Get(row, col)
			switch {
			case v.IsNull():
				// leave empty
			case v.IsFormula():
				if err := f.SetCellFormula(exportSheetName, cell, strings.TrimPrefix(v.Text, "=")); err != nil {
					return err
				}
			case v.Kind == KindNumber:
				if err := f.SetCellValue(exportSheetName, cell, v.Num); err != nil {
					return err
				}
			case v.Kind == KindBool:
				if err := f.SetCellValue(exportSheetName, cell, v.Bool); err != nil {
					return err
				}
			default:
				if err := f.SetCellValue(exportSheetName, cell, v.Text); err != nil {
					return err
				}
			}
			if st, ok := s.StyleAt(row, col); ok {
				styleID, err := f.NewStyle(xlsxStyle(st))
				if err != nil {
					return err
				}
				if err := f.SetCellStyle(exportSheetName, cell, cell, styleID); err != nil {
					return err
				}
			}
		}
	}

	for key, width := range s.ColWidths {
		if err := f.SetColWidth(exportSheetName, key, key, float64(width)/pxPerWidthUnit); err != nil {
			return err
		}
	}
	for row, height := range s.RowHeights {
		if err := f.SetRowHeight(exportSheetName, row+1, float64(height)*pxToPoints); err != nil {
			return err
		}
	}

	for _, m := range s.Merges {
		r := m.Rect()
		start, err := excelize.CoordinatesToCellName(r.MinCol+1, r.MinRow+1)
		if err != nil {
			continue
		}
		end, err := excelize.CoordinatesToCellName(r.MaxCol+1, r.MaxRow+1)
		if err != nil {
			continue
		}
		if err := f.MergeCell(exportSheetName, start, end); err != nil {
			// A rejected region is dropped; the rest of the file still exports.
			log.Printf("export: skipping merge %s:%s: %v", start, end, err)
			continue
		}
	}

	return f.Write(w)
}

// expandColor turns a CSS hex color into the opaque 8-digit ARGB form xlsx
// expects: "#1a2b3c" -> "FF1A2B3C", "#abc" -> "FFAABBCC".
func expandColor(c string) string {
	c = strings.TrimPrefix(c, "#")
	if len(c) == 3 {
		c = strings.Repeat(string(c[0]), 2) + strings.Repeat(string(c[1]), 2) + strings.Repeat(string(c[2]), 2)
	}
	return "FF" + strings.ToUpper(c)
}

func xlsxStyle(st CellStyle) *excelize.Style {
	out := &excelize.Style{}

	font := &excelize.Font{}
	usedFont := false
	if st.FontWeight == "bold" {
		font.Bold = true
		usedFont = true
	}
	if st.FontStyle == "italic" {
		font.Italic = true
		usedFont = true
	}
	if st.TextDecoration == "underline" {
		font.Underline = "single"
		usedFont = true
	}
	if st.Color != "" {
		font.Color = expandColor(st.Color)
		usedFont = true
	}
	if st.FontFamily != "" {
		font.Family = st.FontFamily
		usedFont = true
	}
	if st.FontSize != "" {
		if size, err := strconv.ParseFloat(strings.TrimSuffix(st.FontSize, "px"), 64); err == nil {
			font.Size = size * pxToPoints
			usedFont = true
		}
	}
	if usedFont {
		out.Font = font
	}

	if st.BackgroundColor != "" {
		out.Fill = excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{expandColor(st.BackgroundColor)},
		}
	}

	if st.TextAlign != "" || st.VerticalAlign != "" || st.WrapText != nil {
		al := &excelize.Alignment{
			Horizontal: st.TextAlign,
			Vertical:   st.VerticalAlign,
		}
		if st.WrapText != nil {
			al.WrapText = *st.WrapText
		}
		out.Alignment = al
	}

	if st.Border != "" {
		color := "FF000000"
		if st.BorderColor != "" {
			color = expandColor(st.BorderColor)
		}
		out.Border = []excelize.Border{
			{Type: "left", Color: color, Style: 1},
			{Type: "right", Color: color, Style: 1},
			{Type: "top", Color: color, Style: 1},
			{Type: "bottom", Color: color, Style: 1},
		}
	}

	return out
}
