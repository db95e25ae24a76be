package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	defaultColWidth  = 100
	defaultRowHeight = 28
	minColWidth      = 40
	minRowHeight     = 20
)

// columnLabel converts a zero-based column index to its letter label:
// 0 -> "A", 25 -> "Z", 26 -> "AA", 701 -> "ZZ".
func columnLabel(idx int) string {
	label := ""
	for idx >= 0 {
		label = string(rune('A'+idx%26)) + label
		idx = idx/26 - 1
	}
	return label
}

// columnIndex is the inverse of columnLabel.
func columnIndex(label string) int {
	idx := 0
	for i := 0; i < len(label); i++ {
		idx = idx*26 + int(label[i]-'A'+1)
	}
	return idx - 1
}

// Coord addresses a single cell. Key is always columnLabel(Col); it is
// carried alongside the index so row lookups don't re-derive it. Use cellAt
// so the two never disagree.
type Coord struct {
	Row int    `json:"row"`
	Col int    `json:"col"`
	Key string `json:"key"`
}

func cellAt(row, col int) Coord {
	return Coord{Row: row, Col: col, Key: columnLabel(col)}
}

// Address renders the coordinate in formula-bar form, e.g. "B3" for row
// index 2, column index 1 (rows display 1-indexed).
func (c Coord) Address() string {
	return c.Key + strconv.Itoa(c.Row+1)
}

type ValueKind int

const (
	KindNull ValueKind = iota
	KindText
	KindNumber
	KindBool
)

// CellValue is a closed variant over the four cell types. Text beginning
// with "=" is formula source and is stored verbatim, never evaluated.
type CellValue struct {
	Kind ValueKind
	Text string
	Num  float64
	Bool bool
}

func Null() CellValue               { return CellValue{Kind: KindNull} }
func Text(s string) CellValue       { return CellValue{Kind: KindText, Text: s} }
func Number(f float64) CellValue    { return CellValue{Kind: KindNumber, Num: f} }
func Boolean(b bool) CellValue      { return CellValue{Kind: KindBool, Bool: b} }

func (v CellValue) IsNull() bool { return v.Kind == KindNull }

func (v CellValue) IsFormula() bool {
	return v.Kind == KindText && strings.HasPrefix(v.Text, "=")
}

// String is the stringified form used for edit buffers and no-op detection.
func (v CellValue) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	}
	return ""
}

func (v CellValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindText:
		return json.Marshal(v.Text)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	}
	return []byte("null"), nil
}

func (v *CellValue) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*v = Null()
		return nil
	}
	if s == "true" || s == "false" {
		*v = Boolean(s == "true")
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*v = Text(str)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = Number(f)
	return nil
}

// parseCellInput converts typed text into a cell value. Formulas stay text.
func parseCellInput(text string) CellValue {
	if text == "" {
		return Null()
	}
	if strings.HasPrefix(text, "=") {
		return Text(text)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return Number(f)
	}
	if strings.EqualFold(text, "true") || strings.EqualFold(text, "false") {
		return Boolean(strings.EqualFold(text, "true"))
	}
	return Text(text)
}

// Row maps every column key of the sheet to a value; rows are never sparse
// relative to the column set (absent cells hold an explicit null).
type Row map[string]CellValue

// CellStyle is a partial style override. Empty strings and nil pointers mean
// "not set"; merge overwrites only the fields a patch provides.
type CellStyle struct {
	BackgroundColor string `json:"backgroundColor,omitempty"`
	Color           string `json:"color,omitempty"`
	FontWeight      string `json:"fontWeight,omitempty"`
	FontStyle       string `json:"fontStyle,omitempty"`
	TextDecoration  string `json:"textDecoration,omitempty"`
	FontSize        string `json:"fontSize,omitempty"`
	FontFamily      string `json:"fontFamily,omitempty"`
	Border          string `json:"border,omitempty"`
	BorderColor     string `json:"borderColor,omitempty"`
	TextAlign       string `json:"textAlign,omitempty"`
	VerticalAlign   string `json:"verticalAlign,omitempty"`
	WrapText        *bool  `json:"wrapText,omitempty"`
	NumberFormat    string `json:"numberFormat,omitempty"`
	Precision       *int   `json:"precision,omitempty"`
}

func (s CellStyle) merge(p CellStyle) CellStyle {
	if p.BackgroundColor != "" {
		s.BackgroundColor = p.BackgroundColor
	}
	if p.Color != "" {
		s.Color = p.Color
	}
	if p.FontWeight != "" {
		s.FontWeight = p.FontWeight
	}
	if p.FontStyle != "" {
		s.FontStyle = p.FontStyle
	}
	if p.TextDecoration != "" {
		s.TextDecoration = p.TextDecoration
	}
	if p.FontSize != "" {
		s.FontSize = p.FontSize
	}
	if p.FontFamily != "" {
		s.FontFamily = p.FontFamily
	}
	if p.Border != "" {
		s.Border = p.Border
	}
	if p.BorderColor != "" {
		s.BorderColor = p.BorderColor
	}
	if p.TextAlign != "" {
		s.TextAlign = p.TextAlign
	}
	if p.VerticalAlign != "" {
		s.VerticalAlign = p.VerticalAlign
	}
	if p.WrapText != nil {
		s.WrapText = p.WrapText
	}
	if p.NumberFormat != "" {
		s.NumberFormat = p.NumberFormat
	}
	if p.Precision != nil {
		s.Precision = p.Precision
	}
	return s
}

// Rect is a normalized, inclusive cell rectangle.
type Rect struct {
	MinRow int `json:"minRow"`
	MaxRow int `json:"maxRow"`
	MinCol int `json:"minCol"`
	MaxCol int `json:"maxCol"`
}

func (r Rect) Contains(row, col int) bool {
	return row >= r.MinRow && row <= r.MaxRow && col >= r.MinCol && col <= r.MaxCol
}

// MergeRegion is a rectangular span of visually fused cells. The top-left
// cell is the root; it alone renders content and spans.
type MergeRegion struct {
	Start Coord `json:"start"`
	End   Coord `json:"end"`
}

func (m MergeRegion) Rect() Rect {
	return Rect{
		MinRow: min(m.Start.Row, m.End.Row),
		MaxRow: max(m.Start.Row, m.End.Row),
		MinCol: min(m.Start.Col, m.End.Col),
		MaxCol: max(m.Start.Col, m.End.Col),
	}
}

type MergeState int

const (
	MergeNone MergeState = iota
	MergeRoot
	MergeCovered
)

type MergeInfo struct {
	State   MergeState
	RowSpan int
	ColSpan int
}

type MergeStrategy string

const (
	MergeStandard MergeStrategy = "standard"
	MergeContent  MergeStrategy = "content"
)

// Sheet is the grid value. All mutating operations are copy-on-write and
// return a new Sheet: the receiver and any snapshot of it stay valid, and
// untouched rows and maps are shared between versions.
type Sheet struct {
	Name       string               `json:"name"`
	Columns    []string             `json:"columns"`
	Rows       []Row                `json:"rows"`
	ColWidths  map[string]int       `json:"col_widths,omitempty"`
	RowHeights map[int]int          `json:"row_heights,omitempty"`
	Styles     map[string]CellStyle `json:"styles,omitempty"`
	Merges     []MergeRegion        `json:"merges,omitempty"`
}

func newSheet(name string, rows, cols int) Sheet {
	columns := make([]string, cols)
	for c := 0; c < cols; c++ {
		columns[c] = columnLabel(c)
	}
	data := make([]Row, rows)
	for r := 0; r < rows; r++ {
		row := make(Row, cols)
		for _, key := range columns {
			row[key] = Null()
		}
		data[r] = row
	}
	return Sheet{Name: name, Columns: columns, Rows: data}
}

func styleKey(row int, colKey string) string {
	return fmt.Sprintf("%d-%s", row, colKey)
}

func (s Sheet) LastRow() int { return len(s.Rows) - 1 }
func (s Sheet) LastCol() int { return len(s.Columns) - 1 }

func (s Sheet) inBounds(row, col int) bool {
	return row >= 0 && row < len(s.Rows) && col >= 0 && col < len(s.Columns)
}

// clamp restricts a rectangle to the sheet's extent.
func (s Sheet) clamp(r Rect) Rect {
	r.MinRow = max(r.MinRow, 0)
	r.MinCol = max(r.MinCol, 0)
	r.MaxRow = min(r.MaxRow, s.LastRow())
	r.MaxCol = min(r.MaxCol, s.LastCol())
	return r
}

// Get returns the value at (row, col). Out-of-range coordinates and absent
// row slots read as null.
func (s Sheet) Get(row, col int) CellValue {
	if !s.inBounds(row, col) {
		return Null()
	}
	r := s.Rows[row]
	if r == nil {
		return Null()
	}
	return r[s.Columns[col]]
}

func (s Sheet) cloneRowsShallow() []Row {
	rows := make([]Row, len(s.Rows))
	copy(rows, s.Rows)
	return rows
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (s Sheet) cloneWidths() map[string]int {
	out := make(map[string]int, len(s.ColWidths)+1)
	for k, v := range s.ColWidths {
		out[k] = v
	}
	return out
}

func (s Sheet) cloneHeights() map[int]int {
	out := make(map[int]int, len(s.RowHeights)+1)
	for k, v := range s.RowHeights {
		out[k] = v
	}
	return out
}

func (s Sheet) cloneStyles() map[string]CellStyle {
	out := make(map[string]CellStyle, len(s.Styles)+1)
	for k, v := range s.Styles {
		out[k] = v
	}
	return out
}

// Set writes a value at (row, col), copying only the touched row.
func (s Sheet) Set(row, col int, v CellValue) Sheet {
	if !s.inBounds(row, col) {
		return s
	}
	rows := s.cloneRowsShallow()
	var nr Row
	if rows[row] == nil {
		nr = make(Row, len(s.Columns))
		for _, key := range s.Columns {
			nr[key] = Null()
		}
	} else {
		nr = cloneRow(rows[row])
	}
	nr[s.Columns[col]] = v
	rows[row] = nr
	s.Rows = rows
	return s
}

// ColWidth returns the effective width of a column.
func (s Sheet) ColWidth(key string) int {
	if w, ok := s.ColWidths[key]; ok {
		return w
	}
	return defaultColWidth
}

// RowHeight returns the effective height of a row.
func (s Sheet) RowHeight(row int) int {
	if h, ok := s.RowHeights[row]; ok {
		return h
	}
	return defaultRowHeight
}

// ResizeColumn sets a column width, clamped to the minimum.
func (s Sheet) ResizeColumn(key string, width int) Sheet {
	widths := s.cloneWidths()
	widths[key] = max(width, minColWidth)
	s.ColWidths = widths
	return s
}

// ResizeRow sets a row height, clamped to the minimum.
func (s Sheet) ResizeRow(row, height int) Sheet {
	heights := s.cloneHeights()
	heights[row] = max(height, minRowHeight)
	s.RowHeights = heights
	return s
}

// ApplyStyle merges a partial style into every cell of the rectangle.
func (s Sheet) ApplyStyle(r Rect, patch CellStyle) Sheet {
	r = s.clamp(r)
	styles := s.cloneStyles()
	for row := r.MinRow; row <= r.MaxRow; row++ {
		for col := r.MinCol; col <= r.MaxCol; col++ {
			k := styleKey(row, s.Columns[col])
			styles[k] = styles[k].merge(patch)
		}
	}
	s.Styles = styles
	return s
}

// ClearStyle removes style overrides inside the rectangle.
func (s Sheet) ClearStyle(r Rect) Sheet {
	r = s.clamp(r)
	styles := s.cloneStyles()
	for row := r.MinRow; row <= r.MaxRow; row++ {
		for col := r.MinCol; col <= r.MaxCol; col++ {
			delete(styles, styleKey(row, s.Columns[col]))
		}
	}
	s.Styles = styles
	return s
}

// ClearContent nulls every cell inside the rectangle.
func (s Sheet) ClearContent(r Rect) Sheet {
	r = s.clamp(r)
	rows := s.cloneRowsShallow()
	for row := r.MinRow; row <= r.MaxRow; row++ {
		if rows[row] == nil {
			continue
		}
		nr := cloneRow(rows[row])
		for col := r.MinCol; col <= r.MaxCol; col++ {
			nr[s.Columns[col]] = Null()
		}
		rows[row] = nr
	}
	s.Rows = rows
	return s
}

// NonEmptyCount reports how many cells in the rectangle hold a value; the
// merge flow uses it to decide whether a strategy prompt is needed.
func (s Sheet) NonEmptyCount(r Rect) int {
	r = s.clamp(r)
	n := 0
	for row := r.MinRow; row <= r.MaxRow; row++ {
		for col := r.MinCol; col <= r.MaxCol; col++ {
			if !s.Get(row, col).IsNull() {
				n++
			}
		}
	}
	return n
}

// MergedAt reports whether an identical merge region already exists.
func (s Sheet) MergedAt(r Rect) bool {
	for _, m := range s.Merges {
		if m.Rect() == r {
			return true
		}
	}
	return false
}

// Merge fuses the rectangle into one region. With the content strategy all
// non-empty values are joined space-separated in row-major order into the
// root cell; standard keeps only the root's existing value. Every other cell
// in the span is nulled and the root gets center/middle alignment.
// Overlap with existing regions is not validated; MergeInfo resolves
// first-match-wins.
func (s Sheet) Merge(r Rect, strategy MergeStrategy) Sheet {
	r = s.clamp(r)
	rootVal := s.Get(r.MinRow, r.MinCol)
	if strategy == MergeContent {
		parts := []string{}
		for row := r.MinRow; row <= r.MaxRow; row++ {
			for col := r.MinCol; col <= r.MaxCol; col++ {
				if v := s.Get(row, col); !v.IsNull() {
					parts = append(parts, v.String())
				}
			}
		}
		rootVal = Text(strings.Join(parts, " "))
	}

	rows := s.cloneRowsShallow()
	for row := r.MinRow; row <= r.MaxRow; row++ {
		if rows[row] == nil {
			continue
		}
		nr := cloneRow(rows[row])
		for col := r.MinCol; col <= r.MaxCol; col++ {
			nr[s.Columns[col]] = Null()
		}
		rows[row] = nr
	}
	s.Rows = rows
	s = s.Set(r.MinRow, r.MinCol, rootVal)

	styles := s.cloneStyles()
	k := styleKey(r.MinRow, s.Columns[r.MinCol])
	styles[k] = styles[k].merge(CellStyle{TextAlign: "center", VerticalAlign: "middle"})
	s.Styles = styles

	merges := make([]MergeRegion, len(s.Merges), len(s.Merges)+1)
	copy(merges, s.Merges)
	s.Merges = append(merges, MergeRegion{
		Start: cellAt(r.MinRow, r.MinCol),
		End:   cellAt(r.MaxRow, r.MaxCol),
	})
	return s
}

// Unmerge removes the region matching the rectangle, leaving cell contents
// untouched.
func (s Sheet) Unmerge(r Rect) Sheet {
	merges := make([]MergeRegion, 0, len(s.Merges))
	for _, m := range s.Merges {
		if m.Rect() == r {
			continue
		}
		merges = append(merges, m)
	}
	s.Merges = merges
	return s
}

// MergeInfo resolves how (row, col) renders: not merged, the root of a
// region with its spans, or covered by a region and suppressed.
func (s Sheet) MergeInfo(row, col int) MergeInfo {
	for _, m := range s.Merges {
		r := m.Rect()
		if !r.Contains(row, col) {
			continue
		}
		if row == r.MinRow && col == r.MinCol {
			return MergeInfo{
				State:   MergeRoot,
				RowSpan: r.MaxRow - r.MinRow + 1,
				ColSpan: r.MaxCol - r.MinCol + 1,
			}
		}
		return MergeInfo{State: MergeCovered}
	}
	return MergeInfo{State: MergeNone}
}

// AppendRow adds an empty row at the bottom.
func (s Sheet) AppendRow() Sheet {
	row := make(Row, len(s.Columns))
	for _, key := range s.Columns {
		row[key] = Null()
	}
	rows := make([]Row, len(s.Rows), len(s.Rows)+1)
	copy(rows, s.Rows)
	s.Rows = append(rows, row)
	return s
}

// AppendColumn adds the next column in label order, giving every row an
// explicit null entry for it.
func (s Sheet) AppendColumn() Sheet {
	key := columnLabel(len(s.Columns))
	columns := make([]string, len(s.Columns), len(s.Columns)+1)
	copy(columns, s.Columns)
	s.Columns = append(columns, key)

	rows := make([]Row, len(s.Rows))
	for i, r := range s.Rows {
		if r == nil {
			rows[i] = nil
			continue
		}
		nr := cloneRow(r)
		nr[key] = Null()
		rows[i] = nr
	}
	s.Rows = rows
	return s
}

// StyleAt returns the style override for a cell, if any.
func (s Sheet) StyleAt(row, col int) (CellStyle, bool) {
	if !s.inBounds(row, col) {
		return CellStyle{}, false
	}
	st, ok := s.Styles[styleKey(row, s.Columns[col])]
	return st, ok
}

func precisionOr(st CellStyle, def int) int {
	if st.Precision != nil {
		return *st.Precision
	}
	return def
}

// groupThousands inserts comma separators into the integer part of a fixed
// decimal string.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	out := sign + b.String()
	if hasFrac {
		out += "." + fracPart
	}
	return out
}

// formatValue renders a cell for display. Formatting is presentation only;
// stored values are untouched.
func formatValue(v CellValue, st CellStyle) string {
	if v.Kind != KindNumber {
		return v.String()
	}
	switch st.NumberFormat {
	case "percent":
		p := precisionOr(st, 0)
		return strconv.FormatFloat(v.Num*100, 'f', p, 64) + "%"
	case "currency":
		p := precisionOr(st, 2)
		return "$" + groupThousands(strconv.FormatFloat(v.Num, 'f', p, 64))
	case "number":
		p := min(precisionOr(st, 0), 2)
		return groupThousands(strconv.FormatFloat(v.Num, 'f', p, 64))
	default:
		if st.Precision != nil {
			p := min(*st.Precision, 2)
			return groupThousands(strconv.FormatFloat(v.Num, 'f', p, 64))
		}
		return v.String()
	}
}
