package main

// SelectionMode selects the drag semantics in effect while the pointer is
// down: free cell extension, whole-row, or whole-column.
type SelectionMode int

const (
	ModeNone SelectionMode = iota
	ModeCell
	ModeRow
	ModeColumn
)

// SelRange is an anchor/focus pair. Start is the anchor (fixed during
// shift-extension), End the focus.
type SelRange struct {
	Start Coord `json:"start"`
	End   Coord `json:"end"`
}

func (r SelRange) Rect() Rect {
	return Rect{
		MinRow: min(r.Start.Row, r.End.Row),
		MaxRow: max(r.Start.Row, r.End.Row),
		MinCol: min(r.Start.Col, r.End.Col),
		MaxCol: max(r.Start.Col, r.End.Col),
	}
}

// Selection tracks the current range, the active drag mode and whether the
// pointer is held down.
type Selection struct {
	Range     *SelRange
	Mode      SelectionMode
	mouseDown bool
}

// StartCell begins a free cell drag anchored at pos.
func (s *Selection) StartCell(pos Coord) {
	s.Mode = ModeCell
	s.mouseDown = true
	s.Range = &SelRange{Start: pos, End: pos}
}

// DragOver extends the selection as the pointer enters a cell. In column
// mode the dragged-over column is taken and the row pinned to the last row;
// in row mode the dragged-over row is taken and the column pinned to the
// last column.
func (s *Selection) DragOver(pos Coord, lastRow, lastCol int) {
	if !s.mouseDown || s.Range == nil {
		return
	}
	switch s.Mode {
	case ModeCell:
		s.Range.End = pos
	case ModeColumn:
		s.Range.End = cellAt(lastRow, pos.Col)
	case ModeRow:
		s.Range.End = cellAt(pos.Row, lastCol)
	}
}

// StartColumn begins a whole-column selection spanning every row.
func (s *Selection) StartColumn(col, lastRow int) {
	s.Mode = ModeColumn
	s.mouseDown = true
	s.Range = &SelRange{Start: cellAt(0, col), End: cellAt(lastRow, col)}
}

// StartRow begins a whole-row selection spanning every column.
func (s *Selection) StartRow(row, lastCol int) {
	s.Mode = ModeRow
	s.mouseDown = true
	s.Range = &SelRange{Start: cellAt(row, 0), End: cellAt(row, lastCol)}
}

// SelectAll selects the entire grid and resets the mode.
func (s *Selection) SelectAll(lastRow, lastCol int) {
	s.Mode = ModeNone
	s.Range = &SelRange{Start: cellAt(0, 0), End: cellAt(lastRow, lastCol)}
}

// Release ends the drag gesture. The range itself is retained.
func (s *Selection) Release() {
	s.mouseDown = false
	s.Mode = ModeNone
}

// Clear drops the selection entirely.
func (s *Selection) Clear() {
	s.Range = nil
	s.Mode = ModeNone
	s.mouseDown = false
}

// Move shifts the focus by (dRow, dCol), clamped to the grid. Without
// extend the anchor collapses onto the new focus; with extend the anchor
// stays put and only the focus moves.
func (s *Selection) Move(dRow, dCol int, extend bool, lastRow, lastCol int) {
	if s.Range == nil {
		return
	}
	row := min(max(s.Range.End.Row+dRow, 0), lastRow)
	col := min(max(s.Range.End.Col+dCol, 0), lastCol)
	focus := cellAt(row, col)
	if extend {
		s.Range.End = focus
	} else {
		s.Range = &SelRange{Start: focus, End: focus}
	}
}

// Rect returns the normalized bounds, or false when nothing is selected.
func (s *Selection) Rect() (Rect, bool) {
	if s.Range == nil {
		return Rect{}, false
	}
	return s.Range.Rect(), true
}
