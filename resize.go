package main

// Resizer holds the two single-slot drag sessions for column width and row
// height. The slots are mutually exclusive: starting one drag implicitly
// ends the other. Move events are applied continuously, so every
// intermediate size is written through the sheet mutation path.
type Resizer struct {
	col *colDrag
	row *rowDrag
}

type colDrag struct {
	key        string
	startX     int
	startWidth int
}

type rowDrag struct {
	row         int
	startY      int
	startHeight int
}

// ResizeTarget tells which axis a move event resolved to.
type ResizeTarget int

const (
	ResizeNone ResizeTarget = iota
	ResizeCol
	ResizeRow
)

// StartColumn begins a column-width drag, capturing the pointer's x
// coordinate and the column's current width.
func (rz *Resizer) StartColumn(key string, x, width int) {
	rz.row = nil
	rz.col = &colDrag{key: key, startX: x, startWidth: width}
}

// StartRow begins a row-height drag.
func (rz *Resizer) StartRow(row, y, height int) {
	rz.col = nil
	rz.row = &rowDrag{row: row, startY: y, startHeight: height}
}

func (rz *Resizer) Active() bool {
	return rz.col != nil || rz.row != nil
}

// Move converts the current pointer position into a new size,
// floored at the axis minimum.
func (rz *Resizer) Move(x, y int) (target ResizeTarget, colKey string, rowIdx, size int) {
	if rz.col != nil {
		w := max(minColWidth, rz.col.startWidth+(x-rz.col.startX))
		return ResizeCol, rz.col.key, 0, w
	}
	if rz.row != nil {
		h := max(minRowHeight, rz.row.startHeight+(y-rz.row.startY))
		return ResizeRow, "", rz.row.row, h
	}
	return ResizeNone, "", 0, 0
}

// End releases both slots; called on pointer-up.
func (rz *Resizer) End() {
	rz.col = nil
	rz.row = nil
}
