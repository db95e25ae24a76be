package main

// Editor is the single-cell edit controller: idle, or editing exactly one
// coordinate with a buffered text value. Formula autocomplete activation is
// re-derived on every buffer change.
type Editor struct {
	Active bool
	Pos    Coord
	Buffer string
	Auto   Autocomplete
}

// Begin enters editing for pos with the given initial buffer (the cell's
// current raw value, or a single typed character that replaces it).
func (e *Editor) Begin(pos Coord, initial string) {
	e.Active = true
	e.Pos = pos
	e.Buffer = initial
	e.Auto.Update(initial)
}

// Change replaces the buffer with the latest typed text.
func (e *Editor) Change(text string) {
	if !e.Active {
		return
	}
	e.Buffer = text
	e.Auto.Update(text)
}

// Commit leaves editing and reports the parsed value to write. changed is
// false when the buffer equals the cell's current stringified value; such
// no-op commits must not reach the mutation path.
func (e *Editor) Commit(current CellValue) (pos Coord, v CellValue, changed bool) {
	pos = e.Pos
	changed = e.Buffer != current.String()
	v = parseCellInput(e.Buffer)
	e.reset()
	return pos, v, changed
}

// Discard leaves editing and drops the buffer.
func (e *Editor) Discard() {
	e.reset()
}

func (e *Editor) reset() {
	e.Active = false
	e.Buffer = ""
	e.Auto.deactivate()
}
