package main

import (
	"encoding/json"
	"fmt"
	"log"
	"unicode"
	"unicode/utf8"
)

// EditorSession is the interactive state for one connected client: the
// current sheet value plus the selection, edit, resize and autocomplete
// controllers and the undo ring. Sessions are only ever touched from the
// hub goroutine, so they carry no locks; every event completes before the
// next is dispatched.
type EditorSession struct {
	workbook *Workbook
	user     string

	sheet   Sheet
	sel     Selection
	editor  Editor
	resizer Resizer
	history *History

	// set while waiting for the client to pick a merge strategy
	pendingMerge *Rect
}

func newEditorSession(w *Workbook, user string) *EditorSession {
	return &EditorSession{
		workbook: w,
		user:     user,
		sheet:    w.Snapshot(),
		history:  newHistory(historyLimit),
	}
}

// apply funnels every mutation through the same path: push the prior sheet
// onto the history ring, install the new value, persist and audit.
func (s *EditorSession) apply(next Sheet, action, detail string) {
	s.history.Push(s.sheet)
	s.sheet = next
	s.workbook.Install(next, s.user, action, detail)
}

type pointerPayload struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type headerColPayload struct {
	Col int `json:"col"`
}

type headerRowPayload struct {
	Row int `json:"row"`
}

type keyPayload struct {
	Key   string `json:"key"`
	Shift bool   `json:"shift"`
	Ctrl  bool   `json:"ctrl"`
}

type editChangePayload struct {
	Text string `json:"text"`
}

type autocompleteMovePayload struct {
	Dir int `json:"dir"` // -1 up, +1 down
}

type resizeColStartPayload struct {
	Col string `json:"col"`
	X   int    `json:"x"`
}

type resizeRowStartPayload struct {
	Row int `json:"row"`
	Y   int `json:"y"`
}

type resizeMovePayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type mergePayload struct {
	Strategy string `json:"strategy,omitempty"`
}

type stylePayload struct {
	Style CellStyle `json:"style"`
}

type assistantAskPayload struct {
	Command string `json:"command"`
}

// reply collects the outbound messages produced by one event: private goes
// only to the originating client, broadcast to every client in the room.
type reply struct {
	private   []*Message
	broadcast []*Message
}

func (r *reply) sheetChanged(s *EditorSession) {
	r.broadcast = append(r.broadcast, outbound("SHEET", s.workbook.ID, s.sheet))
}

func (r *reply) selection(s *EditorSession) {
	r.private = append(r.private, outbound("SELECTION", s.workbook.ID, map[string]any{
		"range": s.sel.Range,
		"mode":  s.sel.Mode,
	}))
}

func (r *reply) editState(s *EditorSession) {
	var address string
	if s.editor.Active {
		address = s.editor.Pos.Address()
	}
	r.private = append(r.private, outbound("EDIT_STATE", s.workbook.ID, map[string]any{
		"active":  s.editor.Active,
		"pos":     s.editor.Pos,
		"address": address,
		"buffer":  s.editor.Buffer,
		"autocomplete": map[string]any{
			"active":    s.editor.Auto.Active,
			"matches":   s.editor.Auto.Matches(),
			"highlight": s.editor.Auto.Highlight,
		},
	}))
}

func outbound(msgType, workbookID string, payload any) *Message {
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("session: marshal %s payload: %v", msgType, err)
		b = []byte("{}")
	}
	return &Message{Type: msgType, Workbook: workbookID, Payload: b}
}

// InitMessage is the full state sent when a client registers.
func (s *EditorSession) InitMessage() *Message {
	return outbound("INIT", s.workbook.ID, map[string]any{
		"sheet": s.sheet,
		"name":  s.workbook.Name,
	})
}

// HandleEvent applies one inbound event synchronously and returns the
// resulting messages. Unknown event types are ignored.
func (s *EditorSession) HandleEvent(msg *Message) reply {
	var r reply
	switch msg.Type {
	case "POINTER_DOWN":
		var p pointerPayload
		if decode(msg.Payload, &p, &r, s) {
			s.blurCommit(&r)
			s.sel.StartCell(cellAt(p.Row, p.Col))
			r.selection(s)
		}
	case "POINTER_ENTER":
		var p pointerPayload
		if decode(msg.Payload, &p, &r, s) {
			s.sel.DragOver(cellAt(p.Row, p.Col), s.sheet.LastRow(), s.sheet.LastCol())
			r.selection(s)
		}
	case "POINTER_UP":
		s.sel.Release()
		s.resizer.End()
		r.selection(s)
	case "HEADER_COL_DOWN":
		var p headerColPayload
		if decode(msg.Payload, &p, &r, s) {
			s.blurCommit(&r)
			s.sel.StartColumn(p.Col, s.sheet.LastRow())
			r.selection(s)
		}
	case "HEADER_COL_ENTER":
		var p headerColPayload
		if decode(msg.Payload, &p, &r, s) {
			s.sel.DragOver(cellAt(0, p.Col), s.sheet.LastRow(), s.sheet.LastCol())
			r.selection(s)
		}
	case "HEADER_ROW_DOWN":
		var p headerRowPayload
		if decode(msg.Payload, &p, &r, s) {
			s.blurCommit(&r)
			s.sel.StartRow(p.Row, s.sheet.LastCol())
			r.selection(s)
		}
	case "HEADER_ROW_ENTER":
		var p headerRowPayload
		if decode(msg.Payload, &p, &r, s) {
			s.sel.DragOver(cellAt(p.Row, 0), s.sheet.LastRow(), s.sheet.LastCol())
			r.selection(s)
		}
	case "SELECT_ALL":
		s.sel.SelectAll(s.sheet.LastRow(), s.sheet.LastCol())
		r.selection(s)
	case "CELL_DBLCLICK":
		var p pointerPayload
		if decode(msg.Payload, &p, &r, s) {
			pos := cellAt(p.Row, p.Col)
			s.sel.StartCell(pos)
			s.sel.Release()
			s.editor.Begin(pos, s.sheet.Get(p.Row, p.Col).String())
			r.selection(s)
			r.editState(s)
		}
	case "KEY_DOWN":
		var p keyPayload
		if decode(msg.Payload, &p, &r, s) {
			s.handleKey(p, &r)
		}
	case "EDIT_CHANGE":
		var p editChangePayload
		if decode(msg.Payload, &p, &r, s) {
			s.editor.Change(p.Text)
			r.editState(s)
		}
	case "EDIT_COMMIT": // blur
		s.blurCommit(&r)
		r.editState(s)
	case "EDIT_CANCEL":
		s.editor.Discard()
		r.editState(s)
	case "AUTOCOMPLETE_MOVE":
		var p autocompleteMovePayload
		if decode(msg.Payload, &p, &r, s) {
			if p.Dir < 0 {
				s.editor.Auto.MoveUp()
			} else {
				s.editor.Auto.MoveDown()
			}
			r.editState(s)
		}
	case "AUTOCOMPLETE_ACCEPT":
		s.acceptAutocomplete(&r)
	case "RESIZE_COL_START":
		var p resizeColStartPayload
		if decode(msg.Payload, &p, &r, s) {
			s.resizer.StartColumn(p.Col, p.X, s.sheet.ColWidth(p.Col))
		}
	case "RESIZE_ROW_START":
		var p resizeRowStartPayload
		if decode(msg.Payload, &p, &r, s) {
			s.resizer.StartRow(p.Row, p.Y, s.sheet.RowHeight(p.Row))
		}
	case "RESIZE_MOVE":
		var p resizeMovePayload
		if decode(msg.Payload, &p, &r, s) {
			switch target, col, row, size := s.resizer.Move(p.X, p.Y); target {
			case ResizeCol:
				s.apply(s.sheet.ResizeColumn(col, size), "RESIZE_COL",
					fmt.Sprintf("Set width of column %s to %d", col, size))
				r.sheetChanged(s)
			case ResizeRow:
				s.apply(s.sheet.ResizeRow(row, size), "RESIZE_ROW",
					fmt.Sprintf("Set height of row %d to %d", row+1, size))
				r.sheetChanged(s)
			}
		}
	case "RESIZE_END":
		s.resizer.End()
	case "MERGE":
		var p mergePayload
		if decode(msg.Payload, &p, &r, s) {
			s.handleMerge(MergeStrategy(p.Strategy), &r)
		}
	case "STYLE_APPLY":
		var p stylePayload
		if decode(msg.Payload, &p, &r, s) {
			if rect, ok := s.sel.Rect(); ok {
				s.apply(s.sheet.ApplyStyle(rect, p.Style), "STYLE_CELLS",
					fmt.Sprintf("Styled %s", rectAddress(rect)))
				r.sheetChanged(s)
			}
		}
	case "STYLE_CLEAR":
		if rect, ok := s.sel.Rect(); ok {
			s.apply(s.sheet.ClearStyle(rect), "STYLE_CELLS",
				fmt.Sprintf("Cleared styles in %s", rectAddress(rect)))
			r.sheetChanged(s)
		}
	case "CLEAR_CONTENT":
		if rect, ok := s.sel.Rect(); ok {
			s.apply(s.sheet.ClearContent(rect), "CLEAR_CELLS",
				fmt.Sprintf("Cleared %s", rectAddress(rect)))
			r.sheetChanged(s)
		}
	case "APPEND_ROW":
		s.apply(s.sheet.AppendRow(), "APPEND_ROW",
			fmt.Sprintf("Appended row %d", len(s.sheet.Rows)+1))
		r.sheetChanged(s)
	case "APPEND_COL":
		s.apply(s.sheet.AppendColumn(), "APPEND_COL",
			"Appended column "+columnLabel(len(s.sheet.Columns)))
		r.sheetChanged(s)
	case "UNDO":
		if snap, ok := s.history.Undo(); ok {
			s.sheet = snap
			s.workbook.Install(snap, s.user, "UNDO", "Reverted last change")
			r.sheetChanged(s)
		}
	}
	return r
}

func decode(raw json.RawMessage, dst any, r *reply, s *EditorSession) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Printf("session: bad payload: %v", err)
		r.private = append(r.private, outbound("ERROR", s.workbook.ID,
			map[string]string{"error": "malformed payload"}))
		return false
	}
	return true
}

func rectAddress(r Rect) string {
	return cellAt(r.MinRow, r.MinCol).Address() + ":" + cellAt(r.MaxRow, r.MaxCol).Address()
}

// blurCommit commits an in-progress edit the way losing focus does. Commits
// are skipped entirely while the autocomplete list is open.
func (s *EditorSession) blurCommit(r *reply) {
	if !s.editor.Active || s.editor.Auto.Active {
		return
	}
	s.commitEdit(r)
}

func (s *EditorSession) commitEdit(r *reply) {
	pos, v, changed := s.editor.Commit(s.sheet.Get(s.editor.Pos.Row, s.editor.Pos.Col))
	if !changed {
		return
	}
	s.apply(s.sheet.Set(pos.Row, pos.Col, v), "EDIT_CELL",
		fmt.Sprintf("Set cell %s to %s", pos.Address(), v.String()))
	r.sheetChanged(s)
}

func (s *EditorSession) acceptAutocomplete(r *reply) {
	buffer, askAssistant := s.editor.Auto.Accept()
	if askAssistant {
		// Escape hatch: hand the buffer to the assistant input instead of
		// completing a function. The edit stays open.
		r.private = append(r.private, outbound("ASSISTANT_PROMPT", s.workbook.ID,
			map[string]string{"text": s.editor.Buffer}))
		r.editState(s)
		return
	}
	if buffer != "" {
		s.editor.Change(buffer)
	}
	r.editState(s)
}

func (s *EditorSession) handleKey(p keyPayload, r *reply) {
	if s.editor.Active {
		s.handleEditingKey(p, r)
		return
	}
	switch p.Key {
	case "ArrowUp":
		s.sel.Move(-1, 0, p.Shift, s.sheet.LastRow(), s.sheet.LastCol())
		r.selection(s)
	case "ArrowDown":
		s.sel.Move(1, 0, p.Shift, s.sheet.LastRow(), s.sheet.LastCol())
		r.selection(s)
	case "ArrowLeft":
		s.sel.Move(0, -1, p.Shift, s.sheet.LastRow(), s.sheet.LastCol())
		r.selection(s)
	case "ArrowRight":
		s.sel.Move(0, 1, p.Shift, s.sheet.LastRow(), s.sheet.LastCol())
		r.selection(s)
	case "Delete", "Backspace":
		if rect, ok := s.sel.Rect(); ok {
			s.apply(s.sheet.ClearContent(rect), "CLEAR_CELLS",
				fmt.Sprintf("Cleared %s", rectAddress(rect)))
			r.sheetChanged(s)
		}
	case "Enter":
		if s.sel.Range != nil {
			pos := s.sel.Range.End
			s.editor.Begin(pos, s.sheet.Get(pos.Row, pos.Col).String())
			r.editState(s)
		}
	case "Escape":
		s.sel.Clear()
		r.selection(s)
	default:
		if key, ok := printableKey(p); ok && s.sel.Range != nil {
			// Typing replaces the cell content: the buffer starts from the
			// typed character, not the current value.
			s.editor.Begin(s.sel.Range.End, key)
			r.editState(s)
		}
	}
}

func (s *EditorSession) handleEditingKey(p keyPayload, r *reply) {
	switch p.Key {
	case "Enter":
		if s.editor.Auto.Active {
			s.acceptAutocomplete(r)
			return
		}
		s.commitEdit(r)
		s.sel.Move(1, 0, false, s.sheet.LastRow(), s.sheet.LastCol())
		r.selection(s)
		r.editState(s)
	case "Tab":
		if s.editor.Auto.Active {
			s.acceptAutocomplete(r)
			return
		}
		s.commitEdit(r)
		s.sel.Move(0, 1, false, s.sheet.LastRow(), s.sheet.LastCol())
		r.selection(s)
		r.editState(s)
	case "Escape":
		s.editor.Discard()
		r.editState(s)
	case "ArrowUp":
		if s.editor.Auto.Active {
			s.editor.Auto.MoveUp()
			r.editState(s)
		}
	case "ArrowDown":
		if s.editor.Auto.Active {
			s.editor.Auto.MoveDown()
			r.editState(s)
		}
	}
}

func printableKey(p keyPayload) (string, bool) {
	if p.Ctrl {
		return "", false
	}
	if utf8.RuneCountInString(p.Key) != 1 {
		return "", false
	}
	r, _ := utf8.DecodeRuneInString(p.Key)
	if !unicode.IsPrint(r) {
		return "", false
	}
	return p.Key, true
}

func (s *EditorSession) handleMerge(strategy MergeStrategy, r *reply) {
	rect, ok := s.sel.Rect()
	if s.pendingMerge != nil {
		rect, ok = *s.pendingMerge, true
	}
	if !ok {
		return
	}
	if s.sheet.MergedAt(rect) {
		// Merging an already-merged identical rectangle toggles it off.
		s.pendingMerge = nil
		s.apply(s.sheet.Unmerge(rect), "UNMERGE_CELLS",
			fmt.Sprintf("Unmerged %s", rectAddress(rect)))
		r.sheetChanged(s)
		return
	}
	if strategy == "" {
		if s.sheet.NonEmptyCount(rect) > 1 {
			// More than one value at stake: the client must choose.
			s.pendingMerge = &rect
			r.private = append(r.private, outbound("MERGE_CHOICE", s.workbook.ID,
				map[string]any{"range": rectAddress(rect)}))
			return
		}
		strategy = MergeStandard
	}
	s.pendingMerge = nil
	s.apply(s.sheet.Merge(rect, strategy), "MERGE_CELLS",
		fmt.Sprintf("Merged %s (%s)", rectAddress(rect), strategy))
	r.sheetChanged(s)
}

// Snapshot returns what the assistant request needs: the current sheet and
// the selection rectangle, if any.
func (s *EditorSession) Snapshot() (Sheet, *Rect) {
	if rect, ok := s.sel.Rect(); ok {
		return s.sheet, &rect
	}
	return s.sheet, nil
}

// ApplyAssistant folds a structured assistant patch into the sheet through
// the normal mutation path, then reports the insight (and chart, if any)
// back to the asking client. Malformed values inside the patch pass through
// untouched; only null rows are filtered.
func (s *EditorSession) ApplyAssistant(command string, res *AssistantResult) reply {
	var r reply
	next := s.sheet
	mutated := false

	for _, col := range res.Columns {
		exists := false
		for _, c := range next.Columns {
			if c == col {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		columns := make([]string, len(next.Columns), len(next.Columns)+1)
		copy(columns, next.Columns)
		next.Columns = append(columns, col)
		mutated = true
	}

	rows := make([]Row, 0, len(res.Rows))
	for _, row := range res.Rows {
		if row == nil {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) > 0 {
		for i, row := range rows {
			nr := cloneRow(row)
			for _, key := range next.Columns {
				if _, ok := nr[key]; !ok {
					nr[key] = Null()
				}
			}
			rows[i] = nr
		}
		next.Rows = rows
		mutated = true
	}

	if len(res.Styles) > 0 {
		styles := next.cloneStyles()
		for k, patch := range res.Styles {
			styles[k] = styles[k].merge(patch)
		}
		next.Styles = styles
		mutated = true
	}

	if mutated {
		s.apply(next, "ASSISTANT_APPLY", "Applied assistant command: "+command)
		r.sheetChanged(s)
	}

	insight := res.Insight
	if insight == "" {
		insight = assistantFallbackInsight
	}
	globalChatLog.Append(s.user, command, insight)
	r.private = append(r.private, outbound("ASSISTANT_REPLY", s.workbook.ID, map[string]any{
		"insight": insight,
		"chart":   res.Chart,
	}))
	return r
}

// ReloadFromWorkbook installs the workbook's stored sheet (e.g. after a file
// import) through the history path so the previous state stays undoable.
func (s *EditorSession) ReloadFromWorkbook() reply {
	var r reply
	s.history.Push(s.sheet)
	s.sheet = s.workbook.Snapshot()
	r.sheetChanged(s)
	return r
}
