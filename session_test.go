package main

import (
	"encoding/json"
	"testing"
)

func newTestSession(t *testing.T) *EditorSession {
	t.Helper()
	dataDir = t.TempDir()
	w := &Workbook{
		ID:    "wb-test",
		Name:  "Test",
		Owner: "alice",
		Sheet: newSheet("Test", defaultSheetRows, defaultSheetCols),
	}
	return newEditorSession(w, "alice")
}

func ev(t *testing.T, msgType string, payload any) *Message {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return &Message{Type: msgType, Workbook: "wb-test", Payload: b}
}

func findMsg(r reply, msgType string) *Message {
	for _, m := range r.private {
		if m.Type == msgType {
			return m
		}
	}
	for _, m := range r.broadcast {
		if m.Type == msgType {
			return m
		}
	}
	return nil
}

func TestSessionKeyboardRangeClear(t *testing.T) {
	s := newTestSession(t)
	for col := 0; col < 5; col++ {
		s.sheet = s.sheet.Set(0, col, Text("v"))
	}

	s.HandleEvent(ev(t, "POINTER_DOWN", pointerPayload{Row: 0, Col: 0}))
	s.HandleEvent(&Message{Type: "POINTER_UP"})
	for i := 0; i < 3; i++ {
		s.HandleEvent(ev(t, "KEY_DOWN", keyPayload{Key: "ArrowRight", Shift: true}))
	}

	rect, ok := s.sel.Rect()
	if !ok {
		t.Fatal("no selection")
	}
	if (rect != Rect{MinRow: 0, MaxRow: 0, MinCol: 0, MaxCol: 3}) {
		t.Fatalf("rect = %+v, want A1:D1", rect)
	}

	r := s.HandleEvent(ev(t, "KEY_DOWN", keyPayload{Key: "Delete"}))
	if findMsg(r, "SHEET") == nil {
		t.Fatal("clear should broadcast the new sheet")
	}
	for col := 0; col < 4; col++ {
		if !s.sheet.Get(0, col).IsNull() {
			t.Errorf("column %d not cleared", col)
		}
	}
	if s.sheet.Get(0, 4).Text != "v" {
		t.Error("cell outside the selection was cleared")
	}
}

func TestSessionTypeReplaceAndCommit(t *testing.T) {
	s := newTestSession(t)
	s.sheet = s.sheet.Set(0, 0, Text("old"))

	s.HandleEvent(ev(t, "POINTER_DOWN", pointerPayload{Row: 0, Col: 0}))
	s.HandleEvent(&Message{Type: "POINTER_UP"})
	// Typing starts an edit from the typed character, discarding the value.
	s.HandleEvent(ev(t, "KEY_DOWN", keyPayload{Key: "h"}))
	if !s.editor.Active || s.editor.Buffer != "h" {
		t.Fatalf("editor = %+v", s.editor)
	}
	s.HandleEvent(ev(t, "EDIT_CHANGE", editChangePayload{Text: "hello"}))
	r := s.HandleEvent(ev(t, "KEY_DOWN", keyPayload{Key: "Enter"}))

	if s.editor.Active {
		t.Fatal("editor still active after Enter")
	}
	if got := s.sheet.Get(0, 0); got != Text("hello") {
		t.Fatalf("cell = %+v", got)
	}
	// Enter advances the selection one row down.
	rect, _ := s.sel.Rect()
	if rect.MinRow != 1 || rect.MinCol != 0 {
		t.Fatalf("selection after Enter = %+v", rect)
	}
	if findMsg(r, "SHEET") == nil {
		t.Fatal("commit should broadcast the new sheet")
	}
}

func TestSessionDblClickEditsExistingValue(t *testing.T) {
	s := newTestSession(t)
	s.sheet = s.sheet.Set(1, 1, Number(3.5))

	s.HandleEvent(ev(t, "CELL_DBLCLICK", pointerPayload{Row: 1, Col: 1}))
	if !s.editor.Active || s.editor.Buffer != "3.5" {
		t.Fatalf("editor = %+v", s.editor)
	}
}

func TestSessionNoOpCommitPushesNoHistory(t *testing.T) {
	s := newTestSession(t)
	s.sheet = s.sheet.Set(0, 0, Text("same"))

	s.HandleEvent(ev(t, "CELL_DBLCLICK", pointerPayload{Row: 0, Col: 0}))
	before := s.history.Len()
	r := s.HandleEvent(&Message{Type: "EDIT_COMMIT"})

	if s.history.Len() != before {
		t.Fatal("no-op commit pushed a history entry")
	}
	if findMsg(r, "SHEET") != nil {
		t.Fatal("no-op commit should not broadcast")
	}
	if len(s.workbook.Audit()) != 0 {
		t.Fatal("no-op commit reached the audit log")
	}
}

func TestSessionEscapeDiscardsEdit(t *testing.T) {
	s := newTestSession(t)
	s.sheet = s.sheet.Set(0, 0, Text("keep"))

	s.HandleEvent(ev(t, "CELL_DBLCLICK", pointerPayload{Row: 0, Col: 0}))
	s.HandleEvent(ev(t, "EDIT_CHANGE", editChangePayload{Text: "thrown away"}))
	s.HandleEvent(ev(t, "KEY_DOWN", keyPayload{Key: "Escape"}))

	if s.editor.Active {
		t.Fatal("editor still active after Escape")
	}
	if s.sheet.Get(0, 0).Text != "keep" {
		t.Fatal("discarded edit mutated the sheet")
	}
}

func TestSessionMergeChoiceFlow(t *testing.T) {
	s := newTestSession(t)
	s.sheet = s.sheet.Set(0, 0, Text("A"))
	s.sheet = s.sheet.Set(0, 1, Text("B"))

	s.HandleEvent(ev(t, "POINTER_DOWN", pointerPayload{Row: 0, Col: 0}))
	s.HandleEvent(ev(t, "POINTER_ENTER", pointerPayload{Row: 1, Col: 1}))
	s.HandleEvent(&Message{Type: "POINTER_UP"})

	// Two values at stake: the session asks instead of merging.
	r := s.HandleEvent(ev(t, "MERGE", mergePayload{}))
	if findMsg(r, "MERGE_CHOICE") == nil {
		t.Fatal("expected MERGE_CHOICE prompt")
	}
	if len(s.sheet.Merges) != 0 {
		t.Fatal("merge applied before the client chose a strategy")
	}

	r = s.HandleEvent(ev(t, "MERGE", mergePayload{Strategy: "content"}))
	if findMsg(r, "SHEET") == nil {
		t.Fatal("resolved merge should broadcast")
	}
	if got := s.sheet.Get(0, 0).Text; got != "A B" {
		t.Fatalf("merged root = %q, want %q", got, "A B")
	}
	if s.pendingMerge != nil {
		t.Fatal("pending merge not cleared")
	}
}

func TestSessionMergeAutoStandardAndToggle(t *testing.T) {
	s := newTestSession(t)
	s.sheet = s.sheet.Set(0, 0, Text("only"))

	s.HandleEvent(ev(t, "POINTER_DOWN", pointerPayload{Row: 0, Col: 0}))
	s.HandleEvent(ev(t, "POINTER_ENTER", pointerPayload{Row: 1, Col: 1}))
	s.HandleEvent(&Message{Type: "POINTER_UP"})

	// One non-empty cell: no prompt, standard merge right away.
	s.HandleEvent(ev(t, "MERGE", mergePayload{}))
	if len(s.sheet.Merges) != 1 {
		t.Fatal("merge not applied")
	}

	// Same rectangle again toggles the merge off.
	s.HandleEvent(ev(t, "MERGE", mergePayload{}))
	if len(s.sheet.Merges) != 0 {
		t.Fatal("second merge did not unmerge")
	}
}

func TestSessionUndo(t *testing.T) {
	s := newTestSession(t)

	s.HandleEvent(ev(t, "POINTER_DOWN", pointerPayload{Row: 0, Col: 0}))
	s.HandleEvent(&Message{Type: "POINTER_UP"})
	s.HandleEvent(ev(t, "KEY_DOWN", keyPayload{Key: "x"}))
	s.HandleEvent(ev(t, "KEY_DOWN", keyPayload{Key: "Enter"}))
	if s.sheet.Get(0, 0).Text != "x" {
		t.Fatal("edit not applied")
	}

	r := s.HandleEvent(&Message{Type: "UNDO"})
	if !s.sheet.Get(0, 0).IsNull() {
		t.Fatal("undo did not revert the edit")
	}
	if findMsg(r, "SHEET") == nil {
		t.Fatal("undo should broadcast")
	}

	// Empty history: nothing to do, nothing to send.
	r = s.HandleEvent(&Message{Type: "UNDO"})
	if findMsg(r, "SHEET") != nil {
		t.Fatal("undo on empty history should be silent")
	}
}

func TestSessionAutocompleteAccept(t *testing.T) {
	s := newTestSession(t)
	s.HandleEvent(ev(t, "CELL_DBLCLICK", pointerPayload{Row: 0, Col: 0}))
	s.HandleEvent(ev(t, "EDIT_CHANGE", editChangePayload{Text: "=su"}))
	if !s.editor.Auto.Active {
		t.Fatal("autocomplete not active")
	}

	// Enter accepts the highlighted function instead of committing.
	s.HandleEvent(ev(t, "KEY_DOWN", keyPayload{Key: "Enter"}))
	if !s.editor.Active {
		t.Fatal("accept should keep the edit open")
	}
	if s.editor.Buffer != "=SUM(" {
		t.Fatalf("buffer = %q, want =SUM(", s.editor.Buffer)
	}
	if s.editor.Auto.Active {
		t.Fatal("autocomplete should deactivate after the paren")
	}
}

func TestSessionAssistantEscapeHatch(t *testing.T) {
	s := newTestSession(t)
	s.HandleEvent(ev(t, "CELL_DBLCLICK", pointerPayload{Row: 0, Col: 0}))
	s.HandleEvent(ev(t, "EDIT_CHANGE", editChangePayload{Text: "=su"}))
	s.HandleEvent(ev(t, "AUTOCOMPLETE_MOVE", autocompleteMovePayload{Dir: 1}))
	s.HandleEvent(ev(t, "AUTOCOMPLETE_MOVE", autocompleteMovePayload{Dir: 1}))
	if !s.editor.Auto.AtAssistant() {
		t.Fatal("highlight not on the assistant entry")
	}

	r := s.HandleEvent(&Message{Type: "AUTOCOMPLETE_ACCEPT"})
	if findMsg(r, "ASSISTANT_PROMPT") == nil {
		t.Fatal("expected ASSISTANT_PROMPT")
	}
	if !s.editor.Active || s.editor.Buffer != "=su" {
		t.Fatal("edit should stay open with its buffer intact")
	}
}

func TestSessionBlurSkippedWhileAutocompleteOpen(t *testing.T) {
	s := newTestSession(t)
	s.HandleEvent(ev(t, "CELL_DBLCLICK", pointerPayload{Row: 0, Col: 0}))
	s.HandleEvent(ev(t, "EDIT_CHANGE", editChangePayload{Text: "=su"}))

	s.HandleEvent(&Message{Type: "EDIT_COMMIT"})
	if !s.editor.Active {
		t.Fatal("blur while the list is open should not commit")
	}
	if !s.sheet.Get(0, 0).IsNull() {
		t.Fatal("blur wrote the partial formula")
	}
}

func TestSessionResizeFlow(t *testing.T) {
	s := newTestSession(t)
	s.HandleEvent(ev(t, "RESIZE_COL_START", resizeColStartPayload{Col: "B", X: 300}))
	r := s.HandleEvent(ev(t, "RESIZE_MOVE", resizeMovePayload{X: 340}))
	if findMsg(r, "SHEET") == nil {
		t.Fatal("resize move should broadcast")
	}
	if got := s.sheet.ColWidth("B"); got != defaultColWidth+40 {
		t.Fatalf("ColWidth = %d, want %d", got, defaultColWidth+40)
	}
	s.HandleEvent(&Message{Type: "RESIZE_END"})
	if s.resizer.Active() {
		t.Fatal("resizer still active after RESIZE_END")
	}
}

func TestSessionMalformedPayload(t *testing.T) {
	s := newTestSession(t)
	r := s.HandleEvent(&Message{Type: "POINTER_DOWN", Payload: json.RawMessage(`"oops"`)})
	if findMsg(r, "ERROR") == nil {
		t.Fatal("malformed payload should produce an ERROR reply")
	}
}

func TestSessionApplyAssistant(t *testing.T) {
	s := newTestSession(t)
	s.workbook.Sheet = newSheet("Test", 2, 2)
	s.sheet = s.workbook.Snapshot()

	res := &AssistantResult{
		Columns: []string{"B", "C"}, // B exists, C is new
		Rows: []Row{
			{"A": Text("x"), "C": Number(1)},
			nil, // filtered out
		},
		Insight: "one row of data",
	}
	r := s.ApplyAssistant("add totals", res)

	if len(s.sheet.Columns) != 3 || s.sheet.Columns[2] != "C" {
		t.Fatalf("Columns = %v", s.sheet.Columns)
	}
	if len(s.sheet.Rows) != 1 {
		t.Fatalf("Rows = %d, want 1", len(s.sheet.Rows))
	}
	// Every row is normalized to the full column set.
	if !s.sheet.Get(0, 1).IsNull() {
		t.Fatal("missing cell not normalized to null")
	}
	if s.sheet.Get(0, 2) != Number(1) {
		t.Fatalf("C1 = %+v", s.sheet.Get(0, 2))
	}

	reply := findMsg(r, "ASSISTANT_REPLY")
	if reply == nil {
		t.Fatal("expected ASSISTANT_REPLY")
	}
	var body struct {
		Insight string `json:"insight"`
	}
	if err := json.Unmarshal(reply.Payload, &body); err != nil {
		t.Fatal(err)
	}
	if body.Insight != "one row of data" {
		t.Fatalf("insight = %q", body.Insight)
	}

	audit := s.workbook.Audit()
	if len(audit) == 0 || audit[len(audit)-1].Action != "ASSISTANT_APPLY" {
		t.Fatalf("audit = %+v", audit)
	}
}

func TestSessionApplyAssistantInsightOnly(t *testing.T) {
	s := newTestSession(t)
	before := s.sheet

	r := s.ApplyAssistant("what stands out?", &AssistantResult{Insight: "nothing unusual"})
	if findMsg(r, "SHEET") != nil {
		t.Fatal("insight-only result should not broadcast a sheet")
	}
	if len(s.workbook.Audit()) != 0 {
		t.Fatal("insight-only result reached the audit log")
	}
	if s.sheet.Get(0, 0) != before.Get(0, 0) {
		t.Fatal("sheet mutated")
	}
}

func TestSessionReloadFromWorkbook(t *testing.T) {
	s := newTestSession(t)
	s.sheet = s.sheet.Set(0, 0, Text("stale"))

	imported := newSheet("Test", 2, 2)
	imported = imported.Set(0, 0, Text("fresh"))
	s.workbook.Install(imported, "alice", "IMPORT_FILE", "Imported data.xlsx")

	r := s.ReloadFromWorkbook()
	if findMsg(r, "SHEET") == nil {
		t.Fatal("reload should broadcast")
	}
	if s.sheet.Get(0, 0).Text != "fresh" {
		t.Fatal("reload did not adopt the stored sheet")
	}
	// The pre-import state stays one undo away.
	snap, ok := s.history.Undo()
	if !ok || snap.Get(0, 0).Text != "stale" {
		t.Fatal("pre-import state not undoable")
	}
}
