package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mohae/deepcopy"
)

// dataDir is where workbooks, users and the chat log are persisted.
// Overridable via -data (and by tests).
var dataDir = "DATA"

const (
	defaultSheetRows = 50
	defaultSheetCols = 20
)

func workbookFilePath(id string) string {
	return filepath.Join(dataDir, id+".json")
}

// ensureDataDir creates the data directory if it doesn't exist.
func ensureDataDir() error {
	return os.MkdirAll(dataDir, 0755)
}

type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Action    string    `json:"action"` // e.g. "EDIT_CELL", "MERGE_CELLS"
	Details   string    `json:"details"`
}

// Workbook is a stored sheet plus its audit trail. The Sheet field is a
// copy-on-write value: Install replaces it wholesale, so readers holding a
// snapshot are never affected by later writes.
type Workbook struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Owner    string       `json:"owner"`
	Sheet    Sheet        `json:"sheet"`
	AuditLog []AuditEntry `json:"audit_log"`
	mu       sync.RWMutex
}

// MarshalJSON keeps encoding thread-safe against concurrent Install calls.
func (w *Workbook) MarshalJSON() ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	type Alias Workbook
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(w),
	})
}

// Snapshot returns the current sheet value.
func (w *Workbook) Snapshot() Sheet {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.Sheet
}

// Install replaces the sheet, records the action and persists. Called from
// the hub goroutine for session mutations and from HTTP handlers for
// imports.
func (w *Workbook) Install(s Sheet, user, action, detail string) {
	w.mu.Lock()
	w.Sheet = s
	w.AuditLog = append(w.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    action,
		Details:   detail,
	})
	w.mu.Unlock()

	// Unlock before saving: Save marshals the workbook, which takes RLock.
	globalWorkbookStore.SaveWorkbook(w)
}

// Audit returns a copy of the audit trail.
func (w *Workbook) Audit() []AuditEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]AuditEntry, len(w.AuditLog))
	copy(out, w.AuditLog)
	return out
}

type WorkbookStore struct {
	workbooks map[string]*Workbook
	mu        sync.RWMutex
}

var globalWorkbookStore = &WorkbookStore{
	workbooks: make(map[string]*Workbook),
}

// Simple ID generator
func generateID() string {
	return time.Now().Format("20060102150405.000000")
}

func (ws *WorkbookStore) Create(name, owner string) *Workbook {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	id := generateID()
	w := &Workbook{
		ID:    id,
		Name:  name,
		Owner: owner,
		Sheet: newSheet(name, defaultSheetRows, defaultSheetCols),
		AuditLog: []AuditEntry{{
			Timestamp: time.Now(),
			User:      owner,
			Action:    "CREATE_WORKBOOK",
			Details:   "Created workbook " + name,
		}},
	}
	ws.workbooks[id] = w
	ws.saveWorkbookLocked(w)
	return w
}

func (ws *WorkbookStore) Get(id string) *Workbook {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.workbooks[id]
}

func (ws *WorkbookStore) List() []*Workbook {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	list := make([]*Workbook, 0, len(ws.workbooks))
	for _, w := range ws.workbooks {
		list = append(list, w)
	}
	return list
}

func (ws *WorkbookStore) Rename(id, newName, user string) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	w, ok := ws.workbooks[id]
	if !ok {
		return false
	}
	w.mu.Lock()
	oldName := w.Name
	w.Name = newName
	w.AuditLog = append(w.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    "RENAME_WORKBOOK",
		Details:   fmt.Sprintf("Renamed from %q to %q", oldName, newName),
	})
	w.mu.Unlock()
	ws.saveWorkbookLocked(w)
	return true
}

func (ws *WorkbookStore) Delete(id string) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if _, ok := ws.workbooks[id]; !ok {
		return false
	}
	delete(ws.workbooks, id)
	if err := os.Remove(workbookFilePath(id)); err != nil {
		log.Printf("Error deleting workbook file %s: %v", workbookFilePath(id), err)
	}
	return true
}

// Duplicate deep-copies a workbook's sheet into a new workbook owned by
// owner. newName defaults to the source name.
func (ws *WorkbookStore) Duplicate(sourceID, newName, owner string) *Workbook {
	src := ws.Get(sourceID)
	if src == nil {
		return nil
	}

	src.mu.RLock()
	if newName == "" {
		newName = src.Name
	}
	sheetCopy := deepcopy.Copy(src.Sheet).(Sheet)
	src.mu.RUnlock()

	ws.mu.Lock()
	defer ws.mu.Unlock()
	id := generateID()
	w := &Workbook{
		ID:    id,
		Name:  newName,
		Owner: owner,
		Sheet: sheetCopy,
		AuditLog: []AuditEntry{{
			Timestamp: time.Now(),
			User:      owner,
			Action:    "DUPLICATE_WORKBOOK",
			Details:   "Duplicated from workbook " + sourceID,
		}},
	}
	ws.workbooks[id] = w
	ws.saveWorkbookLocked(w)
	return w
}

// saveWorkbookLocked persists one workbook; the caller must hold the store
// lock (or be certain no registration races, as SaveWorkbook ensures).
func (ws *WorkbookStore) saveWorkbookLocked(w *Workbook) {
	if err := ensureDataDir(); err != nil {
		log.Printf("Error creating data directory: %v", err)
		return
	}
	file, err := os.Create(workbookFilePath(w.ID))
	if err != nil {
		log.Printf("Error saving workbook %s: %v", w.ID, err)
		return
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(w); err != nil {
		log.Printf("Error encoding workbook %s: %v", w.ID, err)
	}
}

func (ws *WorkbookStore) SaveWorkbook(w *Workbook) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	ws.saveWorkbookLocked(w)
}

func (ws *WorkbookStore) Load() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		log.Println("Data directory does not exist, starting fresh")
		return
	}

	files, err := filepath.Glob(filepath.Join(dataDir, "*.json"))
	if err != nil {
		log.Printf("Error listing data directory: %v", err)
		return
	}
	loaded := 0
	for _, filePath := range files {
		base := filepath.Base(filePath)
		if base == "chat.json" || base == "users.json" {
			continue
		}
		file, err := os.Open(filePath)
		if err != nil {
			log.Printf("Error opening workbook file %s: %v", filePath, err)
			continue
		}
		var w Workbook
		if err := json.NewDecoder(file).Decode(&w); err != nil {
			log.Printf("Error decoding workbook file %s: %v", filePath, err)
			file.Close()
			continue
		}
		file.Close()
		ws.workbooks[w.ID] = &w
		loaded++
	}
	log.Printf("Loaded %d workbooks from disk", loaded)
}
