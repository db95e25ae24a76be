package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
)

var (
	addr           = flag.String("addr", ":8080", "http service address")
	dataPath       = flag.String("data", "DATA", "directory for persisted workbooks and users")
	assistantURL   = flag.String("assistant-url", "https://api.openai.com", "base URL of the assistant model API")
	assistantKey   = flag.String("assistant-key", "", "API key for the assistant model")
	assistantModel = flag.String("assistant-model", "gpt-4o-mini", "model name for assistant requests")
)

func cors(methods string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// authed validates the Authorization token and passes the username through.
func authed(next func(w http.ResponseWriter, r *http.Request, username string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		username, err := globalUserManager.ValidateToken(token)
		if err != nil {
			http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r, username)
	}
}

func main() {
	flag.Parse()
	dataDir = *dataPath

	assistant := newAssistantClient(*assistantURL, *assistantKey, *assistantModel)
	hub := newHub(assistant)
	go hub.run()

	globalWorkbookStore.Load()
	globalUserManager.Load()
	globalChatLog.Load()

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})

	http.HandleFunc("/api/register", cors("POST", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Username == "" || req.Password == "" {
			http.Error(w, "Username and password required", http.StatusBadRequest)
			return
		}
		if err := globalUserManager.Register(req.Username, req.Password); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	http.HandleFunc("/api/login", cors("POST", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		token, err := globalUserManager.Login(req.Username, req.Password)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"token":    token,
			"username": req.Username,
		})
	}))

	http.HandleFunc("/api/logout", cors("POST", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token := r.Header.Get("Authorization"); token != "" {
			globalUserManager.Logout(token)
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "Logged out successfully"})
	}))

	http.HandleFunc("/api/password", cors("POST", authed(func(w http.ResponseWriter, r *http.Request, username string) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			OldPassword string `json:"old_password"`
			NewPassword string `json:"new_password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := globalUserManager.ChangePassword(username, req.OldPassword, req.NewPassword); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "Password changed successfully"})
	})))

	http.HandleFunc("/api/validate", cors("GET", authed(func(w http.ResponseWriter, r *http.Request, username string) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"username": username,
			"valid":    "true",
		})
	})))

	http.HandleFunc("/api/workbooks", cors("GET, POST, PUT, DELETE", authed(func(w http.ResponseWriter, r *http.Request, username string) {
		switch r.Method {
		case "GET":
			json.NewEncoder(w).Encode(globalWorkbookStore.List())

		case "POST":
			var req struct {
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			wb := globalWorkbookStore.Create(req.Name, username)
			json.NewEncoder(w).Encode(wb)

		case "PUT":
			var req struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if req.ID == "" || req.Name == "" {
				http.Error(w, "Workbook ID and name required", http.StatusBadRequest)
				return
			}
			if !globalWorkbookStore.Rename(req.ID, req.Name, username) {
				http.Error(w, "Workbook not found", http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"message": "Workbook renamed successfully"})

		case "DELETE":
			id := r.URL.Query().Get("id")
			if id == "" {
				http.Error(w, "Workbook ID required", http.StatusBadRequest)
				return
			}
			if !globalWorkbookStore.Delete(id) {
				http.Error(w, "Workbook not found", http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"message": "Workbook deleted"})
		}
	})))

	http.HandleFunc("/api/workbooks/duplicate", cors("POST", authed(func(w http.ResponseWriter, r *http.Request, username string) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		wb := globalWorkbookStore.Duplicate(req.ID, req.Name, username)
		if wb == nil {
			http.Error(w, "Workbook not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(wb)
	})))

	http.HandleFunc("/api/import", cors("POST", authed(func(w http.ResponseWriter, r *http.Request, username string) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		wb := globalWorkbookStore.Get(id)
		if wb == nil {
			http.Error(w, "Workbook not found", http.StatusNotFound)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "File required: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		sheet, err := ImportXLSX(file, header.Filename)
		if err != nil {
			// Unreadable bytes are a rejected operation, not a crash.
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		wb.Install(sheet, username, "IMPORT_FILE", "Imported "+header.Filename)
		hub.Inject(&Message{Type: "WORKBOOK_RELOADED", Workbook: id})
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message": "Imported " + header.Filename})
	})))

	http.HandleFunc("/api/export", cors("GET", authed(func(w http.ResponseWriter, r *http.Request, username string) {
		id := r.URL.Query().Get("id")
		wb := globalWorkbookStore.Get(id)
		if wb == nil {
			http.Error(w, "Workbook not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+wb.Name+`.xlsx"`)
		if err := ExportXLSX(wb.Snapshot(), w); err != nil {
			log.Printf("Error exporting workbook %s: %v", id, err)
		}
	})))

	http.HandleFunc("/api/chat", cors("GET", authed(func(w http.ResponseWriter, r *http.Request, username string) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(globalChatLog.HistoryFor(username))
	})))

	// Simple health check
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	log.Printf("Server started on %s", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}
