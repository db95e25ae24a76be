package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AssistantExchange is one command/insight pair from the assistant.
type AssistantExchange struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Command   string    `json:"command"`
	Insight   string    `json:"insight"`
}

type ChatLog struct {
	mu       sync.RWMutex
	messages []AssistantExchange
}

var globalChatLog = &ChatLog{}

func chatFilePath() string {
	return filepath.Join(dataDir, "chat.json")
}

func (cl *ChatLog) Load() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if err := ensureDataDir(); err != nil {
		log.Printf("chat: ensure data dir: %v", err)
		return
	}
	f, err := os.Open(chatFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			cl.messages = []AssistantExchange{}
			return
		}
		log.Printf("chat: open file: %v", err)
		return
	}
	defer f.Close()
	var msgs []AssistantExchange
	if err := json.NewDecoder(f).Decode(&msgs); err != nil {
		log.Printf("chat: decode: %v", err)
		cl.messages = []AssistantExchange{}
		return
	}
	cl.messages = msgs
}

func (cl *ChatLog) Save() {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	if err := ensureDataDir(); err != nil {
		log.Printf("chat: ensure data dir: %v", err)
		return
	}
	f, err := os.Create(chatFilePath())
	if err != nil {
		log.Printf("chat: create file: %v", err)
		return
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cl.messages); err != nil {
		log.Printf("chat: encode: %v", err)
	}
}

func (cl *ChatLog) Append(user, command, insight string) AssistantExchange {
	cl.mu.Lock()
	msg := AssistantExchange{Timestamp: time.Now(), User: user, Command: command, Insight: insight}
	cl.messages = append(cl.messages, msg)
	cl.mu.Unlock()
	go cl.Save()
	return msg
}

// HistoryFor returns the exchanges initiated by a specific user.
func (cl *ChatLog) HistoryFor(user string) []AssistantExchange {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	out := make([]AssistantExchange, 0, len(cl.messages))
	for _, m := range cl.messages {
		if m.User == user {
			out = append(out, m)
		}
	}
	return out
}
