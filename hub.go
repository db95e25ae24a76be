package main

import (
	"encoding/json"
	"log"
)

// Message is the envelope exchanged over the websocket.
type Message struct {
	Type     string          `json:"type"`
	Workbook string          `json:"workbook,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	User     string          `json:"user,omitempty"`

	// originating client for inbound events; nil for server-initiated
	// messages injected from HTTP handlers
	client *Client
}

// Hub maintains the set of active clients grouped into rooms per workbook
// and routes every inbound event to the owning client's editor session.
// All session transitions happen inside run(), one at a time, which is what
// makes the editing core single-threaded.
type Hub struct {
	// Registered clients per workbook.
	rooms map[string]map[*Client]bool

	// Inbound events from the clients (and injected server events).
	events chan *Message

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	assistant *AssistantClient
}

func newHub(assistant *AssistantClient) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		events:     make(chan *Message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		assistant:  assistant,
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			if h.rooms[client.workbookID] == nil {
				h.rooms[client.workbookID] = make(map[*Client]bool)
			}
			h.rooms[client.workbookID][client] = true
			log.Printf("Client registered to workbook %s: %s", client.workbookID, client.userID)
			client.deliver(msgToBytes(client.session.InitMessage()))

		case client := <-h.unregister:
			if clients, ok := h.rooms[client.workbookID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.workbookID)
					}
					log.Printf("Client unregistered from workbook %s", client.workbookID)
				}
			}

		case message := <-h.events:
			h.dispatch(message)
		}
	}
}

func (h *Hub) dispatch(message *Message) {
	switch message.Type {
	case "ASSISTANT_ASK":
		if message.client != nil {
			h.startAssistant(message)
		}

	case "WORKBOOK_RELOADED":
		// Injected after a file import replaced the stored sheet. Every
		// session in the room adopts it through its history path.
		for client := range h.rooms[message.Workbook] {
			r := client.session.ReloadFromWorkbook()
			h.send(client, message.Workbook, r)
		}

	case "ASSISTANT_RESULT":
		if message.client == nil || !h.connected(message.client) {
			return
		}
		var res assistantOutcome
		if err := json.Unmarshal(message.Payload, &res); err != nil {
			log.Printf("hub: decode assistant outcome: %v", err)
			return
		}
		r := message.client.session.ApplyAssistant(res.Command, &res.Result)
		h.send(message.client, message.Workbook, r)

	default:
		if message.client == nil || message.client.session == nil {
			return
		}
		r := message.client.session.HandleEvent(message)
		h.send(message.client, message.Workbook, r)
	}
}

// assistantOutcome carries an assistant response back into the hub loop.
type assistantOutcome struct {
	Command string          `json:"command"`
	Result  AssistantResult `json:"result"`
}

// startAssistant snapshots the session state and calls the model off the
// hub goroutine; the parsed result re-enters as an ASSISTANT_RESULT event.
// Overlapping requests are not guarded: the later response wins.
func (h *Hub) startAssistant(message *Message) {
	var p assistantAskPayload
	if err := json.Unmarshal(message.Payload, &p); err != nil {
		log.Printf("hub: decode assistant ask: %v", err)
		return
	}
	sheet, selRect := message.client.session.Snapshot()
	client := message.client
	workbookID := message.Workbook
	go func() {
		result := h.assistant.Ask(p.Command, sheet, selRect)
		payload, err := json.Marshal(assistantOutcome{Command: p.Command, Result: result})
		if err != nil {
			log.Printf("hub: marshal assistant outcome: %v", err)
			return
		}
		h.events <- &Message{
			Type:     "ASSISTANT_RESULT",
			Workbook: workbookID,
			Payload:  payload,
			client:   client,
		}
	}()
}

func (h *Hub) connected(c *Client) bool {
	clients, ok := h.rooms[c.workbookID]
	return ok && clients[c]
}

// send delivers a reply: private messages to the originating client,
// broadcast messages to the whole room.
func (h *Hub) send(origin *Client, workbookID string, r reply) {
	for _, m := range r.private {
		h.deliverTo(origin, m)
	}
	if len(r.broadcast) == 0 {
		return
	}
	clients := h.rooms[workbookID]
	for _, m := range r.broadcast {
		b := msgToBytes(m)
		for client := range clients {
			if !client.deliver(b) {
				close(client.send)
				delete(clients, client)
			}
		}
	}
}

func (h *Hub) deliverTo(c *Client, m *Message) {
	if !h.connected(c) {
		return
	}
	if !c.deliver(msgToBytes(m)) {
		close(c.send)
		delete(h.rooms[c.workbookID], c)
	}
}

// Inject queues a server-initiated event into the hub loop.
func (h *Hub) Inject(m *Message) {
	h.events <- m
}

func msgToBytes(msg *Message) []byte {
	b, _ := json.Marshal(msg)
	return b
}
