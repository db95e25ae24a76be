package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// assistantSnapshotRows caps how many rows of the sheet are sent with a
// command; large sheets are truncated, not sampled.
const assistantSnapshotRows = 100

const assistantFallbackInsight = "Sorry, I could not understand the response from the model. Please try rephrasing your command."

const assistantSystemPrompt = `You are a spreadsheet assistant. You receive the current sheet as JSON together with a user command. Reply with a single JSON object and nothing else. Allowed fields: "rows" (full replacement row set, each row keyed by column label), "columns" (new column labels to append), "styles" (map of "rowIndex-colKey" to style patches), "insight" (short human-readable summary), "chart" ({"type":"bar"|"line"|"pie","data":[{"name":...,"value":...}]}). Omit fields you do not need.`

// AssistantResult is the structured patch parsed from a model reply. Cell
// values are not validated beyond the null-row filter; malformed values pass
// through to rendering.
type AssistantResult struct {
	Rows    []Row                `json:"rows,omitempty"`
	Columns []string             `json:"columns,omitempty"`
	Styles  map[string]CellStyle `json:"styles,omitempty"`
	Insight string               `json:"insight,omitempty"`
	Chart   *ChartSpec           `json:"chart,omitempty"`
}

type ChartSpec struct {
	Type string       `json:"type"` // bar, line or pie
	Data []ChartPoint `json:"data"`
}

type ChartPoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// AssistantClient talks to an OpenAI-style chat-completions endpoint.
type AssistantClient struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

func newAssistantClient(baseURL, apiKey, model string) *AssistantClient {
	return &AssistantClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Ask sends a command plus a capped sheet snapshot and the selection to the
// model and parses the reply. Failures never mutate the sheet: transport
// and parse errors both degrade to the fixed fallback insight. There is no
// retry; the user re-issues the command.
func (a *AssistantClient) Ask(command string, sheet Sheet, sel *Rect) AssistantResult {
	content, err := a.complete(command, sheet, sel)
	if err != nil {
		log.Printf("assistant: request failed: %v", err)
		return AssistantResult{Insight: assistantFallbackInsight}
	}
	return parseAssistantContent(content)
}

func (a *AssistantClient) complete(command string, sheet Sheet, sel *Rect) (string, error) {
	snapshot := sheet
	if len(snapshot.Rows) > assistantSnapshotRows {
		snapshot.Rows = snapshot.Rows[:assistantSnapshotRows]
	}
	snapJSON, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Command: %s\n\nSheet:\n%s\n", command, snapJSON)
	if sel != nil {
		fmt.Fprintf(&user, "\nSelection: %s\n", rectAddress(*sel))
	}

	body, err := json.Marshal(chatRequest{
		Model: a.Model,
		Messages: []chatMessage{
			{Role: "system", Content: assistantSystemPrompt},
			{Role: "user", Content: user.String()},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, a.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model returned status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return cr.Choices[0].Message.Content, nil
}

// parseAssistantContent extracts the structured patch from the model text.
// Fenced code blocks are tolerated. Anything unparseable becomes the fixed
// fallback insight with no sheet mutation.
func parseAssistantContent(content string) AssistantResult {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	var res AssistantResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		log.Printf("assistant: unparseable reply: %v", err)
		return AssistantResult{Insight: assistantFallbackInsight}
	}
	return res
}
