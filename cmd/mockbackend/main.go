// Package main runs a small HTTP SSE server that speaks the coxswain turn
// stream protocol with scripted responses. It exists for local development:
// point the client at it with -backend-url and every feature of the turn
// lifecycle can be exercised without a real agent backend.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// frame sends a single SSE data frame followed by a flush.
func frame(w http.ResponseWriter, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

type event map[string]any

func turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	// Basic SSE headers and anti-buffering flags
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering (nginx, etc.)
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Initial comment to open the stream for some clients
	if _, err := fmt.Fprint(w, ": connected\n\n"); err == nil {
		flusher.Flush()
	}

	send := func(evt event) bool {
		select {
		case <-r.Context().Done():
			return false
		default:
		}
		if err := frame(w, flusher, evt); err != nil {
			return false
		}
		time.Sleep(60 * time.Millisecond)
		return true
	}

	script := []event{
		{"type": "meta", "model": "mock-agent-1"},
		{"type": "chunk", "text": "Looking at "},
		{"type": "chunk", "text": "your request: "},
		{"type": "chunk", "text": fmt.Sprintf("%q.\n\n", prompt)},
		{"type": "tool_start", "id": "tool-1", "name": "read_file", "input": `{"path":"main.go"}`},
		{"type": "tool_end", "id": "tool-1", "ok": true, "output": "package main"},
		{"type": "chunk", "text": "I checked the entry point. "},
		{"type": "agent_spawn", "id": "agent-1", "name": "explorer", "task": "map the repository"},
		{"type": "agent_progress", "id": "agent-1", "current_tool": "list_files"},
		{"type": "tasks", "tasks": []any{
			map[string]any{"id": "t1", "title": "Understand the request", "status": "completed"},
			map[string]any{"id": "t2", "title": "Draft an answer", "status": "in_progress"},
		}},
		{"type": "agent_end", "id": "agent-1", "ok": true, "result": "3 packages found"},
		{"type": "chunk", "text": "\nHere is a summary:\n\n- the repo builds\n- nothing is on fire\n"},
		{"type": "meta", "model": "mock-agent-1", "output_tokens": 42},
		{"type": "done"},
	}

	for _, evt := range script {
		if !send(evt) {
			return
		}
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/turns", turnHandler)

	addr := ":8723"
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	log.Printf("mock backend listening on %s (POST /v1/turns)", addr)
	log.Fatal(srv.ListenAndServe())
}
