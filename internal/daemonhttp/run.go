package daemonhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nextlevelbuilder/agentworker/internal/classify"
	"github.com/nextlevelbuilder/agentworker/internal/worker"
)

type turnRequest struct {
	Agent   string `json:"agent"`
	Message string `json:"message"`
}

func (a *App) lookupAgent(w http.ResponseWriter, name string) (*agentEntry, bool) {
	a.mu.RLock()
	entry, ok := a.agents[name]
	a.mu.RUnlock()
	if !ok {
		writeErr(w, http.StatusNotFound, "agent not found")
		return nil, false
	}
	return entry, true
}

func turnErrorData(err error) map[string]any {
	ce := classify.FromError(err)
	return map[string]any{"errorClass": string(ce.Class), "retryable": ce.Retryable}
}

// handleRun streams a turn as Server-Sent Events: one "chunk" event per
// streamed piece of text, then one "done" event with the final
// AgentResponse, or one "error" event on failure. State is persisted by
// the worker after the final chunk.
func (a *App) handleRun(w http.ResponseWriter, r *http.Request) {
	if !a.requireReady(w) {
		return
	}

	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	entry, ok := a.lookupAgent(w, req.Agent)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(event string, data any) {
		payload, _ := json.Marshal(data)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
		if canFlush {
			flusher.Flush()
		}
	}

	entry.session.NoteActivity()
	resp, err := entry.handle.SendStream(r.Context(), req.Message, worker.SendOptions{}, func(chunk string) {
		writeEvent("chunk", map[string]string{"content": chunk})
	})
	entry.session.NoteRequestComplete(context.Background())

	if err != nil {
		writeEvent("error", map[string]any{"error": err.Error(), "data": turnErrorData(err)})
		return
	}
	writeEvent("done", resp)
}

// handleServe runs one turn synchronously and returns the final
// AgentResponse; state is persisted after, same as /run.
func (a *App) handleServe(w http.ResponseWriter, r *http.Request) {
	if !a.requireReady(w) {
		return
	}

	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	entry, ok := a.lookupAgent(w, req.Agent)
	if !ok {
		return
	}

	entry.session.NoteActivity()
	resp, err := entry.handle.Send(r.Context(), req.Message, worker.SendOptions{})
	entry.session.NoteRequestComplete(context.Background())

	if err != nil {
		writeJSON(w, http.StatusInternalServerError, envelope{
			Success: false,
			Error:   err.Error(),
			Data:    turnErrorData(err),
		})
		return
	}
	writeOK(w, http.StatusOK, resp)
}
