package daemonhttp

import (
	"net/http"
	"os"
	"time"
)

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !a.requireReady(w) {
		return
	}

	a.mu.RLock()
	numAgents := len(a.agents)
	numWorkflows := len(a.workflows)
	a.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"pid":       os.Getpid(),
		"port":      a.cfg.Port,
		"uptime":    time.Since(a.startedAt).Milliseconds(),
		"agents":    numAgents,
		"workflows": numWorkflows,
	})
}

func (a *App) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, nil)
	go a.RequestShutdown()
}
