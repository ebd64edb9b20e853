package daemonhttp

import (
	"net/http"

	"github.com/nextlevelbuilder/agentworker/internal/mcpserver"
)

// handleMCP routes to the session-scoped MCP transport for the agent
// named by the "agent" query parameter (the initial request) or, once a
// session is established, by the Mcp-Session-Id header per 4.J'.
func (a *App) handleMCP(w http.ResponseWriter, r *http.Request) {
	if !a.requireReady(w) {
		return
	}

	agentName := r.URL.Query().Get("agent")
	if agentName == "" {
		if sessionID := r.Header.Get("Mcp-Session-Id"); sessionID != "" {
			if resolved, ok := mcpserver.AgentFromSessionID(sessionID); ok {
				agentName = resolved
			}
		}
	}
	if agentName == "" {
		writeErr(w, http.StatusBadRequest, "agent query parameter or Mcp-Session-Id header required")
		return
	}

	srv, ok := a.mcpServerFor(agentName)
	if !ok {
		writeErr(w, http.StatusNotFound, "agent not found")
		return
	}
	srv.ServeHTTP(w, r)
}

// mcpServerFor returns the mcpserver.Server that should handle requests
// for agentName: the workflow-wide server if the agent belongs to one,
// else a lazily-created single-agent server over the standalone context
// shared by all standalone agents with the same tag.
func (a *App) mcpServerFor(agentName string) (*mcpserver.Server, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.agents[agentName]
	if !ok {
		return nil, false
	}

	if entry.workflow != "" {
		key := entry.workflow + "/" + entry.tag
		if wf, ok := a.workflows[key]; ok {
			return wf.mcp, true
		}
	}

	if srv, ok := a.standaloneMCP[agentName]; ok {
		return srv, true
	}

	resolver := func(agent string) ([]string, bool) {
		if agent == agentName {
			return []string{agentName}, true
		}
		return nil, false
	}
	srv := mcpserver.New(entry.ctx, a.proposals, resolver)
	a.standaloneMCP[agentName] = srv
	return srv, true
}
