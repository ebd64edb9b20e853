// Package mcpserver exposes one shared-context Provider (and, optionally,
// one proposal Manager) to agents as an MCP tool surface, one
// session-scoped transport per MCP session id.
package mcpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/agentworker/internal/proposal"
	"github.com/nextlevelbuilder/agentworker/internal/sharedcontext"
)

const sessionIDHeader = "Mcp-Session-Id"

var sessionIDPattern = regexp.MustCompile(`^(.+)-[0-9a-f]{8}$`)

// AgentResolver resolves a caller's agent identity to the set of agent
// names sharing its workflow. Returns ok=false for an unknown agent.
type AgentResolver func(agent string) (workflowAgents []string, ok bool)

// Server mounts one MCP transport per agent session onto one HTTP
// handler, all backed by the same shared-context Provider.
type Server struct {
	ctx        *sharedcontext.Provider
	proposals  *proposal.Manager // nil disables team_proposal_* tools
	resolve    AgentResolver

	mu       sync.RWMutex
	sessions map[string]*agentSession
}

type agentSession struct {
	agent       string
	validAgents []string
	transport   http.Handler
}

func New(ctxProvider *sharedcontext.Provider, proposals *proposal.Manager, resolve AgentResolver) *Server {
	return &Server{
		ctx:       ctxProvider,
		proposals: proposals,
		resolve:   resolve,
		sessions:  make(map[string]*agentSession),
	}
}

// ServeHTTP implements the single ALL /mcp route: requests carrying a
// known session id are routed to their existing transport; a request
// with no recognized session id must be an initialize call, from which a
// new session is minted.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if sid := r.Header.Get(sessionIDHeader); sid != "" {
		s.mu.RLock()
		sess, ok := s.sessions[sid]
		s.mu.RUnlock()
		if ok {
			sess.transport.ServeHTTP(w, r)
			return
		}
	}

	agent := r.URL.Query().Get("agent")
	if agent == "" {
		agent = "user"
	}

	workflowAgents, ok := s.resolve(agent)
	if !ok {
		workflowAgents = nil
	}
	validAgents := unionAgents(workflowAgents, agent, "user")

	idMgr := &sessionIDManager{agent: agent}
	mcpServer := s.buildMCPServer(agent, validAgents)
	transport := server.NewStreamableHTTPServer(mcpServer, server.WithSessionIdManager(idMgr))

	rec := httptest.NewRecorder()
	transport.ServeHTTP(rec, r)

	sessionID := rec.Header().Get(sessionIDHeader)
	if sessionID != "" {
		s.mu.Lock()
		s.sessions[sessionID] = &agentSession{agent: agent, validAgents: validAgents, transport: transport}
		s.mu.Unlock()
		slog.Info("mcpserver.session.created", "agent", agent, "sessionId", sessionID)
	}

	for k, vs := range rec.Header() {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(rec.Code)
	w.Write(rec.Body.Bytes())
}

// RemoveSession drops a closed session's transport from the routing
// table; wired to server.Hooks.AddOnUnregisterSession by the caller.
func (s *Server) RemoveSession(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// AgentFromSessionID extracts the agent identity a transport's session
// id was minted for, per the "<agent>-<random8>" scheme.
func AgentFromSessionID(sessionID string) (string, bool) {
	m := sessionIDPattern.FindStringSubmatch(sessionID)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func unionAgents(workflowAgents []string, extra ...string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(a string) {
		if a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	for _, a := range workflowAgents {
		add(a)
	}
	for _, a := range extra {
		add(a)
	}
	return out
}

// sessionIDManager mints ids of the form "<agent>-<random8hex>" so the
// agent identity can be recovered later from the transport's session id
// alone (see AgentFromSessionID).
type sessionIDManager struct {
	agent string
}

func (m *sessionIDManager) Generate() string {
	return m.agent + "-" + randomHex8()
}

func (m *sessionIDManager) Validate(sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("mcpserver: empty session id")
	}
	return sessionID, nil
}

func randomHex8() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(buf)
}

// NewHooks builds the server.Hooks used by every per-session MCP server:
// logs client info on initialize and cleans up the routing table when a
// session closes.
func NewHooks(s *Server) *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeInitialize(func(ctx context.Context, id any, message *mcp.InitializeRequest) {
		if message == nil {
			return
		}
		ci := message.Params.ClientInfo
		slog.Info("mcpserver.session.initialize", "client", ci.Name, "version", ci.Version)
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		s.RemoveSession(session.SessionID())
		slog.Info("mcpserver.session.closed", "sessionId", session.SessionID())
	})
	return hooks
}
