// Package daemonhttp implements the daemon's HTTP control plane: agent
// CRUD, synchronous and streaming turns, workflow lifecycle, and the
// session-scoped MCP transport, all behind one bearer-token gate.
package daemonhttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/agentworker/internal/daemonconfig"
	"github.com/nextlevelbuilder/agentworker/internal/domain"
	"github.com/nextlevelbuilder/agentworker/internal/health"
	"github.com/nextlevelbuilder/agentworker/internal/lifecycle"
	"github.com/nextlevelbuilder/agentworker/internal/mcpserver"
	"github.com/nextlevelbuilder/agentworker/internal/proposal"
	"github.com/nextlevelbuilder/agentworker/internal/registry"
	"github.com/nextlevelbuilder/agentworker/internal/retry"
	"github.com/nextlevelbuilder/agentworker/internal/sharedcontext"
	"github.com/nextlevelbuilder/agentworker/internal/statestore"
	"github.com/nextlevelbuilder/agentworker/internal/worker"
)

const defaultTag = "main"

// agentEntry is one standalone or workflow-member agent known to the app.
type agentEntry struct {
	config   domain.AgentConfig
	handle   *worker.LocalHandle
	session  *lifecycle.Session
	ctx      *sharedcontext.Provider
	workflow string // "" for standalone
	tag      string
}

// workflowEntry groups the agents started by one POST /workflows call.
type workflowEntry struct {
	name    string
	tag     string
	handle  *worker.WorkflowHandle
	agents  []string
	mcp     *mcpserver.Server
}

// App is the shared process-wide state every handler closes over,
// matching the teacher's gateway.Server / http.AgentsHandler
// receiver-method convention.
type App struct {
	cfg      daemonconfig.Config
	reg      *registry.Registry
	store    statestore.Store
	retryCfg retry.Config
	provider worker.ProviderFactory
	health   *health.Tracker

	rootCtx    context.Context
	cancelRoot context.CancelFunc
	lifecycle  *lifecycle.Manager
	proposals  *proposal.Manager

	mu            sync.RWMutex
	agents        map[string]*agentEntry
	workflows     map[string]*workflowEntry
	contexts      map[string]*sharedcontext.Provider // workflow/tag -> provider, for standalone reuse
	standaloneMCP map[string]*mcpserver.Server        // standalone agent name -> its own MCP server

	startedAt time.Time
	ready     atomic.Bool

	runLimiter   *rate.Limiter
	serveLimiter *rate.Limiter

	httpServer   *http.Server
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New constructs the App. providerFactory supplies the Provider bound to
// each new agent; pass a factory returning &worker.EchoProvider{} when no
// concrete SDK-backed provider is configured.
func New(cfg daemonconfig.Config, reg *registry.Registry, store statestore.Store, providerFactory worker.ProviderFactory) *App {
	rootCtx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:        cfg,
		reg:        reg,
		store:      store,
		provider:   providerFactory,
		retryCfg:   retry.Config{MaxRetries: cfg.RetryMaxRetries},
		health:     health.New("daemon", cfg.HealthThreshold),
		rootCtx:    rootCtx,
		cancelRoot: cancel,
		lifecycle:  lifecycle.NewManager(),
		proposals:  proposal.NewManager(),
		agents:        make(map[string]*agentEntry),
		workflows:     make(map[string]*workflowEntry),
		contexts:      make(map[string]*sharedcontext.Provider),
		standaloneMCP: make(map[string]*mcpserver.Server),
		startedAt:     time.Now(),
		shutdownCh: make(chan struct{}),
	}
	a.ready.Store(true)
	return a
}

// BuildMux registers every route. Call once before Start.
func (a *App) BuildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.withAuth(a.handleHealth))
	mux.HandleFunc("POST /shutdown", a.withAuth(a.handleShutdown))

	mux.HandleFunc("GET /agents", a.withAuth(a.handleAgentsList))
	mux.HandleFunc("POST /agents", a.withAuth(a.handleAgentsCreate))
	mux.HandleFunc("GET /agents/{name}", a.withAuth(a.handleAgentGet))
	mux.HandleFunc("DELETE /agents/{name}", a.withAuth(a.handleAgentDelete))

	mux.HandleFunc("POST /run", a.withAuth(a.withRateLimit(a.runLimiter, a.handleRun)))
	mux.HandleFunc("POST /serve", a.withAuth(a.withRateLimit(a.serveLimiter, a.handleServe)))

	mux.HandleFunc("POST /workflows", a.withAuth(a.handleWorkflowsCreate))
	mux.HandleFunc("GET /workflows", a.withAuth(a.handleWorkflowsList))
	mux.HandleFunc("DELETE /workflows/{name}", a.withAuth(a.handleWorkflowsDelete))
	mux.HandleFunc("DELETE /workflows/{name}/{tag}", a.withAuth(a.handleWorkflowsDelete))

	mux.HandleFunc("/mcp", a.withAuth(a.handleMCP))

	return mux
}

// Start sets up rate limiters (matching the /run and /serve RPM config)
// and serves mux until ctx is cancelled, then drains for up to 10s per
// the spec's graceful-shutdown contract.
func (a *App) Start(ctx context.Context, runRPM, serveRPM int) error {
	a.runLimiter = newLimiter(runRPM)
	a.serveLimiter = newLimiter(serveRPM)

	mux := a.BuildMux()
	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	a.httpServer = &http.Server{Addr: addr, Handler: mux}

	slog.Info("daemonhttp.starting", "addr", addr)

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		a.doShutdown()
	}()

	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("daemonhttp: listen: %w", err)
	}
	return nil
}

func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
}

// RequestShutdown triggers the same drain-then-stop sequence Start's
// context cancellation would, for use by the /shutdown handler.
func (a *App) RequestShutdown() {
	a.shutdownOnce.Do(func() { close(a.shutdownCh) })
}

func (a *App) doShutdown() {
	slog.Info("daemonhttp.shutting_down")

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.waitForQuiescence(drainCtx)

	if err := a.lifecycle.StopAll(); err != nil {
		slog.Warn("daemonhttp.lifecycle_stop_failed", "error", err)
	}
	a.cancelRoot()

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.httpServer.Shutdown(shutdownCtx)
	}

	a.persistAll()
	a.reg.RemoveDaemonRecord()
}

func (a *App) waitForQuiescence(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if a.totalPending() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) totalPending() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var total int64
	for _, e := range a.agents {
		total += e.handle.PendingRequests()
	}
	return total
}

func (a *App) persistAll() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for name, e := range a.agents {
		if err := a.store.Save(name, e.handle.GetState()); err != nil {
			slog.Warn("daemonhttp.persist_failed", "agent", name, "error", err)
		}
	}
}

// contextDir resolves the on-disk context directory for a (workflow, tag)
// pair, defaulting tag to "main" and workflow to "_standalone_<tag>" for
// standalone agents, so all standalone agents with one tag share a context.
func (a *App) contextDir(workflow, tag string) string {
	if tag == "" {
		tag = defaultTag
	}
	if workflow == "" {
		workflow = "_standalone_" + tag
	}
	return filepath.Join(a.cfg.Home, "context", workflow, tag)
}

func (a *App) sharedContextFor(workflow, tag string) (*sharedcontext.Provider, error) {
	key := workflow + "/" + tag
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.contexts[key]; ok {
		return p, nil
	}
	dir := a.contextDir(workflow, tag)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	p, err := sharedcontext.Open(dir)
	if err != nil {
		return nil, err
	}
	a.contexts[key] = p
	return p, nil
}
