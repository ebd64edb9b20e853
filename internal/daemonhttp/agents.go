package daemonhttp

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/nextlevelbuilder/agentworker/internal/domain"
	"github.com/nextlevelbuilder/agentworker/internal/lifecycle"
	"github.com/nextlevelbuilder/agentworker/internal/registry"
	"github.com/nextlevelbuilder/agentworker/internal/worker"
)

type createAgentRequest struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	System   string `json:"system"`
	Backend  string `json:"backend,omitempty"`
	Workflow string `json:"workflow,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

func (a *App) handleAgentsList(w http.ResponseWriter, r *http.Request) {
	if !a.requireReady(w) {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]domain.AgentConfig, 0, len(a.agents))
	for _, e := range a.agents {
		out = append(out, e.config)
	}
	writeOK(w, http.StatusOK, map[string]any{"agents": out})
}

func (a *App) handleAgentsCreate(w http.ResponseWriter, r *http.Request) {
	if !a.requireReady(w) {
		return
	}

	var req createAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" || req.Model == "" || req.System == "" {
		writeErr(w, http.StatusBadRequest, "name, model, and system are required")
		return
	}

	a.mu.Lock()
	if _, exists := a.agents[req.Name]; exists {
		a.mu.Unlock()
		writeErr(w, http.StatusConflict, "agent already exists")
		return
	}
	a.mu.Unlock()

	entry, err := a.startAgent(domain.AgentConfig{
		Name:      req.Name,
		Model:     req.Model,
		System:    req.System,
		Backend:   req.Backend,
		Workflow:  req.Workflow,
		Tag:       req.Tag,
		CreatedAt: time.Now(),
	}, nil)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeOK(w, http.StatusCreated, entry.config)
}

// startAgent builds the worker handle, shared-context provider, and
// lifecycle session for one agent, registers it in the registry, and
// starts its timers. schedule may be nil.
func (a *App) startAgent(cfg domain.AgentConfig, schedule *domain.ResolvedSchedule) (*agentEntry, error) {
	ctxProvider, err := a.sharedContextFor(cfg.Workflow, cfg.Tag)
	if err != nil {
		return nil, err
	}

	provider, err := a.provider(cfg)
	if err != nil {
		return nil, err
	}

	handle, err := worker.NewLocalHandle(worker.Config{
		Agent:    cfg,
		Provider: provider,
		Store:    a.store,
		Retry:    a.retryCfg,
	})
	if err != nil {
		return nil, err
	}

	session := lifecycle.NewSession(cfg.Name, handle, ctxProvider, a.cfg.DefaultIdleTimeout, schedule)
	session.ShutdownFunc = func() { a.removeAgent(cfg.Name) }

	entry := &agentEntry{
		config:   cfg,
		handle:   handle,
		session:  session,
		ctx:      ctxProvider,
		workflow: cfg.Workflow,
		tag:      cfg.Tag,
	}

	a.mu.Lock()
	a.agents[cfg.Name] = entry
	a.mu.Unlock()

	a.lifecycle.Start(a.rootCtx, session)

	info := registry.SessionInfo{
		ID:         registry.NewSessionID(),
		Name:       cfg.Name,
		Workflow:   cfg.Workflow,
		Tag:        cfg.Tag,
		ContextDir: a.contextDir(cfg.Workflow, cfg.Tag),
		Model:      cfg.Model,
		System:     cfg.System,
		Backend:    cfg.Backend,
		PID:        os.Getpid(),
		CreatedAt:  cfg.CreatedAt,
	}
	if schedule != nil {
		info.Schedule = &registry.ScheduleConfig{Wakeup: schedule.Expr, Prompt: schedule.Prompt}
		if schedule.Type == domain.ScheduleInterval {
			info.Schedule.Wakeup = formatMs(schedule.Ms)
		}
	}
	if err := a.reg.Register(info); err != nil {
		return nil, err
	}

	return entry, nil
}

// formatMs renders an interval schedule back into the grammar's bare
// milliseconds form, so a registry record can round-trip through
// lifecycle.ResolveSchedule on daemon restart.
func formatMs(ms int64) string {
	return strconv.FormatInt(ms, 10)
}

func (a *App) removeAgent(name string) {
	a.mu.Lock()
	entry, ok := a.agents[name]
	if ok {
		delete(a.agents, name)
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	if err := a.store.Save(name, entry.handle.GetState()); err != nil {
		slog.Warn("daemonhttp.agent_save_failed", "agent", name, "error", err)
	}
	a.lifecycle.Stop(name)
	_ = a.reg.Unregister(name)
}

func (a *App) handleAgentGet(w http.ResponseWriter, r *http.Request) {
	if !a.requireReady(w) {
		return
	}
	name := r.PathValue("name")

	a.mu.RLock()
	entry, ok := a.agents[name]
	a.mu.RUnlock()
	if !ok {
		writeErr(w, http.StatusNotFound, "agent not found")
		return
	}

	writeOK(w, http.StatusOK, map[string]any{
		"config": entry.config,
		"state":  entry.handle.GetState(),
	})
}

func (a *App) handleAgentDelete(w http.ResponseWriter, r *http.Request) {
	if !a.requireReady(w) {
		return
	}
	name := r.PathValue("name")

	a.mu.RLock()
	_, ok := a.agents[name]
	a.mu.RUnlock()
	if !ok {
		writeErr(w, http.StatusNotFound, "agent not found")
		return
	}

	a.removeAgent(name)
	writeOK(w, http.StatusOK, nil)
}
