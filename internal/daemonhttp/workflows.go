package daemonhttp

import (
	"net/http"
	"time"

	"github.com/nextlevelbuilder/agentworker/internal/domain"
	"github.com/nextlevelbuilder/agentworker/internal/lifecycle"
	"github.com/nextlevelbuilder/agentworker/internal/mcpserver"
	"github.com/nextlevelbuilder/agentworker/internal/worker"
)

type workflowAgentSpec struct {
	Name    string `json:"name"`
	Model   string `json:"model"`
	System  string `json:"system"`
	Backend string `json:"backend,omitempty"`
}

type createWorkflowRequest struct {
	Name   string              `json:"name"`
	Tag    string              `json:"tag,omitempty"`
	Agents []workflowAgentSpec `json:"agents"`
}

func (a *App) handleWorkflowsCreate(w http.ResponseWriter, r *http.Request) {
	if !a.requireReady(w) {
		return
	}

	var req createWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" || len(req.Agents) == 0 {
		writeErr(w, http.StatusBadRequest, "name and at least one agent are required")
		return
	}
	tag := req.Tag
	if tag == "" {
		tag = defaultTag
	}
	key := req.Name + "/" + tag

	a.mu.Lock()
	if _, exists := a.workflows[key]; exists {
		a.mu.Unlock()
		writeErr(w, http.StatusConflict, "workflow already exists")
		return
	}
	a.mu.Unlock()

	specs := make([]domain.AgentConfig, 0, len(req.Agents))
	names := make([]string, 0, len(req.Agents))
	for _, s := range req.Agents {
		if s.Name == "" || s.Model == "" || s.System == "" {
			writeErr(w, http.StatusBadRequest, "each agent needs name, model, and system")
			return
		}
		specs = append(specs, domain.AgentConfig{
			Name:      s.Name,
			Model:     s.Model,
			System:    s.System,
			Backend:   s.Backend,
			Workflow:  req.Name,
			Tag:       tag,
			CreatedAt: time.Now(),
		})
		names = append(names, s.Name)
	}

	handle, err := worker.RunWorkflow(a.rootCtx, specs, a.contextDir(req.Name, tag), a.provider, a.store, a.retryCfg)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	wfEntry := &workflowEntry{name: req.Name, tag: tag, handle: handle, agents: names}
	wfEntry.mcp = mcpserver.New(handle.Context, a.proposals, a.workflowResolver(wfEntry))

	a.mu.Lock()
	a.workflows[key] = wfEntry
	for _, spec := range specs {
		h := handle.Controllers[spec.Name]
		session := lifecycle.NewSession(spec.Name, h, handle.Context, a.cfg.DefaultIdleTimeout, nil)
		entry := &agentEntry{config: spec, handle: h, session: session, ctx: handle.Context, workflow: req.Name, tag: tag}
		a.agents[spec.Name] = entry
		a.lifecycle.Start(a.rootCtx, session)
	}
	a.contexts[req.Name+"/"+tag] = handle.Context
	a.mu.Unlock()

	writeOK(w, http.StatusCreated, map[string]any{"name": req.Name, "tag": tag, "agents": names})
}

// workflowResolver builds an mcpserver.AgentResolver scoped to one
// workflow: any member agent resolves to the full membership list.
func (a *App) workflowResolver(wf *workflowEntry) mcpserver.AgentResolver {
	return func(agent string) ([]string, bool) {
		for _, name := range wf.agents {
			if name == agent {
				return wf.agents, true
			}
		}
		return nil, false
	}
}

func (a *App) handleWorkflowsList(w http.ResponseWriter, r *http.Request) {
	if !a.requireReady(w) {
		return
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	type workflowView struct {
		Name   string         `json:"name"`
		Tag    string         `json:"tag"`
		Agents map[string]any `json:"agents"`
	}
	out := make([]workflowView, 0, len(a.workflows))
	for _, wf := range a.workflows {
		agentStates := make(map[string]any, len(wf.agents))
		for _, name := range wf.agents {
			if h, ok := wf.handle.Controllers[name]; ok {
				agentStates[name] = h.GetState()
			}
		}
		out = append(out, workflowView{Name: wf.name, Tag: wf.tag, Agents: agentStates})
	}
	writeOK(w, http.StatusOK, map[string]any{"workflows": out})
}

func (a *App) handleWorkflowsDelete(w http.ResponseWriter, r *http.Request) {
	if !a.requireReady(w) {
		return
	}
	name := r.PathValue("name")
	tag := r.PathValue("tag")
	if tag == "" {
		tag = defaultTag
	}
	key := name + "/" + tag

	a.mu.Lock()
	wf, ok := a.workflows[key]
	if !ok {
		a.mu.Unlock()
		writeErr(w, http.StatusNotFound, "workflow not found")
		return
	}
	delete(a.workflows, key)
	for _, agentName := range wf.agents {
		delete(a.agents, agentName)
	}
	delete(a.contexts, name+"/"+tag)
	a.mu.Unlock()

	for _, agentName := range wf.agents {
		a.lifecycle.Stop(agentName)
	}
	wf.handle.Shutdown()

	writeOK(w, http.StatusOK, nil)
}
