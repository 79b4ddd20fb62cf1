package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"devspace/internal/domain"
	"devspace/internal/usecase/runtime"
)

// AgentResponse is the detailed view of one agent.
type AgentResponse struct {
	domain.AgentSummary
	CreatedAt     time.Time `json:"created_at"`
	HistoryLength int       `json:"history_length"`
	ContextKeys   []string  `json:"context_keys"`
}

func agentResponse(a *runtime.Agent) AgentResponse {
	snap := a.ContextSnapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return AgentResponse{
		AgentSummary:  a.Summary(),
		CreatedAt:     a.CreatedAt(),
		HistoryLength: len(a.History()),
		ContextKeys:   keys,
	}
}

// agent resolves the {id} path variable, by ID or by name.
func (s *Server) agent(w http.ResponseWriter, r *http.Request) (*runtime.Agent, bool) {
	a, err := s.sup.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return a, true
}

type createAgentRequest struct {
	domain.AgentConfig
	Kind string `json:"kind"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = s.cfg.Agent.DefaultKind
	}
	a, err := s.sup.Create(r.Context(), s.cfg.Agent.Apply(req.AgentConfig), kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/agents/"+a.ID())
	writeJSON(w, http.StatusCreated, agentResponse(a))
}

// handleListAgents lists agents, optionally filtered by ?status=.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.sup.List()
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseAgentStatus(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filtered := agents[:0]
		for _, a := range agents {
			if a.Status == status {
				filtered = append(filtered, a)
			}
		}
		agents = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
		"count":  len(agents),
	})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, agentResponse(a))
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setStatusRequest struct {
	Status      string  `json:"status"`
	CurrentTask *string `json:"current_task"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := domain.ParseAgentStatus(req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.sup.SetStatus(mux.Vars(r)["id"], status, req.CurrentTask)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type sendMessageRequest struct {
	Message *string                 `json:"message"`
	Context map[string]domain.Value `json:"context"`
}

// MessageResponse is the body returned by POST /api/v1/agents/{id}/messages.
type MessageResponse struct {
	AgentID string                `json:"agent_id"`
	Reply   string                `json:"reply"`
	Status  domain.StatusSnapshot `json:"status"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Message == nil {
		s.writeError(w, r, domain.NewDomainError("handleSendMessage", domain.ErrInvalidInput, "message is required"))
		return
	}
	a, ok := s.agent(w, r)
	if !ok {
		return
	}
	reply, err := s.sup.Send(r.Context(), a.ID(), *req.Message, req.Context)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{AgentID: a.ID(), Reply: reply, Status: a.GetStatus()})
}

type executeActionRequest struct {
	Action string                  `json:"action"`
	Params map[string]domain.Value `json:"params"`
}

// ActionResponse is the body returned by POST /api/v1/agents/{id}/actions.
type ActionResponse struct {
	AgentID string                  `json:"agent_id"`
	Action  string                  `json:"action"`
	Result  map[string]domain.Value `json:"result"`
}

func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	var req executeActionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Action == "" {
		s.writeError(w, r, domain.NewDomainError("handleExecuteAction", domain.ErrInvalidInput, "action is required"))
		return
	}
	a, ok := s.agent(w, r)
	if !ok {
		return
	}
	result, err := s.sup.Act(r.Context(), a.ID(), req.Action, req.Params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result == nil {
		result = map[string]domain.Value{}
	}
	writeJSON(w, http.StatusOK, ActionResponse{AgentID: a.ID(), Action: req.Action, Result: result})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agent(w, r)
	if !ok {
		return
	}
	history := a.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id": a.ID(),
		"messages": history,
		"count":    len(history),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.ClearHistory(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id": a.ID(),
		"context":  a.ContextSnapshot(),
	})
}

func (s *Server) handleClearContext(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.ClearContext(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ContextEntry is one context key and its value.
type ContextEntry struct {
	Key   string       `json:"key"`
	Value domain.Value `json:"value"`
}

func (s *Server) handleGetContextKey(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agent(w, r)
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]
	v, found := a.GetContext(key)
	if !found {
		s.writeError(w, r, domain.NewDomainError("handleGetContextKey", domain.ErrNotFound, fmt.Sprintf("context key %q", key)))
		return
	}
	writeJSON(w, http.StatusOK, ContextEntry{Key: key, Value: v})
}

func (s *Server) handleSetContextKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value domain.Value `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, ok := s.agent(w, r)
	if !ok {
		return
	}
	key := mux.Vars(r)["key"]
	a.SetContext(key, req.Value)
	writeJSON(w, http.StatusOK, ContextEntry{Key: key, Value: req.Value})
}
