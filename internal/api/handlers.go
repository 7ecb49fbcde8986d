package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ahermangesh/Leads/internal/memory"
	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/orchestrator"
	"github.com/ahermangesh/Leads/internal/store"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	Live     map[model.State]int `json:"live"`
	Stored   map[model.State]int `json:"stored"`
	Outcomes *memory.Breakdown   `json:"outcomes,omitempty"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Live: s.deps.Pipeline.Stats()}
	stored, err := s.deps.Store.CountLeadsByState(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp.Stored = stored
	if s.deps.Recommender != nil {
		b := s.deps.Recommender.Breakdown()
		resp.Outcomes = &b
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recommend(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recommender == nil {
		writeError(w, http.StatusNotImplemented, "recommendations are not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Recommender.Recommend(r.URL.Query().Get("industry")))
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.LeadFilter{Campaign: q.Get("campaign")}
	for _, raw := range q["state"] {
		for _, st := range strings.Split(raw, ",") {
			state := model.State(strings.TrimSpace(st))
			if !state.Valid() {
				writeError(w, http.StatusBadRequest, "unknown state: "+st)
				return
			}
			filter.States = append(filter.States, state)
		}
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	leads, err := s.deps.Store.ListLeads(r.Context(), filter)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

type intakeRequest struct {
	Campaign string          `json:"campaign"`
	Leads    []model.RawLead `json:"leads"`
}

type intakeResponse struct {
	IDs []string `json:"ids"`
}

// intake stores raw records as New leads for a later run.
func (s *Server) intake(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Leads) == 0 {
		writeError(w, http.StatusBadRequest, "leads must not be empty")
		return
	}
	for i, raw := range req.Leads {
		if strings.TrimSpace(raw.Name) == "" {
			writeError(w, http.StatusBadRequest, "leads["+strconv.Itoa(i)+"].name is required")
			return
		}
	}

	now := s.now()
	resp := intakeResponse{IDs: make([]string, 0, len(req.Leads))}
	for _, raw := range req.Leads {
		lead := orchestrator.NewLead(raw, req.Campaign, now)
		if err := s.deps.Store.SaveLead(r.Context(), lead); err != nil {
			writeErr(w, r, err)
			return
		}
		resp.IDs = append(resp.IDs, lead.ID)
	}
	zap.L().Info("api: leads received", zap.Int("count", len(resp.IDs)), zap.String("campaign", req.Campaign))
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) getLead(w http.ResponseWriter, r *http.Request) {
	lead, err := s.deps.Pipeline.Lead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type decisionRequest struct {
	By   string `json:"by"`
	Note string `json:"note"`
}

func (d decisionRequest) by() string {
	if d.By == "" {
		return "api"
	}
	return d.By
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.deps.Pipeline.Approve(r.Context(), id, req.by(), req.Note); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "approved"})
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.deps.Pipeline.Reject(r.Context(), id, req.by(), req.Note); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "rejected"})
}

type regenerateRequest struct {
	Feedback string `json:"feedback"`
}

func (s *Server) regenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Feedback) == "" {
		writeError(w, http.StatusBadRequest, "feedback is required")
		return
	}
	lead, err := s.deps.Pipeline.Regenerate(r.Context(), chi.URLParam(r, "id"), req.Feedback)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type outcomeRequest struct {
	Kind model.OutcomeKind `json:"kind"`
}

func (s *Server) outcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if !decode(w, r, &req) {
		return
	}
	ev, err := s.deps.Pipeline.RecordOutcome(r.Context(), chi.URLParam(r, "id"), req.Kind)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

type bulkRequest struct {
	MinScore *int          `json:"min_score"`
	States   []model.State `json:"states"`
	By       string        `json:"by"`
}

func (s *Server) bulkApprove(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !decode(w, r, &req) {
		return
	}
	threshold := s.cfg.BulkMinScore
	if req.MinScore != nil {
		threshold = *req.MinScore
	}
	if threshold < 0 || threshold > 100 {
		writeError(w, http.StatusBadRequest, "min_score must be within [0,100]")
		return
	}
	states := req.States
	if len(states) == 0 {
		states = []model.State{model.StateAwaitingApproval}
	}
	for _, st := range states {
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "unknown state: "+string(st))
			return
		}
	}
	by := req.By
	if by == "" {
		by = "api"
	}

	n, err := s.deps.Pipeline.BulkApprove(r.Context(), orchestrator.MinScore(threshold, states...), by)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"approved": n})
}

type runRequest struct {
	Campaign string `json:"campaign"`
	Limit    int    `json:"limit"`
}

type runResponse struct {
	Status  string   `json:"status"`
	LeadIDs []string `json:"lead_ids"`
}

// startRun launches a run over pending New leads. One HTTP-started run is
// active at a time.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decode(w, r, &req) {
		return
	}
	limit := s.cfg.RunLimit
	if req.Limit > 0 && req.Limit < limit {
		limit = req.Limit
	}
	if !s.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}

	pending, err := s.deps.Store.ListLeads(r.Context(), store.LeadFilter{
		States:   []model.State{model.StateNew},
		Campaign: req.Campaign,
		Limit:    limit,
	})
	if err != nil {
		s.running.Store(false)
		writeErr(w, r, err)
		return
	}
	resp := runResponse{Status: "accepted", LeadIDs: make([]string, len(pending))}
	if len(pending) == 0 {
		s.running.Store(false)
		resp.Status = "empty"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	leads := make([]*model.Lead, len(pending))
	for i := range pending {
		leads[i] = &pending[i]
		resp.LeadIDs[i] = pending[i].ID
	}
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer s.running.Store(false)
		report, err := s.deps.Pipeline.RunLeads(s.base, leads)
		if err != nil {
			zap.L().Error("api: run failed", zap.Error(err))
			return
		}
		zap.L().Info("api: run finished",
			zap.String("run_id", report.RunID),
			zap.String("status", string(report.Status)),
		)
	}()
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
