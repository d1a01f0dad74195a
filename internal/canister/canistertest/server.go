// Package canistertest runs an in-memory governance gateway with the
// canister's rules, for tests and local development.
package canistertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"govconsole/internal/canister"
	"govconsole/internal/domain/governance"
	"govconsole/internal/domain/proposal"
)

// Gateway holds canister state behind an http.Handler.
type Gateway struct {
	mu        sync.Mutex
	gov       governance.Governance
	proposals map[proposal.ID]*proposal.Proposal
	nextID    proposal.ID
	now       func() time.Time

	failNext     atomic.Int32
	listRequests atomic.Int32
	router       chi.Router
}

// New creates a gateway seeded with gov.
func New(gov governance.Governance) *Gateway {
	g := &Gateway{
		gov:       gov,
		proposals: map[proposal.ID]*proposal.Proposal{},
		now:       time.Now,
	}
	r := chi.NewRouter()
	r.Use(g.injectFailures)
	r.Get("/governance", g.getGovernance)
	r.Get("/governance/participant", g.getParticipant)
	r.Get("/proposals", g.listProposals)
	r.Post("/proposals", g.addProposal)
	r.Get("/proposals/{id}", g.getProposal)
	r.Post("/proposals/{id}/vote", g.vote)
	r.Post("/proposals/{id}/perform", g.perform)
	g.router = r
	return g
}

// Start serves the gateway on a loopback listener.
func (g *Gateway) Start() *httptest.Server {
	return httptest.NewServer(g)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

// FailNext makes the next n requests answer 503.
func (g *Gateway) FailNext(n int) { g.failNext.Store(int32(n)) }

// ListRequests counts GET /proposals calls.
func (g *Gateway) ListRequests() int { return int(g.listRequests.Load()) }

// SetClock replaces time.Now.
func (g *Gateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Seed adds proposals directly, bypassing permission checks. IDs are
// assigned in order.
func (g *Gateway) Seed(ps ...proposal.Proposal) []proposal.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]proposal.ID, 0, len(ps))
	for i := range ps {
		p := ps[i]
		p.ID = g.nextID
		g.nextID++
		if p.State == "" {
			p.State = proposal.StateVoting
		}
		if p.Votes == nil {
			p.Votes = []proposal.Vote{}
		}
		g.proposals[p.ID] = &p
		ids = append(ids, p.ID)
	}
	return ids
}

func (g *Gateway) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for {
			n := g.failNext.Load()
			if n <= 0 {
				break
			}
			if g.failNext.CompareAndSwap(n, n-1) {
				writeError(w, http.StatusServiceUnavailable, "Unavailable", "injected failure")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, canister.APIError{Code: code, Message: msg})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch proposal.Code(err) {
	case proposal.ErrNotVotingState:
		writeError(w, http.StatusConflict, canister.CodeProposalNotVotingState, err.Error())
	case proposal.ErrNotApprovedState:
		writeError(w, http.StatusConflict, canister.CodeProposalNotApprovedState, err.Error())
	case proposal.ErrAlreadyVoted:
		writeError(w, http.StatusConflict, canister.CodeAlreadyVoted, err.Error())
	case proposal.ErrVotingConfigNotFound:
		writeError(w, http.StatusConflict, canister.CodeVotingConfigNotFound, err.Error())
	case proposal.ErrNotPermission:
		writeError(w, http.StatusForbidden, canister.CodeNotPermission, err.Error())
	default:
		writeError(w, http.StatusBadRequest, canister.CodeValidation, err.Error())
	}
}

func (g *Gateway) getGovernance(w http.ResponseWriter, _ *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	writeJSON(w, http.StatusOK, g.gov)
}

func (g *Gateway) getParticipant(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.gov.Participant(r.Header.Get(canister.PrincipalHeader))
	if !ok {
		writeError(w, http.StatusNotFound, canister.CodeParticipantNotFound, "caller is not a participant")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (g *Gateway) listProposals(w http.ResponseWriter, r *http.Request) {
	g.listRequests.Add(1)
	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	ascending, _ := strconv.ParseBool(r.URL.Query().Get("ascending"))

	g.mu.Lock()
	defer g.mu.Unlock()
	all := make([]proposal.Proposal, 0, len(g.proposals))
	for _, p := range g.proposals {
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool {
		if ascending {
			return all[i].ID < all[j].ID
		}
		return all[i].ID > all[j].ID
	})

	page := canister.ProposalsPage{Proposals: []proposal.Proposal{}, Total: len(all)}
	if start < 0 {
		start = 0
	}
	if start < len(all) && count > 0 {
		end := min(start+count, len(all))
		page.Proposals = all[start:end]
	}
	writeJSON(w, http.StatusOK, page)
}

func (g *Gateway) lookup(w http.ResponseWriter, r *http.Request) (*proposal.Proposal, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, canister.CodeValidation, "invalid proposal id")
		return nil, false
	}
	p, ok := g.proposals[proposal.ID(id)]
	if !ok {
		writeError(w, http.StatusNotFound, canister.CodeProposalNotFound, "proposal not found")
		return nil, false
	}
	return p, true
}

func (g *Gateway) getProposal(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, map[string]any{"proposal": p})
	}
}

func (g *Gateway) addProposal(w http.ResponseWriter, r *http.Request) {
	var req canister.NewProposal
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, canister.CodeValidation, "invalid body")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	p, err := proposal.New(&g.gov, r.Header.Get(canister.PrincipalHeader), req.Type, req.Description, req.Detail, g.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if req.Type == governance.TypeUpdateGovernance {
		var next governance.UpdateDetail
		if err := json.Unmarshal(req.Detail, &next); err != nil {
			writeError(w, http.StatusBadRequest, canister.CodeValidation, "invalid governance detail")
			return
		}
		if err := next.NewGovernance.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, canister.CodeValidation, err.Error())
			return
		}
	}
	p.ID = g.nextID
	g.nextID++
	g.proposals[p.ID] = p
	writeJSON(w, http.StatusOK, map[string]any{"proposalId": p.ID, "proposal": p})
}

func (g *Gateway) vote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vote bool `json:"vote"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, canister.CodeValidation, "invalid body")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.lookup(w, r)
	if !ok {
		return
	}
	if err := p.ApplyVote(&g.gov, r.Header.Get(canister.PrincipalHeader), req.Vote, g.now()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposal": p})
}

func (g *Gateway) perform(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.lookup(w, r)
	if !ok {
		return
	}
	principal := r.Header.Get(canister.PrincipalHeader)
	if err := p.CanPerform(&g.gov, principal); err != nil {
		writeDomainError(w, err)
		return
	}

	result := proposal.PerformResult{Kind: proposal.ResultDone}
	var next *governance.Governance
	if p.Type == governance.TypeUpdateGovernance {
		var detail governance.UpdateDetail
		if err := json.Unmarshal(p.Detail, &detail); err != nil {
			result = proposal.PerformResult{Kind: proposal.ResultError, Reason: err.Error()}
		} else {
			next = &detail.NewGovernance
		}
	}
	if err := p.MarkPerformed(&g.gov, principal, result, g.now()); err != nil {
		writeDomainError(w, err)
		return
	}
	if next != nil {
		g.gov = *next
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposal": p})
}
