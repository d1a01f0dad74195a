package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"govconsole/internal/canister"
	"govconsole/internal/domain/proposal"
	middlewarex "govconsole/internal/http/middleware"
	"govconsole/internal/liststate"
	govsvc "govconsole/internal/services/governance"
)

// ProposalList is the list response. Query is the canonical form of the
// request's list parameters.
type ProposalList struct {
	Items     []proposal.Proposal `json:"items"`
	Total     int                 `json:"total"`
	ListState liststate.State     `json:"listState"`
	Query     string              `json:"query"`
}

func principal(r *http.Request) string {
	p, _ := middlewarex.Principal(r.Context())
	return p
}

func proposalID(w http.ResponseWriter, r *http.Request) (proposal.ID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "validation", "invalid proposal id")
		return 0, false
	}
	return proposal.ID(id), true
}

// GetGovernance returns the governance configuration
func GetGovernance(svc *govsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := svc.Governance(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

// GetMyParticipant returns the caller's participant entry
func GetMyParticipant(svc *govsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.MyParticipant(r.Context(), principal(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// ListProposals pages the proposal mirror. List parameters are read from the
// query under prefix, the same way a view session stores them.
func ListProposals(svc *govsvc.Service, prefix string) http.HandlerFunc {
	def := liststate.Default()
	return func(w http.ResponseWriter, r *http.Request) {
		state := liststate.Deserialize(r.URL.Query(), def, prefix)

		page, err := svc.ListProposals(r.Context(), state)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ProposalList{
			Items:     page.Items,
			Total:     page.Total,
			ListState: state,
			Query:     canonicalQuery(state, def, prefix),
		})
	}
}

func canonicalQuery(state, def liststate.State, prefix string) string {
	q := url.Values{}
	for k, v := range liststate.Serialize(state, def) {
		if v != "" {
			q.Set(liststate.ParamKey(k, prefix), v)
		}
	}
	return q.Encode()
}

// GetProposal returns one proposal
func GetProposal(svc *govsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := proposalID(w, r)
		if !ok {
			return
		}
		p, err := svc.Proposal(r.Context(), principal(r), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// AddProposal submits a proposal as the caller
func AddProposal(svc *govsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req canister.NewProposal
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := svc.AddProposal(r.Context(), principal(r), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

// VoteProposal records the caller's vote
func VoteProposal(svc *govsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := proposalID(w, r)
		if !ok {
			return
		}
		var req govsvc.VoteRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := svc.Vote(r.Context(), principal(r), id, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// PerformProposal executes an approved proposal as the caller
func PerformProposal(svc *govsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := proposalID(w, r)
		if !ok {
			return
		}
		p, err := svc.Perform(r.Context(), principal(r), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
