package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"govconsole/internal/canister"
	"govconsole/internal/domain/governance"
	"govconsole/internal/domain/proposal"
	"govconsole/internal/liststate"
	"govconsole/internal/remotelist"
	"govconsole/internal/store/repositories"
)

// Canister is the part of the governance API the service uses
type Canister interface {
	GetGovernance(ctx context.Context) (*governance.Governance, error)
	GetMyParticipant(ctx context.Context, principal string) (*governance.Participant, error)
	GetProposal(ctx context.Context, principal string, id proposal.ID) (*proposal.Proposal, error)
	AddProposal(ctx context.Context, principal string, req canister.NewProposal) (*proposal.Proposal, error)
	VoteForProposal(ctx context.Context, principal string, id proposal.ID, vote bool) (*proposal.Proposal, error)
	PerformProposal(ctx context.Context, principal string, id proposal.ID) (*proposal.Proposal, error)
}

// ProposalPage is one page of the proposal mirror
type ProposalPage struct {
	Items []proposal.Proposal `json:"items"`
	Total int                 `json:"total"`
}

// VoteRequest is the body of a vote call
type VoteRequest struct {
	Vote *bool `json:"vote" validate:"required"`
}

// Service combines the canister API with the local proposal mirror
type Service struct {
	api       Canister
	proposals repositories.ProposalRepository
	govs      repositories.GovernanceRepository
	validate  *validator.Validate
}

// NewService creates a new governance service
func NewService(api Canister, proposals repositories.ProposalRepository, govs repositories.GovernanceRepository) *Service {
	return &Service{
		api:       api,
		proposals: proposals,
		govs:      govs,
		validate:  validator.New(),
	}
}

// Governance returns the live configuration, or the last synced snapshot
// while the canister is unavailable
func (s *Service) Governance(ctx context.Context) (*governance.Governance, error) {
	g, err := s.api.GetGovernance(ctx)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, canister.ErrUnavailable) {
		return nil, &ServiceError{Op: "get_governance", Err: err}
	}

	snap, snapErr := s.govs.Latest(ctx)
	if snapErr != nil {
		return nil, &ServiceError{Op: "get_governance", Err: err}
	}
	log.Warn().Err(err).Msg("canister unavailable, serving governance snapshot")
	return snap, nil
}

// MyParticipant returns the caller's participant entry
func (s *Service) MyParticipant(ctx context.Context, principal string) (*governance.Participant, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	p, err := s.api.GetMyParticipant(ctx, principal)
	if err != nil {
		return nil, &ServiceError{Op: "get_participant", Err: err}
	}
	return p, nil
}

// ListProposals pages the mirror with a list state
func (s *Service) ListProposals(ctx context.Context, state liststate.State) (*ProposalPage, error) {
	items, total, err := s.proposals.List(ctx, state)
	if err != nil {
		return nil, &ServiceError{Op: "list_proposals", Err: err}
	}
	page := &ProposalPage{Items: make([]proposal.Proposal, len(items)), Total: total}
	for i, p := range items {
		page.Items[i] = *p
	}
	return page, nil
}

// ProposalProvider adapts ListProposals for a remote list controller
func (s *Service) ProposalProvider() remotelist.Provider[proposal.Proposal] {
	return func(ctx context.Context, state liststate.State) (*remotelist.Page[proposal.Proposal], error) {
		page, err := s.ListProposals(ctx, state)
		if err != nil {
			return nil, err
		}
		total := page.Total
		return &remotelist.Page[proposal.Proposal]{Data: page.Items, Total: &total}, nil
	}
}

// Proposal reads one proposal from the canister and refreshes the mirror.
// The mirrored copy is returned while the canister is unavailable.
func (s *Service) Proposal(ctx context.Context, principal string, id proposal.ID) (*proposal.Proposal, error) {
	p, err := s.api.GetProposal(ctx, principal, id)
	if err == nil {
		s.mirror(ctx, p)
		return p, nil
	}
	if !errors.Is(err, canister.ErrUnavailable) {
		return nil, &ServiceError{Op: "get_proposal", Err: err}
	}

	cached, cacheErr := s.proposals.FindByID(ctx, id)
	if cacheErr != nil {
		return nil, &ServiceError{Op: "get_proposal", Err: err}
	}
	log.Warn().Err(err).Uint64("proposal_id", uint64(id)).Msg("canister unavailable, serving mirrored proposal")
	return cached, nil
}

// AddProposal validates and submits a new proposal
func (s *Service) AddProposal(ctx context.Context, principal string, req canister.NewProposal) (*proposal.Proposal, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	if err := s.ValidateNewProposal(&req); err != nil {
		return nil, err
	}

	p, err := s.api.AddProposal(ctx, principal, req)
	if err != nil {
		return nil, &ServiceError{Op: "add_proposal", Err: err}
	}
	s.mirror(ctx, p)

	log.Info().
		Str("principal", principal).
		Uint64("proposal_id", uint64(p.ID)).
		Str("type", string(p.Type)).
		Msg("proposal added")
	return p, nil
}

// Vote records the caller's vote
func (s *Service) Vote(ctx context.Context, principal string, id proposal.ID, req VoteRequest) (*proposal.Proposal, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}

	p, err := s.api.VoteForProposal(ctx, principal, id, *req.Vote)
	if err != nil {
		return nil, &ServiceError{Op: "vote", Err: err}
	}
	s.mirror(ctx, p)

	log.Info().
		Str("principal", principal).
		Uint64("proposal_id", uint64(id)).
		Bool("vote", *req.Vote).
		Str("state", string(p.State)).
		Msg("vote recorded")
	return p, nil
}

// Perform executes an approved proposal
func (s *Service) Perform(ctx context.Context, principal string, id proposal.ID) (*proposal.Proposal, error) {
	if err := requirePrincipal(principal); err != nil {
		return nil, err
	}
	p, err := s.api.PerformProposal(ctx, principal, id)
	if err != nil {
		return nil, &ServiceError{Op: "perform", Err: err}
	}
	s.mirror(ctx, p)

	ev := log.Info().Str("principal", principal).Uint64("proposal_id", uint64(id))
	if p.Result != nil {
		ev = ev.Str("result", string(p.Result.Kind))
	}
	ev.Msg("proposal performed")
	return p, nil
}

// ValidateNewProposal checks the request shape and, for governance updates,
// that the proposed governance is usable
func (s *Service) ValidateNewProposal(req *canister.NewProposal) error {
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validate.Struct(req); err != nil {
		return toValidationError(err)
	}
	if !json.Valid(req.Detail) {
		return &ValidationError{Field: "detail", Message: "must be valid JSON"}
	}
	if req.Type != governance.TypeUpdateGovernance {
		return nil
	}

	var detail governance.UpdateDetail
	if err := json.Unmarshal(req.Detail, &detail); err != nil {
		return &ValidationError{Field: "detail", Message: "must hold a newGovernance object"}
	}
	if err := detail.NewGovernance.Validate(); err != nil {
		var de governance.DomainError
		if errors.As(err, &de) {
			return &ValidationError{Field: "detail.newGovernance", Message: de.Message}
		}
		return &ValidationError{Field: "detail.newGovernance", Message: err.Error()}
	}
	return nil
}

// mirror stores p locally. A failed write is only logged; the sync worker
// repairs the mirror on its next run.
func (s *Service) mirror(ctx context.Context, p *proposal.Proposal) {
	if err := s.proposals.Upsert(ctx, p); err != nil {
		log.Error().Err(err).Uint64("proposal_id", uint64(p.ID)).Msg("failed to mirror proposal")
	}
}

func requirePrincipal(principal string) error {
	if strings.TrimSpace(principal) == "" {
		return &ValidationError{Field: "principal", Message: "caller principal is required"}
	}
	return nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "body", Message: err.Error()}
	}
	return &ValidationError{Field: jsonField(verrs[0].Field()), Message: formatValidationErrors(verrs)}
}

// formatValidationErrors formats validator.ValidationErrors into a readable string
func formatValidationErrors(verrs validator.ValidationErrors) string {
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := jsonField(fe.Field())
		var message string
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("field '%s' is required", field)
		case "max":
			message = fmt.Sprintf("field '%s' must be at most %s", field, fe.Param())
		case "oneof":
			message = fmt.Sprintf("field '%s' must be one of: %s", field, fe.Param())
		default:
			message = fmt.Sprintf("field '%s' failed validation: %s", field, fe.Tag())
		}
		details = append(details, message)
	}
	return strings.Join(details, "; ")
}

func jsonField(name string) string {
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [%s]: %s", e.Field, e.Message)
}

// ServiceError represents a service operation error
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("governance service [%s]: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
