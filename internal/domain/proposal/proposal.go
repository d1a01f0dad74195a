package proposal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"govconsole/internal/domain/governance"
)

// ID is the canister assigned proposal number
type ID uint64

// State represents where a proposal is in its lifecycle
type State string

const (
	StateVoting    State = "Voting"
	StateApproved  State = "Approved"
	StateDeclined  State = "Declined"
	StatePerformed State = "Performed"
)

// States lists every state in lifecycle order
var States = []State{StateVoting, StateApproved, StateDeclined, StatePerformed}

// ResultKind tells how a performed proposal ended
type ResultKind string

const (
	ResultDone         ResultKind = "Done"
	ResultCallResponse ResultKind = "CallResponse"
	ResultError        ResultKind = "Error"
)

// PerformResult is set once a proposal is performed
type PerformResult struct {
	Kind        ResultKind `json:"kind"`
	Response    []byte     `json:"response,omitempty"`
	Candid      string     `json:"candid,omitempty"`
	CandidError string     `json:"candidError,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// Vote is one participant's decision
type Vote struct {
	Participant string    `json:"participant"`
	VoteTime    time.Time `json:"voteTime"`
	Vote        bool      `json:"vote"`
}

// Proposal represents a governance proposal. Detail is kept as the raw
// type-specific payload.
type Proposal struct {
	ID          ID                      `json:"id"`
	Initiator   string                  `json:"initiator"`
	Description string                  `json:"description,omitempty"`
	Type        governance.ProposalType `json:"type"`
	Detail      json.RawMessage         `json:"detail,omitempty"`
	State       State                   `json:"state"`
	Result      *PerformResult          `json:"result,omitempty"`
	Votes       []Vote                  `json:"votes"`
	Created     time.Time               `json:"created"`
	Updated     time.Time               `json:"updated"`
}

// Tally counts positive and negative votes
func (p *Proposal) Tally() (positive, negative int) {
	for _, v := range p.Votes {
		if v.Vote {
			positive++
		} else {
			negative++
		}
	}
	return positive, negative
}

// HasVoted checks whether principal already voted
func (p *Proposal) HasVoted(principal string) bool {
	for _, v := range p.Votes {
		if v.Participant == principal {
			return true
		}
	}
	return false
}

// CanVote checks the voting rules for principal without changing p
func (p *Proposal) CanVote(gov *governance.Governance, principal string) error {
	if p.State != StateVoting {
		return DomainError{Code: ErrNotVotingState, Message: fmt.Sprintf("proposal %d is %s", p.ID, p.State)}
	}
	if p.HasVoted(principal) {
		return DomainError{Code: ErrAlreadyVoted, Message: fmt.Sprintf("%s already voted on proposal %d", principal, p.ID)}
	}
	if _, ok := gov.VotingConfigFor(p.Type); !ok {
		return DomainError{Code: ErrVotingConfigNotFound, Message: string(p.Type)}
	}
	if !gov.HasPermission(principal, p.Type, governance.PermissionVote) {
		return DomainError{Code: ErrNotPermission, Message: fmt.Sprintf("%s cannot vote on %s proposals", principal, p.Type)}
	}
	return nil
}

// CanPerform checks the perform rules for principal
func (p *Proposal) CanPerform(gov *governance.Governance, principal string) error {
	if p.State != StateApproved {
		return DomainError{Code: ErrNotApprovedState, Message: fmt.Sprintf("proposal %d is %s", p.ID, p.State)}
	}
	if !gov.HasPermission(principal, p.Type, governance.PermissionPerform) {
		return DomainError{Code: ErrNotPermission, Message: fmt.Sprintf("%s cannot perform %s proposals", principal, p.Type)}
	}
	return nil
}

// ApplyVote records a vote and closes voting once the stop count is reached
func (p *Proposal) ApplyVote(gov *governance.Governance, principal string, vote bool, at time.Time) error {
	if err := p.CanVote(gov, principal); err != nil {
		return err
	}
	p.Votes = append(p.Votes, Vote{Participant: principal, VoteTime: at, Vote: vote})
	p.Updated = at

	cfg, _ := gov.VotingConfigFor(p.Type)
	if len(p.Votes) < cfg.StopVoteCount {
		return nil
	}
	if positive, _ := p.Tally(); positive >= cfg.PositiveVoteCount {
		p.State = StateApproved
	} else {
		p.State = StateDeclined
	}
	return nil
}

// MarkPerformed moves an approved proposal to Performed with its result
func (p *Proposal) MarkPerformed(gov *governance.Governance, principal string, result PerformResult, at time.Time) error {
	if err := p.CanPerform(gov, principal); err != nil {
		return err
	}
	p.State = StatePerformed
	p.Result = &result
	p.Updated = at
	return nil
}

// New builds a proposal in the Voting state after the Add permission check
func New(gov *governance.Governance, initiator string, t governance.ProposalType, description string, detail json.RawMessage, at time.Time) (*Proposal, error) {
	if !t.Valid() {
		return nil, DomainError{Code: ErrInvalidType, Message: string(t)}
	}
	if strings.TrimSpace(initiator) == "" {
		return nil, DomainError{Code: ErrNotPermission, Message: "anonymous initiator"}
	}
	if !gov.HasPermission(initiator, t, governance.PermissionAdd) {
		return nil, DomainError{Code: ErrNotPermission, Message: fmt.Sprintf("%s cannot add %s proposals", initiator, t)}
	}
	return &Proposal{
		Initiator:   initiator,
		Description: description,
		Type:        t,
		Detail:      detail,
		State:       StateVoting,
		Votes:       []Vote{},
		Created:     at,
		Updated:     at,
	}, nil
}

// DomainError represents a domain-level error
type DomainError struct {
	Message string
	Code    string
}

func (e DomainError) Error() string {
	return fmt.Sprintf("domain error [%s]: %s", e.Code, e.Message)
}

// Domain error codes
const (
	ErrNotFound             = "PROPOSAL_NOT_FOUND"
	ErrNotVotingState       = "PROPOSAL_NOT_VOTING"
	ErrNotApprovedState     = "PROPOSAL_NOT_APPROVED"
	ErrAlreadyVoted         = "ALREADY_VOTED"
	ErrVotingConfigNotFound = "VOTING_CONFIG_NOT_FOUND"
	ErrNotPermission        = "NOT_PERMISSION"
	ErrInvalidType          = "INVALID_PROPOSAL_TYPE"
	ErrValidation           = "VALIDATION"
)

// Code returns the domain code carried by err, or "" when err is not a DomainError
func Code(err error) string {
	var de DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
