package governance

import (
	"fmt"
	"slices"
	"strings"
)

// ProposalType identifies what a proposal does once performed
type ProposalType string

const (
	TypeUpdateGovernance ProposalType = "UpdateGovernance"
	TypeUpgradeCanister  ProposalType = "UpgradeCanister"
	TypeCallCanister     ProposalType = "CallCanister"
)

// ProposalTypes lists every known type in display order
var ProposalTypes = []ProposalType{TypeUpdateGovernance, TypeUpgradeCanister, TypeCallCanister}

// Valid reports whether t is a known proposal type
func (t ProposalType) Valid() bool {
	return slices.Contains(ProposalTypes, t)
}

// Permission is an action a participant may take on a proposal type
type Permission string

const (
	PermissionAdd     Permission = "Add"
	PermissionVote    Permission = "Vote"
	PermissionPerform Permission = "Perform"
)

// Participant is a principal allowed to take part in governance
type Participant struct {
	Principal   string                        `json:"principal"`
	Name        string                        `json:"name"`
	Permissions map[ProposalType][]Permission `json:"permissions"`
}

// Can reports whether the participant holds perm for proposals of type t
func (p Participant) Can(t ProposalType, perm Permission) bool {
	return slices.Contains(p.Permissions[t], perm)
}

// VotingConfig decides when voting on a proposal type stops and whether it passes
type VotingConfig struct {
	StopVoteCount     int `json:"stopVoteCount"`
	PositiveVoteCount int `json:"positiveVoteCount"`
}

// Governance is the participant set and voting rules of the canister
type Governance struct {
	Participants        []Participant                 `json:"participants"`
	VotingConfiguration map[ProposalType]VotingConfig `json:"votingConfiguration"`
}

// Participant returns the participant registered for principal
func (g *Governance) Participant(principal string) (Participant, bool) {
	for _, p := range g.Participants {
		if p.Principal == principal {
			return p, true
		}
	}
	return Participant{}, false
}

// HasPermission checks a principal's permission; unknown principals have none
func (g *Governance) HasPermission(principal string, t ProposalType, perm Permission) bool {
	p, ok := g.Participant(principal)
	return ok && p.Can(t, perm)
}

// VotingConfigFor returns the rules for t
func (g *Governance) VotingConfigFor(t ProposalType) (VotingConfig, bool) {
	cfg, ok := g.VotingConfiguration[t]
	return cfg, ok
}

// CountWith returns how many participants hold perm for t
func (g *Governance) CountWith(t ProposalType, perm Permission) int {
	n := 0
	for _, p := range g.Participants {
		if p.Can(t, perm) {
			n++
		}
	}
	return n
}

// Validate checks a governance proposed as a replacement. The new governance
// must still be able to produce and pass its own replacement.
func (g *Governance) Validate() error {
	if len(g.Participants) == 0 {
		return DomainError{Code: ErrInvalidGovernance, Message: "participants is empty"}
	}
	for _, p := range g.Participants {
		if strings.TrimSpace(p.Principal) == "" {
			return DomainError{Code: ErrInvalidGovernance, Message: "participant principal is required"}
		}
	}
	if g.CountWith(TypeUpdateGovernance, PermissionAdd) == 0 {
		return DomainError{Code: ErrInvalidGovernance, Message: "no participant can add a governance proposal"}
	}

	voters := g.CountWith(TypeUpdateGovernance, PermissionVote)
	cfg, ok := g.VotingConfigFor(TypeUpdateGovernance)
	if !ok || cfg.PositiveVoteCount > cfg.StopVoteCount || cfg.StopVoteCount > voters {
		return DomainError{Code: ErrInvalidGovernance, Message: "wrong voting config for governance proposals"}
	}
	return nil
}

// UpdateDetail is the detail payload of an UpdateGovernance proposal
type UpdateDetail struct {
	NewGovernance Governance `json:"newGovernance"`
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
	ErrInvalidGovernance = "INVALID_GOVERNANCE"
	ErrNotParticipant    = "NOT_PARTICIPANT"
)
