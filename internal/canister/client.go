// Package canister talks to the governance canister through its JSON
// gateway. The gateway owns the actor transport; this package only sees
// requests and replies.
package canister

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"govconsole/internal/domain/governance"
	"govconsole/internal/domain/proposal"
	"govconsole/internal/promise"
)

// PrincipalHeader carries the caller identity to the gateway.
const PrincipalHeader = "X-Principal"

// Gateway error codes, one per canister error variant.
const (
	CodeProposalNotFound         = "ProposalNotFound"
	CodeProposalNotVotingState   = "ProposalIsNotVotingState"
	CodeProposalNotApprovedState = "ProposalIsNotApprovedState"
	CodeVotingConfigNotFound     = "VotingConfigNotFound"
	CodeAlreadyVoted             = "AlreadyVoted"
	CodeNotPermission            = "NotPermission"
	CodeValidation               = "Validation"
	CodeParticipantNotFound      = "ParticipantNotFound"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrNotPermission        = errors.New("not permitted")
	ErrNotVotingState       = errors.New("proposal is not in voting state")
	ErrNotApprovedState     = errors.New("proposal is not approved")
	ErrAlreadyVoted         = errors.New("already voted")
	ErrVotingConfigNotFound = errors.New("voting config not found")
	ErrValidation           = errors.New("validation failed")
	ErrUnavailable          = errors.New("governance canister unavailable")
)

var codeErrors = map[string]error{
	CodeProposalNotFound:         ErrNotFound,
	CodeParticipantNotFound:      ErrNotFound,
	CodeProposalNotVotingState:   ErrNotVotingState,
	CodeProposalNotApprovedState: ErrNotApprovedState,
	CodeVotingConfigNotFound:     ErrVotingConfigNotFound,
	CodeAlreadyVoted:             ErrAlreadyVoted,
	CodeNotPermission:            ErrNotPermission,
	CodeValidation:               ErrValidation,
}

// APIError is a gateway error reply.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("canister error %s (status %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("canister error %s: %s", e.Code, e.Message)
}

// Unwrap maps the code to a sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error {
	if err, ok := codeErrors[e.Code]; ok {
		return err
	}
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	if e.Status >= 500 {
		return ErrUnavailable
	}
	return nil
}

// Chunk addresses one slice of the proposal list.
type Chunk struct {
	Start     int    `json:"start"`
	Count     int    `json:"count"`
	Ascending bool   `json:"ascending"`
	Principal string `json:"principal,omitempty"`
}

// ProposalsPage is one chunk reply.
type ProposalsPage struct {
	Proposals []proposal.Proposal `json:"proposals"`
	Total     int                 `json:"total"`
}

// NewProposal is the add request.
type NewProposal struct {
	Type        governance.ProposalType `json:"type" validate:"required,oneof=UpdateGovernance UpgradeCanister CallCanister"`
	Description string                  `json:"description,omitempty" validate:"max=4096"`
	Detail      json.RawMessage         `json:"detail" validate:"required"`
}

type voteRequest struct {
	Vote bool `json:"vote"`
}

type proposalReply struct {
	Proposal proposal.Proposal `json:"proposal"`
}

type addReply struct {
	ProposalID proposal.ID       `json:"proposalId"`
	Proposal   proposal.Proposal `json:"proposal"`
}

// Client is the governance API. FetchChunk shares in-flight identical
// chunk requests; proposal changes are sent one at a time in call order.
type Client struct {
	http *HTTPClient

	fetchChunk promise.Func[Chunk, *ProposalsPage]
	writes     *promise.Queue
	send       promise.Func[func() error, struct{}]
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string, timeoutSec int) *Client {
	return NewClientWith(NewHTTPClient("governance", baseURL, timeoutSec))
}

// NewClientWith wraps an existing HTTPClient.
func NewClientWith(h *HTTPClient) *Client {
	c := &Client{http: h, writes: promise.NewQueue()}
	c.fetchChunk = promise.Reuse(c.getProposals)
	c.send = promise.Sequential(c.writes, func(_ context.Context, fn func() error) (struct{}, error) {
		return struct{}{}, fn()
	})
	return c
}

// Close waits for the change in flight and fails the queued ones.
func (c *Client) Close() {
	c.writes.Close()
}

// write runs a mutating call through the write queue.
func (c *Client) write(ctx context.Context, fn func() error) error {
	_, err := c.send(ctx, fn)
	if errors.Is(err, promise.ErrQueueClosed) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// HTTP exposes the transport, e.g. to change the retry policy.
func (c *Client) HTTP() *HTTPClient { return c.http }

func headers(principal string) map[string]string {
	if principal == "" {
		return nil
	}
	return map[string]string{PrincipalHeader: principal}
}

// call performs the request and decodes a 2xx body into out, or the error
// reply into an APIError.
func (c *Client) call(ctx context.Context, method, endpoint, principal string, payload, out interface{}) error {
	resp, err := c.http.Do(ctx, method, endpoint, payload, headers(principal))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !resp.IsSuccess() {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr := resp.Decode(apiErr); decodeErr != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = resp.String()
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, endpoint, err)
	}
	return nil
}

// GetGovernance returns the current governance.
func (c *Client) GetGovernance(ctx context.Context) (*governance.Governance, error) {
	var g governance.Governance
	if err := c.call(ctx, http.MethodGet, "/governance", "", nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetMyParticipant returns the caller's participant entry.
func (c *Client) GetMyParticipant(ctx context.Context, principal string) (*governance.Participant, error) {
	var p governance.Participant
	if err := c.call(ctx, http.MethodGet, "/governance/participant", principal, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FetchChunk returns proposals [start, start+count) in the requested order.
func (c *Client) FetchChunk(ctx context.Context, chunk Chunk) (*ProposalsPage, error) {
	return c.fetchChunk(ctx, chunk)
}

func (c *Client) getProposals(ctx context.Context, chunk Chunk) (*ProposalsPage, error) {
	q := url.Values{}
	q.Set("start", strconv.Itoa(chunk.Start))
	q.Set("count", strconv.Itoa(chunk.Count))
	q.Set("ascending", strconv.FormatBool(chunk.Ascending))

	var page ProposalsPage
	if err := c.call(ctx, http.MethodGet, "/proposals?"+q.Encode(), chunk.Principal, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetProposal returns one proposal.
func (c *Client) GetProposal(ctx context.Context, principal string, id proposal.ID) (*proposal.Proposal, error) {
	var reply proposalReply
	if err := c.call(ctx, http.MethodGet, proposalPath(id), principal, nil, &reply); err != nil {
		return nil, err
	}
	return &reply.Proposal, nil
}

// AddProposal creates a proposal as principal.
func (c *Client) AddProposal(ctx context.Context, principal string, req NewProposal) (*proposal.Proposal, error) {
	var reply addReply
	err := c.write(ctx, func() error {
		return c.call(ctx, http.MethodPost, "/proposals", principal, req, &reply)
	})
	if err != nil {
		return nil, err
	}
	reply.Proposal.ID = reply.ProposalID
	return &reply.Proposal, nil
}

// VoteForProposal records principal's vote.
func (c *Client) VoteForProposal(ctx context.Context, principal string, id proposal.ID, vote bool) (*proposal.Proposal, error) {
	var reply proposalReply
	err := c.write(ctx, func() error {
		return c.call(ctx, http.MethodPost, proposalPath(id)+"/vote", principal, voteRequest{Vote: vote}, &reply)
	})
	if err != nil {
		return nil, err
	}
	return &reply.Proposal, nil
}

// PerformProposal executes an approved proposal.
func (c *Client) PerformProposal(ctx context.Context, principal string, id proposal.ID) (*proposal.Proposal, error) {
	var reply proposalReply
	err := c.write(ctx, func() error {
		return c.call(ctx, http.MethodPost, proposalPath(id)+"/perform", principal, struct{}{}, &reply)
	})
	if err != nil {
		return nil, err
	}
	return &reply.Proposal, nil
}

func proposalPath(id proposal.ID) string {
	return "/proposals/" + strconv.FormatUint(uint64(id), 10)
}
