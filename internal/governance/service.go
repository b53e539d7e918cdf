package governance

import (
	"context"
	"strings"
	"sync"
	"time"

	"supernova/api/internal/session"
	"supernova/api/internal/util"
)

// State is the slice of a viewer session the governance flow writes to.
type State interface {
	Set(key string, value any)
	Decode(key string, target any) (bool, error)
}

// Service owns the process-wide proposal ledger. Proposals are never
// deleted and only change status through Decide.
type Service struct {
	mu        sync.RWMutex
	proposals []*Proposal
	byID      map[string]*Proposal
	votes     []Vote
	records   []VoteRecord
	now       func() time.Time
}

func NewService() *Service {
	return &Service{
		byID: make(map[string]*Proposal),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

type CreateProposalInput struct {
	Title          string
	Description    string
	AuthorID       string
	GroupID        string
	VotingDeadline string
}

func (s *Service) CreateProposal(_ context.Context, input CreateProposalInput) (Proposal, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Proposal{}, invalid("title", "is required")
	}
	author := strings.TrimSpace(input.AuthorID)
	if author == "" {
		return Proposal{}, invalid("author_id", "is required")
	}
	deadline, err := parseDeadline(input.VotingDeadline)
	if err != nil {
		return Proposal{}, err
	}

	proposal := &Proposal{
		ID:             util.NewID("prop"),
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		AuthorID:       author,
		GroupID:        strings.TrimSpace(input.GroupID),
		VotingDeadline: deadline,
		Status:         StatusDraft,
		CreatedAt:      s.now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals = append(s.proposals, proposal)
	s.byID[proposal.ID] = proposal
	return *proposal, nil
}

func parseDeadline(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalid("voting_deadline", "is required")
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Format(time.DateOnly), nil
		}
	}
	return "", invalid("voting_deadline", "must be an ISO-8601 date, got %q", raw)
}

// ListProposals returns proposals in creation order.
func (s *Service) ListProposals(context.Context) []Proposal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Proposal, len(s.proposals))
	for i, p := range s.proposals {
		out[i] = *p
	}
	return out
}

func (s *Service) GetProposal(_ context.Context, id string) (Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return Proposal{}, ErrProposalNotFound
	}
	return *p, nil
}

type VoteInput struct {
	ProposalID   string
	HarmonizerID string
	Vote         string
}

// VoteProposal records a vote. Callers are responsible for not voting twice.
func (s *Service) VoteProposal(_ context.Context, input VoteInput) (Vote, error) {
	proposalID := strings.TrimSpace(input.ProposalID)
	if proposalID == "" {
		return Vote{}, invalid("proposal_id", "is required")
	}
	harmonizer := strings.TrimSpace(input.HarmonizerID)
	if harmonizer == "" {
		return Vote{}, invalid("harmonizer_id", "is required")
	}
	choice := Choice(strings.ToLower(strings.TrimSpace(input.Vote)))
	switch choice {
	case ChoiceYes, ChoiceNo, ChoiceAbstain:
	default:
		return Vote{}, invalid("vote", "must be one of yes, no, abstain")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[proposalID]; !ok {
		return Vote{}, invalid("proposal_id", "unknown proposal %q", proposalID)
	}
	vote := Vote{ID: util.NewID("vote"), ProposalID: proposalID, HarmonizerID: harmonizer, Vote: choice}
	s.votes = append(s.votes, vote)
	return vote, nil
}

func (s *Service) Tally(_ context.Context, proposalID string) Tally {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tally := Tally{ProposalID: proposalID}
	for _, vote := range s.votes {
		if vote.ProposalID != proposalID {
			continue
		}
		switch vote.Vote {
		case ChoiceYes:
			tally.Yes++
		case ChoiceNo:
			tally.No++
		case ChoiceAbstain:
			tally.Abstain++
		}
	}
	return tally
}

// RecordVote appends a generic registry entry.
func (s *Service) RecordVote(_ context.Context, record map[string]any) error {
	species, _ := record["species"].(string)
	switch species {
	case SpeciesHuman, SpeciesAI, SpeciesCompany:
	default:
		return invalid("species", "must be one of human, ai, company")
	}
	entry := make(VoteRecord, len(record))
	for key, value := range record {
		entry[key] = value
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, entry)
	return nil
}

func (s *Service) LoadVotes(context.Context) []VoteRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]VoteRecord, len(s.records))
	for i, record := range s.records {
		clone := make(VoteRecord, len(record))
		for key, value := range record {
			clone[key] = value
		}
		out[i] = clone
	}
	return out
}

// Decide scores the council sliders and moves a draft proposal to Approved
// or Rejected. Approving below the threshold is rejected without touching
// the proposal or the session.
func (s *Service) Decide(_ context.Context, state State, proposalID string, sliders Sliders, approve bool) (Decision, error) {
	score, err := WeightedScore(sliders)
	if err != nil {
		return Decision{}, err
	}
	if approve && !Eligible(score) {
		return Decision{}, invalid("approve", "unavailable: weighted score %d is below %d", score, ApprovalThreshold)
	}

	s.mu.Lock()
	proposal, ok := s.byID[proposalID]
	if !ok {
		s.mu.Unlock()
		return Decision{}, ErrProposalNotFound
	}
	if proposal.Status != StatusDraft {
		s.mu.Unlock()
		return Decision{}, ErrInvalidTransition
	}
	proposal.Status = StatusRejected
	if approve {
		proposal.Status = StatusApproved
	}
	s.mu.Unlock()

	decision := Decision{ProposalID: proposalID, Approved: approve, Score: score}
	state.Set(session.KeyDecision, decision)
	return decision, nil
}

// Execute appends a run to the session history. Only the proposal of an
// approved session decision may run.
func (s *Service) Execute(_ context.Context, state State, proposalID string, mode ExecutionMode) (Run, error) {
	switch mode {
	case ModeDryRun, ModeCanary, ModeFull:
	default:
		return Run{}, invalid("mode", "must be one of Dry-run, Canary, Full")
	}
	var decision Decision
	found, err := state.Decode(session.KeyDecision, &decision)
	if err != nil || !found || !decision.Approved || decision.ProposalID != proposalID {
		return Run{}, ErrNotApproved
	}

	var history []Run
	if _, err := state.Decode(session.KeyRunHistory, &history); err != nil {
		history = nil
	}
	run := Run{ID: util.NewID("run"), ProposalID: proposalID, Mode: mode, StartedAt: s.now()}
	history = append(history, run)
	state.Set(session.KeyRunHistory, history)
	return run, nil
}

// RunHistory returns the runs recorded in the session.
func RunHistory(state State) []Run {
	var history []Run
	_, _ = state.Decode(session.KeyRunHistory, &history)
	return history
}

// CurrentDecision returns the decision stored in the session, if any.
func CurrentDecision(state State) (Decision, bool) {
	var decision Decision
	found, err := state.Decode(session.KeyDecision, &decision)
	if err != nil || !found {
		return Decision{}, false
	}
	return decision, true
}
