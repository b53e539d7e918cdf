package governance

import (
	"context"

	"supernova/api/internal/routes"
)

const Category = "governance"

// RegisterRoutes adds the proposal and vote routes to registry.
func (s *Service) RegisterRoutes(registry *routes.Registry) {
	registry.RegisterOnce("list_proposals", s.handleListProposals, "List governance proposals", Category)
	registry.RegisterOnce("create_proposal", s.handleCreateProposal, "Create a draft proposal", Category)
	registry.RegisterOnce("vote_proposal", s.handleVoteProposal, "Cast a harmonizer vote on a proposal", Category)
	registry.RegisterOnce("load_votes", s.handleLoadVotes, "Load the generic vote registry", Category)
	registry.RegisterOnce("record_vote", s.handleRecordVote, "Append a generic vote record", Category)
}

func (s *Service) handleListProposals(ctx context.Context, _ map[string]any, _ routes.Call) (any, error) {
	return map[string]any{"proposals": s.ListProposals(ctx)}, nil
}

func (s *Service) handleCreateProposal(ctx context.Context, payload map[string]any, call routes.Call) (any, error) {
	author := routes.String(payload, "author_id")
	if author == "" {
		author = call.CurrentUser
	}
	proposal, err := s.CreateProposal(ctx, CreateProposalInput{
		Title:          routes.String(payload, "title"),
		Description:    routes.String(payload, "description"),
		AuthorID:       author,
		GroupID:        routes.String(payload, "group_id"),
		VotingDeadline: routes.String(payload, "voting_deadline"),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"proposal_id": proposal.ID}, nil
}

func (s *Service) handleVoteProposal(ctx context.Context, payload map[string]any, _ routes.Call) (any, error) {
	vote, err := s.VoteProposal(ctx, VoteInput{
		ProposalID:   routes.String(payload, "proposal_id"),
		HarmonizerID: routes.String(payload, "harmonizer_id"),
		Vote:         routes.String(payload, "vote"),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"vote_id": vote.ID}, nil
}

func (s *Service) handleLoadVotes(ctx context.Context, _ map[string]any, _ routes.Call) (any, error) {
	return map[string]any{"votes": s.LoadVotes(ctx)}, nil
}

func (s *Service) handleRecordVote(ctx context.Context, payload map[string]any, _ routes.Call) (any, error) {
	if err := s.RecordVote(ctx, payload); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}
