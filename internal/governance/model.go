// Package governance implements proposals, votes and council decisions.
package governance

import "time"

type Status string

const (
	StatusDraft    Status = "Draft"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

type Proposal struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	AuthorID       string    `json:"author_id"`
	GroupID        string    `json:"group_id,omitempty"`
	VotingDeadline string    `json:"voting_deadline"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type Choice string

const (
	ChoiceYes     Choice = "yes"
	ChoiceNo      Choice = "no"
	ChoiceAbstain Choice = "abstain"
)

type Vote struct {
	ID           string `json:"id"`
	ProposalID   string `json:"proposal_id"`
	HarmonizerID string `json:"harmonizer_id"`
	Vote         Choice `json:"vote"`
}

// Tally counts the votes cast on one proposal.
type Tally struct {
	ProposalID string `json:"proposal_id"`
	Yes        int    `json:"yes"`
	No         int    `json:"no"`
	Abstain    int    `json:"abstain"`
}

// Species of a generic vote record.
const (
	SpeciesHuman   = "human"
	SpeciesAI      = "ai"
	SpeciesCompany = "company"
)

// VoteRecord is an append-only registry entry: species plus arbitrary
// JSON-shaped fields.
type VoteRecord map[string]any

type Decision struct {
	ProposalID string `json:"proposal_id"`
	Approved   bool   `json:"approved"`
	Score      int    `json:"score"`
}

type ExecutionMode string

const (
	ModeDryRun ExecutionMode = "Dry-run"
	ModeCanary ExecutionMode = "Canary"
	ModeFull   ExecutionMode = "Full"
)

type Run struct {
	ID         string        `json:"id"`
	ProposalID string        `json:"proposal_id"`
	Mode       ExecutionMode `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
}
