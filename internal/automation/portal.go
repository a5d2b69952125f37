// Package automation holds the built-in business reactions registered as
// dispatcher listeners, and the portal client they act through.
package automation

import (
	"context"
	"time"
)

// Portal is the part of the business application the automations mutate.
type Portal interface {
	CreateProjectFromProposal(ctx context.Context, proposalID int64) (Project, error)
	GenerateDefaultMilestones(ctx context.Context, projectID int64) ([]Milestone, error)
	CreateMilestoneInvoice(ctx context.Context, milestoneID int64) (Invoice, error)
	// SetProjectStatus returns the status the project had before the change.
	SetProjectStatus(ctx context.Context, projectID int64, status string) (string, error)
}

type Project struct {
	ID         int64  `json:"id"`
	ClientID   int64  `json:"clientId,omitempty"`
	ProposalID int64  `json:"proposalId,omitempty"`
	Name       string `json:"name"`
	Status     string `json:"status,omitempty"`
}

type Milestone struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"projectId"`
	Name      string    `json:"name"`
	Amount    float64   `json:"amount,omitempty"`
	DueDate   time.Time `json:"dueDate,omitzero"`
}

type Invoice struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number"`
	ClientID    int64     `json:"clientId,omitempty"`
	ProjectID   int64     `json:"projectId,omitempty"`
	MilestoneID int64     `json:"milestoneId,omitempty"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency,omitempty"`
	DueDate     time.Time `json:"dueDate,omitzero"`
	ClientName  string    `json:"clientName,omitempty"`
	ClientEmail string    `json:"clientEmail,omitempty"`
}
