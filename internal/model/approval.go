package model

import (
	"strings"
	"time"

	"github.com/pressroom/approvals-backend/internal/status"
)

// Approval is a decision process over one content snapshot. Recipients,
// history and analytics are embedded documents, read-modify-written as
// a whole; the Version counter guards against lost updates.
type Approval struct {
	ID           string                `db:"id" json:"id"`
	OrgID        string                `db:"org_id" json:"org_id"`
	CampaignID   string                `db:"campaign_id" json:"campaign_id"`
	Title        string                `db:"title" json:"title"`
	ClientName   string                `db:"client_name" json:"client_name"`
	CampaignName string                `db:"campaign_name" json:"campaign_name"`
	Status       status.WorkflowStatus `db:"status" json:"status"`
	ShareID      string                `db:"share_id" json:"share_id"`
	Recipients   []Recipient           `db:"recipients" json:"recipients"`
	CurrentStage int                   `db:"current_stage" json:"current_stage"`
	Stages       []Stage               `db:"stages" json:"stages,omitempty"`
	IsMultiStage bool                  `db:"is_multi_stage" json:"is_multi_stage"`
	Options      ApprovalOptions       `db:"options" json:"options"`
	History      []HistoryEntry        `db:"history" json:"history"`
	Analytics    Analytics             `db:"analytics" json:"analytics"`
	Version      int                   `db:"version" json:"version"`
	ExpiresAt    *time.Time            `db:"expires_at" json:"expires_at,omitempty"`
	RequestedAt  *time.Time            `db:"requested_at" json:"requested_at,omitempty"`
	ApprovedAt   *time.Time            `db:"approved_at" json:"approved_at,omitempty"`
	RejectedAt   *time.Time            `db:"rejected_at" json:"rejected_at,omitempty"`
	CreatedAt    time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time            `db:"updated_at" json:"updated_at,omitempty"`
}

// Recipient is a decision participant embedded in a workflow. It is
// mutated in place by the workflow operations, never persisted on its
// own.
type Recipient struct {
	ID                string                 `json:"id"`
	Email             string                 `json:"email"`
	Name              string                 `json:"name"`
	Role              string                 `json:"role"`
	Status            status.RecipientStatus `json:"status"`
	IsRequired        bool                   `json:"is_required"`
	Decision          string                 `json:"decision,omitempty"`
	DecidedAt         *time.Time             `json:"decided_at,omitempty"`
	ViewedAt          *time.Time             `json:"viewed_at,omitempty"`
	Comment           string                 `json:"comment,omitempty"`
	NotificationsSent int                    `json:"notifications_sent"`
	Order             int                    `json:"order"`
}

type Stage struct {
	Name     string `json:"name"`
	Audience string `json:"audience"` // team or customer
	Status   string `json:"status"`
}

type ApprovalOptions struct {
	RequireAllApprovals  bool `json:"require_all_approvals"`
	AllowPartialApproval bool `json:"allow_partial_approval"`
	ReminderDays         int  `json:"reminder_days,omitempty"`
}

// HistoryEntry is one line of the append-only event log.
type HistoryEntry struct {
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
}

type Analytics struct {
	TotalViews    int        `json:"total_views"`
	UniqueViews   int        `json:"unique_views"`
	FirstViewedAt *time.Time `json:"first_viewed_at,omitempty"`
	LastViewedAt  *time.Time `json:"last_viewed_at,omitempty"`
}

// RequiredRecipients returns the recipients whose approval is needed
// for an all-approvals workflow. When none are explicitly marked
// required, everyone is.
func (a *Approval) RequiredRecipients() []*Recipient {
	var required []*Recipient
	for i := range a.Recipients {
		if a.Recipients[i].IsRequired {
			required = append(required, &a.Recipients[i])
		}
	}
	if len(required) == 0 {
		for i := range a.Recipients {
			required = append(required, &a.Recipients[i])
		}
	}
	return required
}

// FindRecipient locates a recipient by email, case-insensitively.
func (a *Approval) FindRecipient(email string) *Recipient {
	for i := range a.Recipients {
		if strings.EqualFold(a.Recipients[i].Email, email) {
			return &a.Recipients[i]
		}
	}
	return nil
}
