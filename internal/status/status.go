package status

import (
	appErrors "github.com/pressroom/approvals-backend/internal/errors"
)

// VersionStatus is the lifecycle state of a content snapshot.
type VersionStatus string

const (
	VersionDraft           VersionStatus = "draft"
	VersionPendingTeam     VersionStatus = "pending_team"
	VersionPendingCustomer VersionStatus = "pending_customer"
	VersionApproved        VersionStatus = "approved"
	VersionRejected        VersionStatus = "rejected"
)

func (s VersionStatus) Valid() bool {
	switch s {
	case VersionDraft, VersionPendingTeam, VersionPendingCustomer, VersionApproved, VersionRejected:
		return true
	}
	return false
}

// CustomerFacing reports whether a version in this status is out for
// external customer review.
func (s VersionStatus) CustomerFacing() bool {
	return s == VersionPendingCustomer
}

var versionTransitions = map[VersionStatus][]VersionStatus{
	VersionDraft:           {VersionPendingTeam, VersionPendingCustomer},
	VersionPendingTeam:     {VersionPendingCustomer, VersionApproved, VersionRejected},
	VersionPendingCustomer: {VersionApproved, VersionRejected},
	VersionApproved:        {},
	VersionRejected:        {},
}

// VersionTransition validates a version status change against the
// transition table. Illegal moves (e.g. approved -> pending_team) come
// back as a conflict error.
func VersionTransition(from, to VersionStatus) error {
	if !to.Valid() {
		return appErrors.NewValidation("unknown version status: " + string(to))
	}
	for _, allowed := range versionTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return appErrors.NewConflict("illegal version transition " + string(from) + " -> " + string(to))
}

// WorkflowStatus is the state of an approval workflow.
type WorkflowStatus string

const (
	WorkflowDraft            WorkflowStatus = "draft"
	WorkflowPending          WorkflowStatus = "pending"
	WorkflowInReview         WorkflowStatus = "in_review"
	WorkflowApproved         WorkflowStatus = "approved"
	WorkflowRejected         WorkflowStatus = "rejected"
	WorkflowChangesRequested WorkflowStatus = "changes_requested"
)

func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowDraft, WorkflowPending, WorkflowInReview, WorkflowApproved, WorkflowRejected, WorkflowChangesRequested:
		return true
	}
	return false
}

// Terminal reports whether no further decisions may be applied.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowApproved || s == WorkflowRejected || s == WorkflowChangesRequested
}

var workflowTransitions = map[WorkflowStatus][]WorkflowStatus{
	WorkflowDraft:    {WorkflowPending},
	WorkflowPending:  {WorkflowInReview, WorkflowApproved, WorkflowRejected, WorkflowChangesRequested},
	WorkflowInReview: {WorkflowApproved, WorkflowRejected, WorkflowChangesRequested},
}

// WorkflowTransition validates a workflow status change.
func WorkflowTransition(from, to WorkflowStatus) error {
	if !to.Valid() {
		return appErrors.NewValidation("unknown workflow status: " + string(to))
	}
	for _, allowed := range workflowTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return appErrors.NewConflict("illegal workflow transition " + string(from) + " -> " + string(to))
}

// RecipientStatus tracks a single participant inside a workflow.
type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientViewed    RecipientStatus = "viewed"
	RecipientCommented RecipientStatus = "commented"
	RecipientApproved  RecipientStatus = "approved"
	RecipientRejected  RecipientStatus = "rejected"
)

// LockReason explains why a campaign's content is frozen.
type LockReason string

const (
	LockPendingTeamApproval     LockReason = "pending_team_approval"
	LockPendingCustomerApproval LockReason = "pending_customer_approval"
	LockApprovedFinal           LockReason = "approved_final"
)

// CampaignStatus is the coarse campaign lifecycle state.
type CampaignStatus string

const (
	CampaignDraft    CampaignStatus = "draft"
	CampaignInReview CampaignStatus = "in_review"
	CampaignApproved CampaignStatus = "approved"
)

// LockChange is the edit-lock consequence of a version status.
type LockChange struct {
	Lock     bool
	Unlock   bool
	Reason   LockReason
	Campaign CampaignStatus
}

// LockChangeFor maps a version status to the edit-lock action it
// implies. Pure function, no side effects.
func LockChangeFor(s VersionStatus) LockChange {
	switch s {
	case VersionPendingTeam:
		return LockChange{Lock: true, Reason: LockPendingTeamApproval, Campaign: CampaignDraft}
	case VersionPendingCustomer:
		return LockChange{Lock: true, Reason: LockPendingCustomerApproval, Campaign: CampaignInReview}
	case VersionApproved:
		return LockChange{Lock: true, Reason: LockApprovedFinal, Campaign: CampaignApproved}
	case VersionRejected:
		return LockChange{Unlock: true, Campaign: CampaignDraft}
	}
	return LockChange{}
}
