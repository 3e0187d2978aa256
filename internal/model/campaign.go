package model

import (
	"time"

	"github.com/pressroom/approvals-backend/internal/status"
)

type Campaign struct {
	ID               string                `db:"id" json:"id"`
	OrgID            string                `db:"org_id" json:"org_id"`
	Name             string                `db:"name" json:"name"`
	ClientName       string                `db:"client_name" json:"client_name"`
	Status           status.CampaignStatus `db:"status" json:"status"`
	EditLocked       bool                  `db:"edit_locked" json:"edit_locked"`
	EditLockedReason *status.LockReason    `db:"edit_locked_reason" json:"edit_locked_reason,omitempty"`
	LockedBy         *string               `db:"locked_by" json:"locked_by,omitempty"`
	LockRevision     int                   `db:"lock_revision" json:"lock_revision"`
	LockedAt         *time.Time            `db:"locked_at" json:"locked_at,omitempty"`
	UnlockedAt       *time.Time            `db:"unlocked_at" json:"unlocked_at,omitempty"`
	CreatedAt        time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt        *time.Time            `db:"updated_at" json:"updated_at,omitempty"`
}

// UnlockRequest records that someone wants an edit lock lifted. It is
// reviewed by a human; creating one never touches the lock itself.
type UnlockRequest struct {
	ID          string    `db:"id" json:"id"`
	OrgID       string    `db:"org_id" json:"org_id"`
	CampaignID  string    `db:"campaign_id" json:"campaign_id"`
	RequestedBy string    `db:"requested_by" json:"requested_by"`
	Reason      string    `db:"reason" json:"reason"`
	Status      string    `db:"status" json:"status"` // pending, granted, denied
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
