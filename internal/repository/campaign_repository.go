package repository

import (
	"database/sql"
	"time"

	appErrors "github.com/pressroom/approvals-backend/internal/errors"
	"github.com/pressroom/approvals-backend/internal/model"
	"github.com/pressroom/approvals-backend/internal/status"
	"github.com/pressroom/approvals-backend/internal/tenancy"
)

// LockOutcome is what a guarded lock attempt reports back.
type LockOutcome struct {
	Acquired bool
	Holder   string
	Reason   status.LockReason
	Revision int
}

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(scope tenancy.Scope, id string) (*model.Campaign, error)
	UpdateStatus(scope tenancy.Scope, id string, st status.CampaignStatus) error

	// Edit lock
	AcquireLock(scope tenancy.Scope, id string, reason status.LockReason, actor string) (*LockOutcome, error)
	ApplyLockReason(scope tenancy.Scope, id string, reason status.LockReason, actor string) error
	ReleaseLock(scope tenancy.Scope, id string) error

	// Unlock review queue
	CreateUnlockRequest(req *model.UnlockRequest) error
}

type CampaignRepository struct {
	DB *sql.DB
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = status.CampaignDraft
	}
	query := `
        INSERT INTO campaigns (id, org_id, name, client_name, status, edit_locked, lock_revision, created_at)
        VALUES ($1, $2, $3, $4, $5, false, 0, $6)
    `
	_, err := r.DB.Exec(query, c.ID, c.OrgID, c.Name, c.ClientName, c.Status, c.CreatedAt)
	return err
}

func (r *CampaignRepository) GetByID(scope tenancy.Scope, id string) (*model.Campaign, error) {
	query := `
        SELECT id, org_id, name, client_name, status, edit_locked, edit_locked_reason,
               locked_by, lock_revision, locked_at, unlocked_at, created_at, updated_at
        FROM campaigns WHERE id=$1 AND org_id=$2
    `
	var c model.Campaign
	var reason, lockedBy sql.NullString
	err := r.DB.QueryRow(query, id, scope.OrgID).Scan(
		&c.ID, &c.OrgID, &c.Name, &c.ClientName, &c.Status, &c.EditLocked, &reason,
		&lockedBy, &c.LockRevision, &c.LockedAt, &c.UnlockedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("campaign", id)
		}
		return nil, err
	}
	if reason.Valid {
		lr := status.LockReason(reason.String)
		c.EditLockedReason = &lr
	}
	if lockedBy.Valid {
		c.LockedBy = &lockedBy.String
	}
	return &c, nil
}

func (r *CampaignRepository) UpdateStatus(scope tenancy.Scope, id string, st status.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND org_id=$3`
	_, err := r.DB.Exec(query, st, id, scope.OrgID)
	return err
}

// AcquireLock sets the edit lock only when the campaign is unlocked or
// already held by the same actor. The lock_revision bump makes the
// write visible to concurrent holders; zero rows affected means someone
// else holds it.
func (r *CampaignRepository) AcquireLock(scope tenancy.Scope, id string, reason status.LockReason, actor string) (*LockOutcome, error) {
	query := `
        UPDATE campaigns
        SET edit_locked=true, edit_locked_reason=$1, locked_by=$2,
            locked_at=NOW(), lock_revision=lock_revision+1, updated_at=NOW()
        WHERE id=$3 AND org_id=$4 AND (edit_locked=false OR locked_by=$2)
        RETURNING lock_revision
    `
	var revision int
	err := r.DB.QueryRow(query, reason, actor, id, scope.OrgID).Scan(&revision)
	if err == nil {
		return &LockOutcome{Acquired: true, Reason: reason, Holder: actor, Revision: revision}, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// Not acquired: either held by another actor, or no such campaign.
	c, err := r.GetByID(scope, id)
	if err != nil {
		return nil, err
	}
	outcome := &LockOutcome{Acquired: false, Revision: c.LockRevision}
	if c.LockedBy != nil {
		outcome.Holder = *c.LockedBy
	}
	if c.EditLockedReason != nil {
		outcome.Reason = *c.EditLockedReason
	}
	return outcome, nil
}

// ApplyLockReason is the engine's own lock transition: it follows a
// durable version status write, so it overrides whoever holds the flag.
func (r *CampaignRepository) ApplyLockReason(scope tenancy.Scope, id string, reason status.LockReason, actor string) error {
	query := `
        UPDATE campaigns
        SET edit_locked=true, edit_locked_reason=$1, locked_by=$2,
            locked_at=NOW(), lock_revision=lock_revision+1, updated_at=NOW()
        WHERE id=$3 AND org_id=$4
    `
	res, err := r.DB.Exec(query, reason, actor, id, scope.OrgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFound("campaign", id)
	}
	return nil
}

func (r *CampaignRepository) ReleaseLock(scope tenancy.Scope, id string) error {
	query := `
        UPDATE campaigns
        SET edit_locked=false, edit_locked_reason=NULL, locked_by=NULL,
            unlocked_at=NOW(), lock_revision=lock_revision+1, updated_at=NOW()
        WHERE id=$1 AND org_id=$2
    `
	res, err := r.DB.Exec(query, id, scope.OrgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewNotFound("campaign", id)
	}
	return nil
}

func (r *CampaignRepository) CreateUnlockRequest(req *model.UnlockRequest) error {
	req.CreatedAt = time.Now()
	if req.Status == "" {
		req.Status = "pending"
	}
	query := `
        INSERT INTO unlock_requests (id, org_id, campaign_id, requested_by, reason, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := r.DB.Exec(query, req.ID, req.OrgID, req.CampaignID, req.RequestedBy, req.Reason, req.Status, req.CreatedAt)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
