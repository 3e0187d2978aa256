package service

import (
	"github.com/google/uuid"

	appErrors "github.com/pressroom/approvals-backend/internal/errors"
	"github.com/pressroom/approvals-backend/internal/model"
	"github.com/pressroom/approvals-backend/internal/repository"
	"github.com/pressroom/approvals-backend/internal/status"
	"github.com/pressroom/approvals-backend/internal/tenancy"
)

// LockManager is the edit-lock surface the rest of the engine consumes.
type LockManager interface {
	Lock(scope tenancy.Scope, campaignID string, reason status.LockReason, actor string) (*repository.LockOutcome, error)
	Unlock(scope tenancy.Scope, campaignID, actor string) error
	IsLocked(scope tenancy.Scope, campaignID string) (bool, error)
	RequestUnlock(scope tenancy.Scope, campaignID, requester, reason string) (string, error)
	ApplyVersionStatus(scope tenancy.Scope, campaignID string, st status.VersionStatus, actor string) error
}

// LockService toggles the per-campaign mutual-exclusion flag. Lock
// acquisition is guarded by the campaign's lock_revision, so two actors
// cannot silently overwrite each other's hold.
type LockService struct {
	Campaigns repository.CampaignRepositoryInterface
}

// Lock attempts to acquire the edit lock. The outcome distinguishes
// "acquired" from "already held by another actor"; re-locking by the
// current holder succeeds and may change the reason.
func (s *LockService) Lock(scope tenancy.Scope, campaignID string, reason status.LockReason, actor string) (*repository.LockOutcome, error) {
	outcome, err := s.Campaigns.AcquireLock(scope, campaignID, reason, actor)
	if err != nil {
		return nil, appErrors.NewPersistence("lock campaign "+campaignID, err)
	}
	return outcome, nil
}

func (s *LockService) Unlock(scope tenancy.Scope, campaignID, actor string) error {
	if err := s.Campaigns.ReleaseLock(scope, campaignID); err != nil {
		if appErrors.IsNotFound(err) {
			return err
		}
		return appErrors.NewPersistence("unlock campaign "+campaignID, err)
	}
	return nil
}

func (s *LockService) IsLocked(scope tenancy.Scope, campaignID string) (bool, error) {
	c, err := s.Campaigns.GetByID(scope, campaignID)
	if err != nil {
		return false, err
	}
	return c.EditLocked, nil
}

// RequestUnlock records that someone wants to edit a locked campaign.
// It never unlocks anything itself; a human reviews the request.
func (s *LockService) RequestUnlock(scope tenancy.Scope, campaignID, requester, reason string) (string, error) {
	if requester == "" {
		return "", appErrors.NewValidation("requester is required")
	}
	req := &model.UnlockRequest{
		ID:          uuid.NewString(),
		OrgID:       scope.OrgID,
		CampaignID:  campaignID,
		RequestedBy: requester,
		Reason:      reason,
		Status:      "pending",
	}
	if err := s.Campaigns.CreateUnlockRequest(req); err != nil {
		return "", appErrors.NewPersistence("record unlock request", err)
	}
	return req.ID, nil
}

// ApplyVersionStatus applies the pure status-to-lock mapping after a
// version status has been durably written. This transition belongs to
// the engine, so it overrides whoever currently holds the flag.
func (s *LockService) ApplyVersionStatus(scope tenancy.Scope, campaignID string, st status.VersionStatus, actor string) error {
	change := status.LockChangeFor(st)
	switch {
	case change.Lock:
		if err := s.Campaigns.ApplyLockReason(scope, campaignID, change.Reason, actor); err != nil {
			return appErrors.NewPersistence("lock campaign "+campaignID, err)
		}
	case change.Unlock:
		if err := s.Campaigns.ReleaseLock(scope, campaignID); err != nil {
			return appErrors.NewPersistence("unlock campaign "+campaignID, err)
		}
	default:
		return nil
	}
	if change.Campaign != "" {
		if err := s.Campaigns.UpdateStatus(scope, campaignID, change.Campaign); err != nil {
			return appErrors.NewPersistence("update campaign status", err)
		}
	}
	return nil
}

var _ LockManager = (*LockService)(nil)
