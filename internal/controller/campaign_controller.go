package controller

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pressroom/approvals-backend/internal/repository"
	"github.com/pressroom/approvals-backend/internal/service"
)

type CampaignController struct {
	Campaigns   repository.CampaignRepositoryInterface
	LockService service.LockManager
}

// GetLock reports the campaign's edit-lock state.
func (c *CampaignController) GetLock(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID := chi.URLParam(r, "id")

	campaign, err := c.Campaigns.GetByID(scope, campaignID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id":        campaign.ID,
		"edit_locked":        campaign.EditLocked,
		"edit_locked_reason": campaign.EditLockedReason,
		"locked_by":          campaign.LockedBy,
		"locked_at":          campaign.LockedAt,
		"unlocked_at":        campaign.UnlockedAt,
	})
}

// RequestUnlock queues an unlock request for human review. The lock
// itself stays put.
func (c *CampaignController) RequestUnlock(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID := chi.URLParam(r, "id")

	var body struct {
		RequestedBy string `json:"requested_by"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	requestID, err := c.LockService.RequestUnlock(scope, campaignID, body.RequestedBy, body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"request_id": requestID,
		"status":     "pending",
	})
}
