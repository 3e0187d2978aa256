package controller

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pressroom/approvals-backend/internal/model"
	"github.com/pressroom/approvals-backend/internal/repository"
	"github.com/pressroom/approvals-backend/internal/service"
	"github.com/pressroom/approvals-backend/internal/status"
)

type ApprovalController struct {
	ApprovalService *service.ApprovalService
}

func (c *ApprovalController) CreateApproval(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		CampaignID   string `json:"campaign_id"`
		Title        string `json:"title"`
		ClientName   string `json:"client_name"`
		CampaignName string `json:"campaign_name"`
		Recipients   []struct {
			Email      string `json:"email"`
			Name       string `json:"name"`
			Role       string `json:"role"`
			IsRequired bool   `json:"is_required"`
		} `json:"recipients"`
		Stages               []model.Stage `json:"stages"`
		RequireAllApprovals  bool          `json:"require_all_approvals"`
		AllowPartialApproval bool          `json:"allow_partial_approval"`
		ExpiresAt            *time.Time    `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	input := service.CreateApprovalInput{
		CampaignID:   body.CampaignID,
		Title:        body.Title,
		ClientName:   body.ClientName,
		CampaignName: body.CampaignName,
		Stages:       body.Stages,
		Options: model.ApprovalOptions{
			RequireAllApprovals:  body.RequireAllApprovals,
			AllowPartialApproval: body.AllowPartialApproval,
		},
		ExpiresAt: body.ExpiresAt,
	}
	for _, rec := range body.Recipients {
		input.Recipients = append(input.Recipients, service.RecipientInput{
			Email:      rec.Email,
			Name:       rec.Name,
			Role:       rec.Role,
			IsRequired: rec.IsRequired,
		})
	}

	approval, err := c.ApprovalService.Create(scope, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, approval)
}

func (c *ApprovalController) SendApproval(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	approvalID := chi.URLParam(r, "id")

	approval, err := c.ApprovalService.Send(scope, approvalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

func (c *ApprovalController) SearchApprovals(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	filters := repository.SearchFilters{
		Query: r.URL.Query().Get("q"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filters.Statuses = append(filters.Statuses, status.WorkflowStatus(strings.TrimSpace(s)))
		}
	}

	results := c.ApprovalService.SearchEnhanced(scope, filters)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": results,
	})
}
