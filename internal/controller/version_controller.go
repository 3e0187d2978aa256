package controller

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/pressroom/approvals-backend/internal/errors"
	"github.com/pressroom/approvals-backend/internal/model"
	"github.com/pressroom/approvals-backend/internal/service"
	"github.com/pressroom/approvals-backend/internal/status"
	"github.com/pressroom/approvals-backend/internal/tenancy"
)

type VersionController struct {
	VersionService *service.VersionService
	Guard          *tenancy.Guard
}

func (c *VersionController) CreateVersion(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID := chi.URLParam(r, "id")

	var body struct {
		Title        string                     `json:"title"`
		Body         string                     `json:"body"`
		Boilerplate  []model.BoilerplateSection `json:"boilerplate"`
		KeyVisualURL string                     `json:"key_visual_url"`
		UserID       string                     `json:"user_id"`
		Status       string                     `json:"status"`
		ApprovalID   string                     `json:"approval_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	version, err := c.VersionService.CreateVersion(scope, campaignID,
		service.ContentInput{
			Title:        body.Title,
			Body:         body.Body,
			Boilerplate:  body.Boilerplate,
			KeyVisualURL: body.KeyVisualURL,
		},
		service.CreateVersionOptions{
			UserID:     body.UserID,
			Status:     status.VersionStatus(body.Status),
			ApprovalID: body.ApprovalID,
		})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, version)
}

func (c *VersionController) GetVersionHistory(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID := chi.URLParam(r, "id")

	versions := c.VersionService.GetVersionHistory(scope, campaignID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": versions,
	})
}

func (c *VersionController) GetCurrentVersion(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID := chi.URLParam(r, "id")

	version := c.VersionService.GetCurrentVersion(scope, campaignID)
	if version == nil {
		writeError(w, appErrors.NewNotFound("current version for campaign", campaignID))
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (c *VersionController) UpdateVersionStatus(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	versionID := chi.URLParam(r, "id")

	var body struct {
		Status     string `json:"status"`
		ApprovalID string `json:"approval_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := c.VersionService.UpdateStatus(scope, versionID, status.VersionStatus(body.Status), body.ApprovalID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": body.Status})
}

func (c *VersionController) LinkVersionToApproval(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	versionID := chi.URLParam(r, "id")

	var body struct {
		ApprovalID string `json:"approval_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.ApprovalID) == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := c.VersionService.LinkVersionToApproval(scope, versionID, body.ApprovalID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *VersionController) CleanupDrafts(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	campaignID := chi.URLParam(r, "id")

	var body struct {
		Keep int `json:"keep"`
	}
	// Body is optional; keep defaults inside the service.
	_ = json.NewDecoder(r.Body).Decode(&body)

	c.VersionService.DeleteOldDraftVersions(scope, campaignID, body.Keep)
	w.WriteHeader(http.StatusAccepted)
}

func (c *VersionController) GetArtifact(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	versionID := chi.URLParam(r, "id")

	url, size, err := c.VersionService.ArtifactLocation(scope, versionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"url":   url,
		"bytes": size,
	})
}

// ResolveVersions batch-resolves version ids under the caller's tenant
// scope; denied items come back alongside available ones.
func (c *VersionController) ResolveVersions(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		IDs      []string `json:"ids"`
		Validate *bool    `json:"validate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	validate := body.Validate == nil || *body.Validate

	results := c.Guard.ResolveVersions(scope, body.IDs, validate)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": results,
	})
}
