package controller

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/pressroom/approvals-backend/internal/errors"
	"github.com/pressroom/approvals-backend/internal/service"
	"github.com/pressroom/approvals-backend/internal/status"
)

// ReviewController serves the public share-link endpoints. No org
// header here: the unguessable share token is the access capability.
type ReviewController struct {
	ApprovalService *service.ApprovalService
}

// GetReview returns the workflow behind a share link and records the
// view when the caller identifies themselves.
func (c *ReviewController) GetReview(w http.ResponseWriter, r *http.Request) {
	shareID := chi.URLParam(r, "shareId")
	email := r.URL.Query().Get("email")

	if email != "" {
		approval, err := c.ApprovalService.MarkAsViewed(shareID, email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, approval)
		return
	}

	approval := c.ApprovalService.GetByShareID(shareID)
	if approval == nil {
		writeError(w, appErrors.NewNotFound("approval", shareID))
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

func (c *ReviewController) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	shareID := chi.URLParam(r, "shareId")

	var body struct {
		Email    string `json:"email"`
		Decision string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	approval, err := c.ApprovalService.SubmitDecision(shareID, body.Email, status.RecipientStatus(body.Decision))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

func (c *ReviewController) RequestChanges(w http.ResponseWriter, r *http.Request) {
	shareID := chi.URLParam(r, "shareId")

	var body struct {
		Email   string `json:"email"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	approval, err := c.ApprovalService.RequestChanges(shareID, body.Email, body.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}
