package service

import (
	"crypto/rand"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pressroom/approvals-backend/internal/cache"
	appErrors "github.com/pressroom/approvals-backend/internal/errors"
	"github.com/pressroom/approvals-backend/internal/model"
	"github.com/pressroom/approvals-backend/internal/notify"
	"github.com/pressroom/approvals-backend/internal/render"
	"github.com/pressroom/approvals-backend/internal/repository"
	"github.com/pressroom/approvals-backend/internal/status"
	"github.com/pressroom/approvals-backend/internal/tenancy"
)

const shareIDLength = 20

const shareIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newShareID returns a 20-char lowercase-alphanumeric public token.
func newShareID() string {
	buf := make([]byte, shareIDLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in serious trouble
		panic(err)
	}
	for i, b := range buf {
		buf[i] = shareIDAlphabet[int(b)%len(shareIDAlphabet)]
	}
	return string(buf)
}

// ApprovalService is the recipient-decision state machine. Workflow
// documents are read-modify-written whole; the revision counter on the
// row catches concurrent writers and the mutation is retried once.
type ApprovalService struct {
	Approvals  repository.ApprovalRepositoryInterface
	Versions   *VersionService
	Dispatcher notify.Dispatcher
	Cache      *cache.ShareCache
	Links      render.LinkBuilder
}

type RecipientInput struct {
	Email      string
	Name       string
	Role       string
	IsRequired bool
}

type CreateApprovalInput struct {
	CampaignID   string
	Title        string
	ClientName   string
	CampaignName string
	Recipients   []RecipientInput
	Stages       []model.Stage
	Options      model.ApprovalOptions
	ExpiresAt    *time.Time
}

// Create builds a new approval workflow in draft state with a unique
// share token. Nothing is sent to recipients until Send.
func (s *ApprovalService) Create(scope tenancy.Scope, input CreateApprovalInput) (*model.Approval, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, appErrors.NewValidation("approval title cannot be empty")
	}
	if len(input.Recipients) == 0 {
		return nil, appErrors.NewValidation("approval needs at least one recipient")
	}

	shareID, err := s.uniqueShareID()
	if err != nil {
		return nil, err
	}

	recipients := make([]model.Recipient, len(input.Recipients))
	for i, in := range input.Recipients {
		if strings.TrimSpace(in.Email) == "" {
			return nil, appErrors.NewValidation("recipient email cannot be empty")
		}
		recipients[i] = model.Recipient{
			ID:         uuid.NewString(),
			Email:      in.Email,
			Name:       in.Name,
			Role:       in.Role,
			Status:     status.RecipientPending,
			IsRequired: in.IsRequired,
			Order:      i,
		}
	}

	a := &model.Approval{
		ID:           uuid.NewString(),
		OrgID:        scope.OrgID,
		CampaignID:   input.CampaignID,
		Title:        input.Title,
		ClientName:   input.ClientName,
		CampaignName: input.CampaignName,
		Status:       status.WorkflowDraft,
		ShareID:      shareID,
		Recipients:   recipients,
		Stages:       input.Stages,
		IsMultiStage: len(input.Stages) > 1,
		Options:      input.Options,
		History:      []model.HistoryEntry{},
		Analytics:    model.Analytics{},
		Version:      1,
		ExpiresAt:    input.ExpiresAt,
	}

	if err := s.Approvals.Create(a); err != nil {
		return nil, appErrors.NewPersistence("create approval request", err)
	}
	return a, nil
}

func (s *ApprovalService) uniqueShareID() (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		id := newShareID()
		exists, err := s.Approvals.ShareIDExists(id)
		if err != nil {
			return "", appErrors.NewPersistence("check share id uniqueness", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", appErrors.NewConflict("could not allocate a unique share id")
}

// Send moves a draft workflow to pending and notifies every recipient.
// Notification failures are logged, never returned.
func (s *ApprovalService) Send(scope tenancy.Scope, approvalID string) (*model.Approval, error) {
	a, err := s.Approvals.GetByID(scope, approvalID)
	if err != nil {
		return nil, err
	}
	if err := status.WorkflowTransition(a.Status, status.WorkflowPending); err != nil {
		return nil, err
	}
	now := time.Now()
	a.Status = status.WorkflowPending
	a.RequestedAt = &now
	a.History = append(a.History, model.HistoryEntry{
		At: now, Actor: "system", Action: "sent",
		Detail: "approval request sent to recipients",
	})

	// NotificationsSent counts notifications actually handed to the
	// dispatcher, so the counter only moves when the hand-off worked.
	link := s.reviewLink(a)
	for i := range a.Recipients {
		delivered := s.dispatch(notify.Job{
			WorkflowID:     a.ID,
			RecipientEmail: a.Recipients[i].Email,
			Kind:           "approval_requested",
			Message:        "Please review " + a.Title + ": " + link,
		})
		if delivered {
			a.Recipients[i].NotificationsSent++
		}
	}

	if err := s.Approvals.Update(a); err != nil {
		return nil, appErrors.NewPersistence("send approval request", err)
	}
	s.Cache.Invalidate(a.ShareID)
	return a, nil
}

// reviewLink builds the customer review URL, with the linked version
// as the pdf parameter when one exists.
func (s *ApprovalService) reviewLink(a *model.Approval) string {
	versionID := ""
	if s.Versions != nil {
		scope := tenancy.Scope{OrgID: a.OrgID}
		if v, err := s.Versions.Versions.GetByApprovalID(scope, a.ID); err == nil && v != nil {
			versionID = v.ID
		}
	}
	return s.Links.CustomerLink(a.ShareID, versionID)
}

// dispatch hands one job to the dispatcher and reports whether the
// hand-off succeeded. Failures are logged, never propagated.
func (s *ApprovalService) dispatch(job notify.Job) bool {
	if s.Dispatcher == nil {
		return false
	}
	if err := s.Dispatcher.Send(job); err != nil {
		log.Println("⚠️ failed to dispatch notification to", job.RecipientEmail, ":", err)
		return false
	}
	return true
}

// mutate loads a workflow by share token, applies fn, and writes it
// back. One retry on a revision conflict keeps arrival order without
// looping forever.
func (s *ApprovalService) mutate(shareID string, fn func(a *model.Approval) error) (*model.Approval, error) {
	for attempt := 0; ; attempt++ {
		a, err := s.Approvals.GetByShareID(shareID)
		if err != nil {
			return nil, appErrors.NewPersistence("load approval by share id", err)
		}
		if a == nil {
			return nil, appErrors.NewNotFound("approval", shareID)
		}
		if err := fn(a); err != nil {
			return nil, err
		}
		err = s.Approvals.Update(a)
		if err == nil {
			s.Cache.Invalidate(shareID)
			return a, nil
		}
		if appErrors.IsConflict(err) && attempt == 0 {
			continue
		}
		return nil, appErrors.NewPersistence("update approval", err)
	}
}

// SubmitDecision records one recipient's verdict. A rejection is
// terminal immediately, regardless of other pending recipients, and is
// not revocable. An approval completes the workflow per the
// require-all-approvals option.
func (s *ApprovalService) SubmitDecision(shareID, recipientEmail string, decision status.RecipientStatus) (*model.Approval, error) {
	if decision != status.RecipientApproved && decision != status.RecipientRejected {
		return nil, appErrors.NewValidation("decision must be approved or rejected")
	}

	a, err := s.mutate(shareID, func(a *model.Approval) error {
		if a.Status.Terminal() {
			return appErrors.NewConflict("approval " + a.ID + " already has a final decision")
		}
		r := a.FindRecipient(recipientEmail)
		if r == nil {
			return appErrors.NewNotFound("recipient", recipientEmail)
		}

		now := time.Now()
		r.Status = decision
		r.Decision = string(decision)
		r.DecidedAt = &now

		a.History = append(a.History, model.HistoryEntry{
			At: now, Actor: recipientEmail, Action: "decision", Detail: string(decision),
		})

		if decision == status.RecipientRejected {
			if err := status.WorkflowTransition(a.Status, status.WorkflowRejected); err != nil {
				return err
			}
			a.Status = status.WorkflowRejected
			a.RejectedAt = &now
			return nil
		}

		if s.approvalsComplete(a) {
			if err := status.WorkflowTransition(a.Status, status.WorkflowApproved); err != nil {
				return err
			}
			a.Status = status.WorkflowApproved
			a.ApprovedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if a.Status.Terminal() {
		s.applyOutcomeToVersion(a)
	}
	s.dispatch(notify.Job{
		WorkflowID:     a.ID,
		RecipientEmail: recipientEmail,
		Kind:           "decision_recorded",
		Message:        "Decision recorded for " + a.Title,
	})
	return a, nil
}

func (s *ApprovalService) approvalsComplete(a *model.Approval) bool {
	if !a.Options.RequireAllApprovals {
		return true // first approval suffices
	}
	for _, r := range a.RequiredRecipients() {
		if r.Status != status.RecipientApproved {
			return false
		}
	}
	return true
}

// applyOutcomeToVersion pushes a terminal workflow outcome onto the
// linked version, which in turn re-locks or releases the campaign.
// Failures here are logged: the decision itself is already durable.
func (s *ApprovalService) applyOutcomeToVersion(a *model.Approval) {
	if s.Versions == nil {
		return
	}
	scope := tenancy.Scope{OrgID: a.OrgID}
	v, err := s.Versions.Versions.GetByApprovalID(scope, a.ID)
	if err != nil {
		log.Println("⚠️ failed to load version for approval", a.ID, ":", err)
		return
	}
	if v == nil {
		return
	}
	var target status.VersionStatus
	switch a.Status {
	case status.WorkflowApproved:
		target = status.VersionApproved
	case status.WorkflowRejected:
		target = status.VersionRejected
	default:
		return
	}
	if err := s.Versions.UpdateStatus(scope, v.ID, target, a.ID); err != nil {
		log.Println("⚠️ failed to update version", v.ID, "after decision:", err)
	}
}

// RequestChanges records reviewer feedback verbatim and terminalises
// the workflow as changes_requested. Producing a revised version is a
// separate, explicit operation.
func (s *ApprovalService) RequestChanges(shareID, recipientEmail, comment string) (*model.Approval, error) {
	a, err := s.mutate(shareID, func(a *model.Approval) error {
		if err := status.WorkflowTransition(a.Status, status.WorkflowChangesRequested); err != nil {
			return err
		}
		r := a.FindRecipient(recipientEmail)
		if r == nil {
			return appErrors.NewNotFound("recipient", recipientEmail)
		}
		now := time.Now()
		r.Status = status.RecipientCommented
		r.Comment = comment // stored verbatim; untrusted at render time
		r.DecidedAt = &now
		a.Status = status.WorkflowChangesRequested
		a.History = append(a.History, model.HistoryEntry{
			At: now, Actor: recipientEmail, Action: "changes_requested", Detail: comment,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(notify.Job{
		WorkflowID:     a.ID,
		RecipientEmail: recipientEmail,
		Kind:           "changes_requested",
		Message:        "Changes requested on " + a.Title,
	})
	return a, nil
}

// MarkAsViewed records a recipient opening the share link. Recipient
// status advances from pending to viewed at most once; view counters
// move on every call.
func (s *ApprovalService) MarkAsViewed(shareID, recipientEmail string) (*model.Approval, error) {
	return s.mutate(shareID, func(a *model.Approval) error {
		r := a.FindRecipient(recipientEmail)
		if r == nil {
			return appErrors.NewNotFound("recipient", recipientEmail)
		}
		now := time.Now()

		// First view is keyed on the timestamp, not the status: a
		// recipient who decided without ever opening the link still
		// gets a first view recorded, without their decision being
		// downgraded to viewed.
		firstView := r.ViewedAt == nil
		if firstView {
			r.ViewedAt = &now
			if r.Status == status.RecipientPending {
				r.Status = status.RecipientViewed
			}
		}
		if a.Status == status.WorkflowPending {
			a.Status = status.WorkflowInReview
		}

		a.Analytics.TotalViews++
		if firstView {
			a.Analytics.UniqueViews++
		}
		if a.Analytics.FirstViewedAt == nil {
			a.Analytics.FirstViewedAt = &now
		}
		a.Analytics.LastViewedAt = &now

		a.History = append(a.History, model.HistoryEntry{
			At: now, Actor: recipientEmail, Action: "viewed",
		})
		return nil
	})
}

// GetByShareID never throws; any backing error yields nil.
func (s *ApprovalService) GetByShareID(shareID string) *model.Approval {
	if a, ok := s.Cache.Get(shareID); ok {
		return a
	}
	a, err := s.Approvals.GetByShareID(shareID)
	if err != nil {
		log.Println("⚠️ failed to load approval by share id:", err)
		return nil
	}
	if a != nil {
		s.Cache.Put(a)
	}
	return a
}

// EnhancedApproval is a search result with derived progress fields.
type EnhancedApproval struct {
	*model.Approval
	ProgressPercentage int  `json:"progress_percentage"`
	ApprovedCount      int  `json:"approved_count"`
	PendingCount       int  `json:"pending_count"`
	IsOverdue          bool `json:"is_overdue"`
}

// SearchEnhanced scans the organization's workflows with substring and
// status filters. Soft-fails to an empty list so listing screens never
// crash on a transient store error.
func (s *ApprovalService) SearchEnhanced(scope tenancy.Scope, filters repository.SearchFilters) []*EnhancedApproval {
	approvals, err := s.Approvals.Search(scope, filters)
	if err != nil {
		log.Println("⚠️ approval search failed:", err)
		return []*EnhancedApproval{}
	}

	now := time.Now()
	results := make([]*EnhancedApproval, 0, len(approvals))
	for _, a := range approvals {
		e := &EnhancedApproval{Approval: a}
		required := a.RequiredRecipients()
		for _, r := range required {
			if r.Status == status.RecipientApproved {
				e.ApprovedCount++
			}
		}
		for _, r := range a.Recipients {
			if r.Status == status.RecipientPending {
				e.PendingCount++
			}
		}
		if len(required) > 0 {
			e.ProgressPercentage = int(math.Round(100 * float64(e.ApprovedCount) / float64(len(required))))
		}
		e.IsOverdue = a.ExpiresAt != nil && now.After(*a.ExpiresAt) && !a.Status.Terminal()
		results = append(results, e)
	}
	return results
}
