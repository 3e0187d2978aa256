package service

import (
	"bytes"
	"fmt"
	"html"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	appErrors "github.com/pressroom/approvals-backend/internal/errors"
	"github.com/pressroom/approvals-backend/internal/model"
	"github.com/pressroom/approvals-backend/internal/render"
	"github.com/pressroom/approvals-backend/internal/repository"
	"github.com/pressroom/approvals-backend/internal/status"
	"github.com/pressroom/approvals-backend/internal/tenancy"
)

const (
	versionHistoryLimit = 50
	wordsPerPage        = 300
	maxNumberRetries    = 3
	defaultDraftsKept   = 3
)

// VersionService creates, retrieves and retires immutable content
// snapshots and keeps version numbers dense per campaign.
type VersionService struct {
	Versions  repository.VersionRepositoryInterface
	Approvals repository.ApprovalRepositoryInterface
	Locks     LockManager
	Renderer  render.Renderer      // optional; customer-facing snapshots get an artifact
	Store     render.ArtifactStore // optional; resolves stored artifacts to signed URLs
}

// ContentInput is the editable content a snapshot is taken from.
type ContentInput struct {
	Title        string
	Body         string
	Boilerplate  []model.BoilerplateSection
	KeyVisualURL string
}

type CreateVersionOptions struct {
	UserID     string
	Status     status.VersionStatus
	ApprovalID string
}

var stripPolicy = bluemonday.StrictPolicy()

// plainText renders markdown to HTML and strips every tag, leaving
// the prose for word counting.
func plainText(body string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err != nil {
		return html.UnescapeString(stripPolicy.Sanitize(body))
	}
	return html.UnescapeString(stripPolicy.Sanitize(buf.String()))
}

func countWords(body string) int {
	return len(strings.Fields(plainText(body)))
}

func pageCount(words int) int {
	return (words + wordsPerPage - 1) / wordsPerPage
}

// snapshotName builds a deterministic, filesystem-safe name from the
// title, version number and date.
func snapshotName(title string, version int, at time.Time) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if runes := []rune(slug); len(runes) > 60 {
		slug = strings.Trim(string(runes[:60]), "-")
	}
	if slug == "" {
		slug = "untitled"
	}
	return fmt.Sprintf("%s-v%d-%s", slug, version, at.Format("2006-01-02"))
}

// CreateVersion snapshots the campaign content under the next version
// number. Numbering is a compute-insert loop: the unique
// (campaign_id, version) index rejects concurrent winners and the loop
// recomputes, so numbers stay dense even under racing calls.
func (s *VersionService) CreateVersion(scope tenancy.Scope, campaignID string, content ContentInput, opts CreateVersionOptions) (*model.Version, error) {
	start := time.Now()
	if strings.TrimSpace(content.Title) == "" {
		return nil, appErrors.NewValidation("version title cannot be empty")
	}
	st := opts.Status
	if st == "" {
		st = status.VersionDraft
	}
	if !st.Valid() {
		return nil, appErrors.NewValidation("unknown version status: " + string(st))
	}

	words := countWords(content.Body)
	v := &model.Version{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		OrgID:      scope.OrgID,
		Status:     st,
		Snapshot: model.ContentSnapshot{
			Title:        content.Title,
			Body:         content.Body,
			Boilerplate:  content.Boilerplate,
			KeyVisualURL: content.KeyVisualURL,
		},
		CreatedBy: opts.UserID,
	}

	var artifact *render.RenderResult
	if st.CustomerFacing() {
		if opts.ApprovalID == "" {
			return nil, appErrors.NewValidation("a customer-facing version needs an approval id")
		}
		approval, err := s.Approvals.GetByID(scope, opts.ApprovalID)
		if err != nil {
			return nil, err
		}
		v.Snapshot.CreatedForApproval = true
		v.ApprovalID = &approval.ID
		v.CustomerApproval = &model.CustomerApproval{
			ShareID:     approval.ShareID,
			RequestedAt: start,
		}
		if s.Renderer != nil {
			artifact, err = s.Renderer.Render(content.Title, content.Body, content.Boilerplate, content.KeyVisualURL, approval.ClientName)
			if err != nil {
				return nil, appErrors.NewPersistence("render snapshot artifact", err)
			}
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		n, err := s.Versions.NextNumber(scope, campaignID)
		if err != nil {
			return nil, appErrors.NewPersistence("assign version number", err)
		}
		v.Version = n
		v.Name = snapshotName(content.Title, n, start)
		v.Metadata = model.VersionMetadata{
			WordCount:        words,
			PageCount:        pageCount(words),
			GenerationTimeMs: time.Since(start).Milliseconds(),
		}
		if artifact != nil {
			v.Metadata.ArtifactURL = artifact.ArtifactURL
			v.Metadata.ArtifactBytes = artifact.ByteSize
			v.Metadata.GenerationTimeMs = artifact.GenerationTimeMs
		}
		err = s.Versions.Insert(v)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if !repository.IsUniqueViolation(err) {
			return nil, appErrors.NewPersistence("create version", err)
		}
	}
	if lastErr != nil {
		return nil, appErrors.NewConflict("version numbering contention on campaign " + campaignID)
	}

	// Lock only after the version row is durable.
	if err := s.Locks.ApplyVersionStatus(scope, campaignID, st, opts.UserID); err != nil {
		return nil, err
	}
	return v, nil
}

// GetVersionHistory returns the newest 50 versions, highest first.
// Backing-store errors soft-fail to an empty list.
func (s *VersionService) GetVersionHistory(scope tenancy.Scope, campaignID string) []*model.Version {
	versions, err := s.Versions.ListByCampaign(scope, campaignID, versionHistoryLimit)
	if err != nil {
		log.Println("⚠️ failed to load version history for", campaignID, ":", err)
		return []*model.Version{}
	}
	return versions
}

// GetCurrentVersion returns the highest-numbered version or nil.
func (s *VersionService) GetCurrentVersion(scope tenancy.Scope, campaignID string) *model.Version {
	v, err := s.Versions.GetCurrent(scope, campaignID)
	if err != nil {
		log.Println("⚠️ failed to load current version for", campaignID, ":", err)
		return nil
	}
	return v
}

// UpdateStatus moves a version through its lifecycle and applies the
// matching edit-lock change to the campaign: approved freezes the
// document, rejected reopens it for revision.
func (s *VersionService) UpdateStatus(scope tenancy.Scope, versionID string, st status.VersionStatus, approvalID string) error {
	v, err := s.Versions.GetByID(scope, versionID)
	if err != nil {
		return err
	}
	if v == nil {
		return appErrors.NewNotFound("version", versionID)
	}
	if err := status.VersionTransition(v.Status, st); err != nil {
		return err
	}

	var approvalRef *string
	if approvalID != "" {
		approvalRef = &approvalID
	}
	if err := s.Versions.UpdateStatus(scope, versionID, st, approvalRef); err != nil {
		return appErrors.NewPersistence("update version status", err)
	}
	if st == status.VersionApproved && v.CustomerApproval != nil {
		now := time.Now()
		v.CustomerApproval.ApprovedAt = &now
		if err := s.Versions.UpdateCustomerApproval(scope, versionID, v.CustomerApproval); err != nil {
			return appErrors.NewPersistence("record customer approval", err)
		}
	}
	return s.Locks.ApplyVersionStatus(scope, v.CampaignID, st, v.CreatedBy)
}

// ArtifactLocation resolves the downloadable artifact for a version.
// Without an artifact store the stored URL is returned as-is.
func (s *VersionService) ArtifactLocation(scope tenancy.Scope, versionID string) (string, int64, error) {
	v, err := s.Versions.GetByID(scope, versionID)
	if err != nil {
		return "", 0, err
	}
	if v == nil {
		return "", 0, appErrors.NewNotFound("version", versionID)
	}
	if v.Metadata.ArtifactURL == "" {
		return "", 0, appErrors.NewNotFound("artifact for version", versionID)
	}
	if s.Store == nil {
		return v.Metadata.ArtifactURL, v.Metadata.ArtifactBytes, nil
	}
	return s.Store.URL(v.Metadata.ArtifactURL)
}

// LinkVersionToApproval attaches the workflow back-reference and puts
// the version in front of the customer.
func (s *VersionService) LinkVersionToApproval(scope tenancy.Scope, versionID, approvalID string) error {
	v, err := s.Versions.GetByID(scope, versionID)
	if err != nil {
		return err
	}
	if v == nil {
		return appErrors.NewNotFound("version", versionID)
	}
	if err := s.Versions.LinkApproval(scope, versionID, approvalID); err != nil {
		return appErrors.NewPersistence("link version to approval", err)
	}
	return nil
}

// DeleteOldDraftVersions trims draft snapshots beyond the keep newest.
// Cleanup never throws; failures are logged and swallowed.
func (s *VersionService) DeleteOldDraftVersions(scope tenancy.Scope, campaignID string, keep int) {
	if keep <= 0 {
		keep = defaultDraftsKept
	}
	deleted, err := s.Versions.DeleteOldDrafts(scope, campaignID, keep)
	if err != nil {
		log.Println("⚠️ draft cleanup failed for", campaignID, ":", err)
		return
	}
	if deleted > 0 {
		log.Println("🧹 removed", deleted, "old draft versions for campaign", campaignID)
	}
}
