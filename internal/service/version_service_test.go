package service_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/pressroom/approvals-backend/internal/errors"
	"github.com/pressroom/approvals-backend/internal/model"
	"github.com/pressroom/approvals-backend/internal/render"
	"github.com/pressroom/approvals-backend/internal/service"
	"github.com/pressroom/approvals-backend/internal/status"
	"github.com/pressroom/approvals-backend/internal/tenancy"
)

func newVersionFixture() (*service.VersionService, *mockVersionRepo, *mockCampaignRepo, *mockApprovalRepo) {
	campaigns := newMockCampaignRepo()
	versions := newMockVersionRepo()
	approvals := newMockApprovalRepo()
	locks := &service.LockService{Campaigns: campaigns}
	svc := &service.VersionService{
		Versions:  versions,
		Approvals: approvals,
		Locks:     locks,
	}
	return svc, versions, campaigns, approvals
}

func TestCreateVersionNumbersAreSequential(t *testing.T) {
	svc, _, campaigns, _ := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	for i := 1; i <= 5; i++ {
		v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch"}, service.CreateVersionOptions{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, i, v.Version)
	}

	history := svc.GetVersionHistory(scope, "camp-1")
	require.Len(t, history, 5)
	for i, v := range history {
		assert.Equal(t, 5-i, v.Version, "history must be sorted by version descending")
	}
}

func TestCreateVersionFirstDraft(t *testing.T) {
	svc, _, campaigns, _ := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch", Body: "Hello world"},
		service.CreateVersionOptions{UserID: "u1", Status: status.VersionDraft})
	require.NoError(t, err)

	assert.Equal(t, 1, v.Version)
	assert.Equal(t, status.VersionDraft, v.Status)
	assert.False(t, v.Snapshot.CreatedForApproval)

	c, err := campaigns.GetByID(scope, "camp-1")
	require.NoError(t, err)
	assert.False(t, c.EditLocked, "a draft version must not lock the campaign")
}

func TestCreateVersionForCustomerApprovalLocksCampaign(t *testing.T) {
	svc, _, campaigns, approvals := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	approval := &model.Approval{
		ID: "app-1", OrgID: "org-1", CampaignID: "camp-1",
		Title: "Review", ShareID: "shareabc1234567890ab",
		Status: status.WorkflowDraft, Version: 1,
	}
	require.NoError(t, approvals.Create(approval))

	v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch", Body: "Body text"},
		service.CreateVersionOptions{UserID: "u1", Status: status.VersionPendingCustomer, ApprovalID: "app-1"})
	require.NoError(t, err)

	assert.True(t, v.Snapshot.CreatedForApproval)
	require.NotNil(t, v.CustomerApproval)
	assert.Equal(t, "shareabc1234567890ab", v.CustomerApproval.ShareID)
	assert.False(t, v.CustomerApproval.RequestedAt.IsZero())

	c, err := campaigns.GetByID(scope, "camp-1")
	require.NoError(t, err)
	assert.True(t, c.EditLocked)
	require.NotNil(t, c.EditLockedReason)
	assert.Equal(t, status.LockPendingCustomerApproval, *c.EditLockedReason)
	assert.Equal(t, status.CampaignInReview, c.Status)
}

func TestCreateVersionRejectsEmptyTitle(t *testing.T) {
	svc, _, campaigns, _ := newVersionFixture()
	campaigns.seed("camp-1", "org-1")

	_, err := svc.CreateVersion(tenancy.Scope{OrgID: "org-1"}, "camp-1",
		service.ContentInput{Title: "   "}, service.CreateVersionOptions{UserID: "u1"})
	assert.True(t, appErrors.IsValidation(err))
}

func TestVersionMetadataDerivation(t *testing.T) {
	svc, _, campaigns, _ := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	body := "# Heading\n\nSome **bold** prose with a [link](http://x.test) inside."
	v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch", Body: body},
		service.CreateVersionOptions{UserID: "u1"})
	require.NoError(t, err)

	// "Heading Some bold prose with a link inside." once markup is stripped.
	assert.Equal(t, 8, v.Metadata.WordCount)
	assert.Equal(t, 1, v.Metadata.PageCount)
}

func TestVersionPageCountRounding(t *testing.T) {
	svc, _, campaigns, _ := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	long := ""
	for i := 0; i < 301; i++ {
		long += "word "
	}
	v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Long", Body: long},
		service.CreateVersionOptions{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 301, v.Metadata.WordCount)
	assert.Equal(t, 2, v.Metadata.PageCount)
}

func TestSnapshotNameIsDeterministicAndSafe(t *testing.T) {
	svc, _, campaigns, _ := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	v, err := svc.CreateVersion(scope, "camp-1",
		service.ContentInput{Title: "Q3 Launch: Außergewöhnlich!! (final)"},
		service.CreateVersionOptions{UserID: "u1"})
	require.NoError(t, err)

	today := time.Now().Format("2006-01-02")
	assert.Equal(t, fmt.Sprintf("q3-launch-außergewöhnlich-final-v1-%s", today), v.Name)
}

func TestGetVersionHistoryCapAndSoftFail(t *testing.T) {
	svc, versions, campaigns, _ := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	for i := 0; i < 55; i++ {
		_, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch"},
			service.CreateVersionOptions{UserID: "u1"})
		require.NoError(t, err)
	}
	history := svc.GetVersionHistory(scope, "camp-1")
	assert.Len(t, history, 50)
	assert.Equal(t, 55, history[0].Version)

	failing := &service.VersionService{
		Versions:  &failingVersionRepo{versions},
		Approvals: newMockApprovalRepo(),
		Locks:     &service.LockService{Campaigns: campaigns},
	}
	assert.Empty(t, failing.GetVersionHistory(scope, "camp-1"))
	assert.Nil(t, failing.GetCurrentVersion(scope, "camp-1"))
}

func TestGetCurrentVersion(t *testing.T) {
	svc, _, campaigns, _ := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	assert.Nil(t, svc.GetCurrentVersion(scope, "camp-1"))

	for i := 0; i < 3; i++ {
		_, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch"},
			service.CreateVersionOptions{UserID: "u1"})
		require.NoError(t, err)
	}
	current := svc.GetCurrentVersion(scope, "camp-1")
	require.NotNil(t, current)
	assert.Equal(t, 3, current.Version)
}

func TestUpdateStatusApprovedFreezesCampaign(t *testing.T) {
	svc, _, campaigns, approvals := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")
	require.NoError(t, approvals.Create(&model.Approval{
		ID: "app-1", OrgID: "org-1", CampaignID: "camp-1",
		Title: "Review", ShareID: "shareabc1234567890ab", Version: 1,
	}))

	v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch"},
		service.CreateVersionOptions{UserID: "u1", Status: status.VersionPendingCustomer, ApprovalID: "app-1"})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(scope, v.ID, status.VersionApproved, "app-1"))

	c, err := campaigns.GetByID(scope, "camp-1")
	require.NoError(t, err)
	require.NotNil(t, c.EditLockedReason)
	assert.Equal(t, status.LockApprovedFinal, *c.EditLockedReason)

	current := svc.GetCurrentVersion(scope, "camp-1")
	require.NotNil(t, current)
	assert.Equal(t, status.VersionApproved, current.Status)
	require.NotNil(t, current.CustomerApproval)
	assert.NotNil(t, current.CustomerApproval.ApprovedAt)
}

func TestUpdateStatusRejectedReopensCampaign(t *testing.T) {
	svc, _, campaigns, approvals := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")
	require.NoError(t, approvals.Create(&model.Approval{
		ID: "app-1", OrgID: "org-1", CampaignID: "camp-1",
		Title: "Review", ShareID: "shareabc1234567890ab", Version: 1,
	}))

	v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch"},
		service.CreateVersionOptions{UserID: "u1", Status: status.VersionPendingCustomer, ApprovalID: "app-1"})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(scope, v.ID, status.VersionRejected, ""))

	c, err := campaigns.GetByID(scope, "camp-1")
	require.NoError(t, err)
	assert.False(t, c.EditLocked, "rejection must reopen the campaign for revision")
	assert.Equal(t, status.CampaignDraft, c.Status)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	svc, _, campaigns, approvals := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")
	require.NoError(t, approvals.Create(&model.Approval{
		ID: "app-1", OrgID: "org-1", CampaignID: "camp-1",
		Title: "Review", ShareID: "shareabc1234567890ab", Version: 1,
	}))

	v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch"},
		service.CreateVersionOptions{UserID: "u1", Status: status.VersionPendingCustomer, ApprovalID: "app-1"})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(scope, v.ID, status.VersionApproved, ""))

	err = svc.UpdateStatus(scope, v.ID, status.VersionPendingTeam, "")
	assert.True(t, appErrors.IsConflict(err), "approved is terminal, got %v", err)
}

func TestDeleteOldDraftVersions(t *testing.T) {
	svc, versions, campaigns, _ := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	var ids []string
	for i := 0; i < 6; i++ {
		v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch"},
			service.CreateVersionOptions{UserID: "u1"})
		require.NoError(t, err)
		ids = append(ids, v.ID)
	}
	// Promote version 2 out of draft; it must survive cleanup.
	require.NoError(t, versions.UpdateStatus(scope, ids[1], status.VersionPendingTeam, nil))

	svc.DeleteOldDraftVersions(scope, "camp-1", 3)

	history := svc.GetVersionHistory(scope, "camp-1")
	require.Len(t, history, 4)

	var numbers []int
	for _, v := range history {
		numbers = append(numbers, v.Version)
	}
	assert.Equal(t, []int{6, 5, 4, 2}, numbers, "keep the 3 newest drafts and every non-draft")
}

func TestDeleteOldDraftVersionsSwallowsFailures(t *testing.T) {
	_, versions, campaigns, _ := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	failing := &service.VersionService{
		Versions:  &failingVersionRepo{versions},
		Approvals: newMockApprovalRepo(),
		Locks:     &service.LockService{Campaigns: campaigns},
	}
	// Must not panic or return anything.
	failing.DeleteOldDraftVersions(scope, "camp-1", 3)
}

func TestLinkVersionToApproval(t *testing.T) {
	svc, _, campaigns, _ := newVersionFixture()
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch"},
		service.CreateVersionOptions{UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, svc.LinkVersionToApproval(scope, v.ID, "app-9"))

	current := svc.GetCurrentVersion(scope, "camp-1")
	require.NotNil(t, current)
	require.NotNil(t, current.ApprovalID)
	assert.Equal(t, "app-9", *current.ApprovalID)
	assert.Equal(t, status.VersionPendingCustomer, current.Status)

	err = svc.LinkVersionToApproval(scope, "missing", "app-9")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestVersionsAreTenantScoped(t *testing.T) {
	svc, _, campaigns, _ := newVersionFixture()
	campaigns.seed("camp-1", "org-1")

	_, err := svc.CreateVersion(tenancy.Scope{OrgID: "org-1"}, "camp-1",
		service.ContentInput{Title: "Launch"}, service.CreateVersionOptions{UserID: "u1"})
	require.NoError(t, err)

	other := tenancy.Scope{OrgID: "org-2"}
	assert.Empty(t, svc.GetVersionHistory(other, "camp-1"))
	assert.Nil(t, svc.GetCurrentVersion(other, "camp-1"))
}

type stubRenderer struct {
	clientName string
}

func (s *stubRenderer) Render(title, body string, boilerplate []model.BoilerplateSection, keyVisualURL, clientName string) (*render.RenderResult, error) {
	s.clientName = clientName
	return &render.RenderResult{
		ArtifactURL:      "https://artifacts.test/" + title + ".pdf",
		ByteSize:         2048,
		GenerationTimeMs: 120,
	}, nil
}

func TestCustomerFacingVersionRecordsArtifact(t *testing.T) {
	svc, _, campaigns, approvals := newVersionFixture()
	renderer := &stubRenderer{}
	svc.Renderer = renderer
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	approval := &model.Approval{
		ID: "app-1", OrgID: "org-1", CampaignID: "camp-1",
		Title: "Review", ClientName: "Acme", ShareID: "shareabc1234567890ab",
		Status: status.WorkflowDraft, Version: 1,
	}
	require.NoError(t, approvals.Create(approval))

	v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch", Body: "Body"},
		service.CreateVersionOptions{UserID: "u1", Status: status.VersionPendingCustomer, ApprovalID: "app-1"})
	require.NoError(t, err)

	assert.Equal(t, "https://artifacts.test/Launch.pdf", v.Metadata.ArtifactURL)
	assert.Equal(t, int64(2048), v.Metadata.ArtifactBytes)
	assert.Equal(t, int64(120), v.Metadata.GenerationTimeMs)
	assert.Equal(t, "Acme", renderer.clientName)
}

type stubArtifactStore struct{}

func (stubArtifactStore) URL(key string) (string, int64, error) {
	return key + "?signed=1", 4096, nil
}

func TestArtifactLocation(t *testing.T) {
	svc, _, campaigns, approvals := newVersionFixture()
	svc.Renderer = &stubRenderer{}
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")
	require.NoError(t, approvals.Create(&model.Approval{
		ID: "app-1", OrgID: "org-1", CampaignID: "camp-1",
		Title: "Review", ShareID: "shareabc1234567890ab",
		Status: status.WorkflowDraft, Version: 1,
	}))

	v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch", Body: "Body"},
		service.CreateVersionOptions{UserID: "u1", Status: status.VersionPendingCustomer, ApprovalID: "app-1"})
	require.NoError(t, err)

	url, size, err := svc.ArtifactLocation(scope, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Metadata.ArtifactURL, url)
	assert.Equal(t, int64(2048), size)

	svc.Store = stubArtifactStore{}
	url, size, err = svc.ArtifactLocation(scope, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Metadata.ArtifactURL+"?signed=1", url)
	assert.Equal(t, int64(4096), size)

	_, _, err = svc.ArtifactLocation(scope, "missing")
	assert.True(t, appErrors.IsNotFound(err))
}

func TestDraftVersionSkipsRendering(t *testing.T) {
	svc, _, campaigns, _ := newVersionFixture()
	svc.Renderer = &stubRenderer{}
	scope := tenancy.Scope{OrgID: "org-1"}
	campaigns.seed("camp-1", "org-1")

	v, err := svc.CreateVersion(scope, "camp-1", service.ContentInput{Title: "Launch", Body: "Body"},
		service.CreateVersionOptions{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, v.Metadata.ArtifactURL)
}
