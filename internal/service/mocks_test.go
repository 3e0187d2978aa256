package service_test

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/pressroom/approvals-backend/internal/errors"
	"github.com/pressroom/approvals-backend/internal/model"
	"github.com/pressroom/approvals-backend/internal/notify"
	"github.com/pressroom/approvals-backend/internal/repository"
	"github.com/pressroom/approvals-backend/internal/status"
	"github.com/pressroom/approvals-backend/internal/tenancy"
)

// ---- dispatcher stub ----

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []notify.Job
	fail bool
}

func (d *recordingDispatcher) Send(job notify.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return fmt.Errorf("broker unavailable")
	}
	d.jobs = append(d.jobs, job)
	return nil
}

// ---- campaign repo ----

type mockCampaignRepo struct {
	mu             sync.Mutex
	campaigns      map[string]*model.Campaign
	unlockRequests []*model.UnlockRequest
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{campaigns: map[string]*model.Campaign{}}
}

func (m *mockCampaignRepo) seed(id, orgID string) *model.Campaign {
	c := &model.Campaign{ID: id, OrgID: orgID, Name: "Campaign " + id, Status: status.CampaignDraft}
	m.campaigns[id] = c
	return c
}

func (m *mockCampaignRepo) Create(c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = c
	return nil
}

func (m *mockCampaignRepo) GetByID(scope tenancy.Scope, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.OrgID != scope.OrgID {
		return nil, appErrors.NewNotFound("campaign", id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockCampaignRepo) UpdateStatus(scope tenancy.Scope, id string, st status.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[id]; ok && c.OrgID == scope.OrgID {
		c.Status = st
	}
	return nil
}

func (m *mockCampaignRepo) AcquireLock(scope tenancy.Scope, id string, reason status.LockReason, actor string) (*repository.LockOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.OrgID != scope.OrgID {
		return nil, appErrors.NewNotFound("campaign", id)
	}
	if c.EditLocked && (c.LockedBy == nil || *c.LockedBy != actor) {
		out := &repository.LockOutcome{Acquired: false, Revision: c.LockRevision}
		if c.LockedBy != nil {
			out.Holder = *c.LockedBy
		}
		if c.EditLockedReason != nil {
			out.Reason = *c.EditLockedReason
		}
		return out, nil
	}
	m.lock(c, reason, actor)
	return &repository.LockOutcome{Acquired: true, Holder: actor, Reason: reason, Revision: c.LockRevision}, nil
}

func (m *mockCampaignRepo) lock(c *model.Campaign, reason status.LockReason, actor string) {
	now := time.Now()
	c.EditLocked = true
	c.EditLockedReason = &reason
	c.LockedBy = &actor
	c.LockedAt = &now
	c.LockRevision++
}

func (m *mockCampaignRepo) ApplyLockReason(scope tenancy.Scope, id string, reason status.LockReason, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.OrgID != scope.OrgID {
		return appErrors.NewNotFound("campaign", id)
	}
	m.lock(c, reason, actor)
	return nil
}

func (m *mockCampaignRepo) ReleaseLock(scope tenancy.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.OrgID != scope.OrgID {
		return appErrors.NewNotFound("campaign", id)
	}
	now := time.Now()
	c.EditLocked = false
	c.EditLockedReason = nil
	c.LockedBy = nil
	c.UnlockedAt = &now
	c.LockRevision++
	return nil
}

func (m *mockCampaignRepo) CreateUnlockRequest(req *model.UnlockRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlockRequests = append(m.unlockRequests, req)
	return nil
}

var _ repository.CampaignRepositoryInterface = (*mockCampaignRepo)(nil)

// ---- version repo ----

type mockVersionRepo struct {
	mu       sync.Mutex
	versions map[string]*model.Version
}

func newMockVersionRepo() *mockVersionRepo {
	return &mockVersionRepo{versions: map[string]*model.Version{}}
}

func (m *mockVersionRepo) NextNumber(scope tenancy.Scope, campaignID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, v := range m.versions {
		if v.CampaignID == campaignID && v.OrgID == scope.OrgID && v.Version > max {
			max = v.Version
		}
	}
	return max + 1, nil
}

func (m *mockVersionRepo) Insert(v *model.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.versions {
		if existing.CampaignID == v.CampaignID && existing.Version == v.Version {
			return &pq.Error{Code: "23505"}
		}
	}
	cp := *v
	m.versions[v.ID] = &cp
	return nil
}

func (m *mockVersionRepo) GetByID(scope tenancy.Scope, id string) (*model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok || v.OrgID != scope.OrgID {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (m *mockVersionRepo) GetByIDUnscoped(id string) (*model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (m *mockVersionRepo) GetByApprovalID(scope tenancy.Scope, approvalID string) (*model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.Version
	for _, v := range m.versions {
		if v.OrgID != scope.OrgID || v.ApprovalID == nil || *v.ApprovalID != approvalID {
			continue
		}
		if found == nil || v.Version > found.Version {
			found = v
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (m *mockVersionRepo) ListByCampaign(scope tenancy.Scope, campaignID string, limit int) ([]*model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*model.Version{}
	for _, v := range m.versions {
		if v.CampaignID == campaignID && v.OrgID == scope.OrgID {
			cp := *v
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version > list[j].Version })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *mockVersionRepo) GetCurrent(scope tenancy.Scope, campaignID string) (*model.Version, error) {
	list, _ := m.ListByCampaign(scope, campaignID, 1)
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (m *mockVersionRepo) UpdateStatus(scope tenancy.Scope, id string, st status.VersionStatus, approvalID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok || v.OrgID != scope.OrgID {
		return nil
	}
	v.Status = st
	if approvalID != nil {
		v.ApprovalID = approvalID
	}
	return nil
}

func (m *mockVersionRepo) UpdateCustomerApproval(scope tenancy.Scope, id string, ca *model.CustomerApproval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.versions[id]; ok && v.OrgID == scope.OrgID {
		cp := *ca
		v.CustomerApproval = &cp
	}
	return nil
}

func (m *mockVersionRepo) LinkApproval(scope tenancy.Scope, id, approvalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.versions[id]; ok && v.OrgID == scope.OrgID {
		v.ApprovalID = &approvalID
		v.Status = status.VersionPendingCustomer
	}
	return nil
}

func (m *mockVersionRepo) DeleteOldDrafts(scope tenancy.Scope, campaignID string, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drafts := []*model.Version{}
	for _, v := range m.versions {
		if v.CampaignID == campaignID && v.OrgID == scope.OrgID && v.Status == status.VersionDraft {
			drafts = append(drafts, v)
		}
	}
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].Version > drafts[j].Version })
	deleted := 0
	for i := keep; i < len(drafts); i++ {
		delete(m.versions, drafts[i].ID)
		deleted++
	}
	return deleted, nil
}

var _ repository.VersionRepositoryInterface = (*mockVersionRepo)(nil)

// ---- approval repo ----

type mockApprovalRepo struct {
	mu        sync.Mutex
	approvals map[string]*model.Approval // by id
}

func newMockApprovalRepo() *mockApprovalRepo {
	return &mockApprovalRepo{approvals: map[string]*model.Approval{}}
}

func copyApproval(a *model.Approval) *model.Approval {
	cp := *a
	cp.Recipients = append([]model.Recipient{}, a.Recipients...)
	cp.History = append([]model.HistoryEntry{}, a.History...)
	cp.Stages = append([]model.Stage{}, a.Stages...)
	return &cp
}

func (m *mockApprovalRepo) Create(a *model.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.CreatedAt = time.Now()
	m.approvals[a.ID] = copyApproval(a)
	return nil
}

func (m *mockApprovalRepo) GetByShareID(shareID string) (*model.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.approvals {
		if a.ShareID == shareID {
			return copyApproval(a), nil
		}
	}
	return nil, nil
}

func (m *mockApprovalRepo) ShareIDExists(shareID string) (bool, error) {
	a, err := m.GetByShareID(shareID)
	return a != nil, err
}

func (m *mockApprovalRepo) GetByID(scope tenancy.Scope, id string) (*model.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.approvals[id]
	if !ok || a.OrgID != scope.OrgID {
		return nil, appErrors.NewNotFound("approval", id)
	}
	return copyApproval(a), nil
}

func (m *mockApprovalRepo) Update(a *model.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.approvals[a.ID]
	if !ok {
		return appErrors.NewNotFound("approval", a.ID)
	}
	if stored.Version != a.Version {
		return appErrors.NewConflict("approval " + a.ID + " was modified concurrently")
	}
	a.Version++
	m.approvals[a.ID] = copyApproval(a)
	return nil
}

func (m *mockApprovalRepo) Search(scope tenancy.Scope, filters repository.SearchFilters) ([]*model.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := []*model.Approval{}
	for _, a := range m.approvals {
		if a.OrgID != scope.OrgID {
			continue
		}
		if filters.Query != "" {
			q := strings.ToLower(filters.Query)
			if !strings.Contains(strings.ToLower(a.Title), q) &&
				!strings.Contains(strings.ToLower(a.ClientName), q) &&
				!strings.Contains(strings.ToLower(a.CampaignName), q) {
				continue
			}
		}
		if len(filters.Statuses) > 0 {
			match := false
			for _, st := range filters.Statuses {
				if a.Status == st {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		results = append(results, copyApproval(a))
	}
	return results, nil
}

var _ repository.ApprovalRepositoryInterface = (*mockApprovalRepo)(nil)

// ---- failing wrappers for soft-fail tests ----

type failingVersionRepo struct {
	*mockVersionRepo
}

func (f *failingVersionRepo) ListByCampaign(scope tenancy.Scope, campaignID string, limit int) ([]*model.Version, error) {
	return nil, fmt.Errorf("store unavailable")
}

func (f *failingVersionRepo) GetCurrent(scope tenancy.Scope, campaignID string) (*model.Version, error) {
	return nil, fmt.Errorf("store unavailable")
}

func (f *failingVersionRepo) DeleteOldDrafts(scope tenancy.Scope, campaignID string, keep int) (int, error) {
	return 0, fmt.Errorf("store unavailable")
}

type failingApprovalRepo struct {
	*mockApprovalRepo
}

func (f *failingApprovalRepo) GetByShareID(shareID string) (*model.Approval, error) {
	return nil, fmt.Errorf("store unavailable")
}

func (f *failingApprovalRepo) Search(scope tenancy.Scope, filters repository.SearchFilters) ([]*model.Approval, error) {
	return nil, fmt.Errorf("store unavailable")
}
