package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/pressroom/approvals-backend/internal/errors"
	"github.com/pressroom/approvals-backend/internal/model"
	"github.com/pressroom/approvals-backend/internal/status"
	"github.com/pressroom/approvals-backend/internal/tenancy"
)

// SearchFilters narrows an organization-scoped approval scan.
type SearchFilters struct {
	Query    string
	Statuses []status.WorkflowStatus
}

type ApprovalRepositoryInterface interface {
	Create(a *model.Approval) error
	GetByShareID(shareID string) (*model.Approval, error)
	ShareIDExists(shareID string) (bool, error)
	GetByID(scope tenancy.Scope, id string) (*model.Approval, error)
	Update(a *model.Approval) error
	Search(scope tenancy.Scope, filters SearchFilters) ([]*model.Approval, error)
}

type ApprovalRepository struct {
	DB *sql.DB
}

type approvalDocs struct {
	recipients, stages, options, history, analytics []byte
}

func marshalApprovalDocs(a *model.Approval) (*approvalDocs, error) {
	var d approvalDocs
	var err error
	if d.recipients, err = json.Marshal(a.Recipients); err != nil {
		return nil, err
	}
	if d.stages, err = json.Marshal(a.Stages); err != nil {
		return nil, err
	}
	if d.options, err = json.Marshal(a.Options); err != nil {
		return nil, err
	}
	if d.history, err = json.Marshal(a.History); err != nil {
		return nil, err
	}
	if d.analytics, err = json.Marshal(a.Analytics); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *ApprovalRepository) Create(a *model.Approval) error {
	a.CreatedAt = time.Now()
	docs, err := marshalApprovalDocs(a)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO approvals (id, org_id, campaign_id, title, client_name, campaign_name,
                               status, share_id, recipients, current_stage, stages, is_multi_stage,
                               options, history, analytics, version, expires_at, requested_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
    `
	_, err = r.DB.Exec(query, a.ID, a.OrgID, a.CampaignID, a.Title, a.ClientName, a.CampaignName,
		a.Status, a.ShareID, docs.recipients, a.CurrentStage, docs.stages, a.IsMultiStage,
		docs.options, docs.history, docs.analytics, a.Version, a.ExpiresAt, a.RequestedAt, a.CreatedAt)
	return err
}

const approvalColumns = `id, org_id, campaign_id, title, client_name, campaign_name,
                         status, share_id, recipients, current_stage, stages, is_multi_stage,
                         options, history, analytics, version, expires_at, requested_at,
                         approved_at, rejected_at, created_at, updated_at`

type approvalScanner interface {
	Scan(dest ...interface{}) error
}

func scanApproval(row approvalScanner) (*model.Approval, error) {
	var a model.Approval
	var recipients, stages, options, history, analytics []byte
	err := row.Scan(&a.ID, &a.OrgID, &a.CampaignID, &a.Title, &a.ClientName, &a.CampaignName,
		&a.Status, &a.ShareID, &recipients, &a.CurrentStage, &stages, &a.IsMultiStage,
		&options, &history, &analytics, &a.Version, &a.ExpiresAt, &a.RequestedAt,
		&a.ApprovedAt, &a.RejectedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recipients, &a.Recipients); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stages, &a.Stages); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(options, &a.Options); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(history, &a.History); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(analytics, &a.Analytics); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByShareID looks a workflow up by its public token. The share id is
// the access capability here, so this is the one deliberately unscoped
// read in the engine.
func (r *ApprovalRepository) GetByShareID(shareID string) (*model.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE share_id=$1`
	a, err := scanApproval(r.DB.QueryRow(query, shareID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *ApprovalRepository) ShareIDExists(shareID string) (bool, error) {
	var one int
	err := r.DB.QueryRow(`SELECT 1 FROM approvals WHERE share_id=$1 LIMIT 1`, shareID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r *ApprovalRepository) GetByID(scope tenancy.Scope, id string) (*model.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id=$1 AND org_id=$2`
	a, err := scanApproval(r.DB.QueryRow(query, id, scope.OrgID))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewNotFound("approval", id)
	}
	return a, err
}

// Update writes the whole workflow document back, guarded by the
// revision counter. A stale write affects zero rows and surfaces as a
// conflict so the caller can re-read and re-apply.
func (r *ApprovalRepository) Update(a *model.Approval) error {
	docs, err := marshalApprovalDocs(a)
	if err != nil {
		return err
	}
	expected := a.Version
	a.Version++
	query := `
        UPDATE approvals
        SET title=$1, status=$2, recipients=$3, current_stage=$4, stages=$5,
            options=$6, history=$7, analytics=$8, version=$9,
            requested_at=$10, approved_at=$11, rejected_at=$12, updated_at=NOW()
        WHERE id=$13 AND org_id=$14 AND version=$15
    `
	res, err := r.DB.Exec(query, a.Title, a.Status, docs.recipients, a.CurrentStage, docs.stages,
		docs.options, docs.history, docs.analytics, a.Version,
		a.RequestedAt, a.ApprovedAt, a.RejectedAt, a.ID, a.OrgID, expected)
	if err != nil {
		a.Version = expected
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		a.Version = expected
		return appErrors.NewConflict("approval " + a.ID + " was modified concurrently")
	}
	return nil
}

func (r *ApprovalRepository) Search(scope tenancy.Scope, filters SearchFilters) ([]*model.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE org_id=$1`
	args := []interface{}{scope.OrgID}
	argPos := 2

	if filters.Query != "" {
		query += fmt.Sprintf(" AND (title ILIKE $%d OR client_name ILIKE $%d OR campaign_name ILIKE $%d)",
			argPos, argPos, argPos)
		args = append(args, "%"+filters.Query+"%")
		argPos++
	}
	if len(filters.Statuses) > 0 {
		query += " AND status IN ("
		for i, st := range filters.Statuses {
			if i > 0 {
				query += ", "
			}
			query += fmt.Sprintf("$%d", argPos)
			args = append(args, st)
			argPos++
		}
		query += ")"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	approvals := []*model.Approval{}
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

var _ ApprovalRepositoryInterface = (*ApprovalRepository)(nil)
