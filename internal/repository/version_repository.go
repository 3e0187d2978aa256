package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/pressroom/approvals-backend/internal/model"
	"github.com/pressroom/approvals-backend/internal/status"
	"github.com/pressroom/approvals-backend/internal/tenancy"
)

type VersionRepositoryInterface interface {
	NextNumber(scope tenancy.Scope, campaignID string) (int, error)
	Insert(v *model.Version) error
	GetByID(scope tenancy.Scope, id string) (*model.Version, error)
	GetByIDUnscoped(id string) (*model.Version, error)
	GetByApprovalID(scope tenancy.Scope, approvalID string) (*model.Version, error)
	ListByCampaign(scope tenancy.Scope, campaignID string, limit int) ([]*model.Version, error)
	GetCurrent(scope tenancy.Scope, campaignID string) (*model.Version, error)
	UpdateStatus(scope tenancy.Scope, id string, st status.VersionStatus, approvalID *string) error
	UpdateCustomerApproval(scope tenancy.Scope, id string, ca *model.CustomerApproval) error
	LinkApproval(scope tenancy.Scope, id, approvalID string) error
	DeleteOldDrafts(scope tenancy.Scope, campaignID string, keep int) (int, error)
}

type VersionRepository struct {
	DB *sql.DB
}

// IsUniqueViolation reports whether err is a Postgres unique_violation,
// which is how a lost version-number race surfaces.
func IsUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// NextNumber computes the next version number for a campaign. The
// unique (campaign_id, version) index catches concurrent winners; the
// caller retries on IsUniqueViolation.
func (r *VersionRepository) NextNumber(scope tenancy.Scope, campaignID string) (int, error) {
	query := `SELECT COALESCE(MAX(version), 0) + 1 FROM versions WHERE campaign_id=$1 AND org_id=$2`
	var next int
	if err := r.DB.QueryRow(query, campaignID, scope.OrgID).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func (r *VersionRepository) Insert(v *model.Version) error {
	v.CreatedAt = time.Now()
	snapshot, err := json.Marshal(v.Snapshot)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(v.Metadata)
	if err != nil {
		return err
	}
	var customerApproval []byte
	if v.CustomerApproval != nil {
		if customerApproval, err = json.Marshal(v.CustomerApproval); err != nil {
			return err
		}
	}
	query := `
        INSERT INTO versions (id, campaign_id, org_id, version, status, name, snapshot,
                              metadata, customer_approval, approval_id, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	_, err = r.DB.Exec(query, v.ID, v.CampaignID, v.OrgID, v.Version, v.Status, v.Name,
		snapshot, metadata, nullBytes(customerApproval), v.ApprovalID, v.CreatedBy, v.CreatedAt)
	return err
}

const versionColumns = `id, campaign_id, org_id, version, status, name, snapshot,
                        metadata, customer_approval, approval_id, created_by, created_at`

func (r *VersionRepository) scanVersion(row *sql.Row) (*model.Version, error) {
	var v model.Version
	var snapshot, metadata []byte
	var customerApproval sql.NullString
	err := row.Scan(&v.ID, &v.CampaignID, &v.OrgID, &v.Version, &v.Status, &v.Name,
		&snapshot, &metadata, &customerApproval, &v.ApprovalID, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := unmarshalVersionDocs(&v, snapshot, metadata, customerApproval); err != nil {
		return nil, err
	}
	return &v, nil
}

func unmarshalVersionDocs(v *model.Version, snapshot, metadata []byte, customerApproval sql.NullString) error {
	if err := json.Unmarshal(snapshot, &v.Snapshot); err != nil {
		return err
	}
	if err := json.Unmarshal(metadata, &v.Metadata); err != nil {
		return err
	}
	if customerApproval.Valid {
		v.CustomerApproval = &model.CustomerApproval{}
		if err := json.Unmarshal([]byte(customerApproval.String), v.CustomerApproval); err != nil {
			return err
		}
	}
	return nil
}

func (r *VersionRepository) GetByID(scope tenancy.Scope, id string) (*model.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM versions WHERE id=$1 AND org_id=$2`
	return r.scanVersion(r.DB.QueryRow(query, id, scope.OrgID))
}

func (r *VersionRepository) GetByIDUnscoped(id string) (*model.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM versions WHERE id=$1`
	return r.scanVersion(r.DB.QueryRow(query, id))
}

func (r *VersionRepository) GetByApprovalID(scope tenancy.Scope, approvalID string) (*model.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM versions WHERE approval_id=$1 AND org_id=$2
              ORDER BY version DESC LIMIT 1`
	return r.scanVersion(r.DB.QueryRow(query, approvalID, scope.OrgID))
}

func (r *VersionRepository) ListByCampaign(scope tenancy.Scope, campaignID string, limit int) ([]*model.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM versions
              WHERE campaign_id=$1 AND org_id=$2
              ORDER BY version DESC LIMIT $3`
	rows, err := r.DB.Query(query, campaignID, scope.OrgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := []*model.Version{}
	for rows.Next() {
		var v model.Version
		var snapshot, metadata []byte
		var customerApproval sql.NullString
		if err := rows.Scan(&v.ID, &v.CampaignID, &v.OrgID, &v.Version, &v.Status, &v.Name,
			&snapshot, &metadata, &customerApproval, &v.ApprovalID, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalVersionDocs(&v, snapshot, metadata, customerApproval); err != nil {
			return nil, err
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

func (r *VersionRepository) GetCurrent(scope tenancy.Scope, campaignID string) (*model.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM versions
              WHERE campaign_id=$1 AND org_id=$2
              ORDER BY version DESC LIMIT 1`
	return r.scanVersion(r.DB.QueryRow(query, campaignID, scope.OrgID))
}

func (r *VersionRepository) UpdateStatus(scope tenancy.Scope, id string, st status.VersionStatus, approvalID *string) error {
	query := `UPDATE versions SET status=$1, approval_id=COALESCE($2, approval_id)
              WHERE id=$3 AND org_id=$4`
	_, err := r.DB.Exec(query, st, approvalID, id, scope.OrgID)
	return err
}

func (r *VersionRepository) UpdateCustomerApproval(scope tenancy.Scope, id string, ca *model.CustomerApproval) error {
	doc, err := json.Marshal(ca)
	if err != nil {
		return err
	}
	query := `UPDATE versions SET customer_approval=$1 WHERE id=$2 AND org_id=$3`
	_, err = r.DB.Exec(query, doc, id, scope.OrgID)
	return err
}

func (r *VersionRepository) LinkApproval(scope tenancy.Scope, id, approvalID string) error {
	query := `UPDATE versions SET approval_id=$1, status=$2 WHERE id=$3 AND org_id=$4`
	_, err := r.DB.Exec(query, approvalID, status.VersionPendingCustomer, id, scope.OrgID)
	return err
}

// DeleteOldDrafts removes draft versions beyond the keep newest ones.
// Non-draft versions are never touched.
func (r *VersionRepository) DeleteOldDrafts(scope tenancy.Scope, campaignID string, keep int) (int, error) {
	query := `
        DELETE FROM versions
        WHERE campaign_id=$1 AND org_id=$2 AND status=$3
          AND id NOT IN (
              SELECT id FROM versions
              WHERE campaign_id=$1 AND org_id=$2 AND status=$3
              ORDER BY version DESC LIMIT $4
          )
    `
	res, err := r.DB.Exec(query, campaignID, scope.OrgID, status.VersionDraft, keep)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nullBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}

var _ VersionRepositoryInterface = (*VersionRepository)(nil)
