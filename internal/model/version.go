package model

import (
	"time"

	"github.com/pressroom/approvals-backend/internal/status"
)

// Version is an immutable content snapshot of a campaign document.
// Only Status (and the linked approval back-reference) change after
// creation; the snapshot itself never does.
type Version struct {
	ID               string               `db:"id" json:"id"`
	CampaignID       string               `db:"campaign_id" json:"campaign_id"`
	OrgID            string               `db:"org_id" json:"org_id"`
	Version          int                  `db:"version" json:"version"`
	Status           status.VersionStatus `db:"status" json:"status"`
	Name             string               `db:"name" json:"name"`
	Snapshot         ContentSnapshot      `db:"snapshot" json:"snapshot"`
	Metadata         VersionMetadata      `db:"metadata" json:"metadata"`
	CustomerApproval *CustomerApproval    `db:"customer_approval" json:"customer_approval,omitempty"`
	ApprovalID       *string              `db:"approval_id" json:"approval_id,omitempty"`
	CreatedBy        string               `db:"created_by" json:"created_by"`
	CreatedAt        time.Time            `db:"created_at" json:"created_at"`
}

type ContentSnapshot struct {
	Title              string               `json:"title"`
	Body               string               `json:"body"`
	Boilerplate        []BoilerplateSection `json:"boilerplate,omitempty"`
	KeyVisualURL       string               `json:"key_visual_url,omitempty"`
	CreatedForApproval bool                 `json:"created_for_approval"`
}

type BoilerplateSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

type VersionMetadata struct {
	WordCount        int    `json:"word_count"`
	PageCount        int    `json:"page_count"`
	GenerationTimeMs int64  `json:"generation_time_ms"`
	ArtifactURL      string `json:"artifact_url,omitempty"`
	ArtifactBytes    int64  `json:"artifact_bytes,omitempty"`
}

type CustomerApproval struct {
	ShareID     string     `json:"share_id"`
	RequestedAt time.Time  `json:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
}
