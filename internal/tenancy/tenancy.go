package tenancy

import (
	"log"

	appErrors "github.com/pressroom/approvals-backend/internal/errors"
	"github.com/pressroom/approvals-backend/internal/model"
)

// Scope is the organization boundary every repository call must carry.
// Repositories apply it as a query predicate, so an unscoped read is
// impossible to write by accident.
type Scope struct {
	OrgID string
}

func NewScope(orgID string) (Scope, error) {
	if orgID == "" {
		return Scope{}, appErrors.NewValidation("organization id is required")
	}
	return Scope{OrgID: orgID}, nil
}

// PermissionDeniedMessage is the stable message batch resolution uses
// for cross-tenant hits.
const PermissionDeniedMessage = "no permission for this asset"

// VersionLoader fetches a version without a tenant predicate so the
// guard itself can decide availability.
type VersionLoader interface {
	GetByIDUnscoped(id string) (*model.Version, error)
}

// VersionResolution is one item of a batch resolve: either the data or
// the reason it is withheld. Never both.
type VersionResolution struct {
	ID          string         `json:"id"`
	IsAvailable bool           `json:"is_available"`
	Error       string         `json:"error,omitempty"`
	Version     *model.Version `json:"version,omitempty"`
}

type Guard struct {
	Versions VersionLoader
}

// ResolveVersions resolves a batch of version ids against the caller's
// scope. Cross-tenant items come back denied rather than raising, so a
// mixed batch yields a mix of available and denied entries in one
// response. With validate=false the tenant check is skipped and data is
// returned regardless.
func (g *Guard) ResolveVersions(scope Scope, ids []string, validate bool) []VersionResolution {
	results := make([]VersionResolution, 0, len(ids))
	for _, id := range ids {
		v, err := g.Versions.GetByIDUnscoped(id)
		if err != nil {
			log.Println("⚠️ failed to load version", id, ":", err)
			results = append(results, VersionResolution{ID: id, Error: "failed to load asset"})
			continue
		}
		if v == nil {
			results = append(results, VersionResolution{ID: id, Error: "asset not found"})
			continue
		}
		if validate && v.OrgID != scope.OrgID {
			results = append(results, VersionResolution{ID: id, Error: PermissionDeniedMessage})
			continue
		}
		results = append(results, VersionResolution{ID: id, IsAvailable: true, Version: v})
	}
	return results
}
