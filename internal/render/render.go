package render

import (
	"fmt"
	"os"

	"github.com/pressroom/approvals-backend/internal/model"
)

// RenderResult is what the external typesetting service hands back.
type RenderResult struct {
	ArtifactURL      string
	ByteSize         int64
	GenerationTimeMs int64
}

// Renderer produces a distributable document from snapshot content.
// Rendering happens outside this engine; failures propagate as
// generation errors.
type Renderer interface {
	Render(title, body string, boilerplate []model.BoilerplateSection, keyVisualURL, clientName string) (*RenderResult, error)
}

// ArtifactStore resolves a stored artifact to a downloadable URL and
// its size. Consumed opaquely.
type ArtifactStore interface {
	URL(key string) (string, int64, error)
}

const defaultBaseURL = "http://localhost:8080"

// LinkBuilder assembles the public share links recipients receive.
type LinkBuilder struct {
	BaseURL string
}

func NewLinkBuilderFromEnv() LinkBuilder {
	base := os.Getenv("PUBLIC_BASE_URL")
	if base == "" {
		base = defaultBaseURL
	}
	return LinkBuilder{BaseURL: base}
}

// CustomerLink is the external customer's review URL.
func (b LinkBuilder) CustomerLink(shareID, versionID string) string {
	return b.link("review", shareID, versionID)
}

// TeamLink is the internal reviewer's URL for the same workflow.
func (b LinkBuilder) TeamLink(shareID, versionID string) string {
	return b.link("team-review", shareID, versionID)
}

func (b LinkBuilder) link(path, shareID, versionID string) string {
	base := b.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	if versionID == "" {
		return fmt.Sprintf("%s/%s/%s", base, path, shareID)
	}
	return fmt.Sprintf("%s/%s/%s?pdf=%s", base, path, shareID, versionID)
}
