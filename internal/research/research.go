package research

import (
	"context"

	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
)

// Researcher produces an equipment-class specification. Implementations are
// treated as unreliable collaborators: a failure here fails the run's research
// stage.
type Researcher interface {
	Research(ctx context.Context, equipmentClass string) (*api.ResearchReport, error)
}
