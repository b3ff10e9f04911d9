package stage

import (
	"context"

	"gavel/internal/hearings"
)

// Handler describes the contract the pipeline manager needs from each stage.
type Handler interface {
	Prepare(context.Context, *hearings.Hearing) error
	Execute(context.Context, *hearings.Hearing) error
	HealthCheck(context.Context) Health
}
