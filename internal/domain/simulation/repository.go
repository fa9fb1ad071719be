package simulation

import (
	"context"

	"github.com/turtacn/terminal-planner/internal/domain/terminal"
)

// RunRepository defines the persistence operations for simulation runs.
type RunRepository interface {
	Save(ctx context.Context, run *Run) error
	FindByID(ctx context.Context, id string) (*Run, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*Run, error)
	List(ctx context.Context, opts ...QueryOption) ([]*Run, error)
	Elements(ctx context.Context, runID string, kind terminal.Kind) ([]terminal.Element, error)
}

// QueryOptions encapsulates list parameters.
type QueryOptions struct {
	Offset int
	Limit  int
	Status RunStatus
}

// QueryOption is a functional option for QueryOptions.
type QueryOption func(*QueryOptions)

// WithPagination sets pagination options.
func WithPagination(offset, limit int) QueryOption {
	return func(o *QueryOptions) {
		if offset < 0 {
			offset = 0
		}
		if limit < 1 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}
		o.Offset = offset
		o.Limit = limit
	}
}

// WithStatus restricts a listing to one status.
func WithStatus(s RunStatus) QueryOption {
	return func(o *QueryOptions) {
		o.Status = s
	}
}

// ApplyOptions applies the functional options to create QueryOptions.
func ApplyOptions(opts ...QueryOption) QueryOptions {
	o := QueryOptions{Limit: 20}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
