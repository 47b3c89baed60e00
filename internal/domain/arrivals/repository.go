package arrivals

import (
	"context"

	"stocktrace/internal/core/id"
)

// Repository defines persistence for part arrivals.
type Repository interface {
	// GetForUpdate locks and returns an arrival. Returns
	// apperror.NewNotFound when the id is unknown.
	GetForUpdate(ctx context.Context, arrivalID id.ID) (*PartArrival, error)

	// GetByID returns an arrival without locking.
	GetByID(ctx context.Context, arrivalID id.ID) (*PartArrival, error)

	// Insert creates an arrival row.
	Insert(ctx context.Context, a *PartArrival) error

	// Update rewrites an arrival row.
	Update(ctx context.Context, a *PartArrival) error

	// ListByPackage returns all arrivals on a package.
	ListByPackage(ctx context.Context, packageID id.ID) ([]PartArrival, error)

	// ListByLine returns all arrivals recorded against a purchase
	// order line, splits included.
	ListByLine(ctx context.Context, lineID id.ID) ([]PartArrival, error)

	// ListPendingByLocation returns arrivals at a major location still
	// awaiting inspection, oldest first.
	ListPendingByLocation(ctx context.Context, majorLocationID id.ID) ([]PartArrival, error)
}
