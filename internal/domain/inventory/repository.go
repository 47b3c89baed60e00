package inventory

import (
	"context"

	"stocktrace/internal/core/id"
)

// Repository defines persistence for the derived aggregates.
type Repository interface {
	// Get returns the record at the position, or (nil, nil) if absent.
	Get(ctx context.Context, key Key) (*ActiveRecord, error)

	// GetForUpdate locks and returns the record at the position, or
	// (nil, nil) if absent. Must be called inside a transaction.
	GetForUpdate(ctx context.Context, key Key) (*ActiveRecord, error)

	// Insert creates a new active inventory row.
	Insert(ctx context.Context, rec *ActiveRecord) error

	// Update rewrites an existing row.
	Update(ctx context.Context, rec *ActiveRecord) error

	// Delete removes an emptied row.
	Delete(ctx context.Context, recID id.ID) error

	// ListByPart returns all positions holding the part.
	ListByPart(ctx context.Context, partID id.ID) ([]ActiveRecord, error)

	// ListByStoreroom returns all non-empty positions in a storeroom.
	ListByStoreroom(ctx context.Context, storeroomID id.ID) ([]ActiveRecord, error)

	// GetSummary returns the stored part summary, or (nil, nil) if absent.
	GetSummary(ctx context.Context, partID id.ID) (*SummaryRecord, error)

	// ListSummaries returns stored summaries. Empty partIDs means all.
	ListSummaries(ctx context.Context, partIDs []id.ID) ([]SummaryRecord, error)

	// DeriveSummaries computes summaries directly from the active
	// table (SUM grouped by part). Empty partIDs means all parts.
	DeriveSummaries(ctx context.Context, partIDs []id.ID) ([]SummaryRecord, error)

	// ReplaceSummaries overwrites stored summaries for the given parts
	// with the supplied rows. Parts in partIDs with no row are removed.
	ReplaceSummaries(ctx context.Context, partIDs []id.ID, rows []SummaryRecord) error
}
