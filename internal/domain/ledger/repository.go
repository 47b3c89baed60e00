package ledger

import (
	"context"
	"time"

	"stocktrace/internal/core/id"
)

// Repository defines persistence for the movement ledger.
// The ledger is append-only: there is no update or delete.
type Repository interface {
	// Insert appends a single movement record.
	Insert(ctx context.Context, m *MovementRecord) error

	// InsertBatch appends several movements in one round trip. Used for
	// the debit/credit pair a transfer writes.
	InsertBatch(ctx context.Context, ms []*MovementRecord) error

	// GetByID retrieves one movement. Returns apperror.NewNotFound
	// when the id is unknown.
	GetByID(ctx context.Context, movementID id.ID) (*MovementRecord, error)

	// LatestProvenanced returns the most recent movement of the part at
	// the given position, ordered by movement date and then by id so
	// same-instant movements resolve deterministically.
	// Returns (nil, nil) when the position has no history.
	LatestProvenanced(ctx context.Context, partID id.ID, pos BinRef) (*MovementRecord, error)

	// ListByArrival returns every movement whose chain originates at
	// the given arrival, oldest first.
	ListByArrival(ctx context.Context, arrivalID id.ID) ([]MovementRecord, error)

	// ListByReference returns movements caused by a business record.
	ListByReference(ctx context.Context, refType string, refID id.ID) ([]MovementRecord, error)

	// HasReceiptForReference reports whether at least one receipt
	// movement exists for the reference. Used by status propagation.
	HasReceiptForReference(ctx context.Context, refType string, refID id.ID) (bool, error)

	// ListHistory returns filtered movement history for a part,
	// newest first.
	ListHistory(ctx context.Context, partID id.ID, filter HistoryFilter) ([]MovementRecord, error)
}

// HistoryFilter narrows movement history queries.
type HistoryFilter struct {
	Kind            *MovementKind
	MajorLocationID *id.ID
	StoreroomID     *id.ID
	BinID           *id.ID
	FromDate        *time.Time
	ToDate          *time.Time
	Limit           int
	Offset          int
}
