package ledger

import (
	"errors"

	"imageorganizer/internal/models"
)

// Sentinel errors for ledger state violations. The ledger never mutates
// state on any of these paths.
var (
	// ErrProtected is returned when staging a record inside a
	// protected scope.
	ErrProtected = errors.New("record is inside a protected scope")

	// ErrAlreadyStaged is returned when a non-terminal operation
	// already exists for the record.
	ErrAlreadyStaged = errors.New("a pending operation already exists for this record")

	// ErrNotFound is returned for unknown operation ids.
	ErrNotFound = errors.New("operation not found")

	// ErrTerminalState is returned for transitions out of Confirmed or
	// Undone.
	ErrTerminalState = errors.New("operation is in a terminal state")

	// ErrStagedFileMissing is returned by Undo when the staged copy no
	// longer exists where the ledger put it.
	ErrStagedFileMissing = errors.New("staged file is missing from the staging location")

	// ErrBadConfirmToken is returned when Confirm is invoked without
	// the exact confirmation token.
	ErrBadConfirmToken = errors.New("confirmation token does not match")
)

// Store is the persisted, append-only ledger of staging operations.
// Implementations must apply each mutation atomically: two writers
// racing on the same operation or the same record key must not both
// succeed.
type Store interface {
	// Append persists a new operation. It fails with ErrAlreadyStaged
	// when a non-terminal operation exists for the same record key.
	Append(op *models.StagingOperation) error

	// Get returns one operation by id, or ErrNotFound.
	Get(operationID string) (*models.StagingOperation, error)

	// List returns operations matching the state filter ("" for all),
	// oldest first. It never mutates state.
	List(state models.OperationState) ([]*models.StagingOperation, error)

	// UpdateState transitions an operation from one state to another
	// as a single compare-and-set. It returns ErrNotFound for unknown
	// ids and ErrTerminalState when the current state is not `from`.
	UpdateState(operationID string, from, to models.OperationState) error

	// RecordFailure attaches a failure reason to an operation without
	// changing its state.
	RecordFailure(operationID, reason string) error

	// ActiveFor returns the non-terminal operation for a record key,
	// or nil when none exists.
	ActiveFor(key models.RecordKey) (*models.StagingOperation, error)

	Close() error
}
