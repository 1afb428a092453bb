// Package executor is the thin side-effect boundary invoked by the
// ledger's Confirm. Local files go to the platform trash, never a
// permanent unlink; remote files stay in the provider trash. Permanent
// deletion of a trash entry is out of scope for this engine entirely.
package executor

import (
	"context"
	"fmt"
	"os"

	"imageorganizer/internal/fileutil"
	"imageorganizer/internal/models"
)

// RemoteStore is the trash primitive of the remote client. The
// permanent-delete primitive is intentionally not part of this
// interface.
type RemoteStore interface {
	Trash(ctx context.Context, fileID string) error
}

// Executor performs the confirmed deletion for both origins.
type Executor struct {
	remote RemoteStore
}

// New creates an Executor. remote may be nil when no remote store is
// configured; confirming a remote operation then fails cleanly.
func New(remote RemoteStore) *Executor {
	return &Executor{remote: remote}
}

// Execute performs the final, still platform-recoverable deletion of a
// staged operation.
func (e *Executor) Execute(ctx context.Context, op *models.StagingOperation) error {
	switch op.Origin {
	case models.OriginLocal:
		if _, err := os.Stat(op.StagedLocation); err != nil {
			return fmt.Errorf("staged file not found at %s: %w", op.StagedLocation, err)
		}
		if err := fileutil.MoveToTrash(op.StagedLocation); err != nil {
			return fmt.Errorf("failed to move %s to trash: %w", op.StagedLocation, err)
		}
		return nil

	case models.OriginRemote:
		if e.remote == nil {
			return fmt.Errorf("remote store not configured")
		}
		// The record was trashed at stage time; re-assert in case it
		// was externally restored since.
		if err := e.remote.Trash(ctx, op.SourceID); err != nil {
			return fmt.Errorf("failed to trash remote file %s: %w", op.SourceID, err)
		}
		return nil

	default:
		return fmt.Errorf("unknown origin %q", op.Origin)
	}
}
