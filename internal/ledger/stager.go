package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"imageorganizer/internal/fileutil"
	"imageorganizer/internal/models"
)

// Stager performs the reversible physical move for one origin: into a
// holding location on Stage, back to the original location on Unstage.
type Stager interface {
	// StagedLocationFor returns where the record will reside while the
	// operation is pending. Called before the operation is persisted.
	StagedLocationFor(op *models.StagingOperation) string

	// Stage moves the record into the holding location.
	Stage(ctx context.Context, op *models.StagingOperation) error

	// Unstage restores the record to its original location.
	Unstage(ctx context.Context, op *models.StagingOperation) error

	// StagedExists reports whether the staged copy is still where the
	// ledger put it.
	StagedExists(ctx context.Context, op *models.StagingOperation) (bool, error)

	// NeedsRestaging reports whether the physical move recorded by a
	// Staged operation never completed, e.g. after a crash between
	// ledger write and move.
	NeedsRestaging(ctx context.Context, op *models.StagingOperation) (bool, error)
}

// LocalStager stages local files into a dedicated per-operation
// directory under the staging root.
type LocalStager struct {
	dir string
}

// NewLocalStager creates a LocalStager rooted at dir.
func NewLocalStager(dir string) *LocalStager {
	return &LocalStager{dir: dir}
}

// StagedLocationFor implements Stager.
func (s *LocalStager) StagedLocationFor(op *models.StagingOperation) string {
	return filepath.Join(s.dir, op.OperationID, filepath.Base(op.OriginalLocation))
}

// Stage implements Stager.
func (s *LocalStager) Stage(ctx context.Context, op *models.StagingOperation) error {
	if err := fileutil.MoveToPath(op.OriginalLocation, op.StagedLocation); err != nil {
		return fmt.Errorf("failed to move %s to staging: %w", op.OriginalLocation, err)
	}
	return nil
}

// Unstage implements Stager. The move refuses to overwrite, so a file
// that reappeared at the original location surfaces as an error instead
// of being clobbered. The per-operation directory is removed when it
// empties.
func (s *LocalStager) Unstage(ctx context.Context, op *models.StagingOperation) error {
	if err := fileutil.MoveToPath(op.StagedLocation, op.OriginalLocation); err != nil {
		return fmt.Errorf("failed to restore %s: %w", op.OriginalLocation, err)
	}
	os.Remove(filepath.Dir(op.StagedLocation))
	return nil
}

// StagedExists implements Stager.
func (s *LocalStager) StagedExists(ctx context.Context, op *models.StagingOperation) (bool, error) {
	_, err := os.Stat(op.StagedLocation)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// NeedsRestaging implements Stager: the ledger says Staged but the file
// is still at its original location and absent from staging.
func (s *LocalStager) NeedsRestaging(ctx context.Context, op *models.StagingOperation) (bool, error) {
	staged, err := s.StagedExists(ctx, op)
	if err != nil {
		return false, err
	}
	if staged {
		return false, nil
	}
	_, err = os.Stat(op.OriginalLocation)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// RemoteStore is the subset of the remote client the ledger needs:
// the trash primitive, its inverse, and a trash-state probe. Permanent
// deletion is deliberately absent.
type RemoteStore interface {
	Trash(ctx context.Context, fileID string) error
	Restore(ctx context.Context, fileID string) error
	IsTrashed(ctx context.Context, fileID string) (bool, error)
}

// RemoteStager stages remote files by moving them into the provider's
// trash, which keeps them recoverable for the provider's retention
// window.
type RemoteStager struct {
	store RemoteStore
}

// NewRemoteStager creates a RemoteStager over the given store.
func NewRemoteStager(store RemoteStore) *RemoteStager {
	return &RemoteStager{store: store}
}

// StagedLocationFor implements Stager.
func (s *RemoteStager) StagedLocationFor(op *models.StagingOperation) string {
	return "trash"
}

// Stage implements Stager.
func (s *RemoteStager) Stage(ctx context.Context, op *models.StagingOperation) error {
	if err := s.store.Trash(ctx, op.SourceID); err != nil {
		return fmt.Errorf("failed to trash remote file %s: %w", op.SourceID, err)
	}
	return nil
}

// Unstage implements Stager.
func (s *RemoteStager) Unstage(ctx context.Context, op *models.StagingOperation) error {
	if err := s.store.Restore(ctx, op.SourceID); err != nil {
		return fmt.Errorf("failed to restore remote file %s: %w", op.SourceID, err)
	}
	return nil
}

// StagedExists implements Stager.
func (s *RemoteStager) StagedExists(ctx context.Context, op *models.StagingOperation) (bool, error) {
	return s.store.IsTrashed(ctx, op.SourceID)
}

// NeedsRestaging implements Stager.
func (s *RemoteStager) NeedsRestaging(ctx context.Context, op *models.StagingOperation) (bool, error) {
	trashed, err := s.store.IsTrashed(ctx, op.SourceID)
	if err != nil {
		return false, err
	}
	return !trashed, nil
}
