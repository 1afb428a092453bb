// Package ledger records every proposed deletion as a reversible,
// persisted operation and drives it through a small state machine:
// Staged, then Confirmed or Undone. The ledger row is durable before
// any physical move happens, so a crash mid-operation always leaves a
// detectable state instead of a lost file.
package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"imageorganizer/internal/models"
)

// ConfirmToken is the explicit token Confirm requires. An ordinary
// "yes" is not accepted for a destructive action.
const ConfirmToken = "DELETE"

// Executor performs the final (still platform-recoverable) deletion of
// a confirmed operation.
type Executor interface {
	Execute(ctx context.Context, op *models.StagingOperation) error
}

// ProtectedChecker reports whether a record must never be staged.
type ProtectedChecker interface {
	IsProtected(rec *models.ImageRecord) bool
}

// Ledger is the staging state machine over a persisted store.
type Ledger struct {
	store     Store
	stagers   map[models.Origin]Stager
	protected ProtectedChecker
	exec      Executor
	now       func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStager registers the stager for one origin.
func WithStager(origin models.Origin, s Stager) Option {
	return func(l *Ledger) { l.stagers[origin] = s }
}

// WithProtected sets the protected-scope checker.
func WithProtected(p ProtectedChecker) Option {
	return func(l *Ledger) { l.protected = p }
}

// WithExecutor sets the side-effect boundary used by Confirm.
func WithExecutor(e Executor) Option {
	return func(l *Ledger) { l.exec = e }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger over the given store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		stagers: make(map[models.Origin]Stager),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) stagerFor(origin models.Origin) (Stager, error) {
	s, ok := l.stagers[origin]
	if !ok {
		return nil, fmt.Errorf("no stager configured for origin %q", origin)
	}
	return s, nil
}

// Stage records a proposed deletion and moves the record to its
// reversible holding location. The ledger row is persisted before the
// move; if the move then fails, the operation stays Staged with the
// failure attached and the recovery pass re-attempts the move later.
func (l *Ledger) Stage(ctx context.Context, rec *models.ImageRecord, reason string) (string, error) {
	if l.protected != nil && l.protected.IsProtected(rec) {
		return "", fmt.Errorf("%w: %s", ErrProtected, rec.DisplayName)
	}

	stager, err := l.stagerFor(rec.Origin)
	if err != nil {
		return "", err
	}

	if active, err := l.store.ActiveFor(rec.Key()); err != nil {
		return "", err
	} else if active != nil {
		return "", fmt.Errorf("%w: operation %s", ErrAlreadyStaged, active.OperationID)
	}

	originalLocation := rec.SourceID
	if rec.Origin == models.OriginRemote {
		originalLocation = rec.Location
	}

	now := l.now()
	op := &models.StagingOperation{
		OperationID:      uuid.NewString(),
		Origin:           rec.Origin,
		SourceID:         rec.SourceID,
		DisplayName:      rec.DisplayName,
		SizeBytes:        rec.SizeBytes,
		OriginalLocation: originalLocation,
		Reason:           reason,
		State:            models.StateStaged,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	op.StagedLocation = stager.StagedLocationFor(op)

	// Durable before the move: a crash after this point is recoverable.
	if err := l.store.Append(op); err != nil {
		return "", err
	}

	if err := stager.Stage(ctx, op); err != nil {
		if recErr := l.store.RecordFailure(op.OperationID, err.Error()); recErr != nil {
			log.WithError(recErr).Warn("failed to record staging failure")
		}
		return op.OperationID, fmt.Errorf("staging move failed for %s: %w", op.OperationID, err)
	}

	log.WithFields(log.Fields{
		"operation": op.OperationID,
		"origin":    op.Origin,
		"target":    op.DisplayName,
	}).Info("staged for deletion")

	return op.OperationID, nil
}

// Confirm performs the final deletion of a staged operation. It
// requires the exact confirmation token, and it advances the state only
// after the executor reports success; on executor failure the operation
// remains Staged with the failure reason attached.
func (l *Ledger) Confirm(ctx context.Context, operationID, token string) error {
	if token != ConfirmToken {
		return ErrBadConfirmToken
	}
	if l.exec == nil {
		return fmt.Errorf("no executor configured")
	}

	op, err := l.store.Get(operationID)
	if err != nil {
		return err
	}
	if op.State.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, operationID, op.State)
	}

	if err := l.exec.Execute(ctx, op); err != nil {
		if recErr := l.store.RecordFailure(operationID, err.Error()); recErr != nil {
			log.WithError(recErr).Warn("failed to record executor failure")
		}
		return fmt.Errorf("confirm failed for %s: %w", operationID, err)
	}

	if err := l.store.UpdateState(operationID, models.StateStaged, models.StateConfirmed); err != nil {
		return err
	}

	log.WithField("operation", operationID).Info("deletion confirmed")
	return nil
}

// Undo restores a staged record to its original location and marks the
// operation Undone. If the staged copy is gone the state is left
// unchanged and the failure is surfaced, never faked as success.
func (l *Ledger) Undo(ctx context.Context, operationID string) error {
	op, err := l.store.Get(operationID)
	if err != nil {
		return err
	}
	if op.State.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, operationID, op.State)
	}

	stager, err := l.stagerFor(op.Origin)
	if err != nil {
		return err
	}

	exists, err := stager.StagedExists(ctx, op)
	if err != nil {
		return fmt.Errorf("failed to check staged file for %s: %w", operationID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrStagedFileMissing, op.StagedLocation)
	}

	if err := stager.Unstage(ctx, op); err != nil {
		if recErr := l.store.RecordFailure(operationID, err.Error()); recErr != nil {
			log.WithError(recErr).Warn("failed to record undo failure")
		}
		return fmt.Errorf("undo failed for %s: %w", operationID, err)
	}

	if err := l.store.UpdateState(operationID, models.StateStaged, models.StateUndone); err != nil {
		return err
	}

	log.WithField("operation", operationID).Info("operation undone, file restored")
	return nil
}

// List returns operations matching the state filter ("" for all). It is
// read-only.
func (l *Ledger) List(state models.OperationState) ([]*models.StagingOperation, error) {
	return l.store.List(state)
}

// Recover reconciles Staged operations whose physical move never
// completed, e.g. after a crash between the ledger write and the move.
// Each such operation's move is re-attempted. Returns the ids that were
// re-staged.
func (l *Ledger) Recover(ctx context.Context) ([]string, error) {
	staged, err := l.store.List(models.StateStaged)
	if err != nil {
		return nil, err
	}

	var restaged []string
	for _, op := range staged {
		stager, err := l.stagerFor(op.Origin)
		if err != nil {
			log.WithError(err).WithField("operation", op.OperationID).Warn("skipping recovery")
			continue
		}

		needed, err := stager.NeedsRestaging(ctx, op)
		if err != nil {
			log.WithError(err).WithField("operation", op.OperationID).Warn("recovery check failed")
			continue
		}
		if !needed {
			continue
		}

		log.WithField("operation", op.OperationID).Warn("incomplete staging detected, re-attempting move")
		if err := stager.Stage(ctx, op); err != nil {
			if recErr := l.store.RecordFailure(op.OperationID, err.Error()); recErr != nil {
				log.WithError(recErr).Warn("failed to record recovery failure")
			}
			continue
		}
		restaged = append(restaged, op.OperationID)
	}

	return restaged, nil
}

// Prune removes leftover staging payload directories of terminal local
// operations older than maxAge. Ledger rows are never deleted; the
// audit history stays complete.
func (l *Ledger) Prune(stagingDir string, maxAge time.Duration) (int, error) {
	ops, err := l.store.List("")
	if err != nil {
		return 0, err
	}

	cutoff := l.now().Add(-maxAge)
	pruned := 0
	for _, op := range ops {
		if op.Origin != models.OriginLocal || !op.State.Terminal() || op.UpdatedAt.After(cutoff) {
			continue
		}
		dir := filepath.Dir(op.StagedLocation)
		if filepath.Dir(dir) != filepath.Clean(stagingDir) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).WithField("dir", dir).Warn("failed to prune staging directory")
			continue
		}
		pruned++
	}

	return pruned, nil
}
