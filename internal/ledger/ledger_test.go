package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"imageorganizer/internal/models"
)

// memStore is an in-memory Store for exercising the state machine
// without SQLite.
type memStore struct {
	mu  sync.Mutex
	ops map[string]*models.StagingOperation
}

func newMemStore() *memStore {
	return &memStore{ops: make(map[string]*models.StagingOperation)}
}

func (m *memStore) Append(op *models.StagingOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.ops {
		if existing.Key() == op.Key() && !existing.State.Terminal() {
			return ErrAlreadyStaged
		}
	}
	cp := *op
	m.ops[op.OperationID] = &cp
	return nil
}

func (m *memStore) Get(operationID string) (*models.StagingOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[operationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (m *memStore) List(state models.OperationState) ([]*models.StagingOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.StagingOperation
	for _, op := range m.ops {
		if state == "" || op.State == state {
			cp := *op
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) UpdateState(operationID string, from, to models.OperationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[operationID]
	if !ok {
		return ErrNotFound
	}
	if op.State != from {
		return ErrTerminalState
	}
	op.State = to
	return nil
}

func (m *memStore) RecordFailure(operationID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.ops[operationID]
	if !ok {
		return ErrNotFound
	}
	op.FailureReason = reason
	return nil
}

func (m *memStore) ActiveFor(key models.RecordKey) (*models.StagingOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range m.ops {
		if op.Key() == key && !op.State.Terminal() {
			cp := *op
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) Close() error { return nil }

// fakeStager tracks which operation ids hold a staged copy. failStage
// and failUnstage inject move failures.
type fakeStager struct {
	mu          sync.Mutex
	staged      map[string]bool
	failStage   bool
	failUnstage bool
}

func newFakeStager() *fakeStager {
	return &fakeStager{staged: make(map[string]bool)}
}

func (f *fakeStager) StagedLocationFor(op *models.StagingOperation) string {
	return "staging/" + op.OperationID
}

func (f *fakeStager) Stage(ctx context.Context, op *models.StagingOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStage {
		return errors.New("disk full")
	}
	f.staged[op.OperationID] = true
	return nil
}

func (f *fakeStager) Unstage(ctx context.Context, op *models.StagingOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUnstage {
		return errors.New("restore failed")
	}
	delete(f.staged, op.OperationID)
	return nil
}

func (f *fakeStager) StagedExists(ctx context.Context, op *models.StagingOperation) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.staged[op.OperationID], nil
}

func (f *fakeStager) NeedsRestaging(ctx context.Context, op *models.StagingOperation) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.staged[op.OperationID], nil
}

// fakeExecutor records confirmed operations and optionally fails.
type fakeExecutor struct {
	executed []string
	err      error
}

func (f *fakeExecutor) Execute(ctx context.Context, op *models.StagingOperation) error {
	if f.err != nil {
		return f.err
	}
	f.executed = append(f.executed, op.OperationID)
	return nil
}

type noProtection struct{}

func (noProtection) IsProtected(rec *models.ImageRecord) bool { return false }

type protectEverything struct{}

func (protectEverything) IsProtected(rec *models.ImageRecord) bool { return true }

func testRecord(path string) *models.ImageRecord {
	return &models.ImageRecord{
		Origin:      models.OriginLocal,
		SourceID:    path,
		DisplayName: path,
		SizeBytes:   1024,
	}
}

func newTestLedger(t *testing.T) (*Ledger, *memStore, *fakeStager, *fakeExecutor) {
	t.Helper()
	store := newMemStore()
	stager := newFakeStager()
	exec := &fakeExecutor{}
	l := New(store,
		WithStager(models.OriginLocal, stager),
		WithProtected(noProtection{}),
		WithExecutor(exec),
	)
	return l, store, stager, exec
}

func TestStageAndConfirm(t *testing.T) {
	l, store, stager, exec := newTestLedger(t)
	ctx := context.Background()

	opID, err := l.Stage(ctx, testRecord("/photos/dup.jpg"), "duplicate of best.jpg")
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	op, err := store.Get(opID)
	if err != nil {
		t.Fatalf("operation not persisted: %v", err)
	}
	if op.State != models.StateStaged {
		t.Errorf("expected staged, got %s", op.State)
	}
	if op.Reason != "duplicate of best.jpg" {
		t.Errorf("unexpected reason %q", op.Reason)
	}
	if !stager.staged[opID] {
		t.Error("physical move did not happen")
	}

	if err := l.Confirm(ctx, opID, ConfirmToken); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	op, _ = store.Get(opID)
	if op.State != models.StateConfirmed {
		t.Errorf("expected confirmed, got %s", op.State)
	}
	if len(exec.executed) != 1 || exec.executed[0] != opID {
		t.Errorf("executor not invoked for %s", opID)
	}
}

func TestConfirm_RequiresExactToken(t *testing.T) {
	l, store, _, exec := newTestLedger(t)
	ctx := context.Background()

	opID, err := l.Stage(ctx, testRecord("/photos/dup.jpg"), "")
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	for _, token := range []string{"", "yes", "delete", "DELETE "} {
		if err := l.Confirm(ctx, opID, token); !errors.Is(err, ErrBadConfirmToken) {
			t.Errorf("token %q: expected ErrBadConfirmToken, got %v", token, err)
		}
	}
	if len(exec.executed) != 0 {
		t.Error("executor ran despite bad token")
	}
	op, _ := store.Get(opID)
	if op.State != models.StateStaged {
		t.Errorf("state changed on bad token: %s", op.State)
	}
}

func TestStageAndUndo(t *testing.T) {
	l, store, stager, _ := newTestLedger(t)
	ctx := context.Background()

	opID, err := l.Stage(ctx, testRecord("/photos/dup.jpg"), "")
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	if err := l.Undo(ctx, opID); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	op, _ := store.Get(opID)
	if op.State != models.StateUndone {
		t.Errorf("expected undone, got %s", op.State)
	}
	if stager.staged[opID] {
		t.Error("staged copy not restored")
	}
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	// Confirmed rejects Undo.
	confirmedID, _ := l.Stage(ctx, testRecord("/a.jpg"), "")
	if err := l.Confirm(ctx, confirmedID, ConfirmToken); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if err := l.Undo(ctx, confirmedID); !errors.Is(err, ErrTerminalState) {
		t.Errorf("undo of confirmed: expected ErrTerminalState, got %v", err)
	}

	// Undone rejects both Undo and Confirm.
	undoneID, _ := l.Stage(ctx, testRecord("/b.jpg"), "")
	if err := l.Undo(ctx, undoneID); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if err := l.Undo(ctx, undoneID); !errors.Is(err, ErrTerminalState) {
		t.Errorf("double undo: expected ErrTerminalState, got %v", err)
	}
	if err := l.Confirm(ctx, undoneID, ConfirmToken); !errors.Is(err, ErrTerminalState) {
		t.Errorf("confirm of undone: expected ErrTerminalState, got %v", err)
	}
}

func TestStage_RejectsSecondActiveOperation(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()
	rec := testRecord("/photos/dup.jpg")

	if _, err := l.Stage(ctx, rec, ""); err != nil {
		t.Fatalf("first Stage failed: %v", err)
	}
	if _, err := l.Stage(ctx, rec, ""); !errors.Is(err, ErrAlreadyStaged) {
		t.Errorf("expected ErrAlreadyStaged, got %v", err)
	}
}

func TestStage_AllowedAgainAfterUndo(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()
	rec := testRecord("/photos/dup.jpg")

	first, err := l.Stage(ctx, rec, "")
	if err != nil {
		t.Fatalf("first Stage failed: %v", err)
	}
	if err := l.Undo(ctx, first); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}

	second, err := l.Stage(ctx, rec, "")
	if err != nil {
		t.Fatalf("re-stage after undo failed: %v", err)
	}
	if second == first {
		t.Error("expected a fresh operation id")
	}
}

func TestStage_Protected(t *testing.T) {
	store := newMemStore()
	l := New(store,
		WithStager(models.OriginLocal, newFakeStager()),
		WithProtected(protectEverything{}),
		WithExecutor(&fakeExecutor{}),
	)

	if _, err := l.Stage(context.Background(), testRecord("/sacred/a.jpg"), ""); !errors.Is(err, ErrProtected) {
		t.Errorf("expected ErrProtected, got %v", err)
	}
	ops, _ := store.List("")
	if len(ops) != 0 {
		t.Errorf("protected stage left %d ledger rows", len(ops))
	}
}

func TestStage_MoveFailureKeepsOperationStaged(t *testing.T) {
	l, store, stager, _ := newTestLedger(t)
	stager.failStage = true

	opID, err := l.Stage(context.Background(), testRecord("/photos/dup.jpg"), "")
	if err == nil {
		t.Fatal("expected error from failed move")
	}
	if opID == "" {
		t.Fatal("expected the operation id even on move failure")
	}

	op, err := store.Get(opID)
	if err != nil {
		t.Fatalf("ledger row missing after failed move: %v", err)
	}
	if op.State != models.StateStaged {
		t.Errorf("expected staged, got %s", op.State)
	}
	if op.FailureReason == "" {
		t.Error("expected the failure reason to be recorded")
	}
}

func TestConfirm_ExecutorFailureKeepsOperationStaged(t *testing.T) {
	l, store, _, exec := newTestLedger(t)
	ctx := context.Background()

	opID, err := l.Stage(ctx, testRecord("/photos/dup.jpg"), "")
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	exec.err = fmt.Errorf("trash unavailable")
	if err := l.Confirm(ctx, opID, ConfirmToken); err == nil {
		t.Fatal("expected Confirm to fail")
	}

	op, _ := store.Get(opID)
	if op.State != models.StateStaged {
		t.Errorf("expected staged after executor failure, got %s", op.State)
	}
	if op.FailureReason != "trash unavailable" {
		t.Errorf("unexpected failure reason %q", op.FailureReason)
	}

	// The operation is retryable once the executor recovers.
	exec.err = nil
	if err := l.Confirm(ctx, opID, ConfirmToken); err != nil {
		t.Fatalf("retry after executor recovery failed: %v", err)
	}
}

func TestUndo_MissingStagedFile(t *testing.T) {
	l, store, stager, _ := newTestLedger(t)
	ctx := context.Background()

	opID, err := l.Stage(ctx, testRecord("/photos/dup.jpg"), "")
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	// Someone removed the staged copy out of band.
	delete(stager.staged, opID)

	if err := l.Undo(ctx, opID); !errors.Is(err, ErrStagedFileMissing) {
		t.Errorf("expected ErrStagedFileMissing, got %v", err)
	}
	op, _ := store.Get(opID)
	if op.State != models.StateStaged {
		t.Errorf("state changed despite failed undo: %s", op.State)
	}
}

func TestUndo_UnknownOperation(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	if err := l.Undo(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecover_ReattemptsIncompleteMoves(t *testing.T) {
	l, _, stager, _ := newTestLedger(t)
	ctx := context.Background()

	// Simulate a crash between ledger write and physical move: the row
	// says Staged but the stager holds nothing.
	stager.failStage = true
	opID, _ := l.Stage(ctx, testRecord("/photos/dup.jpg"), "")
	stager.failStage = false

	// A completed operation must be left alone.
	okID, err := l.Stage(ctx, testRecord("/photos/other.jpg"), "")
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	restaged, err := l.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if len(restaged) != 1 || restaged[0] != opID {
		t.Errorf("expected only %s re-staged, got %v", opID, restaged)
	}
	if !stager.staged[opID] {
		t.Error("recovery did not complete the move")
	}
	if !stager.staged[okID] {
		t.Error("recovery disturbed a completed operation")
	}
}

func TestList_FiltersByState(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	ctx := context.Background()

	a, _ := l.Stage(ctx, testRecord("/a.jpg"), "")
	b, _ := l.Stage(ctx, testRecord("/b.jpg"), "")
	if err := l.Confirm(ctx, a, ConfirmToken); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	staged, err := l.List(models.StateStaged)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(staged) != 1 || staged[0].OperationID != b {
		t.Errorf("expected only %s staged, got %v", b, staged)
	}

	all, err := l.List("")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 operations total, got %d", len(all))
	}
}

func TestStage_NoStagerForOrigin(t *testing.T) {
	store := newMemStore()
	l := New(store, WithExecutor(&fakeExecutor{}))

	rec := testRecord("/a.jpg")
	rec.Origin = models.OriginRemote
	if _, err := l.Stage(context.Background(), rec, ""); err == nil {
		t.Error("expected error when no stager is configured for the origin")
	}
}

func TestWithClock(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	l := New(store,
		WithStager(models.OriginLocal, newFakeStager()),
		WithExecutor(&fakeExecutor{}),
		WithClock(func() time.Time { return fixed }),
	)

	opID, err := l.Stage(context.Background(), testRecord("/a.jpg"), "")
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	op, _ := store.Get(opID)
	if !op.CreatedAt.Equal(fixed) {
		t.Errorf("expected CreatedAt %v, got %v", fixed, op.CreatedAt)
	}
}
