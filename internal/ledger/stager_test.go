package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"imageorganizer/internal/models"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLocalStager_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	stagingDir := filepath.Join(dir, "staging")
	original := filepath.Join(dir, "photos", "dup.jpg")
	writeTestFile(t, original, "image bytes")

	s := NewLocalStager(stagingDir)
	op := &models.StagingOperation{
		OperationID:      "op-1",
		Origin:           models.OriginLocal,
		SourceID:         original,
		OriginalLocation: original,
	}
	op.StagedLocation = s.StagedLocationFor(op)

	if op.StagedLocation != filepath.Join(stagingDir, "op-1", "dup.jpg") {
		t.Fatalf("unexpected staged location %s", op.StagedLocation)
	}

	ctx := context.Background()
	if err := s.Stage(ctx, op); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if _, err := os.Stat(original); !os.IsNotExist(err) {
		t.Error("original still present after staging")
	}
	exists, err := s.StagedExists(ctx, op)
	if err != nil || !exists {
		t.Fatalf("staged copy missing: exists=%v err=%v", exists, err)
	}

	if err := s.Unstage(ctx, op); err != nil {
		t.Fatalf("Unstage failed: %v", err)
	}
	restored, err := os.ReadFile(original)
	if err != nil {
		t.Fatalf("restored file missing: %v", err)
	}
	if string(restored) != "image bytes" {
		t.Errorf("restored content differs: %q", restored)
	}
	if _, err := os.Stat(filepath.Join(stagingDir, "op-1")); !os.IsNotExist(err) {
		t.Error("per-operation staging directory not cleaned up")
	}
}

func TestLocalStager_UnstageRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "photos", "dup.jpg")
	writeTestFile(t, original, "staged version")

	s := NewLocalStager(filepath.Join(dir, "staging"))
	op := &models.StagingOperation{
		OperationID:      "op-1",
		Origin:           models.OriginLocal,
		SourceID:         original,
		OriginalLocation: original,
	}
	op.StagedLocation = s.StagedLocationFor(op)

	ctx := context.Background()
	if err := s.Stage(ctx, op); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	// A different file reappeared at the original location.
	writeTestFile(t, original, "intruder")

	if err := s.Unstage(ctx, op); err == nil {
		t.Fatal("expected Unstage to refuse overwriting")
	}
	content, _ := os.ReadFile(original)
	if string(content) != "intruder" {
		t.Errorf("existing file was clobbered: %q", content)
	}
}

func TestLocalStager_NeedsRestaging(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "photos", "dup.jpg")
	writeTestFile(t, original, "image bytes")

	s := NewLocalStager(filepath.Join(dir, "staging"))
	op := &models.StagingOperation{
		OperationID:      "op-1",
		Origin:           models.OriginLocal,
		SourceID:         original,
		OriginalLocation: original,
	}
	op.StagedLocation = s.StagedLocationFor(op)
	ctx := context.Background()

	// Ledger row written, move never happened.
	needed, err := s.NeedsRestaging(ctx, op)
	if err != nil {
		t.Fatalf("NeedsRestaging failed: %v", err)
	}
	if !needed {
		t.Error("expected restaging when the file is still at its original location")
	}

	if err := s.Stage(ctx, op); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	needed, err = s.NeedsRestaging(ctx, op)
	if err != nil {
		t.Fatalf("NeedsRestaging failed: %v", err)
	}
	if needed {
		t.Error("expected no restaging after a completed move")
	}

	// Both copies gone: nothing to recover.
	if err := os.Remove(op.StagedLocation); err != nil {
		t.Fatal(err)
	}
	needed, err = s.NeedsRestaging(ctx, op)
	if err != nil {
		t.Fatalf("NeedsRestaging failed: %v", err)
	}
	if needed {
		t.Error("expected no restaging when neither copy exists")
	}
}

type fakeRemoteStore struct {
	trashed map[string]bool
}

func (f *fakeRemoteStore) Trash(ctx context.Context, fileID string) error {
	f.trashed[fileID] = true
	return nil
}

func (f *fakeRemoteStore) Restore(ctx context.Context, fileID string) error {
	f.trashed[fileID] = false
	return nil
}

func (f *fakeRemoteStore) IsTrashed(ctx context.Context, fileID string) (bool, error) {
	return f.trashed[fileID], nil
}

func TestRemoteStager_Roundtrip(t *testing.T) {
	store := &fakeRemoteStore{trashed: make(map[string]bool)}
	s := NewRemoteStager(store)
	op := &models.StagingOperation{
		OperationID: "op-1",
		Origin:      models.OriginRemote,
		SourceID:    "file-123",
	}
	ctx := context.Background()

	needed, _ := s.NeedsRestaging(ctx, op)
	if !needed {
		t.Error("expected restaging before the trash call happened")
	}

	if err := s.Stage(ctx, op); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if !store.trashed["file-123"] {
		t.Error("file not trashed")
	}
	exists, _ := s.StagedExists(ctx, op)
	if !exists {
		t.Error("expected staged copy to exist in trash")
	}

	if err := s.Unstage(ctx, op); err != nil {
		t.Fatalf("Unstage failed: %v", err)
	}
	if store.trashed["file-123"] {
		t.Error("file still trashed after restore")
	}
}
