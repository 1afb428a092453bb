package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"imageorganizer/internal/models"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("unexpected log level %q", cfg.Log.Level)
	}
	if cfg.Scan.Workers != 8 || cfg.Scan.Threshold != 10 {
		t.Errorf("unexpected scan defaults: %+v", cfg.Scan)
	}
	if cfg.Rank.ResolutionWeight != 10.0 || cfg.Rank.SizeWeight != 1.0 {
		t.Errorf("unexpected rank defaults: %+v", cfg.Rank)
	}
	if cfg.Remote.PageSize != 100 || cfg.Remote.RetryAttempts != 5 {
		t.Errorf("unexpected remote defaults: %+v", cfg.Remote)
	}
	if cfg.Remote.RetryBaseDelay != 500*time.Millisecond || cfg.Remote.RetryMaxDelay != 30*time.Second {
		t.Errorf("unexpected retry delays: %+v", cfg.Remote)
	}
	if cfg.Staging.Dir == "" || cfg.Staging.LedgerPath == "" || cfg.CatalogPath == "" {
		t.Errorf("missing path defaults: %+v", cfg)
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log:
  level: debug
scan:
  workers: 4
  threshold: 6
protected:
  - Family Photos
  - /home/user/keep
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("unexpected log level %q", cfg.Log.Level)
	}
	if cfg.Scan.Workers != 4 || cfg.Scan.Threshold != 6 {
		t.Errorf("scan section not read: %+v", cfg.Scan)
	}
	if len(cfg.Protected) != 2 {
		t.Errorf("protected patterns not read: %v", cfg.Protected)
	}
	// Unset sections keep defaults.
	if cfg.Remote.PageSize != 100 {
		t.Errorf("defaults lost for unset section: %+v", cfg.Remote)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Scan.Threshold = 4
	cfg.Protected = []string{"keepers"}
	cfg.Remote.BaseURL = "https://store.example.com/api"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Scan.Threshold != 4 {
		t.Errorf("threshold not persisted: %d", reloaded.Scan.Threshold)
	}
	if len(reloaded.Protected) != 1 || reloaded.Protected[0] != "keepers" {
		t.Errorf("protected patterns not persisted: %v", reloaded.Protected)
	}
	if reloaded.Remote.BaseURL != "https://store.example.com/api" {
		t.Errorf("remote base url not persisted: %q", reloaded.Remote.BaseURL)
	}
	if reloaded.Remote.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("duration not roundtripped: %v", reloaded.Remote.RetryBaseDelay)
	}
}

func TestProtectedScopes_Local(t *testing.T) {
	scopes := NewProtectedScopes([]string{"Family Photos", "/srv/archive"})

	tests := []struct {
		path string
		want bool
	}{
		{"/home/user/family photos/img.jpg", true},
		{"/home/user/FAMILY PHOTOS/img.jpg", true},
		{"/srv/archive/2020/img.jpg", true},
		{"/home/user/downloads/img.jpg", false},
	}
	for _, tt := range tests {
		rec := &models.ImageRecord{Origin: models.OriginLocal, SourceID: tt.path}
		if got := scopes.IsProtected(rec); got != tt.want {
			t.Errorf("IsProtected(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestProtectedScopes_Remote(t *testing.T) {
	scopes := NewProtectedScopes([]string{"folder-keep"})

	protected := &models.ImageRecord{
		Origin:      models.OriginRemote,
		SourceID:    "file-1",
		DisplayName: "img.jpg",
		Location:    "folder-keep",
	}
	if !scopes.IsProtected(protected) {
		t.Error("expected remote record in protected folder to match")
	}

	byName := &models.ImageRecord{
		Origin:      models.OriginRemote,
		SourceID:    "file-2",
		DisplayName: "folder-keep-notes.jpg",
		Location:    "other",
	}
	if !scopes.IsProtected(byName) {
		t.Error("expected display-name match")
	}

	free := &models.ImageRecord{
		Origin:      models.OriginRemote,
		SourceID:    "file-3",
		DisplayName: "img.jpg",
		Location:    "other",
	}
	if scopes.IsProtected(free) {
		t.Error("unexpected match for unprotected record")
	}
}

func TestProtectedScopes_EmptyAndBlankPatterns(t *testing.T) {
	scopes := NewProtectedScopes([]string{"", "  "})
	rec := &models.ImageRecord{Origin: models.OriginLocal, SourceID: "/anything.jpg"}
	if scopes.IsProtected(rec) {
		t.Error("blank patterns must not protect everything")
	}
	if len(scopes.Patterns()) != 0 {
		t.Errorf("blank patterns kept: %v", scopes.Patterns())
	}
}
