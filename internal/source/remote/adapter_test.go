package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"imageorganizer/internal/models"
)

func thumbnailPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 100, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestAdapter_Enumerate(t *testing.T) {
	thumb := thumbnailPNG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files":
			json.NewEncoder(w).Encode(Page{Files: []File{
				{ID: "f1", Name: "a.jpg", Size: 1000, Checksum: "sum-a", ThumbnailLink: "/thumb/f1", Parents: []string{"folder-1"}},
				{ID: "f2", Name: "b.jpg", Size: 2000, Checksum: "sum-b", ThumbnailLink: "/thumb/f2"},
			}})
		case "/thumb/f1", "/thumb/f2":
			w.Write(thumb)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter := NewAdapter(testClient(server.URL), WithThumbnails(true), WithConcurrency(2))
	records, err := adapter.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	r := records[0]
	if r.Origin != models.OriginRemote || r.SourceID != "f1" {
		t.Errorf("unexpected record identity: %+v", r)
	}
	if r.ContentHash != "sum-a" {
		t.Errorf("provider checksum not adopted: %q", r.ContentHash)
	}
	if r.Location != "folder-1" {
		t.Errorf("parent folder not recorded: %q", r.Location)
	}
	for _, rec := range records {
		if !rec.HasSimilarityHash {
			t.Errorf("record %s missing perceptual hash", rec.SourceID)
		}
		if rec.FingerprintFailed {
			t.Errorf("record %s unexpectedly marked failed", rec.SourceID)
		}
	}
}

func TestAdapter_ThumbnailFailureMarksRecord(t *testing.T) {
	thumb := thumbnailPNG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files":
			json.NewEncoder(w).Encode(Page{Files: []File{
				{ID: "ok", Name: "ok.jpg", Checksum: "sum-1", ThumbnailLink: "/thumb/ok"},
				{ID: "bad", Name: "bad.jpg", Checksum: "sum-2", ThumbnailLink: "/thumb/bad"},
			}})
		case "/thumb/ok":
			w.Write(thumb)
		case "/thumb/bad":
			http.NotFound(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter := NewAdapter(testClient(server.URL), WithThumbnails(true))
	records, err := adapter.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}

	byID := map[string]*models.ImageRecord{}
	for _, r := range records {
		byID[r.SourceID] = r
	}
	if !byID["ok"].HasSimilarityHash {
		t.Error("healthy record missing perceptual hash")
	}
	if !byID["bad"].FingerprintFailed {
		t.Error("failed thumbnail not marked on record")
	}
	// The exact hash survives a thumbnail failure.
	if byID["bad"].ContentHash != "sum-2" {
		t.Errorf("content hash lost: %q", byID["bad"].ContentHash)
	}
}

func TestAdapter_ThumbnailsDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" {
			t.Errorf("unexpected request to %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(Page{Files: []File{{ID: "f1", Name: "a.jpg", Checksum: "sum-a"}}})
	}))
	defer server.Close()

	adapter := NewAdapter(testClient(server.URL), WithThumbnails(false))
	records, err := adapter.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	if records[0].HasSimilarityHash {
		t.Error("perceptual hash computed with thumbnails disabled")
	}
}
