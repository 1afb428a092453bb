// Package local enumerates and fingerprints images on the local
// filesystem using a bounded worker pool.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"imageorganizer/internal/hash"
	"imageorganizer/internal/models"
)

// Adapter scans folders for images and computes their fingerprints.
type Adapter struct {
	roots      []string
	hasher     *hash.Hasher
	workers    int
	progressFn func(scanned, total int, current string)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithWorkers sets the number of parallel fingerprinting workers.
func WithWorkers(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithProgress sets a progress callback.
func WithProgress(fn func(scanned, total int, current string)) Option {
	return func(a *Adapter) {
		a.progressFn = fn
	}
}

// New creates an Adapter over the given root folders.
func New(roots []string, opts ...Option) *Adapter {
	a := &Adapter{
		roots:   roots,
		hasher:  hash.NewHasher(),
		workers: 8,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Origin implements source.Adapter.
func (a *Adapter) Origin() models.Origin {
	return models.OriginLocal
}

// Enumerate walks the root folders, collects supported image paths and
// fingerprints them on a bounded worker pool. Per-record fingerprint
// failures degrade gracefully: the record is kept with
// FingerprintFailed set when at least the content hash succeeded, and
// dropped entirely only when the file cannot be read at all.
func (a *Adapter) Enumerate(ctx context.Context) ([]*models.ImageRecord, error) {
	var paths []string
	for _, root := range a.roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // Skip unreadable entries
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if info.IsDir() {
				return nil
			}
			if hash.IsSupportedImage(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk folder %s: %w", root, err)
		}
	}

	if len(paths) == 0 {
		return nil, nil
	}

	var (
		results   []*models.ImageRecord
		resultsMu sync.Mutex
		scanned   int64
		total     = len(paths)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for _, p := range paths {
		path := p
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			rec, err := a.fingerprint(path)
			n := atomic.AddInt64(&scanned, 1)
			if a.progressFn != nil {
				a.progressFn(int(n), total, path)
			}
			if err != nil {
				log.WithError(err).WithField("path", path).Warn("skipping unreadable file")
				return nil
			}

			resultsMu.Lock()
			results = append(results, rec)
			resultsMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// fingerprint builds a fully enriched record for one file. The content
// hash is computed from the raw bytes before any decode is attempted,
// so a corrupt image can still participate in exact matching.
func (a *Adapter) fingerprint(path string) (*models.ImageRecord, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	contentHash, err := a.hasher.ContentHashFile(path)
	if err != nil {
		return nil, err
	}

	rec := &models.ImageRecord{
		Origin:      models.OriginLocal,
		SourceID:    path,
		DisplayName: filepath.Base(path),
		SizeBytes:   stat.Size(),
		ContentHash: contentHash,
		ModifiedAt:  stat.ModTime(),
	}

	rec.HasExif = hash.HasExif(path)

	sim, err := a.hasher.SimilarityHashFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("perceptual fingerprint failed")
		rec.FingerprintFailed = true
		return rec, nil
	}

	rec.SimilarityHash = sim.Hash
	rec.HasSimilarityHash = true
	rec.Width = sim.Width
	rec.Height = sim.Height
	rec.Format = sim.Format

	return rec, nil
}
