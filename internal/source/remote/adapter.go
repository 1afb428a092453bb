package remote

import (
	"context"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"imageorganizer/internal/hash"
	"imageorganizer/internal/models"
)

// Adapter enumerates image records from the remote store. Listing is
// sequential per continuation token; thumbnail downloads for perceptual
// hashing run on a capped pool to respect provider rate limits.
type Adapter struct {
	client          *Client
	hasher          *hash.Hasher
	fetchThumbnails bool
	concurrency     int
	progressFn      func(done, total int, current string)
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithThumbnails enables perceptual fingerprinting from thumbnails.
func WithThumbnails(enabled bool) AdapterOption {
	return func(a *Adapter) { a.fetchThumbnails = enabled }
}

// WithConcurrency caps parallel thumbnail downloads.
func WithConcurrency(n int) AdapterOption {
	return func(a *Adapter) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithProgress sets a progress callback for thumbnail fetching.
func WithProgress(fn func(done, total int, current string)) AdapterOption {
	return func(a *Adapter) { a.progressFn = fn }
}

// NewAdapter creates an Adapter over the given client.
func NewAdapter(client *Client, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		client:      client,
		hasher:      hash.NewHasher(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Origin implements source.Adapter.
func (a *Adapter) Origin() models.Origin {
	return models.OriginRemote
}

// Client exposes the underlying store client for trash and restore.
func (a *Adapter) Client() *Client {
	return a.client
}

// Enumerate lists the store's images and converts them to records. The
// provider checksum becomes the content hash without any download; when
// thumbnail fetching is enabled records additionally get a perceptual
// hash. A failed thumbnail only marks that record fingerprint-failed,
// it never aborts the scan.
func (a *Adapter) Enumerate(ctx context.Context) ([]*models.ImageRecord, error) {
	files, err := a.client.ListImages(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*models.ImageRecord, 0, len(files))
	for _, f := range files {
		rec := &models.ImageRecord{
			Origin:      models.OriginRemote,
			SourceID:    f.ID,
			DisplayName: f.Name,
			SizeBytes:   f.Size,
			ContentHash: f.Checksum,
			ModifiedAt:  f.ModifiedTime,
		}
		if len(f.Parents) > 0 {
			rec.Location = f.Parents[0]
		}
		records = append(records, rec)
	}

	if a.fetchThumbnails && a.hasher.NearCapable() {
		if err := a.enrichThumbnails(ctx, files, records); err != nil {
			return nil, err
		}
	}

	return records, nil
}

func (a *Adapter) enrichThumbnails(ctx context.Context, files []File, records []*models.ImageRecord) error {
	var (
		mu    sync.Mutex
		done  int64
		total = len(files)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i := range files {
		f, rec := files[i], records[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			data, err := a.client.Thumbnail(ctx, f)
			n := atomic.AddInt64(&done, 1)
			if a.progressFn != nil {
				a.progressFn(int(n), total, f.Name)
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.WithError(err).WithField("file", f.ID).Debug("thumbnail fetch failed")
				mu.Lock()
				rec.FingerprintFailed = true
				mu.Unlock()
				return nil
			}

			sim, err := a.hasher.SimilarityHashBytes(data)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WithError(err).WithField("file", f.ID).Debug("thumbnail decode failed")
				rec.FingerprintFailed = true
				return nil
			}
			rec.SimilarityHash = sim.Hash
			rec.HasSimilarityHash = true
			return nil
		})
	}

	return g.Wait()
}
