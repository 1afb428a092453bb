// Package remote talks to the remote store's HTTP API: paginated
// listing, thumbnail download, and the trash/restore primitives. All
// calls go through a rate limiter and a retry loop with exponential
// backoff on rate-limit and transient server errors.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// imageMimeTypes is the listing filter: only these MIME types are
// enumerated.
var imageMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/bmp",
	"image/webp",
	"image/heic",
	"image/heif",
	"image/tiff",
}

const maxPageSize = 1000

// RetryPolicy controls the exponential backoff applied to rate-limit
// and transient server errors. The delay doubles (Multiplier) per
// attempt, capped at MaxDelay, for at most MaxAttempts attempts.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy returns the default retry configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// delayFor returns the backoff delay for a zero-based attempt index.
func (p RetryPolicy) delayFor(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// StatusError is a non-2xx response from the remote store.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote store returned status %d: %s", e.Code, e.Body)
}

// Transient reports whether the error class is retryable: rate limiting
// or a server-side failure. Everything else (auth, not-found, bad
// request) fails immediately.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// File is one remote file's metadata as returned by the listing call.
// Checksum is the provider-computed exact-content hash, present for
// binary files; using it avoids downloading content just to hash it.
type File struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	MimeType      string    `json:"mimeType"`
	Size          int64     `json:"size"`
	Checksum      string    `json:"checksum"`
	ModifiedTime  time.Time `json:"modifiedTime"`
	ThumbnailLink string    `json:"thumbnailLink"`
	Parents       []string  `json:"parents"`
	Trashed       bool      `json:"trashed"`
}

// Page is one page of a listing, with the continuation token for the
// next page when more results exist.
type Page struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"nextPageToken"`
}

// Client is an HTTP client for the remote store API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
	pageSize   int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(cl *Client) {
		if p.MaxAttempts > 0 {
			cl.retry = p
		}
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(cl *Client) {
		if perSecond > 0 && burst > 0 {
			cl.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithPageSize sets the listing page size, clamped to the provider max.
func WithPageSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.pageSize = n
			if cl.pageSize > maxPageSize {
				cl.pageSize = maxPageSize
			}
		}
	}
}

// NewClient creates a Client for the store at baseURL authenticated
// with the given bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 5),
		retry:      DefaultRetryPolicy(),
		pageSize:   100,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListPage fetches one page of non-trashed image files. An empty
// pageToken requests the first page.
func (c *Client) ListPage(ctx context.Context, pageToken string) (*Page, error) {
	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	q.Set("mimeTypes", strings.Join(imageMimeTypes, ","))
	q.Set("trashed", "false")
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/files?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode listing page: %w", err)
	}
	return &page, nil
}

// ListImages follows continuation tokens until the listing is
// exhausted, yielding all pages as a single sequence in provider-
// returned order.
func (c *Client) ListImages(ctx context.Context) ([]File, error) {
	var files []File
	pageToken := ""

	for {
		page, err := c.ListPage(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		files = append(files, page.Files...)

		log.WithFields(log.Fields{
			"page_files": len(page.Files),
			"total":      len(files),
		}).Debug("retrieved listing page")

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return files, nil
}

// Thumbnail downloads the reduced-size rendition of a file. The
// thumbnail is enough for perceptual hashing and avoids pulling full
// image content over the network.
func (c *Client) Thumbnail(ctx context.Context, f File) ([]byte, error) {
	link := f.ThumbnailLink
	if link == "" {
		return nil, fmt.Errorf("no thumbnail available for file %s", f.ID)
	}
	if strings.HasPrefix(link, "/") {
		link = c.baseURL + link
	}
	return c.do(ctx, http.MethodGet, link, nil)
}

// Trash moves a file into the provider's trash. The file stays
// recoverable for the provider's retention window; this client never
// calls a permanent-delete endpoint.
func (c *Client) Trash(ctx context.Context, fileID string) error {
	return c.setTrashed(ctx, fileID, true)
}

// Restore recovers a file from the provider's trash.
func (c *Client) Restore(ctx context.Context, fileID string) error {
	return c.setTrashed(ctx, fileID, false)
}

// IsTrashed reports whether a file currently sits in the provider trash.
func (c *Client) IsTrashed(ctx context.Context, fileID string) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/files/"+url.PathEscape(fileID), nil)
	if err != nil {
		return false, err
	}
	var f File
	if err := json.Unmarshal(body, &f); err != nil {
		return false, fmt.Errorf("failed to decode file metadata: %w", err)
	}
	return f.Trashed, nil
}

func (c *Client) setTrashed(ctx context.Context, fileID string, trashed bool) error {
	payload, _ := json.Marshal(map[string]bool{"trashed": trashed})
	_, err := c.do(ctx, http.MethodPatch, c.baseURL+"/files/"+url.PathEscape(fileID), payload)
	return err
}

// do executes one API call under the rate limiter, retrying transient
// errors with exponential backoff. Non-transient errors fail
// immediately without retry.
func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retry.delayFor(attempt - 1)
			log.WithFields(log.Fields{
				"attempt": attempt + 1,
				"delay":   delay,
			}).Warn("retrying remote call")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.once(ctx, method, rawURL, payload)
		if err == nil {
			return body, nil
		}

		if se, ok := err.(*StatusError); ok && se.Transient() {
			lastErr = err
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("remote call failed after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

func (c *Client) once(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: msg}
	}

	return body, nil
}
