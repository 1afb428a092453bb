package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"
)

// Hasher computes content and perceptual fingerprints for images.
// All methods are idempotent: hashing the same bytes twice yields
// identical results.
type Hasher struct{}

// NewHasher creates a new Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// NearCapable reports whether perceptual fingerprinting is available.
// Callers branch on this instead of probing for decode failures.
func (h *Hasher) NearCapable() bool {
	return true
}

// ContentHash streams r through SHA-256 and returns the hex digest.
func (h *Hasher) ContentHash(r io.Reader) (string, error) {
	sum := sha256.New()
	if _, err := io.Copy(sum, r); err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// ContentHashFile computes the SHA-256 hash of a file.
func (h *Hasher) ContentHashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return h.ContentHash(file)
}

// SimilarityResult carries the perceptual fingerprint and the pixel
// metadata learned while decoding.
type SimilarityResult struct {
	Hash   uint64
	Width  int
	Height int
	Format string
}

// SimilarityHash decodes an image and computes its 64-bit perceptual
// hash. A downsampled thumbnail is an acceptable input; the hash is
// computed from whatever pixels decode.
func (h *Hasher) SimilarityHash(r io.Reader) (*SimilarityResult, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	phash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("failed to compute perceptual hash: %w", err)
	}

	bounds := img.Bounds()
	return &SimilarityResult{
		Hash:   phash.GetHash(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: strings.ToLower(format),
	}, nil
}

// SimilarityHashBytes computes the perceptual hash of in-memory image
// bytes, e.g. a thumbnail downloaded from a remote store.
func (h *Hasher) SimilarityHashBytes(data []byte) (*SimilarityResult, error) {
	return h.SimilarityHash(bytes.NewReader(data))
}

// SimilarityHashFile computes the perceptual hash of an image file.
func (h *Hasher) SimilarityHashFile(path string) (*SimilarityResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return h.SimilarityHash(file)
}

// HasExif checks if an image file contains EXIF data.
func HasExif(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	_, err = exif.Decode(file)
	return err == nil
}

// IsSupportedImage checks if a file is a supported image format.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif":
		return true
	default:
		return false
	}
}

// HammingDistance calculates the number of differing bits between two
// 64-bit fingerprints. Lower means more similar.
func HammingDistance(hash1, hash2 uint64) int {
	xor := hash1 ^ hash2
	count := 0
	for xor != 0 {
		count++
		xor &= xor - 1
	}
	return count
}
