// Package source defines the adapter contract shared by the local and
// remote storage domains.
package source

import (
	"context"

	"imageorganizer/internal/models"
)

// Adapter enumerates image records from one storage domain. Enumeration
// respects context cancellation between records; a cancelled scan never
// leaves partial side effects because adapters only read.
type Adapter interface {
	Origin() models.Origin
	Enumerate(ctx context.Context) ([]*models.ImageRecord, error)
}
