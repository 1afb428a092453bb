// Package rank scores the members of a duplicate group and proposes
// which one to keep. The ranking is advisory: it seeds per-member
// decisions that a review step may override.
package rank

import (
	"sort"

	"imageorganizer/internal/models"
)

// Default weights. Resolution is weighted an order of magnitude above
// raw file size: visual fidelity matters more than compression
// efficiency for a keep decision.
const (
	DefaultResolutionWeight = 10.0
	DefaultSizeWeight       = 1.0
)

// ProtectedChecker reports whether a record falls inside a protected
// scope. Protected members are never proposed for deletion.
type ProtectedChecker interface {
	IsProtected(rec *models.ImageRecord) bool
}

// Ranker computes quality scores and seeds group decisions.
type Ranker struct {
	resolutionWeight float64
	sizeWeight       float64
	protected        ProtectedChecker
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithWeights overrides the scoring weights.
func WithWeights(resolution, size float64) Option {
	return func(r *Ranker) {
		if resolution > 0 {
			r.resolutionWeight = resolution
		}
		if size > 0 {
			r.sizeWeight = size
		}
	}
}

// WithProtected sets the protected-scope checker.
func WithProtected(p ProtectedChecker) Option {
	return func(r *Ranker) {
		r.protected = p
	}
}

// New creates a Ranker.
func New(opts ...Option) *Ranker {
	r := &Ranker{
		resolutionWeight: DefaultResolutionWeight,
		sizeWeight:       DefaultSizeWeight,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Score computes the scalar quality score for one record:
// megapixels weighted against file size in megabytes. Records missing
// resolution metadata score on size alone.
func (r *Ranker) Score(rec *models.ImageRecord) float64 {
	sizeMB := float64(rec.SizeBytes) / (1024 * 1024)
	if rec.Width == 0 || rec.Height == 0 {
		return sizeMB * r.sizeWeight
	}
	return rec.Megapixels()*r.resolutionWeight + sizeMB*r.sizeWeight
}

// Rank scores every member of the group, designates the highest-scoring
// member as the recommended keep, and seeds default decisions: the
// recommended member Keep, protected members Skip, everything else
// Delete. Ties break toward the earliest modification time, treated as
// closest to the original capture.
func (r *Ranker) Rank(group *models.DuplicateGroup) {
	if len(group.Members) == 0 {
		return
	}

	for _, m := range group.Members {
		m.Score = r.Score(m)
	}

	sorted := make([]*models.ImageRecord, len(group.Members))
	copy(sorted, group.Members)

	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.ModifiedAt.Equal(b.ModifiedAt) {
			return a.ModifiedAt.Before(b.ModifiedAt)
		}
		return a.SourceID < b.SourceID
	})

	group.RecommendedKeep = sorted[0]
	group.Decisions = make(map[models.RecordKey]models.Decision, len(group.Members))

	for _, m := range group.Members {
		switch {
		case r.protected != nil && r.protected.IsProtected(m):
			group.SetDecision(m, models.DecisionSkip)
		case m == group.RecommendedKeep:
			group.SetDecision(m, models.DecisionKeep)
		default:
			group.SetDecision(m, models.DecisionDelete)
		}
	}
}

// RankAll ranks every group in a scan result.
func (r *Ranker) RankAll(groups []*models.DuplicateGroup) {
	for _, g := range groups {
		r.Rank(g)
	}
}
