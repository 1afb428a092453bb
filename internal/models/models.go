package models

import "time"

// Origin identifies which storage domain a record was observed in.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// RecordKey uniquely identifies a record across both origins.
type RecordKey struct {
	Origin   Origin `json:"origin"`
	SourceID string `json:"source_id"`
}

// ImageRecord holds metadata and fingerprints for one observed image,
// local or remote. SourceID is a filesystem path for local records and
// the provider file ID for remote ones.
type ImageRecord struct {
	ID                int64     `json:"id"`
	Origin            Origin    `json:"origin"`
	SourceID          string    `json:"source_id"`
	DisplayName       string    `json:"display_name"`
	Location          string    `json:"location,omitempty"` // containing folder: path (local) or parent ref (remote)
	SizeBytes         int64     `json:"size_bytes"`
	ContentHash       string    `json:"content_hash,omitempty"` // SHA256 (local) or provider checksum (remote)
	SimilarityHash    uint64    `json:"similarity_hash,omitempty"`
	HasSimilarityHash bool      `json:"has_similarity_hash"`
	Width             int       `json:"width,omitempty"`
	Height            int       `json:"height,omitempty"`
	Format            string    `json:"format,omitempty"`
	HasExif           bool      `json:"has_exif"`
	ModifiedAt        time.Time `json:"modified_at"`
	FingerprintFailed bool      `json:"fingerprint_failed,omitempty"`
	Score             float64   `json:"score"`
	GroupID           int       `json:"group_id,omitempty"`
}

// Key returns the record's identity across origins.
func (r *ImageRecord) Key() RecordKey {
	return RecordKey{Origin: r.Origin, SourceID: r.SourceID}
}

// Megapixels returns the decoded resolution in megapixels, 0 when unknown.
func (r *ImageRecord) Megapixels() float64 {
	return float64(r.Width) * float64(r.Height) / 1e6
}

// MatchKind distinguishes byte-identical groups from perceptually
// similar ones.
type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchNear  MatchKind = "near"
)

// Decision is the per-member outcome of reviewing a duplicate group.
type Decision string

const (
	DecisionKeep   Decision = "keep"
	DecisionDelete Decision = "delete"
	DecisionSkip   Decision = "skip"
)

// DuplicateGroup is a cluster of records judged duplicate or
// near-duplicate of one another.
//
// Exact groups share one content hash and have MaxInternalDistance 0.
// Near groups are connected components of the similarity graph: every
// member is within the Hamming threshold of at least one other member,
// and MaxInternalDistance is the largest edge distance used to connect
// the component.
type DuplicateGroup struct {
	ID                  int                    `json:"id"`
	Kind                MatchKind              `json:"kind"`
	MaxInternalDistance int                    `json:"max_internal_distance"`
	Members             []*ImageRecord         `json:"members"`
	RecommendedKeep     *ImageRecord           `json:"recommended_keep,omitempty"`
	Decisions           map[RecordKey]Decision `json:"-"`
}

// Decision returns the current decision for a member, defaulting to Skip
// for records the ranker never saw.
func (g *DuplicateGroup) Decision(r *ImageRecord) Decision {
	if g.Decisions == nil {
		return DecisionSkip
	}
	d, ok := g.Decisions[r.Key()]
	if !ok {
		return DecisionSkip
	}
	return d
}

// SetDecision records a review override for a member.
func (g *DuplicateGroup) SetDecision(r *ImageRecord, d Decision) {
	if g.Decisions == nil {
		g.Decisions = make(map[RecordKey]Decision)
	}
	g.Decisions[r.Key()] = d
}

// DeleteCandidates returns the members currently marked for deletion.
func (g *DuplicateGroup) DeleteCandidates() []*ImageRecord {
	var out []*ImageRecord
	for _, m := range g.Members {
		if g.Decision(m) == DecisionDelete {
			out = append(out, m)
		}
	}
	return out
}

// ScanResult summarizes one clustering run.
type ScanResult struct {
	TotalScanned    int               `json:"total_scanned"`
	TotalGroups     int               `json:"total_groups"`
	TotalDuplicates int               `json:"total_duplicates"`
	Groups          []*DuplicateGroup `json:"groups"`
}

// OperationState is the staging ledger state machine. Staged is the only
// non-terminal state; Confirmed and Undone permit no further transitions.
type OperationState string

const (
	StateStaged    OperationState = "staged"
	StateConfirmed OperationState = "confirmed"
	StateUndone    OperationState = "undone"
)

// Terminal reports whether no further transition is permitted.
func (s OperationState) Terminal() bool {
	return s == StateConfirmed || s == StateUndone
}

// StagingOperation is one reversible deletion. It is persisted before
// any physical move happens and is never deleted from the ledger, only
// marked terminal.
type StagingOperation struct {
	OperationID      string         `json:"operation_id"`
	Origin           Origin         `json:"origin"`
	SourceID         string         `json:"source_id"`
	DisplayName      string         `json:"display_name"`
	SizeBytes        int64          `json:"size_bytes"`
	OriginalLocation string         `json:"original_location"`
	StagedLocation   string         `json:"staged_location"`
	Reason           string         `json:"reason"`
	State            OperationState `json:"state"`
	FailureReason    string         `json:"failure_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Key returns the identity of the targeted record.
func (op *StagingOperation) Key() RecordKey {
	return RecordKey{Origin: op.Origin, SourceID: op.SourceID}
}

// CrossSourceMatch is a content hash present in both origins, with the
// member lists per side.
type CrossSourceMatch struct {
	ContentHash   string         `json:"content_hash"`
	DisplayName   string         `json:"display_name"`
	LocalMembers  []*ImageRecord `json:"local_members"`
	RemoteMembers []*ImageRecord `json:"remote_members"`
	LocalBytes    int64          `json:"local_bytes"`
	RemoteBytes   int64          `json:"remote_bytes"`
}

// TotalMembers returns the member count across both origins.
func (m *CrossSourceMatch) TotalMembers() int {
	return len(m.LocalMembers) + len(m.RemoteMembers)
}

// ReclaimableBytes is the space freeable by deleting from one side only.
// At least one physical copy always remains on the other side.
func (m *CrossSourceMatch) ReclaimableBytes() int64 {
	if m.LocalBytes < m.RemoteBytes {
		return m.LocalBytes
	}
	return m.RemoteBytes
}

// ReconcileStats aggregates a cross-source reconciliation run.
type ReconcileStats struct {
	Groups           int   `json:"groups"`
	TotalMembers     int   `json:"total_members"`
	LocalBytes       int64 `json:"local_bytes"`
	RemoteBytes      int64 `json:"remote_bytes"`
	ReclaimableBytes int64 `json:"reclaimable_bytes"`
}
