// Package reconcile matches image records across the local and remote
// origins by exact content hash. Near-duplicate matching across origins
// is deliberately not attempted: remote perceptual hashes come from
// thumbnails and local ones from full files, and those are not
// distance-comparable without a normalization scheme.
package reconcile

import (
	"sort"

	"imageorganizer/internal/models"
)

// Reconcile returns the content hashes present in both collections,
// each mapped to its member lists per origin, sorted by reclaimable
// size descending.
func Reconcile(local, remote []*models.ImageRecord) ([]*models.CrossSourceMatch, *models.ReconcileStats) {
	localByHash := indexByHash(local, models.OriginLocal)
	remoteByHash := indexByHash(remote, models.OriginRemote)

	var matches []*models.CrossSourceMatch
	for h, localMembers := range localByHash {
		remoteMembers, ok := remoteByHash[h]
		if !ok {
			continue
		}

		m := &models.CrossSourceMatch{
			ContentHash:   h,
			DisplayName:   localMembers[0].DisplayName,
			LocalMembers:  localMembers,
			RemoteMembers: remoteMembers,
		}
		for _, r := range localMembers {
			m.LocalBytes += r.SizeBytes
		}
		for _, r := range remoteMembers {
			m.RemoteBytes += r.SizeBytes
		}
		matches = append(matches, m)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].ReclaimableBytes() != matches[j].ReclaimableBytes() {
			return matches[i].ReclaimableBytes() > matches[j].ReclaimableBytes()
		}
		return matches[i].ContentHash < matches[j].ContentHash
	})

	stats := &models.ReconcileStats{Groups: len(matches)}
	for _, m := range matches {
		stats.TotalMembers += m.TotalMembers()
		stats.LocalBytes += m.LocalBytes
		stats.RemoteBytes += m.RemoteBytes
		stats.ReclaimableBytes += m.ReclaimableBytes()
	}

	return matches, stats
}

// indexByHash groups records of one origin by content hash, skipping
// records without one and records observed under a different origin.
func indexByHash(records []*models.ImageRecord, origin models.Origin) map[string][]*models.ImageRecord {
	out := make(map[string][]*models.ImageRecord)
	for _, r := range records {
		if r.ContentHash == "" || r.Origin != origin {
			continue
		}
		out[r.ContentHash] = append(out[r.ContentHash], r)
	}
	for _, members := range out {
		sort.Slice(members, func(i, j int) bool {
			return members[i].SourceID < members[j].SourceID
		})
	}
	return out
}
