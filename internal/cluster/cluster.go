package cluster

import (
	"sort"

	"imageorganizer/internal/hash"
	"imageorganizer/internal/models"
)

// DefaultThreshold is the Hamming distance below which two perceptual
// hashes are considered near-duplicates. Usable range is roughly 0-20
// bits out of 64; 10 is a reasonable middle ground.
const DefaultThreshold = 10

// Clusterer groups image records into exact and near duplicate groups.
type Clusterer struct {
	threshold int
}

// New creates a Clusterer with the given Hamming distance threshold.
func New(threshold int) *Clusterer {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Clusterer{threshold: threshold}
}

// Threshold returns the configured Hamming distance threshold.
func (c *Clusterer) Threshold() int {
	return c.threshold
}

// Cluster partitions records into duplicate groups. Exact groups are
// formed first by content hash; near groups are formed from the
// remaining records as connected components of the similarity graph.
// A record placed in an exact group is never re-evaluated for
// near-duplicate status. Group IDs are assigned sequentially, exact
// groups first.
func (c *Clusterer) Cluster(records []*models.ImageRecord) []*models.DuplicateGroup {
	exact := c.exactGroups(records)

	inExact := make(map[models.RecordKey]bool)
	for _, g := range exact {
		for _, m := range g.Members {
			inExact[m.Key()] = true
		}
	}

	var nearCandidates []*models.ImageRecord
	for _, r := range records {
		if inExact[r.Key()] {
			continue
		}
		if !r.HasSimilarityHash || r.FingerprintFailed {
			continue
		}
		nearCandidates = append(nearCandidates, r)
	}

	groups := append(exact, c.nearGroups(nearCandidates)...)

	for i, g := range groups {
		g.ID = i + 1
		for _, m := range g.Members {
			m.GroupID = g.ID
		}
	}

	return groups
}

// exactGroups partitions records by identical content hash. Any
// partition with two or more members becomes an exact group.
func (c *Clusterer) exactGroups(records []*models.ImageRecord) []*models.DuplicateGroup {
	byHash := make(map[string][]*models.ImageRecord)
	for _, r := range records {
		if r.ContentHash == "" {
			continue
		}
		byHash[r.ContentHash] = append(byHash[r.ContentHash], r)
	}

	var groups []*models.DuplicateGroup
	for _, members := range byHash {
		if len(members) < 2 {
			continue
		}
		sortMembers(members)
		groups = append(groups, &models.DuplicateGroup{
			Kind:                models.MatchExact,
			MaxInternalDistance: 0,
			Members:             members,
		})
	}

	sortGroups(groups)
	return groups
}

// nearGroups forms connected components over the similarity graph:
// records are nodes, an edge exists when the Hamming distance is within
// threshold. Components are found with union-find; candidate edges come
// from a BK-tree rather than all-pairs comparison. The maximum edge
// distance used to connect each component is retained on the group.
func (c *Clusterer) nearGroups(records []*models.ImageRecord) []*models.DuplicateGroup {
	n := len(records)
	if n < 2 {
		return nil
	}

	uf := newUnionFind(n)
	maxEdge := make([]int, n) // per-root maximum connecting edge distance
	tree := newBKTree(hash.HammingDistance)

	for i, rec := range records {
		for _, nb := range tree.findWithinDistance(rec.SimilarityHash, c.threshold) {
			ri, rj := uf.find(i), uf.find(nb.index)
			edge := nb.distance
			if maxEdge[ri] > edge {
				edge = maxEdge[ri]
			}
			if maxEdge[rj] > edge {
				edge = maxEdge[rj]
			}
			uf.union(i, nb.index)
			maxEdge[uf.find(i)] = edge
		}
		tree.insert(rec.SimilarityHash, i)
	}

	components := make(map[int][]*models.ImageRecord)
	for i, rec := range records {
		root := uf.find(i)
		components[root] = append(components[root], rec)
	}

	var groups []*models.DuplicateGroup
	for root, members := range components {
		if len(members) < 2 {
			continue
		}
		sortMembers(members)
		groups = append(groups, &models.DuplicateGroup{
			Kind:                models.MatchNear,
			MaxInternalDistance: maxEdge[root],
			Members:             members,
		})
	}

	sortGroups(groups)
	return groups
}

// sortMembers orders group members deterministically by origin then ID.
func sortMembers(members []*models.ImageRecord) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].Origin != members[j].Origin {
			return members[i].Origin < members[j].Origin
		}
		return members[i].SourceID < members[j].SourceID
	})
}

// sortGroups orders groups deterministically by their first member.
func sortGroups(groups []*models.DuplicateGroup) {
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Members[0], groups[j].Members[0]
		if a.Origin != b.Origin {
			return a.Origin < b.Origin
		}
		return a.SourceID < b.SourceID
	})
}

// Union-Find data structure for efficient grouping
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: rank}
}

func (uf *unionFind) find(x int) int {
	if uf.parent[x] != x {
		uf.parent[x] = uf.find(uf.parent[x]) // Path compression
	}
	return uf.parent[x]
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	// Union by rank
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}
