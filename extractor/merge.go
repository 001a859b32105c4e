package extractor

import (
	"math/rand/v2"
	"sort"

	"product-aggregator/internal/types"
)

// Assembler merges per-site outcomes into one shuffled list
type Assembler struct {
	shuffle func(n int, swap func(i, j int))
}

// NewAssembler returns an assembler using the global random source
func NewAssembler() *Assembler {
	return &Assembler{shuffle: rand.Shuffle}
}

// NewSeededAssembler returns an assembler with a deterministic permutation, for tests and replay
func NewSeededAssembler(seed uint64) *Assembler {
	r := rand.New(rand.NewPCG(seed, seed))
	return &Assembler{shuffle: r.Shuffle}
}

// Merge flattens every outcome's items and returns them in uniformly random order.
// No deduplication or re-slicing is done.
func (a *Assembler) Merge(outcomes map[types.SiteID]types.JobOutcome) []types.ProductRecord {
	sites := make([]types.SiteID, 0, len(outcomes))
	total := 0
	for site, o := range outcomes {
		sites = append(sites, site)
		total += len(o.Items)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })

	merged := make([]types.ProductRecord, 0, total)
	for _, site := range sites {
		merged = append(merged, outcomes[site].Items...)
	}

	a.shuffle(len(merged), func(i, j int) {
		merged[i], merged[j] = merged[j], merged[i]
	})
	return merged
}
