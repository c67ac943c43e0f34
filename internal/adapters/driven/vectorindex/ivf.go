package vectorindex

import (
	"math"
	"sort"
)

// kmeansIterations bounds centroid refinement during training.
const kmeansIterations = 10

// samplesPerList bounds the training sample size.
const samplesPerList = 256

// ivf partitions slots around centroids. Every slot belongs to the list of
// its nearest centroid, ties going to the lower centroid, so the lists can
// be rebuilt from the centroids alone.
type ivf struct {
	centroids [][]float32
	lists     [][]int
}

// defaultLists picks a partition count for n vectors.
func defaultLists(n int) int {
	nlist := int(math.Sqrt(float64(n)))
	return max(1, min(nlist, 4096))
}

// trainIVF runs spherical k-means over a deterministic sample of live slots.
func trainIVF(ix *Index, nlist int) *ivf {
	var live []int
	for s := range ix.positions {
		if ix.live[s] {
			live = append(live, s)
		}
	}
	if nlist > len(live) {
		nlist = len(live)
	}

	sample := live
	if limit := nlist * samplesPerList; len(live) > limit {
		stride := float64(len(live)) / float64(limit)
		sample = make([]int, limit)
		for i := range sample {
			sample[i] = live[int(float64(i)*stride)]
		}
	}

	centroids := make([][]float32, nlist)
	step := float64(len(sample)) / float64(nlist)
	for c := range centroids {
		centroids[c] = append([]float32(nil), ix.vector(sample[int(float64(c)*step)])...)
	}

	assign := make([]int, len(sample))
	for iter := 0; iter < kmeansIterations; iter++ {
		for i, s := range sample {
			assign[i] = nearestCentroid(centroids, ix.vector(s))
		}

		sums := make([][]float64, nlist)
		counts := make([]int, nlist)
		for i, s := range sample {
			c := assign[i]
			if sums[c] == nil {
				sums[c] = make([]float64, ix.dim)
			}
			for d, x := range ix.vector(s) {
				sums[c][d] += float64(x)
			}
			counts[c]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			mean := make([]float32, ix.dim)
			for d := range mean {
				mean[d] = float32(sums[c][d] / float64(counts[c]))
			}
			centroids[c] = Normalize(mean)
		}
	}

	p := &ivf{centroids: centroids}
	p.reassign(ix)
	return p
}

// reassign rebuilds the lists from the live slots of ix.
func (p *ivf) reassign(ix *Index) {
	p.lists = make([][]int, len(p.centroids))
	for s := range ix.positions {
		if ix.live[s] {
			p.assign(s, ix.vector(s))
		}
	}
}

// assign adds slot s to the list of its nearest centroid.
func (p *ivf) assign(s int, v []float32) {
	c := nearestCentroid(p.centroids, v)
	p.lists[c] = append(p.lists[c], s)
}

// nearest returns the probes lists whose centroids best match q.
func (p *ivf) nearest(q []float32, probes int) []int {
	order := make([]int, len(p.centroids))
	scores := make([]float32, len(p.centroids))
	for c := range p.centroids {
		order[c] = c
		scores[c] = dot(q, p.centroids[c])
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })
	if probes < len(order) {
		order = order[:probes]
	}
	return order
}

func nearestCentroid(centroids [][]float32, v []float32) int {
	best, bestScore := 0, float32(math.Inf(-1))
	for c, centroid := range centroids {
		if score := dot(v, centroid); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}
