package detect

import (
	"cmp"
	"slices"
)

// IoU calculates Intersection over Union between two regions.
func IoU(a, b Region) float64 {
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.W, b.X+b.W)
	y2 := min(a.Y+a.H, b.Y+b.H)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := float64((x2 - x1) * (y2 - y1))
	union := float64(a.W*a.H+b.W*b.H) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// candidate is one raw window hit from a cascade scan.
type candidate struct {
	region Region
	score  float64
}

// group merges overlapping raw hits into averaged regions and keeps only
// groups backed by at least minNeighbors hits. Results are ordered by the
// summed score of their members, strongest first.
func group(cands []candidate, minNeighbors int, threshold float64) []Region {
	slices.SortStableFunc(cands, func(a, b candidate) int {
		return cmp.Compare(b.score, a.score)
	})

	type cluster struct {
		seed       Region
		sx, sy, sw float64
		score      float64
		members    int
	}

	var clusters []*cluster
	for _, c := range cands {
		var home *cluster
		for _, cl := range clusters {
			if IoU(cl.seed, c.region) > threshold {
				home = cl
				break
			}
		}
		if home == nil {
			home = &cluster{seed: c.region}
			clusters = append(clusters, home)
		}
		home.sx += float64(c.region.X)
		home.sy += float64(c.region.Y)
		home.sw += float64(c.region.W)
		home.score += c.score
		home.members++
	}

	slices.SortStableFunc(clusters, func(a, b *cluster) int {
		return cmp.Compare(b.score, a.score)
	})

	var out []Region
	for _, cl := range clusters {
		if cl.members < max(minNeighbors, 1) {
			continue
		}
		n := float64(cl.members)
		side := int(cl.sw/n + 0.5)
		r := Region{X: int(cl.sx/n + 0.5), Y: int(cl.sy/n + 0.5), W: side, H: side}
		if r.X < 0 {
			r.W += r.X
			r.X = 0
		}
		if r.Y < 0 {
			r.H += r.Y
			r.Y = 0
		}
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}
