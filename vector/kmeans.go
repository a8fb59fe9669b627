package vector

import (
	"math"
	"math/rand"
	"sort"
)

const kmeansMaxIter = 25

// trainKMeans runs Lloyd's algorithm with squared euclidean assignment.
// k is clamped to the number of training vectors.
func trainKMeans(vectors [][]float32, k int, seed int64) [][]float32 {
	n := len(vectors)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}

	dim := len(vectors[0])
	rng := rand.New(rand.NewSource(seed))

	centroids := make([][]float32, k)
	for i, p := range rng.Perm(n)[:k] {
		centroids[i] = copyVector(vectors[p])
	}

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}

	sums := make([][]float32, k)
	for j := range sums {
		sums[j] = make([]float32, dim)
	}
	counts := make([]int, k)

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, v := range vectors {
			c := nearestCentroid(v, centroids)
			if assignments[i] != c {
				assignments[i] = c
				changed = true
			}
		}

		if !changed {
			break
		}

		for j := range sums {
			clear(sums[j])
			counts[j] = 0
		}

		for i, v := range vectors {
			c := assignments[i]
			for d, x := range v {
				sums[c][d] += x
			}
			counts[c]++
		}

		for j := range centroids {
			if counts[j] == 0 {
				// empty cluster: reseed from a random point
				copy(centroids[j], vectors[rng.Intn(n)])
				continue
			}

			scale := 1 / float32(counts[j])
			for d := range centroids[j] {
				centroids[j][d] = sums[j][d] * scale
			}
		}
	}

	return centroids
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best := -1
	bestDist := float32(math.MaxFloat32)
	for j, c := range centroids {
		if d := squaredL2(v, c); d < bestDist {
			bestDist = d
			best = j
		}
	}
	return best
}

// closestCentroids returns the indices of the n nearest centroids.
func closestCentroids(query []float32, centroids [][]float32, n int) []int {
	if n > len(centroids) {
		n = len(centroids)
	}

	order := make([]int, len(centroids))
	dists := make([]float32, len(centroids))
	for j, c := range centroids {
		order[j] = j
		dists[j] = squaredL2(query, c)
	}

	sort.Slice(order, func(a, b int) bool {
		return dists[order[a]] < dists[order[b]]
	})

	return order[:n]
}
