package inference

import "math"

// Distance calculates the Dynamic Time Warping distance between two feature
// sequences using Euclidean row distance. Returns infinity if either
// sequence is empty. The distance is normalized by the longer length.
func Distance(a, b [][]float64) float64 {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return math.Inf(1)
	}

	// Two rolling rows of the (n+1) x (m+1) cost matrix.
	prev := make([]float64, m+1)
	curr := make([]float64, m+1)
	for j := range prev {
		prev[j] = math.Inf(1)
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		curr[0] = math.Inf(1)
		for j := 1; j <= m; j++ {
			cost := rowDistance(a[i-1], b[j-1])
			curr[j] = cost + min(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}

	return prev[m] / float64(max(n, m))
}

// rowDistance is the Euclidean distance over the shared columns.
func rowDistance(a, b []float64) float64 {
	var sum float64
	for k := range min(len(a), len(b)) {
		d := a[k] - b[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}
