package routing

import "github.com/citywalker/go-city-walker/internal/types"

const (
	// twoOptGainThreshold rejects swaps whose improvement is within
	// matrix noise.
	twoOptGainThreshold = -0.1
	twoOptMaxIterations = 100
)

// nearestNeighborOrder greedily builds a tour starting at start.
func nearestNeighborOrder(m *types.DistanceMatrix, start int) []int {
	n := len(m.Durations)
	order := make([]int, 0, n)
	visited := make([]bool, n)
	current := start
	order = append(order, current)
	visited[current] = true
	for len(order) < n {
		next, best := -1, 0.0
		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			if next == -1 || m.Durations[current][j] < best {
				next, best = j, m.Durations[current][j]
			}
		}
		order = append(order, next)
		visited[next] = true
		current = next
	}
	return order
}

func tourCost(m *types.DistanceMatrix, order []int) float64 {
	cost := 0.0
	for i := 0; i+1 < len(order); i++ {
		cost += m.Durations[order[i]][order[i+1]]
	}
	return cost
}

// twoOpt improves an open tour by reversing segments. A reversal is
// taken only when it saves more than the gain threshold, and the scan
// restarts after every accepted reversal, up to the iteration cap.
// When fixedStart is true the first stop never moves.
func twoOpt(m *types.DistanceMatrix, order []int, fixedStart bool) []int {
	n := len(order)
	if n < 3 {
		return order
	}
	first := 0
	if fixedStart {
		first = 1
	}
	for iter := 0; iter < twoOptMaxIterations; iter++ {
		improved := false
		for i := first; i < n-1 && !improved; i++ {
			for j := i + 1; j < n; j++ {
				delta := reversalDelta(m, order, i, j)
				if delta < twoOptGainThreshold {
					reverse(order, i, j)
					improved = true
					break
				}
			}
		}
		if !improved {
			break
		}
	}
	return order
}

// reversalDelta is the cost change of reversing order[i..j] in an open
// tour: only the edges entering i and leaving j change.
func reversalDelta(m *types.DistanceMatrix, order []int, i, j int) float64 {
	n := len(order)
	var delta float64
	if i > 0 {
		delta += m.Durations[order[i-1]][order[j]] - m.Durations[order[i-1]][order[i]]
	}
	if j < n-1 {
		delta += m.Durations[order[i]][order[j+1]] - m.Durations[order[j]][order[j+1]]
	}
	return delta
}

func reverse(order []int, i, j int) {
	for i < j {
		order[i], order[j] = order[j], order[i]
		i++
		j--
	}
}

// optimizeOrder returns a visiting order over the matrix indices. With
// seedStart >= 0 the tour is anchored there (the caller picked the POI
// nearest the user's starting point); otherwise nearest-neighbor runs
// from every start, each tour is refined, and the cheapest improved
// tour wins. Raw greedy cost is a bad predictor of post-refinement
// cost, so refinement cannot be deferred to a single winner.
func optimizeOrder(m *types.DistanceMatrix, seedStart int) []int {
	n := len(m.Durations)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []int{0}
	}
	if seedStart >= 0 {
		return twoOpt(m, nearestNeighborOrder(m, seedStart), true)
	}
	var best []int
	bestCost := 0.0
	for start := 0; start < n; start++ {
		order := twoOpt(m, nearestNeighborOrder(m, start), false)
		if cost := tourCost(m, order); best == nil || cost < bestCost {
			best, bestCost = order, cost
		}
	}
	return best
}
