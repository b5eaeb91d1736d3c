package vector

import (
	"container/heap"
	"math"
	"math/rand"
)

// leafSize is the maximum number of points held in a leaf node.
const leafSize = 16

// treeNode is one node of a randomized hyperplane-partition tree. Interior
// nodes hold a splitting hyperplane; leaves hold entry indices.
type treeNode struct {
	normal []float32
	offset float32
	left   *treeNode
	right  *treeNode
	items  []int
}

func (n *treeNode) leaf() bool {
	return n.left == nil && n.right == nil
}

// margin is the signed distance of v from the node's hyperplane.
func (n *treeNode) margin(v []float32) float32 {
	var dot float32
	for i, x := range n.normal {
		dot += x * v[i]
	}
	return dot - n.offset
}

// buildForest builds the configured number of trees over the entries.
// Each tree gets its own seeded RNG so a rebuild from the same seed and
// entries produces an identical forest.
func buildForest(entries []entry, dim, trees int, seed int64) []*treeNode {
	all := make([]int, len(entries))
	for i := range all {
		all[i] = i
	}

	forest := make([]*treeNode, trees)
	for t := 0; t < trees; t++ {
		rng := rand.New(rand.NewSource(seed + int64(t)*7919))
		items := make([]int, len(all))
		copy(items, all)
		forest[t] = buildTree(entries, items, dim, rng, 0)
	}
	return forest
}

func buildTree(entries []entry, items []int, dim int, rng *rand.Rand, depth int) *treeNode {
	if len(items) <= leafSize || depth > 32 {
		return &treeNode{items: items}
	}

	normal, offset, ok := pickSplit(entries, items, dim, rng)
	if !ok {
		return &treeNode{items: items}
	}

	node := &treeNode{normal: normal, offset: offset}
	var left, right []int
	for _, idx := range items {
		if node.margin(entries[idx].Vector) <= 0 {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	// A degenerate split means the points are indistinguishable under this
	// hyperplane; keep them together rather than recursing forever.
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{items: items}
	}

	node.left = buildTree(entries, left, dim, rng, depth+1)
	node.right = buildTree(entries, right, dim, rng, depth+1)
	return node
}

// pickSplit chooses a hyperplane through the midpoint of two random
// distinct points, the classic randomized-projection-tree split.
func pickSplit(entries []entry, items []int, dim int, rng *rand.Rand) ([]float32, float32, bool) {
	for attempt := 0; attempt < 4; attempt++ {
		a := entries[items[rng.Intn(len(items))]].Vector
		b := entries[items[rng.Intn(len(items))]].Vector

		normal := make([]float32, dim)
		var norm float64
		for i := range normal {
			normal[i] = a[i] - b[i]
			norm += float64(normal[i]) * float64(normal[i])
		}
		if norm == 0 {
			continue
		}
		inv := float32(1 / math.Sqrt(norm))
		var offset float32
		for i := range normal {
			normal[i] *= inv
			offset += normal[i] * (a[i] + b[i]) / 2
		}
		return normal, offset, true
	}
	return nil, 0, false
}

// nodeQueue is a max-heap of tree nodes ordered by traversal priority.
type queueItem struct {
	node     *treeNode
	priority float32
}

type nodeQueue []queueItem

func (q nodeQueue) Len() int            { return len(q) }
func (q nodeQueue) Less(i, j int) bool  { return q[i].priority > q[j].priority }
func (q nodeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)         { *q = append(*q, x.(queueItem)) }
func (q *nodeQueue) Pop() any           { old := *q; n := len(old); it := old[n-1]; *q = old[:n-1]; return it }

// searchForest collects candidate entry indices from every tree, visiting
// the most promising branches first until enough candidates are gathered.
func searchForest(forest []*treeNode, vec []float32, searchK, population int) map[int]struct{} {
	if searchK > population {
		searchK = population
	}

	candidates := make(map[int]struct{}, searchK)
	q := make(nodeQueue, 0, len(forest)*2)
	for _, root := range forest {
		heap.Push(&q, queueItem{node: root, priority: math.MaxFloat32})
	}

	for q.Len() > 0 && len(candidates) < searchK {
		it := heap.Pop(&q).(queueItem)
		node := it.node
		if node.leaf() {
			for _, idx := range node.items {
				candidates[idx] = struct{}{}
			}
			continue
		}

		m := node.margin(vec)
		near, far := node.left, node.right
		if m > 0 {
			near, far = node.right, node.left
		}
		dist := float32(math.Abs(float64(m)))
		heap.Push(&q, queueItem{node: near, priority: it.priority})
		heap.Push(&q, queueItem{node: far, priority: minf(it.priority, -dist)})
	}

	return candidates
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
