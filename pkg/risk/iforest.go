package risk

import (
	"math"
	"math/rand"
)

// IsolationForest is a lightweight ensemble-of-random-partitions outlier
// estimator suitable for small to medium cohorts. Trees are built to a
// height limit and points are scored by average path length. Randomness
// comes exclusively from the injected source so fitted forests are
// reproducible for a given seed.
type IsolationForest struct {
	Trees      []*iTree `json:"trees"`
	NumTrees   int      `json:"num_trees"`
	SampleSize int      `json:"sample_size"`
	HeightLim  int      `json:"height_limit"`
}

type iTree struct {
	Root *iNode `json:"root"`
}

type iNode struct {
	Leaf     bool    `json:"leaf"`
	Size     int     `json:"size,omitempty"`
	Dim      int     `json:"dim,omitempty"`
	SplitVal float64 `json:"split_val,omitempty"`
	Left     *iNode  `json:"left,omitempty"`
	Right    *iNode  `json:"right,omitempty"`
}

func newIsolationForest(numTrees, sampleSize int) *IsolationForest {
	if numTrees <= 0 {
		numTrees = 100
	}
	if sampleSize <= 0 {
		sampleSize = 256
	}
	return &IsolationForest{
		NumTrees:   numTrees,
		SampleSize: sampleSize,
		HeightLim:  int(math.Ceil(math.Log2(float64(sampleSize)))),
	}
}

// Fit builds the forest over X using rng for subsampling and splits.
func (f *IsolationForest) Fit(X [][]float64, rng *rand.Rand) {
	f.Trees = make([]*iTree, f.NumTrees)
	n := len(X)
	m := f.SampleSize
	if m > n {
		m = n
	}
	for i := 0; i < f.NumTrees; i++ {
		idxs := rng.Perm(n)
		sample := make([][]float64, m)
		for j := 0; j < m; j++ {
			sample[j] = X[idxs[j]]
		}
		f.Trees[i] = &iTree{Root: buildITree(sample, 0, f.HeightLim, rng)}
	}
}

func buildITree(X [][]float64, h, hlim int, rng *rand.Rand) *iNode {
	if len(X) <= 1 || h >= hlim {
		return &iNode{Leaf: true, Size: len(X)}
	}
	d := len(X[0])
	dim := rng.Intn(d)
	minv, maxv := X[0][dim], X[0][dim]
	for i := 1; i < len(X); i++ {
		v := X[i][dim]
		if v < minv {
			minv = v
		}
		if v > maxv {
			maxv = v
		}
	}
	if minv == maxv { // cannot split further on this dim
		return &iNode{Leaf: true, Size: len(X)}
	}
	split := minv + rng.Float64()*(maxv-minv)
	left := make([][]float64, 0, len(X))
	right := make([][]float64, 0, len(X))
	for _, row := range X {
		if row[dim] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &iNode{Leaf: true, Size: len(X)}
	}
	return &iNode{
		Dim:      dim,
		SplitVal: split,
		Left:     buildITree(left, h+1, hlim, rng),
		Right:    buildITree(right, h+1, hlim, rng),
	}
}

// cFactor is c(n): the average path length of an unsuccessful BST search,
// used to normalize path lengths.
func cFactor(n int) float64 {
	if n <= 1 {
		return 0
	}
	return 2.0*(math.Log(float64(n-1))+0.5772156649) - 2.0*float64(n-1)/float64(n)
}

func iPathLength(node *iNode, x []float64, h int) float64 {
	if node.Leaf {
		if node.Size <= 1 {
			return float64(h)
		}
		return float64(h) + cFactor(node.Size)
	}
	if x[node.Dim] < node.SplitVal {
		return iPathLength(node.Left, x, h+1)
	}
	return iPathLength(node.Right, x, h+1)
}

// Score returns an anomaly score in [0,1]; higher means more isolated.
func (f *IsolationForest) Score(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, t := range f.Trees {
		sum += iPathLength(t.Root, x, 0)
	}
	avg := sum / float64(len(f.Trees))
	c := cFactor(f.SampleSize)
	if c <= 0 {
		c = 1
	}
	return math.Pow(2, -avg/c)
}
