// Package model_selection provides reproducible train/test partitioning.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skinml/pkg/errors"
)

// Split holds the row indices of a train/test partition. Every row index in
// [0, n) appears in exactly one of the two slices.
type Split struct {
	Train []int
	Test  []int
}

type splitConfig struct {
	testSize    float64
	randomState int
	shuffle     bool
	stratify    []int
}

// SplitOption configures TrainTestSplit.
type SplitOption func(*splitConfig)

// WithTestSize sets the held-out fraction, in (0, 1). Default 0.25.
func WithTestSize(size float64) SplitOption {
	return func(c *splitConfig) { c.testSize = size }
}

// WithRandomState seeds the shuffle. Default 0.
func WithRandomState(seed int) SplitOption {
	return func(c *splitConfig) { c.randomState = seed }
}

// WithShuffle enables or disables shuffling. Without shuffling the last
// rows form the test set. Default true.
func WithShuffle(shuffle bool) SplitOption {
	return func(c *splitConfig) { c.shuffle = shuffle }
}

// WithStratify keeps class proportions of y (one class code per row) equal in
// both subsets, as far as integer counts allow.
func WithStratify(y []int) SplitOption {
	return func(c *splitConfig) { c.stratify = y }
}

// TrainTestSplit partitions nSamples rows. The test subset has
// ceil(nSamples*testSize) rows; the same options always yield the same split.
func TrainTestSplit(nSamples int, opts ...SplitOption) (*Split, error) {
	cfg := splitConfig{testSize: 0.25, shuffle: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.testSize <= 0 || cfg.testSize >= 1 || math.IsNaN(cfg.testSize) {
		return nil, errors.NewValidationError("test_size", "must be in (0, 1)", cfg.testSize)
	}
	nTest := TestCount(nSamples, cfg.testSize)
	nTrain := nSamples - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("with n_samples=%d and test_size=%g the train or test subset would be empty", nSamples, cfg.testSize))
	}

	if cfg.stratify != nil {
		return stratifiedSplit(nSamples, nTest, cfg)
	}

	if !cfg.shuffle {
		return &Split{
			Train: lo.Range(nTrain),
			Test:  lo.RangeFrom(nTrain, nTest),
		}, nil
	}

	perm := newRand(cfg.randomState).Perm(nSamples)
	return &Split{
		Train: perm[nTest:],
		Test:  perm[:nTest],
	}, nil
}

// TestCount returns ceil(nSamples*testSize). The product is nudged down by a
// small tolerance so that fractions like 0.2 of 20 give 4, not 5.
func TestCount(nSamples int, testSize float64) int {
	return int(math.Ceil(float64(nSamples)*testSize - 1e-9))
}

func stratifiedSplit(nSamples, nTest int, cfg splitConfig) (*Split, error) {
	if len(cfg.stratify) != nSamples {
		return nil, errors.NewDimensionError("TrainTestSplit", nSamples, len(cfg.stratify), 0)
	}
	if !cfg.shuffle {
		return nil, errors.NewValueError("TrainTestSplit", "stratified split requires shuffle")
	}

	groups := lo.GroupBy(lo.Range(nSamples), func(i int) int { return cfg.stratify[i] })
	classes := lo.Keys(groups)
	slices.Sort(classes)
	for _, c := range classes {
		if len(groups[c]) < 2 {
			return nil, errors.NewValueError("TrainTestSplit",
				fmt.Sprintf("class %d has %d member; stratification needs at least 2", c, len(groups[c])))
		}
	}
	if nTest < len(classes) || nSamples-nTest < len(classes) {
		return nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("test and train subsets must each hold at least one row of each of the %d classes", len(classes)))
	}

	counts := allocate(classes, groups, nSamples, nTest)

	r := newRand(cfg.randomState)
	split := &Split{}
	for k, c := range classes {
		members := slices.Clone(groups[c])
		r.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})
		split.Test = append(split.Test, members[:counts[k]]...)
		split.Train = append(split.Train, members[counts[k]:]...)
	}
	r.Shuffle(len(split.Test), func(i, j int) {
		split.Test[i], split.Test[j] = split.Test[j], split.Test[i]
	})
	r.Shuffle(len(split.Train), func(i, j int) {
		split.Train[i], split.Train[j] = split.Train[j], split.Train[i]
	})
	return split, nil
}

// allocate distributes nTest over classes proportionally using the largest
// remainder method, keeping at least one row per class on each side.
func allocate(classes []int, groups map[int][]int, nSamples, nTest int) []int {
	counts := make([]int, len(classes))
	remainders := make([]float64, len(classes))
	total := 0
	for k, c := range classes {
		exact := float64(len(groups[c])) * float64(nTest) / float64(nSamples)
		counts[k] = int(math.Floor(exact))
		remainders[k] = exact - float64(counts[k])
		total += counts[k]
	}

	order := lo.Range(len(classes))
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case remainders[a] > remainders[b]:
			return -1
		case remainders[a] < remainders[b]:
			return 1
		}
		return 0
	})
	for i := 0; total < nTest; i = (i + 1) % len(order) {
		k := order[i]
		if counts[k] < len(groups[classes[k]])-1 {
			counts[k]++
			total++
		}
	}

	// Guarantee one test row per class, taking from the largest allocations.
	for k := range counts {
		if counts[k] > 0 {
			continue
		}
		donor := lo.MaxBy(lo.Range(len(counts)), func(a, b int) bool { return counts[a] > counts[b] })
		counts[donor]--
		counts[k]++
	}
	return counts
}

func newRand(seed int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}

// TakeRows returns the rows of X at idx, in that order.
func TakeRows(X mat.Matrix, idx []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, row := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(row, j))
		}
	}
	return out
}

// Take returns s[idx[0]], s[idx[1]], ...
func Take[T any](s []T, idx []int) []T {
	return lo.Map(idx, func(i int, _ int) T { return s[i] })
}

// TakeVec returns the entries of y at idx as a new vector.
func TakeVec(y mat.Vector, idx []int) *mat.VecDense {
	out := mat.NewVecDense(len(idx), nil)
	for i, row := range idx {
		out.SetVec(i, y.AtVec(row))
	}
	return out
}
