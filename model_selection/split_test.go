package model_selection

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skinml/pkg/errors"
)

func assertPartition(t *testing.T, s *Split, n int) {
	t.Helper()
	all := append(slices.Clone(s.Train), s.Test...)
	slices.Sort(all)
	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, all)
}

func TestTrainTestSplit_Sizes(t *testing.T) {
	tests := []struct {
		n        int
		testSize float64
		wantTest int
	}{
		{n: 20, testSize: 0.2, wantTest: 4},
		{n: 10, testSize: 0.25, wantTest: 3},
		{n: 100, testSize: 0.2, wantTest: 20},
		{n: 7, testSize: 0.5, wantTest: 4},
		{n: 3, testSize: 0.1, wantTest: 1},
	}
	for _, tt := range tests {
		s, err := TrainTestSplit(tt.n, WithTestSize(tt.testSize), WithRandomState(42))
		require.NoError(t, err)
		assert.Len(t, s.Test, tt.wantTest, "n=%d test_size=%g", tt.n, tt.testSize)
		assert.Len(t, s.Train, tt.n-tt.wantTest)
		assertPartition(t, s, tt.n)
	}
}

func TestTrainTestSplit_Deterministic(t *testing.T) {
	a, err := TrainTestSplit(50, WithTestSize(0.2), WithRandomState(42))
	require.NoError(t, err)
	b, err := TrainTestSplit(50, WithTestSize(0.2), WithRandomState(42))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := TrainTestSplit(50, WithTestSize(0.2), WithRandomState(7))
	require.NoError(t, err)
	assert.NotEqual(t, a.Test, c.Test)
}

func TestTrainTestSplit_NoShuffle(t *testing.T) {
	s, err := TrainTestSplit(10, WithTestSize(0.2), WithShuffle(false))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, s.Train)
	assert.Equal(t, []int{8, 9}, s.Test)
}

func TestTrainTestSplit_Stratified(t *testing.T) {
	// 12 of class 0, 8 of class 1
	y := make([]int, 20)
	for i := 12; i < 20; i++ {
		y[i] = 1
	}

	s, err := TrainTestSplit(20, WithTestSize(0.25), WithRandomState(42), WithStratify(y))
	require.NoError(t, err)
	assertPartition(t, s, 20)
	require.Len(t, s.Test, 5)

	countOnes := func(idx []int) int {
		n := 0
		for _, i := range idx {
			n += y[i]
		}
		return n
	}
	assert.Equal(t, 2, countOnes(s.Test))
	assert.Equal(t, 6, countOnes(s.Train))

	again, err := TrainTestSplit(20, WithTestSize(0.25), WithRandomState(42), WithStratify(y))
	require.NoError(t, err)
	assert.Equal(t, s, again)
}

func TestTrainTestSplit_StratifiedEveryClassInTest(t *testing.T) {
	// a rare class still lands on both sides
	y := []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 2, 2}
	s, err := TrainTestSplit(len(y), WithTestSize(0.2), WithRandomState(1), WithStratify(y))
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, i := range s.Test {
		seen[y[i]] = true
	}
	assert.Len(t, seen, 3)
	assert.Len(t, s.Test, 4)
}

func TestTrainTestSplit_Errors(t *testing.T) {
	tests := []struct {
		name string
		n    int
		opts []SplitOption
	}{
		{name: "test size zero", n: 10, opts: []SplitOption{WithTestSize(0)}},
		{name: "test size one", n: 10, opts: []SplitOption{WithTestSize(1)}},
		{name: "single row", n: 1, opts: []SplitOption{WithTestSize(0.2)}},
		{name: "empty", n: 0, opts: nil},
		{name: "stratify length", n: 4, opts: []SplitOption{WithStratify([]int{0, 1})}},
		{name: "stratify singleton class", n: 4, opts: []SplitOption{WithStratify([]int{0, 0, 0, 1})}},
		{name: "stratify without shuffle", n: 4, opts: []SplitOption{WithShuffle(false), WithStratify([]int{0, 0, 1, 1})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TrainTestSplit(tt.n, tt.opts...)
			assert.Error(t, err)
		})
	}

	_, err := TrainTestSplit(10, WithTestSize(1.5))
	var vErr *errors.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestTakeHelpers(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	})
	sub := TakeRows(X, []int{2, 0})
	assert.Equal(t, []float64{5, 6, 1, 2}, sub.RawMatrix().Data)

	assert.Equal(t, []string{"c", "a"}, Take([]string{"a", "b", "c"}, []int{2, 0}))

	y := mat.NewVecDense(3, []float64{0, 1, 2})
	assert.Equal(t, []float64{1, 1}, TakeVec(y, []int{1, 1}).RawVector().Data)
}
