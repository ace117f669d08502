package tree

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skinml/pkg/errors"
)

func separable() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(6, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		2, 2,
		2, 3,
		3, 2,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	return X, y
}

func assertProbaRows(t *testing.T, probas mat.Matrix) {
	t.Helper()
	rows, cols := probas.Dims()
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			p := probas.At(i, j)
			assert.True(t, p >= 0 && p <= 1, "invalid probability at (%d, %d): %v", i, j, p)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "row %d", i)
	}
}

func TestDecisionTreeClassifier_FitPredict_Binary(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
		3, 3,
		3, 4,
		4, 3,
		4, 4,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	dt := NewDecisionTreeClassifier(WithCriterion("gini"), WithMaxDepth(5))
	require.NoError(t, dt.Fit(X, y))

	predictions, err := dt.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		assert.Equal(t, y.At(i, 0), predictions.At(i, 0), "sample %d", i)
	}

	XTest := mat.NewDense(2, 2, []float64{
		0.5, 0.5,
		3.5, 3.5,
	})
	testPreds, err := dt.Predict(XTest)
	require.NoError(t, err)
	assert.Equal(t, 0.0, testPreds.At(0, 0))
	assert.Equal(t, 1.0, testPreds.At(1, 0))

	// one split at the midpoint between the groups
	assert.Equal(t, 1, dt.GetDepth())
	assert.Equal(t, 2, dt.GetNLeaves())
	assert.Equal(t, 2.0, dt.Nodes()[0].Threshold)
}

func TestDecisionTreeClassifier_PredictProba(t *testing.T) {
	X, y := separable()

	dt := NewDecisionTreeClassifier(WithMaxDepth(3))
	require.NoError(t, dt.Fit(X, y))

	probas, err := dt.PredictProba(X)
	require.NoError(t, err)

	rows, cols := probas.Dims()
	assert.Equal(t, 6, rows)
	assert.Equal(t, 2, cols)
	assertProbaRows(t, probas)
}

func TestDecisionTreeClassifier_Score(t *testing.T) {
	// XOR-like pattern: class 0 when both features are low or both high
	X := mat.NewDense(8, 2, []float64{
		0.0, 0.0,
		0.0, 0.1,
		0.1, 1.0,
		0.0, 0.9,
		1.0, 0.0,
		0.9, 0.0,
		1.0, 1.0,
		0.9, 0.9,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 1, 1, 1, 1, 0, 0})

	dt := NewDecisionTreeClassifier(WithMaxDepth(5), WithMinSamplesLeaf(1))
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, 1.0, dt.Score(X, y))

	XSimple, ySimple := separable()
	dtSimple := NewDecisionTreeClassifier(WithMaxDepth(3))
	require.NoError(t, dtSimple.Fit(XSimple, ySimple))
	assert.Equal(t, 1.0, dtSimple.Score(XSimple, ySimple))
}

func TestDecisionTreeClassifier_Multiclass(t *testing.T) {
	X := mat.NewDense(9, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		3, 3,
		3, 4,
		4, 3,
		6, 6,
		6, 7,
		7, 6,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	dt := NewDecisionTreeClassifier(WithCriterion("gini"), WithMaxDepth(5))
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, 3, dt.nClasses_)
	assert.Equal(t, 1.0, dt.Score(X, y))

	probas, err := dt.PredictProba(X)
	require.NoError(t, err)
	_, cols := probas.Dims()
	require.Equal(t, 3, cols)
	assertProbaRows(t, probas)

	for i := 0; i < 9; i++ {
		row := mat.Row(nil, i, probas)
		assert.Equal(t, int(y.At(i, 0)), argmax(row), "sample %d", i)
	}
}

func TestDecisionTreeClassifier_NonContiguousLabels(t *testing.T) {
	X, _ := separable()
	y := mat.NewDense(6, 1, []float64{3, 3, 3, 7, 7, 7})

	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, []int{3, 7}, dt.Classes())

	pred, err := dt.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, 3.0, pred.At(0, 0))
	assert.Equal(t, 7.0, pred.At(5, 0))
}

func TestDecisionTreeClassifier_Entropy(t *testing.T) {
	X, y := separable()

	dt := NewDecisionTreeClassifier(WithCriterion("entropy"), WithMaxDepth(3))
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, 1.0, dt.Score(X, y))
	// a balanced binary root has one bit of entropy
	assert.InDelta(t, 1.0, dt.Nodes()[0].Impurity, 1e-12)
}

func TestDecisionTreeClassifier_FeatureImportance(t *testing.T) {
	// feature 0 determines the class
	X := mat.NewDense(8, 3, []float64{
		0, 0, 0,
		0, 1, 1,
		0, 0, 1,
		0, 1, 0,
		1, 0, 0,
		1, 1, 1,
		1, 0, 1,
		1, 1, 0,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	importances := dt.GetFeatureImportances()
	require.Len(t, importances, 3)
	assert.Greater(t, importances[0], importances[1])
	assert.Greater(t, importances[0], importances[2])

	sum := 0.0
	for _, imp := range importances {
		sum += imp
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestDecisionTreeClassifier_SingleLeaf(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	y := mat.NewDense(3, 1, []float64{1, 1, 1})

	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, 0, dt.GetDepth())
	assert.Equal(t, 1, dt.GetNLeaves())
	assert.Equal(t, []float64{0, 0}, dt.GetFeatureImportances())
}

func TestDecisionTreeClassifier_MaxDepth(t *testing.T) {
	X := mat.NewDense(16, 2, nil)
	y := mat.NewDense(16, 1, nil)
	for i := 0; i < 16; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%4))
		y.Set(i, 0, float64(i%2))
	}

	dt := NewDecisionTreeClassifier(WithMaxDepth(2))
	require.NoError(t, dt.Fit(X, y))
	assert.LessOrEqual(t, dt.GetDepth(), 2)
	assert.LessOrEqual(t, dt.GetNLeaves(), 4)
}

func TestDecisionTreeClassifier_MinSamples(t *testing.T) {
	X := mat.NewDense(10, 2, nil)
	y := mat.NewDense(10, 1, nil)
	for i := 0; i < 10; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%3))
		y.Set(i, 0, float64(i%2))
	}

	dt := NewDecisionTreeClassifier(WithMinSamplesSplit(5), WithMinSamplesLeaf(2))
	require.NoError(t, dt.Fit(X, y))
	assert.LessOrEqual(t, dt.GetNLeaves(), 5)

	for _, node := range dt.Nodes() {
		if node.IsLeaf() {
			assert.GreaterOrEqual(t, node.NSamples, 2)
		} else {
			assert.GreaterOrEqual(t, node.NSamples, 5)
		}
	}
}

func TestDecisionTreeClassifier_MinImpurityDecrease(t *testing.T) {
	X := mat.NewDense(16, 2, nil)
	y := mat.NewDense(16, 1, nil)
	for i := 0; i < 16; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%4))
		y.Set(i, 0, float64(i%2))
	}

	dt := NewDecisionTreeClassifier(WithMinImpurityDecrease(0.6))
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, 1, dt.GetNLeaves())
}

func TestDecisionTreeClassifier_FitSamples(t *testing.T) {
	X, _ := separable()
	y := []int{0, 0, 0, 1, 1, 1}

	// the bootstrap sample only contains class 0
	dt := NewDecisionTreeClassifier(WithRandomState(3))
	require.NoError(t, dt.FitSamples(X, y, 3, []int{0, 1, 1, 2}))

	assert.Equal(t, []int{0, 1, 2}, dt.Classes())
	probas, err := dt.PredictProba(X)
	require.NoError(t, err)
	_, cols := probas.Dims()
	assert.Equal(t, 3, cols)
	assert.Equal(t, 1.0, probas.At(5, 0))

	_, nSamples := dt.state.GetDimensions()
	assert.Equal(t, 4, nSamples)

	assert.Error(t, dt.FitSamples(X, y, 3, []int{6}))
	assert.Error(t, dt.FitSamples(X, []int{0, 0, 0, 1, 1, 5}, 3, []int{0}))
}

func TestDecisionTreeClassifier_Deterministic(t *testing.T) {
	X := mat.NewDense(40, 4, nil)
	y := mat.NewDense(40, 1, nil)
	for i := 0; i < 40; i++ {
		for j := 0; j < 4; j++ {
			X.Set(i, j, math.Mod(float64(i*(j+3)), 7))
		}
		y.Set(i, 0, float64((i*5)%3))
	}

	fit := func() []Node {
		dt := NewDecisionTreeClassifier(WithMaxFeatures(2), WithRandomState(11))
		require.NoError(t, dt.Fit(X, y))
		return dt.Nodes()
	}
	assert.Equal(t, fit(), fit())
}

func TestDecisionTreeClassifier_GetSetParams(t *testing.T) {
	dt := NewDecisionTreeClassifier()

	params := dt.GetParams()
	assert.Equal(t, "gini", params["criterion"])
	assert.Equal(t, 2, params["min_samples_split"])
	assert.Equal(t, 0, params["max_depth"])

	err := dt.SetParams(map[string]interface{}{
		"criterion":         "entropy",
		"max_depth":         5,
		"min_samples_split": 4,
		"min_samples_leaf":  2.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "entropy", dt.criterion)
	assert.Equal(t, 5, dt.maxDepth)
	assert.Equal(t, 4, dt.minSamplesSplit)
	assert.Equal(t, 2, dt.minSamplesLeaf)

	for _, bad := range []map[string]interface{}{
		{"criterion": "log_loss"},
		{"min_samples_split": 1},
		{"max_depth": 2.5},
		{"splitter": "random"},
	} {
		err := dt.SetParams(bad)
		var vErr *errors.ValidationError
		assert.True(t, errors.As(err, &vErr), "%v", bad)
	}
	assert.Equal(t, "entropy", dt.criterion, "rejected params must not leak")
}

func TestDecisionTreeClassifier_NotFitted(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})

	_, err := dt.Predict(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	_, err = dt.PredictProba(X)
	assert.Error(t, err)
	assert.Equal(t, 0.0, dt.Score(X, mat.NewDense(2, 1, nil)))
}

func TestDecisionTreeClassifier_WrongWidth(t *testing.T) {
	X, y := separable()
	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	_, err := dt.Predict(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestDecisionTreeClassifier_InvalidInput(t *testing.T) {
	X, _ := separable()
	dt := NewDecisionTreeClassifier()

	assert.Error(t, dt.Fit(X, mat.NewDense(5, 1, nil)))
	assert.Error(t, dt.Fit(X, mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, -1})))
	assert.Error(t, dt.Fit(X, mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 0.5})))
}

func TestDecisionTreeClassifier_Gob(t *testing.T) {
	X, y := separable()
	dt := NewDecisionTreeClassifier(WithCriterion("entropy"), WithRandomState(9))
	require.NoError(t, dt.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(dt))

	restored := &DecisionTreeClassifier{}
	require.NoError(t, gob.NewDecoder(&buf).Decode(restored))

	assert.True(t, restored.IsFitted())
	assert.Equal(t, dt.GetParams(), restored.GetParams())
	assert.Equal(t, dt.Nodes(), restored.Nodes())

	want, err := dt.PredictProba(X)
	require.NoError(t, err)
	got, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func BenchmarkDecisionTreeClassifier_Fit(b *testing.B) {
	n, d := 1000, 7
	X := mat.NewDense(n, d, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			X.Set(i, j, math.Mod(float64(i*(j+7)), 11))
		}
		y.Set(i, 0, float64(i%5))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dt := NewDecisionTreeClassifier(WithRandomState(i))
		_ = dt.Fit(X, y)
	}
}
