package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/skinml/core/model"
	"github.com/YuminosukeSato/skinml/metrics"
	"github.com/YuminosukeSato/skinml/pkg/errors"
)

func TestRankImportances(t *testing.T) {
	ranked, err := RankImportances(
		[]string{"sebum_level", "hydration_level", "pore_size", "acne_frequency"},
		[]float64{0.2, 0.5, 0.1, 0.2},
	)
	require.NoError(t, err)
	assert.Equal(t, []Importance{
		{"hydration_level", 0.5},
		{"sebum_level", 0.2},
		{"acne_frequency", 0.2},
		{"pore_size", 0.1},
	}, ranked)

	_, err = RankImportances([]string{"a"}, []float64{0.5, 0.5})
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestRender(t *testing.T) {
	cls, err := metrics.ClassificationReport([]int{0, 1, 1, 0}, []int{0, 1, 0, 0}, []string{"dry", "oily"})
	require.NoError(t, err)
	ranked := []Importance{{"sebum_level", 0.75}, {"hydration_level", 0.25}}

	var buf bytes.Buffer
	Render(&buf, Summary{
		RunID:     "run-1",
		DataPath:  "data.csv",
		Rows:      20,
		TrainRows: 16,
		TestRows:  4,
		Classes:   []string{"dry", "oily"},
		ModelPath: "model/model.gob",
		Accuracy:  0.75,
	}, cls, ranked)

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "20 (train 16, test 4)")
	assert.Contains(t, out, "dry, oily")
	assert.Contains(t, out, "0.7500")
	assert.Contains(t, out, "macro avg")
	assert.Contains(t, out, "sebum_level")
	assert.Contains(t, out, "75.0%")
}

func TestRender_WithoutOptionalSections(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, Summary{RunID: "run-2"}, nil, nil)
	assert.Contains(t, buf.String(), "run-2")
	assert.NotContains(t, buf.String(), "importance")
}

func TestStageImportancePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots", "importance.png")
	ranked := []Importance{{"sebum_level", 0.6}, {"hydration_level", 0.3}, {"pore_size", 0.1}}

	staged, err := StageImportancePlot(path, ranked)
	require.NoError(t, err)
	assert.NoFileExists(t, path)
	assert.Greater(t, staged.Size, int64(0))

	require.NoError(t, model.CommitAll(staged))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])
}

func TestImportancePlot_Empty(t *testing.T) {
	_, err := ImportancePlot(nil)
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))
}

func TestRenderPredictions(t *testing.T) {
	var buf bytes.Buffer
	RenderPredictions(&buf, nil, []string{"dry", "oily"})
	out := buf.String()
	assert.Contains(t, out, "skin_type")
	assert.Contains(t, out, "dry")
	assert.Contains(t, out, "oily")

	buf.Reset()
	RenderPredictions(&buf, []string{"alice"}, []string{"normal"})
	assert.Contains(t, buf.String(), "alice")
}
