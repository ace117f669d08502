package preprocessing

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/skinml/core/model"
	"github.com/YuminosukeSato/skinml/pkg/errors"
)

func TestLabelEncoder_FitTransform(t *testing.T) {
	labels := []string{"oily", "dry", "combination", "oily", "normal", "sensitive", "dry"}

	enc := NewLabelEncoder(WithColumn("skin_type"))
	codes, err := enc.FitTransform(labels)
	require.NoError(t, err)

	assert.Equal(t, []string{"combination", "dry", "normal", "oily", "sensitive"}, enc.Classes())
	assert.Equal(t, 5, enc.NClasses())
	assert.Equal(t, []int{3, 1, 0, 3, 2, 4, 1}, codes)

	back, err := enc.InverseTransform(codes)
	require.NoError(t, err)
	assert.Equal(t, labels, back)
}

func TestLabelEncoder_EveryCodeUsed(t *testing.T) {
	labels := []string{"b", "a", "c", "a", "b", "d"}

	enc := NewLabelEncoder()
	codes, err := enc.FitTransform(labels)
	require.NoError(t, err)

	used := make(map[int]int)
	for _, c := range codes {
		used[c]++
	}
	assert.Len(t, used, enc.NClasses())
	for code := 0; code < enc.NClasses(); code++ {
		assert.Positive(t, used[code], "code %d", code)
	}
}

func TestLabelEncoder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		row    int
	}{
		{name: "no labels", labels: nil},
		{name: "all empty", labels: []string{"", "", ""}, row: 1},
		{name: "one empty", labels: []string{"dry", "oily", ""}, row: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := NewLabelEncoder(WithColumn("skin_type"))
			err := enc.Fit(tt.labels)

			var encErr *errors.EncodingError
			require.True(t, errors.As(err, &encErr), "got %v", err)
			assert.Equal(t, "skin_type", encErr.Column)
			assert.Equal(t, tt.row, encErr.Row)
			assert.False(t, enc.IsFitted())
		})
	}
}

func TestLabelEncoder_UnknownLabel(t *testing.T) {
	enc := NewLabelEncoder()
	require.NoError(t, enc.Fit([]string{"dry", "oily"}))

	_, err := enc.Transform([]string{"dry", "normal"})
	var encErr *errors.EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, 2, encErr.Row)
	assert.Contains(t, err.Error(), `unknown label "normal"`)
}

func TestLabelEncoder_InverseOutOfRange(t *testing.T) {
	enc := NewLabelEncoder()
	require.NoError(t, enc.Fit([]string{"dry", "oily"}))

	_, err := enc.InverseTransform([]int{0, 2})
	var valErr *errors.ValueError
	assert.True(t, errors.As(err, &valErr))

	_, err = enc.InverseTransform([]int{-1})
	assert.Error(t, err)
}

func TestLabelEncoder_NotFitted(t *testing.T) {
	enc := NewLabelEncoder()

	_, err := enc.Transform([]string{"dry"})
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	_, err = json.Marshal(enc)
	assert.Error(t, err)
}

func TestLabelEncoder_TransformVec(t *testing.T) {
	enc := NewLabelEncoder()
	require.NoError(t, enc.Fit([]string{"dry", "oily"}))

	y, err := enc.TransformVec([]string{"oily", "dry", "oily"})
	require.NoError(t, err)
	r, c := y.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 1, c)
	assert.Equal(t, 1.0, y.AtVec(0))
	assert.Equal(t, 0.0, y.AtVec(1))
}

func TestLabelEncoder_JSON(t *testing.T) {
	enc := NewLabelEncoder()
	require.NoError(t, enc.Fit([]string{"oily", "dry", "normal"}))

	raw, err := json.Marshal(enc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"classes":["dry","normal","oily"]}`, string(raw))

	restored := NewLabelEncoder()
	require.NoError(t, json.Unmarshal(raw, restored))
	assert.True(t, restored.IsFitted())
	assert.Equal(t, enc.Classes(), restored.Classes())

	codes, err := restored.Transform([]string{"normal"})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, codes)
}

func TestLabelEncoder_JSONRejectsBadClasses(t *testing.T) {
	for _, raw := range []string{
		`{"classes":[]}`,
		`{"classes":["oily","dry"]}`,
		`{"classes":["dry","dry"]}`,
		`{"classes":["","dry"]}`,
	} {
		enc := NewLabelEncoder()
		assert.Error(t, json.Unmarshal([]byte(raw), enc), raw)
	}
}

func TestLabelEncoder_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model", "label_encoder.json")

	enc := NewLabelEncoder()
	require.NoError(t, enc.Fit([]string{"dry", "oily", "combination"}))
	require.NoError(t, model.SaveJSON(enc, path))

	loaded := NewLabelEncoder()
	require.NoError(t, model.LoadJSON(loaded, path))
	assert.Equal(t, []string{"combination", "dry", "oily"}, loaded.Classes())
}
