package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/skinml/pkg/errors"
)

func TestStateManager(t *testing.T) {
	s := NewStateManager("DecisionTreeClassifier")
	assert.False(t, s.IsFitted())

	err := s.RequireFitted("Predict")
	var nf *errors.NotFittedError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "DecisionTreeClassifier", nf.ModelName)
	assert.Equal(t, "Predict", nf.Method)

	s.SetFitted(7, 16)
	assert.True(t, s.IsFitted())
	assert.NoError(t, s.RequireFeatures("Predict", 7))

	err = s.RequireFeatures("Predict", 6)
	var dim *errors.DimensionError
	require.True(t, errors.As(err, &dim))
	assert.Equal(t, 7, dim.Expected)
	assert.Equal(t, 6, dim.Got)

	state := s.GetState()
	assert.Equal(t, ModelState{Fitted: true, NFeatures: 7, NSamples: 16}, state)

	s.Reset()
	assert.False(t, s.IsFitted())

	s.SetState(state)
	nFeatures, nSamples := s.GetDimensions()
	assert.Equal(t, 7, nFeatures)
	assert.Equal(t, 16, nSamples)
}

func TestBaseEstimator(t *testing.T) {
	var b BaseEstimator
	assert.Error(t, b.RequireFitted("LabelEncoder", "Transform"))

	b.SetFitted()
	assert.True(t, b.IsFitted())
	assert.NoError(t, b.RequireFitted("LabelEncoder", "Transform"))

	b.Reset()
	assert.False(t, b.IsFitted())
}
