package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる。y は n×1 のクラス番号
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を n×1 行列で返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Estimator は学習状態を公開するモデル
type Estimator interface {
	IsFitted() bool
}

// Scorer is implemented by models that report a score on labelled data.
// Classifiers return mean accuracy.
type Scorer interface {
	Score(X, y mat.Matrix) float64
}

// Classifier combines interfaces for classification models.
type Classifier interface {
	Estimator
	Fitter
	Predictor
	Scorer

	// PredictProba returns an n×k matrix of class probabilities, columns
	// ordered by class index.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the class indices seen during fitting.
	Classes() []int
}

// FeatureImportancer is implemented by models that rank their input columns.
type FeatureImportancer interface {
	FeatureImportances() ([]float64, error)
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	// GetParams returns the model's hyperparameters.
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	// SetParams sets the model's hyperparameters.
	SetParams(params map[string]interface{}) error
}
