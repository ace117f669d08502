// Package inference loads the artifacts written by a training run and maps
// feature rows back to skin-type labels.
//
// The model records the feature order it was fitted with. PredictFrame
// selects columns by those names, so the column order of the input file does
// not matter; Predict takes a matrix whose columns must already be in that
// order.
package inference

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skinml/core/model"
	"github.com/YuminosukeSato/skinml/dataset"
	"github.com/YuminosukeSato/skinml/pkg/errors"
	"github.com/YuminosukeSato/skinml/pkg/log"
	"github.com/YuminosukeSato/skinml/preprocessing"
	"github.com/YuminosukeSato/skinml/sklearn/ensemble"
)

// Predictor pairs a fitted forest with the label encoder it was trained
// against.
type Predictor struct {
	forest  *ensemble.RandomForestClassifier
	encoder *preprocessing.LabelEncoder
	logger  log.Logger
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithLogger sets the logger used for prediction records.
func WithLogger(logger log.Logger) Option {
	return func(p *Predictor) { p.logger = logger }
}

// Load reads the gob model at modelPath and the JSON encoder at encoderPath.
func Load(modelPath, encoderPath string, opts ...Option) (*Predictor, error) {
	forest := &ensemble.RandomForestClassifier{}
	if err := model.LoadModel(forest, modelPath); err != nil {
		return nil, err
	}
	encoder := preprocessing.NewLabelEncoder()
	if err := model.LoadJSON(encoder, encoderPath); err != nil {
		return nil, err
	}
	p, err := New(forest, encoder, opts...)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("artifacts loaded",
		log.OperationKey, log.OperationLoad,
		log.PathKey, modelPath,
		log.FeatureNamesKey, p.Features(),
		log.ClassesKey, encoder.Classes(),
	)
	return p, nil
}

// New checks that forest and encoder belong together and wraps them.
func New(forest *ensemble.RandomForestClassifier, encoder *preprocessing.LabelEncoder, opts ...Option) (*Predictor, error) {
	if !forest.IsFitted() {
		return nil, errors.NewNotFittedError("RandomForestClassifier", "inference.New")
	}
	if !encoder.IsFitted() {
		return nil, errors.NewNotFittedError("LabelEncoder", "inference.New")
	}
	if forest.NClasses() != encoder.NClasses() {
		return nil, errors.NewModelError("inference.New",
			fmt.Sprintf("model has %d classes but encoder has %d", forest.NClasses(), encoder.NClasses()), nil)
	}
	if len(forest.FeatureNamesIn()) != forest.NFeatures() {
		return nil, errors.NewModelError("inference.New", "model does not record its feature names", nil)
	}

	p := &Predictor{forest: forest, encoder: encoder, logger: log.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Features returns the feature names in the order the model expects.
func (p *Predictor) Features() []string {
	return p.forest.FeatureNamesIn()
}

// Classes returns the labels the model can predict.
func (p *Predictor) Classes() []string {
	return p.encoder.Classes()
}

func (p *Predictor) checkShape(X mat.Matrix) error {
	r, c := X.Dims()
	if want := p.forest.NFeatures(); c != want {
		return errors.NewInputShapeError("prediction", []int{r, want}, []int{r, c})
	}
	return nil
}

// Predict returns one label per row of X. Columns of X must follow Features().
func (p *Predictor) Predict(X mat.Matrix) ([]string, error) {
	if err := p.checkShape(X); err != nil {
		return nil, err
	}
	codes, err := p.forest.PredictCodes(X)
	if err != nil {
		return nil, err
	}
	labels, err := p.encoder.InverseTransform(codes)
	if err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	p.logger.Debug("predicted", log.OperationKey, log.OperationPredict, log.SamplesKey, r)
	return labels, nil
}

// PredictProba returns class probabilities; column k belongs to Classes()[k].
func (p *Predictor) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := p.checkShape(X); err != nil {
		return nil, err
	}
	return p.forest.PredictProba(X)
}

// PredictFrame selects the model's features from f by name and predicts.
func (p *Predictor) PredictFrame(f *dataset.Frame) ([]string, error) {
	X, err := f.Matrix(p.Features())
	if err != nil {
		return nil, err
	}
	return p.Predict(X)
}
