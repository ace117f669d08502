// Package trainer runs one training job: load the quiz dataset, encode the
// skin-type labels, hold out a test split, fit a random forest, evaluate it,
// and write the model and label encoder to disk.
//
// Every step fails fast with a typed error from pkg/errors. Nothing is
// written unless all steps before persistence succeed, and both artifacts are
// staged next to their targets before either is renamed into place.
package trainer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skinml/core/model"
	"github.com/YuminosukeSato/skinml/dataset"
	"github.com/YuminosukeSato/skinml/internal/config"
	"github.com/YuminosukeSato/skinml/internal/report"
	"github.com/YuminosukeSato/skinml/metrics"
	"github.com/YuminosukeSato/skinml/model_selection"
	"github.com/YuminosukeSato/skinml/pkg/errors"
	"github.com/YuminosukeSato/skinml/pkg/log"
	"github.com/YuminosukeSato/skinml/preprocessing"
	"github.com/YuminosukeSato/skinml/sklearn/ensemble"
)

// Result is what a successful run produced.
type Result struct {
	RunID string

	NRows  int
	NTrain int
	NTest  int

	Features []string
	Classes  []string

	Accuracy    float64
	Report      *metrics.Report
	Importances []report.Importance

	ModelPath   string
	EncoderPath string
	PlotPath    string

	Forest  *ensemble.RandomForestClassifier
	Encoder *preprocessing.LabelEncoder
}

// Summary returns the run overview used by the console report.
func (r *Result) Summary(dataPath string) report.Summary {
	return report.Summary{
		RunID:       r.RunID,
		DataPath:    dataPath,
		Rows:        r.NRows,
		TrainRows:   r.NTrain,
		TestRows:    r.NTest,
		Classes:     r.Classes,
		ModelPath:   r.ModelPath,
		EncoderPath: r.EncoderPath,
		Accuracy:    r.Accuracy,
	}
}

// Trainer executes training runs for a fixed configuration.
type Trainer struct {
	cfg    *config.Config
	logger log.Logger
	newID  func() string
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the logger. Each run adds its run id to every record.
func WithLogger(logger log.Logger) Option {
	return func(t *Trainer) { t.logger = logger }
}

// WithRunID overrides run id generation.
func WithRunID(newID func() string) Option {
	return func(t *Trainer) { t.newID = newID }
}

// New validates cfg and returns a Trainer for it.
func New(cfg *config.Config, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{
		cfg:    cfg,
		logger: log.Nop(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// run carries the state of one Run between steps.
type run struct {
	cfg    *config.Config
	logger log.Logger
	res    *Result

	frame *dataset.Frame
	X     *mat.Dense
	codes []int
	split *model_selection.Split
}

// Run trains once. ctx is checked between steps; a cancelled run writes
// nothing.
func (t *Trainer) Run(ctx context.Context) (res *Result, err error) {
	defer errors.Recover(&err, "trainer.Run")

	id := t.newID()
	r := &run{
		cfg:    t.cfg,
		logger: t.logger.With(log.RunIDKey, id),
		res: &Result{
			RunID:       id,
			Features:    append([]string(nil), t.cfg.Features...),
			ModelPath:   t.cfg.ModelPath,
			EncoderPath: t.cfg.EncoderPath,
			PlotPath:    t.cfg.Report.ImportancePlot,
		},
	}

	start := time.Now()
	r.logger.Info("training run started",
		log.PathKey, t.cfg.DataPath,
		log.FeatureNamesKey, t.cfg.Features,
		log.RandomSeedKey, t.cfg.Split.RandomState,
	)

	steps := []struct {
		op string
		fn func() error
	}{
		{log.OperationLoad, r.load},
		{log.OperationEncode, r.encode},
		{log.OperationSplit, r.splitRows},
		{log.OperationFit, r.fit},
		{log.OperationEvaluate, r.evaluate},
		{log.OperationPersist, r.persist},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "training run cancelled before %s", step.op)
		}
		if err := step.fn(); err != nil {
			r.logger.Error("training step failed", err, log.OperationKey, step.op)
			return nil, err
		}
	}

	r.logger.Info("training run finished",
		log.AccuracyKey, r.res.Accuracy,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return r.res, nil
}

func (r *run) load() error {
	frame, err := dataset.ReadCSV(r.cfg.DataPath)
	if err != nil {
		return err
	}
	X, err := frame.Matrix(r.cfg.Features)
	if err != nil {
		return err
	}
	r.frame = frame
	r.X = X
	r.res.NRows = frame.NRows()
	r.logger.Info("dataset loaded",
		log.OperationKey, log.OperationLoad,
		log.SamplesKey, frame.NRows(),
		log.FeaturesKey, len(r.cfg.Features),
	)
	return nil
}

func (r *run) encode() error {
	labels, ok := r.frame.Column(r.cfg.LabelColumn)
	if !ok {
		return errors.NewEncodingError(r.cfg.LabelColumn, "label column not found")
	}
	enc := preprocessing.NewLabelEncoder(preprocessing.WithColumn(r.cfg.LabelColumn))
	codes, err := enc.FitTransform(labels)
	if err != nil {
		return err
	}
	r.codes = codes
	r.res.Encoder = enc
	r.res.Classes = enc.Classes()
	r.logger.Info("labels encoded",
		log.OperationKey, log.OperationEncode,
		log.ClassesKey, enc.Classes(),
	)
	return nil
}

func (r *run) splitRows() error {
	sc := r.cfg.Split
	opts := []model_selection.SplitOption{
		model_selection.WithTestSize(sc.TestSize),
		model_selection.WithRandomState(sc.RandomState),
		model_selection.WithShuffle(sc.Shuffle),
	}
	if sc.Stratify {
		opts = append(opts, model_selection.WithStratify(r.codes))
	}
	split, err := model_selection.TrainTestSplit(len(r.codes), opts...)
	if err != nil {
		return err
	}
	r.split = split
	r.res.NTrain = len(split.Train)
	r.res.NTest = len(split.Test)
	r.logger.Info("dataset split",
		log.OperationKey, log.OperationSplit,
		log.TrainSamplesKey, len(split.Train),
		log.TestSamplesKey, len(split.Test),
	)
	return nil
}

// forestOptions maps the forest section of the configuration onto the
// estimator's options.
func forestOptions(fc config.ForestConfig) []ensemble.Option {
	return []ensemble.Option{
		ensemble.WithNEstimators(fc.NEstimators),
		ensemble.WithCriterion(fc.Criterion),
		ensemble.WithMaxDepth(fc.MaxDepth),
		ensemble.WithMinSamplesSplit(fc.MinSamplesSplit),
		ensemble.WithMinSamplesLeaf(fc.MinSamplesLeaf),
		ensemble.WithMaxFeatures(fc.MaxFeatures),
		ensemble.WithBootstrap(fc.Bootstrap),
		ensemble.WithRandomState(fc.RandomState),
		ensemble.WithNJobs(fc.NJobs),
	}
}

func (r *run) fit() error {
	opts := append(forestOptions(r.cfg.Forest),
		ensemble.WithFeatureNames(r.cfg.Features),
		ensemble.WithLogger(r.logger),
	)
	forest := ensemble.NewRandomForestClassifier(opts...)

	XTrain := model_selection.TakeRows(r.X, r.split.Train)
	yTrain := model_selection.Take(r.codes, r.split.Train)
	if err := forest.FitClasses(XTrain, yTrain, r.res.Encoder.NClasses()); err != nil {
		return err
	}
	r.res.Forest = forest
	return nil
}

func (r *run) evaluate() error {
	XTest := model_selection.TakeRows(r.X, r.split.Test)
	yTest := model_selection.Take(r.codes, r.split.Test)
	pred, err := r.res.Forest.PredictCodes(XTest)
	if err != nil {
		return err
	}
	cls, err := metrics.ClassificationReport(yTest, pred, r.res.Classes)
	if err != nil {
		return err
	}
	r.res.Report = cls
	r.res.Accuracy = cls.Accuracy

	importances, err := r.res.Forest.FeatureImportances()
	if err != nil {
		return err
	}
	ranked, err := report.RankImportances(r.cfg.Features, importances)
	if err != nil {
		return err
	}
	r.res.Importances = ranked

	r.logger.Info("model evaluated",
		log.OperationKey, log.OperationEvaluate,
		log.PhaseKey, log.PhaseValidation,
		log.AccuracyKey, cls.Accuracy,
		log.MacroF1Key, cls.MacroAvg.F1,
		log.WeightedF1Key, cls.WeightedAvg.F1,
	)
	for i, imp := range ranked {
		r.logger.Debug("feature importance",
			"rank", i+1,
			"feature", imp.Feature,
			"importance", imp.Value,
		)
	}
	return nil
}

// persist stages every artifact first and renames them only once all are
// written, so a failed encode leaves the previous artifacts in place.
func (r *run) persist() error {
	var staged []*model.StagedFile
	stage := func(f *model.StagedFile, err error) error {
		if err != nil {
			model.DiscardAll(staged...)
			return err
		}
		staged = append(staged, f)
		return nil
	}

	if err := stage(model.StageGob(r.cfg.ModelPath, r.res.Forest)); err != nil {
		return err
	}
	if err := stage(model.StageJSON(r.cfg.EncoderPath, r.res.Encoder)); err != nil {
		return err
	}
	if path := r.cfg.Report.ImportancePlot; path != "" {
		if err := stage(report.StageImportancePlot(path, r.res.Importances)); err != nil {
			return err
		}
	}

	if err := model.CommitAll(staged...); err != nil {
		return err
	}
	for _, f := range staged {
		r.logger.Info("artifact written",
			log.OperationKey, log.OperationPersist,
			log.PathKey, f.Path,
			log.BytesKey, f.Size,
		)
	}
	return nil
}
