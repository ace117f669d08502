// Package ensemble provides bagged tree ensembles.
package ensemble

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skinml/core/model"
	"github.com/YuminosukeSato/skinml/core/parallel"
	"github.com/YuminosukeSato/skinml/metrics"
	"github.com/YuminosukeSato/skinml/pkg/errors"
	"github.com/YuminosukeSato/skinml/pkg/log"
	"github.com/YuminosukeSato/skinml/sklearn/tree"
)

const (
	MaxFeaturesSqrt = "sqrt"
	MaxFeaturesLog2 = "log2"
	MaxFeaturesAll  = "all"

	// bootstrapStream separates the bootstrap draws of a tree from the
	// feature permutations the tree draws from the same seed.
	bootstrapStream = 0x9e3779b97f4a7c15
)

// RandomForestClassifier is a scikit-learn style random forest: each tree is
// fitted on a bootstrap sample with a random subset of features examined at
// every split, and predictions average the trees' class distributions.
type RandomForestClassifier struct {
	state  *model.StateManager
	logger log.Logger

	// Hyperparameters
	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string
	bootstrap       bool
	randomState     int
	nJobs           int

	// Learned attributes
	featureNamesIn      []string
	nClasses_           int
	nFeatures_          int
	estimators          []*tree.DecisionTreeClassifier
	featureImportances_ []float64
}

var (
	_ model.Classifier         = (*RandomForestClassifier)(nil)
	_ model.FeatureImportancer = (*RandomForestClassifier)(nil)
	_ model.ParameterGetter    = (*RandomForestClassifier)(nil)
	_ model.ParameterSetter    = (*RandomForestClassifier)(nil)
)

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion sets the split criterion, "gini" or "entropy".
func WithCriterion(criterion string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = criterion }
}

// WithMaxDepth limits tree depth; 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum node size that may be split.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum leaf size.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the per-split feature budget: "sqrt", "log2" or "all".
func WithMaxFeatures(rule string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = rule }
}

// WithBootstrap toggles bootstrap sampling. Without it every tree sees all rows.
func WithBootstrap(bootstrap bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = bootstrap }
}

// WithRandomState seeds the forest.
func WithRandomState(seed int) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs sets how many trees are fitted concurrently. Values below 1 use
// every CPU. The fitted forest does not depend on this setting.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// WithFeatureNames records the column names of X, in order.
func WithFeatureNames(names []string) Option {
	return func(rf *RandomForestClassifier) { rf.featureNamesIn = slices.Clone(names) }
}

// WithLogger sets the logger used during fitting.
func WithLogger(logger log.Logger) Option {
	return func(rf *RandomForestClassifier) { rf.logger = logger }
}

// NewRandomForestClassifier creates a forest with scikit-learn defaults and
// random_state 42.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager("RandomForestClassifier"),
		logger:          log.Nop(),
		nEstimators:     100,
		criterion:       tree.CriterionGini,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     MaxFeaturesSqrt,
		bootstrap:       true,
		randomState:     42,
		nJobs:           1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

func (rf *RandomForestClassifier) validateParams() error {
	switch {
	case rf.nEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	case rf.criterion != tree.CriterionGini && rf.criterion != tree.CriterionEntropy:
		return errors.NewValidationError("criterion", "must be gini or entropy", rf.criterion)
	case rf.maxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0 (0 = unlimited)", rf.maxDepth)
	case rf.minSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be >= 2", rf.minSamplesSplit)
	case rf.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", rf.minSamplesLeaf)
	case rf.maxFeatures != MaxFeaturesSqrt && rf.maxFeatures != MaxFeaturesLog2 && rf.maxFeatures != MaxFeaturesAll:
		return errors.NewValidationError("max_features", "must be sqrt, log2 or all", rf.maxFeatures)
	}
	return nil
}

// resolveMaxFeatures turns the max_features rule into a feature count.
func (rf *RandomForestClassifier) resolveMaxFeatures(nFeatures int) int {
	var k int
	switch rf.maxFeatures {
	case MaxFeaturesSqrt:
		k = int(math.Sqrt(float64(nFeatures)))
	case MaxFeaturesLog2:
		k = int(math.Log2(float64(nFeatures)))
	default:
		k = nFeatures
	}
	return max(1, k)
}

// Fit fits the forest on X (n×d) and y (n×1 class codes). The number of
// classes is max(y)+1.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	codes, err := classCodes(y)
	if err != nil {
		return err
	}
	return rf.FitClasses(X, codes, slices.Max(codes)+1)
}

// FitClasses fits the forest on class codes in [0, nClasses). PredictProba
// has nClasses columns even if some codes do not occur in y.
func (rf *RandomForestClassifier) FitClasses(X mat.Matrix, y []int, nClasses int) error {
	if err := rf.validateParams(); err != nil {
		return err
	}
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(y) != n {
		return errors.NewDimensionError("RandomForestClassifier.Fit", n, len(y), 0)
	}
	if rf.featureNamesIn != nil && len(rf.featureNamesIn) != d {
		return errors.NewDimensionError("RandomForestClassifier.Fit", len(rf.featureNamesIn), d, 1)
	}

	start := time.Now()
	maxFeatures := rf.resolveMaxFeatures(d)
	rf.logger.Debug("Training RandomForestClassifier",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, d,
		log.EstimatorsKey, rf.nEstimators,
		log.HyperParamsKey, rf.GetParams(),
	)

	// Seeds are drawn up front so the forest is identical for any n_jobs.
	master := rand.New(rand.NewPCG(uint64(rf.randomState), uint64(rf.randomState)))
	seeds := make([]int, rf.nEstimators)
	for i := range seeds {
		seeds[i] = int(master.Int32())
	}

	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	err := parallel.ForEach(rf.nEstimators, rf.nJobs, func(i int) error {
		t := tree.NewDecisionTreeClassifier(
			tree.WithCriterion(rf.criterion),
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesSplit(rf.minSamplesSplit),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(maxFeatures),
			tree.WithRandomState(seeds[i]),
		)
		if err := t.FitSamples(X, y, nClasses, rf.drawSamples(n, seeds[i])); err != nil {
			return errors.Wrapf(err, "fit tree %d", i)
		}
		trees[i] = t
		return nil
	})
	if err != nil {
		return err
	}

	rf.estimators = trees
	rf.nClasses_ = nClasses
	rf.nFeatures_ = d
	rf.featureImportances_ = meanImportances(trees, d)
	rf.state.SetFitted(d, n)

	rf.logger.Info("RandomForestClassifier fitted",
		log.OperationKey, log.OperationFit,
		log.EstimatorsKey, len(trees),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (rf *RandomForestClassifier) drawSamples(n, seed int) []int {
	samples := make([]int, n)
	if !rf.bootstrap {
		for i := range samples {
			samples[i] = i
		}
		return samples
	}
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^bootstrapStream))
	for i := range samples {
		samples[i] = r.IntN(n)
	}
	return samples
}

// meanImportances averages the trees that split at least once and
// renormalises the result to sum to 1.
func meanImportances(trees []*tree.DecisionTreeClassifier, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	used := 0
	for _, t := range trees {
		if t.GetNLeaves() < 2 {
			continue
		}
		for j, v := range t.GetFeatureImportances() {
			out[j] += v
		}
		used++
	}
	total := 0.0
	for _, v := range out {
		total += v
	}
	if used == 0 || total == 0 {
		return out
	}
	for j := range out {
		out[j] /= total
	}
	return out
}

func classCodes(y mat.Matrix) ([]int, error) {
	n, c := y.Dims()
	if c != 1 {
		return nil, errors.NewDimensionError("RandomForestClassifier.Fit", 1, c, 1)
	}
	if n == 0 {
		return nil, errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		v := y.At(i, 0)
		if v < 0 || v != math.Trunc(v) {
			return nil, errors.NewValueError("RandomForestClassifier.Fit",
				fmt.Sprintf("class codes must be non-negative integers, got %v at row %d", v, i))
		}
		codes[i] = int(v)
	}
	return codes, nil
}

// PredictProba returns the mean class distribution over all trees. Column k
// is class code k.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, d := X.Dims()
	if err := rf.state.RequireFeatures("PredictProba", d); err != nil {
		return nil, err
	}

	perTree := make([]mat.Matrix, len(rf.estimators))
	err := parallel.ForEach(len(rf.estimators), rf.nJobs, func(i int) error {
		p, err := rf.estimators[i].PredictProba(X)
		perTree[i] = p
		return err
	})
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(n, rf.nClasses_, nil)
	for _, p := range perTree {
		out.Add(out, p)
	}
	out.Scale(1/float64(len(perTree)), out)
	return out, nil
}

// Predict returns the class code with the highest mean probability for each
// row, as an n×1 matrix. Ties go to the lowest code.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	codes, err := rf.PredictCodes(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewVecDense(len(codes), nil)
	for i, c := range codes {
		out.SetVec(i, float64(c))
	}
	return out, nil
}

// PredictCodes is Predict returning plain class codes.
func (rf *RandomForestClassifier) PredictCodes(X mat.Matrix) ([]int, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	n, k := proba.Dims()
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		codes[i] = best
	}
	return codes, nil
}

// Score returns the mean accuracy on the given data, 0 if X cannot be
// predicted.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0
	}
	acc, err := metrics.Accuracy(metrics.ColumnVec(y), metrics.ColumnVec(pred))
	if err != nil {
		return 0
	}
	return acc
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForestClassifier) IsFitted() bool {
	return rf.state.IsFitted()
}

// Classes returns the class codes 0..n_classes-1.
func (rf *RandomForestClassifier) Classes() []int {
	classes := make([]int, rf.nClasses_)
	for k := range classes {
		classes[k] = k
	}
	return classes
}

// NClasses returns the number of classes.
func (rf *RandomForestClassifier) NClasses() int {
	return rf.nClasses_
}

// NFeatures returns the number of features seen during fit.
func (rf *RandomForestClassifier) NFeatures() int {
	return rf.nFeatures_
}

// FeatureNamesIn returns the feature names recorded at fit time, or nil.
func (rf *RandomForestClassifier) FeatureNamesIn() []string {
	return slices.Clone(rf.featureNamesIn)
}

// FeatureImportances returns the mean decrease in impurity per feature.
func (rf *RandomForestClassifier) FeatureImportances() ([]float64, error) {
	if err := rf.state.RequireFitted("FeatureImportances"); err != nil {
		return nil, err
	}
	return slices.Clone(rf.featureImportances_), nil
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return rf.estimators
}

// SetLogger replaces the logger, e.g. after decoding.
func (rf *RandomForestClassifier) SetLogger(logger log.Logger) {
	rf.logger = logger
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

// SetParams sets hyperparameters by name. On error the forest is unchanged.
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	next := *rf
	for key, value := range params {
		var err error
		switch key {
		case "n_estimators":
			next.nEstimators, err = tree.ToInt(key, value)
		case "max_depth":
			next.maxDepth, err = tree.ToInt(key, value)
		case "min_samples_split":
			next.minSamplesSplit, err = tree.ToInt(key, value)
		case "min_samples_leaf":
			next.minSamplesLeaf, err = tree.ToInt(key, value)
		case "random_state":
			next.randomState, err = tree.ToInt(key, value)
		case "n_jobs":
			next.nJobs, err = tree.ToInt(key, value)
		case "criterion", "max_features":
			s, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			if key == "criterion" {
				next.criterion = s
			} else {
				next.maxFeatures = s
			}
		case "bootstrap":
			b, ok := value.(bool)
			if !ok {
				return errors.NewValidationError(key, "must be a bool", value)
			}
			next.bootstrap = b
		default:
			err = errors.NewValidationError(key, "unknown parameter", value)
		}
		if err != nil {
			return err
		}
	}
	if err := next.validateParams(); err != nil {
		return err
	}
	*rf = next
	return nil
}

// forestSnapshot is the gob wire form. It holds no maps so that encoding the
// same forest always produces the same bytes.
type forestSnapshot struct {
	NEstimators     int
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	Bootstrap       bool
	RandomState     int
	NJobs           int

	State        model.ModelState
	FeatureNames []string
	NClasses     int
	NFeatures    int
	Trees        []*tree.DecisionTreeClassifier
	Importances  []float64
}

// GobEncode implements gob.GobEncoder.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(forestSnapshot{
		NEstimators:     rf.nEstimators,
		Criterion:       rf.criterion,
		MaxDepth:        rf.maxDepth,
		MinSamplesSplit: rf.minSamplesSplit,
		MinSamplesLeaf:  rf.minSamplesLeaf,
		MaxFeatures:     rf.maxFeatures,
		Bootstrap:       rf.bootstrap,
		RandomState:     rf.randomState,
		NJobs:           rf.nJobs,
		State:           rf.state.GetState(),
		FeatureNames:    rf.featureNamesIn,
		NClasses:        rf.nClasses_,
		NFeatures:       rf.nFeatures_,
		Trees:           rf.estimators,
		Importances:     rf.featureImportances_,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode RandomForestClassifier")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var s forestSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "decode RandomForestClassifier")
	}
	if s.State.Fitted {
		if len(s.Trees) == 0 || s.NClasses < 1 || s.NFeatures < 1 ||
			(s.FeatureNames != nil && len(s.FeatureNames) != s.NFeatures) {
			return errors.NewModelError("RandomForestClassifier.GobDecode", "corrupt forest", nil)
		}
		for i, t := range s.Trees {
			if t == nil || !t.IsFitted() || len(t.Classes()) != s.NClasses {
				return errors.NewModelError("RandomForestClassifier.GobDecode",
					fmt.Sprintf("corrupt tree %d", i), nil)
			}
		}
	}

	*rf = RandomForestClassifier{
		state:               model.NewStateManager("RandomForestClassifier"),
		logger:              log.Nop(),
		nEstimators:         s.NEstimators,
		criterion:           s.Criterion,
		maxDepth:            s.MaxDepth,
		minSamplesSplit:     s.MinSamplesSplit,
		minSamplesLeaf:      s.MinSamplesLeaf,
		maxFeatures:         s.MaxFeatures,
		bootstrap:           s.Bootstrap,
		randomState:         s.RandomState,
		nJobs:               s.NJobs,
		featureNamesIn:      s.FeatureNames,
		nClasses_:           s.NClasses,
		nFeatures_:          s.NFeatures,
		estimators:          s.Trees,
		featureImportances_: s.Importances,
	}
	rf.state.SetState(s.State)
	return nil
}
