// Package tree implements a CART decision tree classifier compatible with
// scikit-learn's DecisionTreeClassifier.
package tree

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skinml/core/model"
	"github.com/YuminosukeSato/skinml/metrics"
	"github.com/YuminosukeSato/skinml/pkg/errors"
)

const (
	CriterionGini    = "gini"
	CriterionEntropy = "entropy"

	// leafFeature marks a leaf in Node.Feature.
	leafFeature = -1

	// featureThreshold: values closer than this are treated as equal when
	// looking for split points.
	featureThreshold = 1e-7
)

// Node is one entry of the flat node array. Children are indices into the
// same array; leaves have Feature == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Impurity  float64
	NSamples  int
	// Value is the class distribution of the training samples that reached
	// the node, normalised to sum to 1.
	Value []float64
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Feature == leafFeature
}

// DecisionTreeClassifier is a CART classifier. Splits are axis aligned,
// x <= threshold goes left, and thresholds are midpoints between adjacent
// distinct training values.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion           string
	maxDepth            int // 0 means unlimited
	minSamplesSplit     int
	minSamplesLeaf      int
	maxFeatures         int // 0 means all features
	minImpurityDecrease float64
	randomState         int

	// Learned attributes
	nClasses_           int
	classes_            []int
	nFeatures_          int
	nodes               []Node
	featureImportances_ []float64
	depth_              int
	nLeaves_            int
}

var (
	_ model.Classifier      = (*DecisionTreeClassifier)(nil)
	_ model.ParameterGetter = (*DecisionTreeClassifier)(nil)
	_ model.ParameterSetter = (*DecisionTreeClassifier)(nil)
)

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity measure, "gini" or "entropy".
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth limits the depth of the tree. 0 grows until leaves are pure.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many features are examined per split. 0 means all.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = n }
}

// WithMinImpurityDecrease requires each split to decrease the weighted
// impurity by at least v.
func WithMinImpurityDecrease(v float64) Option {
	return func(dt *DecisionTreeClassifier) { dt.minImpurityDecrease = v }
}

// WithRandomState seeds the feature permutation used at each split.
func WithRandomState(seed int) Option {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

// NewDecisionTreeClassifier creates a tree with scikit-learn defaults.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager("DecisionTreeClassifier"),
		criterion:       CriterionGini,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// Fit builds the tree from X (n×d) and y (n×1 class labels, non-negative
// integers).
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	n, _ := X.Dims()
	yRows, yCols := y.Dims()
	if yCols != 1 {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", 1, yCols, 1)
	}
	if yRows != n {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", n, yRows, 0)
	}

	labels := make([]int, n)
	for i := 0; i < n; i++ {
		v := y.At(i, 0)
		if v < 0 || v != math.Trunc(v) {
			return errors.NewValueError("DecisionTreeClassifier.Fit",
				fmt.Sprintf("class labels must be non-negative integers, got %v at row %d", v, i))
		}
		labels[i] = int(v)
	}

	classes := slices.Clone(labels)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	index := make(map[int]int, len(classes))
	for k, c := range classes {
		index[c] = k
	}
	for i, l := range labels {
		labels[i] = index[l]
	}

	samples := make([]int, n)
	for i := range samples {
		samples[i] = i
	}
	return dt.fit(X, labels, classes, samples)
}

// FitSamples builds the tree on the rows of X listed in samples, which may
// repeat (bootstrap). y holds a class code in [0, nClasses) for every row of
// X. Columns of PredictProba are the codes 0..nClasses-1 even when a code is
// absent from the sample.
func (dt *DecisionTreeClassifier) FitSamples(X mat.Matrix, y []int, nClasses int, samples []int) error {
	n, _ := X.Dims()
	if len(y) != n {
		return errors.NewDimensionError("DecisionTreeClassifier.FitSamples", n, len(y), 0)
	}
	if nClasses < 1 {
		return errors.NewValidationError("n_classes", "must be at least 1", nClasses)
	}
	for i, c := range y {
		if c < 0 || c >= nClasses {
			return errors.NewValueError("DecisionTreeClassifier.FitSamples",
				fmt.Sprintf("class code %d at row %d is outside [0, %d)", c, i, nClasses))
		}
	}
	for _, s := range samples {
		if s < 0 || s >= n {
			return errors.NewValueError("DecisionTreeClassifier.FitSamples",
				fmt.Sprintf("sample index %d is outside [0, %d)", s, n))
		}
	}
	classes := make([]int, nClasses)
	for k := range classes {
		classes[k] = k
	}
	return dt.fit(X, y, classes, slices.Clone(samples))
}

func (dt *DecisionTreeClassifier) validateParams() error {
	switch {
	case dt.criterion != CriterionGini && dt.criterion != CriterionEntropy:
		return errors.NewValidationError("criterion", "must be gini or entropy", dt.criterion)
	case dt.maxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0 (0 = unlimited)", dt.maxDepth)
	case dt.minSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.minSamplesSplit)
	case dt.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.minSamplesLeaf)
	case dt.maxFeatures < 0:
		return errors.NewValidationError("max_features", "must be >= 0 (0 = all)", dt.maxFeatures)
	case dt.minImpurityDecrease < 0 || math.IsNaN(dt.minImpurityDecrease):
		return errors.NewValidationError("min_impurity_decrease", "must be >= 0", dt.minImpurityDecrease)
	}
	return nil
}

func (dt *DecisionTreeClassifier) fit(X mat.Matrix, y []int, classes []int, samples []int) error {
	if err := dt.validateParams(); err != nil {
		return err
	}
	n, d := X.Dims()
	if n == 0 || d == 0 || len(samples) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}

	b := &builder{
		dt:       dt,
		x:        denseRows(X),
		y:        y,
		nFeat:    d,
		nClasses: len(classes),
		nTotal:   float64(len(samples)),
		rng:      rand.New(rand.NewPCG(uint64(dt.randomState), uint64(dt.randomState))),
		imp:      make([]float64, d),
	}
	b.maxFeatures = dt.maxFeatures
	if b.maxFeatures == 0 || b.maxFeatures > d {
		b.maxFeatures = d
	}
	b.build(samples, 0)

	if err := errors.CheckNumericalStability("DecisionTreeClassifier.Fit", b.imp, 0); err != nil {
		return err
	}
	total := 0.0
	for _, v := range b.imp {
		total += v
	}
	if total > 0 {
		for j := range b.imp {
			b.imp[j] /= total
		}
	}

	dt.nodes = b.nodes
	dt.classes_ = classes
	dt.nClasses_ = len(classes)
	dt.nFeatures_ = d
	dt.featureImportances_ = b.imp
	dt.depth_ = b.depth
	dt.nLeaves_ = b.leaves
	dt.state.SetFitted(d, len(samples))
	return nil
}

type builder struct {
	dt          *DecisionTreeClassifier
	x           []float64 // row-major n×nFeat
	y           []int
	nFeat       int
	nClasses    int
	nTotal      float64
	maxFeatures int
	rng         *rand.Rand

	nodes  []Node
	imp    []float64
	depth  int
	leaves int
}

type split struct {
	feature    int
	threshold  float64
	pos        int // samples[:pos] go left once sorted by feature
	childImp   float64
	leftImp    float64
	rightImp   float64
	improvable bool
}

func (b *builder) at(row, feature int) float64 {
	return b.x[row*b.nFeat+feature]
}

func (b *builder) counts(samples []int) []float64 {
	c := make([]float64, b.nClasses)
	for _, s := range samples {
		c[b.y[s]]++
	}
	return c
}

// build appends the subtree for samples and returns its node index.
func (b *builder) build(samples []int, depth int) int {
	counts := b.counts(samples)
	n := len(samples)
	impurity := b.dt.impurity(counts, float64(n))

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature:  leafFeature,
		Left:     -1,
		Right:    -1,
		Impurity: impurity,
		NSamples: n,
		Value:    normalize(counts),
	})
	if depth > b.depth {
		b.depth = depth
	}

	isLeaf := n < b.dt.minSamplesSplit ||
		n < 2*b.dt.minSamplesLeaf ||
		(b.dt.maxDepth > 0 && depth >= b.dt.maxDepth) ||
		impurity <= 0

	var best split
	if !isLeaf {
		best = b.findSplit(samples, counts, impurity)
		isLeaf = !best.improvable
	}
	if !isLeaf {
		decrease := float64(n) / b.nTotal * (impurity - best.childImp)
		if decrease+1e-12 < b.dt.minImpurityDecrease {
			isLeaf = true
		}
	}
	if isLeaf {
		b.leaves++
		return id
	}

	left := make([]int, 0, best.pos)
	right := make([]int, 0, n-best.pos)
	for _, s := range samples {
		if b.at(s, best.feature) <= best.threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	b.imp[best.feature] += float64(n)*impurity -
		float64(len(left))*best.leftImp -
		float64(len(right))*best.rightImp

	b.nodes[id].Feature = best.feature
	b.nodes[id].Threshold = best.threshold
	leftID := b.build(left, depth+1)
	rightID := b.build(right, depth+1)
	b.nodes[id].Left = leftID
	b.nodes[id].Right = rightID
	return id
}

// findSplit examines features in random order. At least maxFeatures
// non-constant features are examined, and the search continues past that
// until a valid split is found or the features run out.
func (b *builder) findSplit(samples []int, counts []float64, impurity float64) split {
	n := len(samples)
	minLeaf := b.dt.minSamplesLeaf
	best := split{childImp: math.Inf(1)}
	bestGain := math.Inf(-1)

	order := b.rng.Perm(b.nFeat)
	sorted := make([]int, n)
	left := make([]float64, b.nClasses)
	right := make([]float64, b.nClasses)
	visited := 0

	for _, f := range order {
		if visited >= b.maxFeatures && best.improvable {
			break
		}

		copy(sorted, samples)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.at(sorted[i], f) < b.at(sorted[j], f)
		})
		if b.at(sorted[n-1], f) <= b.at(sorted[0], f)+featureThreshold {
			continue // constant in this node
		}
		visited++

		for k := range left {
			left[k] = 0
			right[k] = counts[k]
		}
		for i := 1; i < n; i++ {
			c := b.y[sorted[i-1]]
			left[c]++
			right[c]--

			prev, next := b.at(sorted[i-1], f), b.at(sorted[i], f)
			if next <= prev+featureThreshold {
				continue
			}
			if i < minLeaf || n-i < minLeaf {
				continue
			}

			nl, nr := float64(i), float64(n-i)
			li := b.dt.impurity(left, nl)
			ri := b.dt.impurity(right, nr)
			child := (nl*li + nr*ri) / float64(n)
			gain := impurity - child
			if gain > bestGain {
				bestGain = gain
				threshold := prev/2 + next/2
				if threshold == next || math.IsInf(threshold, 0) || math.IsNaN(threshold) {
					threshold = prev
				}
				best = split{
					feature:    f,
					threshold:  threshold,
					pos:        i,
					childImp:   child,
					leftImp:    li,
					rightImp:   ri,
					improvable: true,
				}
			}
		}
	}
	return best
}

func (dt *DecisionTreeClassifier) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	switch dt.criterion {
	case CriterionEntropy:
		e := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / n
				e -= p * math.Log2(p)
			}
		}
		return e
	default:
		g := 1.0
		for _, c := range counts {
			p := c / n
			g -= p * p
		}
		return g
	}
}

func normalize(counts []float64) []float64 {
	total := 0.0
	for _, c := range counts {
		total += c
	}
	out := make([]float64, len(counts))
	if total == 0 {
		return out
	}
	for k, c := range counts {
		out[k] = c / total
	}
	return out
}

func denseRows(X mat.Matrix) []float64 {
	r, c := X.Dims()
	if d, ok := X.(*mat.Dense); ok {
		raw := d.RawMatrix()
		if raw.Stride == c {
			return raw.Data[:r*c]
		}
	}
	out := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[i*c+j] = X.At(i, j)
		}
	}
	return out
}

// leaf returns the node reached by row i of X.
func (dt *DecisionTreeClassifier) leaf(X mat.Matrix, i int) *Node {
	node := &dt.nodes[0]
	for !node.IsLeaf() {
		if X.At(i, node.Feature) <= node.Threshold {
			node = &dt.nodes[node.Left]
		} else {
			node = &dt.nodes[node.Right]
		}
	}
	return node
}

// PredictProba returns the class distribution of the leaf each row reaches.
// Columns follow Classes().
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	n, d := X.Dims()
	if err := dt.state.RequireFeatures("PredictProba", d); err != nil {
		return nil, err
	}
	out := mat.NewDense(n, dt.nClasses_, nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, dt.leaf(X, i).Value)
	}
	return out, nil
}

// Predict returns the most probable class for each row as an n×1 matrix.
// Ties go to the lowest class.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	n, d := X.Dims()
	if err := dt.state.RequireFeatures("Predict", d); err != nil {
		return nil, err
	}
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, float64(dt.classes_[argmax(dt.leaf(X, i).Value)]))
	}
	return out, nil
}

func argmax(v []float64) int {
	best := 0
	for k := 1; k < len(v); k++ {
		if v[k] > v[best] {
			best = k
		}
	}
	return best
}

// Score returns the mean accuracy on the given data. It returns 0 when the
// model cannot predict X.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
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
func (dt *DecisionTreeClassifier) IsFitted() bool {
	return dt.state.IsFitted()
}

// Classes returns the class labels, in PredictProba column order.
func (dt *DecisionTreeClassifier) Classes() []int {
	return slices.Clone(dt.classes_)
}

// GetFeatureImportances returns the normalised total impurity decrease
// contributed by each feature. All zeros when the tree is a single leaf.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return slices.Clone(dt.featureImportances_)
}

// GetDepth returns the depth of the tree; a single leaf has depth 0.
func (dt *DecisionTreeClassifier) GetDepth() int {
	return dt.depth_
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return dt.nLeaves_
}

// Nodes returns the flat node array. The root is node 0.
func (dt *DecisionTreeClassifier) Nodes() []Node {
	return dt.nodes
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":             dt.criterion,
		"max_depth":             dt.maxDepth,
		"min_samples_split":     dt.minSamplesSplit,
		"min_samples_leaf":      dt.minSamplesLeaf,
		"max_features":          dt.maxFeatures,
		"min_impurity_decrease": dt.minImpurityDecrease,
		"random_state":          dt.randomState,
	}
}

// SetParams sets hyperparameters by name. Unknown names and values of the
// wrong type are rejected and leave the tree unchanged.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	next := *dt
	for key, value := range params {
		var err error
		switch key {
		case "criterion":
			s, ok := value.(string)
			if !ok {
				err = errors.NewValidationError(key, "must be a string", value)
			}
			next.criterion = s
		case "max_depth":
			next.maxDepth, err = ToInt(key, value)
		case "min_samples_split":
			next.minSamplesSplit, err = ToInt(key, value)
		case "min_samples_leaf":
			next.minSamplesLeaf, err = ToInt(key, value)
		case "max_features":
			next.maxFeatures, err = ToInt(key, value)
		case "random_state":
			next.randomState, err = ToInt(key, value)
		case "min_impurity_decrease":
			f, ok := value.(float64)
			if !ok {
				err = errors.NewValidationError(key, "must be a float64", value)
			}
			next.minImpurityDecrease = f
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
	*dt = next
	return nil
}

// ToInt converts an integral parameter value (int, int64 or a whole float64,
// as produced by decoders) to int.
func ToInt(name string, value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), nil
		}
	}
	return 0, errors.NewValidationError(name, "must be an integer", value)
}

// treeSnapshot is the gob wire form of a fitted tree.
type treeSnapshot struct {
	Criterion           string
	MaxDepth            int
	MinSamplesSplit     int
	MinSamplesLeaf      int
	MaxFeatures         int
	MinImpurityDecrease float64
	RandomState         int

	State       model.ModelState
	Classes     []int
	NFeatures   int
	Nodes       []Node
	Importances []float64
	Depth       int
	NLeaves     int
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(treeSnapshot{
		Criterion:           dt.criterion,
		MaxDepth:            dt.maxDepth,
		MinSamplesSplit:     dt.minSamplesSplit,
		MinSamplesLeaf:      dt.minSamplesLeaf,
		MaxFeatures:         dt.maxFeatures,
		MinImpurityDecrease: dt.minImpurityDecrease,
		RandomState:         dt.randomState,
		State:               dt.state.GetState(),
		Classes:             dt.classes_,
		NFeatures:           dt.nFeatures_,
		Nodes:               dt.nodes,
		Importances:         dt.featureImportances_,
		Depth:               dt.depth_,
		NLeaves:             dt.nLeaves_,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode DecisionTreeClassifier")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	var s treeSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "decode DecisionTreeClassifier")
	}
	if s.State.Fitted {
		if len(s.Nodes) == 0 || len(s.Importances) != s.NFeatures {
			return errors.NewModelError("DecisionTreeClassifier.GobDecode", "corrupt tree", nil)
		}
		for _, node := range s.Nodes {
			if node.IsLeaf() {
				continue
			}
			if node.Feature < 0 || node.Feature >= s.NFeatures ||
				node.Left <= 0 || node.Left >= len(s.Nodes) ||
				node.Right <= 0 || node.Right >= len(s.Nodes) {
				return errors.NewModelError("DecisionTreeClassifier.GobDecode", "corrupt tree", nil)
			}
		}
	}
	*dt = DecisionTreeClassifier{
		state:               model.NewStateManager("DecisionTreeClassifier"),
		criterion:           s.Criterion,
		maxDepth:            s.MaxDepth,
		minSamplesSplit:     s.MinSamplesSplit,
		minSamplesLeaf:      s.MinSamplesLeaf,
		maxFeatures:         s.MaxFeatures,
		minImpurityDecrease: s.MinImpurityDecrease,
		randomState:         s.RandomState,
		nClasses_:           len(s.Classes),
		classes_:            s.Classes,
		nFeatures_:          s.NFeatures,
		nodes:               s.Nodes,
		featureImportances_: s.Importances,
		depth_:              s.Depth,
		nLeaves_:            s.NLeaves,
	}
	dt.state.SetState(s.State)
	return nil
}
