// Standard attribute keys for training-run logging.
//
// Keys follow a hierarchical naming convention (e.g. "model.name",
// "data.samples") so that log lines of every step of a run can be filtered
// and aggregated the same way.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of estimator.
	// Examples: "RandomForestClassifier", "DecisionTreeClassifier", "LabelEncoder"
	ModelNameKey = "model.name"

	// RunIDKey identifies a single training or prediction run.
	RunIDKey = "run.id"

	// OperationKey specifies the operation being performed.
	// Standard values: "load", "encode", "split", "fit", "predict", "evaluate", "persist"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey is the number of rows in the data being processed.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of feature columns.
	FeaturesKey = "data.features"

	// FeatureNamesKey lists the ordered feature columns.
	FeatureNamesKey = "data.feature_names"

	// TrainSamplesKey and TestSamplesKey describe a train/test partition.
	TrainSamplesKey = "data.train_samples"
	TestSamplesKey  = "data.test_samples"

	// ClassesKey lists the class labels known to an encoder or classifier.
	ClassesKey = "data.classes"

	// PathKey is a file system path read or written by the operation.
	PathKey = "io.path"

	// BytesKey is the size of a written artifact in bytes.
	BytesKey = "io.bytes"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records accuracy on the held-out subset, range [0.0, 1.0].
	AccuracyKey = "metrics.accuracy"

	// MacroF1Key and WeightedF1Key record averaged F1 scores.
	MacroF1Key    = "metrics.macro_f1"
	WeightedF1Key = "metrics.weighted_f1"

	// EstimatorsKey records the number of fitted trees.
	EstimatorsKey = "model.n_estimators"

	// DepthKey records a tree depth.
	DepthKey = "model.depth"
)

// Error and Warning Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides a hint for resolving an issue.
	SuggestionKey = "error.suggestion"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains estimator hyperparameters.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// ConfigPathKey records the configuration file in effect.
	ConfigPathKey = "config.path"
)

// Standard attribute values.
const (
	OperationLoad     = "load"
	OperationEncode   = "encode"
	OperationSplit    = "split"
	OperationFit      = "fit"
	OperationPredict  = "predict"
	OperationEvaluate = "evaluate"
	OperationPersist  = "persist"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseInference  = "inference"
)
