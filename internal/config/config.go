// Package config holds the training run configuration: built-in defaults,
// optionally overridden by a YAML file and then by command-line flags.
package config

import (
	"io"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v3"

	"github.com/YuminosukeSato/skinml/pkg/errors"
	"github.com/YuminosukeSato/skinml/pkg/log"
)

// Features are the quiz-derived inputs, one per question, ordered by their
// importance in the deployed quiz model.
var Features = []string{
	"sebum_level",       // Q1 oil level, 18.5%
	"hydration_level",   // Q2 hydration, 16.2%
	"acne_frequency",    // Q3 breakout frequency, 12.8%
	"pore_size",         // Q4 pore visibility, 9.5%
	"sensitivity_score", // Q5 reaction to products, 7.3%
	"roughness_score",   // Q6 texture, 6.8%
	"tightness_score",   // Q7 tightness; strong dry indicator
}

const (
	DefaultDataPath    = "data/ultimate_skin_type_dataset.csv"
	DefaultModelPath   = "model/model.gob"
	DefaultEncoderPath = "model/label_encoder.json"
	DefaultLabelColumn = "skin_type"
)

// Config is the full configuration of a training run.
type Config struct {
	DataPath    string   `yaml:"data_path" validate:"required"`
	ModelPath   string   `yaml:"model_path" validate:"required"`
	EncoderPath string   `yaml:"encoder_path" validate:"required,nefield=ModelPath"`
	LabelColumn string   `yaml:"label_column" validate:"required"`
	Features    []string `yaml:"features" validate:"required,min=1,unique,dive,required"`

	Split  SplitConfig  `yaml:"split"`
	Forest ForestConfig `yaml:"forest"`
	Report ReportConfig `yaml:"report"`
	Log    LogConfig    `yaml:"log"`
}

// SplitConfig controls the hold-out split.
type SplitConfig struct {
	TestSize    float64 `yaml:"test_size" validate:"gt=0,lt=1"`
	RandomState int     `yaml:"random_state"`
	Shuffle     bool    `yaml:"shuffle"`
	Stratify    bool    `yaml:"stratify"`
}

// ForestConfig mirrors the RandomForestClassifier hyperparameters.
type ForestConfig struct {
	NEstimators     int    `yaml:"n_estimators" validate:"min=1"`
	Criterion       string `yaml:"criterion" validate:"oneof=gini entropy"`
	MaxDepth        int    `yaml:"max_depth" validate:"min=0"`
	MinSamplesSplit int    `yaml:"min_samples_split" validate:"min=2"`
	MinSamplesLeaf  int    `yaml:"min_samples_leaf" validate:"min=1"`
	MaxFeatures     string `yaml:"max_features" validate:"oneof=sqrt log2 all"`
	Bootstrap       bool   `yaml:"bootstrap"`
	RandomState     int    `yaml:"random_state"`
	NJobs           int    `yaml:"n_jobs"`
}

// ReportConfig controls optional report outputs.
type ReportConfig struct {
	// ImportancePlot is the PNG path of the feature importance chart; empty
	// disables it.
	ImportancePlot string `yaml:"importance_plot"`
}

// LogConfig configures pkg/log.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
	File   string `yaml:"file"`
}

// Options converts the section into pkg/log options.
func (c LogConfig) Options() log.Options {
	return log.Options{Level: c.Level, Format: c.Format, File: c.File}
}

// Default returns the built-in configuration. Split and forest defaults
// follow scikit-learn with a fixed seed of 42.
func Default() *Config {
	return &Config{
		DataPath:    DefaultDataPath,
		ModelPath:   DefaultModelPath,
		EncoderPath: DefaultEncoderPath,
		LabelColumn: DefaultLabelColumn,
		Features:    slices.Clone(Features),
		Split: SplitConfig{
			TestSize:    0.2,
			RandomState: 42,
			Shuffle:     true,
		},
		Forest: ForestConfig{
			NEstimators:     100,
			Criterion:       "gini",
			MinSamplesSplit: 2,
			MinSamplesLeaf:  1,
			MaxFeatures:     "sqrt",
			Bootstrap:       true,
			RandomState:     42,
			NJobs:           1,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads a YAML file over the defaults and validates the result. Keys
// absent from the file keep their default; unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open config %s", path)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report yaml keys rather than Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field ranges and cross-field rules. The first problem is
// returned as a ValidationError named by its yaml key path.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.NewValidationError(yamlPath(fe.Namespace()), describe(fe), fe.Value())
		}
		return errors.Wrap(err, "validate config")
	}

	if slices.Contains(c.Features, c.LabelColumn) {
		return errors.NewValidationError("label_column", "must not be one of the features", c.LabelColumn)
	}
	if c.Split.Stratify && !c.Split.Shuffle {
		return errors.NewValidationError("split.stratify", "requires split.shuffle", c.Split.Stratify)
	}
	if c.Forest.NJobs < -1 {
		return errors.NewValidationError("forest.n_jobs", "must be -1 (all CPUs), 0 or positive", c.Forest.NJobs)
	}
	return nil
}

// yamlPath drops the root struct name: "Config.split.test_size" -> "split.test_size".
func yamlPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "unique":
		return "must not contain duplicates"
	case "nefield":
		return "must differ from " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be >= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	case "lt":
		return "must be < " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
