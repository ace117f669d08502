package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/skinml/internal/config"
	"github.com/YuminosukeSato/skinml/pkg/errors"
)

type fixture struct {
	dir     string
	data    string
	model   string
	encoder string
	config  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString(strings.Join(config.Features, ",") + ",skin_type\n")
	for i := 0; i < 24; i++ {
		label, base := "dry", 1
		if i%2 == 1 {
			label, base = "oily", 8
		}
		cells := make([]string, len(config.Features))
		for j := range cells {
			cells[j] = fmt.Sprint(base + (i+j)%3)
		}
		b.WriteString(strings.Join(cells, ",") + "," + label + "\n")
	}
	data := filepath.Join(dir, "skin.csv")
	require.NoError(t, os.WriteFile(data, []byte(b.String()), 0o644))

	cfgPath := filepath.Join(dir, "skinml.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("forest:\n  n_estimators: 8\nlog:\n  format: json\n"), 0o644))

	return fixture{
		dir:     dir,
		data:    data,
		model:   filepath.Join(dir, "out", "model.gob"),
		encoder: filepath.Join(dir, "out", "label_encoder.json"),
		config:  cfgPath,
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (f fixture) train(t *testing.T, extra ...string) (string, string, error) {
	t.Helper()
	args := append([]string{"train",
		"--config", f.config,
		"--data", f.data,
		"--model", f.model,
		"--encoder", f.encoder,
	}, extra...)
	return execute(t, args...)
}

func TestTrainCommand(t *testing.T) {
	f := newFixture(t)
	stdout, stderr, err := f.train(t)
	require.NoError(t, err)

	assert.FileExists(t, f.model)
	assert.FileExists(t, f.encoder)
	assert.Contains(t, stdout, "24 (train 19, test 5)")
	assert.Contains(t, stdout, "macro avg")
	assert.Contains(t, stdout, "sebum_level")
	assert.Contains(t, stderr, `"message":"training run finished"`)
}

func TestTrainCommand_FlagsOverrideConfig(t *testing.T) {
	f := newFixture(t)
	plot := filepath.Join(f.dir, "importance.png")
	stdout, _, err := f.train(t, "--test-size", "0.5", "--seed", "3", "--stratify", "--importance-plot", plot)
	require.NoError(t, err)

	assert.Contains(t, stdout, "24 (train 12, test 12)")
	assert.FileExists(t, plot)
}

func TestTrainCommand_LogFile(t *testing.T) {
	f := newFixture(t)
	logFile := filepath.Join(f.dir, "logs", "skinml.log")
	_, _, err := f.train(t, "--log-file", logFile, "--log-level", "debug")
	require.NoError(t, err)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Training RandomForestClassifier")
}

func TestTrainCommand_MissingFeature(t *testing.T) {
	f := newFixture(t)
	csv := filepath.Join(f.dir, "partial.csv")
	require.NoError(t, os.WriteFile(csv, []byte("sebum_level,skin_type\n1,dry\n9,oily\n"), 0o644))

	_, stderr, err := execute(t, "train", "--config", f.config, "--data", csv,
		"--model", f.model, "--encoder", f.encoder)
	var dle *errors.DataLoadError
	require.True(t, errors.As(err, &dle), "got %v", err)
	assert.Contains(t, stderr, "training step failed")
	assert.NoFileExists(t, f.model)
}

func TestTrainCommand_InvalidFlags(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.train(t, "--test-size", "1")
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "split.test_size", ve.ParamName)

	_, _, err = f.train(t, "--log-level", "loud")
	assert.True(t, errors.As(err, &ve))

	_, _, err = execute(t, "train", "--config", filepath.Join(f.dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestPredictCommand(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.train(t)
	require.NoError(t, err)

	// columns in a different order, plus an id column
	input := filepath.Join(f.dir, "answers.csv")
	header := "user," + strings.Join([]string{
		"tightness_score", "roughness_score", "sensitivity_score", "pore_size",
		"acne_frequency", "hydration_level", "sebum_level",
	}, ",")
	rows := "alice,1,1,1,1,1,1,1\nbob,9,9,9,9,9,9,9\n"
	require.NoError(t, os.WriteFile(input, []byte(header+"\n"+rows), 0o644))

	stdout, _, err := execute(t, "predict", "--config", f.config,
		"--model", f.model, "--encoder", f.encoder,
		"--input", input, "--id-column", "user")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "alice")
	assert.Contains(t, lines[1], "dry")
	assert.Contains(t, lines[2], "bob")
	assert.Contains(t, lines[2], "oily")
}

func TestPredictCommand_Errors(t *testing.T) {
	f := newFixture(t)

	_, _, err := execute(t, "predict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input")

	_, _, err = execute(t, "predict", "--input", f.data,
		"--model", filepath.Join(f.dir, "none.gob"), "--encoder", f.encoder)
	var pe *errors.PersistenceError
	assert.True(t, errors.As(err, &pe))

	_, _, err = f.train(t)
	require.NoError(t, err)
	_, _, err = execute(t, "predict", "--input", f.data,
		"--model", f.model, "--encoder", f.encoder, "--id-column", "user")
	var dle *errors.DataLoadError
	assert.True(t, errors.As(err, &dle))
}

func TestExecute_UnknownCommand(t *testing.T) {
	err := Execute(context.Background(), []string{"serve"})
	assert.Error(t, err)
}
