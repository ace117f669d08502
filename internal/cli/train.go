package cli

import (
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/skinml/internal/report"
	"github.com/YuminosukeSato/skinml/internal/trainer"
	"github.com/YuminosukeSato/skinml/pkg/log"
)

func newTrainCmd(root *rootOptions) *cobra.Command {
	var (
		dataPath       string
		modelPath      string
		encoderPath    string
		seed           int
		testSize       float64
		stratify       bool
		nEstimators    int
		nJobs          int
		importancePlot string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the classifier and write the model and label encoder",
		Example: `
  # Train with the built-in defaults
  skinml train

  # Custom paths, a different seed and a stratified 30% hold-out
  skinml train --data data/skin.csv --model out/model.gob --encoder out/label_encoder.json \
    --seed 7 --test-size 0.3 --stratify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("data") {
				cfg.DataPath = dataPath
			}
			if flags.Changed("model") {
				cfg.ModelPath = modelPath
			}
			if flags.Changed("encoder") {
				cfg.EncoderPath = encoderPath
			}
			if flags.Changed("seed") {
				cfg.Split.RandomState = seed
				cfg.Forest.RandomState = seed
			}
			if flags.Changed("test-size") {
				cfg.Split.TestSize = testSize
			}
			if flags.Changed("stratify") {
				cfg.Split.Stratify = stratify
			}
			if flags.Changed("n-estimators") {
				cfg.Forest.NEstimators = nEstimators
			}
			if flags.Changed("n-jobs") {
				cfg.Forest.NJobs = nJobs
			}
			if flags.Changed("importance-plot") {
				cfg.Report.ImportancePlot = importancePlot
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, closer, err := setupLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer closer.Close()
			if root.configPath != "" {
				logger.Debug("configuration loaded", log.ConfigPathKey, root.configPath)
			}

			tr, err := trainer.New(cfg, trainer.WithLogger(logger))
			if err != nil {
				return err
			}
			res, err := tr.Run(cmd.Context())
			if err != nil {
				return err
			}

			report.Render(cmd.OutOrStdout(), res.Summary(cfg.DataPath), res.Report, res.Importances)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&dataPath, "data", "", "training CSV path (default from configuration)")
	f.StringVar(&modelPath, "model", "", "model output path (default from configuration)")
	f.StringVar(&encoderPath, "encoder", "", "label encoder output path (default from configuration)")
	f.IntVar(&seed, "seed", 42, "random seed for the split and the forest")
	f.Float64Var(&testSize, "test-size", 0.2, "held-out fraction, in (0, 1)")
	f.BoolVar(&stratify, "stratify", false, "keep class proportions in the split")
	f.IntVar(&nEstimators, "n-estimators", 100, "number of trees")
	f.IntVar(&nJobs, "n-jobs", 1, "trees fitted concurrently; -1 uses every CPU")
	f.StringVar(&importancePlot, "importance-plot", "", "write a feature importance PNG to this path")
	return cmd
}
