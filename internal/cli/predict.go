package cli

import (
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/skinml/dataset"
	"github.com/YuminosukeSato/skinml/inference"
	"github.com/YuminosukeSato/skinml/internal/report"
	"github.com/YuminosukeSato/skinml/pkg/errors"
	"github.com/YuminosukeSato/skinml/pkg/log"
)

func newPredictCmd(root *rootOptions) *cobra.Command {
	var (
		inputPath   string
		modelPath   string
		encoderPath string
		idColumn    string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict skin types for the rows of a CSV file",
		Long: `Loads the model and label encoder written by "skinml train" and predicts
a skin type for every row of --input. Feature columns are matched by name, so
their order in the file does not matter and extra columns are ignored.`,
		Example: `
  skinml predict --input answers.csv
  skinml predict --input answers.csv --id-column user_id`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("model") {
				cfg.ModelPath = modelPath
			}
			if cmd.Flags().Changed("encoder") {
				cfg.EncoderPath = encoderPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, closer, err := setupLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer closer.Close()

			p, err := inference.Load(cfg.ModelPath, cfg.EncoderPath, inference.WithLogger(logger))
			if err != nil {
				return err
			}
			frame, err := dataset.ReadCSV(inputPath)
			if err != nil {
				return err
			}
			labels, err := p.PredictFrame(frame)
			if err != nil {
				return err
			}

			var ids []string
			if idColumn != "" {
				col, ok := frame.Column(idColumn)
				if !ok {
					return errors.NewDataLoadColumnError(inputPath, idColumn, 0, "required column not found", nil)
				}
				ids = col
			}
			logger.Info("predictions made",
				log.OperationKey, log.OperationPredict,
				log.PhaseKey, log.PhaseInference,
				log.PathKey, inputPath,
				log.SamplesKey, len(labels),
			)
			report.RenderPredictions(cmd.OutOrStdout(), ids, labels)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&inputPath, "input", "", "CSV with the feature columns")
	f.StringVar(&modelPath, "model", "", "model path (default from configuration)")
	f.StringVar(&encoderPath, "encoder", "", "label encoder path (default from configuration)")
	f.StringVar(&idColumn, "id-column", "", "column used to label output rows")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
