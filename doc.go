// Package skinml trains the classifier behind the skin-type quiz and serves
// its predictions.
//
// Each quiz answer becomes one numeric feature. A random forest learns to map
// the seven features to a skin type (oily, dry, combination, sensitive,
// normal), and the fitted model and label encoder are written to disk for
// the prediction side to load.
//
// # Packages
//
//   - dataset: CSV loading and feature matrix extraction
//   - preprocessing: LabelEncoder (label string to integer code)
//   - model_selection: reproducible, optionally stratified train/test split
//   - sklearn/tree: CART DecisionTreeClassifier
//   - sklearn/ensemble: RandomForestClassifier
//   - metrics: accuracy, confusion matrix and classification report
//   - inference: loads the artifacts and predicts labels
//   - core/model: estimator state and atomic artifact persistence
//   - pkg/errors, pkg/log: typed errors and structured logging
//
// # Quick Start
//
// Train with the default configuration and predict for new answers:
//
//	skinml train --data data/ultimate_skin_type_dataset.csv
//	skinml predict --input answers.csv
//
// From Go:
//
//	cfg := config.Default()
//	tr, err := trainer.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := tr.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("accuracy: %.3f\n", res.Accuracy)
//
//	p, err := inference.Load(cfg.ModelPath, cfg.EncoderPath)
//	labels, err := p.PredictFrame(frame)
//
// # Error Handling
//
// Every failure is returned as a typed error from pkg/errors carrying a
// stack trace:
//
//	var dle *errors.DataLoadError
//	if errors.As(err, &dle) {
//	    fmt.Println("bad input column:", dle.Column)
//	}
package skinml
