package metrics

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skinml/pkg/errors"
)

// ColumnVec は n×1 行列を VecDense として返す。*mat.VecDense はそのまま返す。
func ColumnVec(m mat.Matrix) *mat.VecDense {
	if v, ok := m.(*mat.VecDense); ok {
		return v
	}
	r, _ := m.Dims()
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v
}

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// Accuracy は正解率（予測が一致した割合）を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率（1 - 正解率）を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, errors.Wrap(err, "ClassificationError")
	}
	return 1 - acc, nil
}

func checkCodes(op string, yTrue, yPred []int, nClasses int) error {
	if len(yTrue) == 0 {
		return errors.NewValueError(op, "empty labels")
	}
	if len(yPred) != len(yTrue) {
		return errors.NewDimensionError(op, len(yTrue), len(yPred), 0)
	}
	if nClasses < 1 {
		return errors.NewValidationError("n_classes", "must be at least 1", nClasses)
	}
	for i := range yTrue {
		if yTrue[i] < 0 || yTrue[i] >= nClasses || yPred[i] < 0 || yPred[i] >= nClasses {
			return errors.NewValueError(op,
				fmt.Sprintf("class code at position %d is outside [0, %d)", i, nClasses))
		}
	}
	return nil
}

// ConfusionMatrix は混同行列を返す。行が正解クラス、列が予測クラス。
func ConfusionMatrix(yTrue, yPred []int, nClasses int) (*mat.Dense, error) {
	if err := checkCodes("ConfusionMatrix", yTrue, yPred, nClasses); err != nil {
		return nil, err
	}
	cm := mat.NewDense(nClasses, nClasses, nil)
	for i := range yTrue {
		cm.Set(yTrue[i], yPred[i], cm.At(yTrue[i], yPred[i])+1)
	}
	return cm, nil
}

// ClassScores はクラスごと（または平均）の評価指標
type ClassScores struct {
	Label     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// PrecisionRecallFScoreSupport はクラスごとの適合率・再現率・F1・サポートを計算する。
// labels[k] はクラスコード k の名前で、警告メッセージに使われる。
// 分母が0になる指標は0とし、UndefinedMetricWarning を発生させる。
func PrecisionRecallFScoreSupport(yTrue, yPred []int, labels []string) ([]ClassScores, error) {
	nClasses := len(labels)
	cm, err := ConfusionMatrix(yTrue, yPred, nClasses)
	if err != nil {
		return nil, err
	}

	scores := make([]ClassScores, nClasses)
	for k := 0; k < nClasses; k++ {
		tp := cm.At(k, k)
		predicted := mat.Sum(cm.ColView(k))
		actual := mat.Sum(cm.RowView(k))

		s := ClassScores{Label: labels[k], Support: int(actual)}
		if predicted > 0 {
			s.Precision = tp / predicted
		} else {
			errors.Warn(errors.NewUndefinedMetricWarning("precision", labels[k], "no predicted samples", 0))
		}
		if actual > 0 {
			s.Recall = tp / actual
		} else {
			errors.Warn(errors.NewUndefinedMetricWarning("recall", labels[k], "no true samples", 0))
		}
		if s.Precision+s.Recall > 0 {
			s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
		}
		scores[k] = s
	}
	return scores, nil
}

// Report は分類レポート（scikit-learn の classification_report 相当）
type Report struct {
	Classes     []ClassScores
	Accuracy    float64
	MacroAvg    ClassScores
	WeightedAvg ClassScores
	Total       int
}

// ClassificationReport はクラスごとの指標と macro/weighted 平均をまとめる
func ClassificationReport(yTrue, yPred []int, labels []string) (*Report, error) {
	scores, err := PrecisionRecallFScoreSupport(yTrue, yPred, labels)
	if err != nil {
		return nil, err
	}

	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	total := len(yTrue)

	r := &Report{
		Classes:     scores,
		Accuracy:    float64(correct) / float64(total),
		MacroAvg:    ClassScores{Label: "macro avg", Support: total},
		WeightedAvg: ClassScores{Label: "weighted avg", Support: total},
		Total:       total,
	}
	k := float64(len(scores))
	for _, s := range scores {
		w := float64(s.Support) / float64(total)
		r.MacroAvg.Precision += s.Precision / k
		r.MacroAvg.Recall += s.Recall / k
		r.MacroAvg.F1 += s.F1 / k
		r.WeightedAvg.Precision += s.Precision * w
		r.WeightedAvg.Recall += s.Recall * w
		r.WeightedAvg.F1 += s.F1 * w
	}
	return r, nil
}

// Render はレポートを表形式で w に書き出す
func (r *Report) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "precision", "recall", "f1-score", "support"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetHeaderAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")

	row := func(s ClassScores) []string {
		return []string{s.Label, f2(s.Precision), f2(s.Recall), f2(s.F1), fmt.Sprint(s.Support)}
	}
	for _, s := range r.Classes {
		table.Append(row(s))
	}
	table.Append([]string{"accuracy", "", "", f2(r.Accuracy), fmt.Sprint(r.Total)})
	table.Append(row(r.MacroAvg))
	table.Append(row(r.WeightedAvg))
	table.Render()
}

func f2(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
