package preprocessing

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skinml/core/model"
	"github.com/YuminosukeSato/skinml/pkg/errors"
)

// LabelEncoder はscikit-learn互換のラベルエンコーダ
// 文字列ラベルを 0..n_classes-1 の整数コードに変換する。
// クラスは辞書順にソートされ、コードはその並びのインデックスになる。
type LabelEncoder struct {
	model.BaseEstimator

	// column はエラーメッセージに使うラベルカラム名
	column string

	classes []string
	codes   map[string]int
}

// LabelEncoderOption は LabelEncoder の設定関数
type LabelEncoderOption func(*LabelEncoder)

// WithColumn はエラーに表示するラベルカラム名を設定する
func WithColumn(name string) LabelEncoderOption {
	return func(e *LabelEncoder) {
		e.column = name
	}
}

// NewLabelEncoder は新しいLabelEncoderを作成する
//
// 使用例:
//
//	enc := preprocessing.NewLabelEncoder(preprocessing.WithColumn("skin_type"))
//	codes, err := enc.FitTransform([]string{"oily", "dry", "oily"})
//	// enc.Classes() == ["dry", "oily"], codes == [1, 0, 1]
func NewLabelEncoder(opts ...LabelEncoderOption) *LabelEncoder {
	e := &LabelEncoder{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fit はラベルの集合を学習する。
// ラベルが一つも無い場合、または空文字のラベルがある場合は EncodingError を返す。
func (e *LabelEncoder) Fit(labels []string) error {
	if len(labels) == 0 {
		return errors.NewEncodingError(e.column, "label column is empty")
	}
	for i, label := range labels {
		if label == "" {
			return errors.NewEncodingRowError(e.column, i+1, "missing label")
		}
	}

	classes := lo.Uniq(labels)
	slices.Sort(classes)
	e.setClasses(classes)
	return nil
}

// Transform はラベルを整数コードに変換する。
// 学習時に見ていないラベルは EncodingError になる。
func (e *LabelEncoder) Transform(labels []string) ([]int, error) {
	if err := e.RequireFitted("LabelEncoder", "Transform"); err != nil {
		return nil, err
	}
	codes := make([]int, len(labels))
	for i, label := range labels {
		code, ok := e.codes[label]
		if !ok {
			if label == "" {
				return nil, errors.NewEncodingRowError(e.column, i+1, "missing label")
			}
			return nil, errors.NewEncodingRowError(e.column, i+1, fmt.Sprintf("unknown label %q", label))
		}
		codes[i] = code
	}
	return codes, nil
}

// FitTransform はFitとTransformを同時に実行する
func (e *LabelEncoder) FitTransform(labels []string) ([]int, error) {
	if err := e.Fit(labels); err != nil {
		return nil, err
	}
	return e.Transform(labels)
}

// TransformVec はラベルを n×1 のターゲットベクトルに変換する。
// 推定器の Fit(X, y) にそのまま渡せる。
func (e *LabelEncoder) TransformVec(labels []string) (*mat.VecDense, error) {
	codes, err := e.Transform(labels)
	if err != nil {
		return nil, err
	}
	y := mat.NewVecDense(len(codes), nil)
	for i, c := range codes {
		y.SetVec(i, float64(c))
	}
	return y, nil
}

// InverseTransform は整数コードを元のラベルに戻す
func (e *LabelEncoder) InverseTransform(codes []int) ([]string, error) {
	if err := e.RequireFitted("LabelEncoder", "InverseTransform"); err != nil {
		return nil, err
	}
	labels := make([]string, len(codes))
	for i, c := range codes {
		if c < 0 || c >= len(e.classes) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform",
				fmt.Sprintf("code %d at position %d is outside [0, %d)", c, i, len(e.classes)))
		}
		labels[i] = e.classes[c]
	}
	return labels, nil
}

// Classes は学習したクラスをコード順に返す（コピー）
func (e *LabelEncoder) Classes() []string {
	return slices.Clone(e.classes)
}

// NClasses はクラス数を返す
func (e *LabelEncoder) NClasses() int {
	return len(e.classes)
}

func (e *LabelEncoder) setClasses(classes []string) {
	e.classes = classes
	e.codes = make(map[string]int, len(classes))
	for i, c := range classes {
		e.codes[c] = i
	}
	e.SetFitted()
}

type labelEncoderJSON struct {
	Classes []string `json:"classes"`
}

// MarshalJSON は {"classes": [...]} 形式で出力する
func (e *LabelEncoder) MarshalJSON() ([]byte, error) {
	if err := e.RequireFitted("LabelEncoder", "MarshalJSON"); err != nil {
		return nil, err
	}
	return json.Marshal(labelEncoderJSON{Classes: e.classes})
}

// UnmarshalJSON は保存されたクラス一覧を復元する。
// クラスは空でなく、重複なしの昇順でなければならない。
func (e *LabelEncoder) UnmarshalJSON(data []byte) error {
	var raw labelEncoderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Classes) == 0 {
		return errors.NewValueError("LabelEncoder.UnmarshalJSON", "classes must not be empty")
	}
	for i, c := range raw.Classes {
		if c == "" {
			return errors.NewValueError("LabelEncoder.UnmarshalJSON", "classes must not contain empty labels")
		}
		if i > 0 && raw.Classes[i-1] >= c {
			return errors.NewValueError("LabelEncoder.UnmarshalJSON", "classes must be sorted and unique")
		}
	}
	e.setClasses(raw.Classes)
	return nil
}
