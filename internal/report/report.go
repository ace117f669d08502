// Package report renders the outcome of a training run for people: text
// tables on the console and an optional feature importance bar chart.
package report

import (
	"fmt"
	"image/color"
	"io"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/skinml/core/model"
	"github.com/YuminosukeSato/skinml/metrics"
	"github.com/YuminosukeSato/skinml/pkg/errors"
)

// Importance is one feature's share of the forest's impurity decrease.
type Importance struct {
	Feature string
	Value   float64
}

// RankImportances pairs names with values and sorts by value, largest
// first. Equal values keep the feature order.
func RankImportances(features []string, values []float64) ([]Importance, error) {
	if len(features) != len(values) {
		return nil, errors.NewDimensionError("report.RankImportances", len(features), len(values), 0)
	}
	ranked := make([]Importance, len(features))
	for i, name := range features {
		ranked[i] = Importance{Feature: name, Value: values[i]}
	}
	slices.SortStableFunc(ranked, func(a, b Importance) int {
		switch {
		case a.Value > b.Value:
			return -1
		case a.Value < b.Value:
			return 1
		}
		return 0
	})
	return ranked, nil
}

// Summary describes a finished run.
type Summary struct {
	RunID       string
	DataPath    string
	Rows        int
	TrainRows   int
	TestRows    int
	Classes     []string
	ModelPath   string
	EncoderPath string
	Accuracy    float64
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

// RenderSummary writes the run summary as a two-column table.
func RenderSummary(w io.Writer, s Summary) {
	table := newTable(w)
	table.AppendBulk([][]string{
		{"run", s.RunID},
		{"data", s.DataPath},
		{"rows", fmt.Sprintf("%d (train %d, test %d)", s.Rows, s.TrainRows, s.TestRows)},
		{"classes", strings.Join(s.Classes, ", ")},
		{"accuracy", fmt.Sprintf("%.4f", s.Accuracy)},
		{"model", s.ModelPath},
		{"encoder", s.EncoderPath},
	})
	table.Render()
}

// RenderImportances writes ranked importances as a table.
func RenderImportances(w io.Writer, ranked []Importance) {
	table := newTable(w)
	table.SetHeader([]string{"rank", "feature", "importance", "share"})
	for i, imp := range ranked {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			imp.Feature,
			fmt.Sprintf("%.4f", imp.Value),
			fmt.Sprintf("%.1f%%", imp.Value*100),
		})
	}
	table.Render()
}

// Render writes the summary, the classification report and the importance
// table, separated by blank lines.
func Render(w io.Writer, s Summary, cls *metrics.Report, ranked []Importance) {
	RenderSummary(w, s)
	if cls != nil {
		fmt.Fprintln(w)
		cls.Render(w)
	}
	if len(ranked) > 0 {
		fmt.Fprintln(w)
		RenderImportances(w, ranked)
	}
}

// ImportancePlot draws ranked importances as a bar chart.
func ImportancePlot(ranked []Importance) (*plot.Plot, error) {
	if len(ranked) == 0 {
		return nil, errors.NewValueError("report.ImportancePlot", "no importances to plot")
	}
	p := plot.New()
	p.Title.Text = "Feature importance"
	p.Y.Label.Text = "mean decrease in impurity"
	p.Y.Min = 0

	values := make(plotter.Values, len(ranked))
	names := make([]string, len(ranked))
	for i, imp := range ranked {
		values[i] = imp.Value
		names[i] = imp.Feature
	}
	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return nil, errors.Wrap(err, "build bar chart")
	}
	bars.Color = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = 0.6
	p.X.Tick.Label.XAlign = -0.9
	return p, nil
}

// StageImportancePlot renders the chart as PNG into a temp file next to path.
// The caller commits it together with the other artifacts of the run.
func StageImportancePlot(path string, ranked []Importance) (*model.StagedFile, error) {
	var wt io.WriterTo
	err := errors.SafeExecute("report.StageImportancePlot", func() error {
		p, err := ImportancePlot(ranked)
		if err != nil {
			return err
		}
		wt, err = p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
		if err != nil {
			return errors.Wrap(err, "render importance plot")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return model.Stage(path, func(w io.Writer) error {
		_, err := wt.WriteTo(w)
		return err
	})
}

// RenderPredictions writes one row per prediction. ids label the rows; when
// nil the 1-based row number is used.
func RenderPredictions(w io.Writer, ids []string, labels []string) {
	table := newTable(w)
	table.SetHeader([]string{"row", "skin_type"})
	for i, label := range labels {
		id := fmt.Sprintf("%d", i+1)
		if i < len(ids) {
			id = ids[i]
		}
		table.Append([]string{id, label})
	}
	table.Render()
}
