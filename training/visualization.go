package training

import (
	"encoding/json"
	"fmt"
	"time"
)

// PlotType represents different types of plots that can be generated
type PlotType string

const (
	TrainingCurves       PlotType = "training_curves"
	LearningRateSchedule PlotType = "learning_rate_schedule"
	ConfusionMatrixPlot  PlotType = "confusion_matrix"
)

// PlotData is the universal JSON format understood by the plot viewer
// service and the local HTML renderer
type PlotData struct {
	// Metadata
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name"`

	// Data series - flexible structure for different plot types
	Series []SeriesData `json:"series"`

	// Plot configuration
	Config PlotConfig `json:"config"`

	// Metrics metadata
	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// SeriesData represents a single data series in a plot
type SeriesData struct {
	Name  string                 `json:"name"`
	Type  string                 `json:"type"` // "line", "scatter", "heatmap"
	Data  []DataPoint            `json:"data"`
	Style map[string]interface{} `json:"style,omitempty"`
}

// DataPoint represents a single data point - flexible for different plot types
type DataPoint struct {
	X     interface{} `json:"x"`
	Y     interface{} `json:"y"`
	Z     interface{} `json:"z,omitempty"`     // For heatmaps
	Label string      `json:"label,omitempty"` // For categorical data
	Color string      `json:"color,omitempty"` // For custom coloring
}

// PlotConfig contains plot-specific configuration
type PlotConfig struct {
	XAxisLabel    string                 `json:"x_axis_label"`
	YAxisLabel    string                 `json:"y_axis_label"`
	ZAxisLabel    string                 `json:"z_axis_label,omitempty"`
	XAxisScale    string                 `json:"x_axis_scale"` // "linear", "log"
	YAxisScale    string                 `json:"y_axis_scale"` // "linear", "log"
	ShowLegend    bool                   `json:"show_legend"`
	ShowGrid      bool                   `json:"show_grid"`
	Width         int                    `json:"width"`
	Height        int                    `json:"height"`
	Interactive   bool                   `json:"interactive"`
	CustomOptions map[string]interface{} `json:"custom_options,omitempty"`
}

// ToJSON serializes the plot data for transmission or file output
func (pd *PlotData) ToJSON() ([]byte, error) {
	return json.MarshalIndent(pd, "", "  ")
}

// NewTrainingPlots builds the two per-run panels from a fit history: one
// for accuracy, one for loss, each with its training and validation series
// over epochs. The viewer lays panels of the same batch side by side.
func NewTrainingPlots(history *History, modelName string) ([]PlotData, error) {
	if history == nil {
		return nil, fmt.Errorf("history cannot be nil")
	}
	if err := history.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()

	accuracyPlot := PlotData{
		PlotType:  TrainingCurves,
		Title:     "Training and Validation Accuracy",
		Timestamp: now,
		ModelName: modelName,
		Series: []SeriesData{
			epochSeries("Training Accuracy", history.Accuracy, map[string]interface{}{
				"color":      "#4ECDC4",
				"line_width": 2,
			}),
			epochSeries("Validation Accuracy", history.ValAccuracy, map[string]interface{}{
				"color":      "#5F27CD",
				"line_width": 2,
				"line_style": "dashed",
			}),
		},
		Config: PlotConfig{
			XAxisLabel:  "Epoch",
			YAxisLabel:  "Accuracy",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			Width:       800,
			Height:      600,
			Interactive: true,
			CustomOptions: map[string]interface{}{
				"legend_position": "lower right",
				"panel":           1,
				"panels":          2,
			},
		},
	}

	lossPlot := PlotData{
		PlotType:  TrainingCurves,
		Title:     "Training and Validation Loss",
		Timestamp: now,
		ModelName: modelName,
		Series: []SeriesData{
			epochSeries("Training Loss", history.Loss, map[string]interface{}{
				"color":      "#FF6B6B",
				"line_width": 2,
			}),
			epochSeries("Validation Loss", history.ValLoss, map[string]interface{}{
				"color":      "#FF9F43",
				"line_width": 2,
				"line_style": "dashed",
			}),
		},
		Config: PlotConfig{
			XAxisLabel:  "Epoch",
			YAxisLabel:  "Loss",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  true,
			ShowGrid:    true,
			Width:       800,
			Height:      600,
			Interactive: true,
			CustomOptions: map[string]interface{}{
				"legend_position": "upper right",
				"panel":           2,
				"panels":          2,
			},
		},
	}

	return []PlotData{accuracyPlot, lossPlot}, nil
}

// NewLearningRatePlot charts the learning rate over epochs
func NewLearningRatePlot(learningRates []float64, modelName string) PlotData {
	return PlotData{
		PlotType:  LearningRateSchedule,
		Title:     fmt.Sprintf("Learning Rate Schedule - %s", modelName),
		Timestamp: time.Now(),
		ModelName: modelName,
		Series: []SeriesData{
			epochSeries("Learning Rate", learningRates, map[string]interface{}{
				"color":      "#45B7D1",
				"line_width": 2,
			}),
		},
		Config: PlotConfig{
			XAxisLabel:  "Epoch",
			YAxisLabel:  "Learning Rate",
			XAxisScale:  "linear",
			YAxisScale:  "log",
			ShowLegend:  false,
			ShowGrid:    true,
			Width:       800,
			Height:      600,
			Interactive: true,
		},
	}
}

// NewConfusionMatrixPlot renders a confusion matrix as a heatmap, with true
// classes on the Y axis and predicted classes on the X axis
func NewConfusionMatrixPlot(cm *ConfusionMatrix, classNames []string, modelName string) (PlotData, error) {
	if cm == nil {
		return PlotData{}, fmt.Errorf("confusion matrix cannot be nil")
	}
	if len(classNames) > 0 && len(classNames) != cm.NumClasses {
		return PlotData{}, fmt.Errorf("class name count %d does not match matrix size %d",
			len(classNames), cm.NumClasses)
	}

	className := func(i int) string {
		if len(classNames) > 0 {
			return classNames[i]
		}
		return fmt.Sprintf("class %d", i)
	}

	series := SeriesData{
		Name: "Confusion Matrix",
		Type: "heatmap",
		Data: make([]DataPoint, 0, cm.NumClasses*cm.NumClasses),
	}
	for trueClass := 0; trueClass < cm.NumClasses; trueClass++ {
		for predClass := 0; predClass < cm.NumClasses; predClass++ {
			series.Data = append(series.Data, DataPoint{
				X:     className(predClass),
				Y:     className(trueClass),
				Z:     cm.Matrix[trueClass][predClass],
				Label: fmt.Sprintf("%d", cm.Matrix[trueClass][predClass]),
			})
		}
	}

	return PlotData{
		PlotType:  ConfusionMatrixPlot,
		Title:     fmt.Sprintf("Confusion Matrix - %s", modelName),
		Timestamp: time.Now(),
		ModelName: modelName,
		Series:    []SeriesData{series},
		Config: PlotConfig{
			XAxisLabel:  "Predicted",
			YAxisLabel:  "True",
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowLegend:  false,
			ShowGrid:    false,
			Width:       800,
			Height:      600,
			Interactive: true,
		},
		Metrics: map[string]interface{}{
			"accuracy":      cm.Accuracy(),
			"total_samples": cm.TotalSamples,
		},
	}, nil
}

// epochSeries turns per-epoch values into a 1-based line series
func epochSeries(name string, values []float64, style map[string]interface{}) SeriesData {
	series := SeriesData{
		Name:  name,
		Type:  "line",
		Data:  make([]DataPoint, len(values)),
		Style: style,
	}
	for i, v := range values {
		series.Data[i] = DataPoint{X: i + 1, Y: v}
	}
	return series
}
