package training

import (
	"encoding/json"
	"testing"
	"time"
)

// TestPlotType tests PlotType constants and usage
func TestPlotType(t *testing.T) {
	expectedTypes := map[PlotType]string{
		TrainingCurves:       "training_curves",
		LearningRateSchedule: "learning_rate_schedule",
		ConfusionMatrixPlot:  "confusion_matrix",
	}

	for plotType, expectedString := range expectedTypes {
		if string(plotType) != expectedString {
			t.Errorf("PlotType %v should equal %s, got %s", plotType, expectedString, string(plotType))
		}
	}
}

func testHistory() *History {
	return &History{
		Accuracy:     []float64{0.6, 0.8},
		ValAccuracy:  []float64{0.55, 0.75},
		Loss:         []float64{0.8, 0.6},
		ValLoss:      []float64{0.85, 0.65},
		LearningRate: []float64{0.01, 0.009},
	}
}

// TestNewTrainingPlots tests the accuracy and loss panel generation
func TestNewTrainingPlots(t *testing.T) {
	plots, err := NewTrainingPlots(testHistory(), "TestModel")
	if err != nil {
		t.Fatalf("Failed to build training plots: %v", err)
	}

	// One accuracy panel and one loss panel
	if len(plots) != 2 {
		t.Fatalf("Expected 2 plots, got %d", len(plots))
	}

	for i, plot := range plots {
		if plot.PlotType != TrainingCurves {
			t.Errorf("Plot %d: expected plot type %s, got %s", i, TrainingCurves, plot.PlotType)
		}
		if plot.ModelName != "TestModel" {
			t.Errorf("Plot %d: expected model name TestModel, got %s", i, plot.ModelName)
		}
		if len(plot.Series) != 2 {
			t.Errorf("Plot %d: expected 2 series, got %d", i, len(plot.Series))
		}
	}

	// Panels of one run share a timestamp so the viewer can group them
	if !plots[0].Timestamp.Equal(plots[1].Timestamp) {
		t.Error("Expected both panels to share a timestamp")
	}

	accuracyPlot := plots[0]
	if accuracyPlot.Series[0].Name != "Training Accuracy" {
		t.Errorf("Expected Training Accuracy series, got %s", accuracyPlot.Series[0].Name)
	}
	if accuracyPlot.Series[1].Name != "Validation Accuracy" {
		t.Errorf("Expected Validation Accuracy series, got %s", accuracyPlot.Series[1].Name)
	}
	if len(accuracyPlot.Series[0].Data) != 2 {
		t.Errorf("Expected 2 data points, got %d", len(accuracyPlot.Series[0].Data))
	}
	// Epochs are 1-based on the X axis
	if accuracyPlot.Series[0].Data[0].X != 1 {
		t.Errorf("Expected first epoch X=1, got %v", accuracyPlot.Series[0].Data[0].X)
	}
	if accuracyPlot.Config.CustomOptions["legend_position"] != "lower right" {
		t.Errorf("Expected lower-right legend on accuracy panel, got %v",
			accuracyPlot.Config.CustomOptions["legend_position"])
	}

	lossPlot := plots[1]
	if lossPlot.Series[0].Name != "Training Loss" {
		t.Errorf("Expected Training Loss series, got %s", lossPlot.Series[0].Name)
	}
	if lossPlot.Series[1].Name != "Validation Loss" {
		t.Errorf("Expected Validation Loss series, got %s", lossPlot.Series[1].Name)
	}
	if lossPlot.Config.CustomOptions["legend_position"] != "upper right" {
		t.Errorf("Expected upper-right legend on loss panel, got %v",
			lossPlot.Config.CustomOptions["legend_position"])
	}

	// Validation series are drawn dashed to separate them from training
	for _, plot := range plots {
		if plot.Series[1].Style["line_style"] != "dashed" {
			t.Errorf("Expected dashed validation series in %q", plot.Title)
		}
	}
}

// TestNewTrainingPlotsValidation tests that bad histories are rejected
func TestNewTrainingPlotsValidation(t *testing.T) {
	if _, err := NewTrainingPlots(nil, "TestModel"); err == nil {
		t.Error("Expected error for nil history")
	}

	// Mismatched series lengths
	history := &History{
		Accuracy: []float64{0.6, 0.8},
		Loss:     []float64{0.8},
	}
	if _, err := NewTrainingPlots(history, "TestModel"); err == nil {
		t.Error("Expected error for mismatched history series")
	}
}

// TestNewLearningRatePlot tests learning rate schedule plot generation
func TestNewLearningRatePlot(t *testing.T) {
	plot := NewLearningRatePlot([]float64{0.01, 0.005}, "TestModel")

	if plot.PlotType != LearningRateSchedule {
		t.Errorf("Expected plot type %s, got %s", LearningRateSchedule, plot.PlotType)
	}

	if len(plot.Series) != 1 {
		t.Errorf("Expected 1 series, got %d", len(plot.Series))
	}

	lrSeries := plot.Series[0]
	if lrSeries.Name != "Learning Rate" {
		t.Errorf("Expected Learning Rate series, got %s", lrSeries.Name)
	}
	if len(lrSeries.Data) != 2 {
		t.Errorf("Expected 2 data points, got %d", len(lrSeries.Data))
	}

	// Check Y-axis is log scale
	if plot.Config.YAxisScale != "log" {
		t.Errorf("Expected log Y-axis scale, got %s", plot.Config.YAxisScale)
	}
}

// TestNewConfusionMatrixPlot tests confusion matrix plot generation
func TestNewConfusionMatrixPlot(t *testing.T) {
	cm, _ := NewConfusionMatrix(2)
	cm.Matrix[0][0] = 50
	cm.Matrix[0][1] = 5
	cm.Matrix[1][0] = 10
	cm.Matrix[1][1] = 35
	cm.TotalSamples = 100

	classNames := []string{"Class0", "Class1"}

	plot, err := NewConfusionMatrixPlot(cm, classNames, "TestModel")
	if err != nil {
		t.Fatalf("Failed to build confusion matrix plot: %v", err)
	}

	if plot.PlotType != ConfusionMatrixPlot {
		t.Errorf("Expected plot type %s, got %s", ConfusionMatrixPlot, plot.PlotType)
	}

	if len(plot.Series) != 1 {
		t.Errorf("Expected 1 series, got %d", len(plot.Series))
	}

	heatmapSeries := plot.Series[0]
	if heatmapSeries.Type != "heatmap" {
		t.Errorf("Expected heatmap series type, got %s", heatmapSeries.Type)
	}
	if len(heatmapSeries.Data) != 4 { // 2x2 matrix = 4 points
		t.Errorf("Expected 4 data points, got %d", len(heatmapSeries.Data))
	}

	// Check one data point
	point := heatmapSeries.Data[0]
	if point.Z != 50 {
		t.Errorf("Expected Z value 50, got %v", point.Z)
	}
	if point.X != "Class0" || point.Y != "Class0" {
		t.Errorf("Expected first point at (Class0, Class0), got (%v, %v)", point.X, point.Y)
	}

	// Accuracy travels with the plot for the dashboard header
	if acc, ok := plot.Metrics["accuracy"].(float64); !ok || acc != 0.85 {
		t.Errorf("Expected accuracy metric 0.85, got %v", plot.Metrics["accuracy"])
	}
}

// TestNewConfusionMatrixPlotValidation tests error and fallback handling
func TestNewConfusionMatrixPlotValidation(t *testing.T) {
	if _, err := NewConfusionMatrixPlot(nil, nil, "TestModel"); err == nil {
		t.Error("Expected error for nil confusion matrix")
	}

	cm, _ := NewConfusionMatrix(3)
	if _, err := NewConfusionMatrixPlot(cm, []string{"only", "two"}, "TestModel"); err == nil {
		t.Error("Expected error for class name count mismatch")
	}

	// Without names, classes fall back to generated labels
	plot, err := NewConfusionMatrixPlot(cm, nil, "TestModel")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if plot.Series[0].Data[0].X != "class 0" {
		t.Errorf("Expected generated class label, got %v", plot.Series[0].Data[0].X)
	}
}

// TestPlotDataToJSON tests JSON serialization
func TestPlotDataToJSON(t *testing.T) {
	plots, err := NewTrainingPlots(testHistory(), "TestModel")
	if err != nil {
		t.Fatalf("Failed to build training plots: %v", err)
	}
	plot := plots[0]

	jsonBytes, err := plot.ToJSON()
	if err != nil {
		t.Fatalf("Failed to convert to JSON: %v", err)
	}

	// Test that we can parse it back
	var parsedPlot PlotData
	err = json.Unmarshal(jsonBytes, &parsedPlot)
	if err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}

	if parsedPlot.PlotType != plot.PlotType {
		t.Errorf("PlotType mismatch after JSON round-trip")
	}
	if parsedPlot.ModelName != plot.ModelName {
		t.Errorf("ModelName mismatch after JSON round-trip")
	}
	if len(parsedPlot.Series) != len(plot.Series) {
		t.Errorf("Series count mismatch after JSON round-trip")
	}
}

// TestDataPointCreation tests DataPoint struct creation
func TestDataPointCreation(t *testing.T) {
	dp := DataPoint{
		X:     1.0,
		Y:     2.0,
		Z:     3.0,
		Label: "test point",
		Color: "#FF0000",
	}

	if dp.X != 1.0 {
		t.Errorf("Expected X=1.0, got %v", dp.X)
	}
	if dp.Y != 2.0 {
		t.Errorf("Expected Y=2.0, got %v", dp.Y)
	}
	if dp.Z != 3.0 {
		t.Errorf("Expected Z=3.0, got %v", dp.Z)
	}
	if dp.Label != "test point" {
		t.Errorf("Expected Label='test point', got %s", dp.Label)
	}
	if dp.Color != "#FF0000" {
		t.Errorf("Expected Color='#FF0000', got %s", dp.Color)
	}
}

// TestPlotConfigCreation tests PlotConfig struct creation
func TestPlotConfigCreation(t *testing.T) {
	config := PlotConfig{
		XAxisLabel:  "X Axis",
		YAxisLabel:  "Y Axis",
		XAxisScale:  "linear",
		YAxisScale:  "log",
		ShowLegend:  true,
		ShowGrid:    false,
		Width:       800,
		Height:      600,
		Interactive: true,
		CustomOptions: map[string]interface{}{
			"test": "value",
		},
	}

	if config.XAxisLabel != "X Axis" {
		t.Errorf("Expected XAxisLabel='X Axis', got %s", config.XAxisLabel)
	}
	if config.YAxisScale != "log" {
		t.Errorf("Expected YAxisScale='log', got %s", config.YAxisScale)
	}
	if !config.Interactive {
		t.Error("Expected Interactive=true")
	}
	if config.CustomOptions["test"] != "value" {
		t.Errorf("Expected custom option 'test'='value', got %v", config.CustomOptions["test"])
	}
}

// TestSeriesDataCreation tests SeriesData struct creation
func TestSeriesDataCreation(t *testing.T) {
	data := []DataPoint{
		{X: 1, Y: 2},
		{X: 3, Y: 4},
	}

	series := SeriesData{
		Name: "Test Series",
		Type: "line",
		Data: data,
		Style: map[string]interface{}{
			"color": "#FF0000",
			"width": 2,
		},
	}

	if series.Name != "Test Series" {
		t.Errorf("Expected Name='Test Series', got %s", series.Name)
	}
	if series.Type != "line" {
		t.Errorf("Expected Type='line', got %s", series.Type)
	}
	if len(series.Data) != 2 {
		t.Errorf("Expected 2 data points, got %d", len(series.Data))
	}
	if series.Style["color"] != "#FF0000" {
		t.Errorf("Expected color='#FF0000', got %v", series.Style["color"])
	}
}

// TestTimestampInPlots tests that timestamps are set in generated plots
func TestTimestampInPlots(t *testing.T) {
	before := time.Now()
	plot := NewLearningRatePlot([]float64{0.01}, "TestModel")
	after := time.Now()

	if plot.Timestamp.Before(before) || plot.Timestamp.After(after) {
		t.Error("Plot timestamp should be set to current time")
	}
}

// BenchmarkJSONSerialization benchmarks plot serialization
func BenchmarkJSONSerialization(b *testing.B) {
	history := &History{
		Accuracy:    make([]float64, 100),
		ValAccuracy: make([]float64, 100),
		Loss:        make([]float64, 100),
		ValLoss:     make([]float64, 100),
	}
	for i := 0; i < 100; i++ {
		history.Accuracy[i] = float64(i) / 100.0
		history.ValAccuracy[i] = float64(i) / 110.0
		history.Loss[i] = 1.0 - float64(i)/100.0
		history.ValLoss[i] = 1.0 - float64(i)/110.0
	}

	plots, err := NewTrainingPlots(history, "BenchModel")
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := plots[0].ToJSON(); err != nil {
			b.Fatal(err)
		}
	}
}
