package training

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// ProgressBar provides single-line batch progress for an epoch, overwriting
// itself with carriage returns the way Keras-style fit loops do
type ProgressBar struct {
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	showRate    bool
	showETA     bool
	metrics     map[string]float64
	out         io.Writer
}

// NewProgressBar creates a new progress bar
func NewProgressBar(description string, total int) *ProgressBar {
	return &ProgressBar{
		description: description,
		total:       total,
		current:     0,
		startTime:   time.Now(),
		width:       70, // Character width of progress bar
		showRate:    true,
		showETA:     true,
		metrics:     make(map[string]float64),
		out:         os.Stdout,
	}
}

// SetOutput redirects the bar; pass io.Discard to silence it
func (pb *ProgressBar) SetOutput(w io.Writer) {
	pb.out = w
}

// Update advances the progress bar
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	pb.metrics = metrics
	pb.render()
}

// UpdateMetrics updates metrics without advancing progress
func (pb *ProgressBar) UpdateMetrics(metrics map[string]float64) {
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out) // New line after completion
}

// render draws the progress bar
func (pb *ProgressBar) render() {
	percentage := float64(pb.current) / float64(pb.total)
	if percentage > 1.0 {
		percentage = 1.0
	}

	filled := int(percentage * float64(pb.width))
	if filled > pb.width {
		filled = pb.width
	}

	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var eta time.Duration
	var rate float64

	if pb.current > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
		if percentage > 0 {
			totalTime := time.Duration(float64(elapsed) / percentage)
			eta = totalTime - elapsed
		}
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d",
		pb.description,
		percentage*100,
		bar,
		pb.current,
		pb.total,
	)

	if pb.showETA && eta > 0 {
		line += fmt.Sprintf(" [%s<%s",
			formatDuration(elapsed),
			formatDuration(eta),
		)
	} else {
		line += fmt.Sprintf(" [%s<00:00",
			formatDuration(elapsed),
		)
	}

	if pb.showRate && rate > 0 {
		line += fmt.Sprintf(", %.2fbatch/s", rate)
	}

	// Stable metric ordering keeps successive renders aligned
	keys := make([]string, 0, len(pb.metrics))
	for key := range pb.metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := pb.metrics[key]
		if strings.Contains(key, "accuracy") || strings.Contains(key, "acc") {
			line += fmt.Sprintf(", %s=%.2f%%", key, value*100)
		} else {
			line += fmt.Sprintf(", %s=%.3f", key, value)
		}
	}

	line += "]"

	// Carriage return overwrites the previous render
	fmt.Fprint(pb.out, line)
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
