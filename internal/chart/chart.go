// Package chart renders power series as colored sparklines for the
// terminal, with mean-bucket downsampling for long captures.
package chart

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mvell/powerlive/internal/series"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// PowerColor returns the color for a wattage given an optional high
// threshold.
func PowerColor(v, high float64, hasHigh bool) lipgloss.Color {
	switch {
	case hasHigh && v >= high:
		return lipgloss.Color("196") // red
	case hasHigh && v >= high*0.85:
		return lipgloss.Color("220") // yellow
	default:
		return lipgloss.Color("78") // soft green
	}
}

// Range returns chart bounds for a set of points: a zero floor and
// headroom above the peak so the trace never pins to the top row. A
// configured high threshold always stays inside the range.
func Range(points []series.Point, high float64, hasHigh bool) (rangeMin, rangeMax float64) {
	peak := 0.0
	for _, p := range points {
		if p.Watts > peak {
			peak = p.Watts
		}
	}
	rangeMax = peak + 5
	if hasHigh && high+5 > rangeMax {
		rangeMax = high + 5
	}
	return 0, rangeMax
}

// Downsample compresses points to at most width buckets, averaging the
// values in each bucket. A bucket keeps the x of its newest point.
func Downsample(points []series.Point, width int) []series.Point {
	if width <= 0 || len(points) == 0 {
		return nil
	}
	if len(points) <= width {
		return points
	}

	out := make([]series.Point, 0, width)
	for i := 0; i < width; i++ {
		lo := i * len(points) / width
		hi := (i + 1) * len(points) / width
		if hi <= lo {
			hi = lo + 1
		}
		sum := 0.0
		for _, p := range points[lo:hi] {
			sum += p.Watts
		}
		out = append(out, series.Point{
			X:     points[hi-1].X,
			Watts: sum / float64(hi-lo),
		})
	}
	return out
}

// RenderSparkline renders points as one row of color-coded blocks.
// Shorter series are left-padded with a dim rule so the newest sample
// always sits at the right edge.
func RenderSparkline(points []series.Point, width int, rangeMin, rangeMax, high float64, hasHigh bool) string {
	if width <= 0 {
		return ""
	}

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	if len(points) == 0 {
		return dim.Render(strings.Repeat("╌", width))
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}

	padLen := width - len(points)
	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	for i := 0; i < padLen; i++ {
		sb.WriteString(dim.Render("╌"))
	}

	for _, p := range points {
		norm := (p.Watts - rangeMin) / span
		norm = math.Max(0, math.Min(1, norm))

		idx := int(norm * 7)
		if idx > 7 {
			idx = 7
		}

		style := lipgloss.NewStyle().Foreground(PowerColor(p.Watts, high, hasHigh))
		if hasHigh && p.Watts >= high {
			style = style.Bold(true)
		}
		sb.WriteString(style.Render(string(sparkBlocks[idx])))
	}

	return sb.String()
}

// RenderXAxis renders a dim axis row with a label at each end.
func RenderXAxis(left, right string, width int) string {
	if width <= 0 {
		return ""
	}

	gap := width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}

	axis := left + strings.Repeat(" ", gap) + right
	return lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render(axis)
}

// RenderWattValue renders a wattage with color coding.
func RenderWattValue(watts, high float64, hasHigh bool) string {
	s := fmt.Sprintf("%6.1f W", watts)
	style := lipgloss.NewStyle().Foreground(PowerColor(watts, high, hasHigh))
	if hasHigh && watts >= high {
		style = style.Bold(true)
	}
	return style.Render(s)
}
