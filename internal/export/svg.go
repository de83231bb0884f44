// Package export renders saved step experiments for viewing outside the terminal.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/hallservo/internal/tuner"
)

type Point struct{ X, Y float64 }

// bounds spans the points plus 10% padding on each side.
type bounds struct {
	minX, maxX, minY, maxY float64
}

func boundsOf(series ...[]Point) bounds {
	b := bounds{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	for _, pts := range series {
		for _, p := range pts {
			b.minX = math.Min(b.minX, p.X)
			b.maxX = math.Max(b.maxX, p.X)
			b.minY = math.Min(b.minY, p.Y)
			b.maxY = math.Max(b.maxY, p.Y)
		}
	}
	rangeX := b.maxX - b.minX
	rangeY := b.maxY - b.minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	b.minX -= rangeX * 0.1
	b.maxX += rangeX * 0.1
	b.minY -= rangeY * 0.1
	b.maxY += rangeY * 0.1
	return b
}

func (b bounds) project(p Point, width, height int) (float64, float64) {
	x := (p.X - b.minX) / (b.maxX - b.minX) * float64(width)
	y := float64(height) - (p.Y-b.minY)/(b.maxY-b.minY)*float64(height)
	return x, y
}

func path(sb *strings.Builder, pts []Point, b bounds, width, height int, stroke string, dashed bool) {
	if len(pts) < 2 {
		return
	}
	dash := ""
	if dashed {
		dash = ` stroke-dasharray="4 3"`
	}
	fmt.Fprintf(sb, `<path fill="none" stroke="%s" stroke-width="1.5"%s d="M`, stroke, dash)
	for i, p := range pts {
		x, y := b.project(p, width, height)
		if i == 0 {
			fmt.Fprintf(sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(sb, " L%.1f,%.1f", x, y)
		}
	}
	sb.WriteString("\"/>\n")
}

// SeriesSVG draws a single polyline.
func SeriesSVG(points []Point, width, height int, strokeColor string) string {
	if len(points) < 2 {
		return ""
	}
	b := boundsOf(points)

	var sb strings.Builder
	header(&sb, width, height)
	path(&sb, points, b, width, height, strokeColor, false)
	sb.WriteString("</svg>")
	return sb.String()
}

// StepResponseSVG draws the measured angle against time with the target
// and its settling band.
func StepResponseSVG(samples []tuner.Sample, target float64, width, height int) string {
	if len(samples) < 2 {
		return ""
	}

	angle := make([]Point, len(samples))
	for i, s := range samples {
		angle[i] = Point{s.Time, s.Angle}
	}
	t0, t1 := samples[0].Time, samples[len(samples)-1].Time
	band := math.Abs(target) * tuner.SettlingBand
	setpoint := []Point{{t0, target}, {t1, target}}
	upper := []Point{{t0, target + band}, {t1, target + band}}
	lower := []Point{{t0, target - band}, {t1, target - band}}

	b := boundsOf(angle, setpoint, upper, lower)

	var sb strings.Builder
	header(&sb, width, height)
	path(&sb, upper, b, width, height, "#555555", true)
	path(&sb, lower, b, width, height, "#555555", true)
	path(&sb, setpoint, b, width, height, "#ff5555", true)
	path(&sb, angle, b, width, height, "#00ff00", false)
	sb.WriteString("</svg>")
	return sb.String()
}

func header(sb *strings.Builder, width, height int) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)
}
