package export

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/san-kum/latentode/internal/trainer"
)

// Palette colours successive channels within a panel.
var Palette = []string{"#00d7ff", "#ff5f87", "#afff5f", "#ffaf00"}

type bounds struct {
	minX, maxX, minY, maxY float64
}

// padded widens b by 10% on each side and guards against zero ranges.
func (b bounds) padded() bounds {
	rangeX := b.maxX - b.minX
	rangeY := b.maxY - b.minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	return bounds{
		minX: b.minX - rangeX*0.1,
		maxX: b.maxX + rangeX*0.1,
		minY: b.minY - rangeY*0.1,
		maxY: b.maxY + rangeY*0.1,
	}
}

func checkpointBounds(cp trainer.Checkpoint) bounds {
	b := bounds{minX: math.Inf(1), maxX: math.Inf(-1), minY: math.Inf(1), maxY: math.Inf(-1)}
	for i, y := range cp.Values {
		b.minX = math.Min(b.minX, cp.Times[i])
		b.maxX = math.Max(b.maxX, cp.Times[i])
		for _, v := range y {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			b.minY = math.Min(b.minY, v)
			b.maxY = math.Max(b.maxY, v)
		}
	}
	if math.IsInf(b.minY, 1) {
		b.minY, b.maxY = 0, 0
	}
	return b.padded()
}

// path renders one channel of a panel as an SVG path in panel-local
// coordinates. Non-finite values break the line.
func path(sb *strings.Builder, cp trainer.Checkpoint, channel int, b bounds, width, height float64, color string) {
	sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="`, color))
	pen := false
	for i, y := range cp.Values {
		v := y[channel]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			pen = false
			continue
		}
		x := (cp.Times[i] - b.minX) / (b.maxX - b.minX) * width
		py := height - (v-b.minY)/(b.maxY-b.minY)*height
		if !pen {
			sb.WriteString(fmt.Sprintf("M%.1f,%.1f", x, py))
			pen = true
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, py))
		}
	}
	sb.WriteString("\"/>\n")
}

// CheckpointsSVG lays out one panel per checkpoint side by side, each
// showing every channel of the prior sample against time.
func CheckpointsSVG(checkpoints []trainer.Checkpoint, panelWidth, panelHeight int) string {
	if len(checkpoints) == 0 {
		return ""
	}
	const margin = 24
	pw, ph := float64(panelWidth), float64(panelHeight)
	width := len(checkpoints)*(panelWidth+margin) + margin
	height := panelHeight + 2*margin

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	for i, cp := range checkpoints {
		x0 := float64(margin + i*(panelWidth+margin))
		sb.WriteString(fmt.Sprintf(`<g transform="translate(%.0f,%d)">
<rect width="%d" height="%d" fill="none" stroke="#444444"/>
<text x="4" y="-6" fill="#cccccc" font-family="monospace" font-size="12">step %d</text>
`, x0, margin, panelWidth, panelHeight, cp.Step))
		if len(cp.Values) > 1 {
			b := checkpointBounds(cp)
			for c := range cp.Values[0] {
				path(&sb, cp, c, b, pw, ph, Palette[c%len(Palette)])
			}
		}
		sb.WriteString("</g>\n")
	}

	sb.WriteString("</svg>\n")
	return sb.String()
}

// PhaseSVG draws the first two channels of a checkpoint against each
// other.
func PhaseSVG(cp trainer.Checkpoint, width, height int, strokeColor string) string {
	if len(cp.Values) < 2 || len(cp.Values[0]) < 2 {
		return ""
	}
	plane := trainer.Checkpoint{Times: make([]float64, len(cp.Values)), Values: make([][]float64, len(cp.Values))}
	for i, y := range cp.Values {
		plane.Times[i] = y[0]
		plane.Values[i] = []float64{y[1]}
	}
	b := checkpointBounds(plane)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))
	path(&sb, plane, 0, b, float64(width), float64(height), strokeColor)
	sb.WriteString("</svg>\n")
	return sb.String()
}

// WriteFile renders checkpoints to path.
func WriteFile(path string, checkpoints []trainer.Checkpoint, panelWidth, panelHeight int) error {
	svg := CheckpointsSVG(checkpoints, panelWidth, panelHeight)
	if svg == "" {
		return fmt.Errorf("export: no checkpoints to plot")
	}
	return os.WriteFile(path, []byte(svg), 0644)
}
