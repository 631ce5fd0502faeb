package analysis

import (
	"math"
	"strings"
)

// PhasePortrait2D holds data for a 2D phase space plot
type PhasePortrait2D struct {
	XIndex, YIndex int
	Points         []struct{ X, Y float64 }
}

// NewPhasePortrait projects sampled states onto two components.
func NewPhasePortrait(states [][]float64, xIdx, yIdx int) *PhasePortrait2D {
	if len(states) == 0 || xIdx >= len(states[0]) || yIdx >= len(states[0]) {
		return nil
	}

	portrait := &PhasePortrait2D{
		XIndex: xIdx,
		YIndex: yIdx,
		Points: make([]struct{ X, Y float64 }, 0, len(states)),
	}
	for _, y := range states {
		if math.IsNaN(y[xIdx]) || math.IsNaN(y[yIdx]) {
			continue
		}
		portrait.Points = append(portrait.Points, struct{ X, Y float64 }{X: y[xIdx], Y: y[yIdx]})
	}
	return portrait
}

// PhasePortraitToASCII converts phase portrait to ASCII art
func PhasePortraitToASCII(portrait *PhasePortrait2D, width, height int) string {
	if portrait == nil || len(portrait.Points) == 0 {
		return ""
	}

	minX, maxX := portrait.Points[0].X, portrait.Points[0].X
	minY, maxY := portrait.Points[0].Y, portrait.Points[0].Y
	for _, p := range portrait.Points {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	// Add padding
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	for _, p := range portrait.Points {
		col := int((p.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y-minY)/rangeY*float64(height-1))

		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	// Draw axes if they cross the visible area
	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if col >= 0 && col < width && canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if row >= 0 && row < height && canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}

// PoincareSection records where a sampled trajectory crosses a plane.
type PoincareSection struct {
	Times  []float64
	Points []struct{ X, Y float64 }
}

// NewPoincareSection records recordX and recordY, linearly interpolated,
// each time component crossIdx crosses threshold going upward.
func NewPoincareSection(times []float64, states [][]float64, crossIdx int, threshold float64, recordX, recordY int) *PoincareSection {
	if len(states) < 2 || len(times) != len(states) {
		return nil
	}
	dim := len(states[0])
	if crossIdx >= dim || recordX >= dim || recordY >= dim {
		return nil
	}

	section := &PoincareSection{}
	for i := 1; i < len(states); i++ {
		prev, curr := states[i-1][crossIdx], states[i][crossIdx]
		if !(prev < threshold && curr >= threshold) {
			continue
		}
		frac := (threshold - prev) / (curr - prev)
		if math.IsNaN(frac) || math.IsInf(frac, 0) {
			frac = 0.5
		}
		lerp := func(j int) float64 {
			return states[i-1][j] + frac*(states[i][j]-states[i-1][j])
		}
		section.Times = append(section.Times, times[i-1]+frac*(times[i]-times[i-1]))
		section.Points = append(section.Points, struct{ X, Y float64 }{X: lerp(recordX), Y: lerp(recordY)})
	}
	return section
}

// PoincareSectionToASCII converts section data to ASCII plot
func PoincareSectionToASCII(section *PoincareSection, width, height int) string {
	if section == nil || len(section.Points) == 0 {
		return "No crossings detected"
	}
	portrait := &PhasePortrait2D{Points: section.Points}
	return PhasePortraitToASCII(portrait, width, height)
}

// DecayRate fits the exponential envelope through successive section
// crossings: the mean of -ln(|x_{k+1}|/|x_k|) / (t_{k+1} - t_k). A
// section needs at least two crossings.
func (s *PoincareSection) DecayRate() (float64, error) {
	if s == nil || len(s.Points) < 2 {
		return 0, ErrTooShort
	}
	sum := 0.0
	for k := 1; k < len(s.Points); k++ {
		a, b := math.Abs(s.Points[k-1].X), math.Abs(s.Points[k].X)
		dt := s.Times[k] - s.Times[k-1]
		if a == 0 || b == 0 || dt <= 0 {
			return 0, ErrTooShort
		}
		sum += -math.Log(b/a) / dt
	}
	return sum / float64(len(s.Points)-1), nil
}
