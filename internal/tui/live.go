package tui

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/san-kum/latentode/internal/trainer"
)

const (
	width       = 70
	height      = 20
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer redraws the latest prior sample as a phase plane curve
// with plain ANSI escapes. It implements trainer.Observer and suits
// terminals where the full screen view is unavailable.
type LiveRenderer struct {
	out       io.Writer
	frameRate int
	lastFrame time.Time
	canvas    [][]rune
	last      trainer.StepRecord
	sample    *trainer.Checkpoint
}

func NewLiveRenderer(out io.Writer, frameRate int) *LiveRenderer {
	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
	}
	if frameRate <= 0 {
		frameRate = 10
	}
	return &LiveRenderer{out: out, frameRate: frameRate, canvas: canvas}
}

func (r *LiveRenderer) OnStep(rec trainer.StepRecord) {
	r.last = rec
	elapsed := time.Since(r.lastFrame)
	if elapsed < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	r.draw()
}

// OnCheckpoint always redraws so no sample is skipped.
func (r *LiveRenderer) OnCheckpoint(cp trainer.Checkpoint) {
	r.sample = &cp
	r.lastFrame = time.Now()
	r.draw()
}

func (r *LiveRenderer) clear() {
	for y := range r.canvas {
		for x := range r.canvas[y] {
			r.canvas[y][x] = ' '
		}
	}
}

func (r *LiveRenderer) set(x, y int, c rune) {
	if x >= 0 && x < width && y >= 0 && y < height {
		r.canvas[y][x] = c
	}
}

func (r *LiveRenderer) line(x1, y1, x2, y2 int, c rune) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		r.set(x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// drawSample plots channel 0 against channel 1, scaled to the canvas.
func (r *LiveRenderer) drawSample() {
	cx, cy := width/2, height/2
	for x := 2; x < width-2; x++ {
		r.set(x, cy, '-')
	}
	for y := 1; y < height-1; y++ {
		r.set(cx, y, '|')
	}
	r.set(cx, cy, '+')

	if r.sample == nil || len(r.sample.Values) == 0 || len(r.sample.Values[0]) < 2 {
		return
	}
	maxVal := 1e-9
	for _, y := range r.sample.Values {
		if !finite(y[0]) || !finite(y[1]) {
			continue
		}
		maxVal = math.Max(maxVal, math.Max(math.Abs(y[0]), math.Abs(y[1])))
	}
	sx := float64(width/2-3) / maxVal
	sy := float64(height/2-2) / maxVal

	px, py, pen := 0, 0, false
	for i, y := range r.sample.Values {
		if !finite(y[0]) || !finite(y[1]) {
			pen = false
			continue
		}
		x := cx + int(y[0]*sx)
		z := cy - int(y[1]*sy)
		if pen {
			c := '.'
			if i > len(r.sample.Values)/2 {
				c = 'o'
			}
			r.line(px, py, x, z, c)
		}
		px, py, pen = x, z, true
	}
	first := r.sample.Values[0]
	if finite(first[0]) && finite(first[1]) {
		r.set(cx+int(first[0]*sx), cy-int(first[1]*sy), 'O')
	}
}

func (r *LiveRenderer) draw() {
	r.clear()
	r.drawSample()

	var b strings.Builder
	b.WriteString(clearScreen)
	b.WriteString(fmt.Sprintf("  step %d  loss=%.4f  recon=%.4f  kl=%.4f\n",
		r.last.Step, r.last.Parts.Total, r.last.Parts.Reconstruction, r.last.Parts.KL))
	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	for _, row := range r.canvas {
		b.WriteString("  ")
		b.WriteString(string(row))
		b.WriteString("\n")
	}
	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	if r.sample != nil {
		b.WriteString(fmt.Sprintf("  sample from step %d  stability=%.2f\n", r.sample.Step, r.sample.Stability))
	}
	fmt.Fprint(r.out, b.String())
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
