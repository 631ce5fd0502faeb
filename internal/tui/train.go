package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/latentode/internal/trainer"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))

	panelStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(0, 2)
)

const historyCapacity = 600

type (
	StepMsg       trainer.StepRecord
	CheckpointMsg trainer.Checkpoint
	DoneMsg       struct {
		Result *trainer.Result
		Err    error
	}
)

// Model is the bubbletea model of a running training job.
type Model struct {
	title   string
	total   int
	started time.Time
	cancel  context.CancelFunc

	last      trainer.StepRecord
	seen      bool
	losses    []float64
	gradNorms []float64
	sample    *trainer.Checkpoint

	done   bool
	result *trainer.Result
	err    error

	width, height int
}

// NewModel prepares a view for a run of total steps. cancel is called
// when the user quits before training ends.
func NewModel(title string, total int, cancel context.CancelFunc) Model {
	return Model{
		title:     title,
		total:     total,
		started:   time.Now(),
		cancel:    cancel,
		losses:    make([]float64, 0, historyCapacity),
		gradNorms: make([]float64, 0, historyCapacity),
		width:     100,
		height:    40,
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StepMsg:
		m.last = trainer.StepRecord(msg)
		m.seen = true
		m.losses = push(m.losses, m.last.Parts.Total)
		m.gradNorms = push(m.gradNorms, m.last.GradNorm)
	case CheckpointMsg:
		cp := trainer.Checkpoint(msg)
		m.sample = &cp
	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

// push appends v and drops the oldest value past historyCapacity.
func push(buf []float64, v float64) []float64 {
	buf = append(buf, v)
	if len(buf) > historyCapacity {
		buf = buf[len(buf)-historyCapacity:]
	}
	return buf
}

func (m Model) View() string {
	var b strings.Builder

	statusIcon, statusText := green.Render("●"), green.Render("training")
	switch {
	case m.err != nil:
		statusIcon, statusText = red.Render("●"), red.Render("failed")
	case m.done:
		statusIcon, statusText = yellow.Render("○"), yellow.Render("done")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s\n", statusIcon, cyan.Render(m.title), statusText))

	step := 0
	if m.seen {
		step = m.last.Step + 1
	}
	progress := 0.0
	if m.total > 0 {
		progress = math.Min(1, float64(step)/float64(m.total))
	}
	barWidth := 36
	filled := int(progress * float64(barWidth))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	elapsed := time.Since(m.started).Round(time.Second)
	b.WriteString(fmt.Sprintf("   %s %s  %s\n\n", bar, dim.Render(fmt.Sprintf("%d/%d", step, m.total)), dim.Render(elapsed.String())))

	graphWidth := m.width - 50
	if graphWidth < 30 {
		graphWidth = 30
	}
	left := m.graphs(graphWidth)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, panelStyle.Render(m.stats())))

	if m.err != nil {
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n" + dim.Render("   q quit") + "\n")
	return b.String()
}

func (m Model) graphs(width int) string {
	var b strings.Builder
	if len(m.losses) > 1 {
		b.WriteString(asciigraph.Plot(m.losses,
			asciigraph.Height(10),
			asciigraph.Width(width),
			asciigraph.Precision(2),
			asciigraph.SeriesColors(asciigraph.Cyan),
			asciigraph.Caption("loss"),
		))
		b.WriteString("\n\n")
	} else {
		b.WriteString(dim.Render("   waiting for the first step") + "\n\n")
	}

	if m.sample != nil && len(m.sample.Values) > 1 {
		series := channels(m.sample.Values)
		b.WriteString(asciigraph.PlotMany(series,
			asciigraph.Height(10),
			asciigraph.Width(width),
			asciigraph.Precision(2),
			asciigraph.SeriesColors(asciigraph.Cyan, asciigraph.HotPink, asciigraph.Yellow),
			asciigraph.Caption(fmt.Sprintf("prior sample at step %d", m.sample.Step)),
		))
		b.WriteString("\n")
	}
	return b.String()
}

// channels transposes a sample into one series per channel, replacing
// non-finite points with zero so the plot stays drawable.
func channels(values [][]float64) [][]float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([][]float64, len(values[0]))
	for c := range out {
		out[c] = make([]float64, len(values))
		for i, y := range values {
			v := y[c]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			out[c][i] = v
		}
	}
	return out
}

func (m Model) stats() string {
	if !m.seen {
		return dim.Render("no steps yet")
	}
	r := m.last
	row := func(label, value string) string {
		return dim.Render(fmt.Sprintf("%-10s", label)) + white.Render(value) + "\n"
	}
	var b strings.Builder
	b.WriteString(row("step", fmt.Sprintf("%d", r.Step)))
	b.WriteString(row("epoch", fmt.Sprintf("%d", r.Epoch)))
	b.WriteString(row("loss", fmt.Sprintf("%.4f", r.Parts.Total)))
	b.WriteString(row("recon", fmt.Sprintf("%.4f", r.Parts.Reconstruction)))
	b.WriteString(row("kl", fmt.Sprintf("%.4f", r.Parts.KL)))
	b.WriteString(row("lr", fmt.Sprintf("%.2e", r.LR)))
	b.WriteString(row("compute", r.Compute.Round(time.Millisecond).String()))
	b.WriteString(row("evals", fmt.Sprintf("%d", r.Evals)))
	if m.sample != nil {
		b.WriteString(row("stability", fmt.Sprintf("%.2f", m.sample.Stability)))
	}
	if len(m.gradNorms) > 1 {
		b.WriteString("\n" + dim.Render("grad ") + magenta.Render(sparkline(m.gradNorms, 24)) + "\n")
	}
	return b.String()
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	start := 0
	if len(data) > width {
		start = len(data) - width
	}
	var sb strings.Builder
	for _, v := range data[start:] {
		idx := int((v - minVal) / rang * 7)
		idx = max(0, min(7, idx))
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}

// Observer forwards trainer progress to a running program.
func Observer(p *tea.Program) trainer.Observer {
	return trainer.ObserverFuncs{
		Step:       func(r trainer.StepRecord) { p.Send(StepMsg(r)) },
		Checkpoint: func(c trainer.Checkpoint) { p.Send(CheckpointMsg(c)) },
	}
}

// RunTraining shows the live view while train runs in the background.
// Quitting the view cancels the context passed to train.
func RunTraining(ctx context.Context, title string, total int, train func(context.Context, trainer.Observer) (*trainer.Result, error)) (*trainer.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(title, total, cancel), tea.WithAltScreen())
	done := make(chan DoneMsg, 1)
	go func() {
		res, err := train(ctx, Observer(p))
		msg := DoneMsg{Result: res, Err: err}
		done <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return nil, err
	}
	cancel()
	msg := <-done
	return msg.Result, msg.Err
}
