// Package tui implements the live power view using BubbleTea, with a
// full-history sparkline and a sliding-window sparkline fed by the
// capture loop.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mvell/powerlive/internal/chart"
	"github.com/mvell/powerlive/internal/monitor"
	"github.com/mvell/powerlive/internal/series"
)

const (
	redrawInterval = 1 * time.Second
	gaugeWidth     = 12
)

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

type snapshotMsg struct {
	view monitor.View
	pts  []series.Point
}

// StoppedMsg reports that the capture loop exited. A nil Err means a
// clean stop and quits the program; otherwise the error stays on screen.
type StoppedMsg struct{ Err error }

// Sender receives messages for a running BubbleTea program.
type Sender interface {
	Send(msg tea.Msg)
}

// Feed returns a renderer that forwards chart snapshots to the program.
func Feed(p Sender) monitor.Renderer {
	return feedRenderer{p: p}
}

type feedRenderer struct{ p Sender }

func (f feedRenderer) Render(view monitor.View, pts []series.Point) {
	f.p.Send(snapshotMsg{view: view, pts: pts})
}

// ── Model ────────────────────────────────────────────────────────────

// Config sets up the live view.
type Config struct {
	PlugName   string
	StorePath  string  // empty when persistence is off
	HighWatts  float64 // alert threshold, 0 disables it
	Horizontal bool
}

// Model is the BubbleTea model for the live power view.
type Model struct {
	cfg     Config
	hasHigh bool
	help    help.Model

	full   []series.Point
	window []series.Point

	width      int
	height     int
	horizontal bool
	paused     bool
	stopped    bool
	stopErr    error
	startTime  time.Time
	lastSample time.Time
}

// New creates the initial model for the live view.
func New(cfg Config) Model {
	return Model{
		cfg:        cfg,
		hasHigh:    cfg.HighWatts > 0,
		help:       help.New(),
		horizontal: cfg.Horizontal,
		startTime:  time.Now(),
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(redrawInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, keys.Layout):
			m.horizontal = !m.horizontal
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		return m, tickCmd()

	case snapshotMsg:
		if m.paused {
			return m, nil
		}
		switch msg.view {
		case monitor.ViewFull:
			m.full = msg.pts
		case monitor.ViewWindow:
			m.window = msg.pts
		}
		m.lastSample = time.Now()

	case StoppedMsg:
		m.stopped = true
		m.stopErr = msg.Err
		if msg.Err == nil {
			return m, tea.Quit
		}
	}

	return m, nil
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorPanel    = lipgloss.Color("147")
	colorValue    = lipgloss.Color("250")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorOk       = lipgloss.Color("78")
	colorWarn     = lipgloss.Color("220")
	colorCrit     = lipgloss.Color("196")
	colorPaused   = lipgloss.Color("196")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string

	sections = append(sections, m.renderTitleBar(contentWidth))

	if m.stopErr != nil {
		errBox := lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Width(contentWidth).
			Padding(0, 1).
			Render(fmt.Sprintf(" ERROR: %v", m.stopErr))
		sections = append(sections, errBox)
	}

	if len(m.full) == 0 {
		waiting := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(contentWidth).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render("Waiting for plug data...")
		sections = append(sections, waiting)
	} else if m.horizontal {
		panelW := contentWidth/2 - 1
		row := lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderPanel(monitor.ViewFull, panelW),
			" ",
			m.renderPanel(monitor.ViewWindow, panelW))
		sections = append(sections, row)
	} else {
		sections = append(sections, m.renderPanel(monitor.ViewFull, contentWidth))
		sections = append(sections, m.renderPanel(monitor.ViewWindow, contentWidth))
	}

	sections = append(sections, m.renderFooter(contentWidth))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("POWER LIVE")
	name := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(m.cfg.PlugName)
	left := logo + "  " + name

	var statusParts []string

	uptime := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("up %s", fmtDuration(time.Since(m.startTime))))
	statusParts = append(statusParts, uptime)

	if !m.lastSample.IsZero() {
		ts := lipgloss.NewStyle().
			Foreground(colorDim).
			Render(m.lastSample.Format("15:04:05"))
		statusParts = append(statusParts, ts)
	}

	if m.paused {
		p := lipgloss.NewStyle().
			Foreground(colorPaused).
			Bold(true).
			Render("PAUSED")
		statusParts = append(statusParts, p)
	}

	if m.stopped {
		s := lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Render("STOPPED")
		statusParts = append(statusParts, s)
	}

	if m.cfg.StorePath != "" {
		rec := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Render("REC") +
			lipgloss.NewStyle().
				Foreground(colorDim).
				Render(" "+m.cfg.StorePath)
		statusParts = append(statusParts, rec)
	}

	sep := lipgloss.NewStyle().Foreground(colorDim).Render(" │ ")
	right := strings.Join(statusParts, sep)

	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	filler := strings.Repeat(" ", gap)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(left + filler + right)
}

func (m Model) renderPanel(view monitor.View, width int) string {
	pts := m.full
	title := "FULL HISTORY"
	if view == monitor.ViewWindow {
		pts = m.window
		title = fmt.Sprintf("LAST %ds", len(pts))
	}

	inner := width - 4
	if inner < 20 {
		inner = 20
	}
	chartW := inner - 2

	titleText := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorPanel).
		Render(title)

	var right string
	if len(pts) > 0 {
		now := pts[len(pts)-1].Watts
		if view == monitor.ViewFull {
			right = chart.RenderWattValue(now, m.cfg.HighWatts, m.hasHigh)
		} else {
			right = m.renderGauge(now)
		}
	}

	gap := inner - lipgloss.Width(titleText) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	header := titleText + strings.Repeat(" ", gap) + right

	rangeMin, rangeMax := chart.Range(pts, m.cfg.HighWatts, m.hasHigh)
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")
	spark := chart.RenderSparkline(chart.Downsample(pts, chartW), chartW, rangeMin, rangeMax, m.cfg.HighWatts, m.hasHigh)

	var left, rightLabel string
	if view == monitor.ViewFull {
		left = "0s"
		rightLabel = fmt.Sprintf("%ds", pts[len(pts)-1].X)
	} else {
		span := len(pts) - 1
		if span < 0 {
			span = 0
		}
		left = fmt.Sprintf("-%ds", span)
		rightLabel = "now"
	}
	axis := " " + chart.RenderXAxis(left, rightLabel, chartW)

	rows := []string{header, frameL + spark + frameR, axis}

	if view == monitor.ViewFull {
		dimS := lipgloss.NewStyle().Foreground(colorDim)
		valS := lipgloss.NewStyle().Foreground(colorValue)
		lo, pk, avg := snapshotStats(pts)
		stats := dimS.Render(" avg") + valS.Render(fmt.Sprintf("%6.1f", avg)) +
			dimS.Render(" lo") + valS.Render(fmt.Sprintf("%6.1f", lo)) +
			dimS.Render(" pk") + valS.Render(fmt.Sprintf("%6.1f", pk))
		rows = append(rows, stats)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, rows...)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(width).
		Render(content)
}

// renderGauge draws current load against the high threshold.
func (m Model) renderGauge(watts float64) string {
	if !m.hasHigh {
		return ""
	}
	frac := watts / m.cfg.HighWatts
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	bar := progress.New(
		progress.WithWidth(gaugeWidth),
		progress.WithoutPercentage(),
		progress.WithSolidFill(string(chart.PowerColor(watts, m.cfg.HighWatts, true))),
	)
	pct := lipgloss.NewStyle().
		Foreground(colorValue).
		Render(fmt.Sprintf("%3.0f%%", 100*watts/m.cfg.HighWatts))
	return bar.ViewAs(frac) + " " + pct
}

func (m Model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)

	var legend string
	if m.hasHigh {
		okS := lipgloss.NewStyle().Foreground(colorOk).Render("██")
		warnS := lipgloss.NewStyle().Foreground(colorWarn).Render("██")
		critS := lipgloss.NewStyle().Foreground(colorCrit).Render("██")
		legend = okS + dimS.Render(" ok ") +
			warnS + dimS.Render(" near ") +
			critS + dimS.Render(fmt.Sprintf(" over %.0fW", m.cfg.HighWatts))
	} else {
		legend = dimS.Render("powerlive")
	}

	hints := m.help.View(keys)

	gap := width - lipgloss.Width(legend) - lipgloss.Width(hints) - 4
	if gap < 1 {
		gap = 1
	}
	filler := strings.Repeat(" ", gap)

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(legend + filler + hints)
}

func snapshotStats(pts []series.Point) (lo, pk, avg float64) {
	if len(pts) == 0 {
		return 0, 0, 0
	}
	lo = pts[0].Watts
	pk = pts[0].Watts
	var sum float64
	for _, p := range pts {
		if p.Watts < lo {
			lo = p.Watts
		}
		if p.Watts > pk {
			pk = p.Watts
		}
		sum += p.Watts
	}
	return lo, pk, sum / float64(len(pts))
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	min := d / time.Minute
	d -= min * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, min, s)
	}
	return fmt.Sprintf("%dm%02ds", min, s)
}
