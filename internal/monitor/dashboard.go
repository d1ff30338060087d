// Package monitor is a terminal dashboard for a running ragd, fed from a
// Prometheus-compatible server scraping ragd's /metrics.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30

	// memoryScale is the full width of the memory bar.
	memoryScale = 1 << 30
)

// Source produces snapshots; *MetricsClient implements it.
type Source interface {
	Snapshot(ctx context.Context) (MetricsSnapshot, error)
}

// Model is the BubbleTea dashboard model.
type Model struct {
	source     Source
	url        string
	interval   time.Duration
	lastUpdate time.Time
	metrics    MetricsSnapshot
	history    history
	err        error
	quitting   bool

	errorProgress  progress.Model
	memoryProgress progress.Model
}

// MetricsSnapshot holds one refresh worth of values.
type MetricsSnapshot struct {
	IngestRate     float64 // documents/min
	QueryRate      float64 // answers/min
	ErrorRatio     float64 // failed steps / all steps, 0-1
	ChunkRate      float64 // chunks/min
	AvgContexts    float64
	StoreErrorRate float64 // failed store ops/min

	EmbedP95    float64 // seconds
	SearchP95   float64
	GenerateP95 float64

	Goroutines  int
	MemoryBytes uint64
	Uptime      int64 // seconds
}

type history struct {
	ingest   []float64
	query    []float64
	generate []float64
	chunks   []float64
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginTop(1)
	footerKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true)
	sparklineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard reading from source. url is only displayed.
func NewModel(source Source, url string, interval time.Duration) Model {
	return Model{
		source:   source,
		url:      url,
		interval: interval,
		errorProgress: progress.New(
			progress.WithGradient("#00ff00", "#ff0000"),
			progress.WithWidth(40),
		),
		memoryProgress: progress.New(
			progress.WithGradient("#00ff00", "#ffff00"),
			progress.WithWidth(40),
		),
	}
}

// getStatusBadge grades the pipeline error ratio.
func getStatusBadge(errorRatio float64) string {
	switch {
	case errorRatio < 0.01:
		return healthyStyle.Render("✓ HEALTHY")
	case errorRatio < 0.10:
		return warningStyle.Render("⚠ DEGRADED")
	default:
		return errorStyle.Render("✗ FAILING")
	}
}

// getLatencyBadge grades a p95 generation latency in seconds.
func getLatencyBadge(seconds float64) string {
	switch {
	case seconds < 5:
		return healthyStyle.Render("[✓]")
	case seconds < 20:
		return warningStyle.Render("[⚠]")
	default:
		return errorStyle.Render("[✗]")
	}
}

// appendToHistory appends a value, keeping at most historySize entries.
func appendToHistory(h []float64, value float64) []float64 {
	h = append(h, value)
	if len(h) > historySize {
		h = h[1:]
	}
	return h
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}
	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	return sparklineStyle.Render(spark.View())
}

type tickMsg time.Time
type metricsMsg MetricsSnapshot
type errMsg error

// Init starts the refresh loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), fetchMetrics(m.source))
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchMetrics(source Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s, err := source.Snapshot(ctx)
		if err != nil {
			return errMsg(err)
		}
		return metricsMsg(s)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchMetrics(m.source)
		}

	case tickMsg:
		return m, tea.Batch(tick(m.interval), fetchMetrics(m.source))

	case metricsMsg:
		s := MetricsSnapshot(msg)
		m.history.ingest = appendToHistory(m.history.ingest, s.IngestRate)
		m.history.query = appendToHistory(m.history.query, s.QueryRate)
		m.history.generate = appendToHistory(m.history.generate, s.GenerateP95)
		m.history.chunks = appendToHistory(m.history.chunks, s.ChunkRate)
		m.metrics = s
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render(" ragd Monitor ")

	content := "\n"
	content += errorStyle.Render("⚠ Cannot reach metrics server") + "\n\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.url) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n"
	content += dimStyle.Render("The server must scrape ragd's /metrics endpoint.") + "\n"
	content += footerStyle.Render("[q] quit  [r] retry") + "\n"

	return containerStyle.Render(header + "\n" + content)
}

func (m Model) renderDashboard() string {
	s := m.metrics
	var content string

	lastUpdate := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdate = m.lastUpdate.Format("3:04:05 PM")
	}
	content += headerStyle.Render(" ragd Monitor ") + "\n"
	content += fmt.Sprintf("%s   %s %s   %s",
		getStatusBadge(s.ErrorRatio),
		dimStyle.Render("Uptime:"),
		valueStyle.Render(formatUptime(s.Uptime)),
		dimStyle.Render(lastUpdate)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Ingestion") + "\n"
	content += labelStyle.Render("  Documents: ") +
		valueStyle.Render(formatRate(s.IngestRate, "docs")) +
		"   " + createSparkline(m.history.ingest) + "\n"
	content += labelStyle.Render("  Chunks: ") +
		valueStyle.Render(formatRate(s.ChunkRate, "chunks")) +
		"   " + createSparkline(m.history.chunks) + "\n"
	content += labelStyle.Render("  Embed (p95): ") + valueStyle.Render(formatLatency(s.EmbedP95)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Queries") + "\n"
	content += labelStyle.Render("  Answers: ") +
		valueStyle.Render(formatRate(s.QueryRate, "answers")) +
		"   " + createSparkline(m.history.query) + "\n"
	content += labelStyle.Render("  Generate (p95): ") +
		valueStyle.Render(formatLatency(s.GenerateP95)) +
		" " + getLatencyBadge(s.GenerateP95) +
		"   " + createSparkline(m.history.generate) + "\n"
	content += labelStyle.Render("  Search (p95): ") + valueStyle.Render(formatLatency(s.SearchP95)) +
		"  " + labelStyle.Render("Contexts/query: ") + valueStyle.Render(fmt.Sprintf("%.1f", s.AvgContexts)) + "\n"

	content += "\n" + sectionStyle.Render("┃ Errors") + "\n"
	content += labelStyle.Render("  Failed steps: ") +
		m.errorProgress.ViewAs(clamp01(s.ErrorRatio)) +
		" " + dimStyle.Render(formatRatio(s.ErrorRatio)) + "\n"
	content += labelStyle.Render("  Store errors: ") + valueStyle.Render(formatRate(s.StoreErrorRate, "ops")) + "\n"

	content += "\n" + sectionStyle.Render("┃ System") + "\n"
	content += labelStyle.Render("  Memory: ") +
		m.memoryProgress.ViewAs(clamp01(float64(s.MemoryBytes)/memoryScale)) +
		" " + dimStyle.Render(formatBytes(s.MemoryBytes)) + "\n"
	content += labelStyle.Render("  Goroutines: ") + valueStyle.Render(fmt.Sprintf("%d", s.Goroutines)) + "\n"

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	content += "\n" + footer

	return containerStyle.Render(content)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
