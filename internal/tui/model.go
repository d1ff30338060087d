// Package tui is an interactive chat over the query pipeline.
//
// Plain input is asked as a question. Slash commands:
//
//	/ingest <path> [source_id]   ingest a document
//	/topk <n>                    set the number of retrieved chunks
//	/clear                       clear the transcript
//	/quit                        exit
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/trigger"
)

// Backend is satisfied by *trigger.Handler.
type Backend interface {
	Ingest(ctx context.Context, req rag.IngestRequest) trigger.IngestResponse
	Query(ctx context.Context, req rag.QueryRequest) trigger.QueryResponse
}

type entryKind int

const (
	entryQuestion entryKind = iota
	entryAnswer
	entryInfo
	entryError
)

type entry struct {
	kind    entryKind
	text    string
	sources []string
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	backend Backend
	timeout time.Duration

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	transcript []entry
	topK       int
	busy       bool
	ready      bool
	title      string
}

// New creates a chat model. title is shown in the header, typically the
// collection name.
func New(backend Backend, title string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /ingest <path>"
	ti.Focus()
	ti.CharLimit = 2000

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = busyStyle

	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return Model{
		backend:  backend,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		topK:     rag.DefaultTopK,
		title:    title,
	}
}

type answerMsg struct {
	resp trigger.QueryResponse
}

type ingestMsg struct {
	path string
	resp trigger.IngestResponse
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and pipeline result messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := transcriptStyle.GetFrameSize()
		// header, input, status
		reserved := 3 + fh
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.input.Width = max(10, msg.Width-4)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.Reset()
			return m.submit(line)
		}

	case answerMsg:
		m.busy = false
		if msg.resp.Failed() {
			m.push(entry{kind: entryError, text: fmt.Sprintf("%s: %s", msg.resp.ErrorKind, msg.resp.Error)})
		} else {
			m.push(entry{kind: entryAnswer, text: msg.resp.Answer, sources: msg.resp.Sources})
		}
		return m, nil

	case ingestMsg:
		m.busy = false
		switch {
		case msg.resp.Failed():
			m.push(entry{kind: entryError, text: fmt.Sprintf("ingest %s failed (%s): %s", msg.path, msg.resp.ErrorKind, msg.resp.Error)})
		case msg.resp.Ingested != nil:
			m.push(entry{kind: entryInfo, text: fmt.Sprintf("ingested %d chunks from %s", *msg.resp.Ingested, msg.resp.SourceID)})
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	if !strings.HasPrefix(line, "/") {
		m.push(entry{kind: entryQuestion, text: line})
		m.busy = true
		return m, tea.Batch(m.ask(line), m.spinner.Tick)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/clear":
		m.transcript = nil
		m.refresh()
		return m, nil
	case "/topk":
		if len(fields) != 2 {
			m.push(entry{kind: entryError, text: "usage: /topk <n>"})
			return m, nil
		}
		k, err := strconv.Atoi(fields[1])
		if err != nil || k < 1 {
			m.push(entry{kind: entryError, text: "top_k must be a positive integer"})
			return m, nil
		}
		m.topK = k
		m.push(entry{kind: entryInfo, text: fmt.Sprintf("top_k set to %d", k)})
		return m, nil
	case "/ingest":
		if len(fields) < 2 || len(fields) > 3 {
			m.push(entry{kind: entryError, text: "usage: /ingest <path> [source_id]"})
			return m, nil
		}
		req := rag.IngestRequest{PDFPath: fields[1]}
		if len(fields) == 3 {
			req.SourceID = fields[2]
		}
		m.push(entry{kind: entryInfo, text: "ingesting " + req.PDFPath})
		m.busy = true
		return m, tea.Batch(m.ingest(req), m.spinner.Tick)
	default:
		m.push(entry{kind: entryError, text: "unknown command " + fields[0]})
		return m, nil
	}
}

func (m Model) ask(question string) tea.Cmd {
	backend, timeout, req := m.backend, m.timeout, rag.NewQueryRequest(question, m.topK)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return answerMsg{resp: backend.Query(ctx, req)}
	}
}

func (m Model) ingest(req rag.IngestRequest) tea.Cmd {
	backend, timeout := m.backend, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return ingestMsg{path: req.PDFPath, resp: backend.Ingest(ctx, req)}
	}
}

func (m *Model) push(e entry) {
	m.transcript = append(m.transcript, e)
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the header, transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("ragd chat") + " " + dimStyle.Render(m.title)
	status := dimStyle.Render(fmt.Sprintf("top_k=%d  pgup/pgdn scroll  esc quit", m.topK))
	if m.busy {
		status = m.spinner.View() + " " + busyStyle.Render("working...")
	}
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		m.input.View() + "\n" +
		status
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return dimStyle.Render("No messages yet. Ingest a PDF with /ingest <path>, then ask away.")
	}
	width := max(20, m.viewport.Width-2)
	var b strings.Builder
	for i, e := range m.transcript {
		if i > 0 {
			b.WriteString("\n")
		}
		switch e.kind {
		case entryQuestion:
			b.WriteString(questionStyle.Render("you: ") + wrap(e.text, width))
		case entryAnswer:
			b.WriteString(answerStyle.Render("ragd: ") + wrap(e.text, width))
			if len(e.sources) > 0 {
				b.WriteString("\n" + sourceStyle.Render("sources: "+strings.Join(uniq(e.sources), ", ")))
			}
		case entryInfo:
			b.WriteString(dimStyle.Render("· " + e.text))
		case entryError:
			b.WriteString(errorStyle.Render("! " + e.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func wrap(s string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(s)
}

// uniq keeps the first occurrence of each source.
func uniq(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("51")).Padding(0, 1)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Bold(true)
	answerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	busyStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
)

// Run starts the chat full-screen and blocks until the user quits.
func Run(backend Backend, title string, timeout time.Duration) error {
	_, err := tea.NewProgram(New(backend, title, timeout), tea.WithAltScreen()).Run()
	return err
}
