package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/flarexio/ragblade"
)

// RAGPort is the console-facing subset of ragblade.Service.
type RAGPort interface {
	Retrieve(ctx context.Context, query ragblade.RetrieveQuery) (*ragblade.RetrieveResult, error)
	Generate(ctx context.Context, req ragblade.GenerateRequest) (*ragblade.Answer, error)
}

// SearchPrefix switches a line from answering to plain retrieval.
const SearchPrefix = "/search "

type answerMsg struct {
	query  string
	answer *ragblade.Answer
	err    error
}

type retrieveMsg struct {
	query  string
	result *ragblade.RetrieveResult
	err    error
}

// Model is the Bubble Tea model of the chat console.
type Model struct {
	ctx     context.Context
	service RAGPort
	sceneID string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	history    []ragblade.Turn
	transcript []string
	status     string
	busy       bool
	ready      bool
}

func New(ctx context.Context, service RAGPort, sceneID string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or " + SearchPrefix + "<query>"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	status := "Ready."
	if sceneID != "" {
		status = fmt.Sprintf("Ready. Scene: %s", sceneID)
	}

	return Model{
		ctx:      ctx,
		service:  service,
		sceneID:  sceneID,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   status,
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true

		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + qh + 1 // header, status, spacer

		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}

		if msg.Type == tea.KeyEnter {
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}

			m.input.Reset()
			m.busy = true

			if query, ok := strings.CutPrefix(line, SearchPrefix); ok {
				m.status = fmt.Sprintf("Searching %q", query)
				return m, tea.Batch(m.spinner.Tick, m.retrieve(query))
			}

			m.transcript = append(m.transcript, userStyle.Render("You: ")+line)
			m.status = "Thinking"
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.generate(line))
		}

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}

		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case answerMsg:
		m.busy = false

		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.transcript = append(m.transcript, errorStyle.Render("Error: "+msg.err.Error()))
			m.refresh()
			return m, nil
		}

		m.history = append(m.history, ragblade.Turn{
			User:      msg.query,
			Assistant: msg.answer.Answer,
		})

		m.transcript = append(m.transcript, renderAnswer(msg.answer))
		m.status = fmt.Sprintf("Answered from %d passages", len(msg.answer.Sources))
		m.refresh()
		return m, nil

	case retrieveMsg:
		m.busy = false

		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}

		if msg.result.Status == ragblade.RetrieveError {
			m.status = "Error: " + msg.result.Message
			return m, nil
		}

		m.transcript = append(m.transcript, renderPassages(msg.query, msg.result.Documents))
		m.status = fmt.Sprintf("%d passages for %q", len(msg.result.Documents), msg.query)
		m.refresh()
		return m, nil
	}

	var cmds []tea.Cmd

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) generate(query string) tea.Cmd {
	req := ragblade.GenerateRequest{
		RetrieveQuery: ragblade.RetrieveQuery{
			Query:   query,
			SceneID: m.sceneID,
		},
		History: append([]ragblade.Turn(nil), m.history...),
	}

	return func() tea.Msg {
		answer, err := m.service.Generate(m.ctx, req)
		return answerMsg{query, answer, err}
	}
}

func (m Model) retrieve(query string) tea.Cmd {
	q := ragblade.RetrieveQuery{
		Query:   query,
		SceneID: m.sceneID,
	}

	return func() tea.Msg {
		result, err := m.service.Retrieve(m.ctx, q)
		return retrieveMsg{query, result, err}
	}
}

// History returns the completed turns of the conversation.
func (m Model) History() []ragblade.Turn {
	return m.history
}

func (m *Model) refresh() {
	if len(m.transcript) == 0 {
		m.viewport.SetContent("No conversation yet.")
		return
	}

	width := max(20, m.viewport.Width-2)
	content := lipgloss.NewStyle().Width(width).Render(strings.Join(m.transcript, "\n\n"))
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := lipgloss.NewStyle().Bold(true).Render("RAGBlade")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())

	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}

	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func renderAnswer(answer *ragblade.Answer) string {
	var sb strings.Builder
	sb.WriteString(assistantStyle.Render("Assistant: "))
	sb.WriteString(answer.Answer)

	for _, src := range answer.Sources {
		sb.WriteString("\n")

		label := fmt.Sprintf("[%d] %s", src.Index, src.Source)
		if src.Page > 0 {
			label += fmt.Sprintf(", page %d", src.Page)
		}

		sb.WriteString(sourceStyle.Render(fmt.Sprintf("%s  score=%.3f", label, src.Score)))
	}

	return sb.String()
}

func renderPassages(query string, docs []ragblade.RetrievedDoc) string {
	if len(docs) == 0 {
		return sourceStyle.Render(fmt.Sprintf("No passages for %q.", query))
	}

	parts := make([]string, len(docs))
	for i, doc := range docs {
		title := fmt.Sprintf("Result %d/%d  %s  score=%.3f", i+1, len(docs), doc.Source, doc.Score)
		parts[i] = sourceStyle.Render(title) + "\n" + doc.Content
	}

	return strings.Join(parts, "\n\n")
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
